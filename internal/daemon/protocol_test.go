package daemon

import (
	"bytes"
	"testing"

	omgerrors "github.com/PyRo1121/omg-sub002/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	req := Request{ID: 42, Kind: MsgPing}

	require.NoError(t, WriteFrame(&buf, req))

	var got Request
	require.NoError(t, ReadFrame(&buf, &got))
	assert.Equal(t, req.ID, got.ID)
	assert.Equal(t, req.Kind, got.Kind)
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})

	err := ReadFrame(&buf, &Request{})
	assert.Error(t, err)
}

func TestCodeForErrorMapsKnownCategories(t *testing.T) {
	assert.Equal(t, ErrCodePackageNotFound, codeForError(omgerrors.PackageNotFound("vim")))
	assert.Equal(t, ErrCodeBusy, codeForError(omgerrors.TransactionBusy()))
	assert.Equal(t, ErrCodeSecurityViolation, codeForError(omgerrors.SignatureInvalid("pkg", nil)))
	assert.Equal(t, ErrCodeInternal, codeForError(omgerrors.Internal("boom", nil)))
}

func TestSuccessResponseMarshalsResult(t *testing.T) {
	resp := successResponse(7, map[string]int{"x": 1})
	assert.Equal(t, uint64(7), resp.ID)
	assert.Nil(t, resp.Error)
	assert.Contains(t, string(resp.Result), `"x":1`)
}

func TestErrorResponseCarriesWireCode(t *testing.T) {
	resp := errorResponse(3, omgerrors.PackageNotFound("vim"))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodePackageNotFound, resp.Error.Code)
}
