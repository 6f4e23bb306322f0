package security

import (
	"encoding/base64"
	"testing"

	"github.com/PyRo1121/omg-sub002/internal/pkgdb"
	"github.com/stretchr/testify/assert"
)

func TestGradeRekorHitIsLevel2(t *testing.T) {
	level := Grade(pkgdb.Package{Repo: "aur"}, true, false)
	assert.Equal(t, ProvenanceLevel2, level)
}

func TestGradeCoreRepoWithoutEvidenceIsLevel3(t *testing.T) {
	level := Grade(pkgdb.Package{Repo: "core"}, false, false)
	assert.Equal(t, ProvenanceLevel3, level)
}

func TestGradeOfficialNonCoreRepoIsLevel2(t *testing.T) {
	level := Grade(pkgdb.Package{Repo: "extra"}, false, false)
	assert.Equal(t, ProvenanceLevel2, level)
}

func TestGradeUnknownRepoIsNone(t *testing.T) {
	level := Grade(pkgdb.Package{Repo: "aur"}, false, false)
	assert.Equal(t, ProvenanceNone, level)
}

func TestArtifactHashIsDeterministic(t *testing.T) {
	a := ArtifactHash([]byte("hello"))
	b := ArtifactHash([]byte("hello"))
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestEntryBodyKindDecodesBase64Body(t *testing.T) {
	inner := `{"kind":"hashedrekord","apiVersion":"0.0.1"}`
	encoded := base64.StdEncoding.EncodeToString([]byte(inner))
	entry := []byte(`{"24296fb24b8ad77a...":{"body":"` + encoded + `","integratedTime":1700000000}}`)

	kind, err := EntryBodyKind(entry)
	assert.NoError(t, err)
	assert.Equal(t, "hashedrekord", kind)
}

func TestEntryBodyKindMissingBodyErrors(t *testing.T) {
	_, err := EntryBodyKind([]byte(`{"uuid":{"integratedTime":1700000000}}`))
	assert.Error(t, err)
}
