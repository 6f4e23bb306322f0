package daemon

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialFailsWhenNoSocketListening(t *testing.T) {
	dir := t.TempDir()
	_, err := Dial(context.Background(), filepath.Join(dir, "no-daemon.sock"))
	assert.Error(t, err, "Dial should error so callers fall back to the in-process engine path")
}

func TestClientPingAndSearchRoundTrip(t *testing.T) {
	_, socketPath, cleanup := testServer(t)
	defer cleanup()

	client, err := Dial(context.Background(), socketPath)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Ping(context.Background()))

	results, err := client.Search(context.Background(), "neovim", 5)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestClientInfoErrorSurfacesAsGoError(t *testing.T) {
	_, socketPath, cleanup := testServer(t)
	defer cleanup()

	client, err := Dial(context.Background(), socketPath)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Info(context.Background(), "nonexistent-package")
	assert.Error(t, err)
}
