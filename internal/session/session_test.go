package session

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsZeroValue(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "session.yaml"))
	require.NoError(t, err)
	assert.Equal(t, State{}, s)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.yaml")
	s := State{LastCommand: "search"}
	s.RecordDaemonDial("search", true)

	require.NoError(t, Save(path, s))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "search", loaded.LastCommand)
	assert.Equal(t, "daemon", loaded.LastTransport)
	assert.Equal(t, 0, loaded.ConsecutiveDaemonMisses)
}

func TestRecordDaemonDialTracksConsecutiveMisses(t *testing.T) {
	var s State
	s.RecordDaemonDial("status", false)
	s.RecordDaemonDial("status", false)
	assert.Equal(t, 2, s.ConsecutiveDaemonMisses)
	assert.Equal(t, "in_process", s.LastTransport)

	s.RecordDaemonDial("status", true)
	assert.Equal(t, 0, s.ConsecutiveDaemonMisses)
}
