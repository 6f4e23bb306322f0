package security

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditLogGenesisHash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	log, err := OpenAuditLog(path)
	require.NoError(t, err)

	entry, err := log.Append(AuditInfo, "install", "installed neovim", "neovim")
	require.NoError(t, err)
	assert.Equal(t, genesisHash, entry.PreviousHash)
	assert.Len(t, entry.EntryHash, 64)
}

func TestAuditLogChainsHashes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	log, err := OpenAuditLog(path)
	require.NoError(t, err)

	first, err := log.Append(AuditInfo, "install", "first", "pkg-a")
	require.NoError(t, err)
	second, err := log.Append(AuditInfo, "remove", "second", "pkg-b")
	require.NoError(t, err)

	assert.Equal(t, first.EntryHash, second.PreviousHash)
}

func TestVerifyIntegritySurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")

	for i := 0; i < 10; i++ {
		log, err := OpenAuditLog(path)
		require.NoError(t, err)
		_, err = log.Append(AuditInfo, "test", "entry", "resource")
		require.NoError(t, err)
	}

	report, err := VerifyIntegrity(path)
	require.NoError(t, err)
	assert.Equal(t, 10, report.Total)
	assert.Equal(t, 10, report.Valid)
	assert.True(t, report.ChainValid)
}

func TestVerifyIntegrityDetectsTamper(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")

	for i := 0; i < 10; i++ {
		log, err := OpenAuditLog(path)
		require.NoError(t, err)
		_, err = log.Append(AuditInfo, "test", "entry", "resource")
		require.NoError(t, err)
	}

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	require.Len(t, lines, 10)

	lines[4] = strings.Replace(lines[4], `"entry"`, `"ENTRY"`, 1)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))

	report, err := VerifyIntegrity(path)
	require.NoError(t, err)
	assert.False(t, report.ChainValid)
	assert.Equal(t, "entry 5", report.FirstInvalid)
}
