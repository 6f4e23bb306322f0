package runtimes

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkVersion(t *testing.T, root string, lang Language, version string) {
	t.Helper()
	dir := filepath.Join(root, string(lang), version, "bin")
	require.NoError(t, os.MkdirAll(dir, 0o755))
}

func TestListReturnsSortedInstalledVersions(t *testing.T) {
	root := t.TempDir()
	mkVersion(t, root, Node, "20.0.0")
	mkVersion(t, root, Node, "18.0.0")

	m := NewManager(root)
	versions, err := m.List(Node)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "18.0.0", versions[0].Value)
	assert.Equal(t, "20.0.0", versions[1].Value)
}

func TestListUnknownLanguageDirReturnsEmpty(t *testing.T) {
	m := NewManager(t.TempDir())
	versions, err := m.List(Go)
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestListRejectsUnsupportedLanguage(t *testing.T) {
	m := NewManager(t.TempDir())
	_, err := m.List(Language("cobol"))
	assert.Error(t, err)
}

func TestUseRequiresInstalledVersion(t *testing.T) {
	m := NewManager(t.TempDir())
	err := m.Use(Python, "3.12.0")
	assert.Error(t, err)
}

func TestUseAndCurrentRoundTrip(t *testing.T) {
	root := t.TempDir()
	mkVersion(t, root, Rust, "1.75.0")

	m := NewManager(root)
	require.NoError(t, m.Use(Rust, "1.75.0"))

	cur, err := m.Current(Rust)
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, "1.75.0", cur.Value)
}

func TestCurrentWithNoSelectionReturnsNil(t *testing.T) {
	m := NewManager(t.TempDir())
	cur, err := m.Current(Bun)
	require.NoError(t, err)
	assert.Nil(t, cur)
}

func TestUseSwitchesBetweenVersions(t *testing.T) {
	root := t.TempDir()
	mkVersion(t, root, Ruby, "3.2.0")
	mkVersion(t, root, Ruby, "3.3.0")

	m := NewManager(root)
	require.NoError(t, m.Use(Ruby, "3.2.0"))
	require.NoError(t, m.Use(Ruby, "3.3.0"))

	cur, err := m.Current(Ruby)
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, "3.3.0", cur.Value)
}
