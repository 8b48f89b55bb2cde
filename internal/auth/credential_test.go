package auth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	cs := NewCredentialStore(dir)

	_, ok := cs.Load()
	assert.False(t, ok, "fresh store holds nothing")

	require.NoError(t, cs.Save("tok-abc"))

	got, ok := cs.Load()
	require.True(t, ok)
	assert.Equal(t, "tok-abc", got)

	info, err := os.Stat(filepath.Join(dir, credentialFileName))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestCredentialStore_SaveOverwrites(t *testing.T) {
	cs := NewCredentialStore(t.TempDir())
	require.NoError(t, cs.Save("first"))
	require.NoError(t, cs.Save("second"))

	got, ok := cs.Load()
	require.True(t, ok)
	assert.Equal(t, "second", got)
}

func TestCredentialStore_ClearAbsentIsFine(t *testing.T) {
	cs := NewCredentialStore(t.TempDir())
	assert.NoError(t, cs.Clear())

	require.NoError(t, cs.Save("tok"))
	require.NoError(t, cs.Clear())
	_, ok := cs.Load()
	assert.False(t, ok)
}

func TestCredentialStore_CorruptFileIgnored(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, credentialFileName), []byte("{broken"), 0o600))

	cs := NewCredentialStore(dir)
	_, ok := cs.Load()
	assert.False(t, ok)
}
