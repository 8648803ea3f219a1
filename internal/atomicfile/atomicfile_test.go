package atomicfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileReplacesContent(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := filepath.Join("data", "cache.json")

	require.NoError(t, WriteFile(fs, path, []byte("first"), 0o644))
	require.NoError(t, WriteFile(fs, path, []byte("second"), 0o644))

	b, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(b))

	entries, err := afero.ReadDir(fs, "data")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestWriteFileOnDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.json")

	require.NoError(t, WriteFile(afero.NewOsFs(), path, []byte("{}"), 0o600))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestWriteJSONKeepsUnicodeAndHTML(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, WriteJSON(fs, "x.json", map[string]string{"name": "葬送的芙莉蓮 <&>"}))

	b, err := afero.ReadFile(fs, "x.json")
	require.NoError(t, err)
	assert.Contains(t, string(b), "葬送的芙莉蓮 <&>")
	assert.Contains(t, string(b), "\n    \"name\"")
}

func TestWriteFileSyncsDirectoryOnDisk(t *testing.T) {
	var synced []string
	orig := syncDir
	syncDir = func(dir string) error {
		synced = append(synced, dir)
		return orig(dir)
	}
	t.Cleanup(func() { syncDir = orig })

	dir := filepath.Join(t.TempDir(), "data")
	require.NoError(t, WriteFile(afero.NewOsFs(), filepath.Join(dir, "2024_春.json"), []byte("{}"), 0o644))
	assert.Equal(t, []string{dir}, synced)

	synced = nil
	require.NoError(t, WriteFile(afero.NewMemMapFs(), "data/x.json", []byte("{}"), 0o644))
	assert.Empty(t, synced, "in-memory filesystems have nothing to sync")
}
