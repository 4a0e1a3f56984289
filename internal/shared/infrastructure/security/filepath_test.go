package security

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePath(t *testing.T) {
	t.Run("rejects empty path", func(t *testing.T) {
		_, err := ResolvePath("  ")
		assert.Error(t, err)
	})

	t.Run("rejects control characters", func(t *testing.T) {
		_, err := ResolvePath("/tmp/catalog\n.json")
		assert.ErrorContains(t, err, "control characters")
	})

	t.Run("makes relative paths absolute", func(t *testing.T) {
		got, err := ResolvePath("catalog.json")
		require.NoError(t, err)
		assert.True(t, filepath.IsAbs(got))
	})

	t.Run("cleans traversal", func(t *testing.T) {
		dir := t.TempDir()
		got, err := ResolvePath(filepath.Join(dir, "a", "..", "missing.json"))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "missing.json"), got)
	})

	t.Run("resolves symlinks", func(t *testing.T) {
		dir, err := filepath.EvalSymlinks(t.TempDir())
		require.NoError(t, err)
		target := filepath.Join(dir, "target.json")
		require.NoError(t, os.WriteFile(target, []byte("{}"), 0600))
		link := filepath.Join(dir, "link.json")
		require.NoError(t, os.Symlink(target, link))

		got, err := ResolvePath(link)
		require.NoError(t, err)
		assert.Equal(t, target, got)
	})
}

func TestReadConfigFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("reads regular file", func(t *testing.T) {
		path := filepath.Join(dir, "catalog.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"products":[]}`), 0600))

		data, err := ReadConfigFile(path)
		require.NoError(t, err)
		assert.Equal(t, `{"products":[]}`, string(data))
	})

	t.Run("rejects directories", func(t *testing.T) {
		_, err := ReadConfigFile(dir)
		assert.ErrorContains(t, err, "not a regular file")
	})

	t.Run("rejects oversized files", func(t *testing.T) {
		path := filepath.Join(dir, "big.json")
		require.NoError(t, os.WriteFile(path, make([]byte, MaxConfigFileSize+1), 0600))

		_, err := ReadConfigFile(path)
		assert.ErrorIs(t, err, ErrFileTooLarge)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := ReadConfigFile(filepath.Join(dir, "nope.json"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}
