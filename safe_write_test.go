package main

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"testing"
)

func Test_safeWriteFile(t *testing.T) {
	t.Run("writes a new file", func(t *testing.T) {
		name := filepath.Join(t.TempDir(), "key.pem")

		require.NoError(t, safeWriteFile(name, []byte("first"), 0600))

		data, err := os.ReadFile(name)
		require.NoError(t, err)
		assert.Equal(t, "first", string(data))
	})

	t.Run("replaces an existing file without leaving temporary files", func(t *testing.T) {
		dir := t.TempDir()
		name := filepath.Join(dir, "key.pem")

		require.NoError(t, safeWriteFile(name, []byte("first"), 0600))
		require.NoError(t, safeWriteFile(name, []byte("second"), 0600))

		data, err := os.ReadFile(name)
		require.NoError(t, err)
		assert.Equal(t, "second", string(data))

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})
}

func Test_safeWriteFilePermissions(t *testing.T) {
	t.Run("applies the requested permissions", func(t *testing.T) {
		name := filepath.Join(t.TempDir(), "key.pem")

		require.NoError(t, safeWriteFile(name, []byte("secret"), 0600))

		info, err := os.Stat(name)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	})
}
