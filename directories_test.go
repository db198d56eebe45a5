package main

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"path/filepath"
	"testing"
)

func Test_parseInvocation(t *testing.T) {
	t.Run("reads directories and token subject from flags", func(t *testing.T) {
		inv, err := parseInvocation([]string{"-config-directory", "/etc/httpkit", "-data-directory", "/var/lib/httpkit", "-log-directory", "/var/log/httpkit", "-issue-token", "alice"})
		require.NoError(t, err)

		assert.Equal(t, Directories{Config: "/etc/httpkit", Data: "/var/lib/httpkit", Log: "/var/log/httpkit"}, inv.Directories)
		assert.Equal(t, "alice", inv.IssueToken)
	})

	t.Run("reads directories from prefixed environment variables", func(t *testing.T) {
		t.Setenv("HTTPKIT_DATA_DIRECTORY", "/srv/httpkit")

		inv, err := parseInvocation([]string{})
		require.NoError(t, err)

		assert.Equal(t, "/srv/httpkit", inv.Directories.Data)
		assert.Empty(t, inv.IssueToken)
	})

	t.Run("errors on unknown flags", func(t *testing.T) {
		_, err := parseInvocation([]string{"-gateway-directory", "/tmp"})
		assert.Error(t, err)
	})
}

func TestDirectories_ensure(t *testing.T) {
	t.Run("creates every directory", func(t *testing.T) {
		root := t.TempDir()

		d := Directories{
			Config: filepath.Join(root, "config"),
			Data:   filepath.Join(root, "data"),
			Log:    filepath.Join(root, "log"),
		}

		require.NoError(t, d.ensure())

		assert.DirExists(t, d.Config)
		assert.DirExists(t, d.Data)
		assert.DirExists(t, d.Log)
	})
}
