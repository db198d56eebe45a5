package main

import (
	"github.com/shimmeringbee/httpkit/config"
	"github.com/shimmeringbee/httpkit/homekit"
	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/logwrap/impl/discard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"testing"
)

func Test_loadHomeKitConfiguration(t *testing.T) {
	t.Run("loads the configuration from fixtures", func(t *testing.T) {
		cfg, err := loadHomeKitConfiguration(filepath.Join("test_fixtures", "config", "homekit.json"))
		require.NoError(t, err)

		assert.Equal(t, config.HomeKitConfig{Name: "Hallway Bridge", Pin: "03145154", ListenAddr: ":12345", Debug: true}, cfg)
	})

	t.Run("returns defaults if the file does not exist", func(t *testing.T) {
		cfg, err := loadHomeKitConfiguration(filepath.Join(t.TempDir(), "homekit.json"))
		require.NoError(t, err)

		assert.Equal(t, homekit.DefaultBridgeName, cfg.Name)
		assert.Empty(t, cfg.Pin)
	})

	t.Run("errors on invalid json", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "homekit.json")
		require.NoError(t, os.WriteFile(path, []byte(`{`), 0600))

		_, err := loadHomeKitConfiguration(path)
		assert.Error(t, err)
	})
}

func Test_constructHomeKitHost(t *testing.T) {
	t.Run("creates the store and applies the configuration", func(t *testing.T) {
		dataDir := t.TempDir()

		host, err := constructHomeKitHost(config.HomeKitConfig{Pin: "03145154", ListenAddr: ":12345"}, dataDir, logwrap.New(discard.Discard()))
		require.NoError(t, err)

		assert.DirExists(t, filepath.Join(dataDir, "homekit"))
		assert.Equal(t, "03145154", host.Pin())
		assert.Equal(t, ":12345", host.ListenAddr)
	})

	t.Run("errors on an insecure pin", func(t *testing.T) {
		_, err := constructHomeKitHost(config.HomeKitConfig{Pin: "12345678"}, t.TempDir(), logwrap.New(discard.Discard()))
		assert.Error(t, err)
	})
}
