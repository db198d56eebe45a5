package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/brutella/hap"
	"github.com/shimmeringbee/httpkit/config"
	"github.com/shimmeringbee/httpkit/homekit"
	"github.com/shimmeringbee/logwrap"
	"os"
	"path/filepath"
)

func loadHomeKitConfiguration(path string) (config.HomeKitConfig, error) {
	cfg := config.HomeKitConfig{Name: homekit.DefaultBridgeName}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	} else if err != nil {
		return cfg, fmt.Errorf("failed to read homekit configuration file '%s': %w", path, err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse homekit configuration file '%s': %w", path, err)
	}

	return cfg, nil
}

// constructHomeKitHost creates the host with its pairing and accessory store under the data directory.
func constructHomeKitHost(cfg config.HomeKitConfig, dataDir string, l logwrap.Logger) (*homekit.Host, error) {
	storeDir := filepath.Join(dataDir, "homekit")

	if err := os.MkdirAll(storeDir, DefaultDirectoryPermissions); err != nil {
		return nil, fmt.Errorf("failed to create homekit data directory '%s': %w", storeDir, err)
	}

	host := homekit.NewHost(hap.NewFsStore(storeDir), cfg.Name, l)
	host.ListenAddr = cfg.ListenAddr
	host.Interfaces = cfg.Interfaces
	host.Debug = cfg.Debug

	pin, err := host.SetPin(cfg.Pin)
	if err != nil {
		return nil, fmt.Errorf("failed to set homekit pin: %w", err)
	}

	l.LogInfo(context.Background(), "HomeKit bridge configured.", logwrap.Datum("name", cfg.Name), logwrap.Datum("pin", pin))

	return host, nil
}

// startHomeKitHost runs the host until the returned shutdown function is called.
func startHomeKitHost(host *homekit.Host, l logwrap.Logger) func() error {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		err := host.Start(ctx)
		if err != nil {
			l.LogError(context.Background(), "HomeKit server failed.", logwrap.Err(err))
		}

		done <- err
	}()

	return func() error {
		cancel()
		return <-done
	}
}
