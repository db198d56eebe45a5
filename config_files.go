package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// readConfigurationFiles calls each with the name and content of every .json file in dir, in name order.
// The directory is created if it does not exist.
func readConfigurationFiles(dir string, kind string, each func(name string, data []byte) error) error {
	if err := os.MkdirAll(dir, DefaultDirectoryPermissions); err != nil {
		return fmt.Errorf("failed to ensure %s configuration directory exists: %w", kind, err)
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read directory listing for %s configurations: %w", kind, err)
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Name() < files[j].Name()
	})

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}

		fullPath := filepath.Join(dir, file.Name())
		data, err := os.ReadFile(fullPath)
		if err != nil {
			return fmt.Errorf("failed to read %s configuration file '%s': %w", kind, fullPath, err)
		}

		if err := each(strings.TrimSuffix(file.Name(), filepath.Ext(file.Name())), data); err != nil {
			return fmt.Errorf("failed to parse %s configuration file '%s': %w", kind, fullPath, err)
		}
	}

	return nil
}
