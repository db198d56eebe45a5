package main

import (
	"fmt"
	"os"
	"path/filepath"
)

// safeWriteFile replaces name with data so that a reader sees either the old or the new content, never a
// partial write. The temporary file is created alongside name so the rename stays on one filesystem.
func safeWriteFile(name string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(name), filepath.Base(name)+"-*.new")
	if err != nil {
		return fmt.Errorf("failed to create new file: %w", err)
	}

	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write new file: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync new file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close new file: %w", err)
	}

	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("failed to set permissions on new file: %w", err)
	}

	if err := os.Rename(tmpName, name); err != nil {
		return fmt.Errorf("failed to move new file to file location: %w", err)
	}

	return nil
}
