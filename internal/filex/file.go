// Package filex wraps the handful of local-filesystem operations the engine
// performs on recording files: stat, read-all, delete, directory creation.
package filex

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"safevoice/internal/common"
)

// EnsureDir creates dirName (and parents) if it does not exist yet and
// returns the path.
func EnsureDir(dirName string) (string, error) {
	if err := os.MkdirAll(dirName, 0o770); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dirName, err)
	}
	return dirName, nil
}

// Exists reports whether path names an existing regular file.
func Exists(path string) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	return info.Mode().IsRegular(), nil
}

// Size returns the file size in bytes, or common.ErrFileMissing if the file
// is gone.
func Size(path string) (int64, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, common.ErrFileMissing
	}
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	return info.Size(), nil
}

// ReadAll returns the full file contents, or common.ErrFileMissing if the
// file vanished.
func ReadAll(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, common.ErrFileMissing
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return b, nil
}

// Remove deletes the file. A file that is already gone is not an error.
func Remove(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}
