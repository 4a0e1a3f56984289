// Package security validates operator-supplied file paths before they are read.
package security

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// MaxConfigFileSize bounds files read with ReadConfigFile.
const MaxConfigFileSize = 4 << 20

// ErrFileTooLarge is returned when a config file exceeds the size limit.
var ErrFileTooLarge = errors.New("file exceeds size limit")

// ResolvePath cleans path, makes it absolute and resolves symlinks. Paths
// containing control characters are rejected. A path that does not exist
// yet is returned cleaned.
func ResolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("file path cannot be empty")
	}
	if strings.ContainsFunc(path, func(r rune) bool { return r < 0x20 || r == 0x7f }) {
		return "", fmt.Errorf("file path contains control characters: %q", path)
	}

	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to resolve file path: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return abs, nil
		}
		return "", fmt.Errorf("failed to resolve file path: %w", err)
	}
	return resolved, nil
}

// ReadConfigFile reads a regular file of at most MaxConfigFileSize bytes,
// such as a sandbox catalog or a service account key.
func ReadConfigFile(path string) ([]byte, error) {
	resolved, err := ResolvePath(path)
	if err != nil {
		return nil, err
	}

	// #nosec G304 - path is resolved above
	f, err := os.Open(resolved)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", resolved)
	}

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigFileSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxConfigFileSize {
		return nil, fmt.Errorf("%s: %w", resolved, ErrFileTooLarge)
	}
	return data, nil
}
