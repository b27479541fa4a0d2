package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
)

const appDirName = "docker"

// Default locations inside the application data directory.
const (
	// DownloadsSubdir is where downloaded resources are persisted.
	DownloadsSubdir = "cache/downloads"
	// SeedSubdir is the read-only seed resource directory checked before
	// any network operation.
	SeedSubdir = "seed_resources"
)

// GetDataDir returns the per-user application data directory.
func GetDataDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine user cache directory: %w", err)
	}
	return filepath.Join(base, appDirName), nil
}

// GetDownloadDir returns the default directory for downloaded resources.
func GetDownloadDir() (string, error) {
	dataDir, err := GetDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, filepath.FromSlash(DownloadsSubdir)), nil
}

// GetSeedDir returns the default seed resource directory.
func GetSeedDir() (string, error) {
	dataDir, err := GetDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, SeedSubdir), nil
}
