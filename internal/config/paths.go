// Package config loads, saves and watches the cairn configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// HomeEnv relocates the cairn home directory.
const HomeEnv = "CAIRN_HOME"

// Layout of the cairn home directory. It holds the YAML configuration read
// at startup and, with the default sqlite driver, the checkpoint database
// where paused and finished threads are persisted.
const (
	HomeDirName    = ".cairn"
	ConfigFileName = "config.yaml"
	CheckpointFile = "checkpoints.db"
)

// DefaultConfigDir returns the cairn home directory: $CAIRN_HOME when set,
// ~/.cairn otherwise. It holds config.yaml and checkpoints.db.
func DefaultConfigDir() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return ExpandPath(dir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, HomeDirName), nil
}

// DefaultConfigPath returns the configuration file cairn reads when no
// --config flag is given.
func DefaultConfigPath() (string, error) {
	return inHome(ConfigFileName)
}

// DefaultDataPath returns the sqlite checkpoint database used when
// checkpoint.path is not configured.
func DefaultDataPath() (string, error) {
	return inHome(CheckpointFile)
}

func inHome(name string) (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// ExpandPath replaces a leading ~ with the user's home directory. Other
// paths are returned unchanged.
func ExpandPath(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path[1:], "/")), nil
}
