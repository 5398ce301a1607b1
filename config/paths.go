// Copyright © 2025 Backdrop contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: config/paths.go
// Summary: Path helpers for backdrop configuration and runtime files.

package config

import (
	"os"
	"path/filepath"
)

func configRoot() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "backdrop"), nil
}

func configPath() (string, error) {
	root, err := configRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, configName), nil
}

// DefaultSocketPath is where the host listens when the config does not name
// a socket.
func DefaultSocketPath() string {
	if runtime := os.Getenv("XDG_RUNTIME_DIR"); runtime != "" {
		return filepath.Join(runtime, "backdrop.sock")
	}
	return filepath.Join(os.TempDir(), "backdrop.sock")
}

// DefaultDatabasePath is where window state persists when the config does
// not name a database.
func DefaultDatabasePath() string {
	root, err := configRoot()
	if err != nil {
		return filepath.Join(os.TempDir(), "backdrop.db")
	}
	return filepath.Join(root, "backdrop.db")
}
