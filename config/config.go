// Copyright © 2025 Backdrop contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: config/config.go
// Summary: JSON configuration store for the backdrop host.

package config

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"
)

const configName = "backdrop.json"

// Config stores configuration sections as JSON-compatible data.
type Config map[string]interface{}

// Section stores key/value pairs for a configuration section.
type Section map[string]interface{}

var (
	mu      sync.RWMutex
	once    sync.Once
	system  Config
	loadErr error
)

// Err returns the most recent config load error.
func Err() error {
	once.Do(initStore)
	mu.RLock()
	defer mu.RUnlock()
	return loadErr
}

// System returns the host configuration (backdrop.json).
func System() Config {
	once.Do(initStore)
	mu.RLock()
	defer mu.RUnlock()
	return system
}

// Reload refreshes the config from disk.
func Reload() error {
	once.Do(initStore)
	mu.Lock()
	defer mu.Unlock()
	loadErr = loadLocked()
	return loadErr
}

// Save persists the current config to disk.
func Save() error {
	once.Do(initStore)
	mu.Lock()
	defer mu.Unlock()
	path, err := configPath()
	if err != nil {
		return err
	}
	return writeConfig(path, system)
}

// Set replaces the in-memory config.
func Set(cfg Config) {
	once.Do(initStore)
	mu.Lock()
	defer mu.Unlock()
	if cfg == nil {
		cfg = make(Config)
	}
	system = Clone(cfg)
}

func initStore() {
	mu.Lock()
	defer mu.Unlock()
	system = make(Config)
	loadErr = loadLocked()
}

func loadLocked() error {
	path, err := configPath()
	if err != nil {
		log.Printf("Config: Failed to resolve config path: %v", err)
		system = make(Config)
		applyDefaults(system)
		return err
	}

	cfg, exists, readErr := readConfig(path)
	if readErr != nil {
		log.Printf("Config: Failed to read config %s: %v", path, readErr)
		cfg = make(Config)
	}
	if cfg == nil {
		cfg = make(Config)
	}
	applyDefaults(cfg)

	// First run: leave a complete file behind so users have something to
	// edit.
	if !exists && readErr == nil {
		if err := writeConfig(path, cfg); err != nil {
			log.Printf("Config: Failed to write default config: %v", err)
			readErr = err
		}
	}

	system = cfg
	return readErr
}

func readConfig(path string) (Config, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, true, err
	}
	return cfg, true, nil
}

func writeConfig(path string, cfg Config) error {
	if cfg == nil {
		cfg = make(Config)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
