// Copyright © 2025 Backdrop contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"os"
	"sync"
	"testing"
)

func resetStore() {
	once = sync.Once{}
	system = nil
	loadErr = nil
}

func TestDefaultsWrittenOnFirstRun(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	resetStore()

	cfg := System()
	if cfg.GetString("", "engine", "") != "slide" {
		t.Fatalf("expected default engine")
	}
	if cfg.GetInt("window", "width", 0) != -1 {
		t.Fatalf("expected fill-parent default width")
	}

	path, err := configPath()
	if err != nil {
		t.Fatalf("configPath: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}

	var disk Config
	if err := json.Unmarshal(data, &disk); err != nil {
		t.Fatalf("unmarshal config: %v", err)
	}
	if disk.Section("server") == nil {
		t.Fatalf("expected server section on disk")
	}
}

func TestSaveWritesUpdates(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	resetStore()

	Set(Config{"engine": "solid"})
	if err := Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	path, err := configPath()
	if err != nil {
		t.Fatalf("configPath: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}

	var disk Config
	if err := json.Unmarshal(data, &disk); err != nil {
		t.Fatalf("unmarshal config: %v", err)
	}
	if got := disk.GetString("", "engine", ""); got != "solid" {
		t.Fatalf("expected engine solid, got %q", got)
	}
}

func TestUserValuesSurviveDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	resetStore()

	Set(Config{"server": Section{"socket": "/run/custom.sock"}})
	if err := Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	resetStore()

	cfg := System()
	if got := cfg.GetString("server", "socket", ""); got != "/run/custom.sock" {
		t.Fatalf("user socket overridden: %q", got)
	}
	if got := cfg.GetString("server", "database", ""); got == "" {
		t.Fatalf("missing keys must still get defaults")
	}
}

func TestTypedGetters(t *testing.T) {
	cfg := Config{
		"labels": "true",
		"window": map[string]interface{}{
			"width": float64(120),
		},
	}
	if !cfg.GetBool("", "labels", false) {
		t.Fatalf("string bool not parsed")
	}
	if cfg.GetInt("window", "width", 0) != 120 {
		t.Fatalf("json float not converted to int")
	}
	if cfg.GetString("window", "missing", "fallback") != "fallback" {
		t.Fatalf("missing key must fall back")
	}
}
