// Copyright © 2025 Backdrop contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: config/defaults.go
// Summary: Default values for the backdrop configuration file.

package config

func applyDefaults(cfg Config) {
	if cfg == nil {
		return
	}
	cfg.RegisterDefaults("", Section{
		"engine": "slide",
		"labels": false,
	})
	cfg.RegisterDefaults("server", Section{
		"socket":   DefaultSocketPath(),
		"database": DefaultDatabasePath(),
	})
	cfg.RegisterDefaults("window", Section{
		// -1 asks the session for the full available extent.
		"width":  -1,
		"height": -1,
	})
}
