// Copyright © 2025 Backdrop contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: store/store.go
// Summary: SQLite-backed persistence of per-window engine state so a
// restarted host can restore the last known offsets and visibility.

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schemaVersion = 1

// WindowState is the persisted snapshot for one window token.
type WindowState struct {
	Token     string
	XOffset   float64
	YOffset   float64
	Visible   bool
	Width     int
	Height    int
	UpdatedAt time.Time
}

// Store persists window state in a local SQLite database. All operations are
// best-effort from the caller's point of view; the host logs and continues
// on failure.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path, creating parent directories
// and the schema as needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// SQLite handles one writer at a time; serialize access through a
	// single connection instead of bouncing on SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_info (version INTEGER NOT NULL);

		CREATE TABLE IF NOT EXISTS window_state (
			token      TEXT PRIMARY KEY,
			x_offset   REAL NOT NULL DEFAULT 0,
			y_offset   REAL NOT NULL DEFAULT 0,
			visible    INTEGER NOT NULL DEFAULT 1,
			width      INTEGER NOT NULL DEFAULT 0,
			height     INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("store: create schema: %w", err)
	}

	var version int
	err = s.db.QueryRow(`SELECT version FROM schema_info`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		_, err = s.db.Exec(`INSERT INTO schema_info (version) VALUES (?)`, schemaVersion)
	}
	if err != nil {
		return fmt.Errorf("store: schema version: %w", err)
	}
	return nil
}

// SaveOffsets upserts the latest offsets for a token.
func (s *Store) SaveOffsets(token string, x, y float64) error {
	_, err := s.db.Exec(`
		INSERT INTO window_state (token, x_offset, y_offset, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(token) DO UPDATE SET
			x_offset = excluded.x_offset,
			y_offset = excluded.y_offset,
			updated_at = excluded.updated_at
	`, token, x, y, time.Now().UTC())
	return err
}

// SaveVisibility upserts the latest visibility for a token.
func (s *Store) SaveVisibility(token string, visible bool) error {
	v := 0
	if visible {
		v = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO window_state (token, visible, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(token) DO UPDATE SET
			visible = excluded.visible,
			updated_at = excluded.updated_at
	`, token, v, time.Now().UTC())
	return err
}

// SaveGeometry upserts the last requested geometry for a token.
func (s *Store) SaveGeometry(token string, width, height int) error {
	_, err := s.db.Exec(`
		INSERT INTO window_state (token, width, height, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(token) DO UPDATE SET
			width = excluded.width,
			height = excluded.height,
			updated_at = excluded.updated_at
	`, token, width, height, time.Now().UTC())
	return err
}

// Load returns the stored state for a token; ok is false when the token has
// never been seen.
func (s *Store) Load(token string) (state WindowState, ok bool, err error) {
	var visible int
	err = s.db.QueryRow(`
		SELECT token, x_offset, y_offset, visible, width, height, updated_at
		FROM window_state WHERE token = ?
	`, token).Scan(&state.Token, &state.XOffset, &state.YOffset, &visible,
		&state.Width, &state.Height, &state.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return WindowState{}, false, nil
	}
	if err != nil {
		return WindowState{}, false, err
	}
	state.Visible = visible != 0
	return state, true, nil
}

// Forget removes the stored state for a token.
func (s *Store) Forget(token string) error {
	_, err := s.db.Exec(`DELETE FROM window_state WHERE token = ?`, token)
	return err
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
