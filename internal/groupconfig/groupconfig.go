/*
Copyright © 2025 The laszoo Authors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package groupconfig loads and saves a group's config.json: the sync
// strategy and optional before/after trigger commands (spec.md §3, §6).
package groupconfig

import (
	"encoding/json"
	"path/filepath"

	"github.com/laszoo/laszoo/internal/lzerr"
	"github.com/laszoo/laszoo/internal/platform"
)

// Action is a group's configured sync strategy (spec.md §4.5).
type Action string

const (
	Converge Action = "converge"
	Rollback Action = "rollback"
	Forward  Action = "forward"
	Freeze   Action = "freeze"
	Drift    Action = "drift"
	Auto     Action = "auto"
)

// Default is the strategy assumed when a group has no config.json, or its
// sync_action field is empty (spec.md §3).
const Default = Converge

// Config is the on-disk schema at group_config(g).
type Config struct {
	BeforeTrigger string `json:"before_trigger,omitempty"`
	AfterTrigger  string `json:"after_trigger,omitempty"`
	SyncAction    Action `json:"sync_action,omitempty"`
}

// EffectiveAction returns c's sync action, or Default if unset.
func (c Config) EffectiveAction() Action {
	if c.SyncAction == "" {
		return Default
	}
	return c.SyncAction
}

// HasTriggers reports whether c sets any before/after trigger command.
func (c Config) HasTriggers() bool {
	return c.BeforeTrigger != "" || c.AfterTrigger != ""
}

// Store loads and saves a group's config.json against a platform.FileSystem.
type Store struct {
	FS platform.FileSystem
}

// NewStore returns a Store bound to fs.
func NewStore(fs platform.FileSystem) *Store {
	return &Store{FS: fs}
}

// Load reads the config at path, returning a zero-value Config (which
// EffectiveAction resolves to Default) when the file does not exist.
func (s *Store) Load(path string) (Config, error) {
	if !s.FS.Exists(path) {
		return Config{}, nil
	}
	data, err := s.FS.ReadFile(path)
	if err != nil {
		return Config{}, lzerr.IO(path, err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, lzerr.Serialization(path, err)
	}
	return cfg, nil
}

// Save writes cfg to path, creating parent directories as needed.
func (s *Store) Save(path string, cfg Config) error {
	if err := s.FS.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return lzerr.IO(path, err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return lzerr.Serialization(path, err)
	}
	if err := s.FS.WriteFile(path, data, 0o644); err != nil {
		return lzerr.IO(path, err)
	}
	return nil
}
