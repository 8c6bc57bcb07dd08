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

// Package manifest loads and saves the group and machine manifests
// (spec.md §3, §4.2): a versioned JSON mapping from logical path to
// enrollment entry.
package manifest

import (
	"encoding/json"
	"path/filepath"
	"sort"
	"time"

	"github.com/laszoo/laszoo/internal/lzerr"
	"github.com/laszoo/laszoo/internal/platform"
)

// CurrentVersion is written into every manifest created fresh.
const CurrentVersion = "1.0"

// DirectoryChecksum is the sentinel fingerprint for directory enrollments.
const DirectoryChecksum = "directory"

// Entry is one enrollment record (spec.md §3).
type Entry struct {
	OriginalPath string     `json:"original_path"`
	Checksum     string     `json:"checksum"`
	Group        string     `json:"group"`
	EnrolledAt   time.Time  `json:"enrolled_at"`
	LastSynced   *time.Time `json:"last_synced,omitempty"`
	TemplatePath string     `json:"template_path,omitempty"`
	IsHybrid     bool       `json:"is_hybrid,omitempty"`
}

// IsDirectory reports whether e records a directory enrollment.
func (e Entry) IsDirectory() bool {
	return e.Checksum == DirectoryChecksum
}

// Manifest is the on-disk schema described in spec.md §6.
type Manifest struct {
	Version string           `json:"version"`
	Entries map[string]Entry `json:"entries"`
}

// Empty returns a fresh manifest at CurrentVersion.
func Empty() *Manifest {
	return &Manifest{Version: CurrentVersion, Entries: map[string]Entry{}}
}

// SortedPaths returns the manifest's logical paths in sorted order, so
// callers that serialize or iterate get deterministic output (spec.md §9).
func (m *Manifest) SortedPaths() []string {
	paths := make([]string, 0, len(m.Entries))
	for p := range m.Entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Store loads and saves manifests against a platform.FileSystem, matching
// spec.md §4.2's load/save contract: a missing file loads as an empty
// manifest; save creates parent directories and writes pretty JSON with
// sorted keys for stable history diffs.
type Store struct {
	FS platform.FileSystem
}

// NewStore binds a Store to fs.
func NewStore(fs platform.FileSystem) *Store {
	return &Store{FS: fs}
}

// Load reads the manifest at path, returning an empty manifest if the
// file does not exist.
func (s *Store) Load(path string) (*Manifest, error) {
	if !s.FS.Exists(path) {
		return Empty(), nil
	}
	data, err := s.FS.ReadFile(path)
	if err != nil {
		return nil, lzerr.IO(path, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, lzerr.Serialization(path, err)
	}
	if m.Version == "" {
		m.Version = CurrentVersion
	}
	if m.Entries == nil {
		m.Entries = map[string]Entry{}
	}
	return &m, nil
}

// Save pretty-prints m with sorted keys and writes it to path, creating
// parent directories as needed.
func (s *Store) Save(path string, m *Manifest) error {
	if m.Version == "" {
		m.Version = CurrentVersion
	}
	if err := s.FS.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return lzerr.IO(path, err)
	}
	data, err := marshalSorted(m)
	if err != nil {
		return lzerr.Serialization(path, err)
	}
	if err := s.FS.WriteFile(path, data, 0o644); err != nil {
		return lzerr.IO(path, err)
	}
	return nil
}

// marshalSorted produces deterministic JSON by relying on encoding/json,
// which sorts map keys when marshaling; the entries map is written as is.
func marshalSorted(m *Manifest) ([]byte, error) {
	type onDisk struct {
		Version string           `json:"version"`
		Entries map[string]Entry `json:"entries"`
	}
	out := onDisk{Version: m.Version, Entries: m.Entries}
	return json.MarshalIndent(out, "", "  ")
}
