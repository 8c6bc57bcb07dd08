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

// Package group administers the shared store's group registry: named
// collections of hosts that share a template tree, independent from the
// per-group manifest of enrolled files (spec.md §4, §6).
package group

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/laszoo/laszoo/internal/layout"
	"github.com/laszoo/laszoo/internal/lzerr"
	"github.com/laszoo/laszoo/internal/manifest"
	"github.com/laszoo/laszoo/internal/platform"
)

// CurrentVersion is written into every groups index created fresh.
const CurrentVersion = "1.0"

// Group is one named collection of member hosts.
type Group struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Hosts       map[string]bool `json:"hosts"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// SortedHosts returns g's member hosts in sorted order.
func (g Group) SortedHosts() []string {
	hosts := make([]string, 0, len(g.Hosts))
	for h := range g.Hosts {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}

// Index is the on-disk schema at <root>/groups.json.
type Index struct {
	Version string           `json:"version"`
	Groups  map[string]Group `json:"groups"`
}

func emptyIndex() *Index {
	return &Index{Version: CurrentVersion, Groups: map[string]Group{}}
}

// Manager administers the groups index against a shared-store layout.
type Manager struct {
	FS     platform.FileSystem
	Layout layout.Layout
	Clock  platform.TimeProvider
}

// NewManager returns a Manager rooted at l, using clock for created/updated
// timestamps (tests can supply platform.NewMockTimeProvider).
func NewManager(fs platform.FileSystem, l layout.Layout, clock platform.TimeProvider) *Manager {
	return &Manager{FS: fs, Layout: l, Clock: clock}
}

func (m *Manager) load() (*Index, error) {
	path := m.Layout.GroupsIndex()
	if !m.FS.Exists(path) {
		return emptyIndex(), nil
	}
	data, err := m.FS.ReadFile(path)
	if err != nil {
		return nil, lzerr.IO(path, err)
	}
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, lzerr.Serialization(path, err)
	}
	if idx.Groups == nil {
		idx.Groups = map[string]Group{}
	}
	if idx.Version == "" {
		idx.Version = CurrentVersion
	}
	return &idx, nil
}

func (m *Manager) save(idx *Index) error {
	path := m.Layout.GroupsIndex()
	if err := m.FS.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return lzerr.IO(path, err)
	}
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return lzerr.Serialization(path, err)
	}
	if err := m.FS.WriteFile(path, data, 0o644); err != nil {
		return lzerr.IO(path, err)
	}
	return nil
}

// Create registers a new, empty group. It is an error to create a group
// that already exists.
func (m *Manager) Create(name, description string) error {
	idx, err := m.load()
	if err != nil {
		return err
	}
	if _, exists := idx.Groups[name]; exists {
		return lzerr.Wrap(lzerr.KindConfig, name, fmt.Sprintf("group %q already exists", name), nil)
	}
	now := m.Clock.Now()
	idx.Groups[name] = Group{
		Name:        name,
		Description: description,
		Hosts:       map[string]bool{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return m.save(idx)
}

// Delete removes group name. Unless force is set, it refuses to delete a
// group that still has member hosts or enrolled files, matching
// GroupManager::delete_group's safety checks.
func (m *Manager) Delete(name string, force bool) error {
	idx, err := m.load()
	if err != nil {
		return err
	}
	g, ok := idx.Groups[name]
	if !ok {
		return lzerr.GroupNotFound(name)
	}
	if !force {
		if len(g.Hosts) > 0 {
			return lzerr.Wrap(lzerr.KindConfig, name,
				fmt.Sprintf("group %q has %d hosts; use force to delete anyway", name, len(g.Hosts)), nil)
		}
		count, err := m.countEnrolledFilesInGroup(name)
		if err != nil {
			return err
		}
		if count > 0 {
			return lzerr.Wrap(lzerr.KindConfig, name,
				fmt.Sprintf("group %q has %d enrolled files; use force to delete anyway", name, count), nil)
		}
	}
	delete(idx.Groups, name)
	return m.save(idx)
}

// List returns every group, sorted by name.
func (m *Manager) List() ([]Group, error) {
	idx, err := m.load()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(idx.Groups))
	for n := range idx.Groups {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]Group, 0, len(names))
	for _, n := range names {
		out = append(out, idx.Groups[n])
	}
	return out, nil
}

// AddHost adds hostname to group groupName. Adding an already-present host
// is a no-op (not an error), matching add_host_to_group's warn-and-continue
// behavior.
func (m *Manager) AddHost(groupName, hostname string) error {
	idx, err := m.load()
	if err != nil {
		return err
	}
	g, ok := idx.Groups[groupName]
	if !ok {
		return lzerr.GroupNotFound(groupName)
	}
	if g.Hosts[hostname] {
		return nil
	}
	g.Hosts[hostname] = true
	g.UpdatedAt = m.Clock.Now()
	idx.Groups[groupName] = g
	return m.save(idx)
}

// RemoveHost removes hostname from group groupName. Removing an absent
// host is a no-op.
func (m *Manager) RemoveHost(groupName, hostname string) error {
	idx, err := m.load()
	if err != nil {
		return err
	}
	g, ok := idx.Groups[groupName]
	if !ok {
		return lzerr.GroupNotFound(groupName)
	}
	if !g.Hosts[hostname] {
		return nil
	}
	delete(g.Hosts, hostname)
	g.UpdatedAt = m.Clock.Now()
	idx.Groups[groupName] = g
	return m.save(idx)
}

// IsHostInGroup reports whether hostname is a member of groupName. A
// nonexistent group is treated as having no members, not an error.
func (m *Manager) IsHostInGroup(groupName, hostname string) (bool, error) {
	idx, err := m.load()
	if err != nil {
		return false, err
	}
	g, ok := idx.Groups[groupName]
	if !ok {
		return false, nil
	}
	return g.Hosts[hostname], nil
}

// GroupsForHost returns the sorted names of every group hostname belongs to.
func (m *Manager) GroupsForHost(hostname string) ([]string, error) {
	idx, err := m.load()
	if err != nil {
		return nil, err
	}
	var names []string
	for name, g := range idx.Groups {
		if g.Hosts[hostname] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Rename renames oldName to newName: moves the group's template and
// manifest tree, repoints every machine manifest entry's Group field, and
// updates the groups index. It refuses to clobber an existing group.
func (m *Manager) Rename(oldName, newName string) error {
	idx, err := m.load()
	if err != nil {
		return err
	}
	g, ok := idx.Groups[oldName]
	if !ok {
		return lzerr.GroupNotFound(oldName)
	}
	if _, exists := idx.Groups[newName]; exists {
		return lzerr.Wrap(lzerr.KindConfig, newName, fmt.Sprintf("group %q already exists", newName), nil)
	}

	if err := m.moveGroupDir(oldName, newName); err != nil {
		return err
	}
	if err := m.renameGroupInManifests(oldName, newName); err != nil {
		return err
	}

	g.Name = newName
	g.UpdatedAt = m.Clock.Now()
	delete(idx.Groups, oldName)
	idx.Groups[newName] = g
	return m.save(idx)
}

// moveGroupDir copies oldName's group directory to newName's and removes
// the original, tolerating a group that has never had a template written.
func (m *Manager) moveGroupDir(oldName, newName string) error {
	src := m.Layout.GroupDir(oldName)
	if !m.FS.Exists(src) {
		return nil
	}
	if err := m.copyTree(src, m.Layout.GroupDir(newName)); err != nil {
		return err
	}
	return m.removeTree(src)
}

func (m *Manager) copyTree(src, dst string) error {
	entries, err := m.FS.ReadDir(src)
	if err != nil {
		return lzerr.IO(src, err)
	}
	if err := m.FS.MkdirAll(dst, 0o755); err != nil {
		return lzerr.IO(dst, err)
	}
	for _, e := range entries {
		s := filepath.Join(src, e.Name())
		d := filepath.Join(dst, e.Name())
		if e.IsDir() {
			if err := m.copyTree(s, d); err != nil {
				return err
			}
			continue
		}
		data, err := m.FS.ReadFile(s)
		if err != nil {
			return lzerr.IO(s, err)
		}
		if err := m.FS.WriteFile(d, data, 0o644); err != nil {
			return lzerr.IO(d, err)
		}
	}
	return nil
}

func (m *Manager) removeTree(dir string) error {
	entries, err := m.FS.ReadDir(dir)
	if err != nil {
		return lzerr.IO(dir, err)
	}
	for _, e := range entries {
		p := filepath.Join(dir, e.Name())
		if e.IsDir() {
			if err := m.removeTree(p); err != nil {
				return err
			}
			continue
		}
		if err := m.FS.Remove(p); err != nil {
			return lzerr.IO(p, err)
		}
	}
	return m.FS.Remove(dir)
}

// renameGroupInManifests repoints every machine manifest entry whose Group
// is oldName at newName, so `laszoo status`/`sync` keep resolving
// ownership correctly after the rename.
func (m *Manager) renameGroupInManifests(oldName, newName string) error {
	machinesDir := filepath.Join(m.Layout.Root, "machines")
	if !m.FS.Exists(machinesDir) {
		return nil
	}
	entries, err := m.FS.ReadDir(machinesDir)
	if err != nil {
		return lzerr.IO(machinesDir, err)
	}

	store := manifest.NewStore(m.FS)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := m.Layout.MachineManifest(e.Name())
		mf, err := store.Load(path)
		if err != nil {
			return err
		}
		changed := false
		for logicalPath, entry := range mf.Entries {
			if entry.Group == oldName {
				entry.Group = newName
				mf.Entries[logicalPath] = entry
				changed = true
			}
		}
		if changed {
			if err := store.Save(path, mf); err != nil {
				return err
			}
		}
	}
	return nil
}

// countEnrolledFilesInGroup scans every machine manifest under the shared
// store and counts entries whose Group matches name, used by Delete's
// safety check.
func (m *Manager) countEnrolledFilesInGroup(name string) (int, error) {
	machinesDir := filepath.Join(m.Layout.Root, "machines")
	if !m.FS.Exists(machinesDir) {
		return 0, nil
	}
	entries, err := m.FS.ReadDir(machinesDir)
	if err != nil {
		return 0, lzerr.IO(machinesDir, err)
	}

	store := manifest.NewStore(m.FS)
	count := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		mf, err := store.Load(m.Layout.MachineManifest(e.Name()))
		if err != nil {
			return 0, err
		}
		for _, entry := range mf.Entries {
			if entry.Group == name {
				count++
			}
		}
	}
	return count, nil
}
