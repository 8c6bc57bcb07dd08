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
package platform

import (
	"io/fs"
	"path/filepath"
	"strings"
	"testing/fstest"
)

// MapFS wraps testing/fstest.MapFS to implement our FileSystem interface
// This provides an in-memory filesystem for testing with predictable paths
type MapFS struct {
	fstest.MapFS
}

// NewMapFS creates a new in-memory filesystem from a map of file contents
func NewMapFS(files map[string]string) *MapFS {
	mapFS := make(fstest.MapFS)
	for path, content := range files {
		mapFS[path] = &fstest.MapFile{
			Data: []byte(content),
			Mode: 0644,
		}
	}
	return &MapFS{MapFS: mapFS}
}

// cleanMapFSPath adapts an absolute, OS-style path (as every caller in this
// module uses, following layout.Layout) to the slash-relative form
// fs.ValidPath requires of an fs.FS, mirroring MapFileSystem.cleanPath.
func cleanMapFSPath(name string) string {
	cleaned := filepath.Clean(name)
	if filepath.IsAbs(cleaned) {
		cleaned = strings.TrimPrefix(cleaned, "/")
	}
	if cleaned == "" {
		return "."
	}
	return cleaned
}

func (m *MapFS) WriteFile(name string, data []byte, perm fs.FileMode) error {
	m.MapFS[cleanMapFSPath(name)] = &fstest.MapFile{
		Data: data,
		Mode: perm,
	}
	return nil
}

func (m *MapFS) ReadFile(name string) ([]byte, error) {
	return fs.ReadFile(m.MapFS, cleanMapFSPath(name))
}

func (m *MapFS) Remove(name string) error {
	delete(m.MapFS, cleanMapFSPath(name))
	return nil
}

func (m *MapFS) MkdirAll(path string, perm fs.FileMode) error {
	// MapFS doesn't need explicit directories
	return nil
}

func (m *MapFS) ReadDir(name string) ([]fs.DirEntry, error) {
	return fs.ReadDir(m.MapFS, cleanMapFSPath(name))
}

func (m *MapFS) TempDir() string {
	return "/tmp"
}

func (m *MapFS) Stat(name string) (fs.FileInfo, error) {
	return fs.Stat(m.MapFS, cleanMapFSPath(name))
}

func (m *MapFS) Exists(path string) bool {
	cleaned := cleanMapFSPath(path)
	if _, err := fs.Stat(m.MapFS, cleaned); err == nil {
		return true
	}
	// A directory with no explicit entry still "exists" if some file is
	// nested beneath it, matching MapFileSystem.Exists' prefix check.
	prefix := cleaned + "/"
	for p := range m.MapFS {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

func (m *MapFS) Open(name string) (fs.File, error) {
	return m.MapFS.Open(cleanMapFSPath(name))
}
