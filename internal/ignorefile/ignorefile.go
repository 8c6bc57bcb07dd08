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

// Package ignorefile loads the shared store's optional top-level
// .gitignore so the template-tree scan and directory-enrollment walk can
// skip the same paths a human collaborator already asked git to ignore.
package ignorefile

import (
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/laszoo/laszoo/internal/platform"
)

// Matcher reports whether a relative path matches the loaded ignore
// rules. A nil *Matcher, and the empty one Load returns for a missing
// .gitignore, match nothing.
type Matcher struct {
	gi *ignore.GitIgnore
}

// Load reads <root>/.gitignore via fs, returning a Matcher that matches
// nothing if the file does not exist.
func Load(fs platform.FileSystem, rootGitignorePath string) *Matcher {
	if !fs.Exists(rootGitignorePath) {
		return &Matcher{}
	}
	data, err := fs.ReadFile(rootGitignorePath)
	if err != nil {
		return &Matcher{}
	}
	return &Matcher{gi: ignore.CompileIgnoreLines(strings.Split(string(data), "\n")...)}
}

// MatchesPath reports whether relPath (relative to root, no leading
// slash) is ignored. isDir should be true when relPath names a
// directory, matching go-gitignore's trailing-slash convention.
func (m *Matcher) MatchesPath(relPath string, isDir bool) bool {
	if m == nil || m.gi == nil {
		return false
	}
	if isDir {
		relPath += "/"
	}
	return m.gi.MatchesPath(relPath)
}
