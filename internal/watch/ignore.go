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

package watch

import (
	"sync"
	"time"

	"github.com/laszoo/laszoo/internal/platform"
)

// ignoreExpiry is the window a path stays on the ignore list after the
// core is about to write it, per spec.md §4.6 invariant 1.
const ignoreExpiry = 5 * time.Second

// ignoreSet suppresses filesystem events the core's own writes generated,
// the feedback-loop guard invariant 1 describes.
type ignoreSet struct {
	mu      sync.Mutex
	clock   platform.TimeProvider
	expires map[string]time.Time
}

func newIgnoreSet(clock platform.TimeProvider) *ignoreSet {
	return &ignoreSet{clock: clock, expires: map[string]time.Time{}}
}

// Add marks path to be ignored for ignoreExpiry, called right before the
// core writes to it.
func (s *ignoreSet) Add(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expires[path] = s.clock.Now().Add(ignoreExpiry)
}

// Contains reports whether path is currently ignored, lazily evicting it
// if its expiry has passed.
func (s *ignoreSet) Contains(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.expires[path]
	if !ok {
		return false
	}
	if s.clock.Now().After(exp) {
		delete(s.expires, path)
		return false
	}
	return true
}

// stringSet is a small set of paths, used for the local- and
// committed-template-change tracking sets (invariants 2 and 3).
type stringSet struct {
	mu      sync.Mutex
	members map[string]bool
}

func newStringSet() *stringSet {
	return &stringSet{members: map[string]bool{}}
}

func (s *stringSet) Add(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[path] = true
}

func (s *stringSet) Remove(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members, path)
}

func (s *stringSet) Contains(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.members[path]
}

// Snapshot returns every member not already present in exclude, used by
// step d to pick the next batch to commit. It leaves the set unchanged;
// members are removed once their commit completes.
func (s *stringSet) Snapshot(exclude *stringSet) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for p := range s.members {
		if exclude == nil || !exclude.Contains(p) {
			out = append(out, p)
		}
	}
	return out
}
