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

// debounceQuiet is the quiet-time window spec.md §4.6 invariant 4 and
// scheduling steps c/d require before a buffer is processed.
const debounceQuiet = 500 * time.Millisecond

// debounceBuffer accumulates raw path events and reports when it has been
// quiet for debounceQuiet, the same shape as the teacher's
// fileWatcher.debouncedFiles map but polled cooperatively instead of via a
// timer callback, matching the single-driver-loop model spec.md requires.
type debounceBuffer struct {
	mu       sync.Mutex
	clock    platform.TimeProvider
	lastSeen map[string]time.Time
}

func newDebounceBuffer(clock platform.TimeProvider) *debounceBuffer {
	return &debounceBuffer{clock: clock, lastSeen: map[string]time.Time{}}
}

// Record notes that path changed just now.
func (b *debounceBuffer) Record(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastSeen[path] = b.clock.Now()
}

// Empty reports whether the buffer currently holds nothing.
func (b *debounceBuffer) Empty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lastSeen) == 0
}

// Quiet reports whether every buffered path's most recent event is at
// least debounceQuiet in the past.
func (b *debounceBuffer) Quiet() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.lastSeen) == 0 {
		return false
	}
	now := b.clock.Now()
	for _, t := range b.lastSeen {
		if now.Sub(t) < debounceQuiet {
			return false
		}
	}
	return true
}

// Drain empties the buffer and returns every path it held.
func (b *debounceBuffer) Drain() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.lastSeen))
	for p := range b.lastSeen {
		out = append(out, p)
	}
	b.lastSeen = map[string]time.Time{}
	return out
}
