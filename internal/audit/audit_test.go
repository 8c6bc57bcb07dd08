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

package audit_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laszoo/laszoo/internal/audit"
	"github.com/laszoo/laszoo/internal/layout"
	"github.com/laszoo/laszoo/internal/platform"
)

func newTrail() (*audit.Trail, *platform.MapFS) {
	fs := platform.NewMapFS(nil)
	l := layout.New("/mnt/laszoo")
	clock := platform.NewMockTimeProvider(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	return audit.New(fs, l, clock, "web-01"), fs
}

func TestRecord_WritesOneJSONFilePerAction(t *testing.T) {
	trail, fs := newTrail()
	group := "web"

	id, err := trail.Record("reconcile", "/etc/app.conf", &group, audit.Completed, "merged")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	entries, err := fs.ReadDir(layout.New("/mnt/laszoo").ActionsDir("web-01"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestForGroup_FiltersAndSortsByTimestamp(t *testing.T) {
	trail, _ := newTrail()
	clock := platform.NewMockTimeProvider(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	trail.Clock = clock
	web := "web"
	db := "db"

	_, err := trail.Record("enroll", "/etc/a", &web, audit.Completed, "")
	require.NoError(t, err)
	clock.AdvanceTime(time.Second)
	_, err = trail.Record("enroll", "/etc/b", &db, audit.Completed, "")
	require.NoError(t, err)
	clock.AdvanceTime(time.Second)
	_, err = trail.Record("enroll", "/etc/c", &web, audit.Completed, "")
	require.NoError(t, err)

	records, err := trail.ForGroup("web")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "/etc/a", records[0].Target)
	assert.Equal(t, "/etc/c", records[1].Target)
}

func TestForGroup_EmptyWhenActionsDirMissing(t *testing.T) {
	trail, _ := newTrail()
	records, err := trail.ForGroup("web")
	require.NoError(t, err)
	assert.Empty(t, records)
}
