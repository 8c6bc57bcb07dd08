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

package group_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laszoo/laszoo/internal/group"
	"github.com/laszoo/laszoo/internal/layout"
	"github.com/laszoo/laszoo/internal/platform"
)

func newManager() (*group.Manager, *platform.MockTimeProvider) {
	fs := platform.NewMapFS(nil)
	clock := platform.NewMockTimeProvider(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return group.NewManager(fs, layout.New("/mnt/laszoo"), clock), clock
}

func TestManager_CreateThenList(t *testing.T) {
	m, _ := newManager()
	require.NoError(t, m.Create("web", "web tier"))

	groups, err := m.List()
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "web", groups[0].Name)
	assert.Equal(t, "web tier", groups[0].Description)
	assert.Empty(t, groups[0].Hosts)
}

func TestManager_CreateDuplicateFails(t *testing.T) {
	m, _ := newManager()
	require.NoError(t, m.Create("web", ""))
	require.Error(t, m.Create("web", ""))
}

func TestManager_AddHostThenIsHostInGroup(t *testing.T) {
	m, clock := newManager()
	require.NoError(t, m.Create("web", ""))
	clock.AdvanceTime(time.Hour)
	require.NoError(t, m.AddHost("web", "web-01"))

	in, err := m.IsHostInGroup("web", "web-01")
	require.NoError(t, err)
	assert.True(t, in)

	groups, err := m.GroupsForHost("web-01")
	require.NoError(t, err)
	assert.Equal(t, []string{"web"}, groups)
}

func TestManager_AddHostToMissingGroupFails(t *testing.T) {
	m, _ := newManager()
	require.Error(t, m.AddHost("ghost", "web-01"))
}

func TestManager_RemoveHostIsNoopWhenAbsent(t *testing.T) {
	m, _ := newManager()
	require.NoError(t, m.Create("web", ""))
	require.NoError(t, m.RemoveHost("web", "not-a-member"))
}

func TestManager_DeleteRefusesNonEmptyGroupWithoutForce(t *testing.T) {
	m, _ := newManager()
	require.NoError(t, m.Create("web", ""))
	require.NoError(t, m.AddHost("web", "web-01"))

	require.Error(t, m.Delete("web", false))
	require.NoError(t, m.Delete("web", true))

	_, err := m.IsHostInGroup("web", "web-01")
	require.NoError(t, err)
}

func TestManager_DeleteMissingGroupFails(t *testing.T) {
	m, _ := newManager()
	require.Error(t, m.Delete("ghost", false))
}
