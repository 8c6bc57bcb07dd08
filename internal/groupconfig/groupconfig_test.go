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

package groupconfig_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laszoo/laszoo/internal/groupconfig"
	"github.com/laszoo/laszoo/internal/platform"
)

func TestLoad_MissingFileYieldsDefaultAction(t *testing.T) {
	fs := platform.NewMapFS(nil)
	store := groupconfig.NewStore(fs)

	cfg, err := store.Load("/mnt/laszoo/groups/web/config.json")
	require.NoError(t, err)
	assert.Equal(t, groupconfig.Default, cfg.EffectiveAction())
	assert.False(t, cfg.HasTriggers())
}

func TestSaveThenLoad_RoundTrips(t *testing.T) {
	fs := platform.NewMapFS(nil)
	store := groupconfig.NewStore(fs)
	path := "/mnt/laszoo/groups/web/config.json"

	cfg := groupconfig.Config{
		SyncAction:    groupconfig.Freeze,
		BeforeTrigger: "systemctl stop app",
		AfterTrigger:  "systemctl start app",
	}
	require.NoError(t, store.Save(path, cfg))

	loaded, err := store.Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
	assert.Equal(t, groupconfig.Freeze, loaded.EffectiveAction())
	assert.True(t, loaded.HasTriggers())
}

func TestEffectiveAction_EmptyFallsBackToConverge(t *testing.T) {
	cfg := groupconfig.Config{}
	assert.Equal(t, groupconfig.Converge, cfg.EffectiveAction())
}
