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

package watch_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laszoo/laszoo/internal/layout"
	"github.com/laszoo/laszoo/internal/manifest"
	"github.com/laszoo/laszoo/internal/platform"
	"github.com/laszoo/laszoo/internal/watch"
)

const root = "/mnt/laszoo"

func newCore(t *testing.T) (*watch.Core, *platform.MapFS, layout.Layout, *platform.MockTimeProvider, *platform.MockFileWatcher) {
	t.Helper()
	fs := platform.NewMapFS(nil)
	l := layout.New(root)
	clock := platform.NewMockTimeProvider(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	mw := platform.NewMockFileWatcher()
	c := watch.New(fs, mw, clock, l, "web-01", []string{"web"})
	return c, fs, l, clock, mw
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func seedManagedFile(t *testing.T, fs *platform.MapFS, l layout.Layout, group, logicalPath, content string) {
	t.Helper()
	require.NoError(t, fs.WriteFile(l.GroupTemplate(group, logicalPath), []byte(content), 0o644))
	require.NoError(t, fs.WriteFile(logicalPath, []byte(content), 0o644))

	store := manifest.NewStore(fs)
	mf, err := store.Load(l.GroupManifest(group))
	require.NoError(t, err)
	mf.Entries[logicalPath] = manifest.Entry{
		OriginalPath: logicalPath,
		Checksum:     sha256Hex(content),
		Group:        group,
	}
	require.NoError(t, store.Save(l.GroupManifest(group), mf))
}

func TestTick_LocalEditIsDebouncedThenReconciled(t *testing.T) {
	c, fs, l, clock, mw := newCore(t)
	require.NoError(t, fs.WriteFile(l.GroupConfig("web"), []byte(`{"sync_action":"converge"}`), 0o644))
	seedManagedFile(t, fs, l, "web", "/etc/app.conf", "k=v\n")
	require.NoError(t, fs.WriteFile("/etc/app.conf", []byte("k=v2\n"), 0o644))

	require.NoError(t, mw.Add("/etc"))
	mw.TriggerEvent("/etc/app.conf", platform.Write)
	require.NoError(t, c.Tick(context.Background()))

	// Not yet quiet for debounceQuiet: buffer still holds the path, no
	// reconciliation has run yet.
	tmplData, err := fs.ReadFile(l.GroupTemplate("web", "/etc/app.conf"))
	require.NoError(t, err)
	assert.Equal(t, "k=v\n", string(tmplData))

	clock.AdvanceTime(600 * time.Millisecond)
	require.NoError(t, c.Tick(context.Background()))

	tmplData, err = fs.ReadFile(l.GroupTemplate("web", "/etc/app.conf"))
	require.NoError(t, err)
	assert.Equal(t, "k=v2\n", string(tmplData), "debounced edit should have been merged into the template")
}

func TestTick_RemoteTemplateChangeIsAppliedWhenAutoApplyEnabled(t *testing.T) {
	c, fs, l, _, _ := newCore(t)
	c.AutoApply = true
	require.NoError(t, fs.WriteFile(l.GroupConfig("web"), []byte(`{"sync_action":"converge"}`), 0o644))
	seedManagedFile(t, fs, l, "web", "/etc/app.conf", "k=v\n")

	// Simulate a remote change: someone else rewrote the group template
	// before the core ever scanned it.
	require.NoError(t, fs.WriteFile(l.GroupTemplate("web", "/etc/app.conf"), []byte("k=v3\n"), 0o644))

	require.NoError(t, c.Tick(context.Background()))

	data, err := fs.ReadFile("/etc/app.conf")
	require.NoError(t, err)
	assert.Equal(t, "k=v3\n", string(data), "first scan should auto-apply the remote template")
}

func TestTick_RemoteTemplateChangeIsIgnoredWhenAutoApplyDisabled(t *testing.T) {
	c, fs, l, _, _ := newCore(t)
	require.NoError(t, fs.WriteFile(l.GroupConfig("web"), []byte(`{"sync_action":"converge"}`), 0o644))
	seedManagedFile(t, fs, l, "web", "/etc/app.conf", "k=v\n")
	require.NoError(t, fs.WriteFile(l.GroupTemplate("web", "/etc/app.conf"), []byte("k=v3\n"), 0o644))

	require.NoError(t, c.Tick(context.Background()))

	data, err := fs.ReadFile("/etc/app.conf")
	require.NoError(t, err)
	assert.Equal(t, "k=v\n", string(data), "without AutoApply the local file must be left alone")
}

func TestTick_NoPanicOnEmptyGroupList(t *testing.T) {
	fs := platform.NewMapFS(nil)
	l := layout.New(root)
	clock := platform.NewMockTimeProvider(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	mw := platform.NewMockFileWatcher()
	c := watch.New(fs, mw, clock, l, "web-01", nil)

	require.NoError(t, c.Tick(context.Background()))
}

func TestMissingFileSweep_RemovesTemplateForDeletedConvergeFile(t *testing.T) {
	c, fs, l, _, _ := newCore(t)
	require.NoError(t, fs.WriteFile(l.GroupConfig("web"), []byte(`{"sync_action":"converge"}`), 0o644))
	require.NoError(t, fs.WriteFile(l.GroupTemplate("web", "/etc/app.conf"), []byte("k=v\n"), 0o644))

	store := manifest.NewStore(fs)
	mf, err := store.Load(l.GroupManifest("web"))
	require.NoError(t, err)
	mf.Entries["/etc/app.conf"] = manifest.Entry{OriginalPath: "/etc/app.conf", Checksum: sha256Hex("k=v\n"), Group: "web"}
	require.NoError(t, store.Save(l.GroupManifest("web"), mf))

	require.NoError(t, c.MissingFileSweep())

	assert.False(t, fs.Exists(l.GroupTemplate("web", "/etc/app.conf")))
}

func TestMissingFileSweep_LeavesFrozenGroupUntouched(t *testing.T) {
	c, fs, l, _, _ := newCore(t)
	require.NoError(t, fs.WriteFile(l.GroupConfig("web"), []byte(`{"sync_action":"freeze"}`), 0o644))
	require.NoError(t, fs.WriteFile(l.GroupTemplate("web", "/etc/app.conf"), []byte("k=v\n"), 0o644))

	store := manifest.NewStore(fs)
	mf, err := store.Load(l.GroupManifest("web"))
	require.NoError(t, err)
	mf.Entries["/etc/app.conf"] = manifest.Entry{OriginalPath: "/etc/app.conf", Checksum: sha256Hex("k=v\n"), Group: "web"}
	require.NoError(t, store.Save(l.GroupManifest("web"), mf))

	require.NoError(t, c.MissingFileSweep())

	assert.True(t, fs.Exists(l.GroupTemplate("web", "/etc/app.conf")))
}
