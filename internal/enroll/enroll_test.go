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

package enroll_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laszoo/laszoo/internal/enroll"
	"github.com/laszoo/laszoo/internal/groupconfig"
	"github.com/laszoo/laszoo/internal/layout"
	"github.com/laszoo/laszoo/internal/lzerr"
	"github.com/laszoo/laszoo/internal/platform"
	"github.com/laszoo/laszoo/internal/templating"
)

const root = "/mnt/laszoo"

func newManager(fs platform.FileSystem) *enroll.Manager {
	clock := platform.NewMockTimeProvider(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return enroll.NewManager(fs, layout.New(root), clock, "web-01")
}

func TestEnroll_WritesGroupTemplateAndManifestEntry(t *testing.T) {
	fs := platform.NewMapFS(nil)
	require.NoError(t, fs.WriteFile("/etc/app.conf", []byte("listen=8080\n"), 0o644))
	m := newManager(fs)

	err := m.Enroll("/etc/app.conf", enroll.Options{Group: "web"})
	require.NoError(t, err)

	l := layout.New(root)
	data, err := fs.ReadFile(l.GroupTemplate("web", "/etc/app.conf"))
	require.NoError(t, err)
	assert.Equal(t, "listen=8080\n", string(data))

	entries, err := m.List("web")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "/etc/app.conf", entries[0].OriginalPath)
	assert.NotEqual(t, "directory", entries[0].Checksum)
}

func TestEnroll_AlreadyEnrolledFailsWithoutForce(t *testing.T) {
	fs := platform.NewMapFS(nil)
	require.NoError(t, fs.WriteFile("/etc/app.conf", []byte("a"), 0o644))
	m := newManager(fs)

	require.NoError(t, m.Enroll("/etc/app.conf", enroll.Options{Group: "web"}))

	err := m.Enroll("/etc/app.conf", enroll.Options{Group: "web"})
	require.Error(t, err)
	assert.True(t, lzerr.Is(err, lzerr.KindAlreadyEnrolled))

	require.NoError(t, m.Enroll("/etc/app.conf", enroll.Options{Group: "web", Force: true}))
}

func TestEnroll_MachineSpecificWritesMachineTemplateOnly(t *testing.T) {
	fs := platform.NewMapFS(nil)
	require.NoError(t, fs.WriteFile("/etc/hostname.conf", []byte("web-01"), 0o644))
	m := newManager(fs)

	require.NoError(t, m.Enroll("/etc/hostname.conf", enroll.Options{Group: "web", MachineSpecific: true}))

	l := layout.New(root)
	assert.True(t, fs.Exists(l.MachineTemplate("web-01", "/etc/hostname.conf")))
	assert.False(t, fs.Exists(l.GroupTemplate("web", "/etc/hostname.conf")))
}

func TestEnroll_PersistsGroupConfigWhenActionProvided(t *testing.T) {
	fs := platform.NewMapFS(nil)
	require.NoError(t, fs.WriteFile("/etc/app.conf", []byte("a"), 0o644))
	m := newManager(fs)

	require.NoError(t, m.Enroll("/etc/app.conf", enroll.Options{
		Group:  "web",
		Action: groupconfig.Rollback,
	}))

	cfgStore := groupconfig.NewStore(fs)
	cfg, err := cfgStore.Load(layout.New(root).GroupConfig("web"))
	require.NoError(t, err)
	assert.Equal(t, groupconfig.Rollback, cfg.SyncAction)
}

func TestEnroll_DirectoryRecordsSentinelChecksumAndCopiesTree(t *testing.T) {
	fs := platform.NewMapFS(nil)
	require.NoError(t, fs.WriteFile("/etc/myapp/a.conf", []byte("a"), 0o644))
	require.NoError(t, fs.WriteFile("/etc/myapp/nested/b.conf", []byte("b"), 0o644))
	m := newManager(fs)

	require.NoError(t, m.Enroll("/etc/myapp", enroll.Options{Group: "web"}))

	entries, err := m.List("web")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "directory", entries[0].Checksum)

	l := layout.New(root)
	a, err := fs.ReadFile(l.GroupTemplate("web", "/etc/myapp/a.conf"))
	require.NoError(t, err)
	assert.Equal(t, "a", string(a))
	b, err := fs.ReadFile(l.GroupTemplate("web", "/etc/myapp/nested/b.conf"))
	require.NoError(t, err)
	assert.Equal(t, "b", string(b))
}

func TestEnroll_AdoptsFileUnderAlreadyEnrolledDirectory(t *testing.T) {
	fs := platform.NewMapFS(nil)
	require.NoError(t, fs.WriteFile("/etc/myapp/a.conf", []byte("a"), 0o644))
	m := newManager(fs)
	require.NoError(t, m.Enroll("/etc/myapp", enroll.Options{Group: "web"}))

	require.NoError(t, fs.WriteFile("/etc/myapp/c.conf", []byte("c"), 0o644))
	require.NoError(t, m.Enroll("/etc/myapp/c.conf", enroll.Options{Group: "other"}))

	l := layout.New(root)
	c, err := fs.ReadFile(l.GroupTemplate("web", "/etc/myapp/c.conf"))
	require.NoError(t, err)
	assert.Equal(t, "c", string(c))

	entries, err := m.List("")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "adopted file must not gain its own manifest entry")
}

func TestUnenroll_RemovesTemplateAndManifestEntry(t *testing.T) {
	fs := platform.NewMapFS(nil)
	require.NoError(t, fs.WriteFile("/etc/app.conf", []byte("a"), 0o644))
	m := newManager(fs)
	require.NoError(t, m.Enroll("/etc/app.conf", enroll.Options{Group: "web"}))

	require.NoError(t, m.Unenroll("/etc/app.conf"))

	l := layout.New(root)
	assert.False(t, fs.Exists(l.GroupTemplate("web", "/etc/app.conf")))
	entries, err := m.List("")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUnenroll_NeverEnrolledIsSilentSuccess(t *testing.T) {
	fs := platform.NewMapFS(nil)
	m := newManager(fs)
	require.NoError(t, m.Unenroll("/etc/never.conf"))
}

func TestApply_RendersVariablesAndWritesLogicalPath(t *testing.T) {
	fs := platform.NewMapFS(nil)
	l := layout.New(root)
	require.NoError(t, fs.WriteFile(l.GroupTemplate("web", "/etc/app.conf"), []byte("host={{ hostname }}\n"), 0o644))

	m := newManager(fs)
	require.NoError(t, m.Apply("web", templating.Vars{}, enroll.ApplyHooks{}))

	data, err := fs.ReadFile("/etc/app.conf")
	require.NoError(t, err)
	assert.Equal(t, "host=web-01\n", string(data))
}

func TestApply_SplicesMachineSpecializationIntoQuack(t *testing.T) {
	fs := platform.NewMapFS(nil)
	l := layout.New(root)
	require.NoError(t, fs.WriteFile(l.GroupTemplate("web", "/etc/app.conf"), []byte("base\n{{ quack }}\n"), 0o644))
	require.NoError(t, fs.WriteFile(l.MachineTemplate("web-01", "/etc/app.conf"), []byte("[[x extra=true x]]"), 0o644))

	m := newManager(fs)
	require.NoError(t, m.Apply("web", templating.Vars{}, enroll.ApplyHooks{}))

	data, err := fs.ReadFile("/etc/app.conf")
	require.NoError(t, err)
	assert.Equal(t, "base\nextra=true\n", string(data))
}

func TestApply_InvokesBeforeWriteHookForEveryTemplate(t *testing.T) {
	fs := platform.NewMapFS(nil)
	l := layout.New(root)
	require.NoError(t, fs.WriteFile(l.GroupTemplate("web", "/etc/app.conf"), []byte("x"), 0o644))

	m := newManager(fs)
	var seen []string
	err := m.Apply("web", templating.Vars{}, enroll.ApplyHooks{
		BeforeWrite: func(logicalPath string) { seen = append(seen, logicalPath) },
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"/etc/app.conf"}, seen)
}

func TestApply_UnknownGroupFails(t *testing.T) {
	fs := platform.NewMapFS(nil)
	m := newManager(fs)
	err := m.Apply("ghost", templating.Vars{}, enroll.ApplyHooks{})
	require.Error(t, err)
	assert.True(t, lzerr.Is(err, lzerr.KindGroupNotFound))
}
