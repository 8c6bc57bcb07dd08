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

package syncengine_test

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laszoo/laszoo/internal/layout"
	"github.com/laszoo/laszoo/internal/manifest"
	"github.com/laszoo/laszoo/internal/platform"
	"github.com/laszoo/laszoo/internal/syncengine"
)

const root = "/mnt/laszoo"

func setup(t *testing.T) (*syncengine.Engine, *platform.MapFS, layout.Layout, *platform.MockTimeProvider) {
	t.Helper()
	fs := platform.NewMapFS(nil)
	l := layout.New(root)
	clock := platform.NewMockTimeProvider(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return syncengine.New(fs, l, clock, "web-01"), fs, l, clock
}

func seedEntry(t *testing.T, fs *platform.MapFS, l layout.Layout, group, logicalPath, content string) {
	t.Helper()
	require.NoError(t, fs.WriteFile(l.GroupTemplate(group, logicalPath), []byte(content), 0o644))
	require.NoError(t, fs.WriteFile(logicalPath, []byte(content), 0o644))

	store := manifest.NewStore(fs)
	mf, err := store.Load(l.GroupManifest(group))
	require.NoError(t, err)
	sum := sha256Hex(content)
	mf.Entries[logicalPath] = manifest.Entry{
		OriginalPath: logicalPath,
		Checksum:     sum,
		Group:        group,
	}
	require.NoError(t, store.Save(l.GroupManifest(group), mf))
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestPlan_MatchingFingerprintIsNoOp(t *testing.T) {
	e, fs, l, _ := setup(t)
	seedEntry(t, fs, l, "web", "/etc/app.conf", "port=8080\n")

	ops, err := e.Plan("web")
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, syncengine.NoOp, ops[0].Outcome)
}

func TestPlan_MissingTemplateIsDiscovered(t *testing.T) {
	e, fs, l, _ := setup(t)
	require.NoError(t, fs.WriteFile("/etc/app.conf", []byte("x"), 0o644))
	store := manifest.NewStore(fs)
	mf, _ := store.Load(l.GroupManifest("web"))
	mf.Entries["/etc/app.conf"] = manifest.Entry{OriginalPath: "/etc/app.conf", Checksum: "none", Group: "web"}
	require.NoError(t, store.Save(l.GroupManifest("web"), mf))

	ops, err := e.Plan("web")
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, syncengine.Discovered, ops[0].Outcome)
}

func TestPlan_MissingLocalIsRollback(t *testing.T) {
	e, fs, l, _ := setup(t)
	require.NoError(t, fs.WriteFile(l.GroupTemplate("web", "/etc/app.conf"), []byte("port=8080\n"), 0o644))
	store := manifest.NewStore(fs)
	mf, _ := store.Load(l.GroupManifest("web"))
	mf.Entries["/etc/app.conf"] = manifest.Entry{OriginalPath: "/etc/app.conf", Checksum: sha256Hex("port=8080\n"), Group: "web"}
	require.NoError(t, store.Save(l.GroupManifest("web"), mf))

	ops, err := e.Plan("web")
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, syncengine.Rollback, ops[0].Outcome)
}

func TestExecute_RollbackRestoresLocalFromTemplate(t *testing.T) {
	e, fs, l, _ := setup(t)
	require.NoError(t, fs.WriteFile(l.GroupTemplate("web", "/etc/app.conf"), []byte("port=8080\n"), 0o644))
	store := manifest.NewStore(fs)
	mf, _ := store.Load(l.GroupManifest("web"))
	mf.Entries["/etc/app.conf"] = manifest.Entry{OriginalPath: "/etc/app.conf", Checksum: sha256Hex("port=8080\n"), Group: "web"}
	require.NoError(t, store.Save(l.GroupManifest("web"), mf))

	ops, err := e.Plan("web")
	require.NoError(t, err)
	applied, err := e.Execute(ops, false)
	require.NoError(t, err)
	require.Len(t, applied, 1)

	data, err := fs.ReadFile("/etc/app.conf")
	require.NoError(t, err)
	assert.Equal(t, "port=8080\n", string(data))
}

func TestExecute_ConvergeMergesLocalEditIntoTemplate(t *testing.T) {
	e, fs, l, _ := setup(t)
	seedEntry(t, fs, l, "web", "/etc/app.conf", "k=v\n")
	require.NoError(t, fs.WriteFile("/etc/app.conf", []byte("k=v2\n"), 0o644))
	require.NoError(t, fs.WriteFile(l.GroupConfig("web"), []byte(`{"sync_action":"converge"}`), 0o644))

	ops, err := e.Plan("web")
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, syncengine.Reconcile, ops[0].Outcome)

	applied, err := e.Execute(ops, false)
	require.NoError(t, err)

	tmplData, err := fs.ReadFile(l.GroupTemplate("web", "/etc/app.conf"))
	require.NoError(t, err)
	assert.Equal(t, "k=v2\n", string(tmplData))

	store := manifest.NewStore(fs)
	mf, err := store.Load(l.GroupManifest("web"))
	require.NoError(t, err)
	assert.Equal(t, sha256Hex("k=v2\n"), mf.Entries["/etc/app.conf"].Checksum)
	assert.NotNil(t, mf.Entries["/etc/app.conf"].LastSynced)
	require.NotEmpty(t, applied[0].Effect)
}

func TestExecute_RollbackStrategyOverwritesLocalEditWithRenderedTemplate(t *testing.T) {
	e, fs, l, _ := setup(t)
	seedEntry(t, fs, l, "web", "/etc/app.conf", "k=v\n")
	require.NoError(t, fs.WriteFile("/etc/app.conf", []byte("k=v2\n"), 0o644))
	require.NoError(t, fs.WriteFile(l.GroupConfig("web"), []byte(`{"sync_action":"rollback"}`), 0o644))

	ops, err := e.Plan("web")
	require.NoError(t, err)
	_, err = e.Execute(ops, false)
	require.NoError(t, err)

	data, err := fs.ReadFile("/etc/app.conf")
	require.NoError(t, err)
	assert.Equal(t, "k=v\n", string(data))
}

func TestExecute_FreezeTakesNoAction(t *testing.T) {
	e, fs, l, _ := setup(t)
	seedEntry(t, fs, l, "web", "/etc/app.conf", "k=v\n")
	require.NoError(t, fs.WriteFile("/etc/app.conf", []byte("k=v2\n"), 0o644))
	require.NoError(t, fs.WriteFile(l.GroupConfig("web"), []byte(`{"sync_action":"freeze"}`), 0o644))

	ops, err := e.Plan("web")
	require.NoError(t, err)
	_, err = e.Execute(ops, false)
	require.NoError(t, err)

	data, err := fs.ReadFile("/etc/app.conf")
	require.NoError(t, err)
	assert.Equal(t, "k=v2\n", string(data))

	tmplData, err := fs.ReadFile(l.GroupTemplate("web", "/etc/app.conf"))
	require.NoError(t, err)
	assert.Equal(t, "k=v\n", string(tmplData))
}

func TestExecute_DryRunMakesNoWrites(t *testing.T) {
	e, fs, l, _ := setup(t)
	seedEntry(t, fs, l, "web", "/etc/app.conf", "k=v\n")
	require.NoError(t, fs.WriteFile("/etc/app.conf", []byte("k=v2\n"), 0o644))
	require.NoError(t, fs.WriteFile(l.GroupConfig("web"), []byte(`{"sync_action":"converge"}`), 0o644))

	ops, err := e.Plan("web")
	require.NoError(t, err)
	applied, err := e.Execute(ops, true)
	require.NoError(t, err)
	require.NotEmpty(t, applied[0].Effect)

	tmplData, err := fs.ReadFile(l.GroupTemplate("web", "/etc/app.conf"))
	require.NoError(t, err)
	assert.Equal(t, "k=v\n", string(tmplData), "dry-run must not touch the template")
}
