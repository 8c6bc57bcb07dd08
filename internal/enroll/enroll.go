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

// Package enroll implements the enrollment manager (spec.md §4.4): putting
// logical paths under management, removing them, listing them, and
// projecting group templates onto the local filesystem.
package enroll

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/laszoo/laszoo/internal/groupconfig"
	"github.com/laszoo/laszoo/internal/ignorefile"
	"github.com/laszoo/laszoo/internal/layout"
	"github.com/laszoo/laszoo/internal/lzerr"
	"github.com/laszoo/laszoo/internal/manifest"
	"github.com/laszoo/laszoo/internal/platform"
	"github.com/laszoo/laszoo/internal/templating"
)

// templateGlob is the pattern listTemplates matches *.lasz files against
// when Apply lists a group's templates; the watch core's template-tree
// scanner uses the same pattern.
const templateGlob = "**/*" + layout.TemplateSuffix

// Manager orchestrates enroll/unenroll/list/apply against the manifest
// store, the group config store and the path layout.
type Manager struct {
	FS       platform.FileSystem
	Layout   layout.Layout
	Clock    platform.TimeProvider
	Hostname string

	Manifests *manifest.Store
	Configs   *groupconfig.Store
}

// NewManager wires a Manager from its collaborators.
func NewManager(fs platform.FileSystem, l layout.Layout, clock platform.TimeProvider, hostname string) *Manager {
	return &Manager{
		FS:        fs,
		Layout:    l,
		Clock:     clock,
		Hostname:  hostname,
		Manifests: manifest.NewStore(fs),
		Configs:   groupconfig.NewStore(fs),
	}
}

// Options configures a single Enroll call.
type Options struct {
	Group           string
	Force           bool
	MachineSpecific bool
	Hybrid          bool
	BeforeTrigger   string
	AfterTrigger    string
	Action          groupconfig.Action
}

// usesMachineManifest reports whether this enrollment's record belongs in
// the machine manifest rather than the group manifest: machine-specific
// and hybrid enrollments are, by construction, local to one machine.
func (o Options) usesMachineManifest() bool {
	return o.MachineSpecific || o.Hybrid
}

func (m *Manager) targetManifestPath(opts Options) string {
	if opts.usesMachineManifest() {
		return m.Layout.MachineManifest(m.Hostname)
	}
	return m.Layout.GroupManifest(opts.Group)
}

// Enroll puts path under management in opts.Group (spec.md §4.4).
func (m *Manager) Enroll(path string, opts Options) error {
	if err := layout.ValidateLogicalPath(path); err != nil {
		return lzerr.Template(err.Error())
	}
	if !m.FS.Exists(path) {
		return lzerr.NotFound(path)
	}
	info, err := m.FS.Stat(path)
	if err != nil {
		return lzerr.PermissionDenied(path)
	}
	isDir := info.IsDir()

	targetPath := m.targetManifestPath(opts)
	mf, err := m.Manifests.Load(targetPath)
	if err != nil {
		return err
	}

	if existing, ok := mf.Entries[path]; ok && !opts.Force {
		return lzerr.AlreadyEnrolled(path, existing.Group)
	}

	if adopted, enclosingGroup, err := m.isUnderEnrolledDirectory(path); err != nil {
		return err
	} else if adopted {
		return m.writeTemplates(path, enclosingGroup, opts)
	}

	var checksum string
	if isDir {
		checksum = manifest.DirectoryChecksum
		if err := m.enrollDirectoryTree(path, opts); err != nil {
			return err
		}
	} else {
		data, err := m.FS.ReadFile(path)
		if err != nil {
			return lzerr.IO(path, err)
		}
		checksum = sha256Hex(data)
		if err := m.writeFileTemplate(path, data, opts); err != nil {
			return err
		}
	}

	entry := manifest.Entry{
		OriginalPath: path,
		Checksum:     checksum,
		Group:        opts.Group,
		EnrolledAt:   m.Clock.Now(),
		IsHybrid:     opts.Hybrid,
		TemplatePath: m.Layout.GroupTemplate(opts.Group, path),
	}
	if opts.MachineSpecific {
		entry.TemplatePath = m.Layout.MachineTemplate(m.Hostname, path)
	}
	mf.Entries[path] = entry

	if err := m.Manifests.Save(targetPath, mf); err != nil {
		return err
	}

	if opts.BeforeTrigger != "" || opts.AfterTrigger != "" || (opts.Action != "" && opts.Action != groupconfig.Default) {
		cfg := groupconfig.Config{
			BeforeTrigger: opts.BeforeTrigger,
			AfterTrigger:  opts.AfterTrigger,
			SyncAction:    opts.Action,
		}
		if err := m.Configs.Save(m.Layout.GroupConfig(opts.Group), cfg); err != nil {
			return err
		}
	}
	return nil
}

// Unenroll removes path's manifest entry, wherever it lives, and deletes
// its template file(s). Unenrolling a path that was never enrolled is a
// silent success (spec.md §4.4).
func (m *Manager) Unenroll(path string) error {
	entry, group, isMachine, err := m.findEntry(path)
	if err != nil {
		return err
	}
	if entry == nil {
		return nil
	}

	if err := m.removeTemplates(path, group, isMachine); err != nil {
		return err
	}

	var mfPath string
	if isMachine {
		mfPath = m.Layout.MachineManifest(m.Hostname)
	} else {
		mfPath = m.Layout.GroupManifest(group)
	}
	mf, err := m.Manifests.Load(mfPath)
	if err != nil {
		return err
	}
	delete(mf.Entries, path)
	return m.Manifests.Save(mfPath, mf)
}

// List returns every enrolled entry across both machine and group
// manifests, optionally filtered to one group (an empty group lists all).
func (m *Manager) List(group string) ([]manifest.Entry, error) {
	var out []manifest.Entry

	machineMF, err := m.Manifests.Load(m.Layout.MachineManifest(m.Hostname))
	if err != nil {
		return nil, err
	}
	for _, p := range machineMF.SortedPaths() {
		e := machineMF.Entries[p]
		if group == "" || e.Group == group {
			out = append(out, e)
		}
	}

	groups := []string{group}
	if group == "" {
		groups, err = m.listGroupNames()
		if err != nil {
			return nil, err
		}
	}
	for _, g := range groups {
		if g == "" {
			continue
		}
		gm, err := m.Manifests.Load(m.Layout.GroupManifest(g))
		if err != nil {
			return nil, err
		}
		for _, p := range gm.SortedPaths() {
			out = append(out, gm.Entries[p])
		}
	}
	return out, nil
}

// ApplyHooks lets the caller (notably the watch core) observe writes
// Apply is about to make, e.g. to add the path to an ignore list before
// the write lands and a filesystem watcher sees it.
type ApplyHooks struct {
	BeforeWrite func(logicalPath string)
}

// Apply projects every template under group onto the local filesystem:
// for each <group_dir>/**/*.lasz file it renders the template (splicing
// in this host's specialization markers when a corresponding machine
// template exists under <machine_dir>/) and writes the result to the
// logical path (spec.md §4.4, §4.6). vars is merged into the built-in
// "hostname" binding for every render.
func (m *Manager) Apply(group string, vars templating.Vars, hooks ApplyHooks) error {
	groupDir := m.Layout.GroupDir(group)
	if !m.FS.Exists(groupDir) {
		return lzerr.GroupNotFound(group)
	}
	templates, err := m.listTemplates(groupDir)
	if err != nil {
		return err
	}

	renderVars := templating.Vars{"hostname": m.Hostname}
	for k, v := range vars {
		renderVars[k] = v
	}

	for _, tmplPath := range templates {
		logicalPath, err := m.Layout.LogicalPathFromGroupTemplate(group, tmplPath)
		if err != nil {
			return lzerr.Template(err.Error())
		}

		groupTmpl, err := m.FS.ReadFile(tmplPath)
		if err != nil {
			return lzerr.IO(tmplPath, err)
		}

		var machineTmpl string
		machineTmplPath := m.Layout.MachineTemplate(m.Hostname, logicalPath)
		if m.FS.Exists(machineTmplPath) {
			data, err := m.FS.ReadFile(machineTmplPath)
			if err != nil {
				return lzerr.IO(machineTmplPath, err)
			}
			machineTmpl = string(data)
		}

		rendered, err := templating.RenderWithSpecialization(string(groupTmpl), renderVars, machineTmpl)
		if err != nil {
			return lzerr.Template(err.Error())
		}

		if hooks.BeforeWrite != nil {
			hooks.BeforeWrite(logicalPath)
		}
		if err := m.FS.MkdirAll(filepath.Dir(logicalPath), 0o755); err != nil {
			return lzerr.IO(logicalPath, err)
		}
		if err := m.FS.WriteFile(logicalPath, []byte(rendered), 0o644); err != nil {
			return lzerr.IO(logicalPath, err)
		}
	}
	return nil
}

// findEntry searches the machine manifest, then every group manifest, for
// path's enrollment record.
func (m *Manager) findEntry(path string) (entry *manifest.Entry, group string, isMachine bool, err error) {
	machineMF, err := m.Manifests.Load(m.Layout.MachineManifest(m.Hostname))
	if err != nil {
		return nil, "", false, err
	}
	if e, ok := machineMF.Entries[path]; ok {
		return &e, e.Group, true, nil
	}

	names, err := m.listGroupNames()
	if err != nil {
		return nil, "", false, err
	}
	for _, g := range names {
		gm, err := m.Manifests.Load(m.Layout.GroupManifest(g))
		if err != nil {
			return nil, "", false, err
		}
		if e, ok := gm.Entries[path]; ok {
			return &e, g, false, nil
		}
	}
	return nil, "", false, nil
}

// isUnderEnrolledDirectory reports whether path falls beneath some other
// already-enrolled directory entry, in either manifest. When it does, a
// fresh Enroll call "adopts" the file into that directory's group instead
// of creating its own manifest entry (spec.md §4.4).
func (m *Manager) isUnderEnrolledDirectory(path string) (bool, string, error) {
	check := func(mf *manifest.Manifest) (bool, string) {
		for p, e := range mf.Entries {
			if !e.IsDirectory() || p == path {
				continue
			}
			if isUnderDir(p, path) {
				return true, e.Group
			}
		}
		return false, ""
	}

	machineMF, err := m.Manifests.Load(m.Layout.MachineManifest(m.Hostname))
	if err != nil {
		return false, "", err
	}
	if ok, g := check(machineMF); ok {
		return true, g, nil
	}

	names, err := m.listGroupNames()
	if err != nil {
		return false, "", err
	}
	for _, g := range names {
		gm, err := m.Manifests.Load(m.Layout.GroupManifest(g))
		if err != nil {
			return false, "", err
		}
		if ok, group := check(gm); ok {
			return true, group, nil
		}
	}
	return false, "", nil
}

func isUnderDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, "..")
}

func (m *Manager) listGroupNames() ([]string, error) {
	groupsDir := filepath.Join(m.Layout.Root, "groups")
	if !m.FS.Exists(groupsDir) {
		return nil, nil
	}
	entries, err := m.FS.ReadDir(groupsDir)
	if err != nil {
		return nil, lzerr.IO(groupsDir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// writeTemplates writes (only) the group and/or machine template for path,
// without touching any manifest entry: used when path is adopted under an
// already-enrolled directory.
func (m *Manager) writeTemplates(path, group string, opts Options) error {
	info, err := m.FS.Stat(path)
	if err != nil {
		return lzerr.PermissionDenied(path)
	}
	if info.IsDir() {
		return m.enrollDirectoryTree(path, Options{Group: group, MachineSpecific: opts.MachineSpecific, Hybrid: opts.Hybrid})
	}
	data, err := m.FS.ReadFile(path)
	if err != nil {
		return lzerr.IO(path, err)
	}
	return m.writeFileTemplate(path, data, Options{Group: group, MachineSpecific: opts.MachineSpecific, Hybrid: opts.Hybrid})
}

// writeFileTemplate writes data as the template content for path, to the
// group template, the machine template, or both, per opts.
func (m *Manager) writeFileTemplate(path string, data []byte, opts Options) error {
	if !opts.MachineSpecific {
		dst := m.Layout.GroupTemplate(opts.Group, path)
		if err := m.writeTemplateFile(dst, data); err != nil {
			return err
		}
	}
	if opts.MachineSpecific || opts.Hybrid {
		dst := m.Layout.MachineTemplate(m.Hostname, path)
		if err := m.writeTemplateFile(dst, data); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) writeTemplateFile(dst string, data []byte) error {
	if err := m.FS.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return lzerr.IO(dst, err)
	}
	if err := m.FS.WriteFile(dst, data, 0o644); err != nil {
		return lzerr.IO(dst, err)
	}
	return nil
}

// enrollDirectoryTree recursively copies every regular file under root
// into the corresponding group/machine template tree, mirroring the
// directory structure beneath root.
func (m *Manager) enrollDirectoryTree(root string, opts Options) error {
	files, err := m.walkFiles(root)
	if err != nil {
		return err
	}
	for _, f := range files {
		data, err := m.FS.ReadFile(f)
		if err != nil {
			return lzerr.IO(f, err)
		}
		if err := m.writeFileTemplate(f, data, opts); err != nil {
			return err
		}
	}
	return nil
}

// ignoreMatcher loads the shared store's top-level .gitignore, if any, so
// walkFiles can skip the same paths a human collaborator already excluded.
func (m *Manager) ignoreMatcher() *ignorefile.Matcher {
	return ignorefile.Load(m.FS, filepath.Join(m.Layout.Root, ".gitignore"))
}

// walkFiles returns every regular file beneath root, recursively, using
// only platform.FileSystem.ReadDir (no fs.WalkDir: that requires a real
// fs.FS rooted filesystem, which platform.FileSystem does not promise to
// be under every implementation). Paths matched by the shared store's
// .gitignore are skipped.
func (m *Manager) walkFiles(root string) ([]string, error) {
	return m.walkFilesMatching(root, m.ignoreMatcher())
}

func (m *Manager) walkFilesMatching(root string, matcher *ignorefile.Matcher) ([]string, error) {
	var out []string
	entries, err := m.FS.ReadDir(root)
	if err != nil {
		return nil, lzerr.IO(root, err)
	}
	for _, e := range entries {
		full := filepath.Join(root, e.Name())
		rel, err := filepath.Rel(m.Layout.Root, full)
		if err != nil {
			rel = full
		}
		if matcher.MatchesPath(rel, e.IsDir()) {
			continue
		}
		if e.IsDir() {
			nested, err := m.walkFilesMatching(full, matcher)
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)
			continue
		}
		out = append(out, full)
	}
	return out, nil
}

// listTemplates returns every *.lasz file beneath groupDir, recursively,
// matched against templateGlob rather than a bare suffix check so the same
// pattern language used elsewhere in the shared store (doublestar globs)
// governs what counts as a template.
func (m *Manager) listTemplates(groupDir string) ([]string, error) {
	files, err := m.walkFiles(groupDir)
	if err != nil {
		return nil, err
	}
	var templates []string
	for _, f := range files {
		rel, err := filepath.Rel(groupDir, f)
		if err != nil {
			continue
		}
		if ok, _ := doublestar.Match(templateGlob, rel); ok {
			templates = append(templates, f)
		}
	}
	return templates, nil
}

// removeTemplates deletes path's template file(s) in whichever tree(s) it
// was written to. Missing files are not an error: the template may
// already be gone, e.g. after a manual edit under the shared store.
func (m *Manager) removeTemplates(path, group string, isMachine bool) error {
	remove := func(p string) error {
		if !m.FS.Exists(p) {
			return nil
		}
		if err := m.FS.Remove(p); err != nil {
			return lzerr.IO(p, err)
		}
		return nil
	}
	if isMachine {
		return remove(m.Layout.MachineTemplate(m.Hostname, path))
	}
	if err := remove(m.Layout.GroupTemplate(group, path)); err != nil {
		return err
	}
	return remove(m.Layout.MachineTemplate(m.Hostname, path))
}

// sha256Hex is the fingerprint function spec.md §3 requires for every
// non-directory enrollment entry.
func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
