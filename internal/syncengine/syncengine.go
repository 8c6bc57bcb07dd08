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

// Package syncengine classifies every enrolled entry of a group against
// its local file and template, and reconciles divergence per the group's
// configured strategy (spec.md §4.5).
package syncengine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/laszoo/laszoo/internal/groupconfig"
	"github.com/laszoo/laszoo/internal/layout"
	"github.com/laszoo/laszoo/internal/lzerr"
	"github.com/laszoo/laszoo/internal/manifest"
	"github.com/laszoo/laszoo/internal/platform"
	"github.com/laszoo/laszoo/internal/templating"
)

// Outcome classifies one entry's drift state, per spec.md §4.5's table.
type Outcome int

const (
	NoOp Outcome = iota
	Reconcile
	Rollback
	Discovered
)

func (o Outcome) String() string {
	switch o {
	case NoOp:
		return "no-op"
	case Reconcile:
		return "reconcile"
	case Rollback:
		return "rollback"
	case Discovered:
		return "discovered"
	default:
		return "unknown"
	}
}

// Operation is one planned or executed reconciliation for a single entry.
type Operation struct {
	LogicalPath string
	Group       string
	Outcome     Outcome
	Strategy    groupconfig.Action

	// Effect is filled in once Execute has (or, in dry-run, would have)
	// applied the operation, describing what changed for reporting.
	Effect string
}

// Engine classifies and executes sync operations for one group at a time.
type Engine struct {
	FS       platform.FileSystem
	Layout   layout.Layout
	Clock    platform.TimeProvider
	Hostname string

	Manifests *manifest.Store
	Configs   *groupconfig.Store
}

// New wires an Engine from its collaborators.
func New(fs platform.FileSystem, l layout.Layout, clock platform.TimeProvider, hostname string) *Engine {
	return &Engine{
		FS:        fs,
		Layout:    l,
		Clock:     clock,
		Hostname:  hostname,
		Manifests: manifest.NewStore(fs),
		Configs:   groupconfig.NewStore(fs),
	}
}

// Plan enumerates every enrollment entry for group (from both the group
// manifest and this machine's manifest) and classifies each against the
// table in spec.md §4.5. It does not write anything.
func (e *Engine) Plan(group string) ([]Operation, error) {
	cfg, err := e.Configs.Load(e.Layout.GroupConfig(group))
	if err != nil {
		return nil, err
	}
	strategy := cfg.EffectiveAction()

	groupMF, err := e.Manifests.Load(e.Layout.GroupManifest(group))
	if err != nil {
		return nil, err
	}
	machineMF, err := e.Manifests.Load(e.Layout.MachineManifest(e.Hostname))
	if err != nil {
		return nil, err
	}

	var ops []Operation
	for _, path := range groupMF.SortedPaths() {
		entry := groupMF.Entries[path]
		op, err := e.classify(group, path, entry, strategy)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	for _, path := range machineMF.SortedPaths() {
		entry := machineMF.Entries[path]
		if entry.Group != group {
			continue
		}
		op, err := e.classify(group, path, entry, strategy)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// ReconcileOne classifies and immediately executes the single enrollment
// entry at logicalPath within group, for the watch core's per-file
// debounced dispatch (spec.md §4.6 step c). It returns ok=false if
// logicalPath has no entry in either manifest for group.
func (e *Engine) ReconcileOne(group, logicalPath string) (op Operation, ok bool, err error) {
	cfg, err := e.Configs.Load(e.Layout.GroupConfig(group))
	if err != nil {
		return Operation{}, false, err
	}
	strategy := cfg.EffectiveAction()

	groupMF, err := e.Manifests.Load(e.Layout.GroupManifest(group))
	if err != nil {
		return Operation{}, false, err
	}
	if entry, found := groupMF.Entries[logicalPath]; found {
		op, err = e.classify(group, logicalPath, entry, strategy)
		if err != nil {
			return Operation{}, false, err
		}
		applied, err := e.executeOne(op, false)
		return applied, true, err
	}

	machineMF, err := e.Manifests.Load(e.Layout.MachineManifest(e.Hostname))
	if err != nil {
		return Operation{}, false, err
	}
	entry, found := machineMF.Entries[logicalPath]
	if !found || entry.Group != group {
		return Operation{}, false, nil
	}
	op, err = e.classify(group, logicalPath, entry, strategy)
	if err != nil {
		return Operation{}, false, err
	}
	applied, err := e.executeOne(op, false)
	return applied, true, err
}

func (e *Engine) templatePath(group string, entry manifest.Entry, logicalPath string) string {
	if entry.IsHybrid {
		return e.Layout.MachineTemplate(e.Hostname, logicalPath)
	}
	if entry.TemplatePath != "" {
		return entry.TemplatePath
	}
	return e.Layout.GroupTemplate(group, logicalPath)
}

func (e *Engine) classify(group, logicalPath string, entry manifest.Entry, strategy groupconfig.Action) (Operation, error) {
	op := Operation{LogicalPath: logicalPath, Group: group, Strategy: strategy}

	if entry.IsDirectory() {
		// Directory entries are reconciled file-by-file by the enrollment
		// manager's Apply/enroll-tree walk, not by classify.
		op.Outcome = NoOp
		return op, nil
	}

	localExists := e.FS.Exists(logicalPath)
	tmplPath := e.templatePath(group, entry, logicalPath)
	tmplExists := e.FS.Exists(tmplPath)

	switch {
	case localExists && tmplExists:
		matches, err := e.fingerprintMatches(logicalPath, entry)
		if err != nil {
			return Operation{}, err
		}
		if matches {
			op.Outcome = NoOp
		} else {
			op.Outcome = Reconcile
		}
	case !localExists && tmplExists:
		op.Outcome = Rollback
	case localExists && !tmplExists:
		op.Outcome = Discovered
	default:
		op.Outcome = NoOp
	}
	return op, nil
}

func (e *Engine) fingerprintMatches(logicalPath string, entry manifest.Entry) (bool, error) {
	data, err := e.FS.ReadFile(logicalPath)
	if err != nil {
		return false, lzerr.IO(logicalPath, err)
	}
	return sha256Hex(data) == entry.Checksum, nil
}

// Execute runs (or, if dryRun, simulates) every operation in ops, per its
// strategy, and returns the same operations annotated with Effect. Writes
// that happen refresh the owning manifest entry's checksum and last-synced
// timestamp (spec.md §4.5).
func (e *Engine) Execute(ops []Operation, dryRun bool) ([]Operation, error) {
	out := make([]Operation, 0, len(ops))
	for _, op := range ops {
		applied, err := e.executeOne(op, dryRun)
		if err != nil {
			return nil, err
		}
		out = append(out, applied)
	}
	return out, nil
}

func (e *Engine) executeOne(op Operation, dryRun bool) (Operation, error) {
	switch op.Outcome {
	case NoOp:
		op.Effect = "no changes"
		return op, nil
	case Discovered:
		op.Effect = "local file has no template; not yet enrolled under this strategy run"
		return op, nil
	case Rollback:
		return e.executeRollback(op, dryRun)
	case Reconcile:
		return e.executeReconcile(op, dryRun)
	default:
		return op, nil
	}
}

func (e *Engine) executeRollback(op Operation, dryRun bool) (Operation, error) {
	entry, mfPath, err := e.findOwningEntry(op)
	if err != nil {
		return Operation{}, err
	}
	tmplPath := e.templatePath(op.Group, entry, op.LogicalPath)
	tmplBytes, err := e.FS.ReadFile(tmplPath)
	if err != nil {
		return Operation{}, lzerr.IO(tmplPath, err)
	}
	rendered, err := templating.Render(string(tmplBytes), templating.Vars{"hostname": e.Hostname}, nil)
	if err != nil {
		return Operation{}, lzerr.Template(err.Error())
	}

	op.Effect = fmt.Sprintf("restore %s from %s", op.LogicalPath, tmplPath)
	if dryRun {
		return op, nil
	}

	if err := e.FS.WriteFile(op.LogicalPath, []byte(rendered), 0o644); err != nil {
		return Operation{}, lzerr.IO(op.LogicalPath, err)
	}
	return op, e.refreshEntry(mfPath, op.LogicalPath, []byte(rendered))
}

func (e *Engine) executeReconcile(op Operation, dryRun bool) (Operation, error) {
	switch op.Strategy {
	case groupconfig.Forward:
		return e.executeForward(op, dryRun)
	case groupconfig.Freeze:
		op.Effect = "frozen; no action taken"
		return op, nil
	case groupconfig.Drift:
		op.Effect = "drift recorded; no action taken"
		return op, nil
	case groupconfig.Rollback:
		return e.executeRollback(op, dryRun)
	default: // Converge, Auto
		return e.executeConverge(op, dryRun)
	}
}

// executeConverge reverse-merges local content into the template,
// preserving markers and variables (spec.md §4.3, §4.5).
func (e *Engine) executeConverge(op Operation, dryRun bool) (Operation, error) {
	entry, mfPath, err := e.findOwningEntry(op)
	if err != nil {
		return Operation{}, err
	}
	tmplPath := e.templatePath(op.Group, entry, op.LogicalPath)

	tmplBytes, err := e.FS.ReadFile(tmplPath)
	if err != nil {
		return Operation{}, lzerr.IO(tmplPath, err)
	}
	localBytes, err := e.FS.ReadFile(op.LogicalPath)
	if err != nil {
		return Operation{}, lzerr.IO(op.LogicalPath, err)
	}

	merged, err := templating.Merge(string(tmplBytes), templating.Vars{"hostname": e.Hostname}, nil, string(localBytes))
	if err != nil {
		return Operation{}, lzerr.Template(err.Error())
	}

	op.Effect = fmt.Sprintf("merge local edits into %s", tmplPath)
	if dryRun {
		return op, nil
	}

	if err := e.FS.WriteFile(tmplPath, []byte(merged), 0o644); err != nil {
		return Operation{}, lzerr.IO(tmplPath, err)
	}
	return op, e.refreshEntry(mfPath, op.LogicalPath, localBytes)
}

// executeForward overwrites the template with raw local content, with no
// marker preservation (spec.md §4.5: "use with care").
func (e *Engine) executeForward(op Operation, dryRun bool) (Operation, error) {
	entry, mfPath, err := e.findOwningEntry(op)
	if err != nil {
		return Operation{}, err
	}
	tmplPath := e.templatePath(op.Group, entry, op.LogicalPath)

	localBytes, err := e.FS.ReadFile(op.LogicalPath)
	if err != nil {
		return Operation{}, lzerr.IO(op.LogicalPath, err)
	}

	op.Effect = fmt.Sprintf("overwrite %s with local content verbatim", tmplPath)
	if dryRun {
		return op, nil
	}

	if err := e.FS.WriteFile(tmplPath, localBytes, 0o644); err != nil {
		return Operation{}, lzerr.IO(tmplPath, err)
	}
	return op, e.refreshEntry(mfPath, op.LogicalPath, localBytes)
}

// findOwningEntry locates op's manifest entry in the group manifest, else
// the machine manifest, returning it plus the path of whichever manifest
// holds it.
func (e *Engine) findOwningEntry(op Operation) (manifest.Entry, string, error) {
	groupPath := e.Layout.GroupManifest(op.Group)
	groupMF, err := e.Manifests.Load(groupPath)
	if err != nil {
		return manifest.Entry{}, "", err
	}
	if entry, ok := groupMF.Entries[op.LogicalPath]; ok {
		return entry, groupPath, nil
	}

	machinePath := e.Layout.MachineManifest(e.Hostname)
	machineMF, err := e.Manifests.Load(machinePath)
	if err != nil {
		return manifest.Entry{}, "", err
	}
	if entry, ok := machineMF.Entries[op.LogicalPath]; ok {
		return entry, machinePath, nil
	}
	return manifest.Entry{}, "", lzerr.NotFound(op.LogicalPath)
}

// refreshEntry recomputes newContent's fingerprint and stamps last_synced
// on the manifest entry at logicalPath within the manifest at mfPath
// (spec.md §4.5, last paragraph).
func (e *Engine) refreshEntry(mfPath, logicalPath string, newContent []byte) error {
	mf, err := e.Manifests.Load(mfPath)
	if err != nil {
		return err
	}
	entry, ok := mf.Entries[logicalPath]
	if !ok {
		return lzerr.NotFound(logicalPath)
	}
	entry.Checksum = sha256Hex(newContent)
	now := e.Clock.Now()
	entry.LastSynced = &now
	mf.Entries[logicalPath] = entry
	return e.Manifests.Save(mfPath, mf)
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
