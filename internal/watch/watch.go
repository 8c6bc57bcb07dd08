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

// Package watch implements the agent's single logical driver loop
// (spec.md §4.6): it reconciles managed-file edits into templates,
// detects remote template changes and applies them locally, and schedules
// background history commits, all while avoiding feedback loops between
// its own writes and the filesystem watcher that observes them.
package watch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/laszoo/laszoo/internal/audit"
	"github.com/laszoo/laszoo/internal/enroll"
	"github.com/laszoo/laszoo/internal/groupconfig"
	"github.com/laszoo/laszoo/internal/history"
	"github.com/laszoo/laszoo/internal/ignorefile"
	"github.com/laszoo/laszoo/internal/layout"
	"github.com/laszoo/laszoo/internal/logging"
	"github.com/laszoo/laszoo/internal/lzerr"
	"github.com/laszoo/laszoo/internal/manifest"
	"github.com/laszoo/laszoo/internal/platform"
	"github.com/laszoo/laszoo/internal/syncengine"
	"github.com/laszoo/laszoo/internal/webui"
)

// templateGlob is the pattern the periodic template-tree scan matches
// against, the same pattern enroll's Apply uses to list a group's templates.
const templateGlob = "**/*" + layout.TemplateSuffix

// Mode selects the missing-file sweep's aggressiveness at startup.
type Mode int

const (
	// ModeSoft never deletes anything missing-file sweep would otherwise
	// clean up.
	ModeSoft Mode = iota
	// ModeHard runs the missing-file sweep at startup (spec.md §4.6).
	ModeHard
)

// pollInterval is the short timeout step b's filesystem-event read uses.
const pollInterval = 100 * time.Millisecond

// templateScanInterval is the period step e's template-tree scan runs at.
const templateScanInterval = 2 * time.Second

// availabilityRetryDelay is how long the core waits before retrying a
// missing shared-store mount or recovering from a filesystem-class error.
const availabilityRetryDelay = 30 * time.Second

// commitResult is what a background commit goroutine reports back on
// completion, for step a to drain.
type commitResult struct {
	paths []string
	err   error
}

// Core drives the reconciliation loop for one machine across every group
// it belongs to.
type Core struct {
	FS       platform.FileSystem
	Watcher  platform.FileWatcher
	Clock    platform.TimeProvider
	Layout   layout.Layout
	Hostname string
	Groups   []string
	Mode     Mode

	// AutoCommit enables scheduling background history commits once a
	// template-change debounce buffer goes quiet (spec.md §4.6 step d).
	AutoCommit bool
	// AutoApply enables applying a remotely-changed template to the local
	// filesystem as soon as the periodic template-tree scan observes it
	// (spec.md §4.6 step e). Left off, remote changes are only picked up
	// by an explicit `laszoo sync`/`laszoo apply`.
	AutoApply bool

	Enroll    *enroll.Manager
	Sync      *syncengine.Engine
	Configs   *groupconfig.Store
	Manifests *manifest.Store
	History   *history.Manager
	Generator history.Generator

	// Audit records the trail of reconcile/apply/sweep actions this core
	// takes, nil to disable (spec.md §6 action records).
	Audit *audit.Trail
	// WebUI, if set, is published to around reconciliation so a connected
	// dashboard sees the same events the trail records.
	WebUI *webui.Hub

	ignore                   *ignoreSet
	localTemplateChanges     *stringSet
	committedTemplateChanges *stringSet
	managedBuffer            *debounceBuffer
	templateBuffer           *debounceBuffer

	lastTemplateScan    time.Time
	knownTemplateHashes map[string]string

	commitDone chan commitResult
}

// New wires a Core from its collaborators.
func New(
	fs platform.FileSystem,
	watcher platform.FileWatcher,
	clock platform.TimeProvider,
	l layout.Layout,
	hostname string,
	groups []string,
) *Core {
	return &Core{
		FS:       fs,
		Watcher:  watcher,
		Clock:    clock,
		Layout:   l,
		Hostname: hostname,
		Groups:   groups,

		Enroll:    enroll.NewManager(fs, l, clock, hostname),
		Sync:      syncengine.New(fs, l, clock, hostname),
		Configs:   groupconfig.NewStore(fs),
		Manifests: manifest.NewStore(fs),

		ignore:                   newIgnoreSet(clock),
		localTemplateChanges:     newStringSet(),
		committedTemplateChanges: newStringSet(),
		managedBuffer:            newDebounceBuffer(clock),
		templateBuffer:           newDebounceBuffer(clock),
		knownTemplateHashes:      map[string]string{},

		commitDone: make(chan commitResult, 16),
	}
}

// Run checks shared-store availability, performs the hard-mode
// missing-file sweep if configured, then drives the loop until ctx is
// canceled, restarting after a backoff on a filesystem-class error
// (spec.md §4.6 "Availability recovery").
func (c *Core) Run(ctx context.Context) error {
	for {
		if err := c.awaitAvailability(ctx); err != nil {
			return err
		}

		if c.Mode == ModeHard {
			if err := c.MissingFileSweep(); err != nil {
				logging.Error("missing-file sweep failed: %v", err)
			}
		}

		err := c.runLoop(ctx)
		if err == nil {
			return nil // ctx canceled cleanly
		}
		if lzerr.Is(err, lzerr.KindIO) || lzerr.Is(err, lzerr.KindSharedStoreUnavailable) {
			logging.Error("filesystem-class error in watch loop, restarting in %s: %v", availabilityRetryDelay, err)
			c.Clock.Sleep(availabilityRetryDelay)
			continue
		}
		return err
	}
}

func (c *Core) awaitAvailability(ctx context.Context) error {
	for {
		if c.FS.Exists(c.Layout.Root) {
			return nil
		}
		logging.Warning("shared store %s not mounted; retrying in %s", c.Layout.Root, availabilityRetryDelay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		c.Clock.Sleep(availabilityRetryDelay)
	}
}

func (c *Core) runLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if err := c.Tick(ctx); err != nil {
			return err
		}
	}
}

// Tick runs one pass of the scheduling model's steps a-e (spec.md §4.6).
func (c *Core) Tick(ctx context.Context) error {
	c.drainCommits()

	if err := c.readEvents(ctx); err != nil {
		return err
	}

	if !c.managedBuffer.Empty() && c.managedBuffer.Quiet() {
		c.processManagedChanges()
	}

	if c.AutoCommit && !c.templateBuffer.Empty() && c.templateBuffer.Quiet() {
		c.templateBuffer.Drain()
		c.scheduleCommit()
	}

	if c.Clock.Now().Sub(c.lastTemplateScan) >= templateScanInterval {
		if err := c.scanTemplates(); err != nil {
			return err
		}
		c.lastTemplateScan = c.Clock.Now()
	}

	return nil
}

// drainCommits implements step a: clear tracking sets for commits that
// have finished.
func (c *Core) drainCommits() {
	for {
		select {
		case res := <-c.commitDone:
			if res.err != nil {
				logging.Error("background commit failed: %v", res.err)
				continue
			}
			for _, p := range res.paths {
				c.localTemplateChanges.Remove(p)
				c.committedTemplateChanges.Remove(p)
			}
		default:
			return
		}
	}
}

// readEvents implements step b: drain whatever events are already queued,
// then wait up to pollInterval for more, bucketing each into the
// managed-file or template debounce buffer and dropping anything on the
// ignore list.
func (c *Core) readEvents(ctx context.Context) error {
	if err := c.drainQueuedEvents(); err != nil {
		return err
	}

	select {
	case ev, ok := <-c.Watcher.Events():
		if ok {
			c.recordEvent(ev.Name)
		}
	case err, ok := <-c.Watcher.Errors():
		if ok {
			return lzerr.IO("watch", err)
		}
	case <-c.Clock.After(pollInterval):
	case <-ctx.Done():
		return nil
	}
	return c.drainQueuedEvents()
}

// drainQueuedEvents consumes every event and error already buffered on the
// watcher's channels without blocking.
func (c *Core) drainQueuedEvents() error {
	for {
		select {
		case ev, ok := <-c.Watcher.Events():
			if !ok {
				return nil
			}
			c.recordEvent(ev.Name)
		case err, ok := <-c.Watcher.Errors():
			if !ok {
				return nil
			}
			return lzerr.IO("watch", err)
		default:
			return nil
		}
	}
}

func (c *Core) recordEvent(path string) {
	if c.ignore.Contains(path) {
		return
	}
	if c.isTemplatePath(path) {
		c.templateBuffer.Record(path)
	} else {
		c.managedBuffer.Record(path)
	}
}

func (c *Core) isTemplatePath(path string) bool {
	for _, g := range c.Groups {
		if strings.HasPrefix(path, c.Layout.GroupDir(g)) {
			return true
		}
	}
	return strings.HasPrefix(path, c.Layout.MachineDir(c.Hostname))
}

// processManagedChanges implements step c: group buffered local-file
// paths by their owning group and dispatch per-file reconciliation.
func (c *Core) processManagedChanges() {
	paths := c.managedBuffer.Drain()
	byGroup := map[string][]string{}
	for _, p := range paths {
		group, err := c.ownerGroup(p)
		if err != nil || group == "" {
			continue
		}
		byGroup[group] = append(byGroup[group], p)
	}

	for group, groupPaths := range byGroup {
		for _, p := range groupPaths {
			op, ok, err := c.Sync.ReconcileOne(group, p)
			if err != nil {
				logging.Error("reconciling %s in group %s: %v", p, group, err)
				continue
			}
			if !ok {
				continue
			}
			if op.Outcome == syncengine.Reconcile {
				tmplPath := c.entryTemplatePath(group, p)
				c.ignore.Add(tmplPath)
				c.localTemplateChanges.Add(tmplPath)
			}
			c.recordAction("reconcile", p, group, op)
		}
	}
}

// ownerGroup finds which group (if any) a local path's manifest entry
// belongs to, searching this machine's manifest first, then every group
// this machine participates in.
func (c *Core) ownerGroup(logicalPath string) (string, error) {
	machineMF, err := c.Manifests.Load(c.Layout.MachineManifest(c.Hostname))
	if err != nil {
		return "", err
	}
	if entry, ok := machineMF.Entries[logicalPath]; ok {
		return entry.Group, nil
	}
	for _, g := range c.Groups {
		gm, err := c.Manifests.Load(c.Layout.GroupManifest(g))
		if err != nil {
			return "", err
		}
		if _, ok := gm.Entries[logicalPath]; ok {
			return g, nil
		}
	}
	return "", nil
}

func (c *Core) entryTemplatePath(group, logicalPath string) string {
	return c.Layout.GroupTemplate(group, logicalPath)
}

// recordAction appends op to the audit trail and publishes it to the
// dashboard, if either collaborator is configured. Both are best-effort:
// a failure here must never interrupt the driver loop.
func (c *Core) recordAction(actionType, target, group string, op syncengine.Operation) {
	if c.Audit != nil {
		g := group
		if _, err := c.Audit.Record(actionType, target, &g, audit.Completed, op.Outcome.String()); err != nil {
			logging.Error("recording audit action for %s: %v", target, err)
		}
	}
	if c.WebUI != nil {
		c.WebUI.Publish(webui.Event{
			Op:    op.Outcome.String(),
			Path:  target,
			Group: group,
			Ts:    c.Clock.Now(),
		})
	}
}

// scheduleCommit implements step d: commit every local-template-change
// not already being committed, in the background, so the driver loop
// never blocks on history I/O.
func (c *Core) scheduleCommit() {
	if c.History == nil {
		return
	}
	paths := c.localTemplateChanges.Snapshot(c.committedTemplateChanges)
	if len(paths) == 0 {
		return
	}
	for _, p := range paths {
		c.committedTemplateChanges.Add(p)
	}

	go func() {
		ctx := context.Background()
		if err := c.History.StageAll(ctx); err != nil {
			c.commitDone <- commitResult{paths: paths, err: err}
			return
		}
		_, _, err := c.History.CommitWithAI(ctx, c.Generator, "")
		c.commitDone <- commitResult{paths: paths, err: err}
	}()
}

// scanTemplates implements step e: walk every group this machine belongs
// to, detect new/modified/deleted templates, and apply remote changes
// when AutoApply is enabled.
func (c *Core) scanTemplates() error {
	for _, group := range c.Groups {
		groupDir := c.Layout.GroupDir(group)
		if !c.FS.Exists(groupDir) {
			continue
		}
		templates, err := c.listTemplateFiles(groupDir)
		if err != nil {
			return err
		}

		seen := map[string]bool{}
		for _, tmplPath := range templates {
			seen[tmplPath] = true
			data, err := c.FS.ReadFile(tmplPath)
			if err != nil {
				return lzerr.IO(tmplPath, err)
			}
			hash := sha256Hex(data)
			prev, known := c.knownTemplateHashes[tmplPath]
			c.knownTemplateHashes[tmplPath] = hash
			if known && prev == hash {
				continue
			}
			c.handleTemplateChange(group, tmplPath)
		}

		for tmplPath := range c.knownTemplateHashes {
			if strings.HasPrefix(tmplPath, groupDir) && !seen[tmplPath] {
				delete(c.knownTemplateHashes, tmplPath)
				c.handleTemplateDeletion(group, tmplPath)
			}
		}
	}
	return nil
}

func (c *Core) handleTemplateChange(group, tmplPath string) {
	logicalPath, err := c.Layout.LogicalPathFromGroupTemplate(group, tmplPath)
	if err != nil {
		logging.Error("template path %s: %v", tmplPath, err)
		return
	}
	if c.localTemplateChanges.Contains(tmplPath) {
		// Our own write from step c; the scan will have observed it, but
		// it must not be misclassified as a remote change (invariant 2).
		return
	}
	if !c.AutoApply {
		return
	}
	c.ignore.Add(logicalPath)
	status := audit.Completed
	if err := c.Enroll.Apply(group, nil, enroll.ApplyHooks{}); err != nil {
		logging.Error("auto-applying %s: %v", logicalPath, err)
		status = audit.Failed
	}
	if c.Audit != nil {
		g := group
		if _, err := c.Audit.Record("apply", logicalPath, &g, status, ""); err != nil {
			logging.Error("recording audit action for %s: %v", logicalPath, err)
		}
	}
	if c.WebUI != nil {
		c.WebUI.Publish(webui.Event{Op: "apply", Path: logicalPath, Group: group, Ts: c.Clock.Now()})
	}
}

func (c *Core) handleTemplateDeletion(group, tmplPath string) {
	logicalPath, err := c.Layout.LogicalPathFromGroupTemplate(group, tmplPath)
	if err != nil {
		return
	}
	if c.localTemplateChanges.Contains(tmplPath) || !c.AutoApply {
		return
	}
	c.ignore.Add(logicalPath)
	status := audit.Completed
	if err := c.FS.Remove(logicalPath); err != nil {
		logging.Error("removing %s after template deletion: %v", logicalPath, err)
		status = audit.Failed
	}
	if c.Audit != nil {
		g := group
		if _, err := c.Audit.Record("delete", logicalPath, &g, status, ""); err != nil {
			logging.Error("recording audit action for %s: %v", logicalPath, err)
		}
	}
	if c.WebUI != nil {
		c.WebUI.Publish(webui.Event{Op: "delete", Path: logicalPath, Group: group, Ts: c.Clock.Now()})
	}
}

// MissingFileSweep implements the hard-mode startup sweep: for every
// enrolled entry whose logical path no longer exists locally and whose
// group strategy is converge, delete the template and schedule a commit
// (spec.md §4.6).
func (c *Core) MissingFileSweep() error {
	var swept []string
	for _, group := range c.Groups {
		cfg, err := c.Configs.Load(c.Layout.GroupConfig(group))
		if err != nil {
			return err
		}
		if cfg.EffectiveAction() != groupconfig.Converge && cfg.EffectiveAction() != groupconfig.Auto {
			continue
		}

		mf, err := c.Manifests.Load(c.Layout.GroupManifest(group))
		if err != nil {
			return err
		}
		for _, logicalPath := range mf.SortedPaths() {
			entry := mf.Entries[logicalPath]
			if entry.IsDirectory() || c.FS.Exists(logicalPath) {
				continue
			}
			tmplPath := c.entryTemplatePath(group, logicalPath)
			if !c.FS.Exists(tmplPath) {
				continue
			}
			if err := c.FS.Remove(tmplPath); err != nil {
				return lzerr.IO(tmplPath, err)
			}
			swept = append(swept, tmplPath)
			if c.Audit != nil {
				g := group
				if _, err := c.Audit.Record("sweep", logicalPath, &g, audit.Completed, ""); err != nil {
					logging.Error("recording audit action for %s: %v", logicalPath, err)
				}
			}
			if c.WebUI != nil {
				c.WebUI.Publish(webui.Event{Op: "sweep", Path: logicalPath, Group: group, Ts: c.Clock.Now()})
			}
		}
	}
	if len(swept) > 0 {
		for _, p := range swept {
			c.localTemplateChanges.Add(p)
		}
		c.scheduleCommit()
	}
	return nil
}

// listTemplateFiles walks groupDir for files matching templateGlob,
// skipping anything the shared store's top-level .gitignore excludes.
func (c *Core) listTemplateFiles(groupDir string) ([]string, error) {
	matcher := ignorefile.Load(c.FS, filepath.Join(c.Layout.Root, ".gitignore"))
	return c.walkTemplateFiles(groupDir, groupDir, matcher)
}

func (c *Core) walkTemplateFiles(groupDir, dir string, matcher *ignorefile.Matcher) ([]string, error) {
	var out []string
	entries, err := c.FS.ReadDir(dir)
	if err != nil {
		return nil, lzerr.IO(dir, err)
	}
	for _, e := range entries {
		full := dir + "/" + e.Name()
		rel, err := filepath.Rel(c.Layout.Root, full)
		if err != nil {
			rel = full
		}
		if matcher.MatchesPath(rel, e.IsDir()) {
			continue
		}
		if e.IsDir() {
			nested, err := c.walkTemplateFiles(groupDir, full, matcher)
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)
			continue
		}
		relToGroup, err := filepath.Rel(groupDir, full)
		if err != nil {
			continue
		}
		if ok, _ := doublestar.Match(templateGlob, relToGroup); ok {
			out = append(out, full)
		}
	}
	return out, nil
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
