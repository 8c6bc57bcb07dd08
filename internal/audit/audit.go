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

// Package audit records one JSON file per operation under
// <root>/actions/<host>/<ts>-<action_type>-<id>.json (§6), the audit
// trail a machine leaves behind for reconciliation, package, and service
// operations. It is a generalization of the original PackageManager's
// record_action/get_command_history into a collaborator every subsystem
// can call, not just package operations.
package audit

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/laszoo/laszoo/internal/layout"
	"github.com/laszoo/laszoo/internal/lzerr"
	"github.com/laszoo/laszoo/internal/platform"
)

// Status is the outcome an action record reports.
type Status string

const (
	Started   Status = "started"
	Completed Status = "completed"
	Failed    Status = "failed"
)

// Record is one entry in the audit trail.
type Record struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Hostname  string    `json:"hostname"`
	// ActionType names the operation (e.g. "package_install", "reconcile",
	// "enroll"), free-form like the original's action_type field.
	ActionType string  `json:"action_type"`
	Target     string  `json:"target"`
	Group      *string `json:"group,omitempty"`
	Status     Status  `json:"status"`
	Details    string  `json:"details,omitempty"`
}

// Trail writes and reads action records for one machine.
type Trail struct {
	FS       platform.FileSystem
	Layout   layout.Layout
	Clock    platform.TimeProvider
	Hostname string
}

// New returns a Trail rooted at l.ActionsDir(hostname).
func New(fs platform.FileSystem, l layout.Layout, clock platform.TimeProvider, hostname string) *Trail {
	return &Trail{FS: fs, Layout: l, Clock: clock, Hostname: hostname}
}

// Record appends a new entry, generating its ID and timestamp, and
// returns the ID so a caller can later correlate a "started" record with
// its "completed"/"failed" follow-up.
func (t *Trail) Record(actionType, target string, group *string, status Status, details string) (string, error) {
	id := uuid.NewString()
	rec := Record{
		ID:         id,
		Timestamp:  t.Clock.Now().UTC(),
		Hostname:   t.Hostname,
		ActionType: actionType,
		Target:     target,
		Group:      group,
		Status:     status,
		Details:    details,
	}
	return id, t.write(rec)
}

func (t *Trail) write(rec Record) error {
	dir := t.Layout.ActionsDir(t.Hostname)
	if err := t.FS.MkdirAll(dir, 0o755); err != nil {
		return lzerr.IO(dir, err)
	}

	filename := rec.Timestamp.Format("20060102-150405") + "-" + sanitize(rec.ActionType) + "-" + rec.ID[:8] + ".json"
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return lzerr.Serialization(filename, err)
	}
	path := dir + "/" + filename
	if err := t.FS.WriteFile(path, data, 0o644); err != nil {
		return lzerr.IO(path, err)
	}
	return nil
}

func sanitize(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), " ", "_")
}

// ForGroup returns every record this machine has recorded for group,
// oldest first, mirroring get_command_history's per-group filter.
func (t *Trail) ForGroup(group string) ([]Record, error) {
	dir := t.Layout.ActionsDir(t.Hostname)
	if !t.FS.Exists(dir) {
		return nil, nil
	}
	entries, err := t.FS.ReadDir(dir)
	if err != nil {
		return nil, lzerr.IO(dir, err)
	}

	var records []Record
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := t.FS.ReadFile(dir + "/" + e.Name())
		if err != nil {
			return nil, lzerr.IO(e.Name(), err)
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		if rec.Group != nil && *rec.Group == group {
			records = append(records, rec)
		}
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Timestamp.Before(records[j].Timestamp) })
	return records, nil
}
