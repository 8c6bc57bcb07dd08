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

// Package layout computes, from a shared-store root, a hostname, a group
// name and a logical path, every location spec.md §4.1/§6 defines under
// the shared store. Every function here is pure: no I/O, no errors beyond
// rejecting a malformed logical path.
package layout

import (
	"fmt"
	"path/filepath"
	"strings"
)

// TemplateSuffix is appended to a logical path's basename to form its
// template location under the shared store.
const TemplateSuffix = ".lasz"

const templateSuffix = TemplateSuffix

// Layout binds a shared-store root so callers don't repeat it at every call.
type Layout struct {
	Root string
}

// New returns a Layout rooted at root.
func New(root string) Layout {
	return Layout{Root: root}
}

// ValidateLogicalPath rejects a logical path that isn't an absolute,
// non-empty path, matching original_source/src/fs/mod.rs's guard.
func ValidateLogicalPath(p string) error {
	if p == "" {
		return fmt.Errorf("logical path must not be empty")
	}
	if !filepath.IsAbs(p) {
		return fmt.Errorf("logical path %q must be absolute", p)
	}
	return nil
}

func stripLeadingSlash(p string) string {
	return strings.TrimPrefix(p, string(filepath.Separator))
}

// GroupDir returns <root>/groups/<g>.
func (l Layout) GroupDir(group string) string {
	return filepath.Join(l.Root, "groups", group)
}

// MachineDir returns <root>/machines/<h>.
func (l Layout) MachineDir(host string) string {
	return filepath.Join(l.Root, "machines", host)
}

// Membership returns <root>/memberships/<g>/<h>, the symlink location.
func (l Layout) Membership(group, host string) string {
	return filepath.Join(l.Root, "memberships", group, host)
}

// MembershipTarget returns the relative symlink target for Membership,
// "../../machines/<h>".
func (l Layout) MembershipTarget(host string) string {
	return filepath.Join("..", "..", "machines", host)
}

// GroupTemplate returns group_dir(g) + strip_leading_slash(p) + ".lasz".
func (l Layout) GroupTemplate(group, logicalPath string) string {
	return l.GroupDir(group) + string(filepath.Separator) + stripLeadingSlash(logicalPath) + templateSuffix
}

// MachineTemplate returns machine_dir(h) + strip_leading_slash(p) + ".lasz".
func (l Layout) MachineTemplate(host, logicalPath string) string {
	return l.MachineDir(host) + string(filepath.Separator) + stripLeadingSlash(logicalPath) + templateSuffix
}

// GroupManifest returns group_dir(g)/manifest.json.
func (l Layout) GroupManifest(group string) string {
	return filepath.Join(l.GroupDir(group), "manifest.json")
}

// MachineManifest returns machine_dir(h)/manifest.json.
func (l Layout) MachineManifest(host string) string {
	return filepath.Join(l.MachineDir(host), "manifest.json")
}

// GroupsConf returns machine_dir(h)/etc/laszoo/groups.conf.
func (l Layout) GroupsConf(host string) string {
	return filepath.Join(l.MachineDir(host), "etc", "laszoo", "groups.conf")
}

// GroupConfig returns group_dir(g)/config.json.
func (l Layout) GroupConfig(group string) string {
	return filepath.Join(l.GroupDir(group), "config.json")
}

// PackagesConf returns group_dir(g)/etc/laszoo/packages.conf (§6).
func (l Layout) PackagesConf(group string) string {
	return filepath.Join(l.GroupDir(group), "etc", "laszoo", "packages.conf")
}

// GroupsIndex returns <root>/groups.json, the cross-group registry of group
// names, descriptions and member hosts (distinct from a single group's own
// manifest.json of enrolled files).
func (l Layout) GroupsIndex() string {
	return filepath.Join(l.Root, "groups.json")
}

// ActionsDir returns <root>/actions/<h> (§6 audit trail).
func (l Layout) ActionsDir(host string) string {
	return filepath.Join(l.Root, "actions", host)
}

// LogicalPathFromGroupTemplate inverts GroupTemplate: given a path under
// <root>/groups/<g>/..., returns the logical path it corresponds to. The
// caller must already know templatePath is under GroupDir(group).
func (l Layout) LogicalPathFromGroupTemplate(group, templatePath string) (string, error) {
	return logicalFromTemplate(l.GroupDir(group), templatePath)
}

// LogicalPathFromMachineTemplate inverts MachineTemplate.
func (l Layout) LogicalPathFromMachineTemplate(host, templatePath string) (string, error) {
	return logicalFromTemplate(l.MachineDir(host), templatePath)
}

func logicalFromTemplate(dir, templatePath string) (string, error) {
	rel, err := filepath.Rel(dir, templatePath)
	if err != nil {
		return "", fmt.Errorf("template path %q is not under %q: %w", templatePath, dir, err)
	}
	if !strings.HasSuffix(rel, templateSuffix) {
		return "", fmt.Errorf("template path %q is missing the %s suffix", templatePath, templateSuffix)
	}
	rel = strings.TrimSuffix(rel, templateSuffix)
	return string(filepath.Separator) + rel, nil
}
