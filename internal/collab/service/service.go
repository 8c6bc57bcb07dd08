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

// Package service installs, uninstalls, and reports the status of a
// systemd unit for the watch core, out-of-core per spec.md §1 but given a
// real implementation rather than a stub.
package service

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/laszoo/laszoo/internal/lzerr"
	"github.com/laszoo/laszoo/internal/platform"
)

const (
	unitPath     = "/etc/systemd/system/laszoo.service"
	defaultsPath = "/etc/default/laszoo"
)

// Manager drives systemctl and the unit files it manages, the Go
// equivalent of the original ServiceManager.
type Manager struct {
	FS         platform.FileSystem
	BinaryPath string
	runCommand func(name string, args ...string) error
}

// New returns a Manager for binaryPath, the laszoo executable to run under
// systemd, writing unit files through fs so Install/Uninstall are testable
// against platform.MapFS like the rest of the tree.
func New(fs platform.FileSystem, binaryPath string) *Manager {
	return &Manager{
		FS:         fs,
		BinaryPath: binaryPath,
		runCommand: runSystemctl,
	}
}

// Options configures the installed unit.
type Options struct {
	User      string
	Hard      bool
	ExtraArgs string
	Mount     string
}

// Install writes the defaults file and unit file, then reloads, enables,
// and starts the service.
func (m *Manager) Install(opts Options) error {
	if err := m.FS.WriteFile(defaultsPath, []byte(defaultsFileContent(opts)), 0o644); err != nil {
		return lzerr.IO(defaultsPath, err)
	}
	if err := m.FS.WriteFile(unitPath, []byte(unitFileContent(m.BinaryPath, opts)), 0o644); err != nil {
		return lzerr.IO(unitPath, err)
	}

	for _, args := range [][]string{
		{"daemon-reload"},
		{"enable", "laszoo"},
		{"start", "laszoo"},
	} {
		if err := m.runCommand("systemctl", args...); err != nil {
			return err
		}
	}
	return nil
}

// Uninstall stops and disables the service and removes its unit files.
// Stop/disable failures are tolerated since the service may already be
// gone.
func (m *Manager) Uninstall() error {
	_ = m.runCommand("systemctl", "stop", "laszoo")
	_ = m.runCommand("systemctl", "disable", "laszoo")

	for _, path := range []string{unitPath, defaultsPath} {
		if !m.FS.Exists(path) {
			continue
		}
		if err := m.FS.Remove(path); err != nil {
			return lzerr.IO(path, err)
		}
	}
	return m.runCommand("systemctl", "daemon-reload")
}

// Status returns the output of `systemctl status laszoo --no-pager`.
func (m *Manager) Status(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, "systemctl", "status", "laszoo", "--no-pager")
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	_ = cmd.Run() // systemctl exits non-zero for a stopped-but-installed unit
	return out.String(), nil
}

func runSystemctl(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return lzerr.IO(strings.Join(append([]string{name}, args...), " "), fmt.Errorf("%w: %s", err, stderr.String()))
	}
	return nil
}

func defaultsFileContent(opts Options) string {
	mount := opts.Mount
	if mount == "" {
		mount = "/mnt/laszoo"
	}
	return fmt.Sprintf(`# Laszoo service configuration
# This file is sourced by the systemd service

LASZOO_USER=%q
LASZOO_HARD=%q
LASZOO_EXTRA_ARGS=%q
LASZOO_MOUNT=%q
`, opts.User, boolString(opts.Hard), opts.ExtraArgs, mount)
}

func unitFileContent(binary string, opts Options) string {
	return fmt.Sprintf(`[Unit]
Description=Laszoo Configuration Management
Documentation=https://github.com/laszoo/laszoo
After=network.target
RequiresMountsFor=%s

[Service]
Type=simple
User=%s
Group=%s
EnvironmentFile=-%s
ExecStartPre=/bin/bash -c 'if ! mountpoint -q ${LASZOO_MOUNT:-%s}; then echo "Warning: ${LASZOO_MOUNT:-%s} is not mounted"; fi'
ExecStart=/bin/bash -c '%s watch -a ${LASZOO_HARD:+--hard} ${LASZOO_EXTRA_ARGS}'
Restart=always
RestartSec=30
KillMode=process
TimeoutStopSec=60
StandardOutput=journal
StandardError=journal
NoNewPrivileges=true
PrivateTmp=true

[Install]
WantedBy=multi-user.target
`, mountOrDefault(opts.Mount), opts.User, opts.User, defaultsPath, mountOrDefault(opts.Mount), mountOrDefault(opts.Mount), binary)
}

func mountOrDefault(mount string) string {
	if mount == "" {
		return "/mnt/laszoo"
	}
	return mount
}

// boolString writes false as an empty value, so the unit's
// ${LASZOO_HARD:+--hard} expands to nothing unless hard mode is on.
func boolString(b bool) string {
	if b {
		return "true"
	}
	return ""
}
