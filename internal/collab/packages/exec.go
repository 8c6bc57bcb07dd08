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

package packages

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/laszoo/laszoo/internal/lzerr"
)

// Manager identifies which package manager an Executor drives.
type Manager int

const (
	Unknown Manager = iota
	Apt
	Yum
	Dnf
	Pacman
	Zypper
	Apk
)

func (m Manager) String() string {
	switch m {
	case Apt:
		return "apt"
	case Yum:
		return "yum"
	case Dnf:
		return "dnf"
	case Pacman:
		return "pacman"
	case Zypper:
		return "zypper"
	case Apk:
		return "apk"
	default:
		return "unknown"
	}
}

// candidate pairs a manager with the binaries that indicate its presence,
// checked in this priority order.
var candidates = []struct {
	manager Manager
	paths   []string
}{
	{Apt, []string{"/usr/bin/apt-get"}},
	{Yum, []string{"/usr/bin/yum"}},
	{Dnf, []string{"/usr/bin/dnf"}},
	{Pacman, []string{"/usr/bin/pacman"}},
	{Zypper, []string{"/usr/bin/zypper"}},
	{Apk, []string{"/usr/bin/apk", "/sbin/apk"}},
}

// DetectManager probes well-known binary paths for a supported package
// manager, in the same priority order the original agent used.
func DetectManager() (Manager, error) {
	for _, c := range candidates {
		for _, path := range c.paths {
			if _, err := os.Stat(path); err == nil {
				return c.manager, nil
			}
		}
	}
	return Unknown, lzerr.New(lzerr.KindNotFound, "", "no supported package manager found on this host")
}

// commandSet is the install/upgrade/remove/purge/update-all/upgrade-all
// argv template for one package manager, {} substituted with a package
// name where present.
type commandSet struct {
	install     []string
	upgrade     []string
	remove      []string
	purge       []string
	updateAll   []string
	upgradeAll  []string
}

var commandSets = map[Manager]commandSet{
	Apt: {
		install:    []string{"apt-get", "install", "-y", "{}"},
		upgrade:    []string{"apt-get", "install", "--only-upgrade", "-y", "{}"},
		remove:     []string{"apt-get", "remove", "-y", "{}"},
		purge:      []string{"apt-get", "purge", "-y", "{}"},
		updateAll:  []string{"apt-get", "update"},
		upgradeAll: []string{"apt-get", "upgrade", "-y"},
	},
	Yum: {
		install:    []string{"yum", "install", "-y", "{}"},
		upgrade:    []string{"yum", "update", "-y", "{}"},
		remove:     []string{"yum", "remove", "-y", "{}"},
		purge:      []string{"yum", "remove", "-y", "{}"},
		updateAll:  []string{"yum", "check-update"},
		upgradeAll: []string{"yum", "update", "-y"},
	},
	Dnf: {
		install:    []string{"dnf", "install", "-y", "{}"},
		upgrade:    []string{"dnf", "upgrade", "-y", "{}"},
		remove:     []string{"dnf", "remove", "-y", "{}"},
		purge:      []string{"dnf", "remove", "-y", "{}"},
		updateAll:  []string{"dnf", "check-update"},
		upgradeAll: []string{"dnf", "upgrade", "-y"},
	},
	Pacman: {
		install:    []string{"pacman", "-S", "--noconfirm", "{}"},
		upgrade:    []string{"pacman", "-S", "--noconfirm", "{}"},
		remove:     []string{"pacman", "-R", "--noconfirm", "{}"},
		purge:      []string{"pacman", "-Rns", "--noconfirm", "{}"},
		updateAll:  []string{"pacman", "-Sy", "--noconfirm"},
		upgradeAll: []string{"pacman", "-Syu", "--noconfirm"},
	},
	Zypper: {
		install:    []string{"zypper", "--non-interactive", "install", "{}"},
		upgrade:    []string{"zypper", "--non-interactive", "update", "{}"},
		remove:     []string{"zypper", "--non-interactive", "remove", "{}"},
		purge:      []string{"zypper", "--non-interactive", "remove", "--clean-deps", "{}"},
		updateAll:  []string{"zypper", "--non-interactive", "refresh"},
		upgradeAll: []string{"zypper", "--non-interactive", "update"},
	},
	Apk: {
		install:    []string{"apk", "add", "{}"},
		upgrade:    []string{"apk", "upgrade", "{}"},
		remove:     []string{"apk", "del", "{}"},
		purge:      []string{"apk", "del", "{}"},
		updateAll:  []string{"apk", "update"},
		upgradeAll: []string{"apk", "upgrade"},
	},
}

func argv(template []string, name string) []string {
	out := make([]string, len(template))
	for i, t := range template {
		if t == "{}" {
			out[i] = name
			continue
		}
		out[i] = t
	}
	return out
}

// ActionHook is called around UpdateAll/UpgradeAll's --before/--after
// shell commands and Upgrade's --upgrade= post-action, so a caller can
// record an audit trail entry without this package depending on one.
type ActionHook func(description string, err error)

// Executor applies parsed Operations against a detected package manager.
type Executor struct {
	Manager Manager
	run     func(name string, args ...string) error
	OnHook  ActionHook
}

// NewExecutor returns an Executor driving mgr via os/exec.
func NewExecutor(mgr Manager) *Executor {
	return &Executor{Manager: mgr, run: runCommand}
}

// Apply runs every operation in order, stopping at the first error.
// UpdateAll/UpgradeAll's --before failure is fatal; --after failure is
// only reported through OnHook, matching the original agent's
// patch-group semantics.
func (e *Executor) Apply(ops []Operation) error {
	set, ok := commandSets[e.Manager]
	if !ok {
		return lzerr.New(lzerr.KindNotFound, "", fmt.Sprintf("no command set for package manager %s", e.Manager))
	}

	for _, op := range ops {
		switch op.Kind {
		case Install:
			if err := e.run(argv(set.install, op.Name)[0], argv(set.install, op.Name)[1:]...); err != nil {
				return lzerr.Wrap(lzerr.KindIO, op.Name, "installing package", err)
			}
		case Upgrade:
			args := argv(set.upgrade, op.Name)
			if err := e.run(args[0], args[1:]...); err != nil {
				return lzerr.Wrap(lzerr.KindIO, op.Name, "upgrading package", err)
			}
			if op.PostAction != "" {
				err := runShell(op.PostAction)
				e.hook("post-action: "+op.PostAction, err)
				if err != nil {
					return lzerr.Wrap(lzerr.KindIO, op.Name, "running post-action", err)
				}
			}
		case Remove:
			args := argv(set.remove, op.Name)
			if err := e.run(args[0], args[1:]...); err != nil {
				return lzerr.Wrap(lzerr.KindIO, op.Name, "removing package", err)
			}
		case Purge:
			args := argv(set.purge, op.Name)
			if err := e.run(args[0], args[1:]...); err != nil {
				return lzerr.Wrap(lzerr.KindIO, op.Name, "purging package", err)
			}
		case UpdateAll:
			if err := e.runWithHooks(set.updateAll, op.Before, op.After); err != nil {
				return err
			}
		case UpgradeAll:
			if err := e.runWithHooks(set.upgradeAll, op.Before, op.After); err != nil {
				return err
			}
		case Keep:
			// no-op: explicitly leave the package alone
		}
	}
	return nil
}

// SystemUpgrade runs the manager's unconditional system-wide upgrade, the
// step `laszoo patch` performs after any before-hook and before applying
// a group's packages.conf.
func (e *Executor) SystemUpgrade() error {
	set, ok := commandSets[e.Manager]
	if !ok {
		return lzerr.New(lzerr.KindNotFound, "", fmt.Sprintf("no command set for package manager %s", e.Manager))
	}
	if err := e.run(set.updateAll[0], set.updateAll[1:]...); err != nil {
		return lzerr.Wrap(lzerr.KindIO, "", "updating package index", err)
	}
	if err := e.run(set.upgradeAll[0], set.upgradeAll[1:]...); err != nil {
		return lzerr.Wrap(lzerr.KindIO, "", "upgrading system", err)
	}
	return nil
}

func (e *Executor) runWithHooks(mainArgs []string, before, after string) error {
	if before != "" {
		err := runShell(before)
		e.hook("before: "+before, err)
		if err != nil {
			return lzerr.Wrap(lzerr.KindIO, "", "running before-hook", err)
		}
	}
	if err := e.run(mainArgs[0], mainArgs[1:]...); err != nil {
		return lzerr.Wrap(lzerr.KindIO, "", "running package manager", err)
	}
	if after != "" {
		err := runShell(after)
		e.hook("after: "+after, err)
		// an after-hook failure is a warning, not fatal
	}
	return nil
}

func (e *Executor) hook(description string, err error) {
	if e.OnHook != nil {
		e.OnHook(description, err)
	}
}

func runCommand(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func runShell(command string) error {
	cmd := exec.Command("sh", "-c", command)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
