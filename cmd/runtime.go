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

package cmd

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/laszoo/laszoo/cmd/config"
	"github.com/laszoo/laszoo/internal/group"
	"github.com/laszoo/laszoo/internal/layout"
	"github.com/laszoo/laszoo/internal/logging"
	"github.com/laszoo/laszoo/internal/lzerr"
	"github.com/laszoo/laszoo/internal/platform"
)

// runtime bundles the collaborators every subcommand wires against: the
// resolved configuration, the shared-store layout, this machine's identity
// and the groups administrator, built once per invocation the way the
// teacher's workspace.Context bundles a resolved project.
type runtime struct {
	Config   *config.Config
	FS       platform.FileSystem
	Clock    platform.TimeProvider
	Layout   layout.Layout
	Hostname string
	Groups   *group.Manager
}

// newRuntime resolves configuration and wires the shared collaborators.
// requireStore rejects an unmounted shared store up front; `init` passes
// false since its job is to create that store.
func newRuntime(requireStore bool) (*runtime, error) {
	cfg, err := config.Load(viper.GetString("configFile"))
	if err != nil {
		return nil, lzerr.Wrap(lzerr.KindConfig, "", "loading configuration", err)
	}
	if mount := viper.GetString("mount"); mount != "" {
		cfg.MFSMount = mount
	}

	if viper.GetBool("verbose") {
		logging.SetLevel(logging.LogLevelDebug)
	} else {
		logging.SetLevel(logging.ParseLogLevel(cfg.LogLevel))
	}

	mount, err := config.ExpandMount(cfg)
	if err != nil {
		return nil, lzerr.Wrap(lzerr.KindConfig, cfg.MFSMount, "expanding mfs_mount", err)
	}
	cfg.MFSMount = mount

	hostname, err := os.Hostname()
	if err != nil {
		return nil, lzerr.Wrap(lzerr.KindIO, "", "resolving hostname", err)
	}

	fs := platform.NewOSFileSystem()
	if requireStore && !fs.Exists(mount) {
		return nil, lzerr.SharedStoreUnavailable(mount)
	}

	l := layout.New(mount)
	clock := platform.NewRealTimeProvider()

	return &runtime{
		Config:   cfg,
		FS:       fs,
		Clock:    clock,
		Layout:   l,
		Hostname: hostname,
		Groups:   group.NewManager(fs, l, clock),
	}, nil
}

// enrolledGroups reads this machine's groups.conf: the newline-separated
// list of group names it belongs to (spec.md §6). A missing file means no
// memberships yet, not an error.
func (r *runtime) enrolledGroups() ([]string, error) {
	return r.readConfLines(r.Layout.GroupsConf(r.Hostname))
}

// joinGroupConf appends name to this machine's groups.conf, unless it is
// already present.
func (r *runtime) joinGroupConf(name string) error {
	groups, err := r.enrolledGroups()
	if err != nil {
		return err
	}
	for _, g := range groups {
		if g == name {
			return nil
		}
	}
	groups = append(groups, name)
	return r.writeGroupConf(groups)
}

// leaveGroupConf removes name from this machine's groups.conf.
func (r *runtime) leaveGroupConf(name string) error {
	groups, err := r.enrolledGroups()
	if err != nil {
		return err
	}
	out := groups[:0]
	for _, g := range groups {
		if g != name {
			out = append(out, g)
		}
	}
	return r.writeGroupConf(out)
}

func (r *runtime) writeGroupConf(groups []string) error {
	path := r.Layout.GroupsConf(r.Hostname)
	return r.writeConfLines(path, groups)
}

// writeConfLines writes a newline-separated conf file, creating its parent
// directory first. Shared by groups.conf and packages.conf writers.
func (r *runtime) writeConfLines(path string, lines []string) error {
	if err := r.FS.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return lzerr.IO(path, err)
	}
	content := strings.Join(lines, "\n")
	if content != "" {
		content += "\n"
	}
	if err := r.FS.WriteFile(path, []byte(content), 0o644); err != nil {
		return lzerr.IO(path, err)
	}
	return nil
}

// runHook runs command through a shell, the same --before/--after hook
// mechanism install and patch expose (spec.md §6).
func runHook(command string) error {
	c := exec.Command("sh", "-c", command)
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	return c.Run()
}

// readConfLines reads a newline-separated conf file, tolerating a missing
// file as empty rather than an error.
func (r *runtime) readConfLines(path string) ([]string, error) {
	if !r.FS.Exists(path) {
		return nil, nil
	}
	data, err := r.FS.ReadFile(path)
	if err != nil {
		return nil, lzerr.IO(path, err)
	}
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}
