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
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/laszoo/laszoo/internal/collab/packages"
	"github.com/laszoo/laszoo/internal/logging"
	"github.com/laszoo/laszoo/internal/lzerr"
)

var patchCmd = &cobra.Command{
	Use:   "patch <group>",
	Short: "Run a system package upgrade and apply a group's packages.conf, if this host is a member",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(true)
		if err != nil {
			return err
		}
		groupName := args[0]

		member, err := rt.isMemberOf(groupName)
		if err != nil {
			return err
		}
		if !member {
			logging.Info("this host is not a member of %s; nothing to patch", groupName)
			return nil
		}

		rolling, _ := cmd.Flags().GetBool("rolling")
		lockPath := filepath.Join(rt.Layout.GroupDir(groupName), ".patch_lock")
		if rolling {
			if rt.FS.Exists(lockPath) {
				return lzerr.New(lzerr.KindConfig, lockPath, fmt.Sprintf("group %s already has a rolling patch in progress", groupName))
			}
			if err := rt.FS.WriteFile(lockPath, []byte(rt.Hostname+"\n"), 0o644); err != nil {
				return lzerr.IO(lockPath, err)
			}
			defer func() {
				if err := rt.FS.Remove(lockPath); err != nil {
					logging.Warning("removing patch lock %s: %v", lockPath, err)
				}
			}()
		}

		if before, _ := cmd.Flags().GetString("before"); before != "" {
			logging.Info("running --before hook")
			if err := runHook(before); err != nil {
				return fmt.Errorf("before-hook failed: %w", err)
			}
		}

		mgr, err := packages.DetectManager()
		if err != nil {
			return err
		}
		exec := packages.NewExecutor(mgr)
		logging.Info("upgrading system packages via %s", mgr)
		if err := exec.SystemUpgrade(); err != nil {
			return err
		}

		confPath := rt.Layout.PackagesConf(groupName)
		if rt.FS.Exists(confPath) {
			data, err := rt.FS.ReadFile(confPath)
			if err != nil {
				return lzerr.IO(confPath, err)
			}
			ops := packages.Parse(string(data))
			if err := exec.Apply(ops); err != nil {
				return err
			}
		}

		if after, _ := cmd.Flags().GetString("after"); after != "" {
			logging.Info("running --after hook")
			if err := runHook(after); err != nil {
				logging.Warning("after-hook failed: %v", err)
			}
		}

		logging.Success("patched group %s", groupName)
		return nil
	},
}

func init() {
	patchCmd.Flags().Bool("rolling", false, "take an advisory lock so only one host patches this group at a time")
	patchCmd.Flags().String("before", "", "shell command to run before the system upgrade; failure aborts the patch")
	patchCmd.Flags().String("after", "", "shell command to run after applying packages.conf; failure is only a warning")
	rootCmd.AddCommand(patchCmd)
}
