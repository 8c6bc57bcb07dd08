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

	"github.com/spf13/cobra"

	"github.com/laszoo/laszoo/internal/collab/packages"
	"github.com/laszoo/laszoo/internal/logging"
)

var installCmd = &cobra.Command{
	Use:   "install <group> <package>",
	Short: "Add a package to a group's install list, applying it locally if this host is a member",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(true)
		if err != nil {
			return err
		}
		groupName, pkg := args[0], args[1]

		path := rt.Layout.PackagesConf(groupName)
		lines, err := rt.readConfLines(path)
		if err != nil {
			return err
		}
		line := "+" + pkg
		lines = append(lines, line)
		if err := rt.writeConfLines(path, lines); err != nil {
			return err
		}
		logging.Success("added %q to group %s's install list", pkg, groupName)

		member, err := rt.isMemberOf(groupName)
		if err != nil {
			return err
		}
		if !member {
			logging.Info("this host is not a member of %s; install recorded but not applied locally", groupName)
			return nil
		}

		ops := packages.Parse(line)
		mgr, err := packages.DetectManager()
		if err != nil {
			return err
		}
		exec := packages.NewExecutor(mgr)
		if err := exec.Apply(ops); err != nil {
			return err
		}

		after, _ := cmd.Flags().GetString("after")
		if after != "" {
			logging.Info("running --after hook")
			if err := runHook(after); err != nil {
				return fmt.Errorf("after-hook failed: %w", err)
			}
		}
		logging.Success("installed %q locally via %s", pkg, mgr)
		return nil
	},
}

// isMemberOf reports whether this host's groups.conf lists group.
func (r *runtime) isMemberOf(group string) (bool, error) {
	groups, err := r.enrolledGroups()
	if err != nil {
		return false, err
	}
	for _, g := range groups {
		if g == group {
			return true, nil
		}
	}
	return false, nil
}

func init() {
	installCmd.Flags().String("after", "", "shell command to run locally after a successful install")
	rootCmd.AddCommand(installCmd)
}
