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

	"github.com/laszoo/laszoo/internal/enroll"
	"github.com/laszoo/laszoo/internal/logging"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Project group (and machine) templates onto the local filesystem",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(true)
		if err != nil {
			return err
		}
		group, _ := cmd.Flags().GetString("group")

		groups, err := groupsFromFlagOrMembership(rt, group)
		if err != nil {
			return err
		}
		if len(groups) == 0 {
			logging.Warning("this host is not a member of any group; nothing to apply")
			return nil
		}

		mgr := enroll.NewManager(rt.FS, rt.Layout, rt.Clock, rt.Hostname)
		failures := 0
		for _, g := range groups {
			if err := mgr.Apply(g, nil, enroll.ApplyHooks{}); err != nil {
				logging.Error("applying group %s: %v", g, err)
				failures++
				continue
			}
			logging.Success("applied templates for group %s", g)
		}
		if failures > 0 {
			return fmt.Errorf("apply failed for %d group(s)", failures)
		}
		return nil
	},
}

func init() {
	applyCmd.Flags().String("group", "", "limit to one group (default: every group this host belongs to)")
	rootCmd.AddCommand(applyCmd)
}
