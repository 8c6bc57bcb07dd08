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

	"github.com/laszoo/laszoo/internal/logging"
	"github.com/laszoo/laszoo/internal/syncengine"
)

// groupsFromFlagOrMembership resolves which groups a sync/status/apply
// invocation should act on: the explicit --group flag if given, else every
// group this machine's groups.conf lists.
func groupsFromFlagOrMembership(rt *runtime, group string) ([]string, error) {
	if group != "" {
		return []string{group}, nil
	}
	return rt.enrolledGroups()
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Classify and reconcile every enrolled entry against its group's strategy",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(true)
		if err != nil {
			return err
		}
		group, _ := cmd.Flags().GetString("group")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		groups, err := groupsFromFlagOrMembership(rt, group)
		if err != nil {
			return err
		}
		if len(groups) == 0 {
			logging.Warning("this host is not a member of any group; nothing to sync")
			return nil
		}

		engine := syncengine.New(rt.FS, rt.Layout, rt.Clock, rt.Hostname)
		failures := 0
		for _, g := range groups {
			ops, err := engine.Plan(g)
			if err != nil {
				logging.Error("planning group %s: %v", g, err)
				failures++
				continue
			}
			applied, err := engine.Execute(ops, dryRun)
			if err != nil {
				logging.Error("executing group %s: %v", g, err)
				failures++
				continue
			}
			for _, op := range applied {
				if op.Outcome == syncengine.NoOp {
					continue
				}
				logging.Info("%s: %s (%s) - %s", g, op.LogicalPath, op.Outcome, op.Effect)
			}
		}
		if failures > 0 {
			return fmt.Errorf("sync failed for %d group(s)", failures)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report drift for every enrolled entry without reconciling it",
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

		engine := syncengine.New(rt.FS, rt.Layout, rt.Clock, rt.Hostname)
		for _, g := range groups {
			ops, err := engine.Plan(g)
			if err != nil {
				return err
			}
			for _, op := range ops {
				fmt.Printf("%s\t%s\t%s\t%s\n", g, op.Outcome, op.Strategy, op.LogicalPath)
			}
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().String("group", "", "limit to one group (default: every group this host belongs to)")
	syncCmd.Flags().Bool("dry-run", false, "classify and report without writing anything")
	statusCmd.Flags().String("group", "", "limit to one group (default: every group this host belongs to)")
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
}
