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
	"github.com/laszoo/laszoo/internal/groupconfig"
	"github.com/laszoo/laszoo/internal/logging"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll [paths...]",
	Short: "Put one or more local paths under management",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (errs error) {
		rt, err := newRuntime(true)
		if err != nil {
			return err
		}
		mgr := enroll.NewManager(rt.FS, rt.Layout, rt.Clock, rt.Hostname)

		group, _ := cmd.Flags().GetString("group")
		if group == "" {
			return fmt.Errorf("--group is required")
		}
		force, _ := cmd.Flags().GetBool("force")
		machineSpecific, _ := cmd.Flags().GetBool("machine")
		hybrid, _ := cmd.Flags().GetBool("hybrid")
		before, _ := cmd.Flags().GetString("before")
		after, _ := cmd.Flags().GetString("after")
		action, _ := cmd.Flags().GetString("action")

		opts := enroll.Options{
			Group:           group,
			Force:           force,
			MachineSpecific: machineSpecific,
			Hybrid:          hybrid,
			BeforeTrigger:   before,
			AfterTrigger:    after,
			Action:          groupconfig.Action(action),
		}

		failures := 0
		for _, path := range args {
			if err := mgr.Enroll(path, opts); err != nil {
				logging.Error("enrolling %s: %v", path, err)
				failures++
				continue
			}
			logging.Success("enrolled %s under group %s", path, group)
		}
		if failures > 0 {
			return fmt.Errorf("%d of %d paths failed to enroll", failures, len(args))
		}
		return nil
	},
}

var unenrollCmd = &cobra.Command{
	Use:   "unenroll [paths...]",
	Short: "Remove one or more local paths from management",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(true)
		if err != nil {
			return err
		}
		mgr := enroll.NewManager(rt.FS, rt.Layout, rt.Clock, rt.Hostname)

		failures := 0
		for _, path := range args {
			if err := mgr.Unenroll(path); err != nil {
				logging.Error("unenrolling %s: %v", path, err)
				failures++
				continue
			}
			logging.Success("unenrolled %s", path)
		}
		if failures > 0 {
			return fmt.Errorf("%d of %d paths failed to unenroll", failures, len(args))
		}
		return nil
	},
}

func init() {
	enrollCmd.Flags().String("group", "", "group to enroll under (required)")
	enrollCmd.Flags().Bool("force", false, "re-enroll a path that is already enrolled")
	enrollCmd.Flags().Bool("machine", false, "enroll as machine-specific (local to this host)")
	enrollCmd.Flags().Bool("hybrid", false, "enroll as hybrid (group template with a machine specialization)")
	enrollCmd.Flags().String("before", "", "trigger command to run before reconciling this group")
	enrollCmd.Flags().String("after", "", "trigger command to run after reconciling this group")
	enrollCmd.Flags().String("action", "", "sync strategy for this group: converge, rollback, forward, freeze, drift, auto")
	rootCmd.AddCommand(enrollCmd)
	rootCmd.AddCommand(unenrollCmd)
}
