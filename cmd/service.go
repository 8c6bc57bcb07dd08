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
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/laszoo/laszoo/internal/collab/service"
	"github.com/laszoo/laszoo/internal/logging"
)

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Install, uninstall, or report the status of the laszoo systemd unit",
}

var serviceInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install and start the laszoo systemd unit",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(false)
		if err != nil {
			return err
		}
		binary, err := os.Executable()
		if err != nil {
			return err
		}
		mgr := service.New(rt.FS, binary)

		user, _ := cmd.Flags().GetString("user")
		hard, _ := cmd.Flags().GetBool("hard")
		extraArgs, _ := cmd.Flags().GetString("extra-args")

		if err := mgr.Install(service.Options{
			User:      user,
			Hard:      hard,
			ExtraArgs: extraArgs,
			Mount:     rt.Config.MFSMount,
		}); err != nil {
			return err
		}
		logging.Success("installed and started the laszoo service")
		return nil
	},
}

var serviceUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Stop and remove the laszoo systemd unit",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(false)
		if err != nil {
			return err
		}
		mgr := service.New(rt.FS, "")
		if err := mgr.Uninstall(); err != nil {
			return err
		}
		logging.Success("uninstalled the laszoo service")
		return nil
	},
}

var serviceStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report systemctl's status for the laszoo unit",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(false)
		if err != nil {
			return err
		}
		mgr := service.New(rt.FS, "")
		out, err := mgr.Status(context.Background())
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	},
}

func init() {
	serviceInstallCmd.Flags().String("user", "root", "user the systemd unit runs as")
	serviceInstallCmd.Flags().Bool("hard", false, "pass --hard to the watch loop on every start")
	serviceInstallCmd.Flags().String("extra-args", "", "extra arguments appended to the watch invocation")
	serviceCmd.AddCommand(serviceInstallCmd, serviceUninstallCmd, serviceStatusCmd)
	rootCmd.AddCommand(serviceCmd)
}
