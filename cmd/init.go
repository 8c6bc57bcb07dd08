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
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/laszoo/laszoo/internal/history"
	"github.com/laszoo/laszoo/internal/logging"
	"github.com/laszoo/laszoo/internal/lzerr"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap the shared store's directory layout",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(false)
		if err != nil {
			return err
		}

		for _, dir := range []string{
			rt.Layout.Root,
			filepath.Join(rt.Layout.Root, "groups"),
			filepath.Join(rt.Layout.Root, "machines"),
			filepath.Join(rt.Layout.Root, "memberships"),
			filepath.Join(rt.Layout.Root, "actions"),
			rt.Layout.MachineDir(rt.Hostname),
		} {
			if err := rt.FS.MkdirAll(dir, 0o755); err != nil {
				return lzerr.IO(dir, err)
			}
		}

		gitignorePath := filepath.Join(rt.Layout.Root, ".gitignore")
		if !rt.FS.Exists(gitignorePath) {
			if err := rt.FS.WriteFile(gitignorePath, []byte("history/\n"), 0o644); err != nil {
				return lzerr.IO(gitignorePath, err)
			}
		}

		historyPath := filepath.Join(rt.Layout.Root, "history")
		if err := rt.FS.MkdirAll(historyPath, 0o755); err != nil {
			return lzerr.IO(historyPath, err)
		}
		if err := history.New(historyPath).Init(context.Background()); err != nil {
			return err
		}

		logging.Success("initialized shared store at %s for host %s", rt.Layout.Root, rt.Hostname)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
