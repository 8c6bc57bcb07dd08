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
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/laszoo/laszoo/internal/audit"
	"github.com/laszoo/laszoo/internal/history"
	"github.com/laszoo/laszoo/internal/logging"
	"github.com/laszoo/laszoo/internal/platform"
	"github.com/laszoo/laszoo/internal/watch"
	"github.com/laszoo/laszoo/internal/webui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the driver loop that reconciles managed files against the shared store",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(true)
		if err != nil {
			return err
		}
		groups, err := rt.enrolledGroups()
		if err != nil {
			return err
		}

		watcher, err := platform.NewFSNotifyFileWatcher()
		if err != nil {
			return err
		}
		defer watcher.Close()
		for _, g := range groups {
			if dir := rt.Layout.GroupDir(g); rt.FS.Exists(dir) {
				if err := watcher.Add(dir); err != nil {
					logging.Warning("watching %s: %v", dir, err)
				}
			}
		}
		if dir := rt.Layout.MachineDir(rt.Hostname); rt.FS.Exists(dir) {
			if err := watcher.Add(dir); err != nil {
				logging.Warning("watching %s: %v", dir, err)
			}
		}

		hard, _ := cmd.Flags().GetBool("hard")
		mode := watch.ModeSoft
		if hard {
			mode = watch.ModeHard
		}

		core := watch.New(rt.FS, watcher, rt.Clock, rt.Layout, rt.Hostname, groups)
		core.Mode = mode
		core.AutoCommit = rt.Config.AutoCommit
		core.AutoApply, _ = cmd.Flags().GetBool("auto-apply")
		core.History = history.New(rt.Layout.Root + "/history")
		core.Generator = history.NewOllamaGenerator(rt.Config.OllamaEndpoint, rt.Config.OllamaModel)
		core.Audit = audit.New(rt.FS, rt.Layout, rt.Clock, rt.Hostname)

		dashboardAddr, _ := cmd.Flags().GetString("dashboard")
		if dashboardAddr != "" {
			hub := webui.NewHub()
			core.WebUI = hub
			mux := http.NewServeMux()
			mux.Handle("/ws", hub)
			server := &http.Server{Addr: dashboardAddr, Handler: mux}
			go func() {
				logging.Info("dashboard listening on %s", dashboardAddr)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logging.Error("dashboard server: %v", err)
				}
			}()
			defer server.Close()
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigChan
			logging.Info("shutting down watch loop")
			cancel()
		}()

		return core.Run(ctx)
	},
}

func init() {
	watchCmd.Flags().BoolP("auto-apply", "a", false, "apply remotely-changed templates as soon as the periodic scan observes them")
	watchCmd.Flags().Bool("hard", false, "run the missing-file sweep at startup")
	watchCmd.Flags().String("dashboard", "", "address to serve the optional websocket dashboard on, e.g. :8787 (default: disabled)")
	rootCmd.AddCommand(watchCmd)
}
