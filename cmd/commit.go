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

	"github.com/spf13/cobra"

	"github.com/laszoo/laszoo/internal/history"
	"github.com/laszoo/laszoo/internal/logging"
)

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Stage and commit the history repository's current changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(true)
		if err != nil {
			return err
		}
		ctx := context.Background()
		mgr := history.New(rt.Layout.Root + "/history")

		if err := mgr.Init(ctx); err != nil {
			return err
		}
		if err := mgr.StageAll(ctx); err != nil {
			return err
		}
		hasChanges, err := mgr.HasChanges(ctx)
		if err != nil {
			return err
		}
		if !hasChanges {
			logging.Info("nothing to commit")
			return nil
		}

		userContext, _ := cmd.Flags().GetString("message")
		gen := history.NewOllamaGenerator(rt.Config.OllamaEndpoint, rt.Config.OllamaModel)
		hash, source, err := mgr.CommitWithAI(ctx, gen, userContext)
		if err != nil {
			return err
		}
		logging.Success("committed %s (message source: %s)", hash, commitSourceName(source))
		return nil
	},
}

func commitSourceName(source history.CommitMessageSource) string {
	switch source {
	case history.SourceAI:
		return "ai"
	case history.SourceFallback:
		return "fallback"
	case history.SourceUserSupplied:
		return "user-supplied"
	default:
		return "unknown"
	}
}

func init() {
	commitCmd.Flags().String("message", "", "additional user context passed to the commit-message generator")
	rootCmd.AddCommand(commitCmd)
}
