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

	"github.com/laszoo/laszoo/internal/lzerr"
)

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Administer the shared store's group registry",
}

var groupAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Join this host to a group, creating it first if it does not exist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(true)
		if err != nil {
			return err
		}
		name := args[0]
		description, _ := cmd.Flags().GetString("description")

		if err := rt.Groups.Create(name, description); err != nil && !lzerr.Is(err, lzerr.KindConfig) {
			return err
		}
		if err := rt.Groups.AddHost(name, rt.Hostname); err != nil {
			return err
		}
		if err := rt.joinGroupConf(name); err != nil {
			return err
		}
		fmt.Printf("joined group %s\n", name)
		return nil
	},
}

var groupRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove this host from a group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(true)
		if err != nil {
			return err
		}
		name := args[0]
		if err := rt.Groups.RemoveHost(name, rt.Hostname); err != nil {
			return err
		}
		if err := rt.leaveGroupConf(name); err != nil {
			return err
		}
		fmt.Printf("left group %s\n", name)
		return nil
	},
}

var groupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every group in the shared store's registry",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(true)
		if err != nil {
			return err
		}
		groups, err := rt.Groups.List()
		if err != nil {
			return err
		}
		for _, g := range groups {
			fmt.Printf("%s\t%d host(s)\t%s\n", g.Name, len(g.Hosts), g.Description)
		}
		return nil
	},
}

var groupRenameCmd = &cobra.Command{
	Use:   "rename <old> <new>",
	Short: "Rename a group, moving its template tree and repointing manifests",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(true)
		if err != nil {
			return err
		}
		if err := rt.Groups.Rename(args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("renamed group %s to %s\n", args[0], args[1])
		return nil
	},
}

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "Report this host's group memberships",
}

var groupsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the groups this host belongs to",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(true)
		if err != nil {
			return err
		}
		groups, err := rt.enrolledGroups()
		if err != nil {
			return err
		}
		for _, g := range groups {
			fmt.Println(g)
		}
		return nil
	},
}

func init() {
	groupAddCmd.Flags().String("description", "", "description for a newly-created group")
	groupCmd.AddCommand(groupAddCmd, groupRemoveCmd, groupListCmd, groupRenameCmd)
	groupsCmd.AddCommand(groupsListCmd)
	rootCmd.AddCommand(groupCmd)
	rootCmd.AddCommand(groupsCmd)
}
