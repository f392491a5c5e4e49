package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forest6511/vaultsync/pkg/vault"
)

// Group command flags
var (
	groupParent    string
	groupJSON      bool
	groupPermanent bool
)

// groupCmd is the parent command for group operations.
var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Group operations",
	Long: `Manage the groups that organise entries.

Groups are addressed by ID or by title path (e.g. "Work/APIs").`,
}

var groupAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a new group",
	Long: `Create a new group.

Examples:
  vaultsync group add "Work"
  vaultsync group add "APIs" --parent "Work"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := ensureUnlocked(cmd)
		if err != nil {
			return err
		}

		parentID := vault.RootID
		if groupParent != "" {
			parent, err := resolveGroup(v, groupParent)
			if err != nil {
				return err
			}
			parentID = parent.ID()
		}

		g, err := v.CreateGroup(parentID)
		if err != nil {
			return fmt.Errorf("failed to create group: %w", err)
		}
		if err := v.SetGroupTitle(g.ID(), args[0]); err != nil {
			return fmt.Errorf("failed to create group: %w", err)
		}
		if err := save(cmd); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created group: %s (%s)\n", groupPath(v, g.ID()), g.ID())
		return nil
	},
}

// groupListEntry is the JSON form of a listed group.
type groupListEntry struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id"`
	Path     string `json:"path"`
	Entries  int    `json:"entries"`
	Trash    bool   `json:"trash,omitempty"`
}

var groupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List groups as a tree",
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := ensureUnlocked(cmd)
		if err != nil {
			return err
		}

		var listed []groupListEntry
		walkGroups(v, vault.RootID, 0, func(g *vault.Group, depth int) {
			listed = append(listed, groupListEntry{
				ID:       g.ID(),
				ParentID: g.ParentID(),
				Path:     groupPath(v, g.ID()),
				Entries:  len(v.EntriesIn(g.ID())),
				Trash:    g.IsTrash(),
			})
		})

		out := cmd.OutOrStdout()
		if groupJSON {
			return writeJSON(out, listed)
		}
		if len(listed) == 0 {
			fmt.Fprintln(out, "No groups found.")
			return nil
		}
		walkGroups(v, vault.RootID, 0, func(g *vault.Group, depth int) {
			stats := ""
			if n := len(v.EntriesIn(g.ID())); n > 0 {
				stats = fmt.Sprintf(" (%d entries)", n)
			}
			fmt.Fprintf(out, "%s%s%s  [%s]\n", strings.Repeat("  ", depth), g.Title(), stats, g.ID())
		})
		return nil
	},
}

var groupRenameCmd = &cobra.Command{
	Use:   "rename <group> <new-title>",
	Short: "Rename a group",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := ensureUnlocked(cmd)
		if err != nil {
			return err
		}
		g, err := resolveGroup(v, args[0])
		if err != nil {
			return err
		}
		if err := v.SetGroupTitle(g.ID(), args[1]); err != nil {
			return fmt.Errorf("failed to rename group: %w", err)
		}
		if err := save(cmd); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Renamed group: %s -> %s\n", args[0], args[1])
		return nil
	},
}

var groupMoveCmd = &cobra.Command{
	Use:   "move <group> <new-parent>",
	Short: "Move a group to a new parent",
	Long: `Move a group under another group.

Use "/" to move to the root level.

Examples:
  vaultsync group move "Work/APIs" "Personal"
  vaultsync group move "Work/APIs" /`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := ensureUnlocked(cmd)
		if err != nil {
			return err
		}
		g, err := resolveGroup(v, args[0])
		if err != nil {
			return err
		}

		targetID := vault.RootID
		if args[1] != "" && args[1] != "/" {
			target, err := resolveGroup(v, args[1])
			if err != nil {
				return err
			}
			targetID = target.ID()
		}

		if err := v.MoveGroup(g.ID(), targetID); err != nil {
			if errors.Is(err, vault.ErrGroupCycle) {
				return errors.New("cannot move group into its own subtree")
			}
			return fmt.Errorf("failed to move group: %w", err)
		}
		if err := save(cmd); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Moved group: %s -> %s\n", args[0], groupPath(v, g.ID()))
		return nil
	},
}

var groupDeleteCmd = &cobra.Command{
	Use:   "delete <group>",
	Short: "Delete a group",
	Long: `Delete a group with its entries and subgroups.

The group is moved to the trash unless it is already there or --permanent is set.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := ensureUnlocked(cmd)
		if err != nil {
			return err
		}
		g, err := resolveGroup(v, args[0])
		if err != nil {
			return err
		}
		removed, err := v.DeleteGroup(g.ID(), groupPermanent)
		if err != nil {
			return fmt.Errorf("failed to delete group: %w", err)
		}
		if err := save(cmd); err != nil {
			return err
		}
		if removed {
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted group: %s\n", args[0])
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Moved group to trash: %s\n", args[0])
		}
		return nil
	},
}

// resolveGroup finds a group by ID or by title path from the root.
func resolveGroup(v *vault.Vault, ref string) (*vault.Group, error) {
	if g := v.FindGroupByID(ref); g != nil {
		return g, nil
	}
	parentID := vault.RootID
	var found *vault.Group
	for _, part := range strings.Split(strings.Trim(ref, "/"), "/") {
		found = nil
		for _, g := range v.GroupsIn(parentID) {
			if strings.EqualFold(g.Title(), part) {
				found = g
				break
			}
		}
		if found == nil {
			return nil, fmt.Errorf("group not found: %s", ref)
		}
		parentID = found.ID()
	}
	return found, nil
}

// groupPath joins the titles from the root down to id.
func groupPath(v *vault.Vault, id string) string {
	var parts []string
	seen := make(map[string]bool)
	for g := v.FindGroupByID(id); g != nil && !seen[g.ID()]; g = v.FindGroupByID(g.ParentID()) {
		seen[g.ID()] = true
		parts = append([]string{g.Title()}, parts...)
	}
	return strings.Join(parts, "/")
}

// walkGroups visits groups depth first in insertion order.
func walkGroups(v *vault.Vault, parentID string, depth int, fn func(*vault.Group, int)) {
	for _, g := range v.GroupsIn(parentID) {
		fn(g, depth)
		walkGroups(v, g.ID(), depth+1, fn)
	}
}

func writeJSON(w io.Writer, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func init() {
	rootCmd.AddCommand(groupCmd)
	groupCmd.AddCommand(groupAddCmd, groupListCmd, groupRenameCmd, groupMoveCmd, groupDeleteCmd)

	groupAddCmd.Flags().StringVar(&groupParent, "parent", "", "parent group (ID or path)")
	groupListCmd.Flags().BoolVar(&groupJSON, "json", false, "output in JSON format")
	groupDeleteCmd.Flags().BoolVar(&groupPermanent, "permanent", false, "delete without moving to the trash")
}
