package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/forest6511/vaultsync/internal/cli"
	"github.com/forest6511/vaultsync/pkg/security"
	"github.com/forest6511/vaultsync/pkg/vault"
)

const hiddenValue = "********"

// Entry command flags
var (
	entryGroup          string
	entryUsername       string
	entryURL            string
	entryType           string
	entryFields         []string
	entryTags           []string
	entryPromptPassword bool
	entryGenerate       bool

	entrySecrets    []string
	entryUnset      []string
	entryValueTypes []string

	entryShow     bool
	entryProperty string
	entryHistory  string
	entryJSON     bool

	entryListTag   string
	entryListTrash bool

	entryPermanent bool
	entryTagRemove bool
)

// entryCmd is the parent command for entry operations.
var entryCmd = &cobra.Command{
	Use:   "entry",
	Short: "Entry operations",
	Long: `Manage entries.

Entries are addressed by ID or by a title pattern (e.g. "GitHub" or "git*").`,
}

var entryAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a new entry",
	Long: `Create a new entry.

Examples:
  vaultsync entry add GitHub --username octocat --url https://github.com --prompt-password
  vaultsync entry add "AWS prod" --group Work --generate --tag aws --tag prod
  vaultsync entry add "Wifi" --type note --field notes="router in the hall"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fields, err := parseAssignments(entryFields)
		if err != nil {
			return err
		}
		if entryPromptPassword && entryGenerate {
			return fmt.Errorf("--prompt-password and --generate cannot be combined")
		}

		v, err := ensureUnlocked(cmd)
		if err != nil {
			return err
		}
		groupID, err := targetGroup(v, entryGroup)
		if err != nil {
			return err
		}

		fields[vault.PropertyTitle] = args[0]
		if entryUsername != "" {
			fields[vault.PropertyUsername] = entryUsername
		}
		if entryURL != "" {
			fields["url"] = entryURL
		}
		generated := ""
		switch {
		case entryPromptPassword:
			password, err := promptPassword(cmd, "Enter entry password: ")
			if err != nil {
				return err
			}
			fields[vault.PropertyPassword] = password
		case entryGenerate:
			generated, err = defaultGeneratorOptions().generate()
			if err != nil {
				return err
			}
			fields[vault.PropertyPassword] = generated
		}

		e, err := v.CreateEntry(groupID)
		if err != nil {
			return fmt.Errorf("failed to create entry: %w", err)
		}
		for _, key := range cli.MapKeys(fields) {
			if err := v.SetEntryProperty(e.ID(), key, fields[key]); err != nil {
				return fmt.Errorf("failed to set %q: %w", key, err)
			}
		}
		if entryType != "" {
			if err := v.SetEntryAttribute(e.ID(), vault.AttributeFacadeType, entryType); err != nil {
				return err
			}
		}
		if len(entryTags) > 0 {
			if err := v.AddEntryTags(e.ID(), entryTags...); err != nil {
				return err
			}
		}
		if err := save(cmd); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Entry '%s' created (%s)\n", args[0], e.ID())
		if generated != "" {
			fmt.Fprintf(out, "Generated password: %s\n", generated)
		}
		return nil
	},
}

var entrySetCmd = &cobra.Command{
	Use:   "set <entry>",
	Short: "Update entry properties",
	Long: `Update the properties of an entry.

Examples:
  vaultsync entry set GitHub --field username=octocat --field url=https://github.com
  vaultsync entry set GitHub --secret password
  vaultsync entry set GitHub --unset notes
  vaultsync entry set GitHub --value-type "recovery codes=password"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fields, err := parseAssignments(entryFields)
		if err != nil {
			return err
		}
		valueTypes, err := parseAssignments(entryValueTypes)
		if err != nil {
			return err
		}
		if len(fields)+len(entrySecrets)+len(entryUnset)+len(valueTypes) == 0 {
			return fmt.Errorf("nothing to change (use --field, --secret, --unset or --value-type)")
		}

		v, err := ensureUnlocked(cmd)
		if err != nil {
			return err
		}
		e, err := resolveEntry(v, args[0])
		if err != nil {
			return err
		}

		for _, key := range entrySecrets {
			value, err := promptPassword(cmd, fmt.Sprintf("Enter value for %q: ", key))
			if err != nil {
				return err
			}
			fields[key] = value
		}
		for _, key := range cli.MapKeys(fields) {
			if err := v.SetEntryProperty(e.ID(), key, fields[key]); err != nil {
				return fmt.Errorf("failed to set %q: %w", key, err)
			}
		}
		for _, key := range entrySecrets {
			if err := v.SetPropertyValueType(e.ID(), key, vault.ValueTypePassword); err != nil {
				return err
			}
		}
		for _, key := range cli.MapKeys(valueTypes) {
			if err := v.SetPropertyValueType(e.ID(), key, vault.ValueType(valueTypes[key])); err != nil {
				return fmt.Errorf("failed to set value type of %q: %w", key, err)
			}
		}
		for _, key := range entryUnset {
			if err := v.DeleteEntryProperty(e.ID(), key); err != nil {
				return err
			}
		}
		if err := save(cmd); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Entry '%s' updated\n", entryTitle(e))
		return nil
	},
}

// entryView is the printable form of an entry.
type entryView struct {
	ID         string            `json:"id"`
	Group      string            `json:"group"`
	Type       string            `json:"type"`
	Tags       []string          `json:"tags"`
	InTrash    bool              `json:"in_trash,omitempty"`
	Properties map[string]string `json:"properties"`
	ValueTypes map[string]string `json:"value_types,omitempty"`
}

func newEntryView(v *vault.Vault, e *vault.Entry, show bool) entryView {
	view := entryView{
		ID:         e.ID(),
		Group:      groupPath(v, e.GroupID()),
		Type:       string(e.Type()),
		Tags:       e.Tags(),
		InTrash:    v.IsInTrash(e.ID()),
		Properties: e.Properties(),
	}
	for key, value := range view.Properties {
		if !show && isSecretProperty(e, key) && value != "" {
			view.Properties[key] = hiddenValue
		}
	}
	for key, t := range e.PropertyValueTypes() {
		if view.ValueTypes == nil {
			view.ValueTypes = make(map[string]string)
		}
		view.ValueTypes[key] = string(t)
	}
	return view
}

func isSecretProperty(e *vault.Entry, key string) bool {
	return security.ClassifyProperty(key, e.PropertyValueType(key)) != security.KindNone
}

var entryGetCmd = &cobra.Command{
	Use:   "get <entry>",
	Short: "Show an entry",
	Long: `Show an entry. Secret values are hidden unless --show is given.

Examples:
  vaultsync entry get GitHub
  vaultsync entry get GitHub --property password --show
  vaultsync entry get GitHub --history password`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := ensureUnlocked(cmd)
		if err != nil {
			return err
		}
		e, err := resolveEntryIn(v, args[0], true)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		if entryHistory != "" {
			changes := e.Changes(entryHistory)
			if len(changes) == 0 {
				return fmt.Errorf("property %q not found", entryHistory)
			}
			secret := isSecretProperty(e, entryHistory)
			if entryJSON {
				if secret && !entryShow {
					for i := range changes {
						if changes[i].Value != "" {
							changes[i].Value = hiddenValue
						}
					}
				}
				return writeJSON(out, changes)
			}
			for _, c := range changes {
				value := c.Value
				if secret && !entryShow && value != "" {
					value = hiddenValue
				}
				fmt.Fprintf(out, "%s  %-8s %s\n", formatMillis(c.Timestamp), c.Type, value)
			}
			return nil
		}

		if entryProperty != "" {
			value, ok := e.Property(entryProperty)
			if !ok {
				return fmt.Errorf("property %q not found", entryProperty)
			}
			if isSecretProperty(e, entryProperty) && !entryShow {
				value = hiddenValue
			}
			fmt.Fprintln(out, value)
			return nil
		}

		view := newEntryView(v, e, entryShow)
		if entryJSON {
			return writeJSON(out, view)
		}
		fmt.Fprintf(out, "ID:     %s\n", view.ID)
		fmt.Fprintf(out, "Group:  %s\n", view.Group)
		fmt.Fprintf(out, "Type:   %s\n", view.Type)
		if len(view.Tags) > 0 {
			fmt.Fprintf(out, "Tags:   %s\n", strings.Join(view.Tags, ", "))
		}
		if view.InTrash {
			fmt.Fprintln(out, "Status: in trash")
		}
		fmt.Fprintln(out)
		for _, key := range cli.MapKeys(view.Properties) {
			fmt.Fprintf(out, "%s: %s\n", key, view.Properties[key])
		}
		return nil
	},
}

// entrySummary is one line of entry list output.
type entrySummary struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Username string   `json:"username,omitempty"`
	Group    string   `json:"group"`
	Tags     []string `json:"tags,omitempty"`
}

var entryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := ensureUnlocked(cmd)
		if err != nil {
			return err
		}

		groupID := ""
		if entryGroup != "" {
			g, err := resolveGroup(v, entryGroup)
			if err != nil {
				return err
			}
			groupID = g.ID()
		}
		tag := vault.NormalizeTag(entryListTag)

		var listed []entrySummary
		for _, e := range v.Entries() {
			if groupID != "" && e.GroupID() != groupID {
				continue
			}
			if v.IsInTrash(e.ID()) != entryListTrash {
				continue
			}
			if tag != "" && !hasTag(e, tag) {
				continue
			}
			username, _ := e.Property(vault.PropertyUsername)
			listed = append(listed, entrySummary{
				ID:       e.ID(),
				Title:    entryTitle(e),
				Username: username,
				Group:    groupPath(v, e.GroupID()),
				Tags:     e.Tags(),
			})
		}
		sort.SliceStable(listed, func(i, j int) bool {
			return strings.ToLower(listed[i].Title) < strings.ToLower(listed[j].Title)
		})

		out := cmd.OutOrStdout()
		if entryJSON {
			return writeJSON(out, listed)
		}
		if len(listed) == 0 {
			fmt.Fprintln(out, "No entries found")
			return nil
		}
		for _, s := range listed {
			line := fmt.Sprintf("%s  %s", s.ID, s.Title)
			if s.Username != "" {
				line += " <" + s.Username + ">"
			}
			line += "  (" + s.Group + ")"
			if len(s.Tags) > 0 {
				line += fmt.Sprintf(" [%s]", strings.Join(s.Tags, ","))
			}
			fmt.Fprintln(out, line)
		}
		return nil
	},
}

var entryMoveCmd = &cobra.Command{
	Use:   "move <entry> <group>",
	Short: "Move an entry to another group",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := ensureUnlocked(cmd)
		if err != nil {
			return err
		}
		e, err := resolveEntryIn(v, args[0], true)
		if err != nil {
			return err
		}
		g, err := resolveGroup(v, args[1])
		if err != nil {
			return err
		}
		if err := v.MoveEntry(e.ID(), g.ID()); err != nil {
			return fmt.Errorf("failed to move entry: %w", err)
		}
		if err := save(cmd); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Moved entry '%s' to %s\n", entryTitle(e), groupPath(v, g.ID()))
		return nil
	},
}

var entryDeleteCmd = &cobra.Command{
	Use:   "delete <entry>...",
	Short: "Delete entries",
	Long: `Delete entries. Entries are moved to the trash unless they are already
there or --permanent is set.

Examples:
  vaultsync entry delete GitHub
  vaultsync entry delete "old-*" --permanent`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := ensureUnlocked(cmd)
		if err != nil {
			return err
		}
		entries, err := cli.SelectEntries(v, args, entryPermanent)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, e := range entries {
			title := entryTitle(e)
			removed, err := v.DeleteEntry(e.ID(), entryPermanent)
			if err != nil {
				return fmt.Errorf("failed to delete entry %q: %w", title, err)
			}
			if removed {
				fmt.Fprintf(out, "Entry '%s' deleted\n", title)
			} else {
				fmt.Fprintf(out, "Entry '%s' moved to trash\n", title)
			}
		}
		return save(cmd)
	},
}

var entryTagCmd = &cobra.Command{
	Use:   "tag <entry> <tag>...",
	Short: "Add or remove entry tags",
	Long: `Add tags to an entry, or remove them with --remove.

Tags may contain lowercase letters, numbers, '_' and '-'.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := ensureUnlocked(cmd)
		if err != nil {
			return err
		}
		e, err := resolveEntry(v, args[0])
		if err != nil {
			return err
		}
		if entryTagRemove {
			err = v.RemoveEntryTags(e.ID(), args[1:]...)
		} else {
			err = v.AddEntryTags(e.ID(), args[1:]...)
		}
		if err != nil {
			return fmt.Errorf("failed to update tags: %w", err)
		}
		if err := save(cmd); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Tags of '%s': %s\n", entryTitle(e), strings.Join(e.Tags(), ", "))
		return nil
	},
}

// targetGroup resolves ref, defaulting to the first root group outside the trash.
func targetGroup(v *vault.Vault, ref string) (string, error) {
	if ref != "" {
		g, err := resolveGroup(v, ref)
		if err != nil {
			return "", err
		}
		return g.ID(), nil
	}
	for _, g := range v.GroupsIn(vault.RootID) {
		if !g.IsTrash() {
			return g.ID(), nil
		}
	}
	return "", fmt.Errorf("no group to create the entry in: run 'vaultsync group add' first")
}

func resolveEntry(v *vault.Vault, ref string) (*vault.Entry, error) {
	return resolveEntryIn(v, ref, false)
}

// resolveEntryIn resolves ref to exactly one entry.
func resolveEntryIn(v *vault.Vault, ref string, includeTrash bool) (*vault.Entry, error) {
	entries, err := cli.SelectEntries(v, []string{ref}, includeTrash)
	if err != nil {
		return nil, err
	}
	if len(entries) > 1 {
		return nil, fmt.Errorf("%q matches %d entries: use the entry ID", ref, len(entries))
	}
	return entries[0], nil
}

func entryTitle(e *vault.Entry) string {
	title, _ := e.Property(vault.PropertyTitle)
	return title
}

func hasTag(e *vault.Entry, tag string) bool {
	for _, t := range e.Tags() {
		if t == tag {
			return true
		}
	}
	return false
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).Format(time.RFC3339)
}

func init() {
	rootCmd.AddCommand(entryCmd)
	entryCmd.AddCommand(entryAddCmd, entrySetCmd, entryGetCmd, entryListCmd, entryMoveCmd, entryDeleteCmd, entryTagCmd)

	entryAddCmd.Flags().StringVarP(&entryGroup, "group", "g", "", "group to create the entry in (ID or path)")
	entryAddCmd.Flags().StringVar(&entryUsername, "username", "", "username")
	entryAddCmd.Flags().StringVar(&entryURL, "url", "", "website URL")
	entryAddCmd.Flags().StringVar(&entryType, "type", "", "entry type (login, website, sshkey, note, credit_card)")
	entryAddCmd.Flags().StringArrayVarP(&entryFields, "field", "f", nil, "property as key=value (repeatable)")
	entryAddCmd.Flags().StringSliceVarP(&entryTags, "tag", "t", nil, "tag (repeatable)")
	entryAddCmd.Flags().BoolVar(&entryPromptPassword, "prompt-password", false, "prompt for the password")
	entryAddCmd.Flags().BoolVar(&entryGenerate, "generate", false, "generate a random password")

	entrySetCmd.Flags().StringArrayVarP(&entryFields, "field", "f", nil, "property as key=value (repeatable)")
	entrySetCmd.Flags().StringArrayVar(&entrySecrets, "secret", nil, "prompt for a secret property value (repeatable)")
	entrySetCmd.Flags().StringArrayVar(&entryUnset, "unset", nil, "delete a property (repeatable)")
	entrySetCmd.Flags().StringArrayVar(&entryValueTypes, "value-type", nil, "property value type as key=type (repeatable)")

	entryGetCmd.Flags().BoolVar(&entryShow, "show", false, "show secret values")
	entryGetCmd.Flags().StringVarP(&entryProperty, "property", "p", "", "print a single property")
	entryGetCmd.Flags().StringVar(&entryHistory, "history", "", "show the change history of a property")
	entryGetCmd.Flags().BoolVar(&entryJSON, "json", false, "output in JSON format")

	entryListCmd.Flags().StringVarP(&entryGroup, "group", "g", "", "only entries directly in this group")
	entryListCmd.Flags().StringVar(&entryListTag, "tag", "", "only entries with this tag")
	entryListCmd.Flags().BoolVar(&entryListTrash, "trash", false, "list entries in the trash")
	entryListCmd.Flags().BoolVar(&entryJSON, "json", false, "output in JSON format")

	entryDeleteCmd.Flags().BoolVar(&entryPermanent, "permanent", false, "delete without moving to the trash")
	entryTagCmd.Flags().BoolVar(&entryTagRemove, "remove", false, "remove the tags instead of adding them")
}
