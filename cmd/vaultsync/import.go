package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forest6511/vaultsync/pkg/importer"
	"github.com/forest6511/vaultsync/pkg/vault"
)

// Import flags
var (
	importFrom   string
	importGroup  string
	importTag    string
	importDryRun bool
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import entries from another password manager",
	Long: `Import an export of another password manager into the vault.

Supported sources: 1password (CSV), bitwarden (unencrypted JSON), lastpass (CSV).
Folders become groups below the target group. Without --group a new
top-level group "Imported from <source>" is created.

Examples:
  vaultsync import --from bitwarden bitwarden_export.json
  vaultsync import --from lastpass lastpass.csv --group Personal --tag lastpass
  vaultsync import --from 1password export.csv --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parser, err := importer.GetParser(importer.Source(strings.ToLower(importFrom)))
		if err != nil {
			return fmt.Errorf("invalid --from value '%s': must be one of %v", importFrom, importer.ValidSources())
		}
		data, err := readImportFile(args[0])
		if err != nil {
			return err
		}
		result, err := parser.Parse(data)
		if err != nil {
			return fmt.Errorf("failed to parse %s file: %w", importFrom, err)
		}

		stderr := cmd.ErrOrStderr()
		for _, warning := range result.Warnings {
			fmt.Fprintf(stderr, "Warning: %s\n", warning)
		}
		for _, skipped := range result.Skipped {
			fmt.Fprintf(stderr, "Skipped: %s (%s)\n", skipped.OriginalName, skipped.Reason)
		}

		out := cmd.OutOrStdout()
		if len(result.Entries) == 0 {
			fmt.Fprintln(out, "No entries found in file")
			return nil
		}
		if importTag != "" {
			for _, e := range result.Entries {
				e.Tags = append(e.Tags, importTag)
			}
		}
		if importDryRun {
			fmt.Fprintf(out, "Would import %d entries:\n", len(result.Entries))
			for _, e := range result.Entries {
				path := strings.Join(e.Group, "/")
				if path == "" {
					path = "."
				}
				fmt.Fprintf(out, "  %s  (%s)\n", e.Title, path)
			}
			return nil
		}

		v, err := ensureUnlocked(cmd)
		if err != nil {
			return err
		}
		targetID, err := importTarget(v, parser.Source())
		if err != nil {
			return err
		}
		summary, err := importer.Apply(v, targetID, result)
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}
		for _, warning := range summary.Warnings {
			fmt.Fprintf(stderr, "Warning: %s\n", warning)
		}
		if err := save(cmd); err != nil {
			return err
		}
		app.logger.Info().Str("source", string(parser.Source())).Int("entries", summary.Entries).Msg("import finished")
		fmt.Fprintf(out, "Imported %d entries into %s (%d new groups)\n", summary.Entries, groupPath(v, targetID), summary.Groups)
		return nil
	},
}

// importTarget resolves --group or creates a fresh top-level group for the import.
func importTarget(v *vault.Vault, source importer.Source) (string, error) {
	if importGroup != "" {
		g, err := resolveGroup(v, importGroup)
		if err != nil {
			return "", err
		}
		return g.ID(), nil
	}
	g, err := v.CreateGroup(vault.RootID)
	if err != nil {
		return "", err
	}
	if err := v.SetGroupTitle(g.ID(), "Imported from "+string(source)); err != nil {
		return "", err
	}
	return g.ID(), nil
}

// readImportFile reads an export file, refusing symlinks.
func readImportFile(path string) ([]byte, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	info, err := os.Lstat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to access file: %w", err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return nil, fmt.Errorf("refusing to read symlink: %s", absPath)
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().StringVar(&importFrom, "from", "", "import source: 1password, bitwarden, lastpass")
	importCmd.Flags().StringVarP(&importGroup, "group", "g", "", "group to import into (ID or path)")
	importCmd.Flags().StringVar(&importTag, "tag", "", "add this tag to every imported entry")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "show what would be imported without changing the vault")
	_ = importCmd.MarkFlagRequired("from")
}
