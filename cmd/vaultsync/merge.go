package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/forest6511/vaultsync/internal/config"
	"github.com/forest6511/vaultsync/pkg/credentials"
	"github.com/forest6511/vaultsync/pkg/source"
)

// Merge command flags
var (
	mergeDriver        string
	mergeOtherPassword bool
)

var mergeCmd = &cobra.Command{
	Use:   "merge <store-path>",
	Short: "Merge another copy of the vault into this one",
	Long: `Merge a copy of the vault from another store, for example a file synced
from another device. Both copies must descend from the same vault.

Only this vault is written.

Examples:
  vaultsync merge ~/Dropbox/vault.db
  vaultsync merge ./laptop.bolt --driver bolt --other-password`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		v, err := ensureUnlocked(cmd)
		if err != nil {
			return err
		}
		before := len(v.Entries())

		driver := mergeDriver
		if driver == "" {
			driver = app.cfg.Storage.Driver
		}
		path, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		if local, _ := filepath.Abs(app.cfg.StoragePath(app.dir)); path == local {
			return fmt.Errorf("cannot merge the vault with itself")
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("cannot open %s: %w", args[0], err)
		}
		store, closer, err := openStorage(ctx, driver, path)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer closer.Close()

		creds := app.creds
		if mergeOtherPassword {
			password, err := promptPassword(cmd, "Enter master password of the other vault: ")
			if err != nil {
				return err
			}
			creds = credentials.FromPassword(password, "")
			defer creds.Destroy()
		}

		other := source.New("other", source.NewStorageDatasource(store, ""), creds, app.vaultFormat(),
			source.WithVaultOptions(app.vaultOptions()...),
			source.WithLogger(app.logger),
		)
		content, err := source.NewStorageDatasource(store, "").Load(ctx)
		if err != nil {
			return err
		}
		if content == "" {
			return fmt.Errorf("no vault found in %s", args[0])
		}
		if err := other.Unlock(ctx); err != nil {
			return err
		}
		defer other.Lock()
		incoming, err := other.Vault()
		if err != nil {
			return err
		}

		if err := app.src.Merge(incoming); err != nil {
			return err
		}
		if err := save(cmd); err != nil {
			return err
		}
		merged, err := app.src.Vault()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Merged %s: %d entries before, %d after\n", args[0], before, len(merged.Entries()))
		return nil
	},
}

var optimiseCmd = &cobra.Command{
	Use:     "optimise",
	Aliases: []string{"optimize"},
	Short:   "Repair the vault tree and purge expired tombstones",
	Long: `Rewrite the vault after repairing detached groups and entries and
dropping deletion records older than the configured retention.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := ensureUnlocked(cmd)
		if err != nil {
			return err
		}
		before := len(v.DeletedEntries()) + len(v.DeletedGroups())
		if err := save(cmd); err != nil {
			return err
		}
		v, err = app.src.Vault()
		if err != nil {
			return err
		}
		after := len(v.DeletedEntries()) + len(v.DeletedGroups())
		fmt.Fprintf(cmd.OutOrStdout(), "Vault optimised: %d deletion records purged\n", max(before-after, 0))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mergeCmd, optimiseCmd)

	mergeCmd.Flags().StringVar(&mergeDriver, "driver", "", fmt.Sprintf("storage driver of the other store (%s or %s)", config.DriverSQLite, config.DriverBolt))
	mergeCmd.Flags().BoolVar(&mergeOtherPassword, "other-password", false, "prompt for a different master password for the other store")
}
