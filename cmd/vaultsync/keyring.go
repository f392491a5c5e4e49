package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forest6511/vaultsync/internal/keyring"
	"github.com/forest6511/vaultsync/pkg/credentials"
)

var keyringCmd = &cobra.Command{
	Use:   "keyring",
	Short: "Cache the master password in the OS keyring",
	Long: `Store the master password in the OS keyring so commands and the MCP
server can unlock the vault without a prompt. The entry is keyed by the data
directory.`,
}

var keyringRememberCmd = &cobra.Command{
	Use:   "remember",
	Short: "Verify and store the master password",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := ensureUnlocked(cmd); err != nil {
			return err
		}
		password, err := app.creds.MasterSecret(credentials.PurposeDecryptVault)
		if err != nil {
			return err
		}
		if err := keyring.SavePassword(app.dir, password); err != nil {
			return fmt.Errorf("failed to store password in keyring: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Master password stored in keyring")
		return nil
	},
}

var keyringForgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Remove the stored master password",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		err := keyring.DeletePassword(app.dir)
		if errors.Is(err, keyring.ErrNotFound) {
			fmt.Fprintln(cmd.OutOrStdout(), "No password stored")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to remove password from keyring: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Master password removed from keyring")
		return nil
	},
}

var keyringStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether a password is stored",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if keyring.HasPassword(app.dir) {
			fmt.Fprintln(cmd.OutOrStdout(), "Master password stored in keyring")
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "No password stored")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keyringCmd)
	keyringCmd.AddCommand(keyringRememberCmd, keyringForgetCmd, keyringStatusCmd)
}
