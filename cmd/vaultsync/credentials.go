package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forest6511/vaultsync/internal/keyring"
	"github.com/forest6511/vaultsync/pkg/credentials"
)

var credentialsRemember bool

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Export and import vault connection credentials",
	Long: `Export the location of this vault as an encrypted secure string, and
import such a string on another machine.

The string is encrypted with the master password.`,
}

var credentialsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print the secure string of this vault",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := ensureUnlocked(cmd); err != nil {
			return err
		}
		master, err := app.creds.MasterSecret(credentials.PurposeSecureExport)
		if err != nil {
			return err
		}
		exported := credentials.FromDatasource(map[string]any{
			"type": app.cfg.Storage.Driver,
			"path": app.cfg.StoragePath(app.dir),
		}, master)
		defer exported.Destroy()

		secure, err := exported.ToSecureString(cmd.Context(), app.provider)
		if err != nil {
			return fmt.Errorf("failed to export credentials: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), secure)
		return nil
	},
}

var credentialsImportCmd = &cobra.Command{
	Use:   "import [secure-string]",
	Short: "Decrypt a secure string",
	Long: `Decrypt a secure string produced by 'credentials export' and print the
datasource it describes. The string is read from standard input when omitted.

With --remember the master password is stored in the OS keyring for this
data directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var content string
		if len(args) == 1 {
			content = args[0]
		} else {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("failed to read secure string: %w", err)
			}
			content = line
		}
		content = strings.TrimSpace(content)

		master, err := masterPassword(cmd, true)
		if err != nil {
			return err
		}
		creds, err := credentials.FromSecureString(cmd.Context(), app.provider, content, master,
			credentials.WithEnvironment(credentials.ClosedEnvironment))
		if err != nil {
			return err
		}
		defer creds.Destroy()

		ds, _ := creds.Data()["datasource"].(map[string]any)
		if ds == nil {
			return fmt.Errorf("secure string holds no datasource")
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "type: %v\n", ds["type"])
		fmt.Fprintf(out, "path: %v\n", ds["path"])

		if credentialsRemember {
			if err := keyring.SavePassword(app.dir, master); err != nil {
				return fmt.Errorf("failed to store password in keyring: %w", err)
			}
			fmt.Fprintln(out, "Master password stored in keyring")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(credentialsCmd)
	credentialsCmd.AddCommand(credentialsExportCmd, credentialsImportCmd)

	credentialsImportCmd.Flags().BoolVar(&credentialsRemember, "remember", false, "store the master password in the OS keyring")
}
