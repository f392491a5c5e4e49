package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/forest6511/vaultsync/internal/logger"
	"github.com/forest6511/vaultsync/internal/mcp"
)

var mcpServerCmd = &cobra.Command{
	Use:   "mcp-server",
	Short: "Start the MCP server for AI coding assistant integration",
	Long: `Start an MCP server over stdio that lets AI agents search the vault.

Agents never receive plaintext secrets: secret properties are listed by name
and can only be read masked (e.g. "****WXYZ").

Available tools:
  - entry_search:      Fuzzy search by title, username, URL and #tags
  - entry_search_url:  Entries for a website, best match first
  - entry_get:         Entry metadata by ID
  - entry_get_masked:  Masked property value
  - group_list:        Groups with entry counts
  - entry_record_use:  Rank an entry higher for a website

Authentication:
  The master password is taken from VAULTSYNC_PASSWORD, which is cleared
  from the environment once read, or from the OS keyring
  ('vaultsync keyring remember'). The server never prompts.

Example MCP configuration:
  {
    "mcpServers": {
      "vaultsync": {
        "type": "stdio",
        "command": "/path/to/vaultsync",
        "args": ["mcp-server"]
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := unlock(cmd, false)
		os.Unsetenv(passwordEnv)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		mcpLogger := logger.NewWithWriter(cmd.ErrOrStderr(), "mcp", app.level)
		server, err := mcp.NewServer(ctx, &mcp.ServerOptions{
			Source:          app.src,
			ScoreStore:      app.store,
			SearchThreshold: app.cfg.SearchThreshold,
			Logger:          &mcpLogger,
		})
		if err != nil {
			return fmt.Errorf("failed to create MCP server: %w", err)
		}

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		go func() {
			select {
			case <-sigChan:
				cancel()
			case <-ctx.Done():
			}
		}()

		if err := server.Run(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("MCP server error: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mcpServerCmd)
}
