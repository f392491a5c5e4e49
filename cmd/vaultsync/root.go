package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/forest6511/vaultsync/internal/config"
	"github.com/forest6511/vaultsync/internal/keyring"
	"github.com/forest6511/vaultsync/internal/logger"
	"github.com/forest6511/vaultsync/pkg/credentials"
	"github.com/forest6511/vaultsync/pkg/crypto"
	"github.com/forest6511/vaultsync/pkg/format"
	"github.com/forest6511/vaultsync/pkg/security"
	"github.com/forest6511/vaultsync/pkg/source"
	"github.com/forest6511/vaultsync/pkg/storage"
	"github.com/forest6511/vaultsync/pkg/storage/bolt"
	"github.com/forest6511/vaultsync/pkg/storage/sqlite"
	"github.com/forest6511/vaultsync/pkg/vault"
)

// passwordEnv supplies the master password without a prompt.
const passwordEnv = config.EnvPrefix + "_PASSWORD"

const minMasterPasswordLength = 8

var (
	dataDirFlag string
	verbose     bool

	// app is set up by the root command before any subcommand runs.
	app *appState
)

// appState is what a command needs to reach the vault.
type appState struct {
	dir    string
	cfg    *config.Config
	level  string
	logger zerolog.Logger

	provider *crypto.DefaultProvider
	store    storage.Interface
	closer   io.Closer
	creds    *credentials.Credentials
	src      *source.Source
}

var rootCmd = &cobra.Command{
	Use:          "vaultsync",
	Short:        "vaultsync is an encrypted password vault that merges across devices",
	Long:         `An encrypted password vault whose copies can be edited offline and merged automatically.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		dir := dataDirFlag
		if dir == "" {
			var err error
			dir, err = config.DefaultDir()
			if err != nil {
				return err
			}
		}
		cfg, err := config.Load(dir)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		level := cfg.LogLevel
		if verbose {
			level = "debug"
		}
		app = &appState{
			dir:      dir,
			cfg:      cfg,
			level:    level,
			logger:   logger.NewWithWriter(cmd.ErrOrStderr(), "cli", level),
			provider: crypto.NewProvider(cfg.KDF),
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "dir", "", "data directory (default $VAULTSYNC_HOME or ~/.vaultsync)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(initCmd)

	cobra.OnFinalize(func() {
		if err := app.close(); err != nil {
			app.logger.Warn().Err(err).Msg("failed to close store")
		}
		app = nil
	})
}

// initCmd creates a new vault in the data directory.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initializes a new vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := app.openStore(ctx); err != nil {
			return err
		}
		content, err := app.datasource().Load(ctx)
		if err != nil {
			return err
		}
		if content != "" {
			return fmt.Errorf("a vault already exists in %s", app.dir)
		}

		password, err := readNewPassword(cmd)
		if err != nil {
			return err
		}
		strength := security.CalculateStrength(password, security.KindPassword)
		fmt.Fprintf(cmd.OutOrStdout(), "Password strength: %s\n", strength)

		if err := app.unlockWith(ctx, password); err != nil {
			return err
		}
		if err := app.src.Save(ctx); err != nil {
			return fmt.Errorf("failed to save vault: %w", err)
		}
		if _, err := os.Stat(filepath.Join(app.dir, config.FileName)); errors.Is(err, os.ErrNotExist) {
			if err := config.Save(app.dir, app.cfg); err != nil {
				return err
			}
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Vault initialized successfully at %s\n", app.dir)
		return nil
	},
}

// readNewPassword reads and confirms a master password.
func readNewPassword(cmd *cobra.Command) (string, error) {
	if password, ok := os.LookupEnv(passwordEnv); ok {
		return password, validateMasterPassword(password)
	}
	password1, err := promptPassword(cmd, "Enter master password: ")
	if err != nil {
		return "", err
	}
	password2, err := promptPassword(cmd, "Confirm master password: ")
	if err != nil {
		return "", err
	}
	if password1 != password2 {
		return "", fmt.Errorf("passwords do not match")
	}
	return password1, validateMasterPassword(password1)
}

func validateMasterPassword(password string) error {
	if len([]rune(password)) < minMasterPasswordLength {
		return fmt.Errorf("master password must be at least %d characters", minMasterPasswordLength)
	}
	return nil
}

func promptPassword(cmd *cobra.Command, prompt string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	passwordBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(passwordBytes), nil
}

// masterPassword looks for the password in the environment, then the OS
// keyring, then prompts when interactive is set.
func masterPassword(cmd *cobra.Command, interactive bool) (string, error) {
	if password, ok := os.LookupEnv(passwordEnv); ok {
		return password, nil
	}
	password, err := keyring.GetPassword(app.dir)
	if err == nil {
		app.logger.Debug().Msg("using master password from keyring")
		return password, nil
	}
	if !errors.Is(err, keyring.ErrNotFound) {
		app.logger.Warn().Err(err).Msg("keyring unavailable")
	}
	if !interactive {
		return "", fmt.Errorf("no master password: set %s or run 'vaultsync keyring remember'", passwordEnv)
	}
	return promptPassword(cmd, "Enter master password: ")
}

// openStore opens the configured key-value store once.
func (a *appState) openStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	if err := os.MkdirAll(a.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	store, closer, err := openStorage(ctx, a.cfg.Storage.Driver, a.cfg.StoragePath(a.dir))
	if err != nil {
		return err
	}
	a.store, a.closer = store, closer
	return nil
}

func openStorage(ctx context.Context, driver, path string) (storage.Interface, io.Closer, error) {
	switch driver {
	case config.DriverBolt:
		s, err := bolt.Open(path)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case config.DriverSQLite:
		s, err := sqlite.Open(ctx, path)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	}
	return nil, nil, fmt.Errorf("unsupported storage driver: %q", driver)
}

func (a *appState) vaultFormat() format.Format {
	return format.NewFormatB(format.NewCodec(a.provider, a.vaultOptions()...))
}

func (a *appState) vaultOptions() []vault.Option {
	return []vault.Option{vault.WithTombstoneRetention(a.cfg.TombstoneRetention)}
}

func (a *appState) datasource() *source.StorageDatasource {
	return source.NewStorageDatasource(a.store, "")
}

func (a *appState) unlockWith(ctx context.Context, password string) error {
	a.creds = credentials.FromPassword(password, "")
	a.src = source.New("default", a.datasource(), a.creds, a.vaultFormat(),
		source.WithVaultOptions(a.vaultOptions()...),
		source.WithLogger(a.logger),
	)
	if err := a.src.Unlock(ctx); err != nil {
		return fmt.Errorf("failed to unlock vault: %w", err)
	}
	return nil
}

// ensureUnlocked opens the store and unlocks the existing vault.
func ensureUnlocked(cmd *cobra.Command) (*vault.Vault, error) {
	return unlock(cmd, true)
}

func unlock(cmd *cobra.Command, interactive bool) (*vault.Vault, error) {
	ctx := cmd.Context()
	if err := app.openStore(ctx); err != nil {
		return nil, err
	}
	content, err := app.datasource().Load(ctx)
	if err != nil {
		return nil, err
	}
	if content == "" {
		return nil, fmt.Errorf("no vault found in %s: run 'vaultsync init' first", app.dir)
	}
	password, err := masterPassword(cmd, interactive)
	if err != nil {
		return nil, err
	}
	if err := app.unlockWith(ctx, password); err != nil {
		return nil, err
	}
	return app.src.Vault()
}

// save writes the vault back, merging concurrent changes from the store.
func save(cmd *cobra.Command) error {
	if err := app.src.Save(cmd.Context()); err != nil {
		return fmt.Errorf("failed to save vault: %w", err)
	}
	return nil
}

func (a *appState) close() error {
	if a == nil {
		return nil
	}
	if a.src != nil {
		a.src.Lock()
	}
	if a.creds != nil {
		a.creds.Destroy()
	}
	if a.closer != nil {
		err := a.closer.Close()
		a.store, a.closer = nil, nil
		return err
	}
	return nil
}

// parseAssignments splits key=value pairs.
func parseAssignments(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid field %q (expected key=value)", pair)
		}
		out[key] = value
	}
	return out, nil
}
