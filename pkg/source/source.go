// Package source owns an unlocked vault together with the datasource it is
// loaded from and saved to.
//
// Saving is a read-merge-write cycle: when the stored content changed since
// the last load, the stored vault is decoded and merged into the local one
// before writing. Saves of one Source are serialised.
package source

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/forest6511/vaultsync/pkg/compare"
	"github.com/forest6511/vaultsync/pkg/credentials"
	"github.com/forest6511/vaultsync/pkg/format"
	"github.com/forest6511/vaultsync/pkg/storage"
	"github.com/forest6511/vaultsync/pkg/vault"
)

// ErrSourceLocked is returned when a locked source is read or saved.
var ErrSourceLocked = errors.New("source: vault is locked")

// DefaultKey is the storage key used by StorageDatasource when none is given.
const DefaultKey = "vault"

// Datasource loads and saves encoded vault content.
type Datasource interface {
	// Load returns the stored content, or "" when nothing was saved yet.
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, content string) error
}

// StorageDatasource keeps encoded content under a key of a storage.Interface.
type StorageDatasource struct {
	store storage.Interface
	key   string
}

// NewStorageDatasource creates a datasource for key inside store.
func NewStorageDatasource(store storage.Interface, key string) *StorageDatasource {
	if key == "" {
		key = DefaultKey
	}
	return &StorageDatasource{store: store, key: key}
}

// Load implements Datasource.
func (d *StorageDatasource) Load(ctx context.Context) (string, error) {
	content, err := d.store.GetValue(ctx, d.key)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("source: failed to load %s: %w", d.key, err)
	}
	return content, nil
}

// Save implements Datasource.
func (d *StorageDatasource) Save(ctx context.Context, content string) error {
	if err := d.store.SetValue(ctx, d.key, content); err != nil {
		return fmt.Errorf("source: failed to save %s: %w", d.key, err)
	}
	return nil
}

// Status is the lock state of a Source.
type Status string

const (
	StatusLocked   Status = "locked"
	StatusUnlocked Status = "unlocked"
)

// Source binds a datasource, credentials and a format to an unlocked vault.
type Source struct {
	id     string
	name   string
	ds     Datasource
	creds  *credentials.Credentials
	format format.Format
	opts   []vault.Option
	logger zerolog.Logger

	mu          sync.Mutex
	v           *vault.Vault
	lastContent string
}

// Option configures a Source.
type Option func(*Source)

// WithID sets the source ID. A random ID is used otherwise.
func WithID(id string) Option {
	return func(s *Source) {
		if id != "" {
			s.id = id
		}
	}
}

// WithVaultOptions sets the options used for vaults created on first unlock.
func WithVaultOptions(opts ...vault.Option) Option {
	return func(s *Source) {
		s.opts = opts
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Source) {
		s.logger = l
	}
}

// New creates a locked source.
func New(name string, ds Datasource, creds *credentials.Credentials, f format.Format, opts ...Option) *Source {
	s := &Source{
		id:     uuid.NewString(),
		name:   name,
		ds:     ds,
		creds:  creds,
		format: f,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("source_id", s.id).Logger()
	return s
}

// ID returns the source ID.
func (s *Source) ID() string { return s.id }

// Name returns the display name.
func (s *Source) Name() string { return s.name }

// Status reports whether the vault is unlocked.
func (s *Source) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.v == nil {
		return StatusLocked
	}
	return StatusUnlocked
}

// Unlock loads and decodes the vault. An empty datasource yields a new
// vault with the default groups, which is not written until Save.
// Unlocking an unlocked source is a no-op.
func (s *Source) Unlock(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.v != nil {
		return nil
	}

	content, err := s.ds.Load(ctx)
	if err != nil {
		return err
	}
	if content == "" {
		s.v = vault.NewWithDefaults(s.opts...)
		s.lastContent = ""
		s.logger.Info().Str("vault_id", s.v.ID()).Msg("initialised new vault")
		return nil
	}

	v, err := s.format.Decode(ctx, content, s.creds)
	if err != nil {
		return fmt.Errorf("source: failed to unlock: %w", err)
	}
	s.v = v
	s.lastContent = content
	s.logger.Debug().Str("vault_id", v.ID()).Msg("vault unlocked")
	return nil
}

// Vault returns the unlocked vault.
func (s *Source) Vault() (*vault.Vault, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.v == nil {
		return nil, ErrSourceLocked
	}
	return s.v, nil
}

// Save merges in remote changes, optimises and writes the vault. Nothing
// changes in memory unless the write succeeds; on success the source holds
// a new vault, so callers fetch it again with Vault.
func (s *Source) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.v == nil {
		return ErrSourceLocked
	}

	remote, err := s.ds.Load(ctx)
	if err != nil {
		return err
	}
	// The candidate replaces s.v only once the write succeeded.
	var candidate *vault.Vault
	if remote != "" && remote != s.lastContent {
		incoming, err := s.format.Decode(ctx, remote, s.creds)
		if err != nil {
			return fmt.Errorf("source: failed to decode remote vault: %w", err)
		}
		merged, err := s.format.Merge(s.v, incoming)
		if err != nil {
			return fmt.Errorf("source: failed to merge remote vault: %w", err)
		}
		s.logger.Info().
			Str("vault_id", merged.ID()).
			Bool("changed", compare.VaultsDiffer(s.v, merged)).
			Msg("merged remote changes")
		candidate = merged
	} else {
		candidate, err = vault.FromSnapshot(s.v.Snapshot(), s.opts...)
		if err != nil {
			return fmt.Errorf("source: failed to copy vault: %w", err)
		}
	}

	candidate.Optimise()
	content, err := s.format.Encode(ctx, candidate, s.creds)
	if err != nil {
		return fmt.Errorf("source: failed to encode vault: %w", err)
	}
	if err := s.ds.Save(ctx, content); err != nil {
		return err
	}
	s.v = candidate
	s.lastContent = content
	s.logger.Debug().Str("vault_id", s.v.ID()).Msg("vault saved")
	return nil
}

// Merge folds incoming into the unlocked vault. The result is written on the next Save.
func (s *Source) Merge(incoming *vault.Vault) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.v == nil {
		return ErrSourceLocked
	}
	merged, err := s.format.Merge(s.v, incoming)
	if err != nil {
		return fmt.Errorf("source: failed to merge vault: %w", err)
	}
	s.logger.Info().
		Str("vault_id", merged.ID()).
		Bool("changed", compare.VaultsDiffer(s.v, merged)).
		Msg("merged vault")
	s.v = merged
	return nil
}

// Lock drops the unlocked vault.
func (s *Source) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v = nil
	s.lastContent = ""
}
