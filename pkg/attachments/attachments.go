// Package attachments stores encrypted files against vault entries.
//
// Blob bytes live in a Datasource. The entry only carries a JSON details
// record under BC_ENTRY_ATTACHMENT:<id>, so attachment metadata merges with
// the rest of the vault. Blobs are encrypted with a per-vault random key held
// in the BC_VAULT_ATTACHMENTS_KEY vault attribute.
package attachments

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/forest6511/vaultsync/pkg/crypto"
	"github.com/forest6511/vaultsync/pkg/vault"
)

const (
	// EntryAttributePrefix prefixes the entry attribute holding attachment details.
	EntryAttributePrefix = "BC_ENTRY_ATTACHMENT:"

	// VaultAttributeKey is the vault attribute holding the attachments key.
	VaultAttributeKey = "BC_VAULT_ATTACHMENTS_KEY"

	attachmentsKeyLength = 32
)

var (
	// ErrAttachmentNotFound indicates an unknown attachment.
	ErrAttachmentNotFound = errors.New("attachments: attachment not available")
	// ErrInsufficientStorage is matched by every *CapacityError.
	ErrInsufficientStorage = errors.New("attachments: insufficient storage")
)

// CapacityError reports a write refused for lack of space.
type CapacityError struct {
	Needed    int64
	Available int64
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("attachments: not enough space to store attachment: needed = %d B, available = %d B", e.Needed, e.Available)
}

// Unwrap lets errors.Is match ErrInsufficientStorage.
func (e *CapacityError) Unwrap() error {
	return ErrInsufficientStorage
}

// Attachment is the details record stored on an entry.
type Attachment struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Type          string    `json:"type"`
	SizeOriginal  int64     `json:"sizeOriginal"`
	SizeEncrypted int64     `json:"sizeEncrypted"`
	Created       time.Time `json:"created"`
	Updated       time.Time `json:"updated"`
}

// NewAttachmentID returns a fresh attachment ID.
func NewAttachmentID() string {
	return uuid.NewString()
}

// Manager reads and writes attachments through a Datasource.
type Manager struct {
	ds       Datasource
	provider crypto.Provider
	clock    func() time.Time
	logger   zerolog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source for Created/Updated.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// NewManager creates a Manager.
func NewManager(ds Datasource, provider crypto.Provider, opts ...Option) *Manager {
	m := &Manager{
		ds:       ds,
		provider: provider,
		clock:    time.Now,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// vaultKey returns the attachments key of v. A missing key is generated but
// not stored: fresh reports whether the caller must persist it.
func vaultKey(v *vault.Vault) (key string, fresh bool, err error) {
	if key, ok := v.Attribute(VaultAttributeKey); ok && key != "" {
		return key, false, nil
	}
	raw, err := crypto.RandomBytes(attachmentsKeyLength)
	if err != nil {
		return "", false, fmt.Errorf("attachments: failed to generate key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), true, nil
}

func entry(v *vault.Vault, entryID string) (*vault.Entry, error) {
	e := v.FindEntryByID(entryID)
	if e == nil {
		return nil, vault.ErrEntryNotFound
	}
	return e, nil
}

// Set stores data as attachmentID on an entry, replacing any previous version.
//
// The space needed is the full encrypted size for a new attachment and the
// growth over the stored version for an update. AvailableStorage is queried
// once and nothing is written when the space is insufficient.
func (m *Manager) Set(ctx context.Context, v *vault.Vault, entryID, attachmentID string, data []byte, name, mimeType string) error {
	if _, err := entry(v, entryID); err != nil {
		return err
	}
	if attachmentID == "" {
		return fmt.Errorf("attachments: %w", vault.ErrKeyEmpty)
	}
	key, freshKey, err := vaultKey(v)
	if err != nil {
		return err
	}
	sealed, err := m.provider.Encrypt(ctx, data, key)
	if err != nil {
		return fmt.Errorf("attachments: failed to encrypt: %w", err)
	}

	existing, err := m.Details(v, entryID, attachmentID)
	if err != nil && !errors.Is(err, ErrAttachmentNotFound) {
		return err
	}
	needed := int64(len(sealed))
	if existing != nil {
		needed -= existing.SizeEncrypted
	}

	available, err := m.ds.AvailableStorage(ctx)
	if err != nil {
		return fmt.Errorf("attachments: failed to query storage: %w", err)
	}
	if available != Unlimited && needed > available {
		return &CapacityError{Needed: needed, Available: available}
	}

	if err := m.ds.PutAttachment(ctx, v.ID(), attachmentID, []byte(sealed)); err != nil {
		return err
	}
	if freshKey {
		if err := v.SetAttribute(VaultAttributeKey, key); err != nil {
			return err
		}
	}

	now := m.clock().UTC()
	details := Attachment{
		ID:            attachmentID,
		Name:          name,
		Type:          mimeType,
		SizeOriginal:  int64(len(data)),
		SizeEncrypted: int64(len(sealed)),
		Created:       now,
		Updated:       now,
	}
	if existing != nil {
		details.Created = existing.Created
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("attachments: failed to encode details: %w", err)
	}
	if err := v.SetEntryAttribute(entryID, EntryAttributePrefix+attachmentID, string(raw)); err != nil {
		return err
	}
	m.logger.Debug().Str("entry_id", entryID).Str("attachment_id", attachmentID).Int64("size", details.SizeEncrypted).Msg("attachment stored")
	return nil
}

// Get returns the decrypted content of an attachment.
func (m *Manager) Get(ctx context.Context, v *vault.Vault, entryID, attachmentID string) ([]byte, error) {
	if _, err := m.Details(v, entryID, attachmentID); err != nil {
		return nil, err
	}
	key, ok := v.Attribute(VaultAttributeKey)
	if !ok || key == "" {
		return nil, fmt.Errorf("%w: vault has no attachments key", ErrAttachmentNotFound)
	}
	sealed, err := m.ds.GetAttachment(ctx, v.ID(), attachmentID)
	if err != nil {
		return nil, err
	}
	data, err := m.provider.Decrypt(ctx, string(sealed), key)
	if err != nil {
		return nil, fmt.Errorf("attachments: failed to decrypt: %w", err)
	}
	return data, nil
}

// Details returns the details record of an attachment.
func (m *Manager) Details(v *vault.Vault, entryID, attachmentID string) (*Attachment, error) {
	e, err := entry(v, entryID)
	if err != nil {
		return nil, err
	}
	raw, ok := e.Attribute(EntryAttributePrefix + attachmentID)
	if !ok {
		return nil, ErrAttachmentNotFound
	}
	var details Attachment
	if err := json.Unmarshal([]byte(raw), &details); err != nil {
		return nil, fmt.Errorf("attachments: corrupt details for %s: %w", attachmentID, err)
	}
	return &details, nil
}

// List returns the attachments of an entry ordered by name.
// Records that fail to parse are skipped.
func (m *Manager) List(v *vault.Vault, entryID string) ([]Attachment, error) {
	e, err := entry(v, entryID)
	if err != nil {
		return nil, err
	}
	out := []Attachment{}
	for key, raw := range e.Attributes() {
		if !strings.HasPrefix(key, EntryAttributePrefix) {
			continue
		}
		var details Attachment
		if err := json.Unmarshal([]byte(raw), &details); err != nil {
			m.logger.Warn().Err(err).Str("attribute", key).Msg("skipping corrupt attachment details")
			continue
		}
		out = append(out, details)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Remove deletes the blob and the details record of an attachment.
func (m *Manager) Remove(ctx context.Context, v *vault.Vault, entryID, attachmentID string) error {
	if _, err := m.Details(v, entryID, attachmentID); err != nil {
		return err
	}
	if err := m.ds.RemoveAttachment(ctx, v.ID(), attachmentID); err != nil {
		return err
	}
	return v.DeleteEntryAttribute(entryID, EntryAttributePrefix+attachmentID)
}
