package format

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/forest6511/vaultsync/pkg/credentials"
	"github.com/forest6511/vaultsync/pkg/crypto"
	"github.com/forest6511/vaultsync/pkg/vault"
)

// Codec converts vaults to and from signed, encrypted text.
type Codec struct {
	Provider crypto.Provider

	// VaultOptions are applied to every decoded or merged vault.
	VaultOptions []vault.Option
}

// NewCodec creates a codec using provider.
func NewCodec(provider crypto.Provider, opts ...vault.Option) *Codec {
	return &Codec{Provider: provider, VaultOptions: opts}
}

// Encode serialises v: JSON, then compress, then encrypt, then sign.
func (c *Codec) Encode(ctx context.Context, v *vault.Vault, creds *credentials.Credentials) (string, error) {
	secret, err := creds.MasterSecret(credentials.PurposeEncryptVault)
	if err != nil {
		return "", err
	}
	raw, err := MarshalSnapshot(v.Snapshot())
	if err != nil {
		return "", err
	}
	packed, err := c.Provider.Compress(ctx, raw)
	if err != nil {
		return "", fmt.Errorf("format: failed to compress vault: %w", err)
	}
	ct, err := c.Provider.Encrypt(ctx, packed, secret)
	if err != nil {
		return "", fmt.Errorf("format: failed to encrypt vault: %w", err)
	}
	return SignatureB + ct, nil
}

// Decode reverses Encode.
func (c *Codec) Decode(ctx context.Context, content string, creds *credentials.Credentials) (*vault.Vault, error) {
	id, err := DetectFormat(content)
	if err != nil {
		return nil, err
	}
	if id == FormatA {
		return nil, ErrLegacyFormat
	}
	secret, err := creds.MasterSecret(credentials.PurposeDecryptVault)
	if err != nil {
		return nil, err
	}
	packed, err := c.Provider.Decrypt(ctx, content[len(SignatureB):], secret)
	if err != nil {
		return nil, fmt.Errorf("format: failed to decrypt vault: %w", err)
	}
	raw, err := c.Provider.Decompress(ctx, packed)
	if err != nil {
		return nil, fmt.Errorf("format: failed to decompress vault: %w", err)
	}
	snap, err := UnmarshalSnapshot(raw)
	if err != nil {
		return nil, err
	}
	return vault.FromSnapshot(snap, c.VaultOptions...)
}

// MarshalSnapshot encodes a snapshot as JSON.
func MarshalSnapshot(s *vault.Snapshot) ([]byte, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("format: failed to marshal snapshot: %w", err)
	}
	return raw, nil
}

// UnmarshalSnapshot decodes a JSON snapshot, filling missing registers.
func UnmarshalSnapshot(raw []byte) (*vault.Snapshot, error) {
	var s vault.Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	if s.Attributes == nil {
		s.Attributes = map[string]*vault.Value{}
	}
	if s.Deletions.Entries == nil {
		s.Deletions.Entries = map[string]int64{}
	}
	if s.Deletions.Groups == nil {
		s.Deletions.Groups = map[string]int64{}
	}
	return &s, nil
}
