// Package format encodes vaults for storage and merges diverged copies.
//
// Encoded content is a signature followed by the encrypted, compressed JSON
// snapshot. The signature lets a loader pick a codec without decrypting.
package format

import (
	"context"
	"strings"

	"github.com/forest6511/vaultsync/pkg/credentials"
	"github.com/forest6511/vaultsync/pkg/vault"
)

// ID identifies a vault format.
type ID string

const (
	// FormatA is the legacy command-log format. It is detected but not decoded.
	FormatA ID = "a"
	// FormatB is the mergeable snapshot format.
	FormatB ID = "b"
)

// Signatures prefixed to encoded content.
const (
	SignatureA = "b~>buttercup/a"
	SignatureB = "b~>buttercup/b"
)

// DetectFormat returns the format of encoded content from its signature.
func DetectFormat(content string) (ID, error) {
	switch {
	case strings.HasPrefix(content, SignatureB):
		return FormatB, nil
	case strings.HasPrefix(content, SignatureA):
		return FormatA, nil
	}
	return "", ErrUnknownSignature
}

// Format is a vault codec together with its merge strategy.
type Format interface {
	ID() ID
	Encode(ctx context.Context, v *vault.Vault, creds *credentials.Credentials) (string, error)
	Decode(ctx context.Context, content string, creds *credentials.Credentials) (*vault.Vault, error)
	Merge(base, incoming *vault.Vault) (*vault.Vault, error)
}

type formatB struct {
	codec *Codec
}

// NewFormatB returns the snapshot format backed by codec.
func NewFormatB(codec *Codec) Format {
	return &formatB{codec: codec}
}

func (f *formatB) ID() ID { return FormatB }

func (f *formatB) Encode(ctx context.Context, v *vault.Vault, creds *credentials.Credentials) (string, error) {
	return f.codec.Encode(ctx, v, creds)
}

func (f *formatB) Decode(ctx context.Context, content string, creds *credentials.Credentials) (*vault.Vault, error) {
	return f.codec.Decode(ctx, content, creds)
}

func (f *formatB) Merge(base, incoming *vault.Vault) (*vault.Vault, error) {
	return Merge(base, incoming, f.codec.VaultOptions...)
}
