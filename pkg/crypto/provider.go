package crypto

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// textVersion prefixes every ciphertext produced by the default provider.
const textVersion = "v1$"

// ErrMalformedCiphertext indicates text that was not produced by Provider.Encrypt.
var ErrMalformedCiphertext = errors.New("crypto: malformed ciphertext")

// Provider is the encryption/compression boundary consumed by the vault engine.
// Implementations are treated as infallible-or-failing black boxes.
type Provider interface {
	// Encrypt seals plaintext with a key derived from secret and returns printable text.
	Encrypt(ctx context.Context, plaintext []byte, secret string) (string, error)
	// Decrypt reverses Encrypt.
	Decrypt(ctx context.Context, ciphertext string, secret string) ([]byte, error)
	// Compress shrinks data before encryption.
	Compress(ctx context.Context, data []byte) ([]byte, error)
	// Decompress reverses Compress.
	Decompress(ctx context.Context, data []byte) ([]byte, error)
}

// DefaultProvider implements Provider with Argon2id, AES-256-GCM and gzip.
//
// Ciphertext layout: "v1$" + base64(salt || nonce || sealed).
type DefaultProvider struct {
	params KDFParams
}

// NewProvider creates a DefaultProvider using the given KDF parameters.
func NewProvider(params KDFParams) *DefaultProvider {
	return &DefaultProvider{params: params.withDefaults()}
}

// Params returns the KDF parameters in use.
func (p *DefaultProvider) Params() KDFParams {
	return p.params
}

// Encrypt implements Provider.
func (p *DefaultProvider) Encrypt(ctx context.Context, plaintext []byte, secret string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if secret == "" {
		return "", ErrEmptySecret
	}

	salt, err := RandomBytes(SaltLength)
	if err != nil {
		return "", err
	}
	key := DeriveKeyWithParams([]byte(secret), salt, p.params)
	defer SecureWipe(key)

	sealed, nonce, err := Encrypt(key, plaintext)
	if err != nil {
		return "", err
	}

	blob := make([]byte, 0, len(salt)+len(nonce)+len(sealed))
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = append(blob, sealed...)
	return textVersion + base64.StdEncoding.EncodeToString(blob), nil
}

// Decrypt implements Provider.
func (p *DefaultProvider) Decrypt(ctx context.Context, ciphertext string, secret string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if !strings.HasPrefix(ciphertext, textVersion) {
		return nil, ErrMalformedCiphertext
	}

	blob, err := base64.StdEncoding.DecodeString(ciphertext[len(textVersion):])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCiphertext, err)
	}
	if len(blob) < SaltLength+NonceLength {
		return nil, ErrCiphertextTooShort
	}

	salt := blob[:SaltLength]
	nonce := blob[SaltLength : SaltLength+NonceLength]
	key := DeriveKeyWithParams([]byte(secret), salt, p.params)
	defer SecureWipe(key)

	return Decrypt(key, blob[SaltLength+NonceLength:], nonce)
}

// Compress implements Provider using gzip.
func (p *DefaultProvider) Compress(ctx context.Context, data []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("crypto: compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("crypto: compress: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress implements Provider.
func (p *DefaultProvider) Decompress(ctx context.Context, data []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("crypto: decompress: %w", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("crypto: decompress: %w", err)
	}
	return out, nil
}
