// Package crypto provides the cryptographic and compression primitives used by
// vaultsync.
//
// Two layers are exposed:
//
//   - Byte primitives: AES-256-GCM sealing and Argon2id key derivation.
//   - Provider: the text-level encrypt/decrypt/compress/decompress boundary
//     consumed by the vault format engine, credentials and attachments.
//
// # Example Usage
//
//	p := crypto.NewProvider(crypto.DefaultKDFParams())
//	ct, err := p.Encrypt(ctx, []byte("payload"), "master password")
//	pt, err := p.Decrypt(ctx, ct, "master password")
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/argon2"
)

// Argon2id defaults following OWASP recommendations.
const (
	// Argon2Memory is the memory cost in KiB (64MB).
	Argon2Memory = 64 * 1024

	// Argon2Time is the number of iterations.
	Argon2Time = 3

	// Argon2Threads is the degree of parallelism.
	Argon2Threads = 4

	// KeyLength is the length of encryption keys in bytes (256 bits).
	KeyLength = 32

	// NonceLength is the length of GCM nonces in bytes (96 bits).
	NonceLength = 12

	// SaltLength is the length of per-message KDF salts.
	SaltLength = 16
)

// Sentinel errors returned by crypto functions.
var (
	ErrInvalidKeyLength   = errors.New("crypto: invalid key length, must be 32 bytes")
	ErrInvalidNonceLength = errors.New("crypto: invalid nonce length, must be 12 bytes")
	ErrDecryptionFailed   = errors.New("crypto: decryption failed, authentication tag verification failed")
	ErrCiphertextTooShort = errors.New("crypto: ciphertext too short")
	ErrEmptySecret        = errors.New("crypto: secret cannot be empty")
)

// KDFParams contains Argon2id key derivation parameters.
type KDFParams struct {
	Memory      uint32 `yaml:"memory" json:"memory"`           // Memory in KiB
	Iterations  uint32 `yaml:"iterations" json:"iterations"`   // Time cost
	Parallelism uint8  `yaml:"parallelism" json:"parallelism"` // Threads
}

// DefaultKDFParams returns the OWASP parameters used for vault keys.
func DefaultKDFParams() KDFParams {
	return KDFParams{
		Memory:      Argon2Memory,
		Iterations:  Argon2Time,
		Parallelism: Argon2Threads,
	}
}

// withDefaults fills zero fields so a partially specified config stays usable.
func (p KDFParams) withDefaults() KDFParams {
	d := DefaultKDFParams()
	if p.Memory == 0 {
		p.Memory = d.Memory
	}
	if p.Iterations == 0 {
		p.Iterations = d.Iterations
	}
	if p.Parallelism == 0 {
		p.Parallelism = d.Parallelism
	}
	return p
}

// DeriveKey derives a 256-bit key from a password using the default Argon2id parameters.
func DeriveKey(password, salt []byte) []byte {
	return DeriveKeyWithParams(password, salt, DefaultKDFParams())
}

// DeriveKeyWithParams derives a 256-bit key from a password using the given parameters.
func DeriveKeyWithParams(password, salt []byte, params KDFParams) []byte {
	params = params.withDefaults()
	return argon2.IDKey(password, salt, params.Iterations, params.Memory, params.Parallelism, KeyLength)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKeyLength
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Encrypt seals plaintext with AES-256-GCM under a fresh random nonce.
// The authentication tag is appended to the returned ciphertext.
func Encrypt(key, plaintext []byte) (ciphertext []byte, nonce []byte, err error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, NonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("crypto: failed to generate nonce: %w", err)
	}

	return gcm.Seal(nil, nonce, plaintext, nil), nonce, nil
}

// Decrypt opens an AES-256-GCM ciphertext produced by Encrypt.
// Tampered or mis-keyed input yields ErrDecryptionFailed.
func Decrypt(key, ciphertext, nonce []byte) (plaintext []byte, err error) {
	if len(nonce) != NonceLength {
		if len(key) != KeyLength {
			return nil, ErrInvalidKeyLength
		}
		return nil, ErrInvalidNonceLength
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.Overhead() {
		return nil, ErrCiphertextTooShort
	}

	plaintext, err = gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// RandomBytes returns n bytes from crypto/rand.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("crypto: failed to read random bytes: %w", err)
	}
	return b, nil
}

// SecureWipe overwrites a byte slice with zeros.
func SecureWipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	// keep b reachable so the zeroing loop is not elided
	runtime.KeepAlive(b)
}
