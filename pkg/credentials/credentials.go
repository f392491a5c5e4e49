// Package credentials holds master secrets and connection data away from the
// rest of the program.
//
// A Credentials value is only a handle: the secret material lives in a
// process-private registry keyed by a random ID and is never serialised
// except through ToSecureString, which requires the secure-export purpose.
//
// Purposes can be narrowed with RestrictPurposes but never widened again.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/forest6511/vaultsync/pkg/crypto"
)

// Purpose is a capability granted to a set of credentials.
type Purpose string

const (
	PurposeDecryptVault Purpose = "vault-decrypt"
	PurposeEncryptVault Purpose = "vault-encrypt"
	PurposeSecureExport Purpose = "secure-export"
)

// Secure string signatures.
const (
	SecureStringPrefix       = "bc~3>"
	LegacySecureStringPrefix = "b~>buttercup/acreds.v2."
)

// Errors returned by credential operations.
var (
	ErrPurposeNotAllowed   = errors.New("credentials: purpose not allowed")
	ErrNoMasterSecret      = errors.New("credentials: master secret not set")
	ErrMasterRequired      = errors.New("credentials: master secret is required")
	ErrMasterMismatch      = errors.New("credentials: master secret does not match")
	ErrInsecureEnvironment = errors.New("credentials: insecure environment and payload is not open")
	ErrInvalidSecureString = errors.New("credentials: invalid secure string")
	ErrDestroyed           = errors.New("credentials: credentials have been destroyed")
)

// AllPurposes returns every known purpose.
func AllPurposes() []Purpose {
	return []Purpose{PurposeDecryptVault, PurposeEncryptVault, PurposeSecureExport}
}

// Data is the credential payload, for example {"datasource": {...}} or {"password": "..."}.
type Data map[string]any

// Payload is the full registry record exposed in trusted environments.
type Payload struct {
	Data     Data      `json:"data"`
	Purposes []Purpose `json:"purposes"`
	Open     bool      `json:"open"`
}

// Environment tells whether the process is a closed, trusted runtime.
type Environment interface {
	IsClosed() bool
}

type staticEnvironment bool

func (e staticEnvironment) IsClosed() bool { return bool(e) }

var (
	// ClosedEnvironment exposes raw data.
	ClosedEnvironment Environment = staticEnvironment(true)
	// OpenEnvironment hides raw data unless the payload is open.
	OpenEnvironment Environment = staticEnvironment(false)
)

type record struct {
	data     Data
	master   string
	purposes []Purpose
	open     bool
}

// registry stores secret material outside the handle.
var registry = struct {
	sync.Mutex
	records map[string]*record
}{records: make(map[string]*record)}

// withRecord runs fn on the record of id while holding the registry lock.
func withRecord(id string, fn func(*record) error) error {
	registry.Lock()
	defer registry.Unlock()
	rec, ok := registry.records[id]
	if !ok {
		return ErrDestroyed
	}
	return fn(rec)
}

// Credentials is a handle to registered secret material.
type Credentials struct {
	id  string
	env Environment
}

// Option configures new credentials.
type Option func(*Credentials, *record)

// WithEnvironment sets the environment consulted by Data, Payload and SetData.
func WithEnvironment(env Environment) Option {
	return func(c *Credentials, _ *record) {
		if env != nil {
			c.env = env
		}
	}
}

// WithOpen marks the payload as readable in untrusted environments.
func WithOpen(open bool) Option {
	return func(_ *Credentials, r *record) {
		r.open = open
	}
}

// New registers data and an optional master secret.
func New(data Data, master string, opts ...Option) *Credentials {
	if data == nil {
		data = Data{}
	}
	c := &Credentials{id: uuid.NewString(), env: OpenEnvironment}
	rec := &record{data: data, master: master, purposes: AllPurposes()}
	for _, opt := range opts {
		opt(c, rec)
	}
	registry.Lock()
	registry.records[c.id] = rec
	registry.Unlock()
	return c
}

// FromPassword wraps a single password. The password doubles as master when master is empty.
func FromPassword(password, master string, opts ...Option) *Credentials {
	if master == "" {
		master = password
	}
	return New(Data{"password": password}, master, opts...)
}

// FromDatasource wraps a datasource configuration.
func FromDatasource(cfg map[string]any, master string, opts ...Option) *Credentials {
	return New(Data{"datasource": cfg}, master, opts...)
}

// FromCredentials clones c. The caller must know c's master secret.
func FromCredentials(c *Credentials, master string, opts ...Option) (*Credentials, error) {
	if master == "" {
		return nil, ErrMasterRequired
	}
	var data Data
	err := withRecord(c.id, func(rec *record) error {
		if rec.master != master {
			return ErrMasterMismatch
		}
		var err error
		data, err = cloneData(rec.data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return New(data, master, opts...), nil
}

// FromSecureString decrypts a string produced by ToSecureString.
// Payloads written by older clients are migrated: a string-encoded
// datasource is parsed and top-level username/password move into it.
func FromSecureString(ctx context.Context, provider crypto.Provider, content, master string, opts ...Option) (*Credentials, error) {
	var body string
	switch {
	case strings.HasPrefix(content, SecureStringPrefix):
		body = content[len(SecureStringPrefix):]
	case strings.HasPrefix(content, LegacySecureStringPrefix):
		body = content[len(LegacySecureStringPrefix):]
	default:
		return nil, ErrInvalidSecureString
	}

	plain, err := provider.Decrypt(ctx, body, master)
	if err != nil {
		return nil, fmt.Errorf("credentials: failed to decrypt secure string: %w", err)
	}
	var data Data
	if err := json.Unmarshal(plain, &data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecureString, err)
	}
	if err := migrateLegacy(data); err != nil {
		return nil, err
	}
	return New(data, master, opts...), nil
}

func migrateLegacy(data Data) error {
	raw, ok := data["datasource"]
	if !ok || raw == nil {
		return nil
	}
	if s, isString := raw.(string); isString {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(s), &parsed); err != nil {
			return fmt.Errorf("%w: datasource: %v", ErrInvalidSecureString, err)
		}
		raw = parsed
	}
	ds, ok := raw.(map[string]any)
	if !ok {
		return fmt.Errorf("%w: datasource is not an object", ErrInvalidSecureString)
	}
	for _, key := range []string{"username", "password"} {
		if v, ok := data[key]; ok && v != nil && v != "" {
			ds[key] = v
			delete(data, key)
		}
	}
	data["datasource"] = ds
	return nil
}

func cloneData(d Data) (Data, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("credentials: failed to copy data: %w", err)
	}
	var out Data
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("credentials: failed to copy data: %w", err)
	}
	return out, nil
}

// ID returns the registry key of the credentials.
func (c *Credentials) ID() string { return c.id }

// Purposes returns the purposes still allowed.
func (c *Credentials) Purposes() []Purpose {
	var out []Purpose
	_ = withRecord(c.id, func(rec *record) error {
		out = append([]Purpose(nil), rec.purposes...)
		return nil
	})
	return out
}

// AllowsPurpose reports whether p is still allowed.
func (c *Credentials) AllowsPurpose(p Purpose) bool {
	for _, allowed := range c.Purposes() {
		if allowed == p {
			return true
		}
	}
	return false
}

func allows(rec *record, p Purpose) bool {
	for _, allowed := range rec.purposes {
		if allowed == p {
			return true
		}
	}
	return false
}

// RestrictPurposes narrows the allowed purposes to the intersection with allowed.
func (c *Credentials) RestrictPurposes(allowed ...Purpose) {
	registry.Lock()
	defer registry.Unlock()
	rec, ok := registry.records[c.id]
	if !ok {
		return
	}
	keep := make(map[Purpose]struct{}, len(allowed))
	for _, p := range allowed {
		keep[p] = struct{}{}
	}
	narrowed := rec.purposes[:0]
	for _, p := range rec.purposes {
		if _, ok := keep[p]; ok {
			narrowed = append(narrowed, p)
		}
	}
	rec.purposes = narrowed
}

// MasterSecret returns the master secret for use under purpose p.
func (c *Credentials) MasterSecret(p Purpose) (string, error) {
	var master string
	err := withRecord(c.id, func(rec *record) error {
		if !allows(rec, p) {
			return fmt.Errorf("%w: %s", ErrPurposeNotAllowed, p)
		}
		if rec.master == "" {
			return ErrNoMasterSecret
		}
		master = rec.master
		return nil
	})
	return master, err
}

// ToSecureString encrypts the data with the master secret for storage.
func (c *Credentials) ToSecureString(ctx context.Context, provider crypto.Provider) (string, error) {
	var (
		master string
		raw    []byte
	)
	err := withRecord(c.id, func(rec *record) error {
		if !allows(rec, PurposeSecureExport) {
			return fmt.Errorf("%w: %s", ErrPurposeNotAllowed, PurposeSecureExport)
		}
		if rec.master == "" {
			return ErrNoMasterSecret
		}
		master = rec.master
		var err error
		if raw, err = json.Marshal(rec.data); err != nil {
			return fmt.Errorf("credentials: failed to encode data: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	ct, err := provider.Encrypt(ctx, raw, master)
	if err != nil {
		return "", fmt.Errorf("credentials: failed to encrypt: %w", err)
	}
	return SecureStringPrefix + ct, nil
}

func (c *Credentials) readable(rec *record) bool {
	return c.env.IsClosed() || rec.open
}

// Data returns a copy of the credential data, or nil outside a closed
// environment unless the payload is open.
func (c *Credentials) Data() Data {
	var out Data
	_ = withRecord(c.id, func(rec *record) error {
		if !c.readable(rec) {
			return nil
		}
		var err error
		out, err = cloneData(rec.data)
		return err
	})
	return out
}

// Payload returns a copy of the full registry record under the same rules as Data.
func (c *Credentials) Payload() *Payload {
	var out *Payload
	_ = withRecord(c.id, func(rec *record) error {
		if !c.readable(rec) {
			return nil
		}
		data, err := cloneData(rec.data)
		if err != nil {
			return err
		}
		out = &Payload{
			Data:     data,
			Purposes: append([]Purpose(nil), rec.purposes...),
			Open:     rec.open,
		}
		return nil
	})
	return out
}

// SetData replaces the credential data.
func (c *Credentials) SetData(d Data) error {
	return withRecord(c.id, func(rec *record) error {
		if !c.readable(rec) {
			return ErrInsecureEnvironment
		}
		rec.data = d
		return nil
	})
}

// Destroy wipes the master secret and drops the registry record.
func (c *Credentials) Destroy() {
	registry.Lock()
	defer registry.Unlock()
	if rec, ok := registry.records[c.id]; ok {
		rec.master = ""
		rec.data = nil
		delete(registry.records, c.id)
	}
}
