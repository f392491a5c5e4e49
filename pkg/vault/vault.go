// Package vault implements the in-memory vault document: groups, entries,
// versioned property slots and the tombstone registers used for merging.
//
// The Vault owns every Group and Entry. Children refer to their parent only
// by ID, so a vault can be snapshotted as plain data and merged without
// chasing pointers.
//
// A Vault is not safe for concurrent use. Callers serialise writers (see
// package source).
package vault

import (
	"time"

	"github.com/google/uuid"
)

const (
	// RootID is the parent ID of top-level groups.
	RootID = "0"

	// TrashGroupTitle identifies the trash group at the root.
	TrashGroupTitle = "Trash"

	// OrphansGroupTitle is the title of the group created by Optimise.
	OrphansGroupTitle = "Orphans"

	// DefaultGroupTitle is the title given to newly created groups.
	DefaultGroupTitle = "New group"

	// DefaultTombstoneRetention is how long deletion records are kept (12 weeks).
	DefaultTombstoneRetention = 12 * 7 * 24 * time.Hour
)

// Vault is the root container of a password vault.
type Vault struct {
	id         string
	created    int64
	attributes map[string]*Value

	groups     []*Group
	entries    []*Entry
	groupIndex map[string]int
	entryIndex map[string]int

	deletedGroups  map[string]int64
	deletedEntries map[string]int64

	clock     func() time.Time
	newID     func() string
	retention time.Duration
}

// Option configures a Vault.
type Option func(*Vault)

// WithClock overrides the time source used for timestamps.
func WithClock(clock func() time.Time) Option {
	return func(v *Vault) {
		if clock != nil {
			v.clock = clock
		}
	}
}

// WithIDGenerator overrides the generator used for vault, group and entry IDs.
func WithIDGenerator(gen func() string) Option {
	return func(v *Vault) {
		if gen != nil {
			v.newID = gen
		}
	}
}

// WithTombstoneRetention sets how long tombstones survive Optimise.
func WithTombstoneRetention(d time.Duration) Option {
	return func(v *Vault) {
		if d > 0 {
			v.retention = d
		}
	}
}

func newVault(opts []Option) *Vault {
	v := &Vault{
		clock:     time.Now,
		newID:     uuid.NewString,
		retention: DefaultTombstoneRetention,
	}
	for _, opt := range opts {
		opt(v)
	}
	v.reset()
	return v
}

func (v *Vault) reset() {
	v.id = v.newID()
	v.created = v.now()
	v.attributes = make(map[string]*Value)
	v.groups = nil
	v.entries = nil
	v.groupIndex = make(map[string]int)
	v.entryIndex = make(map[string]int)
	v.deletedGroups = make(map[string]int64)
	v.deletedEntries = make(map[string]int64)
}

// New creates an empty vault with a fresh ID.
func New(opts ...Option) *Vault {
	return newVault(opts)
}

// NewWithDefaults creates a vault holding a "General" group and the trash group.
func NewWithDefaults(opts ...Option) *Vault {
	v := newVault(opts)
	general := v.addGroup(RootID)
	general.title = "General"
	trash := v.addGroup(RootID)
	trash.title = TrashGroupTitle
	return v
}

// ID returns the vault identifier.
func (v *Vault) ID() string { return v.id }

// Created returns the creation timestamp in epoch milliseconds.
func (v *Vault) Created() int64 { return v.created }

// Erase resets the vault to an empty state under a new ID.
func (v *Vault) Erase() {
	v.reset()
}

func (v *Vault) now() int64 {
	return v.clock().UnixMilli()
}

// Attribute returns a live vault attribute.
func (v *Vault) Attribute(key string) (string, bool) {
	val, ok := v.attributes[key]
	if !ok || val.IsDeleted() {
		return "", false
	}
	return val.Value, true
}

// Attributes returns all live vault attributes.
func (v *Vault) Attributes() map[string]string {
	return liveValues(v.attributes)
}

// SetAttribute sets a vault attribute.
func (v *Vault) SetAttribute(key, value string) error {
	return setSlot(v.attributes, key, value, v.now())
}

// DeleteAttribute marks a vault attribute as deleted.
func (v *Vault) DeleteAttribute(key string) {
	deleteSlot(v.attributes, key, v.now())
}

func setSlot(m map[string]*Value, key, value string, now int64) error {
	if key == "" {
		return ErrKeyEmpty
	}
	if existing, ok := m[key]; ok {
		existing.Set(value, now)
		return nil
	}
	m[key] = NewValue(value, now)
	return nil
}

func deleteSlot(m map[string]*Value, key string, now int64) {
	if existing, ok := m[key]; ok && !existing.IsDeleted() {
		existing.Delete(now)
	}
}

// DeletedGroups returns a copy of the group tombstone register.
func (v *Vault) DeletedGroups() map[string]int64 {
	return copyRegister(v.deletedGroups)
}

// DeletedEntries returns a copy of the entry tombstone register.
func (v *Vault) DeletedEntries() map[string]int64 {
	return copyRegister(v.deletedEntries)
}

func copyRegister(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, ts := range m {
		out[k] = ts
	}
	return out
}

func (v *Vault) reindex() {
	v.groupIndex = make(map[string]int, len(v.groups))
	for i, g := range v.groups {
		v.groupIndex[g.id] = i
	}
	v.entryIndex = make(map[string]int, len(v.entries))
	for i, e := range v.entries {
		v.entryIndex[e.id] = i
	}
}

// Optimise repairs parent references and expires old tombstones.
//
// Groups and entries whose parent does not exist, and groups caught in a
// parent cycle, are moved into the Orphans group. The Orphans group is
// created at most once and reused by later calls.
func (v *Vault) Optimise() {
	var orphans *Group
	orphanGroup := func() *Group {
		if orphans == nil {
			orphans = v.findRootGroupByTitle(OrphansGroupTitle)
		}
		if orphans == nil {
			orphans = v.addGroup(RootID)
			orphans.title = OrphansGroupTitle
		}
		return orphans
	}

	for _, g := range v.groups {
		if v.isDetached(g) {
			g.parentID = orphanGroup().id
		}
	}
	for _, e := range v.entries {
		if _, ok := v.groupIndex[e.parentID]; !ok {
			e.parentID = orphanGroup().id
		}
	}

	cutoff := v.clock().Add(-v.retention).UnixMilli()
	for id, ts := range v.deletedGroups {
		if ts < cutoff {
			delete(v.deletedGroups, id)
		}
	}
	for id, ts := range v.deletedEntries {
		if ts < cutoff {
			delete(v.deletedEntries, id)
		}
	}
}

// isDetached reports whether g cannot reach the root through live parents.
func (v *Vault) isDetached(g *Group) bool {
	seen := map[string]struct{}{g.id: {}}
	parent := g.parentID
	for parent != RootID {
		idx, ok := v.groupIndex[parent]
		if !ok {
			return true
		}
		if _, loop := seen[parent]; loop {
			return true
		}
		seen[parent] = struct{}{}
		parent = v.groups[idx].parentID
	}
	return false
}
