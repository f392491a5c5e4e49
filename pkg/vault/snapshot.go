package vault

import "fmt"

// Snapshot is the serialisable form of a vault.
type Snapshot struct {
	ID         string            `json:"id"`
	Attributes map[string]*Value `json:"a"`
	Groups     []*GroupSnapshot  `json:"g"`
	Entries    []*EntrySnapshot  `json:"e"`
	Created    int64             `json:"c"`
	Deletions  Deletions         `json:"del"`
}

// Deletions holds the tombstone registers of a snapshot.
type Deletions struct {
	Entries map[string]int64 `json:"e"`
	Groups  map[string]int64 `json:"g"`
}

// GroupSnapshot is the serialised form of a group.
type GroupSnapshot struct {
	ID         string            `json:"id"`
	ParentID   string            `json:"g"`
	Title      string            `json:"t"`
	Attributes map[string]*Value `json:"a"`
}

// EntrySnapshot is the serialised form of an entry.
type EntrySnapshot struct {
	ID         string            `json:"id"`
	ParentID   string            `json:"g"`
	Properties map[string]*Value `json:"p"`
	Attributes map[string]*Value `json:"a"`
	ValueTypes map[string]*Value `json:"t,omitempty"`
}

// Clone returns a deep copy of the group snapshot.
func (g *GroupSnapshot) Clone() *GroupSnapshot {
	return &GroupSnapshot{
		ID:         g.ID,
		ParentID:   g.ParentID,
		Title:      g.Title,
		Attributes: CloneValueMap(g.Attributes),
	}
}

// Clone returns a deep copy of the entry snapshot.
func (e *EntrySnapshot) Clone() *EntrySnapshot {
	return &EntrySnapshot{
		ID:         e.ID,
		ParentID:   e.ParentID,
		Properties: CloneValueMap(e.Properties),
		Attributes: CloneValueMap(e.Attributes),
		ValueTypes: CloneValueMap(e.ValueTypes),
	}
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	out := &Snapshot{
		ID:         s.ID,
		Attributes: CloneValueMap(s.Attributes),
		Groups:     make([]*GroupSnapshot, 0, len(s.Groups)),
		Entries:    make([]*EntrySnapshot, 0, len(s.Entries)),
		Created:    s.Created,
		Deletions: Deletions{
			Entries: copyRegister(s.Deletions.Entries),
			Groups:  copyRegister(s.Deletions.Groups),
		},
	}
	for _, g := range s.Groups {
		out.Groups = append(out.Groups, g.Clone())
	}
	for _, e := range s.Entries {
		out.Entries = append(out.Entries, e.Clone())
	}
	return out
}

// Snapshot returns a deep copy of the vault state.
func (v *Vault) Snapshot() *Snapshot {
	s := &Snapshot{
		ID:         v.id,
		Attributes: CloneValueMap(v.attributes),
		Groups:     make([]*GroupSnapshot, 0, len(v.groups)),
		Entries:    make([]*EntrySnapshot, 0, len(v.entries)),
		Created:    v.created,
		Deletions: Deletions{
			Entries: copyRegister(v.deletedEntries),
			Groups:  copyRegister(v.deletedGroups),
		},
	}
	for _, g := range v.groups {
		s.Groups = append(s.Groups, &GroupSnapshot{
			ID:         g.id,
			ParentID:   g.parentID,
			Title:      g.title,
			Attributes: CloneValueMap(g.attributes),
		})
	}
	for _, e := range v.entries {
		es := &EntrySnapshot{
			ID:         e.id,
			ParentID:   e.parentID,
			Properties: CloneValueMap(e.properties),
			Attributes: CloneValueMap(e.attributes),
		}
		if len(e.valueTypes) > 0 {
			es.ValueTypes = CloneValueMap(e.valueTypes)
		}
		s.Entries = append(s.Entries, es)
	}
	return s
}

// FromSnapshot builds a vault from a snapshot. The snapshot is not retained.
//
// Legacy field type attributes are migrated into the value type table.
// A missing vault ID is generated.
func FromSnapshot(s *Snapshot, opts ...Option) (*Vault, error) {
	if s == nil {
		return nil, ErrInvalidSnapshot
	}
	v := newVault(opts)
	if s.ID != "" {
		v.id = s.ID
	}
	if s.Created != 0 {
		v.created = s.Created
	}
	v.attributes = CloneValueMap(s.Attributes)
	v.deletedEntries = copyRegister(s.Deletions.Entries)
	v.deletedGroups = copyRegister(s.Deletions.Groups)

	for _, gs := range s.Groups {
		if gs == nil || gs.ID == "" {
			return nil, fmt.Errorf("%w: group without id", ErrInvalidSnapshot)
		}
		if _, dup := v.groupIndex[gs.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate group %s", ErrInvalidSnapshot, gs.ID)
		}
		parent := gs.ParentID
		if parent == "" {
			parent = RootID
		}
		v.groups = append(v.groups, &Group{
			id:         gs.ID,
			parentID:   parent,
			title:      gs.Title,
			attributes: CloneValueMap(gs.Attributes),
		})
		v.groupIndex[gs.ID] = len(v.groups) - 1
	}
	for _, es := range s.Entries {
		if es == nil || es.ID == "" {
			return nil, fmt.Errorf("%w: entry without id", ErrInvalidSnapshot)
		}
		if _, dup := v.entryIndex[es.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate entry %s", ErrInvalidSnapshot, es.ID)
		}
		parent := es.ParentID
		if parent == "" {
			parent = RootID
		}
		e := &Entry{
			id:         es.ID,
			parentID:   parent,
			properties: CloneValueMap(es.Properties),
			attributes: CloneValueMap(es.Attributes),
			valueTypes: CloneValueMap(es.ValueTypes),
		}
		e.migrateLegacyFieldTypes()
		v.entries = append(v.entries, e)
		v.entryIndex[es.ID] = len(v.entries) - 1
	}
	return v, nil
}
