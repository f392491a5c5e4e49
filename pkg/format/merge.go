package format

import "github.com/forest6511/vaultsync/pkg/vault"

// MergeSnapshots merges incoming into base and returns a new snapshot.
// Neither input is modified.
//
// Tombstones from both sides are combined, keeping the earlier timestamp.
// Groups and entries known to one side survive unless tombstoned. For items
// on both sides the incoming parent and title win while properties and
// attributes are merged slot by slot. The result keeps base's ID and
// creation time.
func MergeSnapshots(base, incoming *vault.Snapshot) (*vault.Snapshot, error) {
	if base == nil || incoming == nil {
		return nil, vault.ErrInvalidSnapshot
	}
	if base.ID != incoming.ID {
		return nil, ErrNoSharedLineage
	}

	out := &vault.Snapshot{
		ID:         base.ID,
		Attributes: vault.MergeValueMaps(base.Attributes, incoming.Attributes),
		Groups:     []*vault.GroupSnapshot{},
		Entries:    []*vault.EntrySnapshot{},
		Created:    base.Created,
		Deletions: vault.Deletions{
			Entries: mergeTombstones(base.Deletions.Entries, incoming.Deletions.Entries),
			Groups:  mergeTombstones(base.Deletions.Groups, incoming.Deletions.Groups),
		},
	}

	incomingGroups := make(map[string]*vault.GroupSnapshot, len(incoming.Groups))
	for _, g := range incoming.Groups {
		incomingGroups[g.ID] = g
	}
	baseGroups := make(map[string]struct{}, len(base.Groups))
	for _, g := range base.Groups {
		baseGroups[g.ID] = struct{}{}
	}

	// one-sided groups first, base then incoming
	for _, g := range base.Groups {
		if _, both := incomingGroups[g.ID]; both {
			continue
		}
		if _, dead := out.Deletions.Groups[g.ID]; !dead {
			out.Groups = append(out.Groups, g.Clone())
		}
	}
	for _, g := range incoming.Groups {
		if _, both := baseGroups[g.ID]; both {
			continue
		}
		if _, dead := out.Deletions.Groups[g.ID]; !dead {
			out.Groups = append(out.Groups, g.Clone())
		}
	}
	for _, g := range base.Groups {
		in, both := incomingGroups[g.ID]
		if !both {
			continue
		}
		merged := in.Clone()
		merged.Attributes = vault.MergeValueMaps(g.Attributes, in.Attributes)
		out.Groups = append(out.Groups, merged)
	}

	incomingEntries := make(map[string]*vault.EntrySnapshot, len(incoming.Entries))
	for _, e := range incoming.Entries {
		incomingEntries[e.ID] = e
	}
	baseEntries := make(map[string]struct{}, len(base.Entries))
	for _, e := range base.Entries {
		baseEntries[e.ID] = struct{}{}
	}

	for _, e := range base.Entries {
		if _, both := incomingEntries[e.ID]; both {
			continue
		}
		if _, dead := out.Deletions.Entries[e.ID]; !dead {
			out.Entries = append(out.Entries, e.Clone())
		}
	}
	for _, e := range incoming.Entries {
		if _, both := baseEntries[e.ID]; both {
			continue
		}
		if _, dead := out.Deletions.Entries[e.ID]; !dead {
			out.Entries = append(out.Entries, e.Clone())
		}
	}
	for _, e := range base.Entries {
		in, both := incomingEntries[e.ID]
		if !both {
			continue
		}
		out.Entries = append(out.Entries, &vault.EntrySnapshot{
			ID:         e.ID,
			ParentID:   in.ParentID,
			Properties: vault.MergeValueMaps(e.Properties, in.Properties),
			Attributes: vault.MergeValueMaps(e.Attributes, in.Attributes),
			ValueTypes: vault.MergeValueMaps(e.ValueTypes, in.ValueTypes),
		})
	}
	return out, nil
}

func mergeTombstones(a, b map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(a)+len(b))
	for id, ts := range a {
		out[id] = ts
	}
	for id, ts := range b {
		if existing, ok := out[id]; !ok || ts < existing {
			out[id] = ts
		}
	}
	return out
}

// Merge merges two decoded vaults and hydrates the result.
func Merge(base, incoming *vault.Vault, opts ...vault.Option) (*vault.Vault, error) {
	merged, err := MergeSnapshots(base.Snapshot(), incoming.Snapshot())
	if err != nil {
		return nil, err
	}
	return vault.FromSnapshot(merged, opts...)
}
