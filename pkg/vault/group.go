package vault

// Group is a folder node in the vault tree.
type Group struct {
	id         string
	parentID   string
	title      string
	attributes map[string]*Value
}

// ID returns the group ID.
func (g *Group) ID() string { return g.id }

// ParentID returns the parent group ID, or RootID for top-level groups.
func (g *Group) ParentID() string { return g.parentID }

// Title returns the group title.
func (g *Group) Title() string { return g.title }

// Attribute returns a live group attribute.
func (g *Group) Attribute(key string) (string, bool) {
	val, ok := g.attributes[key]
	if !ok || val.IsDeleted() {
		return "", false
	}
	return val.Value, true
}

// Attributes returns all live group attributes.
func (g *Group) Attributes() map[string]string {
	return liveValues(g.attributes)
}

// IsTrash reports whether g is the trash group.
func (g *Group) IsTrash() bool {
	return g.parentID == RootID && g.title == TrashGroupTitle
}

func (v *Vault) addGroup(parentID string) *Group {
	g := &Group{
		id:         v.newID(),
		parentID:   parentID,
		title:      DefaultGroupTitle,
		attributes: make(map[string]*Value),
	}
	v.groups = append(v.groups, g)
	v.groupIndex[g.id] = len(v.groups) - 1
	return g
}

// CreateGroup creates a group under parentID, which is RootID or a live group.
func (v *Vault) CreateGroup(parentID string) (*Group, error) {
	if parentID != RootID {
		if _, ok := v.groupIndex[parentID]; !ok {
			return nil, ErrGroupNotFound
		}
	}
	return v.addGroup(parentID), nil
}

// FindGroupByID returns the group with the given ID, or nil.
func (v *Vault) FindGroupByID(id string) *Group {
	idx, ok := v.groupIndex[id]
	if !ok {
		return nil
	}
	return v.groups[idx]
}

// Groups returns every group in insertion order.
func (v *Vault) Groups() []*Group {
	return append([]*Group(nil), v.groups...)
}

// GroupsIn returns the direct child groups of parentID.
func (v *Vault) GroupsIn(parentID string) []*Group {
	var out []*Group
	for _, g := range v.groups {
		if g.parentID == parentID {
			out = append(out, g)
		}
	}
	return out
}

// TrashGroup returns the trash group, or nil when the vault has none.
func (v *Vault) TrashGroup() *Group {
	return v.findRootGroupByTitle(TrashGroupTitle)
}

func (v *Vault) findRootGroupByTitle(title string) *Group {
	for _, g := range v.groups {
		if g.parentID == RootID && g.title == title {
			return g
		}
	}
	return nil
}

// FindContainingGroup returns the parent group of an entry or group.
// It returns nil for top-level groups and unknown IDs.
func (v *Vault) FindContainingGroup(id string) *Group {
	if e := v.FindEntryByID(id); e != nil {
		return v.FindGroupByID(e.parentID)
	}
	if g := v.FindGroupByID(id); g != nil {
		return v.FindGroupByID(g.parentID)
	}
	return nil
}

// IsInTrash reports whether the entry or group with id sits below the trash group.
// The trash group itself is not in the trash.
func (v *Vault) IsInTrash(id string) bool {
	parent := ""
	if e := v.FindEntryByID(id); e != nil {
		parent = e.parentID
	} else if g := v.FindGroupByID(id); g != nil {
		parent = g.parentID
	} else {
		return false
	}
	return v.groupInTrash(parent)
}

// groupInTrash reports whether groupID is the trash group or one of its descendants.
func (v *Vault) groupInTrash(groupID string) bool {
	seen := make(map[string]struct{})
	for groupID != RootID {
		g := v.FindGroupByID(groupID)
		if g == nil {
			return false
		}
		if g.IsTrash() {
			return true
		}
		if _, loop := seen[groupID]; loop {
			return false
		}
		seen[groupID] = struct{}{}
		groupID = g.parentID
	}
	return false
}

// MoveGroup reparents a group. Moving a group into its own subtree fails with ErrGroupCycle.
func (v *Vault) MoveGroup(id, targetParentID string) error {
	g := v.FindGroupByID(id)
	if g == nil {
		return ErrGroupNotFound
	}
	if targetParentID != RootID && v.FindGroupByID(targetParentID) == nil {
		return ErrGroupNotFound
	}
	if v.isAncestorOrSelf(id, targetParentID) {
		return ErrGroupCycle
	}
	g.parentID = targetParentID
	return nil
}

// isAncestorOrSelf reports whether ancestorID is groupID or one of its ancestors.
func (v *Vault) isAncestorOrSelf(ancestorID, groupID string) bool {
	seen := make(map[string]struct{})
	for groupID != RootID {
		if groupID == ancestorID {
			return true
		}
		if _, loop := seen[groupID]; loop {
			return true
		}
		seen[groupID] = struct{}{}
		g := v.FindGroupByID(groupID)
		if g == nil {
			return false
		}
		groupID = g.parentID
	}
	return false
}

// DeleteGroup deletes a group.
//
// When a trash group exists, the group is not already trashed and skipTrash
// is false, the group is moved into the trash and removed is false.
// Otherwise the group and its subtree are removed and tombstoned.
func (v *Vault) DeleteGroup(id string, skipTrash bool) (removed bool, err error) {
	g := v.FindGroupByID(id)
	if g == nil {
		return false, ErrGroupNotFound
	}
	trash := v.TrashGroup()
	if !skipTrash && trash != nil && trash.id != id && !v.groupInTrash(g.parentID) {
		g.parentID = trash.id
		return false, nil
	}
	v.removeSubtree(id)
	return true, nil
}

// removeSubtree drops a group with all nested groups and entries and records tombstones.
func (v *Vault) removeSubtree(rootID string) {
	now := v.now()
	doomed := map[string]struct{}{rootID: {}}
	for changed := true; changed; {
		changed = false
		for _, g := range v.groups {
			if _, ok := doomed[g.id]; ok {
				continue
			}
			if _, ok := doomed[g.parentID]; ok {
				doomed[g.id] = struct{}{}
				changed = true
			}
		}
	}

	groups := v.groups[:0]
	for _, g := range v.groups {
		if _, ok := doomed[g.id]; ok {
			v.deletedGroups[g.id] = now
			continue
		}
		groups = append(groups, g)
	}
	v.groups = groups

	entries := v.entries[:0]
	for _, e := range v.entries {
		if _, ok := doomed[e.parentID]; ok {
			v.deletedEntries[e.id] = now
			continue
		}
		entries = append(entries, e)
	}
	v.entries = entries
	v.reindex()
}

// SetGroupTitle renames a group.
func (v *Vault) SetGroupTitle(id, title string) error {
	g := v.FindGroupByID(id)
	if g == nil {
		return ErrGroupNotFound
	}
	g.title = title
	return nil
}

// SetGroupAttribute sets an attribute on a group.
func (v *Vault) SetGroupAttribute(id, key, value string) error {
	g := v.FindGroupByID(id)
	if g == nil {
		return ErrGroupNotFound
	}
	return setSlot(g.attributes, key, value, v.now())
}

// DeleteGroupAttribute marks a group attribute as deleted.
func (v *Vault) DeleteGroupAttribute(id, key string) error {
	g := v.FindGroupByID(id)
	if g == nil {
		return ErrGroupNotFound
	}
	deleteSlot(g.attributes, key, v.now())
	return nil
}
