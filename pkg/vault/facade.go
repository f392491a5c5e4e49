package vault

// VaultFacade is a read-only projection of a vault holding live values only.
type VaultFacade struct {
	ID         string            `json:"id"`
	Attributes map[string]string `json:"attributes"`
	Groups     []GroupFacade     `json:"groups"`
	Entries    []EntryFacade     `json:"entries"`
}

// GroupFacade is the projection of a group.
type GroupFacade struct {
	ID         string            `json:"id"`
	ParentID   string            `json:"parentID"`
	Title      string            `json:"title"`
	Attributes map[string]string `json:"attributes"`
}

// EntryFacade is the projection of an entry.
type EntryFacade struct {
	ID         string               `json:"id"`
	ParentID   string               `json:"parentID"`
	Type       EntryType            `json:"type"`
	Properties map[string]string    `json:"properties"`
	Attributes map[string]string    `json:"attributes"`
	ValueTypes map[string]ValueType `json:"valueTypes"`
}

// Facade projects v into its read model.
func Facade(v *Vault) VaultFacade {
	f := VaultFacade{
		ID:         v.id,
		Attributes: v.Attributes(),
		Groups:     make([]GroupFacade, 0, len(v.groups)),
		Entries:    make([]EntryFacade, 0, len(v.entries)),
	}
	for _, g := range v.groups {
		f.Groups = append(f.Groups, GroupFacade{
			ID:         g.id,
			ParentID:   g.parentID,
			Title:      g.title,
			Attributes: g.Attributes(),
		})
	}
	for _, e := range v.entries {
		f.Entries = append(f.Entries, EntryFacade{
			ID:         e.id,
			ParentID:   e.parentID,
			Type:       e.Type(),
			Properties: e.Properties(),
			Attributes: e.Attributes(),
			ValueTypes: e.PropertyValueTypes(),
		})
	}
	return f
}
