package importer

import (
	"fmt"
	"sort"

	"github.com/forest6511/vaultsync/pkg/vault"
)

// Summary counts what Apply wrote into a vault.
type Summary struct {
	Entries  int
	Groups   int
	Warnings []string
}

// Apply writes the parsed entries into v below parentID. Folder paths are
// created on demand and reuse existing groups with the same title.
// Tags that cannot be sanitised into vault tags are dropped with a warning.
func Apply(v *vault.Vault, parentID string, result *Result) (*Summary, error) {
	if v.FindGroupByID(parentID) == nil && parentID != vault.RootID {
		return nil, vault.ErrGroupNotFound
	}
	summary := &Summary{Warnings: []string{}}
	groups := make(map[string]string)

	for _, imported := range result.Entries {
		groupID, err := ensurePath(v, parentID, imported.Group, groups, summary)
		if err != nil {
			return summary, err
		}
		e, err := v.CreateEntry(groupID)
		if err != nil {
			return summary, fmt.Errorf("failed to create %q: %w", imported.Title, err)
		}
		if err := writeEntry(v, e.ID(), imported, summary); err != nil {
			return summary, fmt.Errorf("failed to import %q: %w", imported.Title, err)
		}
		summary.Entries++
	}
	return summary, nil
}

func ensurePath(v *vault.Vault, parentID string, path []string, cache map[string]string, summary *Summary) (string, error) {
	current := parentID
	for _, title := range path {
		key := current + "\x00" + title
		if id, ok := cache[key]; ok {
			current = id
			continue
		}
		var found string
		for _, g := range v.GroupsIn(current) {
			if g.Title() == title && !g.IsTrash() {
				found = g.ID()
				break
			}
		}
		if found == "" {
			g, err := v.CreateGroup(current)
			if err != nil {
				return "", err
			}
			if err := v.SetGroupTitle(g.ID(), title); err != nil {
				return "", err
			}
			found = g.ID()
			summary.Groups++
		}
		cache[key] = found
		current = found
	}
	return current, nil
}

func writeEntry(v *vault.Vault, id string, imported *ImportedEntry, summary *Summary) error {
	if err := v.SetEntryProperty(id, vault.PropertyTitle, imported.Title); err != nil {
		return err
	}
	if imported.Type != "" && imported.Type != vault.EntryTypeLogin {
		if err := v.SetEntryAttribute(id, vault.AttributeFacadeType, string(imported.Type)); err != nil {
			return err
		}
	}

	keys := make([]string, 0, len(imported.Properties))
	for key := range imported.Properties {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		p := imported.Properties[key]
		if err := v.SetEntryProperty(id, key, p.Value); err != nil {
			return err
		}
		if p.Type != "" && p.Type != vault.ValueTypeText {
			if err := v.SetPropertyValueType(id, key, p.Type); err != nil {
				return err
			}
		}
	}

	var tags []string
	for _, raw := range imported.Tags {
		tag := SanitizeTag(raw)
		if tag == "" {
			summary.Warnings = append(summary.Warnings, fmt.Sprintf("%s: dropped tag %q", imported.Title, raw))
			continue
		}
		tags = append(tags, tag)
	}
	if len(tags) == 0 {
		return nil
	}
	return v.AddEntryTags(id, tags...)
}
