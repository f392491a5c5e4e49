// Package cli provides shared helpers for the vaultsync commands.
package cli

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/forest6511/vaultsync/pkg/vault"
)

// ExpandPattern expands a glob pattern against names.
// Without glob characters (*?[) the pattern must match a name exactly.
// Matching ignores case.
func ExpandPattern(pattern string, names []string) ([]string, error) {
	lowered := strings.ToLower(pattern)
	if _, err := filepath.Match(lowered, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern '%s': %w", pattern, err)
	}

	if !strings.ContainsAny(pattern, "*?[") {
		for _, name := range names {
			if strings.EqualFold(name, pattern) {
				return []string{name}, nil
			}
		}
		return nil, fmt.Errorf("'%s' not found", pattern)
	}

	var matches []string
	for _, name := range names {
		if ok, _ := filepath.Match(lowered, strings.ToLower(name)); ok {
			matches = append(matches, name)
		}
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("nothing matches pattern '%s'", pattern)
	}
	return matches, nil
}

// SelectEntries resolves arguments to entries. An argument is either an entry
// ID or a title pattern. Entries in the trash are skipped unless includeTrash
// is set. The result keeps the order of first match without duplicates.
func SelectEntries(v *vault.Vault, args []string, includeTrash bool) ([]*vault.Entry, error) {
	var candidates []*vault.Entry
	byTitle := make(map[string][]*vault.Entry)
	var titles []string
	for _, e := range v.Entries() {
		if !includeTrash && v.IsInTrash(e.ID()) {
			continue
		}
		candidates = append(candidates, e)
		title, _ := e.Property(vault.PropertyTitle)
		if _, seen := byTitle[title]; !seen {
			titles = append(titles, title)
		}
		byTitle[title] = append(byTitle[title], e)
	}

	seen := make(map[string]bool)
	var out []*vault.Entry
	add := func(e *vault.Entry) {
		if !seen[e.ID()] {
			seen[e.ID()] = true
			out = append(out, e)
		}
	}
	for _, arg := range args {
		if e := v.FindEntryByID(arg); e != nil && (includeTrash || !v.IsInTrash(e.ID())) {
			add(e)
			continue
		}
		matched, err := ExpandPattern(arg, titles)
		if err != nil {
			return nil, err
		}
		for _, title := range matched {
			for _, e := range byTitle[title] {
				add(e)
			}
		}
	}
	return out, nil
}

// MapKeys returns the keys of m sorted.
func MapKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
