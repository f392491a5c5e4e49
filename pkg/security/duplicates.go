package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/forest6511/vaultsync/pkg/vault"
)

// DuplicateGroup is a set of secret properties sharing one value.
type DuplicateGroup struct {
	EntryIDs   []string `json:"entry_ids,omitempty"`
	Properties []string `json:"properties,omitempty"`
	Count      int      `json:"count"`
}

// secretField is one secret property of a live entry.
type secretField struct {
	entryID  string
	property string
	value    string
	kind     SecretKind
	updated  int64
}

// collectSecrets returns the secret properties of every entry outside the trash,
// ordered by entry then property name.
func collectSecrets(v *vault.Vault) []secretField {
	var out []secretField
	for _, e := range v.Entries() {
		if v.IsInTrash(e.ID()) {
			continue
		}
		props := e.Properties()
		keys := make([]string, 0, len(props))
		for k := range props {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, key := range keys {
			kind := ClassifyProperty(key, e.PropertyValueType(key))
			if kind == KindNone || normalizeValue(props[key]) == "" {
				continue
			}
			field := secretField{entryID: e.ID(), property: key, value: props[key], kind: kind}
			if changes := e.Changes(key); len(changes) > 0 {
				field.updated = changes[len(changes)-1].Timestamp
			}
			out = append(out, field)
		}
	}
	return out
}

// FindDuplicates groups secret properties by value, most reused first.
//
// Values are compared through HMAC-SHA256 under a key that lives only as
// long as the Calculator, so no stable hash of a password is ever produced.
func (c *Calculator) FindDuplicates() []DuplicateGroup {
	byHash := make(map[string][]secretField)
	var order []string
	for _, f := range collectSecrets(c.vault) {
		h := c.hash(f.value)
		if _, ok := byHash[h]; !ok {
			order = append(order, h)
		}
		byHash[h] = append(byHash[h], f)
	}

	var groups []DuplicateGroup
	for _, h := range order {
		fields := byHash[h]
		if len(fields) < 2 {
			continue
		}
		g := DuplicateGroup{Count: len(fields)}
		if c.includeIDs {
			for _, f := range fields {
				g.EntryIDs = append(g.EntryIDs, f.entryID)
				g.Properties = append(g.Properties, f.property)
			}
		}
		groups = append(groups, g)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Count > groups[j].Count
	})
	return groups
}

func (c *Calculator) hash(value string) string {
	h := hmac.New(sha256.New, c.hmacKey)
	h.Write([]byte(normalizeValue(value)))
	return hex.EncodeToString(h.Sum(nil))
}

// normalizeValue trims surrounding space and applies NFC.
func normalizeValue(value string) string {
	return norm.NFC.String(strings.TrimSpace(value))
}
