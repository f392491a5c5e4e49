package vault

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Well-known entry attribute keys.
const (
	AttributeFacadeType = "BC_ENTRY_FACADE_TYPE"
	AttributeTags       = "BC_ENTRY_TAGS"

	// legacyFieldTypePrefix marks per-property type annotations in older vaults.
	legacyFieldTypePrefix = "BC_ENTRY_FIELD_TYPE:"
)

// Well-known entry properties.
const (
	PropertyTitle    = "title"
	PropertyUsername = "username"
	PropertyPassword = "password"
)

// EntryType is the facade type of an entry.
type EntryType string

const (
	EntryTypeLogin      EntryType = "login"
	EntryTypeWebsite    EntryType = "website"
	EntryTypeSSHKey     EntryType = "sshkey"
	EntryTypeNote       EntryType = "note"
	EntryTypeCreditCard EntryType = "credit_card"
)

// ValueType describes how a property value is presented.
type ValueType string

const (
	ValueTypeText     ValueType = "text"
	ValueTypeNote     ValueType = "note"
	ValueTypePassword ValueType = "password"
	ValueTypeOTP      ValueType = "otp"
)

// Valid reports whether t is a known value type.
func (t ValueType) Valid() bool {
	switch t {
	case ValueTypeText, ValueTypeNote, ValueTypePassword, ValueTypeOTP:
		return true
	}
	return false
}

var tagRegex = regexp.MustCompile(`^[a-z0-9_-]+$`)

// NormalizeTag lowercases and NFC-normalises a tag.
func NormalizeTag(tag string) string {
	return norm.NFC.String(strings.ToLower(strings.TrimSpace(tag)))
}

// IsValidTag reports whether tag is already in normal form and well formed.
func IsValidTag(tag string) bool {
	return tagRegex.MatchString(tag)
}

// Entry is a single secret record.
type Entry struct {
	id         string
	parentID   string
	properties map[string]*Value
	attributes map[string]*Value
	valueTypes map[string]*Value
}

// ID returns the entry ID.
func (e *Entry) ID() string { return e.id }

// GroupID returns the ID of the group holding the entry.
func (e *Entry) GroupID() string { return e.parentID }

// Property returns a live property value.
func (e *Entry) Property(key string) (string, bool) {
	val, ok := e.properties[key]
	if !ok || val.IsDeleted() {
		return "", false
	}
	return val.Value, true
}

// Properties returns all live properties.
func (e *Entry) Properties() map[string]string {
	return liveValues(e.properties)
}

// Attribute returns a live attribute value.
func (e *Entry) Attribute(key string) (string, bool) {
	val, ok := e.attributes[key]
	if !ok || val.IsDeleted() {
		return "", false
	}
	return val.Value, true
}

// Attributes returns all live attributes.
func (e *Entry) Attributes() map[string]string {
	return liveValues(e.attributes)
}

// Changes returns the history of a property, including deleted ones.
func (e *Entry) Changes(property string) []Change {
	val, ok := e.properties[property]
	if !ok {
		return nil
	}
	return val.Changes()
}

// Type returns the facade type, defaulting to login.
func (e *Entry) Type() EntryType {
	if t, ok := e.Attribute(AttributeFacadeType); ok && t != "" {
		return EntryType(t)
	}
	return EntryTypeLogin
}

// Tags returns the valid tags of the entry in stored order.
func (e *Entry) Tags() []string {
	raw, ok := e.Attribute(AttributeTags)
	if !ok || raw == "" {
		return []string{}
	}
	tags := []string{}
	for _, tag := range strings.Split(raw, ",") {
		if IsValidTag(tag) {
			tags = append(tags, tag)
		}
	}
	return tags
}

// URLs returns the URL-like property values. Properties named "url" come first.
func (e *Entry) URLs() []string {
	type kv struct{ key, value string }
	var found []kv
	for key, value := range e.Properties() {
		lower := strings.ToLower(key)
		if value == "" || !(strings.Contains(lower, "url") || strings.Contains(lower, "location")) {
			continue
		}
		found = append(found, kv{lower, value})
	}
	sort.Slice(found, func(i, j int) bool {
		if (found[i].key == "url") != (found[j].key == "url") {
			return found[i].key == "url"
		}
		return found[i].key < found[j].key
	})
	urls := make([]string, 0, len(found))
	for _, f := range found {
		urls = append(urls, f.value)
	}
	return urls
}

// PropertyValueType returns the value type of a property, defaulting to text.
func (e *Entry) PropertyValueType(property string) ValueType {
	val, ok := e.valueTypes[property]
	if !ok || val.IsDeleted() {
		return ValueTypeText
	}
	if t := ValueType(val.Value); t.Valid() {
		return t
	}
	return ValueTypeText
}

// PropertyValueTypes returns explicitly set value types.
func (e *Entry) PropertyValueTypes() map[string]ValueType {
	out := make(map[string]ValueType)
	for prop, raw := range liveValues(e.valueTypes) {
		if t := ValueType(raw); t.Valid() {
			out[prop] = t
		}
	}
	return out
}

func (v *Vault) addEntry(groupID string) *Entry {
	e := &Entry{
		id:         v.newID(),
		parentID:   groupID,
		properties: make(map[string]*Value),
		attributes: make(map[string]*Value),
		valueTypes: make(map[string]*Value),
	}
	v.entries = append(v.entries, e)
	v.entryIndex[e.id] = len(v.entries) - 1
	return e
}

// CreateEntry creates an entry in a live group outside the trash.
func (v *Vault) CreateEntry(groupID string) (*Entry, error) {
	if v.FindGroupByID(groupID) == nil {
		return nil, ErrGroupNotFound
	}
	if v.groupInTrash(groupID) {
		return nil, ErrCreateInTrash
	}
	return v.addEntry(groupID), nil
}

// FindEntryByID returns the entry with the given ID, or nil.
func (v *Vault) FindEntryByID(id string) *Entry {
	idx, ok := v.entryIndex[id]
	if !ok {
		return nil
	}
	return v.entries[idx]
}

// Entries returns every entry in insertion order.
func (v *Vault) Entries() []*Entry {
	return append([]*Entry(nil), v.entries...)
}

// EntriesIn returns the entries directly inside groupID.
func (v *Vault) EntriesIn(groupID string) []*Entry {
	var out []*Entry
	for _, e := range v.entries {
		if e.parentID == groupID {
			out = append(out, e)
		}
	}
	return out
}

// FindEntriesByProperty returns entries whose live property key equals value.
func (v *Vault) FindEntriesByProperty(key, value string) []*Entry {
	var out []*Entry
	for _, e := range v.entries {
		if got, ok := e.Property(key); ok && got == value {
			out = append(out, e)
		}
	}
	return out
}

// MoveEntry moves an entry into another group.
func (v *Vault) MoveEntry(id, targetGroupID string) error {
	e := v.FindEntryByID(id)
	if e == nil {
		return ErrEntryNotFound
	}
	if v.FindGroupByID(targetGroupID) == nil {
		return ErrGroupNotFound
	}
	e.parentID = targetGroupID
	return nil
}

// DeleteEntry deletes an entry, moving it to the trash first when possible.
// See DeleteGroup for the rules.
func (v *Vault) DeleteEntry(id string, skipTrash bool) (removed bool, err error) {
	e := v.FindEntryByID(id)
	if e == nil {
		return false, ErrEntryNotFound
	}
	trash := v.TrashGroup()
	if !skipTrash && trash != nil && !v.groupInTrash(e.parentID) {
		e.parentID = trash.id
		return false, nil
	}

	idx := v.entryIndex[id]
	v.entries = append(v.entries[:idx], v.entries[idx+1:]...)
	v.deletedEntries[id] = v.now()
	v.reindex()
	return true, nil
}

func (v *Vault) entry(id string) (*Entry, error) {
	e := v.FindEntryByID(id)
	if e == nil {
		return nil, ErrEntryNotFound
	}
	return e, nil
}

// SetEntryProperty sets a property on an entry.
func (v *Vault) SetEntryProperty(id, key, value string) error {
	e, err := v.entry(id)
	if err != nil {
		return err
	}
	return setSlot(e.properties, key, value, v.now())
}

// DeleteEntryProperty marks a property as deleted.
func (v *Vault) DeleteEntryProperty(id, key string) error {
	e, err := v.entry(id)
	if err != nil {
		return err
	}
	deleteSlot(e.properties, key, v.now())
	return nil
}

// SetEntryAttribute sets an attribute on an entry.
func (v *Vault) SetEntryAttribute(id, key, value string) error {
	e, err := v.entry(id)
	if err != nil {
		return err
	}
	return setSlot(e.attributes, key, value, v.now())
}

// DeleteEntryAttribute marks an attribute as deleted.
func (v *Vault) DeleteEntryAttribute(id, key string) error {
	e, err := v.entry(id)
	if err != nil {
		return err
	}
	deleteSlot(e.attributes, key, v.now())
	return nil
}

// SetPropertyValueType records how a property should be presented.
func (v *Vault) SetPropertyValueType(id, property string, t ValueType) error {
	if !t.Valid() {
		return ErrValueTypeInvalid
	}
	e, err := v.entry(id)
	if err != nil {
		return err
	}
	return setSlot(e.valueTypes, property, string(t), v.now())
}

// ClearPropertyValueType resets a property to the default text type.
func (v *Vault) ClearPropertyValueType(id, property string) error {
	e, err := v.entry(id)
	if err != nil {
		return err
	}
	deleteSlot(e.valueTypes, property, v.now())
	return nil
}

// AddEntryTags adds tags to an entry. Every tag is validated before any is stored.
func (v *Vault) AddEntryTags(id string, tags ...string) error {
	e, err := v.entry(id)
	if err != nil {
		return err
	}
	current := e.Tags()
	seen := make(map[string]struct{}, len(current))
	for _, t := range current {
		seen[t] = struct{}{}
	}
	for _, raw := range tags {
		tag := NormalizeTag(raw)
		if !IsValidTag(tag) {
			return ErrTagInvalid
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		current = append(current, tag)
	}
	return setSlot(e.attributes, AttributeTags, strings.Join(current, ","), v.now())
}

// RemoveEntryTags removes tags from an entry. Unknown tags are ignored.
func (v *Vault) RemoveEntryTags(id string, tags ...string) error {
	e, err := v.entry(id)
	if err != nil {
		return err
	}
	drop := make(map[string]struct{}, len(tags))
	for _, raw := range tags {
		drop[NormalizeTag(raw)] = struct{}{}
	}
	kept := []string{}
	for _, t := range e.Tags() {
		if _, ok := drop[t]; !ok {
			kept = append(kept, t)
		}
	}
	return setSlot(e.attributes, AttributeTags, strings.Join(kept, ","), v.now())
}

// migrateLegacyFieldTypes moves BC_ENTRY_FIELD_TYPE:<prop> attributes into the value type table.
func (e *Entry) migrateLegacyFieldTypes() {
	for key, val := range e.attributes {
		prop, ok := strings.CutPrefix(key, legacyFieldTypePrefix)
		if !ok || prop == "" {
			continue
		}
		e.valueTypes[prop] = MergeValues(e.valueTypes[prop], val)
		delete(e.attributes, key)
	}
}
