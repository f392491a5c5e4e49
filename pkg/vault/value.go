package vault

import "sort"

// HistoryItem is a previous (value, updated) pair of a Value.
type HistoryItem struct {
	Value   string `json:"value"`
	Updated int64  `json:"updated"`
}

// Value is a versioned property or attribute slot.
//
// History is ordered newest first and never contains the live
// (Value, Updated) pair. Timestamps are epoch milliseconds.
type Value struct {
	Value   string        `json:"value"`
	Created int64         `json:"created"`
	Updated int64         `json:"updated"`
	History []HistoryItem `json:"history"`
	Deleted *int64        `json:"deleted,omitempty"`
}

// ChangeType classifies an event returned by Value.Changes.
type ChangeType string

const (
	ChangeCreated  ChangeType = "created"
	ChangeModified ChangeType = "modified"
	ChangeDeleted  ChangeType = "deleted"
)

// Change is a single reconstructed event in the life of a Value.
type Change struct {
	Type      ChangeType `json:"type"`
	Timestamp int64      `json:"ts"`
	Value     string     `json:"value,omitempty"`
}

// NewValue creates a slot holding v with an empty history.
func NewValue(v string, now int64) *Value {
	return &Value{
		Value:   v,
		Created: now,
		Updated: now,
		History: []HistoryItem{},
	}
}

// Set replaces the live value, pushing the previous pair to the front of the history.
// Setting a deleted slot revives it.
func (val *Value) Set(v string, now int64) {
	val.History = append([]HistoryItem{{Value: val.Value, Updated: val.Updated}}, val.History...)
	val.Value = v
	val.Updated = now
	val.Deleted = nil
}

// Delete marks the slot as deleted. Value and history are kept.
func (val *Value) Delete(now int64) {
	ts := now
	val.Deleted = &ts
}

// IsDeleted reports whether the slot carries a deletion timestamp.
func (val *Value) IsDeleted() bool {
	return val.Deleted != nil
}

// Changes returns the chronological event list, oldest first.
func (val *Value) Changes() []Change {
	changes := make([]Change, 0, len(val.History)+2)
	add := func(v string, ts int64) {
		t := ChangeModified
		if len(changes) == 0 && ts == val.Created {
			t = ChangeCreated
		}
		changes = append(changes, Change{Type: t, Timestamp: ts, Value: v})
	}
	for i := len(val.History) - 1; i >= 0; i-- {
		add(val.History[i].Value, val.History[i].Updated)
	}
	add(val.Value, val.Updated)
	if val.Deleted != nil {
		changes = append(changes, Change{Type: ChangeDeleted, Timestamp: *val.Deleted})
	}
	return changes
}

// Clone returns a deep copy.
func (val *Value) Clone() *Value {
	if val == nil {
		return nil
	}
	out := *val
	out.History = append([]HistoryItem{}, val.History...)
	if val.Deleted != nil {
		d := *val.Deleted
		out.Deleted = &d
	}
	return &out
}

// wins reports whether a's live pair beats b's.
// Equal timestamps fall back to the lexicographically greater value.
func wins(a, b *Value) bool {
	if a.Updated != b.Updated {
		return a.Updated > b.Updated
	}
	return a.Value >= b.Value
}

// MergeValues reconciles two copies of the same slot.
//
// The live pair comes from the newer side and the losing live pair joins the
// union of both histories. The result does not depend on argument order.
func MergeValues(a, b *Value) *Value {
	switch {
	case a == nil:
		return b.Clone()
	case b == nil:
		return a.Clone()
	}

	winner, loser := a, b
	if !wins(a, b) {
		winner, loser = b, a
	}

	live := HistoryItem{Value: winner.Value, Updated: winner.Updated}
	seen := map[HistoryItem]struct{}{live: {}}
	history := make([]HistoryItem, 0, len(a.History)+len(b.History)+1)
	push := func(item HistoryItem) {
		if _, ok := seen[item]; ok {
			return
		}
		seen[item] = struct{}{}
		history = append(history, item)
	}
	push(HistoryItem{Value: loser.Value, Updated: loser.Updated})
	for _, item := range a.History {
		push(item)
	}
	for _, item := range b.History {
		push(item)
	}
	sort.SliceStable(history, func(i, j int) bool {
		if history[i].Updated != history[j].Updated {
			return history[i].Updated > history[j].Updated
		}
		return history[i].Value > history[j].Value
	})

	out := &Value{
		Value:   winner.Value,
		Created: min(a.Created, b.Created),
		Updated: winner.Updated,
		History: history,
	}

	var deleted *int64
	for _, d := range []*int64{a.Deleted, b.Deleted} {
		if d != nil && (deleted == nil || *d > *deleted) {
			deleted = d
		}
	}
	if deleted != nil && *deleted >= out.Updated {
		d := *deleted
		out.Deleted = &d
	}
	return out
}

// MergeValueMaps merges two key->Value maps key by key.
func MergeValueMaps(a, b map[string]*Value) map[string]*Value {
	out := make(map[string]*Value, len(a)+len(b))
	for k, v := range a {
		if merged := MergeValues(v, b[k]); merged != nil {
			out[k] = merged
		}
	}
	for k, v := range b {
		if _, ok := a[k]; !ok && v != nil {
			out[k] = v.Clone()
		}
	}
	return out
}

// CloneValueMap deep-copies a key->Value map, dropping nil slots.
func CloneValueMap(m map[string]*Value) map[string]*Value {
	out := make(map[string]*Value, len(m))
	for k, v := range m {
		if v != nil {
			out[k] = v.Clone()
		}
	}
	return out
}

// liveValues flattens live slots to plain strings.
func liveValues(m map[string]*Value) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if v != nil && !v.IsDeleted() {
			out[k] = v.Value
		}
	}
	return out
}
