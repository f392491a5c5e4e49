package vault

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClock is a manually advanced time source.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func sequentialIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func newTestVault(t *testing.T) (*Vault, *testClock) {
	t.Helper()
	clock := &testClock{now: time.UnixMilli(1_700_000_000_000)}
	return NewWithDefaults(WithClock(clock.Now), WithIDGenerator(sequentialIDs("id"))), clock
}

func TestNewWithDefaults(t *testing.T) {
	v, _ := newTestVault(t)

	groups := v.GroupsIn(RootID)
	require.Len(t, groups, 2)
	assert.Equal(t, "General", groups[0].Title())
	require.NotNil(t, v.TrashGroup())
	assert.True(t, v.TrashGroup().IsTrash())
	assert.NotEmpty(t, v.ID())
}

func TestCreateGroupAndEntry(t *testing.T) {
	v, _ := newTestVault(t)

	g, err := v.CreateGroup(RootID)
	require.NoError(t, err)
	assert.Equal(t, DefaultGroupTitle, g.Title())

	child, err := v.CreateGroup(g.ID())
	require.NoError(t, err)
	assert.Equal(t, g.ID(), child.ParentID())

	_, err = v.CreateGroup("missing")
	assert.ErrorIs(t, err, ErrGroupNotFound)

	e, err := v.CreateEntry(child.ID())
	require.NoError(t, err)
	assert.Same(t, e, v.FindEntryByID(e.ID()))
	assert.Equal(t, child.ID(), v.FindContainingGroup(e.ID()).ID())
	assert.Equal(t, g.ID(), v.FindContainingGroup(child.ID()).ID())

	_, err = v.CreateEntry("missing")
	assert.ErrorIs(t, err, ErrGroupNotFound)
}

func TestCreateEntryInTrashRejected(t *testing.T) {
	v, _ := newTestVault(t)
	trash := v.TrashGroup()

	_, err := v.CreateEntry(trash.ID())
	assert.ErrorIs(t, err, ErrCreateInTrash)

	inner, err := v.CreateGroup(trash.ID())
	require.NoError(t, err)
	_, err = v.CreateEntry(inner.ID())
	assert.ErrorIs(t, err, ErrCreateInTrash)
}

func TestMoveGroupCycle(t *testing.T) {
	v, _ := newTestVault(t)
	a, _ := v.CreateGroup(RootID)
	b, _ := v.CreateGroup(a.ID())
	c, _ := v.CreateGroup(b.ID())

	assert.ErrorIs(t, v.MoveGroup(a.ID(), a.ID()), ErrGroupCycle)
	assert.ErrorIs(t, v.MoveGroup(a.ID(), c.ID()), ErrGroupCycle)
	assert.ErrorIs(t, v.MoveGroup(a.ID(), "missing"), ErrGroupNotFound)
	assert.ErrorIs(t, v.MoveGroup("missing", RootID), ErrGroupNotFound)

	require.NoError(t, v.MoveGroup(c.ID(), RootID))
	assert.Equal(t, RootID, c.ParentID())
}

func TestMoveEntry(t *testing.T) {
	v, _ := newTestVault(t)
	general := v.GroupsIn(RootID)[0]
	other, _ := v.CreateGroup(RootID)
	e, _ := v.CreateEntry(general.ID())

	require.NoError(t, v.MoveEntry(e.ID(), other.ID()))
	assert.Equal(t, other.ID(), e.GroupID())
	assert.ErrorIs(t, v.MoveEntry(e.ID(), "missing"), ErrGroupNotFound)
	assert.ErrorIs(t, v.MoveEntry("missing", other.ID()), ErrEntryNotFound)
}

func TestDeleteEntryTrashFirst(t *testing.T) {
	v, _ := newTestVault(t)
	general := v.GroupsIn(RootID)[0]
	e, _ := v.CreateEntry(general.ID())

	removed, err := v.DeleteEntry(e.ID(), false)
	require.NoError(t, err)
	assert.False(t, removed)
	assert.NotNil(t, v.FindEntryByID(e.ID()))
	assert.True(t, v.IsInTrash(e.ID()))
	assert.Empty(t, v.DeletedEntries())

	removed, err = v.DeleteEntry(e.ID(), false)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Nil(t, v.FindEntryByID(e.ID()))
	assert.Contains(t, v.DeletedEntries(), e.ID())
}

func TestDeleteEntrySkipTrash(t *testing.T) {
	v, _ := newTestVault(t)
	general := v.GroupsIn(RootID)[0]
	e1, _ := v.CreateEntry(general.ID())
	e2, _ := v.CreateEntry(general.ID())

	removed, err := v.DeleteEntry(e1.ID(), true)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Same(t, e2, v.FindEntryByID(e2.ID()), "index rebuilt after removal")
}

func TestDeleteEntryWithoutTrash(t *testing.T) {
	v := New()
	g, _ := v.CreateGroup(RootID)
	e, _ := v.CreateEntry(g.ID())

	removed, err := v.DeleteEntry(e.ID(), false)
	require.NoError(t, err)
	assert.True(t, removed)
}

func TestDeleteGroupRemovesSubtree(t *testing.T) {
	v, _ := newTestVault(t)
	parent, _ := v.CreateGroup(RootID)
	child, _ := v.CreateGroup(parent.ID())
	e, _ := v.CreateEntry(child.ID())

	removed, err := v.DeleteGroup(parent.ID(), false)
	require.NoError(t, err)
	assert.False(t, removed)
	assert.True(t, v.IsInTrash(e.ID()))

	removed, err = v.DeleteGroup(parent.ID(), false)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Nil(t, v.FindGroupByID(parent.ID()))
	assert.Nil(t, v.FindGroupByID(child.ID()))
	assert.Nil(t, v.FindEntryByID(e.ID()))

	deleted := v.DeletedGroups()
	assert.Contains(t, deleted, parent.ID())
	assert.Contains(t, deleted, child.ID())
	assert.Contains(t, v.DeletedEntries(), e.ID())
}

func TestEntryPropertiesAndChanges(t *testing.T) {
	v, clock := newTestVault(t)
	e, _ := v.CreateEntry(v.GroupsIn(RootID)[0].ID())

	require.NoError(t, v.SetEntryProperty(e.ID(), PropertyTitle, "Mail"))
	clock.Advance(time.Second)
	require.NoError(t, v.SetEntryProperty(e.ID(), PropertyTitle, "Email"))
	require.NoError(t, v.SetEntryProperty(e.ID(), PropertyPassword, "s3cret"))
	clock.Advance(time.Second)
	require.NoError(t, v.DeleteEntryProperty(e.ID(), PropertyPassword))

	title, ok := e.Property(PropertyTitle)
	require.True(t, ok)
	assert.Equal(t, "Email", title)
	_, ok = e.Property(PropertyPassword)
	assert.False(t, ok)
	assert.Equal(t, map[string]string{PropertyTitle: "Email"}, e.Properties())

	changes := e.Changes(PropertyTitle)
	require.Len(t, changes, 2)
	assert.Equal(t, ChangeCreated, changes[0].Type)
	assert.Equal(t, "Mail", changes[0].Value)
	assert.Equal(t, ChangeModified, changes[1].Type)

	pwChanges := e.Changes(PropertyPassword)
	require.Len(t, pwChanges, 2)
	assert.Equal(t, ChangeDeleted, pwChanges[1].Type)

	assert.ErrorIs(t, v.SetEntryProperty(e.ID(), "", "x"), ErrKeyEmpty)
	assert.ErrorIs(t, v.SetEntryProperty("missing", "k", "x"), ErrEntryNotFound)
}

func TestEntryTypeAndURLs(t *testing.T) {
	v, _ := newTestVault(t)
	e, _ := v.CreateEntry(v.GroupsIn(RootID)[0].ID())
	assert.Equal(t, EntryTypeLogin, e.Type())

	require.NoError(t, v.SetEntryAttribute(e.ID(), AttributeFacadeType, string(EntryTypeWebsite)))
	assert.Equal(t, EntryTypeWebsite, e.Type())

	require.NoError(t, v.SetEntryProperty(e.ID(), "Login URL", "https://a.example.com/login"))
	require.NoError(t, v.SetEntryProperty(e.ID(), "url", "https://example.com"))
	require.NoError(t, v.SetEntryProperty(e.ID(), "notes", "https://not-a-url-field"))
	assert.Equal(t, []string{"https://example.com", "https://a.example.com/login"}, e.URLs())
}

func TestEntryTags(t *testing.T) {
	v, _ := newTestVault(t)
	e, _ := v.CreateEntry(v.GroupsIn(RootID)[0].ID())

	require.NoError(t, v.AddEntryTags(e.ID(), "Work", "finance", "work"))
	assert.Equal(t, []string{"work", "finance"}, e.Tags())

	assert.ErrorIs(t, v.AddEntryTags(e.ID(), "has space"), ErrTagInvalid)
	assert.Equal(t, []string{"work", "finance"}, e.Tags(), "invalid tag leaves tags untouched")

	require.NoError(t, v.RemoveEntryTags(e.ID(), "WORK", "unknown"))
	assert.Equal(t, []string{"finance"}, e.Tags())

	require.NoError(t, v.SetEntryAttribute(e.ID(), AttributeTags, "ok,Bad Tag,also-ok"))
	assert.Equal(t, []string{"ok", "also-ok"}, e.Tags())
}

func TestPropertyValueTypes(t *testing.T) {
	v, _ := newTestVault(t)
	e, _ := v.CreateEntry(v.GroupsIn(RootID)[0].ID())

	assert.Equal(t, ValueTypeText, e.PropertyValueType("otp"))
	require.NoError(t, v.SetPropertyValueType(e.ID(), "otp", ValueTypeOTP))
	assert.Equal(t, ValueTypeOTP, e.PropertyValueType("otp"))
	assert.Equal(t, map[string]ValueType{"otp": ValueTypeOTP}, e.PropertyValueTypes())

	assert.ErrorIs(t, v.SetPropertyValueType(e.ID(), "otp", ValueType("bogus")), ErrValueTypeInvalid)

	require.NoError(t, v.ClearPropertyValueType(e.ID(), "otp"))
	assert.Equal(t, ValueTypeText, e.PropertyValueType("otp"))
}

func TestVaultAndGroupAttributes(t *testing.T) {
	v, _ := newTestVault(t)
	g := v.GroupsIn(RootID)[0]

	require.NoError(t, v.SetAttribute("color", "blue"))
	got, ok := v.Attribute("color")
	require.True(t, ok)
	assert.Equal(t, "blue", got)
	v.DeleteAttribute("color")
	assert.Empty(t, v.Attributes())

	require.NoError(t, v.SetGroupAttribute(g.ID(), "icon", "star"))
	assert.Equal(t, map[string]string{"icon": "star"}, g.Attributes())
	require.NoError(t, v.DeleteGroupAttribute(g.ID(), "icon"))
	_, ok = g.Attribute("icon")
	assert.False(t, ok)

	require.NoError(t, v.SetGroupTitle(g.ID(), "Personal"))
	assert.Equal(t, "Personal", g.Title())
	assert.ErrorIs(t, v.SetGroupTitle("missing", "x"), ErrGroupNotFound)
}

func TestFindEntriesByProperty(t *testing.T) {
	v, _ := newTestVault(t)
	gid := v.GroupsIn(RootID)[0].ID()
	a, _ := v.CreateEntry(gid)
	b, _ := v.CreateEntry(gid)
	require.NoError(t, v.SetEntryProperty(a.ID(), PropertyUsername, "alice"))
	require.NoError(t, v.SetEntryProperty(b.ID(), PropertyUsername, "bob"))

	found := v.FindEntriesByProperty(PropertyUsername, "bob")
	require.Len(t, found, 1)
	assert.Equal(t, b.ID(), found[0].ID())
}

func TestOptimiseRepairsOrphans(t *testing.T) {
	clock := &testClock{now: time.UnixMilli(1_700_000_000_000)}
	snap := &Snapshot{
		ID: "vault-1",
		Groups: []*GroupSnapshot{
			{ID: "g1", ParentID: RootID, Title: "Live"},
			{ID: "g2", ParentID: "gone", Title: "Lost"},
			{ID: "c1", ParentID: "c2", Title: "Cycle A"},
			{ID: "c2", ParentID: "c1", Title: "Cycle B"},
		},
		Entries: []*EntrySnapshot{
			{ID: "e1", ParentID: "g1"},
			{ID: "e2", ParentID: "also-gone"},
			{ID: "e4", ParentID: RootID},
			{ID: "e5", ParentID: ""},
		},
	}
	v, err := FromSnapshot(snap, WithClock(clock.Now), WithIDGenerator(sequentialIDs("new")))
	require.NoError(t, err)

	v.Optimise()

	var orphans []*Group
	for _, g := range v.GroupsIn(RootID) {
		if g.Title() == OrphansGroupTitle {
			orphans = append(orphans, g)
		}
	}
	require.Len(t, orphans, 1)
	orphanID := orphans[0].ID()
	assert.Equal(t, orphanID, v.FindGroupByID("g2").ParentID())
	assert.Equal(t, orphanID, v.FindGroupByID("c1").ParentID())
	assert.Equal(t, "c1", v.FindGroupByID("c2").ParentID())
	assert.Equal(t, orphanID, v.FindEntryByID("e2").GroupID())
	assert.Equal(t, "g1", v.FindEntryByID("e1").GroupID())
	for _, id := range []string{"e4", "e5"} {
		assert.Equal(t, orphanID, v.FindEntryByID(id).GroupID(), id)
		require.NotNil(t, v.FindContainingGroup(id), id)
	}

	require.NoError(t, v.MoveEntry("e1", "g2"))
	require.NoError(t, v.MoveGroup("g2", RootID))
	snap2 := v.Snapshot()
	snap2.Entries = append(snap2.Entries, &EntrySnapshot{ID: "e3", ParentID: "missing"})
	v2, err := FromSnapshot(snap2, WithClock(clock.Now), WithIDGenerator(sequentialIDs("again")))
	require.NoError(t, err)
	v2.Optimise()

	count := 0
	for _, g := range v2.GroupsIn(RootID) {
		if g.Title() == OrphansGroupTitle {
			count++
		}
	}
	assert.Equal(t, 1, count, "existing orphans group is reused")
	assert.Equal(t, orphanID, v2.FindEntryByID("e3").GroupID())
}

func TestOptimiseExpiresTombstones(t *testing.T) {
	v, clock := newTestVault(t)
	gid := v.GroupsIn(RootID)[0].ID()
	old, _ := v.CreateEntry(gid)
	_, err := v.DeleteEntry(old.ID(), true)
	require.NoError(t, err)

	clock.Advance(DefaultTombstoneRetention - time.Hour)
	recent, _ := v.CreateEntry(gid)
	_, err = v.DeleteEntry(recent.ID(), true)
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	v.Optimise()

	deleted := v.DeletedEntries()
	assert.NotContains(t, deleted, old.ID())
	assert.Contains(t, deleted, recent.ID())
}

func TestSnapshotRoundTrip(t *testing.T) {
	v, _ := newTestVault(t)
	e, _ := v.CreateEntry(v.GroupsIn(RootID)[0].ID())
	require.NoError(t, v.SetEntryProperty(e.ID(), PropertyTitle, "Bank"))
	require.NoError(t, v.SetPropertyValueType(e.ID(), "pin", ValueTypePassword))
	require.NoError(t, v.SetAttribute("k", "v"))

	snap := v.Snapshot()
	restored, err := FromSnapshot(snap)
	require.NoError(t, err)
	assert.Equal(t, Facade(v), Facade(restored))
	assert.Equal(t, v.Created(), restored.Created())

	snap.Entries[0].Properties[PropertyTitle].Value = "mutated"
	title, _ := restored.FindEntryByID(e.ID()).Property(PropertyTitle)
	assert.Equal(t, "Bank", title, "snapshot is a deep copy")
}

func TestFromSnapshotInvalid(t *testing.T) {
	_, err := FromSnapshot(nil)
	assert.ErrorIs(t, err, ErrInvalidSnapshot)

	_, err = FromSnapshot(&Snapshot{ID: "x", Groups: []*GroupSnapshot{{ID: "a"}, {ID: "a"}}})
	assert.ErrorIs(t, err, ErrInvalidSnapshot)

	_, err = FromSnapshot(&Snapshot{ID: "x", Entries: []*EntrySnapshot{{ParentID: "g"}}})
	assert.ErrorIs(t, err, ErrInvalidSnapshot)
}

func TestFromSnapshotMigratesLegacyFieldTypes(t *testing.T) {
	snap := &Snapshot{
		ID:     "v",
		Groups: []*GroupSnapshot{{ID: "g", ParentID: RootID, Title: "G"}},
		Entries: []*EntrySnapshot{{
			ID:       "e",
			ParentID: "g",
			Properties: map[string]*Value{
				"code": NewValue("123456", 1),
			},
			Attributes: map[string]*Value{
				legacyFieldTypePrefix + "code": NewValue("otp", 1),
				AttributeFacadeType:            NewValue("login", 1),
			},
		}},
	}

	v, err := FromSnapshot(snap)
	require.NoError(t, err)
	e := v.FindEntryByID("e")
	assert.Equal(t, ValueTypeOTP, e.PropertyValueType("code"))
	_, ok := e.Attribute(legacyFieldTypePrefix + "code")
	assert.False(t, ok)
	assert.Contains(t, snap.Entries[0].Attributes, legacyFieldTypePrefix+"code", "input not mutated")
}

func TestErase(t *testing.T) {
	v, _ := newTestVault(t)
	id := v.ID()
	v.Erase()

	assert.NotEqual(t, id, v.ID())
	assert.Empty(t, v.Groups())
	assert.Empty(t, v.Entries())
}
