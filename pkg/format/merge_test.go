package format

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forest6511/vaultsync/pkg/vault"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
}

func idGen(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

// forkVaults builds a vault and hydrates two independent copies of it.
func forkVaults(t *testing.T, clock *fakeClock) (a, b *vault.Vault, entryID string) {
	t.Helper()
	origin := vault.NewWithDefaults(vault.WithClock(clock.Now), vault.WithIDGenerator(idGen("o")))
	general := origin.GroupsIn(vault.RootID)[0]
	e, err := origin.CreateEntry(general.ID())
	require.NoError(t, err)
	require.NoError(t, origin.SetEntryProperty(e.ID(), vault.PropertyTitle, "Email"))

	snap := origin.Snapshot()
	a, err = vault.FromSnapshot(snap.Clone(), vault.WithClock(clock.Now), vault.WithIDGenerator(idGen("a")))
	require.NoError(t, err)
	b, err = vault.FromSnapshot(snap.Clone(), vault.WithClock(clock.Now), vault.WithIDGenerator(idGen("b")))
	require.NoError(t, err)
	return a, b, e.ID()
}

func TestMergeSelfIsIdentity(t *testing.T) {
	clock := newClock()
	a, _, _ := forkVaults(t, clock)

	merged, err := Merge(a, a)
	require.NoError(t, err)
	assert.Equal(t, vault.Facade(a), vault.Facade(merged))
	assert.Equal(t, a.Snapshot(), merged.Snapshot())
}

func TestMergeNoSharedLineage(t *testing.T) {
	_, err := Merge(vault.New(), vault.New())
	assert.ErrorIs(t, err, ErrNoSharedLineage)

	_, err = MergeSnapshots(nil, &vault.Snapshot{})
	assert.ErrorIs(t, err, vault.ErrInvalidSnapshot)
}

func TestMergePropertyNewerWins(t *testing.T) {
	clock := newClock()
	a, b, id := forkVaults(t, clock)

	clock.Advance(time.Minute)
	require.NoError(t, a.SetEntryProperty(id, vault.PropertyTitle, "Mail A"))
	clock.Advance(time.Minute)
	require.NoError(t, b.SetEntryProperty(id, vault.PropertyTitle, "Mail B"))

	for _, pair := range [][2]*vault.Vault{{a, b}, {b, a}} {
		merged, err := Merge(pair[0], pair[1])
		require.NoError(t, err)
		e := merged.FindEntryByID(id)
		title, _ := e.Property(vault.PropertyTitle)
		assert.Equal(t, "Mail B", title)

		var history []string
		for _, c := range e.Changes(vault.PropertyTitle) {
			history = append(history, c.Value)
		}
		assert.Equal(t, []string{"Email", "Mail A", "Mail B"}, history)
	}
}

func TestMergeIndependentKeys(t *testing.T) {
	clock := newClock()
	a, b, id := forkVaults(t, clock)

	clock.Advance(time.Second)
	require.NoError(t, a.SetEntryProperty(id, vault.PropertyUsername, "alice"))
	require.NoError(t, b.SetEntryProperty(id, vault.PropertyPassword, "hunter2"))
	require.NoError(t, b.SetAttribute("shared", "yes"))

	merged, err := Merge(a, b)
	require.NoError(t, err)
	props := merged.FindEntryByID(id).Properties()
	assert.Equal(t, "alice", props[vault.PropertyUsername])
	assert.Equal(t, "hunter2", props[vault.PropertyPassword])
	got, _ := merged.Attribute("shared")
	assert.Equal(t, "yes", got)
}

func TestMergeTombstonePrecedence(t *testing.T) {
	clock := newClock()
	a, b, id := forkVaults(t, clock)

	clock.Advance(time.Minute)
	deletedAt := clock.Now().UnixMilli()
	removed, err := a.DeleteEntry(id, true)
	require.NoError(t, err)
	require.True(t, removed)

	clock.Advance(time.Minute)
	require.NoError(t, b.SetEntryProperty(id, vault.PropertyTitle, "still editing"))

	for _, pair := range [][2]*vault.Vault{{a, b}, {b, a}} {
		merged, err := Merge(pair[0], pair[1])
		require.NoError(t, err)
		assert.Nil(t, merged.FindEntryByID(id))
		assert.Equal(t, deletedAt, merged.DeletedEntries()[id])
	}
}

func TestMergeTombstoneKeepsEarliest(t *testing.T) {
	base := &vault.Snapshot{ID: "v", Deletions: vault.Deletions{
		Entries: map[string]int64{"e1": 500, "e2": 100},
		Groups:  map[string]int64{"g1": 300},
	}}
	incoming := &vault.Snapshot{ID: "v", Deletions: vault.Deletions{
		Entries: map[string]int64{"e1": 200, "e2": 900, "e3": 50},
		Groups:  map[string]int64{"g1": 400},
	}}

	merged, err := MergeSnapshots(base, incoming)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"e1": 200, "e2": 100, "e3": 50}, merged.Deletions.Entries)
	assert.Equal(t, map[string]int64{"g1": 300}, merged.Deletions.Groups)
}

func TestMergeStructuralFieldsFromIncoming(t *testing.T) {
	clock := newClock()
	a, b, id := forkVaults(t, clock)
	general := a.GroupsIn(vault.RootID)[0].ID()

	target, err := b.CreateGroup(vault.RootID)
	require.NoError(t, err)
	require.NoError(t, b.MoveEntry(id, target.ID()))
	require.NoError(t, b.SetGroupTitle(general, "Renamed"))

	merged, err := Merge(a, b)
	require.NoError(t, err)
	assert.Equal(t, target.ID(), merged.FindEntryByID(id).GroupID())
	assert.Equal(t, "Renamed", merged.FindGroupByID(general).Title())
	assert.NotNil(t, merged.FindGroupByID(target.ID()), "one-sided group kept")
	assert.Equal(t, a.ID(), merged.ID())
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	clock := newClock()
	a, b, id := forkVaults(t, clock)
	clock.Advance(time.Second)
	require.NoError(t, b.SetEntryProperty(id, vault.PropertyTitle, "B"))

	baseSnap := a.Snapshot()
	inSnap := b.Snapshot()
	before := baseSnap.Clone()

	_, err := MergeSnapshots(baseSnap, inSnap)
	require.NoError(t, err)
	assert.Equal(t, before, baseSnap)
}
