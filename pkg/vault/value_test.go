package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueSetPushesHistory(t *testing.T) {
	val := NewValue("a", 100)
	val.Set("b", 200)
	val.Set("c", 300)

	assert.Equal(t, "c", val.Value)
	assert.Equal(t, int64(300), val.Updated)
	assert.Equal(t, int64(100), val.Created)
	assert.Equal(t, []HistoryItem{{"b", 200}, {"a", 100}}, val.History)
}

func TestValueDeleteKeepsData(t *testing.T) {
	val := NewValue("a", 100)
	val.Delete(150)

	require.True(t, val.IsDeleted())
	assert.Equal(t, "a", val.Value)

	val.Set("b", 200)
	assert.False(t, val.IsDeleted(), "set revives a deleted slot")
}

func TestValueChanges(t *testing.T) {
	val := NewValue("a", 100)
	val.Set("b", 200)
	val.Delete(300)

	assert.Equal(t, []Change{
		{Type: ChangeCreated, Timestamp: 100, Value: "a"},
		{Type: ChangeModified, Timestamp: 200, Value: "b"},
		{Type: ChangeDeleted, Timestamp: 300},
	}, val.Changes())
}

func TestValueClone(t *testing.T) {
	val := NewValue("a", 1)
	val.Set("b", 2)
	val.Delete(3)

	c := val.Clone()
	c.History[0].Value = "changed"
	*c.Deleted = 99

	assert.Equal(t, "a", val.History[0].Value)
	assert.Equal(t, int64(3), *val.Deleted)
	assert.Nil(t, (*Value)(nil).Clone())
}

func TestMergeValuesNewerWins(t *testing.T) {
	base := NewValue("orig", 100)
	a := base.Clone()
	a.Set("from-a", 200)
	b := base.Clone()
	b.Set("from-b", 300)

	merged := MergeValues(a, b)
	assert.Equal(t, "from-b", merged.Value)
	assert.Equal(t, int64(300), merged.Updated)
	assert.Equal(t, []HistoryItem{{"from-a", 200}, {"orig", 100}}, merged.History)
	assert.Equal(t, merged, MergeValues(b, a), "merge is commutative")
}

func TestMergeValuesTieBreak(t *testing.T) {
	a := &Value{Value: "apple", Created: 1, Updated: 5, History: []HistoryItem{}}
	b := &Value{Value: "banana", Created: 2, Updated: 5, History: []HistoryItem{}}

	merged := MergeValues(a, b)
	assert.Equal(t, "banana", merged.Value)
	assert.Equal(t, int64(1), merged.Created)
	assert.Equal(t, []HistoryItem{{"apple", 5}}, merged.History)
	assert.Equal(t, merged, MergeValues(b, a))
}

func TestMergeValuesIdentical(t *testing.T) {
	val := NewValue("x", 10)
	val.Set("y", 20)

	merged := MergeValues(val, val.Clone())
	assert.Equal(t, val, merged)
}

func TestMergeValuesDeletion(t *testing.T) {
	t.Run("newer deletion survives", func(t *testing.T) {
		a := NewValue("x", 10)
		b := a.Clone()
		b.Delete(20)

		merged := MergeValues(a, b)
		require.True(t, merged.IsDeleted())
		assert.Equal(t, int64(20), *merged.Deleted)
	})

	t.Run("later edit revives", func(t *testing.T) {
		a := NewValue("x", 10)
		a.Delete(20)
		b := NewValue("x", 10)
		b.Set("y", 30)

		merged := MergeValues(a, b)
		assert.False(t, merged.IsDeleted())
		assert.Equal(t, "y", merged.Value)
	})
}

func TestMergeValueMaps(t *testing.T) {
	a := map[string]*Value{"only-a": NewValue("1", 1), "both": NewValue("old", 1)}
	b := map[string]*Value{"only-b": NewValue("2", 2), "both": NewValue("new", 5)}

	merged := MergeValueMaps(a, b)
	require.Len(t, merged, 3)
	assert.Equal(t, "1", merged["only-a"].Value)
	assert.Equal(t, "2", merged["only-b"].Value)
	assert.Equal(t, "new", merged["both"].Value)

	merged["only-a"].Value = "mutated"
	assert.Equal(t, "1", a["only-a"].Value, "inputs are not aliased")
}
