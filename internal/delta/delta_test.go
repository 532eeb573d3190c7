package delta

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parcelwatch/internal/snapshot"
	"parcelwatch/internal/watchlist"
)

var testFields = []string{"STREET", "ZIPCODE"}

func fp(key, shape, street string) snapshot.Fingerprint {
	return snapshot.Fingerprint{
		Key:         key,
		ShapeDigest: shape,
		Attributes: map[string]snapshot.Value{
			"STREET":  snapshot.Some(street),
			"ZIPCODE": snapshot.Some("84404"),
		},
	}
}

func snap(fps ...snapshot.Fingerprint) snapshot.Snapshot {
	s := snapshot.Snapshot{}
	for _, f := range fps {
		s[f.Key] = f
	}
	return s
}

func TestDiffAgainstSelfIsEmpty(t *testing.T) {
	s := snap(fp("1", "a", "Main St"), fp("2", "b", "Elm"), fp("3", "c", "Oak"))
	cs := Diff(s, s, testFields)
	assert.True(t, cs.Empty())
	assert.Empty(t, cs.Added)
	assert.Empty(t, cs.Removed)
	assert.Empty(t, cs.Modified)
}

func TestDiffAddedAndRemoved(t *testing.T) {
	prev := snap(fp("1", "a", "x"), fp("2", "b", "y"), fp("3", "c", "z"))
	curr := snap(fp("2", "b", "y"), fp("3", "c", "z"), fp("4", "d", "w"))

	cs := Diff(prev, curr, testFields)

	assert.Equal(t, []string{"4"}, cs.Added)
	assert.Equal(t, []string{"1"}, cs.Removed)
	assert.Empty(t, cs.Modified)
}

func TestDiffAttributeChange(t *testing.T) {
	prev := snap(fp("2", "b", "Main St"))
	curr := snap(fp("2", "b", "1st St"))

	cs := Diff(prev, curr, testFields)

	require.Len(t, cs.Modified, 1)
	assert.Equal(t, ChangeEntry{
		Key: "2",
		Differences: []FieldDifference{
			{Field: "STREET", Before: snapshot.Some("Main St"), After: snapshot.Some("1st St")},
		},
	}, cs.Modified[0])
}

func TestDiffShapeComesFirstThenFieldOrder(t *testing.T) {
	p := fp("7", "old", "Main St")
	c := fp("7", "new", "1st St")
	c.Attributes["ZIPCODE"] = snapshot.Value{}

	cs := Diff(snap(p), snap(c), []string{"ZIPCODE", "STREET"})

	require.Len(t, cs.Modified, 1)
	var fields []string
	for _, d := range cs.Modified[0].Differences {
		fields = append(fields, d.Field)
	}
	assert.Equal(t, []string{ShapeField, "ZIPCODE", "STREET"}, fields)
	shape, ok := cs.Modified[0].Difference(ShapeField)
	require.True(t, ok)
	assert.Equal(t, "old", shape.Before.Text)
	assert.Equal(t, "new", shape.After.Text)
	zip, _ := cs.Modified[0].Difference("ZIPCODE")
	assert.False(t, zip.After.Present)
}

func TestDiffAbsentVersusEmptyIsAChange(t *testing.T) {
	p := fp("1", "a", "")
	c := fp("1", "a", "")
	c.Attributes["STREET"] = snapshot.Value{}

	cs := Diff(snap(p), snap(c), testFields)
	require.Len(t, cs.Modified, 1)
}

func TestDiffPartitionAndDeterminism(t *testing.T) {
	prev, curr := snapshot.Snapshot{}, snapshot.Snapshot{}
	for i := 0; i < 200; i++ {
		k := fmt.Sprintf("%03d", i)
		switch i % 4 {
		case 0:
			prev[k] = fp(k, "s", "x")
		case 1:
			curr[k] = fp(k, "s", "x")
		case 2:
			prev[k] = fp(k, "s", "x")
			curr[k] = fp(k, "s", "y")
		default:
			prev[k] = fp(k, "s", "x")
			curr[k] = fp(k, "s", "x")
		}
	}

	first := Diff(prev, curr, testFields)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Diff(prev, curr, testFields))
	}

	seen := map[string]int{}
	for _, k := range first.Added {
		seen[k]++
	}
	for _, k := range first.Removed {
		seen[k]++
	}
	for _, k := range first.ModifiedKeys() {
		seen[k]++
	}
	assert.Len(t, seen, 150)
	for k, n := range seen {
		assert.Equal(t, 1, n, "key %s in more than one list", k)
	}
	assert.IsIncreasing(t, first.Added)
	assert.IsIncreasing(t, first.ModifiedKeys())
}

func TestDiffEmptySnapshots(t *testing.T) {
	s := snap(fp("1", "a", "x"), fp("2", "b", "y"))
	assert.Equal(t, []string{"1", "2"}, Diff(snapshot.Snapshot{}, s, testFields).Added)
	assert.Equal(t, []string{"1", "2"}, Diff(s, snapshot.Snapshot{}, testFields).Removed)
	assert.True(t, Diff(snapshot.Snapshot{}, snapshot.Snapshot{}, testFields).Empty())
}

func sampleChangeSet() ChangeSet {
	prev := snap(fp("1", "a", "x"), fp("2", "b", "Main St"), fp("3", "c", "z"))
	curr := snap(fp("2", "b", "1st St"), fp("3", "c", "z"), fp("4", "d", "w"))
	return Diff(prev, curr, testFields)
}

func TestRestrictEmptyWatchlistIsIdentity(t *testing.T) {
	cs := sampleChangeSet()
	assert.Equal(t, cs, Restrict(cs, watchlist.Set{}))
	assert.Equal(t, cs, Restrict(cs, nil))
}

func TestRestrictUnaffectedWatchlist(t *testing.T) {
	cs := sampleChangeSet()
	out := Restrict(cs, watchlist.New("3"))
	assert.True(t, out.Empty())
	assert.Equal(t, []string{"4"}, cs.Added, "input must not be mutated")
	assert.Equal(t, []string{"1"}, cs.Removed)
	assert.Len(t, cs.Modified, 1)
}

func TestRestrictSubset(t *testing.T) {
	cs := sampleChangeSet()
	w := watchlist.New("2", "4", "99")
	out := Restrict(cs, w)

	assert.Equal(t, []string{"4"}, out.Added)
	assert.Empty(t, out.Removed)
	assert.Equal(t, []string{"2"}, out.ModifiedKeys())
	for _, k := range append(append(out.Added, out.Removed...), out.ModifiedKeys()...) {
		assert.True(t, w.Has(k))
	}
}
