package delta

import (
	"parcelwatch/internal/snapshot"
	"parcelwatch/internal/sortutil"
	"parcelwatch/internal/watchlist"
)

// Diff computes the change set between two snapshots. fields is the tracked
// attribute list, compared in order after the shape digest. The result is a
// pure function of its inputs: same snapshots, same lists, same order.
func Diff(prev, curr snapshot.Snapshot, fields []string) ChangeSet {
	if fields == nil {
		fields = snapshot.DefaultFields
	}
	cs := ChangeSet{
		Added:    sortutil.Difference(curr, prev),
		Removed:  sortutil.Difference(prev, curr),
		Modified: make([]ChangeEntry, 0),
	}
	for _, key := range sortutil.Intersection(prev, curr) {
		if entry, ok := compare(prev[key], curr[key], fields); ok {
			cs.Modified = append(cs.Modified, entry)
		}
	}
	return cs
}

func compare(pf, cf snapshot.Fingerprint, fields []string) (ChangeEntry, bool) {
	var diffs []FieldDifference
	if pf.ShapeDigest != cf.ShapeDigest {
		diffs = append(diffs, FieldDifference{
			Field:  ShapeField,
			Before: snapshot.Some(pf.ShapeDigest),
			After:  snapshot.Some(cf.ShapeDigest),
		})
	}
	for _, name := range fields {
		before, after := pf.Attr(name), cf.Attr(name)
		if before != after {
			diffs = append(diffs, FieldDifference{Field: name, Before: before, After: after})
		}
	}
	if len(diffs) == 0 {
		return ChangeEntry{}, false
	}
	return ChangeEntry{Key: cf.Key, Differences: diffs}, true
}

// Restrict narrows cs to the watched keys. An empty watchlist returns cs
// unchanged; otherwise a new ChangeSet is built and cs is left untouched.
func Restrict(cs ChangeSet, w watchlist.Set) ChangeSet {
	if w.Len() == 0 {
		return cs
	}
	out := ChangeSet{
		Added:    filterKeys(cs.Added, w),
		Removed:  filterKeys(cs.Removed, w),
		Modified: make([]ChangeEntry, 0),
	}
	for _, m := range cs.Modified {
		if w.Has(m.Key) {
			out.Modified = append(out.Modified, m)
		}
	}
	return out
}

func filterKeys(keys []string, w watchlist.Set) []string {
	out := make([]string, 0)
	for _, k := range keys {
		if w.Has(k) {
			out = append(out, k)
		}
	}
	return out
}
