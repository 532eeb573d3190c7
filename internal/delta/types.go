// Package delta defines the change set between two parcel snapshots and the
// engine that computes it.
package delta

import "parcelwatch/internal/snapshot"

// ShapeField is the pseudo-field reported when a parcel's geometry digest
// changes.
const ShapeField = "shape"

// FieldDifference is one changed field of a parcel. For ShapeField the
// values are geometry digests.
type FieldDifference struct {
	Field  string
	Before snapshot.Value
	After  snapshot.Value
}

// ChangeEntry lists the differences of a parcel present in both snapshots.
// Differences are ordered: shape first, then tracked fields in config order.
type ChangeEntry struct {
	Key         string
	Differences []FieldDifference
}

// Difference returns the difference recorded for field, if any.
func (e ChangeEntry) Difference(field string) (FieldDifference, bool) {
	for _, d := range e.Differences {
		if d.Field == field {
			return d, true
		}
	}
	return FieldDifference{}, false
}

// ChangeSet is the result of comparing a previous snapshot with a current one:
//
//   - Added: keys present now that were absent before
//   - Removed: keys present before that are absent now
//   - Modified: keys present in both whose shape or tracked fields differ
//
// A key appears in at most one of the three lists; every list is sorted by key.
type ChangeSet struct {
	Added    []string
	Removed  []string
	Modified []ChangeEntry
}

// Empty reports whether the change set carries no changes.
func (c ChangeSet) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Modified) == 0
}

// ModifiedKeys returns the keys of the modified entries, in order.
func (c ChangeSet) ModifiedKeys() []string {
	out := make([]string, 0, len(c.Modified))
	for _, m := range c.Modified {
		out = append(out, m.Key)
	}
	return out
}

// Lookup returns the modified entry for key, if any.
func (c ChangeSet) Lookup(key string) (ChangeEntry, bool) {
	for _, m := range c.Modified {
		if m.Key == key {
			return m, true
		}
	}
	return ChangeEntry{}, false
}
