// Package validate performs lightweight structural validation of a change
// summary before it is persisted. It is not a JSON-Schema validator; it
// checks the invariants readers of the summary rely on.
//
// Goals:
//   - Aggregate multiple issues into a single error for better UX
//   - Deterministic, strict-enough checks without being overbearing
package validate

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"parcelwatch/internal/summary"
)

// Summary validates a ChangeSummary:
//
//   - Status is "ok" or "initialized".
//   - Counts match the detail list lengths.
//   - Detail lists are sorted and free of duplicates.
//   - A key appears in at most one of added/removed/modified.
//   - Each modified entry carries at least one field change, with distinct
//     field names and a real before/after difference.
//   - Samples are prefixes of the details, at most sampleSize long.
//   - Unfiltered counts are present exactly when a watchlist is active and are
//     never smaller than the filtered counts.
//
// It returns nil if everything looks fine, or a single aggregated error.
func Summary(s *summary.Summary, sampleSize int) error {
	var errs errlist
	if s == nil {
		errs.add("summary must not be nil")
		return errs.err()
	}

	switch s.Status {
	case summary.StatusOK, summary.StatusInitialized:
	default:
		errs.add("status must be %q or %q, got %q", summary.StatusOK, summary.StatusInitialized, s.Status)
	}

	d := s.Details
	st := s.Stats
	if st.AddedCount != len(d.Added) {
		errs.add("stats.added_count=%d does not match details.added (%d)", st.AddedCount, len(d.Added))
	}
	if st.RemovedCount != len(d.Removed) {
		errs.add("stats.removed_count=%d does not match details.removed (%d)", st.RemovedCount, len(d.Removed))
	}
	if st.ModifiedCount != len(d.Modified) {
		errs.add("stats.modified_count=%d does not match details.modified (%d)", st.ModifiedCount, len(d.Modified))
	}

	modKeys := make([]string, len(d.Modified))
	for i, m := range d.Modified {
		modKeys[i] = m.Key
	}
	checkSorted(&errs, "details.added", d.Added)
	checkSorted(&errs, "details.removed", d.Removed)
	checkSorted(&errs, "details.modified", modKeys)
	checkDisjoint(&errs, d.Added, d.Removed, modKeys)

	for i, m := range d.Modified {
		prefix := fmt.Sprintf("details.modified[%d] (%s)", i, m.Key)
		if strings.TrimSpace(m.Key) == "" {
			errs.add("%s: key must be non-empty", prefix)
		}
		if len(m.Changes) == 0 {
			errs.add("%s: must carry at least one field change", prefix)
		}
		seen := make(map[string]struct{}, len(m.Changes))
		for _, c := range m.Changes {
			if _, dup := seen[c.Field]; dup {
				errs.add("%s: duplicate field %q", prefix, c.Field)
			}
			seen[c.Field] = struct{}{}
			if samePtr(c.Before, c.After) {
				errs.add("%s: field %q has identical before/after", prefix, c.Field)
			}
		}
	}

	checkSample(&errs, "samples.added", s.Samples.Added, d.Added, sampleSize)
	checkSample(&errs, "samples.removed", s.Samples.Removed, d.Removed, sampleSize)
	checkSample(&errs, "samples.modified", s.Samples.Modified, modKeys, sampleSize)

	unfiltered := []struct {
		name     string
		v        *int
		filtered int
	}{
		{"unfiltered_added_count", st.UnfilteredAdded, st.AddedCount},
		{"unfiltered_removed_count", st.UnfilteredRemoved, st.RemovedCount},
		{"unfiltered_modified_count", st.UnfilteredModified, st.ModifiedCount},
	}
	for _, u := range unfiltered {
		switch {
		case s.Scope.WatchlistEnabled && s.Status == summary.StatusOK && u.v == nil:
			errs.add("stats.%s must be set when the watchlist is enabled", u.name)
		case !s.Scope.WatchlistEnabled && u.v != nil:
			errs.add("stats.%s must be omitted when the watchlist is disabled", u.name)
		case u.v != nil && *u.v < u.filtered:
			errs.add("stats.%s=%d is smaller than the filtered count %d", u.name, *u.v, u.filtered)
		}
	}
	if s.Scope.WatchlistEnabled != (s.Scope.WatchlistSize > 0) {
		errs.add("scope.watchlist_enabled=%v disagrees with watchlist_size=%d", s.Scope.WatchlistEnabled, s.Scope.WatchlistSize)
	}

	return errs.err()
}

// --- helpers -----------------------------------------------------------------

func checkSorted(errs *errlist, name string, keys []string) {
	if !sort.StringsAreSorted(keys) {
		errs.add("%s should be sorted for deterministic output", name)
	}
	for i := 1; i < len(keys); i++ {
		if keys[i] == keys[i-1] {
			errs.add("%s: duplicate key %q", name, keys[i])
		}
	}
}

func checkDisjoint(errs *errlist, lists ...[]string) {
	names := []string{"added", "removed", "modified"}
	owner := make(map[string]int)
	for li, keys := range lists {
		for _, k := range keys {
			if prev, ok := owner[k]; ok && prev != li {
				errs.add("key %q appears in both %s and %s", k, names[prev], names[li])
				continue
			}
			owner[k] = li
		}
	}
}

func checkSample(errs *errlist, name string, sample, full []string, size int) {
	if size >= 0 && len(sample) > size {
		errs.add("%s has %d entries, more than sample size %d", name, len(sample), size)
	}
	if len(sample) > len(full) {
		errs.add("%s is longer than its detail list", name)
		return
	}
	for i := range sample {
		if sample[i] != full[i] {
			errs.add("%s[%d]=%q is not a prefix of the detail list", name, i, sample[i])
			return
		}
	}
}

func samePtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// errlist aggregates multiple validation issues into a single error.
type errlist struct {
	msgs []string
}

func (e *errlist) add(format string, args ...any) {
	if e == nil {
		return
	}
	e.msgs = append(e.msgs, fmt.Sprintf(format, args...))
}

func (e *errlist) err() error {
	if e == nil || len(e.msgs) == 0 {
		return nil
	}
	// Join with newline for readability.
	return errors.New(strings.Join(e.msgs, "\n"))
}
