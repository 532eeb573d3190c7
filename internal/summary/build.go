package summary

import (
	"time"

	"parcelwatch/internal/delta"
	"parcelwatch/internal/snapshot"
)

// InitMessage is reported on the first run, when the baseline is seeded.
const InitMessage = "Baseline created from current parcel dataset; no diff available yet."

// Input carries everything a comparison run hands to Build.
type Input struct {
	RunID      string
	Now        time.Time
	Current    int // fingerprints in the current snapshot
	Previous   int // fingerprints in the previous snapshot
	Full       delta.ChangeSet
	Filtered   delta.ChangeSet // equal to Full when no watchlist is active
	Watchlist  int             // watchlist size, 0 when disabled
	SampleSize int
	Index      snapshot.Stats // current snapshot index stats
}

// Build assembles the summary of a comparison run.
func Build(in Input) *Summary {
	cs := in.Filtered
	s := &Summary{
		Status:      StatusOK,
		RunID:       in.RunID,
		GeneratedAt: stamp(in.Now),
		Scope: Scope{
			WatchlistEnabled: in.Watchlist > 0,
			WatchlistSize:    in.Watchlist,
		},
		Stats: Stats{
			CurrentTotal:    in.Current,
			PreviousTotal:   in.Previous,
			AddedCount:      len(cs.Added),
			RemovedCount:    len(cs.Removed),
			ModifiedCount:   len(cs.Modified),
			DuplicateKeys:   in.Index.Duplicates,
			SkippedFeatures: in.Index.Skipped,
		},
		Samples: Samples{
			Added:    sample(cs.Added, in.SampleSize),
			Removed:  sample(cs.Removed, in.SampleSize),
			Modified: sample(cs.ModifiedKeys(), in.SampleSize),
		},
		Details: Details{
			Added:    nonNil(cs.Added),
			Removed:  nonNil(cs.Removed),
			Modified: changes(cs.Modified),
		},
	}
	if s.Scope.WatchlistEnabled {
		s.Stats.UnfilteredAdded = intPtr(len(in.Full.Added))
		s.Stats.UnfilteredRemoved = intPtr(len(in.Full.Removed))
		s.Stats.UnfilteredModified = intPtr(len(in.Full.Modified))
	}
	return s
}

// Initialized is the summary of a first run: the baseline was seeded from
// the current dataset and nothing was compared.
func Initialized(runID string, now time.Time, current int, watchlist int, idx snapshot.Stats) *Summary {
	return &Summary{
		Status:      StatusInitialized,
		RunID:       runID,
		GeneratedAt: stamp(now),
		Message:     InitMessage,
		Scope: Scope{
			WatchlistEnabled: watchlist > 0,
			WatchlistSize:    watchlist,
		},
		Stats: Stats{
			CurrentTotal:    current,
			DuplicateKeys:   idx.Duplicates,
			SkippedFeatures: idx.Skipped,
		},
		Samples: Samples{Added: []string{}, Removed: []string{}, Modified: []string{}},
		Details: Details{Added: []string{}, Removed: []string{}, Modified: []Change{}},
	}
}

func changes(entries []delta.ChangeEntry) []Change {
	out := make([]Change, 0, len(entries))
	for _, e := range entries {
		c := Change{Key: e.Key, Changes: make([]FieldChange, 0, len(e.Differences))}
		for _, d := range e.Differences {
			c.Changes = append(c.Changes, FieldChange{
				Field:  d.Field,
				Before: d.Before.Ptr(),
				After:  d.After.Ptr(),
			})
		}
		out = append(out, c)
	}
	return out
}

// sample returns at most n leading keys; a negative n is treated as zero.
func sample(keys []string, n int) []string {
	if n < 0 {
		n = 0
	}
	if len(keys) < n {
		n = len(keys)
	}
	out := make([]string, n)
	copy(out, keys[:n])
	return out
}

func nonNil(keys []string) []string {
	if keys == nil {
		return []string{}
	}
	return keys
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func intPtr(n int) *int { return &n }
