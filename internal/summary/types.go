// Package summary defines the ChangeSummary artifact written once per run and
// read by the notifier, the query bot and the HTTP API.
package summary

// Status values.
const (
	StatusOK          = "ok"
	StatusInitialized = "initialized"
)

// Summary is the persisted result of one run.
type Summary struct {
	Status      string  `json:"status"`
	RunID       string  `json:"run_id,omitempty"`
	GeneratedAt string  `json:"generated_at,omitempty"`
	Message     string  `json:"message,omitempty"`
	Scope       Scope   `json:"scope"`
	Stats       Stats   `json:"stats"`
	Samples     Samples `json:"samples"`
	Details     Details `json:"details"`
}

// Scope reports whether the watchlist narrowed the reported changes.
type Scope struct {
	WatchlistEnabled bool `json:"watchlist_enabled"`
	WatchlistSize    int  `json:"watchlist_size"`
}

// Stats holds aggregate counts. The Unfiltered* counts are set only when a
// watchlist is active and carry the totals before filtering.
type Stats struct {
	CurrentTotal       int  `json:"current_total"`
	PreviousTotal      int  `json:"previous_total"`
	AddedCount         int  `json:"added_count"`
	RemovedCount       int  `json:"removed_count"`
	ModifiedCount      int  `json:"modified_count"`
	DuplicateKeys      int  `json:"duplicate_keys"`
	SkippedFeatures    int  `json:"skipped_features"`
	UnfilteredAdded    *int `json:"unfiltered_added_count,omitempty"`
	UnfilteredRemoved  *int `json:"unfiltered_removed_count,omitempty"`
	UnfilteredModified *int `json:"unfiltered_modified_count,omitempty"`
}

// Samples are bounded key lists for human-readable reporting.
type Samples struct {
	Added    []string `json:"added"`
	Removed  []string `json:"removed"`
	Modified []string `json:"modified"`
}

// Details are the full change lists.
type Details struct {
	Added    []string `json:"added"`
	Removed  []string `json:"removed"`
	Modified []Change `json:"modified"`
}

// Change is one modified parcel.
type Change struct {
	Key     string        `json:"key"`
	Changes []FieldChange `json:"changes"`
}

// FieldChange is one changed field. A nil Before/After means the property was
// absent (JSON null), which is distinct from an empty string.
type FieldChange struct {
	Field  string  `json:"field"`
	Before *string `json:"before"`
	After  *string `json:"after"`
}

// ChangeFor returns the recorded change for key, if the last run saw one.
func (s *Summary) ChangeFor(key string) (Change, bool) {
	if s == nil {
		return Change{}, false
	}
	for _, c := range s.Details.Modified {
		if c.Key == key {
			return c, true
		}
	}
	return Change{}, false
}

// Watchlisted reports whether the summary was narrowed by a watchlist.
func (s *Summary) Watchlisted() bool {
	return s != nil && s.Scope.WatchlistEnabled
}
