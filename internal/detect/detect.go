// Package detect drives one change-detection run: load the baseline, index
// both datasets, diff, narrow to the watchlist, persist the summary and
// rotate the baseline.
//
// A run is either an initialization (no baseline yet: the baseline is seeded
// and a zero-change summary is written) or a comparison. Runs are not
// coordinated with each other; callers serialize them.
package detect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"parcelwatch/internal/delta"
	"parcelwatch/internal/geojson"
	"parcelwatch/internal/snapshot"
	"parcelwatch/internal/state"
	"parcelwatch/internal/summary"
	"parcelwatch/internal/validate"
	"parcelwatch/internal/watchlist"
)

// ErrMalformedDataset marks a baseline or current dataset that could not be
// read. Nothing is persisted when a run fails with it.
var ErrMalformedDataset = errors.New("malformed dataset")

// Runner holds the collaborators and settings of a run.
type Runner struct {
	Store       state.Store
	SummaryPath string // empty: summary is returned but not written
	Index       snapshot.Options
	Watchlist   watchlist.Set
	SampleSize  int
	Logger      *slog.Logger
	Now         func() time.Time
	NewRunID    func() string
}

func (r *Runner) defaults() {
	if r.Logger == nil {
		r.Logger = slog.Default()
	}
	if r.Now == nil {
		r.Now = time.Now
	}
	if r.NewRunID == nil {
		r.NewRunID = uuid.NewString
	}
	if r.Index.Fields == nil {
		r.Index.Fields = snapshot.DefaultFields
	}
	if r.Index.KeyField == "" {
		r.Index.KeyField = snapshot.DefaultKeyField
	}
}

// Run executes one run against current and returns the persisted summary.
func (r *Runner) Run(ctx context.Context, current *geojson.Dataset) (*summary.Summary, error) {
	r.defaults()
	if r.Store == nil {
		return nil, errors.New("detect: no baseline store configured")
	}
	if current == nil {
		return nil, fmt.Errorf("%w: no current dataset", ErrMalformedDataset)
	}
	log := r.Logger

	prev, err := r.Store.Load(ctx)
	if err != nil {
		if errors.Is(err, geojson.ErrMalformed) {
			return nil, fmt.Errorf("%w: %w", ErrMalformedDataset, err)
		}
		return nil, fmt.Errorf("load baseline: %w", err)
	}

	curr, idx := snapshot.Index(current.Collection, r.Index)
	r.reportIndex("current", idx)
	runID := r.NewRunID()

	if prev == nil {
		s := summary.Initialized(runID, r.Now(), len(curr), r.Watchlist.Len(), idx)
		if err := r.persist(s); err != nil {
			return nil, err
		}
		if err := r.Store.Commit(ctx, current); err != nil {
			return nil, fmt.Errorf("seed baseline: %w", err)
		}
		log.Info("detect: baseline initialized", "run_id", runID, "current_total", len(curr))
		return s, nil
	}

	before, prevIdx := snapshot.Index(prev.Collection, r.Index)
	r.reportIndex("baseline", prevIdx)

	full := delta.Diff(before, curr, r.Index.Fields)
	filtered := delta.Restrict(full, r.Watchlist)

	s := summary.Build(summary.Input{
		RunID:      runID,
		Now:        r.Now(),
		Current:    len(curr),
		Previous:   len(before),
		Full:       full,
		Filtered:   filtered,
		Watchlist:  r.Watchlist.Len(),
		SampleSize: r.SampleSize,
		Index:      idx,
	})
	if err := r.persist(s); err != nil {
		return nil, err
	}
	if err := r.Store.Commit(ctx, current); err != nil {
		return nil, fmt.Errorf("rotate baseline: %w", err)
	}

	log.Info("detect: compared",
		"run_id", runID,
		"current_total", s.Stats.CurrentTotal,
		"previous_total", s.Stats.PreviousTotal,
		"added", s.Stats.AddedCount,
		"removed", s.Stats.RemovedCount,
		"modified", s.Stats.ModifiedCount,
		"watchlist", r.Watchlist.Len())
	return s, nil
}

func (r *Runner) persist(s *summary.Summary) error {
	if err := validate.Summary(s, r.SampleSize); err != nil {
		return fmt.Errorf("invalid summary: %w", err)
	}
	if r.SummaryPath == "" {
		return nil
	}
	if err := summary.Save(r.SummaryPath, s); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

func (r *Runner) reportIndex(which string, st snapshot.Stats) {
	if st.Duplicates > 0 {
		r.Logger.Warn("detect: duplicate parcel keys, last occurrence kept",
			"dataset", which, "duplicates", st.Duplicates)
	}
	if st.Skipped > 0 {
		r.Logger.Debug("detect: features without key skipped",
			"dataset", which, "skipped", st.Skipped, "key_field", r.Index.KeyField)
	}
}
