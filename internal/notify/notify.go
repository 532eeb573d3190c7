// Package notify turns a change summary into the human-readable alert text
// and delivers it to a Telegram chat.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dustin/go-humanize"

	"parcelwatch/internal/summary"
	"parcelwatch/internal/telegram"
	"parcelwatch/internal/textutil"
)

// DefaultTitle heads every alert.
const DefaultTitle = "Plain City parcel change summary"

// Disclaimer closes every comparison alert.
const Disclaimer = "(Changes reflect dataset updates, not verified residency changes.)"

// Format renders s as alert text.
func Format(s *summary.Summary, title string) string {
	if title == "" {
		title = DefaultTitle
	}
	st := s.Stats
	lines := []string{title}
	if s.Status == summary.StatusInitialized {
		lines = append(lines,
			s.Message,
			"Current parcels: "+humanize.Comma(int64(st.CurrentTotal)),
		)
		return textutil.JoinLines(lines...)
	}

	lines = append(lines,
		"Current parcels: "+humanize.Comma(int64(st.CurrentTotal)),
		"Added: "+countLine(st.AddedCount, st.UnfilteredAdded),
		"Removed: "+countLine(st.RemovedCount, st.UnfilteredRemoved),
		"Changed: "+countLine(st.ModifiedCount, st.UnfilteredModified),
	)
	if s.Scope.WatchlistEnabled {
		lines = append(lines, fmt.Sprintf("Watchlist: %s parcels (counts in parentheses are all parcels)",
			humanize.Comma(int64(s.Scope.WatchlistSize))))
	}
	if st.DuplicateKeys > 0 {
		lines = append(lines, fmt.Sprintf("Warning: %s duplicate parcel IDs in source data", humanize.Comma(int64(st.DuplicateKeys))))
	}
	if len(s.Samples.Added) > 0 {
		lines = append(lines, "Sample added: "+strings.Join(s.Samples.Added, ", "))
	}
	if len(s.Samples.Removed) > 0 {
		lines = append(lines, "Sample removed: "+strings.Join(s.Samples.Removed, ", "))
	}
	if len(s.Samples.Modified) > 0 {
		lines = append(lines, "Sample changed: "+strings.Join(s.Samples.Modified, ", "))
	}
	lines = append(lines, Disclaimer)
	return textutil.JoinLines(lines...)
}

func countLine(n int, unfiltered *int) string {
	if unfiltered == nil {
		return humanize.Comma(int64(n))
	}
	return fmt.Sprintf("%s (%s)", humanize.Comma(int64(n)), humanize.Comma(int64(*unfiltered)))
}

// Sender is the part of the Telegram client the notifier uses.
type Sender interface {
	SendMessage(ctx context.Context, chatID, text string, opt telegram.SendOptions) error
}

// Telegram delivers alerts to one chat.
type Telegram struct {
	Sender Sender // nil: not configured
	ChatID string
	Logger *slog.Logger
}

// Configured reports whether alerts can be sent.
func (t *Telegram) Configured() bool {
	return t != nil && t.Sender != nil && t.ChatID != ""
}

// Notify sends text. An unconfigured notifier logs and skips without error.
func (t *Telegram) Notify(ctx context.Context, text string) error {
	log := slog.Default()
	if t != nil && t.Logger != nil {
		log = t.Logger
	}
	if !t.Configured() {
		log.Warn("notify: telegram not configured; skipping alert send")
		return nil
	}
	if err := t.Sender.SendMessage(ctx, t.ChatID, text, telegram.SendOptions{}); err != nil {
		return fmt.Errorf("send alert: %w", err)
	}
	log.Info("notify: telegram alert sent", "chat_id", t.ChatID)
	return nil
}
