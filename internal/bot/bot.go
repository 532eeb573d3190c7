// Package bot answers parcel queries over Telegram long polling.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/dustin/go-humanize"

	"parcelwatch/internal/catalog"
	"parcelwatch/internal/diff"
	"parcelwatch/internal/state"
	"parcelwatch/internal/summary"
	"parcelwatch/internal/telegram"
)

const (
	DefaultPollTimeout  = 30 * time.Second
	DefaultErrorBackoff = 5 * time.Second
	MaxHouseResults     = 10
	MaxWatchedShown     = 30
)

// HelpText lists the supported commands.
const HelpText = `Commands:
/parcel <PARCEL_ID> - parcel details
/house <number or address> - search address and select a match
/changes - latest change summary
/change <PARCEL_ID> - latest change details for parcel
/watched - list watched parcel IDs
/help - show this help`

// CallbackPrefix marks inline keyboard data that opens a parcel.
const CallbackPrefix = "parcel:"

// API is the part of the Telegram client the bot uses.
type API interface {
	SendMessage(ctx context.Context, chatID, text string, opt telegram.SendOptions) error
	AnswerCallbackQuery(ctx context.Context, id, text string) error
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, error)
}

// Bot dispatches updates to command handlers.
type Bot struct {
	API    API
	Source catalog.Source
	Cursor state.Cursor // empty Path: offset kept in memory only
	Logger *slog.Logger

	PollTimeout  time.Duration
	ErrorBackoff time.Duration
}

func (b *Bot) defaults() {
	if b.Logger == nil {
		b.Logger = slog.Default()
	}
	if b.PollTimeout <= 0 {
		b.PollTimeout = DefaultPollTimeout
	}
	if b.ErrorBackoff <= 0 {
		b.ErrorBackoff = DefaultErrorBackoff
	}
}

// Run polls for updates until ctx is done. The offset is persisted before
// each update is handled, so an update is never processed twice.
func (b *Bot) Run(ctx context.Context) error {
	b.defaults()
	if b.API == nil || b.Source == nil {
		return errors.New("bot: API and Source are required")
	}
	offset, ok, err := b.Cursor.Read()
	if err != nil {
		return err
	}
	if !ok {
		offset = -1
	}
	b.Logger.Info("bot: started", "offset", offset)

	for ctx.Err() == nil {
		updates, err := b.API.GetUpdates(ctx, offset, b.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			b.Logger.Error("bot: poll failed", "err", err)
			if !sleep(ctx, b.ErrorBackoff) {
				break
			}
			continue
		}
		for _, u := range updates {
			offset = u.UpdateID + 1
			if b.Cursor.Path != "" {
				if err := b.Cursor.Write(offset); err != nil {
					b.Logger.Error("bot: write offset", "err", err)
				}
			}
			if err := b.Handle(ctx, u); err != nil {
				b.Logger.Error("bot: handle update", "update_id", u.UpdateID, "err", err)
			}
		}
	}
	b.Logger.Info("bot: stopped")
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Handle processes a single update.
func (b *Bot) Handle(ctx context.Context, u telegram.Update) error {
	b.defaults()
	switch {
	case u.Message != nil:
		return b.handleMessage(ctx, u.Message)
	case u.CallbackQuery != nil:
		return b.handleCallback(ctx, u.CallbackQuery)
	}
	return nil
}

// ParseCommand splits "/cmd@botname arg..." into a lowercased command and
// the trimmed remainder.
func ParseCommand(text string) (cmd, arg string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ""
	}
	head, rest := text, ""
	if i := strings.IndexFunc(text, unicode.IsSpace); i >= 0 {
		head, rest = text[:i], text[i:]
	}
	head, _, _ = strings.Cut(head, "@")
	return strings.ToLower(head), strings.TrimSpace(rest)
}

func (b *Bot) handleMessage(ctx context.Context, m *telegram.Message) error {
	if m.Chat == nil {
		return nil
	}
	r := reply{bot: b, chat: strconv.FormatInt(m.Chat.ID, 10), to: m.MessageID}
	cmd, arg := ParseCommand(m.Text)

	switch cmd {
	case "/start", "/help":
		return r.send(ctx, HelpText)
	case "/parcel":
		if arg == "" {
			return r.send(ctx, "Usage: /parcel <PARCEL_ID>")
		}
		return b.parcel(ctx, r, arg)
	case "/house":
		if arg == "" {
			return r.send(ctx, "Usage: /house <house number or address>")
		}
		return b.house(ctx, r, arg)
	case "/changes":
		return b.changes(ctx, r)
	case "/change":
		if arg == "" {
			return r.send(ctx, "Usage: /change <PARCEL_ID>")
		}
		return b.change(ctx, r, arg)
	case "/watched":
		return b.watched(ctx, r)
	}
	return nil
}

func (b *Bot) handleCallback(ctx context.Context, cq *telegram.CallbackQuery) error {
	if cq.ID != "" {
		if err := b.API.AnswerCallbackQuery(ctx, cq.ID, ""); err != nil {
			return err
		}
	}
	if cq.Message == nil || cq.Message.Chat == nil {
		return nil
	}
	key, ok := strings.CutPrefix(cq.Data, CallbackPrefix)
	if !ok {
		return nil
	}
	if key = strings.TrimSpace(key); key == "" {
		return nil
	}
	r := reply{bot: b, chat: strconv.FormatInt(cq.Message.Chat.ID, 10), to: cq.Message.MessageID}
	return b.parcel(ctx, r, key)
}

type reply struct {
	bot  *Bot
	chat string
	to   int64
}

func (r reply) send(ctx context.Context, text string) error {
	return r.sendOpts(ctx, text, telegram.SendOptions{})
}

func (r reply) sendOpts(ctx context.Context, text string, opt telegram.SendOptions) error {
	opt.ReplyTo = r.to
	return r.bot.API.SendMessage(ctx, r.chat, text, opt)
}

func (b *Bot) parcel(ctx context.Context, r reply, key string) error {
	p, err := b.Source.Parcel(key)
	if err != nil {
		return err
	}
	if p == nil {
		return r.send(ctx, "No parcel found for PARCEL_ID "+key)
	}
	lines := []string{"Parcel details:"}
	for _, f := range catalog.DisplayFields {
		if v := p.Text(f); v != "" {
			lines = append(lines, fmt.Sprintf("- %s: %s", f, v))
		}
	}
	s, err := b.Source.Summary()
	if err != nil {
		return err
	}
	if c, ok := s.ChangeFor(p.Key); ok {
		lines = append(lines, "", "Latest recorded change fields:")
		lines = append(lines, diff.Describe(c)...)
	}
	return r.send(ctx, strings.Join(lines, "\n"))
}

func (b *Bot) house(ctx context.Context, r reply, query string) error {
	matches, total, err := b.Source.Search(query, MaxHouseResults)
	if err != nil {
		return err
	}
	if total == 0 {
		return r.send(ctx, "No address matches for: "+query)
	}
	kb := make([][]telegram.Button, 0, len(matches))
	for _, p := range matches {
		addr := p.Text(catalog.AddressField)
		if addr == "" {
			addr = "(no " + catalog.AddressField + ")"
		}
		kb = append(kb, []telegram.Button{{
			Text:         fmt.Sprintf("%s (%s)", addr, p.Key),
			CallbackData: CallbackPrefix + p.Key,
		}})
	}
	text := fmt.Sprintf("Found %d match(es) for '%s'. Showing first %d. Tap one:", total, query, len(matches))
	return r.sendOpts(ctx, text, telegram.SendOptions{Keyboard: kb})
}

func (b *Bot) changes(ctx context.Context, r reply) error {
	s, err := b.Source.Summary()
	if err != nil {
		return err
	}
	if s == nil {
		return r.send(ctx, "No change summary file found yet.")
	}
	return r.send(ctx, FormatChanges(s))
}

// FormatChanges renders the /changes reply.
func FormatChanges(s *summary.Summary) string {
	st := s.Stats
	lines := []string{"Latest parcel change summary:"}
	if s.Status == summary.StatusInitialized {
		lines = append(lines, "- "+s.Message)
	}
	lines = append(lines,
		"- Current parcels: "+humanize.Comma(int64(st.CurrentTotal)),
		"- Added: "+humanize.Comma(int64(st.AddedCount)),
		"- Removed: "+humanize.Comma(int64(st.RemovedCount)),
		"- Changed: "+humanize.Comma(int64(st.ModifiedCount)),
	)
	if s.Watchlisted() {
		lines = append(lines, fmt.Sprintf("- Watchlist: %d parcels", s.Scope.WatchlistSize))
	}
	if len(s.Samples.Modified) > 0 {
		lines = append(lines, "- Sample changed IDs: "+strings.Join(s.Samples.Modified, ", "))
	}
	if s.GeneratedAt != "" {
		lines = append(lines, "- Generated: "+s.GeneratedAt)
	}
	return strings.Join(lines, "\n")
}

func (b *Bot) change(ctx context.Context, r reply, key string) error {
	s, err := b.Source.Summary()
	if err != nil {
		return err
	}
	c, ok := s.ChangeFor(key)
	if !ok {
		return r.send(ctx, "No latest-run change details for PARCEL_ID "+key)
	}
	lines := append([]string{"Latest change details for " + key + ":"}, diff.Describe(c)...)
	patch, _ := diff.Fields(c, diff.Options{MaxBytes: 2048})
	lines = append(lines, "", strings.TrimRight(patch, "\n"))
	return r.send(ctx, strings.Join(lines, "\n"))
}

func (b *Bot) watched(ctx context.Context, r reply) error {
	w, err := b.Source.Watchlist()
	if err != nil {
		return err
	}
	if w.Len() == 0 {
		return r.send(ctx, "No watched parcels configured.")
	}
	keys := w.Sorted()
	shown := keys[:min(len(keys), MaxWatchedShown)]
	lines := []string{fmt.Sprintf("Watched parcels (%d total):", len(keys))}
	for _, k := range shown {
		lines = append(lines, "- "+k)
	}
	if rest := len(keys) - len(shown); rest > 0 {
		lines = append(lines, fmt.Sprintf("... and %d more", rest))
	}
	return r.send(ctx, strings.Join(lines, "\n"))
}
