package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parcelwatch/internal/catalog"
	"parcelwatch/internal/state"
	"parcelwatch/internal/summary"
	"parcelwatch/internal/telegram"
	"parcelwatch/internal/watchlist"
)

type sent struct {
	chat string
	text string
	opt  telegram.SendOptions
}

type fakeAPI struct {
	mu       sync.Mutex
	sent     []sent
	answered []string
	batches  [][]telegram.Update
	errs     []error
	offsets  []int64
	cancel   context.CancelFunc
}

func (f *fakeAPI) SendMessage(_ context.Context, chatID, text string, opt telegram.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{chatID, text, opt})
	return nil
}

func (f *fakeAPI) AnswerCallbackQuery(_ context.Context, id, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answered = append(f.answered, id)
	return nil
}

func (f *fakeAPI) GetUpdates(_ context.Context, offset int64, _ time.Duration) ([]telegram.Update, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offsets = append(f.offsets, offset)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	if len(f.batches) == 0 {
		f.cancel()
		return nil, nil
	}
	b := f.batches[0]
	f.batches = f.batches[1:]
	return b, nil
}

func (f *fakeAPI) last(t *testing.T) sent {
	t.Helper()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

type fakeSource struct {
	parcels []catalog.Parcel
	summary *summary.Summary
	watched watchlist.Set
	err     error
}

func (s *fakeSource) Parcel(key string) (*catalog.Parcel, error) {
	for _, p := range s.parcels {
		if p.Key == key {
			return &p, s.err
		}
	}
	return nil, s.err
}

func (s *fakeSource) Search(fragment string, limit int) ([]catalog.Parcel, int, error) {
	var out []catalog.Parcel
	for _, p := range s.parcels {
		if len(out) < limit && fragment != "" {
			out = append(out, p)
		}
	}
	return out, len(out), s.err
}

func (s *fakeSource) Summary() (*summary.Summary, error) { return s.summary, s.err }
func (s *fakeSource) Watchlist() (watchlist.Set, error)  { return s.watched, s.err }

func strp(s string) *string { return &s }

func source() *fakeSource {
	return &fakeSource{
		parcels: []catalog.Parcel{
			{Key: "100", Properties: map[string]any{"PARCEL_ID": "100", "NAME_ONE": "SMITH", "PROP_STREET": "2450 N 4200 W", "STREET": ""}},
			{Key: "200", Properties: map[string]any{"PARCEL_ID": "200"}},
		},
		summary: &summary.Summary{
			Status:  summary.StatusOK,
			Stats:   summary.Stats{CurrentTotal: 2345, ModifiedCount: 1},
			Samples: summary.Samples{Modified: []string{"100"}},
			Details: summary.Details{Modified: []summary.Change{{
				Key:     "100",
				Changes: []summary.FieldChange{{Field: "STREET", Before: strp("Main St"), After: nil}},
			}}},
		},
	}
}

func newBot(api *fakeAPI, src catalog.Source) *Bot {
	return &Bot{API: api, Source: src, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func message(text string) telegram.Update {
	return telegram.Update{UpdateID: 1, Message: &telegram.Message{MessageID: 9, Chat: &telegram.Chat{ID: 42}, Text: text}}
}

func TestParseCommand(t *testing.T) {
	for _, tc := range []struct{ in, cmd, arg string }{
		{"/Parcel@PlainCityBot  120450007 ", "/parcel", "120450007"},
		{"/house\t2450 N", "/house", "2450 N"},
		{"/changes", "/changes", ""},
		{"   ", "", ""},
	} {
		cmd, arg := ParseCommand(tc.in)
		assert.Equal(t, tc.cmd, cmd, tc.in)
		assert.Equal(t, tc.arg, arg, tc.in)
	}
}

func TestHelpRepliesToMessage(t *testing.T) {
	api := &fakeAPI{}
	require.NoError(t, newBot(api, source()).Handle(context.Background(), message("/start")))
	got := api.last(t)
	assert.Equal(t, "42", got.chat)
	assert.Equal(t, HelpText, got.text)
	assert.EqualValues(t, 9, got.opt.ReplyTo)
}

func TestParcelIncludesLatestChange(t *testing.T) {
	api := &fakeAPI{}
	require.NoError(t, newBot(api, source()).Handle(context.Background(), message("/parcel 100")))
	assert.Equal(t, "Parcel details:\n- PARCEL_ID: 100\n- NAME_ONE: SMITH\n- PROP_STREET: 2450 N 4200 W\n\nLatest recorded change fields:\n- STREET: \"Main St\" -> (absent)", api.last(t).text)
}

func TestParcelUsageAndNotFound(t *testing.T) {
	api := &fakeAPI{}
	b := newBot(api, source())
	require.NoError(t, b.Handle(context.Background(), message("/parcel")))
	assert.Equal(t, "Usage: /parcel <PARCEL_ID>", api.last(t).text)
	require.NoError(t, b.Handle(context.Background(), message("/parcel 999")))
	assert.Equal(t, "No parcel found for PARCEL_ID 999", api.last(t).text)
}

func TestHouseSendsKeyboard(t *testing.T) {
	api := &fakeAPI{}
	require.NoError(t, newBot(api, source()).Handle(context.Background(), message("/house 4200")))
	got := api.last(t)
	assert.Equal(t, "Found 2 match(es) for '4200'. Showing first 2. Tap one:", got.text)
	assert.Equal(t, [][]telegram.Button{
		{{Text: "2450 N 4200 W (100)", CallbackData: "parcel:100"}},
		{{Text: "(no PROP_STREET) (200)", CallbackData: "parcel:200"}},
	}, got.opt.Keyboard)
}

func TestCallbackOpensParcel(t *testing.T) {
	api := &fakeAPI{}
	u := telegram.Update{UpdateID: 3, CallbackQuery: &telegram.CallbackQuery{
		ID: "cq1", Data: "parcel:200",
		Message: &telegram.Message{MessageID: 5, Chat: &telegram.Chat{ID: 7}},
	}}
	require.NoError(t, newBot(api, source()).Handle(context.Background(), u))
	assert.Equal(t, []string{"cq1"}, api.answered)
	assert.Equal(t, "Parcel details:\n- PARCEL_ID: 200", api.last(t).text)
}

func TestChangesAndChange(t *testing.T) {
	api := &fakeAPI{}
	b := newBot(api, source())

	require.NoError(t, b.Handle(context.Background(), message("/changes")))
	assert.Contains(t, api.last(t).text, "- Current parcels: 2,345")
	assert.Contains(t, api.last(t).text, "- Sample changed IDs: 100")

	require.NoError(t, b.Handle(context.Background(), message("/change 100")))
	text := api.last(t).text
	assert.Contains(t, text, "Latest change details for 100:\n- STREET: \"Main St\" -> (absent)")
	assert.Contains(t, text, "-STREET: Main St")
	assert.Contains(t, text, "+STREET: <absent>")

	require.NoError(t, b.Handle(context.Background(), message("/change 200")))
	assert.Equal(t, "No latest-run change details for PARCEL_ID 200", api.last(t).text)
}

func TestChangesWithoutSummary(t *testing.T) {
	api := &fakeAPI{}
	require.NoError(t, newBot(api, &fakeSource{}).Handle(context.Background(), message("/changes")))
	assert.Equal(t, "No change summary file found yet.", api.last(t).text)
}

func TestWatchedTruncates(t *testing.T) {
	keys := make([]string, 0, 35)
	for i := 0; i < 35; i++ {
		keys = append(keys, string(rune('A'+i/26))+string(rune('a'+i%26)))
	}
	api := &fakeAPI{}
	require.NoError(t, newBot(api, &fakeSource{watched: watchlist.New(keys...)}).Handle(context.Background(), message("/watched")))
	text := api.last(t).text
	assert.Contains(t, text, "Watched parcels (35 total):\n- Aa\n")
	assert.Contains(t, text, "\n... and 5 more")

	require.NoError(t, newBot(api, &fakeSource{}).Handle(context.Background(), message("/watched")))
	assert.Equal(t, "No watched parcels configured.", api.last(t).text)
}

func TestSourceErrorIsReturned(t *testing.T) {
	api := &fakeAPI{}
	err := newBot(api, &fakeSource{err: errors.New("disk gone")}).Handle(context.Background(), message("/changes"))
	assert.ErrorContains(t, err, "disk gone")
}

func TestRunPersistsOffsetAndRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cursor := state.Cursor{Path: filepath.Join(t.TempDir(), "offset.txt")}
	require.NoError(t, cursor.Write(10))

	api := &fakeAPI{
		cancel: cancel,
		errs:   []error{errors.New("502 bad gateway")},
		batches: [][]telegram.Update{{
			{UpdateID: 10, Message: &telegram.Message{Chat: &telegram.Chat{ID: 1}, Text: "/help"}},
			{UpdateID: 11, Message: &telegram.Message{Chat: &telegram.Chat{ID: 1}, Text: "hello"}},
		}},
	}
	b := newBot(api, source())
	b.Cursor = cursor
	b.ErrorBackoff = time.Millisecond

	require.NoError(t, b.Run(ctx))

	assert.Equal(t, []int64{10, 10, 12}, api.offsets)
	assert.Len(t, api.sent, 1)
	off, ok, err := cursor.Read()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 12, off)
}

func TestRunWithoutCursorStartsUnset(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	api := &fakeAPI{cancel: cancel}
	require.NoError(t, newBot(api, source()).Run(ctx))
	assert.Equal(t, []int64{-1}, api.offsets)
}
