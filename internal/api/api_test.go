package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parcelwatch/internal/catalog"
	"parcelwatch/internal/summary"
	"parcelwatch/internal/watchlist"
)

type stubSource struct {
	parcels []catalog.Parcel
	summary *summary.Summary
	watched watchlist.Set
	err     error
	limit   int
}

func (s *stubSource) Parcel(key string) (*catalog.Parcel, error) {
	for _, p := range s.parcels {
		if p.Key == key {
			return &p, s.err
		}
	}
	return nil, s.err
}

func (s *stubSource) Search(fragment string, limit int) ([]catalog.Parcel, int, error) {
	s.limit = limit
	return s.parcels[:min(limit, len(s.parcels))], len(s.parcels), s.err
}

func (s *stubSource) Summary() (*summary.Summary, error) { return s.summary, s.err }
func (s *stubSource) Watchlist() (watchlist.Set, error)  { return s.watched, s.err }

func strp(s string) *string { return &s }

func serve(t *testing.T, src catalog.Source, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	h := New(src, slog.New(slog.NewTextHandler(io.Discard, nil)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec, body
}

func withSummary() *stubSource {
	return &stubSource{
		parcels: []catalog.Parcel{
			{Key: "100", Properties: map[string]any{"PROP_STREET": "2450 N 4200 W"}},
			{Key: "200", Properties: map[string]any{"PROP_STREET": "2475 N 4200 W"}},
		},
		summary: &summary.Summary{
			Status: summary.StatusOK,
			Stats:  summary.Stats{CurrentTotal: 2, ModifiedCount: 1},
			Details: summary.Details{Modified: []summary.Change{{
				Key:     "100",
				Changes: []summary.FieldChange{{Field: "NAME_ONE", Before: strp("SMITH"), After: strp("JONES")}},
			}}},
		},
		watched: watchlist.New("200", "100"),
	}
}

func TestHealthz(t *testing.T) {
	rec, body := serve(t, &stubSource{}, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestSummary(t *testing.T) {
	rec, body := serve(t, withSummary(), "/summary")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	rec, body = serve(t, &stubSource{}, "/summary")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, errNoSummary.Error(), body["error"])
}

func TestChange(t *testing.T) {
	rec, body := serve(t, withSummary(), "/changes/100")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "100", body["key"])
	assert.Contains(t, body["patch"], "-NAME_ONE: SMITH\n+NAME_ONE: JONES\n")
	changes := body["changes"].([]any)
	require.Len(t, changes, 1)
	assert.Equal(t, "JONES", changes[0].(map[string]any)["after"])

	rec, _ = serve(t, withSummary(), "/changes/200")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestParcel(t *testing.T) {
	rec, body := serve(t, withSummary(), "/parcels/200")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "200", body["key"])

	rec, _ = serve(t, withSummary(), "/parcels/300")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSearch(t *testing.T) {
	src := withSummary()
	rec, body := serve(t, src, "/parcels?q=4200&limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["total"])
	assert.Len(t, body["parcels"], 1)
	assert.Equal(t, 1, src.limit)

	_, _ = serve(t, src, "/parcels?q=4200&limit=abc")
	assert.Equal(t, DefaultSearchLimit, src.limit)

	rec, _ = serve(t, src, "/parcels")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWatchlist(t *testing.T) {
	_, body := serve(t, withSummary(), "/watchlist")
	assert.EqualValues(t, 2, body["size"])
	assert.Equal(t, []any{"100", "200"}, body["keys"])
}

func TestSourceErrorIs500(t *testing.T) {
	rec, body := serve(t, &stubSource{err: errors.New("read failed")}, "/parcels/1")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "read failed", body["error"])
}

type brokenWriter struct {
	header http.Header
	code   int
}

func (b *brokenWriter) Header() http.Header       { return b.header }
func (b *brokenWriter) WriteHeader(code int)      { b.code = code }
func (b *brokenWriter) Write([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestWriteFailureIsLogged(t *testing.T) {
	var logs bytes.Buffer
	h := New(&stubSource{}, slog.New(slog.NewTextHandler(&logs, nil)))
	w := &brokenWriter{header: http.Header{}}

	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.code)
	assert.Contains(t, logs.String(), "api: write response")
	assert.Contains(t, logs.String(), "connection reset")
}
