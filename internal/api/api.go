// Package api serves the latest summary and parcel lookups over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"parcelwatch/internal/catalog"
	"parcelwatch/internal/diff"
	"parcelwatch/internal/summary"
)

// DefaultSearchLimit bounds /parcels?q= results unless limit is given.
const DefaultSearchLimit = 10

var (
	errNoSummary = errors.New("no change summary recorded yet")
	errNoChange  = errors.New("no change recorded for parcel in latest run")
	errNoParcel  = errors.New("parcel not found")
	errNoQuery   = errors.New("missing q parameter")
)

// Handler routes read-only queries to a catalog.Source.
type Handler struct {
	src    catalog.Source
	logger *slog.Logger
	router chi.Router
}

// New builds the router.
func New(src catalog.Source, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{src: src, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", h.handleHealth)
	r.Get("/summary", h.handleSummary)
	r.Get("/changes/{key}", h.handleChange)
	r.Get("/parcels", h.handleSearch)
	r.Get("/parcels/{key}", h.handleParcel)
	r.Get("/watchlist", h.handleWatchlist)
	h.router = r
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Debug("api: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	s, ok := h.summary(w)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, s)
}

// changeResponse is a recorded change plus its unified patch.
type changeResponse struct {
	summary.Change
	Patch string `json:"patch"`
}

func (h *Handler) handleChange(w http.ResponseWriter, r *http.Request) {
	s, ok := h.summary(w)
	if !ok {
		return
	}
	c, found := s.ChangeFor(chi.URLParam(r, "key"))
	if !found {
		h.writeError(w, http.StatusNotFound, errNoChange)
		return
	}
	patch, _ := diff.Fields(c, diff.Options{})
	h.writeJSON(w, http.StatusOK, changeResponse{Change: c, Patch: patch})
}

func (h *Handler) handleParcel(w http.ResponseWriter, r *http.Request) {
	p, err := h.src.Parcel(chi.URLParam(r, "key"))
	if err != nil {
		h.fail(w, err)
		return
	}
	if p == nil {
		h.writeError(w, http.StatusNotFound, errNoParcel)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

type searchResponse struct {
	Query   string           `json:"query"`
	Total   int              `json:"total"`
	Parcels []catalog.Parcel `json:"parcels"`
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		h.writeError(w, http.StatusBadRequest, errNoQuery)
		return
	}
	matches, total, err := h.src.Search(q, queryInt(r, "limit", DefaultSearchLimit))
	if err != nil {
		h.fail(w, err)
		return
	}
	if matches == nil {
		matches = []catalog.Parcel{}
	}
	h.writeJSON(w, http.StatusOK, searchResponse{Query: q, Total: total, Parcels: matches})
}

func (h *Handler) handleWatchlist(w http.ResponseWriter, r *http.Request) {
	set, err := h.src.Watchlist()
	if err != nil {
		h.fail(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"size": set.Len(), "keys": set.Sorted()})
}

func (h *Handler) summary(w http.ResponseWriter) (*summary.Summary, bool) {
	s, err := h.src.Summary()
	if err != nil {
		h.fail(w, err)
		return nil, false
	}
	if s == nil {
		h.writeError(w, http.StatusNotFound, errNoSummary)
		return nil, false
	}
	return s, true
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	h.logger.Error("api: lookup failed", "err", err)
	h.writeError(w, http.StatusInternalServerError, err)
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("api: write response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, code int, err error) {
	h.writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return def
	}
	return v
}
