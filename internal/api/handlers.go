package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"tradesim/internal/store"
)

const defaultRunLimit = 50

// FillReader reads the fills exported for a run.
type FillReader interface {
	ReadFills(runID string) ([]store.TradeRecord, error)
}

// handlers serves the read-only journal endpoints.
type handlers struct {
	journal store.RunJournal
	fills   FillReader // optional
	log     *slog.Logger
}

// NewRouter returns a chi router exposing journal over HTTP. fills may be
// nil, in which case the fills endpoint answers 404.
func NewRouter(journal store.RunJournal, fills FillReader, log *slog.Logger) chi.Router {
	h := &handlers{journal: journal, fills: fills, log: log}

	r := chi.NewRouter()
	r.Use(requestLogging(log))
	r.Use(corsMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/runs", func(r chi.Router) {
		r.Get("/", h.listRuns)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getRun)
			r.Get("/orders", h.listOrders)
			r.Get("/trades", h.listTrades)
			r.Get("/positions", h.listPositions)
			r.Get("/fills", h.listFills)
		})
	})
	return r
}

func (h *handlers) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	runs, err := h.journal.ListRuns(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(runs))
}

func (h *handlers) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.journal.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *handlers) listOrders(w http.ResponseWriter, r *http.Request) {
	id, ok := h.run(w, r)
	if !ok {
		return
	}
	orders, err := h.journal.ListOrders(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(orders))
}

func (h *handlers) listTrades(w http.ResponseWriter, r *http.Request) {
	id, ok := h.run(w, r)
	if !ok {
		return
	}
	trades, err := h.journal.ListTrades(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(trades))
}

func (h *handlers) listPositions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.run(w, r)
	if !ok {
		return
	}
	positions, err := h.journal.ListPositions(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(positions))
}

func (h *handlers) listFills(w http.ResponseWriter, r *http.Request) {
	id, ok := h.run(w, r)
	if !ok {
		return
	}
	if h.fills == nil {
		writeError(w, http.StatusNotFound, "not_found", "fill export is not configured")
		return
	}
	fills, err := h.fills.ReadFills(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(fills))
}

// run checks that the run named in the path exists.
func (h *handlers) run(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := h.journal.GetRun(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return "", false
	}
	return id, true
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "nothing recorded for run "+chi.URLParam(r, "id"))
		return
	}
	h.log.Error("journal request failed", "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "internal_error", "journal unavailable")
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// ---------------------------------------------------------------------------
// Response helpers and middleware
// ---------------------------------------------------------------------------

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogging(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			log.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration", time.Since(start),
			)
		})
	}
}

// statusWriter captures the status code written by a handler.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}
