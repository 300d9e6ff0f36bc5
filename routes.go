package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"marketfeed/internal/cache"
	"marketfeed/internal/market"
	"marketfeed/internal/service"
)

type viewResponse struct {
	OK       bool   `json:"ok"`
	Data     any    `json:"data,omitempty"`
	Error    string `json:"error,omitempty"`
	CachedAt string `json:"cachedAt,omitempty"`
	Stale    bool   `json:"stale,omitempty"`
}

func newMux(svc *service.Service, logger *zap.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	// Push channel: snapshot first, then live updates.
	mux.HandleFunc("/ws", svc.Hub().ServeWS)

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Health())
	})

	// API: single symbol, fresh tick or REST fallback
	mux.HandleFunc("/api/tick", func(w http.ResponseWriter, r *http.Request) {
		symbol := strings.TrimSpace(r.URL.Query().Get("symbol"))
		if symbol == "" {
			writeJSON(w, http.StatusBadRequest, viewResponse{Error: "symbol required"})
			return
		}
		t, meta, err := svc.Quote(r.Context(), symbol)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, withMeta(viewResponse{OK: true, Data: t}, meta))
	})

	// API: every instrument in one category
	mux.HandleFunc("/api/quotes", func(w http.ResponseWriter, r *http.Request) {
		cat, err := market.ParseCategory(r.URL.Query().Get("category"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, viewResponse{Error: err.Error()})
			return
		}
		ticks, meta, err := svc.Quotes(r.Context(), cat)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, withMeta(viewResponse{OK: true, Data: ticks}, meta))
	})

	// API: cached derived views (movers, heatmap, correlation, series, strength)
	mux.HandleFunc("/api/view", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		data, meta, err := svc.GetCachedOrFresh(r.Context(), strings.TrimSpace(q.Get("category")), strings.TrimSpace(q.Get("param")))
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, withMeta(viewResponse{OK: true, Data: data}, meta))
	})

	return mux
}

// withMeta annotates a reply served from the cache.
func withMeta(out viewResponse, meta cache.Meta) viewResponse {
	out.Stale = meta.Stale
	if !meta.CachedAt.IsZero() {
		out.CachedAt = meta.CachedAt.UTC().Format(time.RFC3339)
	}
	return out
}

func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, market.ErrUnknownSymbol):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrInvalidView):
		status = http.StatusBadRequest
	case errors.Is(err, market.ErrNoData):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		logger.Warn("request failed", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, viewResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
