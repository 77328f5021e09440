// Package api is the HTTP front end for the kv coordinator. It is a thin
// adapter: it decodes requests into (key, value) pairs, calls the
// coordinator's synchronous operations, and encodes outcomes. All caching
// and durability decisions live below it.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/oriys/quartz/internal/cache"
	"github.com/oriys/quartz/internal/kv"
	"github.com/oriys/quartz/internal/metrics"
)

// maxBodySize caps PUT request bodies at 10 MiB.
const maxBodySize = 10 << 20

// Service is the coordinator surface the HTTP layer drives.
type Service interface {
	Get(ctx context.Context, key string) ([]byte, kv.Source, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Stats() cache.Stats
}

// Pinger reports durable-store connectivity for readiness probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler handles kv HTTP requests.
type Handler struct {
	KV    Service
	Store Pinger
}

// RegisterRoutes registers all routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /kv", h.PutKV)
	mux.HandleFunc("POST /kv/{$}", h.PutKV)
	mux.HandleFunc("GET /kv", h.GetKVQuery)
	mux.HandleFunc("GET /kv/{key}", h.GetKV)
	mux.HandleFunc("DELETE /kv/{key}", h.DeleteKV)

	mux.HandleFunc("GET /stats", h.Stats)
	mux.HandleFunc("GET /metrics", h.Stats)
	mux.Handle("GET /metrics/prometheus", metrics.Handler())

	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /health/live", h.HealthLive)
	mux.HandleFunc("GET /health/ready", h.HealthReady)
}

type putRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// PutKV handles POST /kv. The body is either JSON {"key":..,"value":..} or
// a single form-urlencoded pair whose field name is the key.
func (h *Handler) PutKV(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	key, value, ok := decodePutBody(w, r)
	if !ok {
		metrics.RecordRequest("put", "error", elapsedMs(start))
		return
	}

	if err := h.KV.Put(r.Context(), key, value); err != nil {
		metrics.RecordRequest("put", "error", elapsedMs(start))
		writeError(w, http.StatusInternalServerError, "store write failed")
		return
	}

	metrics.RecordRequest("put", "ok", elapsedMs(start))
	writeJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
}

// GetKV handles GET /kv/{key}. The mux hands over the path segment
// already percent-decoded.
func (h *Handler) GetKV(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "missing key")
		return
	}
	h.serveGet(w, r, key)
}

// GetKVQuery handles GET /kv?key=... for clients that cannot put the key
// in the path.
func (h *Handler) GetKVQuery(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "missing key")
		return
	}
	h.serveGet(w, r, key)
}

func (h *Handler) serveGet(w http.ResponseWriter, r *http.Request, key string) {
	start := time.Now()

	value, source, err := h.KV.Get(r.Context(), key)
	if err != nil {
		metrics.RecordRequest("get", "not_found", elapsedMs(start))
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	metrics.RecordRequest("get", "ok", elapsedMs(start))
	writeJSON(w, http.StatusOK, map[string]string{
		"key":    key,
		"value":  string(value),
		"source": string(source),
	})
}

// DeleteKV handles DELETE /kv/{key}.
func (h *Handler) DeleteKV(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	key := r.PathValue("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "missing key")
		return
	}

	switch err := h.KV.Delete(r.Context(), key); {
	case err == nil:
		metrics.RecordRequest("delete", "ok", elapsedMs(start))
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	case errors.Is(err, kv.ErrNotFound):
		metrics.RecordRequest("delete", "not_found", elapsedMs(start))
		writeError(w, http.StatusNotFound, "not found")
	default:
		metrics.RecordRequest("delete", "error", elapsedMs(start))
		writeError(w, http.StatusInternalServerError, "store delete failed")
	}
}

// Stats handles GET /stats and GET /metrics with a JSON snapshot of the
// cache counters.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats := h.KV.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"cache_hits":   stats.Hits,
		"cache_misses": stats.Misses,
		"cache_items":  stats.Items,
	})
}

// Health handles GET /health with component status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	storeOK := h.Store != nil && h.Store.Ping(ctx) == nil
	status := "ok"
	if !storeOK {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": status,
		"components": map[string]any{
			"store": storeOK,
		},
	})
}

// HealthLive handles GET /health/live - process is up.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HealthReady handles GET /health/ready - ready to serve, store reachable.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.Store == nil || h.Store.Ping(ctx) != nil {
		writeError(w, http.StatusServiceUnavailable, "store unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func decodePutBody(w http.ResponseWriter, r *http.Request) (key string, value []byte, ok bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	ct := r.Header.Get("Content-Type")
	if strings.Contains(ct, "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid form")
			return "", nil, false
		}
		// The body is a single pair: the field name is the key.
		if len(r.PostForm) != 1 {
			writeError(w, http.StatusBadRequest, "expected exactly one key/value pair")
			return "", nil, false
		}
		for k, vs := range r.PostForm {
			key = k
			value = []byte(vs[0])
		}
	} else {
		var req putRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return "", nil, false
		}
		key = req.Key
		value = []byte(req.Value)
	}

	if key == "" {
		writeError(w, http.StatusBadRequest, "missing key")
		return "", nil, false
	}
	return key, value, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
