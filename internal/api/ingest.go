package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/snarelab/hivetrace/internal/auth"
	"github.com/snarelab/hivetrace/internal/metrics"
	"github.com/snarelab/hivetrace/internal/ratelimit"
	"github.com/snarelab/hivetrace/internal/stream"
)

// maxIngestBody caps a single POST /ingest payload.
const maxIngestBody = 16 << 20

// IngestHandler accepts session batches from edge agents and publishes them
// to the stream.
type IngestHandler struct {
	stream  *stream.Client
	limiter *ratelimit.Limiter
	logger  *slog.Logger
}

// NewIngestHandler wires the ingestion API.
func NewIngestHandler(sc *stream.Client, logger *slog.Logger) *IngestHandler {
	return &IngestHandler{stream: sc, limiter: ratelimit.New(), logger: logger}
}

// Routes builds the ingest router. /health and /metrics are public; the data
// endpoints require an agent API key.
func (h *IngestHandler) Routes(apiKeys []string) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/health", h.Health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAPIKey(apiKeys))
		r.Post("/ingest", h.Ingest)
		r.Get("/stats", h.Stats)
	})
	return r
}

// Ingest handles POST /ingest: a JSON array of raw session objects. Each
// element is published to the stream as-is; normalization happens in the
// worker so a malformed session never blocks its batch.
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	if h.limiter.Check(w, r, "ingest") {
		metrics.IngestRejected.WithLabelValues("rate_limited").Inc()
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxIngestBody))
	if err != nil {
		metrics.IngestRejected.WithLabelValues("read_error").Inc()
		jsonError(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	var sessions []json.RawMessage
	if err := json.Unmarshal(body, &sessions); err != nil {
		metrics.IngestRejected.WithLabelValues("not_an_array").Inc()
		jsonError(w, "request body must be a JSON array of sessions", http.StatusUnprocessableEntity)
		return
	}

	// Batch ID ties the agent's response to worker-side log lines.
	batchID := uuid.NewString()

	queued := 0
	for _, sess := range sessions {
		if !isJSONObject(sess) {
			metrics.IngestRejected.WithLabelValues("not_an_object").Inc()
			jsonError(w, "each session must be a JSON object", http.StatusUnprocessableEntity)
			return
		}
		if _, err := h.stream.Publish(r.Context(), sess); err != nil {
			metrics.PublishErrors.Inc()
			h.logger.Error("stream publish failed", "batch_id", batchID, "error", err, "queued", queued)
			jsonError(w, "stream unavailable", http.StatusServiceUnavailable)
			return
		}
		queued++
		metrics.SessionsIngested.Inc()
	}

	h.logger.Info("sessions queued", "batch_id", batchID, "count", queued, "remote", r.RemoteAddr)
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "accepted",
		"batch_id":        batchID,
		"sessions_queued": queued,
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	})
}

// Health handles GET /health. The endpoint stays 200 with a degraded status
// when Redis is down so load balancers keep routing to a recovering node.
func (h *IngestHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	redisStatus := "connected"
	if err := h.stream.Ping(r.Context()); err != nil {
		status = "degraded"
		redisStatus = "disconnected"
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    status,
		"redis":     redisStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Stats handles GET /stats: stream depth and consumer-group lag.
func (h *IngestHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.limiter.Check(w, r, "stats") {
		return
	}
	info, err := h.stream.Stats(r.Context())
	if err != nil {
		jsonError(w, "failed to read stream info", http.StatusServiceUnavailable)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"stream_length": info.Length,
		"stream_groups": info.Groups,
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	})
}

func isJSONObject(raw json.RawMessage) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return b == '{'
		}
	}
	return false
}
