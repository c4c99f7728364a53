package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/snarelab/hivetrace/internal/metrics"
	"github.com/snarelab/hivetrace/internal/ratelimit"
	"github.com/snarelab/hivetrace/internal/store"
)

// QueryHandler serves the read-only analytics API over the data directory.
type QueryHandler struct {
	reader  *store.Reader
	limiter *ratelimit.Limiter
	logger  *slog.Logger
	now     func() time.Time
}

// NewQueryHandler wires the query API.
func NewQueryHandler(reader *store.Reader, logger *slog.Logger) *QueryHandler {
	return &QueryHandler{
		reader:  reader,
		limiter: ratelimit.New(),
		logger:  logger,
		now:     time.Now,
	}
}

// Routes builds the query router with CORS for dashboard frontends.
func (h *QueryHandler) Routes(corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/sessions", h.ListSessions)
		r.Get("/sessions/{uuid}", h.GetSession)
		r.Get("/alerts", h.ListAlerts)
		r.Get("/statistics", h.Statistics)
		r.Get("/threat-intelligence", h.ThreatIntel)
		r.Get("/dashboard", h.Dashboard)
		r.Get("/geo-distribution", h.GeoDistribution)
		r.Get("/dates", h.Dates)
	})
	return r
}

// ListSessions handles GET /api/sessions with filtering, sorting and
// pagination over one day's partition.
func (h *QueryHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	if h.limiter.Check(w, r, "query") {
		return
	}

	q := r.URL.Query()
	date, ok := h.dateParam(w, q.Get("date"))
	if !ok {
		return
	}

	filter := store.QueryFilter{
		Date:        date,
		ThreatLevel: q.Get("threat_level"),
		AttackType:  q.Get("attack_type"),
		PeerIP:      q.Get("peer_ip"),
		SessUUID:    q.Get("sess_uuid"),
		SortBy:      q.Get("sort_by"),
		SortOrder:   q.Get("sort_order"),
	}

	if v := q.Get("min_risk"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 100 {
			jsonError(w, "min_risk must be an integer between 0 and 100", http.StatusBadRequest)
			return
		}
		filter.MinRiskScore = n
	}
	if v := q.Get("requires_review"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			jsonError(w, "requires_review must be true or false", http.StatusBadRequest)
			return
		}
		filter.RequiresReview = &b
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > store.MaxQueryLimit {
			jsonError(w, "limit must be between 1 and 500", http.StatusBadRequest)
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			jsonError(w, "offset must be a non-negative integer", http.StatusBadRequest)
			return
		}
		filter.Offset = n
	}
	switch filter.SortBy {
	case "", "processed_at", "risk_score":
	default:
		jsonError(w, "sort_by must be processed_at or risk_score", http.StatusBadRequest)
		return
	}
	switch filter.SortOrder {
	case "", "asc", "desc":
	default:
		jsonError(w, "sort_order must be asc or desc", http.StatusBadRequest)
		return
	}

	result, err := h.reader.Query(filter)
	if err != nil {
		h.fail(w, "sessions", err)
		return
	}
	metrics.QueryRequests.WithLabelValues("sessions", "2xx").Inc()
	respondJSON(w, http.StatusOK, result)
}

// GetSession handles GET /api/sessions/{uuid}.
func (h *QueryHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	if h.limiter.Check(w, r, "query") {
		return
	}

	uuid := chi.URLParam(r, "uuid")
	sess, err := h.reader.GetSession(uuid, h.now())
	if errors.Is(err, store.ErrNotFound) {
		metrics.QueryRequests.WithLabelValues("session", "4xx").Inc()
		jsonError(w, "session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.fail(w, "session", err)
		return
	}
	metrics.QueryRequests.WithLabelValues("session", "2xx").Inc()
	respondJSON(w, http.StatusOK, sess)
}

// ListAlerts handles GET /api/alerts: critical and high alerts for a day,
// highest risk first.
func (h *QueryHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	if h.limiter.Check(w, r, "query") {
		return
	}

	q := r.URL.Query()
	date, ok := h.dateParam(w, q.Get("date"))
	if !ok {
		return
	}
	level := strings.ToLower(q.Get("level"))
	switch level {
	case "", "critical", "high":
	default:
		jsonError(w, "level must be critical or high", http.StatusBadRequest)
		return
	}

	alerts, err := h.reader.Alerts(date, level)
	if err != nil {
		h.fail(w, "alerts", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"date":   date,
		"level":  level,
		"count":  len(alerts),
		"alerts": alerts,
	})
}

// Statistics handles GET /api/statistics, for one day or an inclusive
// start_date/end_date range.
func (h *QueryHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	if h.limiter.Check(w, r, "query") {
		return
	}

	q := r.URL.Query()
	if q.Get("start_date") != "" || q.Get("end_date") != "" {
		from, err := time.Parse(store.DateFormat, q.Get("start_date"))
		if err != nil {
			jsonError(w, "start_date must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		to, err := time.Parse(store.DateFormat, q.Get("end_date"))
		if err != nil {
			jsonError(w, "end_date must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		if to.Before(from) {
			jsonError(w, "end_date must not precede start_date", http.StatusBadRequest)
			return
		}
		merged, err := h.reader.StatisticsRange(from, to)
		if err != nil {
			h.fail(w, "statistics", err)
			return
		}
		respondJSON(w, http.StatusOK, merged)
		return
	}

	date, ok := h.dateParam(w, q.Get("date"))
	if !ok {
		return
	}
	sum, err := h.reader.Statistics(date)
	if err != nil {
		h.fail(w, "statistics", err)
		return
	}
	respondJSON(w, http.StatusOK, sum)
}

// ThreatIntel handles GET /api/threat-intelligence.
func (h *QueryHandler) ThreatIntel(w http.ResponseWriter, r *http.Request) {
	if h.limiter.Check(w, r, "query") {
		return
	}

	date, ok := h.dateParam(w, r.URL.Query().Get("date"))
	if !ok {
		return
	}
	feed, err := h.reader.ThreatIntel(date)
	if err != nil {
		h.fail(w, "threat-intelligence", err)
		return
	}
	respondJSON(w, http.StatusOK, feed)
}

// Dashboard handles GET /api/dashboard, defaulting to today.
func (h *QueryHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	if h.limiter.Check(w, r, "query") {
		return
	}

	date, ok := h.dateParam(w, r.URL.Query().Get("date"))
	if !ok {
		return
	}
	dash, err := h.reader.Dashboard(date)
	if err != nil {
		h.fail(w, "dashboard", err)
		return
	}
	respondJSON(w, http.StatusOK, dash)
}

// GeoDistribution handles GET /api/geo-distribution.
func (h *QueryHandler) GeoDistribution(w http.ResponseWriter, r *http.Request) {
	if h.limiter.Check(w, r, "query") {
		return
	}

	date, ok := h.dateParam(w, r.URL.Query().Get("date"))
	if !ok {
		return
	}
	geo, err := h.reader.GeoDistribution(date)
	if err != nil {
		h.fail(w, "geo-distribution", err)
		return
	}
	respondJSON(w, http.StatusOK, geo)
}

// Dates handles GET /api/dates: every day with processed data, newest first.
func (h *QueryHandler) Dates(w http.ResponseWriter, r *http.Request) {
	if h.limiter.Check(w, r, "query") {
		return
	}

	dates, err := h.reader.AvailableDates()
	if err != nil {
		h.fail(w, "dates", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"dates": dates, "count": len(dates)})
}

// Health handles GET /health, including a glance at the data directory.
func (h *QueryHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	dates, err := h.reader.AvailableDates()
	if err != nil {
		status = "degraded"
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          status,
		"available_dates": len(dates),
		"timestamp":       h.now().UTC().Format(time.RFC3339),
	})
}

// dateParam validates an optional date parameter, defaulting to today (UTC).
func (h *QueryHandler) dateParam(w http.ResponseWriter, raw string) (string, bool) {
	if raw == "" {
		return h.now().UTC().Format(store.DateFormat), true
	}
	if _, err := time.Parse(store.DateFormat, raw); err != nil {
		jsonError(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return "", false
	}
	return raw, true
}

func (h *QueryHandler) fail(w http.ResponseWriter, endpoint string, err error) {
	metrics.QueryRequests.WithLabelValues(endpoint, "5xx").Inc()
	h.logger.Error("query failed", "endpoint", endpoint, "error", err)
	jsonError(w, "internal error", http.StatusInternalServerError)
}
