package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snarelab/hivetrace/internal/model"
	"github.com/snarelab/hivetrace/internal/store"
)

const queryTestDate = "2026-08-20"

func queryRouter(t *testing.T) http.Handler {
	t.Helper()

	dir := t.TempDir()
	st := store.New(dir, slog.Default())
	require.NoError(t, st.PersistBatch([]*model.EvaluatedSession{
		querySession("hot", 85, model.ThreatCritical),
		querySession("warm", 55, model.ThreatHigh),
		querySession("cold", 10, model.ThreatInfo),
	}))

	h := NewQueryHandler(store.NewReader(dir), slog.Default())
	h.now = func() time.Time {
		return time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	}
	return h.Routes([]string{"*"})
}

func querySession(uuid string, risk int, level string) *model.EvaluatedSession {
	s := &model.EvaluatedSession{
		EnrichedSession: model.EnrichedSession{
			CanonicalSession: model.CanonicalSession{
				SessUUID:    uuid,
				PeerIP:      "203.0.113.10",
				UserAgent:   "sqlmap/1.7",
				ProcessedAt: queryTestDate + "T10:00:00Z",
				AttackTypes: []string{"sqli"},
			},
		},
		RiskScore:   risk,
		ThreatLevel: level,
		AlertLevel:  level,
	}
	if level == model.ThreatCritical || level == model.ThreatHigh {
		s.RequiresReview = true
	}
	return s
}

func get(t *testing.T, router http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var body map[string]any
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
	}
	return rec, body
}

func TestListSessionsDefaultsToToday(t *testing.T) {
	router := queryRouter(t)

	rec, body := get(t, router, "/api/sessions")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, body["total"])
}

func TestListSessionsFilters(t *testing.T) {
	router := queryRouter(t)

	rec, body := get(t, router, "/api/sessions?min_risk=50")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["total"])

	rec, body = get(t, router, "/api/sessions?threat_level=CRITICAL")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["total"])
}

func TestListSessionsValidation(t *testing.T) {
	router := queryRouter(t)

	for _, path := range []string{
		"/api/sessions?date=not-a-date",
		"/api/sessions?min_risk=abc",
		"/api/sessions?min_risk=101",
		"/api/sessions?limit=0",
		"/api/sessions?limit=9999",
		"/api/sessions?offset=-1",
		"/api/sessions?sort_by=color",
		"/api/sessions?sort_order=sideways",
		"/api/sessions?requires_review=maybe",
	} {
		rec, _ := get(t, router, path)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

func TestGetSessionByUUID(t *testing.T) {
	router := queryRouter(t)

	rec, body := get(t, router, "/api/sessions/hot")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hot", body["sess_uuid"])

	rec, _ = get(t, router, "/api/sessions/does-not-exist")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAlertsSortedByRisk(t *testing.T) {
	router := queryRouter(t)

	rec, body := get(t, router, "/api/alerts?date="+queryTestDate)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["count"])

	alerts := body["alerts"].([]any)
	first := alerts[0].(map[string]any)
	assert.Equal(t, "hot", first["sess_uuid"])

	rec, body = get(t, router, "/api/alerts?date="+queryTestDate+"&level=high")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["count"])

	rec, _ = get(t, router, "/api/alerts?level=extreme")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatisticsEndpoint(t *testing.T) {
	router := queryRouter(t)

	rec, body := get(t, router, "/api/statistics?date="+queryTestDate)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, body["total_sessions"])

	// Range queries validate their bounds.
	rec, _ = get(t, router, "/api/statistics?start_date=2026-08-21&end_date=2026-08-20")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = get(t, router, "/api/statistics?start_date=2026-08-19&end_date=2026-08-21")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, body["total_sessions"])
}

func TestThreatIntelligenceEndpoint(t *testing.T) {
	router := queryRouter(t)

	rec, body := get(t, router, "/api/threat-intelligence?date="+queryTestDate)
	require.Equal(t, http.StatusOK, rec.Code)
	// Two sessions are at or above the intel floor, same source IP.
	assert.EqualValues(t, 1, body["malicious_ips_count"])
}

func TestDashboardEndpoint(t *testing.T) {
	router := queryRouter(t)

	rec, body := get(t, router, "/api/dashboard")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, queryTestDate, body["date"])
	stats := body["statistics"].(map[string]any)
	assert.EqualValues(t, 3, stats["total_sessions"])
}

func TestDatesEndpoint(t *testing.T) {
	router := queryRouter(t)

	rec, body := get(t, router, "/api/dates")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["count"])
}

func TestGeoDistributionEndpoint(t *testing.T) {
	router := queryRouter(t)

	rec, body := get(t, router, "/api/geo-distribution?date="+queryTestDate)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, body["total"])
	assert.EqualValues(t, 3, body["unknown"])
}

func TestQueryHealth(t *testing.T) {
	router := queryRouter(t)

	rec, body := get(t, router, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
}
