package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snarelab/hivetrace/internal/model"
)

func canonicalScan() *model.CanonicalSession {
	return &model.CanonicalSession{
		SessUUID:             "scan-1",
		PeerIP:               "203.0.113.10",
		UserAgent:            "sqlmap/1.7.2#stable (https://sqlmap.org)",
		StartTime:            "2026-08-20T11:50:00Z",
		EndTime:              "2026-08-20T11:58:00Z",
		AttackTypes:          []string{"index", "xss", "sqli", "cmd_exec"},
		RequestsPerSecond:    6.5,
		TotalRequests:        12,
		UniqueAttackTypes:    4,
		HasMaliciousActivity: true,
		Paths: []model.Path{
			{Path: "/login", Method: "POST", PostData: "id=1' OR '1'='1", ResponseStatus: 500},
			{Path: "/login", Method: "POST", PostData: "cmd=;cat /etc/passwd", ResponseStatus: 500},
			{Path: "/", Method: "GET", ResponseStatus: 200},
		},
	}
}

func TestEnrichSeverityCritical(t *testing.T) {
	s := New(nil).Enrich(canonicalScan())
	assert.Equal(t, "critical", s.ThreatIntelligence.Severity)
	assert.InDelta(t, 0.9, s.ThreatIntelligence.Confidence, 1e-9)
	assert.True(t, s.ThreatIntelligence.IsAutomated)
	assert.Contains(t, s.ThreatIntelligence.AttackCategories, "Remote Code Execution")
	assert.Contains(t, s.ThreatIntelligence.AttackCategories, "Web Application Attack")
}

func TestEnrichSeverityLadder(t *testing.T) {
	cases := []struct {
		attacks    []string
		severity   string
		confidence float64
	}{
		{[]string{"sqli"}, "high", 0.8},
		{[]string{"xss"}, "medium", 0.7},
		{[]string{"index"}, "low", 0.5},
		{nil, "info", 0.3},
	}
	for _, tc := range cases {
		c := &model.CanonicalSession{AttackTypes: tc.attacks}
		s := New(nil).Enrich(c)
		assert.Equal(t, tc.severity, s.ThreatIntelligence.Severity, "attacks %v", tc.attacks)
		assert.InDelta(t, tc.confidence, s.ThreatIntelligence.Confidence, 1e-9)
	}
}

func TestEscalationDetection(t *testing.T) {
	c := &model.CanonicalSession{AttackTypes: []string{"index", "xss", "sqli", "cmd_exec"}}
	s := New(nil).Enrich(c)
	assert.True(t, s.AttackPatterns.EscalationDetected)

	// De-escalating sequence is not an escalation.
	c = &model.CanonicalSession{AttackTypes: []string{"cmd_exec", "xss", "index"}}
	s = New(nil).Enrich(c)
	assert.False(t, s.AttackPatterns.EscalationDetected)

	// A single attack type never escalates.
	c = &model.CanonicalSession{AttackTypes: []string{"sqli", "sqli"}}
	s = New(nil).Enrich(c)
	assert.False(t, s.AttackPatterns.EscalationDetected)
}

func TestPatternSignatureSortedUnique(t *testing.T) {
	c := &model.CanonicalSession{AttackTypes: []string{"sqli", "xss", "sqli"}}
	s := New(nil).Enrich(c)
	assert.Equal(t, "sqli-xss", s.AttackPatterns.PatternSignature)
}

func TestAnalyzeUserAgent(t *testing.T) {
	info := AnalyzeUserAgent("sqlmap/1.7.2#stable")
	assert.True(t, info.IsScanner)
	assert.Equal(t, "sqlmap", info.ToolIdentified)
	assert.True(t, info.Suspicious)

	info = AnalyzeUserAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	assert.True(t, info.IsBrowser)
	assert.False(t, info.IsScanner)
	assert.False(t, info.Suspicious)

	info = AnalyzeUserAgent("Googlebot/2.1 (+http://www.google.com/bot.html)")
	assert.True(t, info.IsBot)

	info = AnalyzeUserAgent("-")
	assert.True(t, info.Suspicious)
}

func TestRequestPatterns(t *testing.T) {
	s := New(nil).Enrich(canonicalScan())
	assert.Equal(t, 2, s.RequestPatterns.UniquePaths)
	assert.True(t, s.RequestPatterns.HasRepeatedPaths)
	assert.InDelta(t, 2.0/3.0, s.RequestPatterns.PathDiversity, 1e-9)
	assert.Equal(t, 2, s.RequestPatterns.HTTPMethods["POST"])
	assert.Equal(t, 1, s.RequestPatterns.HTTPMethods["GET"])
}

func TestPayloadAnalysis(t *testing.T) {
	c := &model.CanonicalSession{Paths: []model.Path{
		{Path: "/files?p=..%2f..%2fetc%2fpasswd"},
		{Path: "/run", PostData: "x=;cat /etc/shadow"},
	}}
	s := New(nil).Enrich(c)
	assert.Contains(t, s.PayloadAnalysis.EncodingDetected, "url_encoded")
	assert.True(t, s.PayloadAnalysis.HasEncodedContent)
	assert.True(t, s.PayloadAnalysis.HasCommandChaining)
	assert.True(t, s.PayloadAnalysis.HasPathTraversalPattern)
	assert.Positive(t, s.PayloadAnalysis.TotalPayloadLength)
}

func TestTemporalPatterns(t *testing.T) {
	s := New(nil).Enrich(canonicalScan())
	assert.InDelta(t, 480.0, s.TemporalPatterns.DurationSeconds, 1e-9)
	assert.True(t, s.TemporalPatterns.IsProlonged)
	assert.Equal(t, "morning", s.TemporalPatterns.TimeOfDay)
}

func TestIPReputationPrivate(t *testing.T) {
	c := canonicalScan()
	c.PeerIP = "192.168.1.50"
	s := New(nil).Enrich(c)
	assert.True(t, s.IPReputation.IsPrivate)
	assert.Contains(t, s.IPReputation.Notes, "Private IP address")

	c.PeerIP = "203.0.113.10"
	s = New(nil).Enrich(c)
	assert.False(t, s.IPReputation.IsPrivate)
	assert.InDelta(t, 0.5, s.IPReputation.ReputationScore, 1e-9)
}

func TestAttackPhases(t *testing.T) {
	s := New(nil).Enrich(canonicalScan())
	assert.Contains(t, s.AttackPhases, "exploitation")
	assert.Contains(t, s.AttackPhases, "persistence_attempt")

	recon := &model.CanonicalSession{AttackTypes: []string{"index", "index"}}
	s = New(nil).Enrich(recon)
	assert.Equal(t, []string{"reconnaissance"}, s.AttackPhases)

	empty := &model.CanonicalSession{}
	s = New(nil).Enrich(empty)
	assert.Equal(t, []string{"unknown"}, s.AttackPhases)
}

func TestBehaviorTags(t *testing.T) {
	s := New(nil).Enrich(canonicalScan())
	require.NotEmpty(t, s.BehaviorTags)
	assert.Contains(t, s.BehaviorTags, "severity:critical")
	assert.Contains(t, s.BehaviorTags, "automated_attack")
	assert.Contains(t, s.BehaviorTags, "scanner_detected")
	assert.Contains(t, s.BehaviorTags, "tool:sqlmap")
	assert.Contains(t, s.BehaviorTags, "attack_escalation")
	assert.Contains(t, s.BehaviorTags, "sql_injection_attempt")
	assert.Contains(t, s.BehaviorTags, "malicious_activity")
	assert.Contains(t, s.BehaviorTags, "diverse_attacks")
}

func TestEnrichDoesNotMutateInput(t *testing.T) {
	c := canonicalScan()
	before := *c
	_ = New(nil).Enrich(c)
	assert.Equal(t, before.AttackTypes, c.AttackTypes)
	assert.Equal(t, before.Paths, c.Paths)
}
