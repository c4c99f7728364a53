package model

// DailySummary is the per-day statistics artifact at
// statistics/YYYY-MM-DD/summary.json. Distribution maps are recomputed from
// the day's session log after each batch.
type DailySummary struct {
	Date                    string         `json:"date"`
	TotalSessions           int            `json:"total_sessions"`
	AttackTypeDistribution  map[string]int `json:"attack_type_distribution"`
	ThreatLevelDistribution map[string]int `json:"threat_level_distribution"`
	RiskScoreDistribution   map[string]int `json:"risk_score_distribution"`
	TopSourceIPs            map[string]int `json:"top_source_ips"`
	TopUserAgents           map[string]int `json:"top_user_agents"`
	AlertCounts             map[string]int `json:"alert_counts"`
	AverageRiskScore        float64        `json:"average_risk_score"`
	RequiresReviewCount     int            `json:"requires_review_count"`
}

// EmptyDailySummary returns a summary with every bucket present but zero, so
// readers never have to nil-check distribution maps.
func EmptyDailySummary(date string) *DailySummary {
	return &DailySummary{
		Date:                    date,
		AttackTypeDistribution:  map[string]int{},
		ThreatLevelDistribution: map[string]int{},
		RiskScoreDistribution: map[string]int{
			"critical": 0, "high": 0, "medium": 0, "low": 0, "info": 0,
		},
		TopSourceIPs:  map[string]int{},
		TopUserAgents: map[string]int{},
		AlertCounts: map[string]int{
			ThreatCritical: 0, ThreatHigh: 0, ThreatMedium: 0,
			ThreatLow: 0, ThreatInfo: 0,
		},
	}
}

// SamplePayload is one IOC sample in the threat-intel feed.
type SamplePayload struct {
	Path       string `json:"path"`
	Method     string `json:"method"`
	AttackType string `json:"attack_type"`
}

// ThreatIntelFeed is the per-day feed at
// threat_intelligence/YYYY-MM-DD/threat_intelligence.json. Only sessions with
// risk_score >= 50 contribute.
type ThreatIntelFeed struct {
	Date                  string          `json:"date"`
	MaliciousIPsCount     int             `json:"malicious_ips_count"`
	MaliciousIPs          []string        `json:"malicious_ips"`
	AttackSignaturesCount int             `json:"attack_signatures_count"`
	AttackSignatures      []string        `json:"attack_signatures"`
	MaliciousUserAgents   []string        `json:"malicious_user_agents"`
	SamplePayloads        []SamplePayload `json:"sample_payloads"`
}

// EmptyThreatIntelFeed returns a feed with empty (non-nil) collections.
func EmptyThreatIntelFeed(date string) *ThreatIntelFeed {
	return &ThreatIntelFeed{
		Date:                date,
		MaliciousIPs:        []string{},
		AttackSignatures:    []string{},
		MaliciousUserAgents: []string{},
		SamplePayloads:      []SamplePayload{},
	}
}
