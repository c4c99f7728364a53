// Package model defines the session record as it moves through the pipeline:
// RawSession (edge agent JSON) → CanonicalSession (normalized) →
// EnrichedSession (threat context) → EvaluatedSession (risk scored).
package model

import "encoding/json"

// RawSession is one captured attacker session as posted by the edge agent.
// Unknown top-level fields are preserved in Extra for forensics but carry no
// meaning in the pipeline.
type RawSession struct {
	SessUUID                  string             `json:"sess_uuid"`
	PeerIP                    string             `json:"peer_ip"`
	PeerPort                  int                `json:"peer_port"`
	UserAgent                 string             `json:"user_agent"`
	Referer                   string             `json:"referer"`
	SnareUUID                 string             `json:"snare_uuid"`
	SnareID                   string             `json:"snare_id"`
	StartTime                 json.RawMessage    `json:"start_time"`
	EndTime                   json.RawMessage    `json:"end_time"`
	Paths                     []RawPath          `json:"paths"`
	Cookies                   map[string]string  `json:"cookies"`
	AttackTypes               json.RawMessage    `json:"attack_types"`
	AttackCount               map[string]int     `json:"attack_count"`
	PossibleOwners            map[string]float64 `json:"possible_owners"`
	RequestsPerSecond         float64            `json:"requests_in_second"`
	ApproxTimeBetweenRequests float64            `json:"approx_time_between_requests"`
	AcceptedPaths             int                `json:"accepted_paths"`
	Errors                    int                `json:"errors"`
	HiddenLinks               int                `json:"hidden_links"`
	Location                  *GeoLocation       `json:"location"`

	Extra map[string]json.RawMessage `json:"-"`
}

// rawSessionFields lists the JSON keys consumed by RawSession proper; anything
// else lands in Extra.
var rawSessionFields = []string{
	"sess_uuid", "peer_ip", "peer_port", "user_agent", "referer",
	"snare_uuid", "snare_id", "start_time", "end_time", "paths", "cookies",
	"attack_types", "attack_count", "possible_owners", "requests_in_second",
	"approx_time_between_requests", "accepted_paths", "errors",
	"hidden_links", "location",
}

// UnmarshalJSON decodes a raw session and stashes unrecognized fields in
// Extra instead of dropping them.
func (r *RawSession) UnmarshalJSON(data []byte) error {
	type plain RawSession
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, k := range rawSessionFields {
		delete(all, k)
	}
	if len(all) > 0 {
		p.Extra = all
	}

	*r = RawSession(p)
	return nil
}

// RawPath is one request within a raw session. Timestamp and post_data stay
// untyped until normalization (agents send ISO strings or numeric epochs).
type RawPath struct {
	Path           string            `json:"path"`
	Method         string            `json:"method"`
	Timestamp      json.RawMessage   `json:"timestamp"`
	ResponseStatus int               `json:"response_status"`
	AttackType     string            `json:"attack_type"`
	Headers        map[string]string `json:"headers"`
	Cookies        map[string]string `json:"cookies"`
	QueryParams    map[string]any    `json:"query_params"`
	PostData       json.RawMessage   `json:"post_data"`
}

// GeoLocation is the resolved (or agent-supplied) origin of a session.
type GeoLocation struct {
	Country     string   `json:"country"`
	CountryCode string   `json:"country_code"`
	City        string   `json:"city"`
	ZipCode     string   `json:"zip_code"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
}

// Path is the normalized form of RawPath: cleaned strings, ISO-8601 UTC
// timestamp, stringified query params and post body.
type Path struct {
	Path           string            `json:"path"`
	Method         string            `json:"method"`
	Timestamp      string            `json:"timestamp,omitempty"`
	ResponseStatus int               `json:"response_status"`
	AttackType     string            `json:"attack_type"`
	Headers        map[string]string `json:"headers"`
	Cookies        map[string]string `json:"cookies"`
	QueryParams    map[string]string `json:"query_params"`
	PostData       string            `json:"post_data"`
}

// CanonicalSession is the validated, cleaned session every later stage
// operates on. A session that failed normalization carries SessUUID "error"
// and a non-empty Error field.
type CanonicalSession struct {
	SessUUID                  string             `json:"sess_uuid"`
	PeerIP                    string             `json:"peer_ip"`
	PeerPort                  int                `json:"peer_port"`
	UserAgent                 string             `json:"user_agent"`
	Referer                   string             `json:"referer"`
	SnareUUID                 string             `json:"snare_uuid"`
	SnareID                   string             `json:"snare_id"`
	StartTime                 string             `json:"start_time,omitempty"`
	EndTime                   string             `json:"end_time,omitempty"`
	ProcessedAt               string             `json:"processed_at"`
	AttackTypes               []string           `json:"attack_types"`
	AttackCount               map[string]int     `json:"attack_count"`
	Location                  GeoLocation        `json:"location"`
	RequestsPerSecond         float64            `json:"requests_in_second"`
	ApproxTimeBetweenRequests float64            `json:"approx_time_between_requests"`
	AcceptedPaths             int                `json:"accepted_paths"`
	Errors                    int                `json:"errors"`
	HiddenLinks               int                `json:"hidden_links"`
	PossibleOwners            map[string]float64 `json:"possible_owners"`
	Cookies                   map[string]string  `json:"cookies"`
	Paths                     []Path             `json:"paths"`
	TotalRequests             int                `json:"total_requests"`
	UniqueAttackTypes         int                `json:"unique_attack_types"`
	HasMaliciousActivity      bool               `json:"has_malicious_activity"`

	Error string                     `json:"error,omitempty"`
	Extra map[string]json.RawMessage `json:"extra,omitempty"`
}

// ThreatIntelligence labels a session with coarse threat context.
type ThreatIntelligence struct {
	Severity         string   `json:"severity"`
	Confidence       float64  `json:"confidence"`
	AttackCategories []string `json:"attack_categories"`
	IsAutomated      bool     `json:"is_automated"`
	IsTargeted       bool     `json:"is_targeted"`
	ThreatActorType  string   `json:"threat_actor_type"`
}

// AttackPatterns summarises the sequence of attacks within a session.
type AttackPatterns struct {
	AttackSequence     []string       `json:"attack_sequence"`
	RepeatedAttacks    map[string]int `json:"repeated_attacks"`
	EscalationDetected bool           `json:"escalation_detected"`
	PatternSignature   string         `json:"pattern_signature"`
}

// UserAgentInfo classifies the client software.
type UserAgentInfo struct {
	IsBot          bool   `json:"is_bot"`
	IsScanner      bool   `json:"is_scanner"`
	IsBrowser      bool   `json:"is_browser"`
	ToolIdentified string `json:"tool_identified,omitempty"`
	Suspicious     bool   `json:"suspicious"`
}

// RequestPatterns aggregates per-request shape across the session.
type RequestPatterns struct {
	HTTPMethods      map[string]int `json:"http_methods"`
	StatusCodes      map[int]int    `json:"status_codes"`
	UniquePaths      int            `json:"unique_paths"`
	PathDiversity    float64        `json:"path_diversity"`
	HasRepeatedPaths bool           `json:"has_repeated_paths"`
}

// PayloadAnalysis holds statistical payload features (length, encodings,
// complexity). Attack detection itself lives in the classifier.
type PayloadAnalysis struct {
	TotalPayloadLength      int      `json:"total_payload_length"`
	LongestPayload          int      `json:"longest_payload"`
	AvgPayloadLength        float64  `json:"avg_payload_length"`
	EncodingDetected        []string `json:"encoding_detected"`
	HasEncodedContent       bool     `json:"has_encoded_content"`
	PayloadComplexity       string   `json:"payload_complexity"`
	HasCommandChaining      bool     `json:"has_command_chaining"`
	HasPathTraversalPattern bool     `json:"has_path_traversal_pattern"`
}

// IPReputation is local reputation context for the source address. External
// feed lookups plug in behind enrich.ReputationSource.
type IPReputation struct {
	IsPrivate       bool     `json:"is_private"`
	IsTor           bool     `json:"is_tor"`
	IsVPN           bool     `json:"is_vpn"`
	IsCloud         bool     `json:"is_cloud"`
	ReputationScore float64  `json:"reputation_score"`
	Notes           []string `json:"notes"`
}

// TemporalPatterns captures timing features of a session.
type TemporalPatterns struct {
	DurationSeconds float64 `json:"duration_seconds"`
	RequestRate     float64 `json:"request_rate"`
	TimeOfDay       string  `json:"time_of_day,omitempty"`
	IsProlonged     bool    `json:"is_prolonged"`
}

// EnrichedSession extends the canonical record with derived threat context.
type EnrichedSession struct {
	CanonicalSession

	ThreatIntelligence ThreatIntelligence `json:"threat_intelligence"`
	AttackPatterns     AttackPatterns     `json:"attack_patterns"`
	UserAgentInfo      UserAgentInfo      `json:"user_agent_info"`
	RequestPatterns    RequestPatterns    `json:"request_patterns"`
	PayloadAnalysis    PayloadAnalysis    `json:"payload_analysis"`
	IPReputation       IPReputation       `json:"ip_reputation"`
	TemporalPatterns   TemporalPatterns   `json:"temporal_patterns"`
	BehaviorTags       []string           `json:"behavior_tags"`
	AttackPhases       []string           `json:"attack_phases"`
}

// RiskBreakdown names the six components that sum to the risk score.
type RiskBreakdown struct {
	SeverityScore    int `json:"severity_score"`
	ComplexityScore  int `json:"complexity_score"`
	AutomationScore  int `json:"automation_score"`
	PayloadScore     int `json:"payload_score"`
	TargetingScore   int `json:"targeting_score"`
	PersistenceScore int `json:"persistence_score"`
}

// Total returns the summed breakdown, which equals the session risk score.
func (b RiskBreakdown) Total() int {
	return b.SeverityScore + b.ComplexityScore + b.AutomationScore +
		b.PayloadScore + b.TargetingScore + b.PersistenceScore
}

// ImpactAssessment maps attack types onto CIA-triad impact plus scope and
// business risk.
type ImpactAssessment struct {
	Confidentiality string `json:"confidentiality"`
	Integrity       string `json:"integrity"`
	Availability    string `json:"availability"`
	Scope           string `json:"scope"`
	FinancialRisk   string `json:"financial_risk"`
	ReputationRisk  string `json:"reputation_risk"`
}

// EvaluatedSession is the final persisted record.
type EvaluatedSession struct {
	EnrichedSession

	RiskScore              int              `json:"risk_score"`
	RiskBreakdown          RiskBreakdown    `json:"risk_breakdown"`
	ThreatLevel            string           `json:"threat_level"`
	Priority               string           `json:"priority"`
	ConfidenceScore        float64          `json:"confidence_score"`
	ExploitationLikelihood string           `json:"exploitation_likelihood"`
	ImpactAssessment       ImpactAssessment `json:"impact_assessment"`
	Recommendations        []string         `json:"recommendations"`
	RequiresReview         bool             `json:"requires_review"`
	AlertLevel             string           `json:"alert_level"`
}

// Threat levels, from the numeric risk score.
const (
	ThreatCritical = "CRITICAL"
	ThreatHigh     = "HIGH"
	ThreatMedium   = "MEDIUM"
	ThreatLow      = "LOW"
	ThreatInfo     = "INFO"
)

// SessionSummary is the projection returned by list endpoints.
type SessionSummary struct {
	SessUUID             string   `json:"sess_uuid"`
	PeerIP               string   `json:"peer_ip"`
	PeerPort             int      `json:"peer_port"`
	UserAgent            string   `json:"user_agent"`
	AttackTypes          []string `json:"attack_types"`
	RiskScore            int      `json:"risk_score"`
	ThreatLevel          string   `json:"threat_level"`
	AlertLevel           string   `json:"alert_level"`
	ProcessedAt          string   `json:"processed_at"`
	TotalRequests        int      `json:"total_requests"`
	HasMaliciousActivity bool     `json:"has_malicious_activity"`
	RequiresReview       bool     `json:"requires_review"`
	IsScanner            bool     `json:"is_scanner"`
	ToolIdentified       string   `json:"tool_identified,omitempty"`
}

// Summary projects an evaluated session for list responses.
func (s *EvaluatedSession) Summary() SessionSummary {
	return SessionSummary{
		SessUUID:             s.SessUUID,
		PeerIP:               s.PeerIP,
		PeerPort:             s.PeerPort,
		UserAgent:            s.UserAgent,
		AttackTypes:          s.AttackTypes,
		RiskScore:            s.RiskScore,
		ThreatLevel:          s.ThreatLevel,
		AlertLevel:           s.AlertLevel,
		ProcessedAt:          s.ProcessedAt,
		TotalRequests:        s.TotalRequests,
		HasMaliciousActivity: s.HasMaliciousActivity,
		RequiresReview:       s.RequiresReview,
		IsScanner:            s.UserAgentInfo.IsScanner,
		ToolIdentified:       s.UserAgentInfo.ToolIdentified,
	}
}
