// Package evaluate turns an enriched session into the final risk-scored
// record. Scoring is deterministic: the same enriched session always yields
// the same score, breakdown and recommendations.
package evaluate

import (
	"math"

	"github.com/snarelab/hivetrace/internal/classify"
	"github.com/snarelab/hivetrace/internal/model"
)

// Component caps. The six components sum to at most 100.
const (
	maxSeverity    = 30
	maxComplexity  = 20
	maxAutomation  = 15
	maxPayload     = 15
	maxTargeting   = 10
	maxPersistence = 10
)

// Threat level thresholds on the summed score.
const (
	criticalThreshold = 70
	highThreshold     = 50
	mediumThreshold   = 30
	lowThreshold      = 15
)

// Evaluate scores an enriched session and attaches threat level, priority,
// confidence, impact and recommendations.
func Evaluate(s *model.EnrichedSession) *model.EvaluatedSession {
	out := &model.EvaluatedSession{EnrichedSession: *s}

	out.RiskBreakdown = model.RiskBreakdown{
		SeverityScore:    severityScore(s),
		ComplexityScore:  complexityScore(s),
		AutomationScore:  automationScore(s),
		PayloadScore:     payloadScore(s),
		TargetingScore:   targetingScore(s),
		PersistenceScore: persistenceScore(s),
	}
	out.RiskScore = out.RiskBreakdown.Total()
	out.ThreatLevel = threatLevel(out.RiskScore)
	out.Priority = priority(out.RiskScore, s)
	out.ConfidenceScore = confidenceScore(s)
	out.ExploitationLikelihood = exploitationLikelihood(s)
	out.ImpactAssessment = assessImpact(s)
	out.RequiresReview = requiresReview(out)
	out.AlertLevel = alertLevel(out.ThreatLevel, out.RequiresReview, out.ExploitationLikelihood)
	out.Recommendations = Recommend(out)

	return out
}

func severityScore(s *model.EnrichedSession) int {
	switch s.ThreatIntelligence.Severity {
	case "critical":
		return 30
	case "high":
		return 24
	case "medium":
		return 18
	case "low":
		return 12
	default:
		return 6
	}
}

func complexityScore(s *model.EnrichedSession) int {
	score := s.UniqueAttackTypes * 4
	if score > 12 {
		score = 12
	}
	if s.AttackPatterns.EscalationDetected {
		score += 8
	}
	return capAt(score, maxComplexity)
}

func automationScore(s *model.EnrichedSession) int {
	score := 0
	if s.ThreatIntelligence.IsAutomated {
		score += 10
	}
	switch rate := s.TemporalPatterns.RequestRate; {
	case rate > 5:
		score += 5
	case rate > 2:
		score += 3
	}
	return capAt(score, maxAutomation)
}

func payloadScore(s *model.EnrichedSession) int {
	score := 0
	has := func(at string) bool {
		for _, t := range s.AttackTypes {
			if t == at {
				return true
			}
		}
		return false
	}

	if has(classify.AttackCmdExec) || has(classify.AttackRFI) {
		score += 6
	}
	if has(classify.AttackSQLI) {
		score += 5
	}
	if has(classify.AttackLFI) || has(classify.AttackXXE) {
		score += 4
	}
	if has(classify.AttackXSS) {
		score += 3
	}

	switch s.PayloadAnalysis.PayloadComplexity {
	case "high":
		score += 3
	case "medium":
		score += 2
	}
	if s.PayloadAnalysis.HasCommandChaining {
		score += 2
	}
	if s.PayloadAnalysis.HasPathTraversalPattern {
		score++
	}
	return capAt(score, maxPayload)
}

func targetingScore(s *model.EnrichedSession) int {
	score := 0
	if s.UserAgentInfo.IsScanner {
		score += 5
	}
	if s.RequestPatterns.UniquePaths > 0 && s.RequestPatterns.PathDiversity < 0.3 {
		score += 5
	}
	return capAt(score, maxTargeting)
}

func persistenceScore(s *model.EnrichedSession) int {
	score := 0
	if s.TemporalPatterns.IsProlonged {
		score += 5
	}
	switch {
	case s.TotalRequests > 20:
		score += 5
	case s.TotalRequests > 10:
		score += 3
	}
	return capAt(score, maxPersistence)
}

func threatLevel(score int) string {
	switch {
	case score >= criticalThreshold:
		return model.ThreatCritical
	case score >= highThreshold:
		return model.ThreatHigh
	case score >= mediumThreshold:
		return model.ThreatMedium
	case score >= lowThreshold:
		return model.ThreatLow
	default:
		return model.ThreatInfo
	}
}

// priority is the response priority for analysts, stricter than the threat
// level: P1 demands both a critical score and evidence of active targeting
// or exploitation.
func priority(score int, s *model.EnrichedSession) string {
	active := s.ThreatIntelligence.IsTargeted ||
		hasPhase(s.AttackPhases, "exploitation") ||
		hasPhase(s.AttackPhases, "persistence_attempt")

	switch {
	case score >= criticalThreshold && active:
		return "P1-URGENT"
	case score >= highThreshold:
		return "P2-HIGH"
	case score >= mediumThreshold:
		return "P3-MEDIUM"
	case score >= lowThreshold:
		return "P4-LOW"
	default:
		return "P5-INFO"
	}
}

// confidenceScore weighs the enrichment confidence against data completeness,
// user-agent certainty and internal consistency.
func confidenceScore(s *model.EnrichedSession) float64 {
	uaConfidence := 0.5
	if s.UserAgentInfo.IsScanner {
		uaConfidence = 0.9
	}

	score := 0.4*s.ThreatIntelligence.Confidence +
		0.3*completeness(s) +
		0.2*uaConfidence +
		0.1*consistency(s)

	return math.Round(score*100) / 100
}

func completeness(s *model.EnrichedSession) float64 {
	present := 0
	checks := []bool{
		s.StartTime != "",
		s.EndTime != "",
		s.PeerIP != "" && s.PeerIP != "0.0.0.0",
		s.UserAgent != "" && s.UserAgent != "unknown",
		len(s.Paths) > 0,
		len(s.AttackTypes) > 0,
	}
	for _, ok := range checks {
		if ok {
			present++
		}
	}
	return float64(present) / float64(len(checks))
}

// consistency is 1.0 when the malicious-activity flag agrees with the
// assigned severity, 0.5 when they disagree.
func consistency(s *model.EnrichedSession) float64 {
	severe := false
	switch s.ThreatIntelligence.Severity {
	case "critical", "high", "medium":
		severe = true
	}
	if s.HasMaliciousActivity == severe {
		return 1.0
	}
	return 0.5
}

// criticalAttackTypes are the types whose presence counts as an exploitation
// likelihood factor.
var criticalAttackTypes = map[string]bool{
	classify.AttackCmdExec:          true,
	classify.AttackRFI:              true,
	classify.AttackPHPCodeInjection: true,
	classify.AttackSQLI:             true,
}

func exploitationLikelihood(s *model.EnrichedSession) string {
	factors := 0
	if s.UserAgentInfo.IsScanner {
		factors++
	}
	if s.AttackPatterns.EscalationDetected {
		factors++
	}
	for _, at := range s.AttackTypes {
		if criticalAttackTypes[at] {
			factors++
			break
		}
	}
	for _, n := range s.AttackPatterns.RepeatedAttacks {
		if n > 3 {
			factors++
			break
		}
	}

	switch {
	case factors >= 3:
		return "HIGH"
	case factors >= 2:
		return "MEDIUM"
	case factors >= 1:
		return "LOW"
	default:
		return "VERY_LOW"
	}
}

func assessImpact(s *model.EnrichedSession) model.ImpactAssessment {
	impact := model.ImpactAssessment{
		Confidentiality: "NONE",
		Integrity:       "NONE",
		Availability:    "NONE",
		Scope:           "LIMITED",
		FinancialRisk:   "LOW",
		ReputationRisk:  "LOW",
	}

	has := func(types ...string) bool {
		for _, at := range s.AttackTypes {
			for _, t := range types {
				if at == t {
					return true
				}
			}
		}
		return false
	}

	if has(classify.AttackLFI, classify.AttackSQLI, classify.AttackXXE) {
		impact.Confidentiality = "HIGH"
	}
	if has(classify.AttackSQLI, classify.AttackXSS, classify.AttackPHPCodeInjection, classify.AttackTemplateInjection) {
		impact.Integrity = "HIGH"
	}
	if has(classify.AttackCmdExec, classify.AttackRFI) {
		impact.Availability = "MEDIUM"
	}

	switch {
	case has(classify.AttackCmdExec, classify.AttackRFI):
		impact.Scope = "SYSTEM"
	case has(classify.AttackSQLI, classify.AttackXSS, classify.AttackLFI):
		impact.Scope = "APPLICATION"
	}

	if impact.Confidentiality == "HIGH" || impact.Integrity == "HIGH" {
		impact.FinancialRisk = "HIGH"
	} else if impact.Availability == "MEDIUM" {
		impact.FinancialRisk = "MEDIUM"
	}

	switch {
	case impact.Scope == "SYSTEM":
		impact.ReputationRisk = "CRITICAL"
	case impact.Confidentiality == "HIGH":
		impact.ReputationRisk = "HIGH"
	}

	return impact
}

func requiresReview(s *model.EvaluatedSession) bool {
	if s.RiskScore >= 60 {
		return true
	}
	if s.ThreatLevel == model.ThreatCritical || s.ThreatLevel == model.ThreatHigh {
		return true
	}
	if s.ExploitationLikelihood == "HIGH" {
		return true
	}
	if s.ConfidenceScore < 0.5 && s.RiskScore >= 40 {
		return true
	}
	for _, tag := range s.BehaviorTags {
		if tag == "attack_escalation" {
			return true
		}
	}
	return false
}

// alertLevel drives which alert file a session mirrors into. A critical
// threat that somehow does not require review is downgraded one step rather
// than paging anyone; a medium threat with high exploitation likelihood is
// escalated instead.
func alertLevel(threat string, review bool, likelihood string) string {
	switch {
	case threat == model.ThreatCritical && review:
		return model.ThreatCritical
	case threat == model.ThreatCritical || threat == model.ThreatHigh:
		return model.ThreatHigh
	case threat == model.ThreatMedium && likelihood == "HIGH":
		return model.ThreatHigh
	case threat == model.ThreatMedium:
		return model.ThreatMedium
	case threat == model.ThreatLow:
		return model.ThreatLow
	default:
		return model.ThreatInfo
	}
}

func hasPhase(phases []string, wanted string) bool {
	for _, p := range phases {
		if p == wanted {
			return true
		}
	}
	return false
}

func capAt(score, max int) int {
	if score > max {
		return max
	}
	return score
}
