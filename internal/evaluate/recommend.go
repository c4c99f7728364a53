package evaluate

import (
	"fmt"

	"github.com/snarelab/hivetrace/internal/classify"
	"github.com/snarelab/hivetrace/internal/model"
)

// Recommend produces analyst guidance for a scored session, ordered
// containment first, then remediation, then detection.
func Recommend(s *model.EvaluatedSession) []string {
	var recs []string

	has := func(at string) bool {
		for _, t := range s.AttackTypes {
			if t == at {
				return true
			}
		}
		return false
	}

	// Containment.
	if s.ThreatLevel == model.ThreatCritical || s.ThreatLevel == model.ThreatHigh {
		recs = append(recs,
			fmt.Sprintf("Block source IP %s at the perimeter firewall", s.PeerIP))
	}
	if s.UserAgentInfo.IsScanner && s.UserAgentInfo.ToolIdentified != "" {
		recs = append(recs,
			fmt.Sprintf("Add WAF signatures for %s scan traffic", s.UserAgentInfo.ToolIdentified))
	}

	// Remediation, per attack type.
	if has(classify.AttackSQLI) {
		recs = append(recs,
			"Audit database access layers for parameterized queries and least-privilege accounts")
	}
	if has(classify.AttackCmdExec) || has(classify.AttackPHPCodeInjection) {
		recs = append(recs,
			"Review server-side input handling for command and code execution sinks")
	}
	if has(classify.AttackLFI) || has(classify.AttackRFI) {
		recs = append(recs,
			"Restrict file inclusion to an allow-list and disable remote URL includes")
	}
	if has(classify.AttackXSS) {
		recs = append(recs,
			"Verify output encoding and Content-Security-Policy coverage on user-controlled fields")
	}
	if has(classify.AttackXXE) {
		recs = append(recs,
			"Disable external entity resolution in all XML parsers")
	}
	if s.PayloadAnalysis.HasEncodedContent {
		recs = append(recs,
			"Decode and inspect captured payloads for secondary stages")
	}

	// Detection and follow-up.
	if s.ThreatIntelligence.IsAutomated {
		recs = append(recs,
			"Rate-limit the source network range to slow automated probing")
	}
	if s.RequiresReview {
		recs = append(recs,
			"Escalate this session for manual analyst review")
	}
	if len(recs) == 0 {
		recs = append(recs,
			"No action required; continue passive monitoring")
	}

	return recs
}
