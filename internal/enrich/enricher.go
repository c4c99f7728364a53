// Package enrich derives threat context from a canonical session: threat
// labels, attack patterns, user-agent and payload analysis, IP reputation,
// temporal features, behavior tags and kill-chain phases. Enrichment is a
// pure function of its input.
package enrich

import (
	"sort"
	"strings"
	"time"

	"github.com/snarelab/hivetrace/internal/classify"
	"github.com/snarelab/hivetrace/internal/model"
)

// ReputationSource supplies external IP reputation (tor exit lists, VPN and
// cloud ranges, AbuseIPDB and the like). The default implementation knows
// nothing; private-range detection is always local.
type ReputationSource interface {
	Lookup(ip string) model.IPReputation
}

// NopReputationSource returns a neutral reputation for every address.
type NopReputationSource struct{}

func (NopReputationSource) Lookup(string) model.IPReputation {
	return model.IPReputation{ReputationScore: 0.5, Notes: []string{}}
}

// Enricher computes the derived sub-records of a session.
type Enricher struct {
	reputation ReputationSource
}

// New creates an Enricher. A nil reputation source falls back to the no-op.
func New(reputation ReputationSource) *Enricher {
	if reputation == nil {
		reputation = NopReputationSource{}
	}
	return &Enricher{reputation: reputation}
}

// Enrich builds the enriched record for a canonical session.
func (e *Enricher) Enrich(c *model.CanonicalSession) *model.EnrichedSession {
	s := &model.EnrichedSession{CanonicalSession: *c}

	s.AttackPatterns = analyzeAttackPatterns(c.AttackTypes)
	s.UserAgentInfo = AnalyzeUserAgent(c.UserAgent)
	s.RequestPatterns = analyzeRequestPatterns(c.Paths)
	s.PayloadAnalysis = analyzePayloads(c.Paths)
	s.IPReputation = e.ipReputation(c.PeerIP)
	s.TemporalPatterns = analyzeTemporalPatterns(c)
	s.ThreatIntelligence = generateThreatLabels(c, s.RequestPatterns)
	s.AttackPhases = identifyAttackPhases(c)
	s.BehaviorTags = generateBehaviorTags(s)

	return s
}

// Severity sets, highest first. Severity drives both the threat label and
// the evaluator's severity component.
var (
	criticalAttacks = map[string]bool{
		classify.AttackCmdExec: true, classify.AttackRFI: true,
		classify.AttackPHPCodeInjection: true, classify.AttackPHPObjectInjection: true,
	}
	highAttacks = map[string]bool{
		classify.AttackSQLI: true, classify.AttackXXE: true,
		classify.AttackTemplateInjection: true,
	}
	mediumAttacks = map[string]bool{
		classify.AttackXSS: true, classify.AttackLFI: true, classify.AttackCRLF: true,
	}
)

func generateThreatLabels(c *model.CanonicalSession, req model.RequestPatterns) model.ThreatIntelligence {
	labels := model.ThreatIntelligence{
		Severity:         "unknown",
		AttackCategories: []string{},
		ThreatActorType:  "unknown",
	}

	switch {
	case anyIn(c.AttackTypes, criticalAttacks):
		labels.Severity = "critical"
		labels.Confidence = 0.9
	case anyIn(c.AttackTypes, highAttacks):
		labels.Severity = "high"
		labels.Confidence = 0.8
	case anyIn(c.AttackTypes, mediumAttacks):
		labels.Severity = "medium"
		labels.Confidence = 0.7
	case contains(c.AttackTypes, classify.LabelIndex):
		labels.Severity = "low"
		labels.Confidence = 0.5
	default:
		labels.Severity = "info"
		labels.Confidence = 0.3
	}

	if anyOf(c.AttackTypes, classify.AttackSQLI, classify.AttackXSS, classify.AttackLFI, classify.AttackRFI) {
		labels.AttackCategories = append(labels.AttackCategories, "Web Application Attack")
	}
	if anyOf(c.AttackTypes, classify.AttackCmdExec, classify.AttackPHPCodeInjection) {
		labels.AttackCategories = append(labels.AttackCategories, "Remote Code Execution")
	}
	if anyOf(c.AttackTypes, classify.AttackXXE, classify.AttackTemplateInjection) {
		labels.AttackCategories = append(labels.AttackCategories, "Injection Attack")
	}

	labels.IsAutomated = c.RequestsPerSecond > 1.0

	// Targeted: malicious traffic hammering few distinct paths.
	labels.IsTargeted = c.HasMaliciousActivity &&
		c.TotalRequests >= 3 && req.PathDiversity < 0.3

	return labels
}

// severityRank orders attack types for escalation detection. Unknown types
// rank 0.
var severityRank = map[string]int{
	classify.LabelIndex:    0,
	classify.AttackXSS:     1,
	classify.AttackLFI:     2,
	classify.AttackSQLI:    3,
	classify.AttackCmdExec: 4,
	classify.AttackRFI:     5,
}

func analyzeAttackPatterns(attackTypes []string) model.AttackPatterns {
	p := model.AttackPatterns{
		AttackSequence:  append([]string{}, attackTypes...),
		RepeatedAttacks: map[string]int{},
	}

	counts := map[string]int{}
	for _, at := range attackTypes {
		counts[at]++
	}
	p.RepeatedAttacks = topN(counts, 5)

	// Escalation: severity ranks never decrease and at least two distinct
	// ranks appear.
	if len(attackTypes) > 1 {
		ranks := make([]int, len(attackTypes))
		distinct := map[int]bool{}
		for i, at := range attackTypes {
			ranks[i] = severityRank[at]
			distinct[ranks[i]] = true
		}
		increasing := true
		for i := 0; i < len(ranks)-1; i++ {
			if ranks[i] > ranks[i+1] {
				increasing = false
				break
			}
		}
		p.EscalationDetected = increasing && len(distinct) > 1
	}

	uniq := make([]string, 0, len(counts))
	for at := range counts {
		uniq = append(uniq, at)
	}
	sort.Strings(uniq)
	p.PatternSignature = strings.Join(uniq, "-")

	return p
}

func analyzeRequestPatterns(paths []model.Path) model.RequestPatterns {
	p := model.RequestPatterns{
		HTTPMethods: map[string]int{},
		StatusCodes: map[int]int{},
	}
	if len(paths) == 0 {
		return p
	}

	unique := map[string]int{}
	for _, path := range paths {
		method := path.Method
		if method == "" {
			method = "GET"
		}
		p.HTTPMethods[method]++
		p.StatusCodes[path.ResponseStatus]++
		unique[path.Path]++
	}

	p.UniquePaths = len(unique)
	p.PathDiversity = float64(len(unique)) / float64(len(paths))
	for _, n := range unique {
		if n > 1 {
			p.HasRepeatedPaths = true
			break
		}
	}
	return p
}

func analyzeTemporalPatterns(c *model.CanonicalSession) model.TemporalPatterns {
	p := model.TemporalPatterns{RequestRate: c.RequestsPerSecond}

	start, errStart := time.Parse(time.RFC3339Nano, c.StartTime)
	end, errEnd := time.Parse(time.RFC3339Nano, c.EndTime)
	if errStart != nil || errEnd != nil {
		return p
	}

	p.DurationSeconds = end.Sub(start).Seconds()
	p.IsProlonged = p.DurationSeconds > 300

	switch hour := start.UTC().Hour(); {
	case hour >= 6 && hour < 12:
		p.TimeOfDay = "morning"
	case hour >= 12 && hour < 18:
		p.TimeOfDay = "afternoon"
	case hour >= 18:
		p.TimeOfDay = "evening"
	default:
		p.TimeOfDay = "night"
	}
	return p
}

func (e *Enricher) ipReputation(ip string) model.IPReputation {
	if ip == "" || ip == "0.0.0.0" {
		return model.IPReputation{ReputationScore: 0.5, Notes: []string{}}
	}

	rep := e.reputation.Lookup(ip)
	if rep.Notes == nil {
		rep.Notes = []string{}
	}
	if IsPrivateIP(ip) {
		rep.IsPrivate = true
		rep.Notes = append(rep.Notes, "Private IP address")
	}
	return rep
}

// privatePrefixes covers RFC 1918, loopback and link-local ranges.
var privatePrefixes = []string{
	"10.", "172.16.", "172.17.", "172.18.", "172.19.", "172.20.", "172.21.",
	"172.22.", "172.23.", "172.24.", "172.25.", "172.26.", "172.27.",
	"172.28.", "172.29.", "172.30.", "172.31.", "192.168.", "127.",
	"::1", "fe80:",
}

// IsPrivateIP reports whether the address is in a private or local range.
func IsPrivateIP(ip string) bool {
	for _, prefix := range privatePrefixes {
		if strings.HasPrefix(ip, prefix) {
			return true
		}
	}
	return false
}

func identifyAttackPhases(c *model.CanonicalSession) []string {
	var phases []string

	if len(c.AttackTypes) > 0 && allAre(c.AttackTypes, classify.LabelIndex) {
		phases = append(phases, "reconnaissance")
	}
	if len(c.Paths) > 5 {
		phases = append(phases, "scanning")
	}
	if anyOf(c.AttackTypes, classify.AttackSQLI, classify.AttackXSS, classify.AttackLFI,
		classify.AttackRFI, classify.AttackCmdExec, classify.AttackXXE) {
		phases = append(phases, "exploitation")
	}
	if anyOf(c.AttackTypes, classify.AttackCmdExec, classify.AttackRFI, classify.AttackPHPCodeInjection) {
		phases = append(phases, "persistence_attempt")
	}

	if len(phases) == 0 {
		return []string{"unknown"}
	}
	return phases
}

func generateBehaviorTags(s *model.EnrichedSession) []string {
	var tags []string

	if sev := s.ThreatIntelligence.Severity; sev == "critical" || sev == "high" {
		tags = append(tags, "severity:"+sev)
	}
	if s.ThreatIntelligence.IsAutomated {
		tags = append(tags, "automated_attack")
	}
	if s.UserAgentInfo.IsScanner {
		tags = append(tags, "scanner_detected")
		if tool := s.UserAgentInfo.ToolIdentified; tool != "" {
			tags = append(tags, "tool:"+tool)
		}
	}
	if s.AttackPatterns.EscalationDetected {
		tags = append(tags, "attack_escalation")
	}

	if contains(s.AttackTypes, classify.AttackSQLI) {
		tags = append(tags, "sql_injection_attempt")
	}
	if contains(s.AttackTypes, classify.AttackXSS) {
		tags = append(tags, "xss_attempt")
	}
	if contains(s.AttackTypes, classify.AttackCmdExec) || s.PayloadAnalysis.HasCommandChaining {
		tags = append(tags, "command_injection_attempt")
	}
	if contains(s.AttackTypes, classify.AttackLFI) || s.PayloadAnalysis.HasPathTraversalPattern {
		tags = append(tags, "path_traversal_attempt")
	}

	if s.HasMaliciousActivity {
		tags = append(tags, "malicious_activity")
	}
	if s.UniqueAttackTypes >= 3 {
		tags = append(tags, "diverse_attacks")
	}

	if tags == nil {
		tags = []string{}
	}
	return tags
}

// topN keeps the n largest counters, ties broken by name for determinism.
func topN(counts map[string]int, n int) map[string]int {
	type kv struct {
		k string
		v int
	}
	all := make([]kv, 0, len(counts))
	for k, v := range counts {
		all = append(all, kv{k, v})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].v != all[j].v {
			return all[i].v > all[j].v
		}
		return all[i].k < all[j].k
	})
	if len(all) > n {
		all = all[:n]
	}
	out := make(map[string]int, len(all))
	for _, e := range all {
		out[e.k] = e.v
	}
	return out
}

func anyIn(values []string, set map[string]bool) bool {
	for _, v := range values {
		if set[v] {
			return true
		}
	}
	return false
}

func anyOf(values []string, wanted ...string) bool {
	for _, v := range values {
		for _, w := range wanted {
			if v == w {
				return true
			}
		}
	}
	return false
}

func contains(values []string, wanted string) bool {
	for _, v := range values {
		if v == wanted {
			return true
		}
	}
	return false
}

func allAre(values []string, wanted string) bool {
	for _, v := range values {
		if v != wanted {
			return false
		}
	}
	return true
}
