package store

import (
	"sort"

	"github.com/snarelab/hivetrace/internal/model"
)

const (
	topListSize       = 10
	maxSamplePayloads = 20

	// Sessions below this risk score do not feed threat intelligence.
	intelRiskFloor = 50
)

// ComputeSummary derives the daily statistics artifact from a day's session
// log. Recomputing from the log keeps the summary consistent under replays.
func ComputeSummary(date string, day []*model.EvaluatedSession) *model.DailySummary {
	sum := model.EmptyDailySummary(date)
	sum.TotalSessions = len(day)
	if len(day) == 0 {
		return sum
	}

	ips := map[string]int{}
	agents := map[string]int{}
	totalRisk := 0

	for _, sess := range day {
		for _, at := range sess.AttackTypes {
			sum.AttackTypeDistribution[at]++
		}
		sum.ThreatLevelDistribution[sess.ThreatLevel]++
		sum.RiskScoreDistribution[riskBucket(sess.RiskScore)]++
		if sess.AlertLevel != "" {
			sum.AlertCounts[sess.AlertLevel]++
		}
		if sess.RequiresReview {
			sum.RequiresReviewCount++
		}
		totalRisk += sess.RiskScore
		ips[sess.PeerIP]++
		agents[sess.UserAgent]++
	}

	sum.AverageRiskScore = roundTwo(float64(totalRisk) / float64(len(day)))
	sum.TopSourceIPs = topCounts(ips, topListSize)
	sum.TopUserAgents = topCounts(agents, topListSize)
	return sum
}

// MergeSummaries combines per-day summaries across a range. The average risk
// score is weighted by each day's session count.
func MergeSummaries(summaries []*model.DailySummary) *model.DailySummary {
	merged := model.EmptyDailySummary("")
	if len(summaries) == 0 {
		return merged
	}

	weightedRisk := 0.0
	for _, day := range summaries {
		merged.TotalSessions += day.TotalSessions
		merged.RequiresReviewCount += day.RequiresReviewCount
		weightedRisk += day.AverageRiskScore * float64(day.TotalSessions)
		mergeCounts(merged.AttackTypeDistribution, day.AttackTypeDistribution)
		mergeCounts(merged.ThreatLevelDistribution, day.ThreatLevelDistribution)
		mergeCounts(merged.RiskScoreDistribution, day.RiskScoreDistribution)
		mergeCounts(merged.TopSourceIPs, day.TopSourceIPs)
		mergeCounts(merged.TopUserAgents, day.TopUserAgents)
		mergeCounts(merged.AlertCounts, day.AlertCounts)
	}

	if merged.TotalSessions > 0 {
		merged.AverageRiskScore = roundTwo(weightedRisk / float64(merged.TotalSessions))
	}
	merged.TopSourceIPs = topCounts(merged.TopSourceIPs, topListSize)
	merged.TopUserAgents = topCounts(merged.TopUserAgents, topListSize)
	return merged
}

// ComputeThreatIntel derives the daily IOC feed from sessions at or above
// the intel risk floor.
func ComputeThreatIntel(date string, day []*model.EvaluatedSession) *model.ThreatIntelFeed {
	feed := model.EmptyThreatIntelFeed(date)

	ips := map[string]bool{}
	signatures := map[string]bool{}
	agents := map[string]bool{}

	for _, sess := range day {
		if sess.RiskScore < intelRiskFloor {
			continue
		}

		if sess.PeerIP != "" && sess.PeerIP != "0.0.0.0" {
			ips[sess.PeerIP] = true
		}
		if sig := sess.AttackPatterns.PatternSignature; sig != "" {
			signatures[sig] = true
		}
		if sess.UserAgentInfo.IsScanner || sess.UserAgentInfo.Suspicious {
			if sess.UserAgent != "" && sess.UserAgent != "unknown" {
				agents[sess.UserAgent] = true
			}
		}

		for _, p := range sess.Paths {
			if len(feed.SamplePayloads) >= maxSamplePayloads {
				break
			}
			if p.AttackType == "" || p.AttackType == "index" ||
				p.AttackType == "wp-content" || p.AttackType == "unknown" {
				continue
			}
			feed.SamplePayloads = append(feed.SamplePayloads, model.SamplePayload{
				Path:       p.Path,
				Method:     p.Method,
				AttackType: p.AttackType,
			})
		}
	}

	feed.MaliciousIPs = sortedKeys(ips)
	feed.MaliciousIPsCount = len(feed.MaliciousIPs)
	feed.AttackSignatures = sortedKeys(signatures)
	feed.AttackSignaturesCount = len(feed.AttackSignatures)
	feed.MaliciousUserAgents = sortedKeys(agents)
	return feed
}

func riskBucket(score int) string {
	switch {
	case score >= 70:
		return "critical"
	case score >= 50:
		return "high"
	case score >= 30:
		return "medium"
	case score >= 15:
		return "low"
	default:
		return "info"
	}
}

// topCounts keeps the n highest counters; ties break by key so the output is
// stable across recomputation.
func topCounts(counts map[string]int, n int) map[string]int {
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

func mergeCounts(dst, src map[string]int) {
	for k, v := range src {
		dst[k] += v
	}
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func roundTwo(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
