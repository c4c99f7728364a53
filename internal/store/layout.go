// Package store persists evaluated sessions to the date-partitioned
// filesystem layout and reads them back for the query API. The filesystem is
// the source of truth: every derived artifact (alerts, statistics, threat
// intel) is recomputed from the day's session log.
package store

import (
	"path/filepath"
	"regexp"
)

// Top-level data categories under the data directory.
const (
	categoryProcessed  = "processed"
	categoryAlerts     = "alerts"
	categoryStatistics = "statistics"
	categoryIntel      = "threat_intelligence"
)

var categories = []string{categoryProcessed, categoryAlerts, categoryStatistics, categoryIntel}

// DateFormat is the partition key layout.
const DateFormat = "2006-01-02"

var dateDirRE = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

func sessionsFile(dataDir, date string) string {
	return filepath.Join(dataDir, categoryProcessed, date, "sessions.jsonl")
}

func lockFile(dataDir, date string) string {
	return filepath.Join(dataDir, categoryProcessed, date, ".sessions.lock")
}

func criticalAlertsFile(dataDir, date string) string {
	return filepath.Join(dataDir, categoryAlerts, date, "critical_alerts.jsonl")
}

func highAlertsFile(dataDir, date string) string {
	return filepath.Join(dataDir, categoryAlerts, date, "high_alerts.jsonl")
}

func summaryFile(dataDir, date string) string {
	return filepath.Join(dataDir, categoryStatistics, date, "summary.json")
}

func intelFile(dataDir, date string) string {
	return filepath.Join(dataDir, categoryIntel, date, "threat_intelligence.json")
}

func maliciousIPsFile(dataDir, date string) string {
	return filepath.Join(dataDir, categoryIntel, date, "malicious_ips.txt")
}

func attackSignaturesFile(dataDir, date string) string {
	return filepath.Join(dataDir, categoryIntel, date, "attack_signatures.txt")
}
