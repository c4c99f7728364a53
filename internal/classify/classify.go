// Package classify pattern-matches request values against the honeypot
// attack taxonomy. It is a pure string classifier: no network, no state.
package classify

import (
	"sort"
	"strings"
)

// detection is an attack name with its priority order.
type detection struct {
	name  string
	order int
}

// DetectValue scans a single request value (URL path + query, POST body,
// User-Agent) and returns every attack category it matches.
func DetectValue(value string) []string {
	return dedupeAndSort(scanValue(value))
}

// DetectRequest scans all attack vectors of one request. Cookies are only
// checked for SQLi and PHP object injection. The result is de-duplicated and
// ordered by priority, stable by first detection within the same priority.
func DetectRequest(path, postData, userAgent string, cookies map[string]string) []string {
	var detections []detection

	if path != "" {
		detections = append(detections, scanValue(path)...)
	}
	if postData != "" {
		detections = append(detections, scanValue(postData)...)
	}
	if userAgent != "" {
		detections = append(detections, scanValue(userAgent)...)
	}

	// Sorted cookie keys keep the output deterministic.
	keys := make([]string, 0, len(cookies))
	for k := range cookies {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v := cookies[k]; v != "" {
			detections = append(detections, scanCookie(v)...)
		}
	}

	return dedupeAndSort(detections)
}

// PrimaryAttack returns the highest-priority attack for a request, or a
// benign label (index, wp-content) when nothing matched.
func PrimaryAttack(path, postData, userAgent string, cookies map[string]string) string {
	attacks := DetectRequest(path, postData, userAgent, cookies)
	if len(attacks) > 0 {
		return attacks[0]
	}
	return BenignLabel(path)
}

// BenignLabel classifies a non-attack path as index, wp-content or unknown.
func BenignLabel(path string) string {
	switch {
	case indexRE.MatchString(path):
		return LabelIndex
	case wpContentRE.MatchString(path):
		return LabelWPContent
	default:
		return LabelUnknown
	}
}

func scanValue(value string) []detection {
	if value == "" {
		return nil
	}

	var out []detection
	for _, rule := range rules {
		for _, pat := range rule.Patterns {
			if pat.MatchString(value) {
				out = append(out, detection{rule.Name, rule.Order})
				break
			}
		}
	}
	if detectSQLI(value) {
		out = append(out, detection{AttackSQLI, sqliOrder})
	}
	return out
}

func scanCookie(value string) []detection {
	var out []detection
	if detectSQLI(value) {
		out = append(out, detection{AttackSQLI, sqliOrder})
	}
	if phpObjectRE.MatchString(value) {
		out = append(out, detection{AttackPHPObjectInjection, 2})
	}
	return out
}

func detectSQLI(value string) bool {
	if value == "" {
		return false
	}
	if sqliKeywordRE.MatchString(value) {
		return true
	}
	if sqliCharsRE.MatchString(value) {
		lower := strings.ToLower(value)
		for _, tok := range sqliIndicators {
			if strings.Contains(lower, tok) {
				return true
			}
		}
	}
	return false
}

// dedupeAndSort keeps the highest order seen per attack and sorts descending
// by order; the sort is stable, so first-seen order breaks ties.
func dedupeAndSort(detections []detection) []string {
	if len(detections) == 0 {
		return nil
	}

	order := map[string]int{}
	var seen []string
	for _, d := range detections {
		if cur, ok := order[d.name]; !ok {
			order[d.name] = d.order
			seen = append(seen, d.name)
		} else if d.order > cur {
			order[d.name] = d.order
		}
	}

	sort.SliceStable(seen, func(i, j int) bool {
		return order[seen[i]] > order[seen[j]]
	})
	return seen
}
