// Package normalize turns raw edge-agent session records into the canonical
// form the rest of the pipeline operates on. It fails soft: a record that
// cannot be normalized is returned with SessUUID "error" and the failure in
// the Error field, so the caller can ack it without further processing.
package normalize

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/snarelab/hivetrace/internal/classify"
	"github.com/snarelab/hivetrace/internal/model"
)

// maliciousAttackTypes is the set that flips has_malicious_activity.
var maliciousAttackTypes = map[string]bool{
	classify.AttackSQLI:               true,
	classify.AttackXSS:                true,
	classify.AttackLFI:                true,
	classify.AttackRFI:                true,
	classify.AttackCmdExec:            true,
	classify.AttackPHPCodeInjection:   true,
	classify.AttackPHPObjectInjection: true,
	classify.AttackTemplateInjection:  true,
	classify.AttackXXE:                true,
	classify.AttackCRLF:               true,
}

// Normalize cleans and validates a raw session. The returned error reports
// what went wrong, but the canonical record is always usable: on failure it
// is an error record that should be persisted nowhere and acked.
func Normalize(raw *model.RawSession, now time.Time) (*model.CanonicalSession, error) {
	if raw == nil {
		return errorRecord(now, "nil session"), fmt.Errorf("normalize: nil session")
	}

	c := &model.CanonicalSession{
		SessUUID:                  strings.TrimSpace(orDefault(raw.SessUUID, "unknown")),
		PeerIP:                    NormalizeIP(raw.PeerIP),
		PeerPort:                  raw.PeerPort,
		UserAgent:                 CleanString(orDefault(raw.UserAgent, "unknown")),
		Referer:                   CleanString(raw.Referer),
		SnareUUID:                 strings.TrimSpace(orDefault(raw.SnareUUID, "unknown")),
		ProcessedAt:               now.UTC().Format(time.RFC3339Nano),
		AttackCount:               orMap(raw.AttackCount),
		RequestsPerSecond:         raw.RequestsPerSecond,
		ApproxTimeBetweenRequests: raw.ApproxTimeBetweenRequests,
		AcceptedPaths:             raw.AcceptedPaths,
		Errors:                    raw.Errors,
		HiddenLinks:               raw.HiddenLinks,
		PossibleOwners:            orMap(raw.PossibleOwners),
		Cookies:                   orMap(raw.Cookies),
		Extra:                     raw.Extra,
	}

	c.SnareID = raw.SnareID
	if c.SnareID == "" {
		c.SnareID = c.SnareUUID
	}

	c.StartTime = NormalizeTimestamp(raw.StartTime)
	c.EndTime = NormalizeTimestamp(raw.EndTime)

	if raw.Location != nil {
		c.Location = model.GeoLocation{
			Country:     CleanString(raw.Location.Country),
			CountryCode: strings.ToUpper(CleanString(raw.Location.CountryCode)),
			City:        CleanString(raw.Location.City),
			ZipCode:     CleanString(raw.Location.ZipCode),
			Latitude:    raw.Location.Latitude,
			Longitude:   raw.Location.Longitude,
		}
	}

	c.Paths = normalizePaths(raw.Paths)
	c.TotalRequests = len(c.Paths)

	c.AttackTypes = normalizeAttackTypes(raw.AttackTypes)
	if len(c.AttackTypes) == 0 {
		c.AttackTypes = attackTypesFromPaths(c.Paths)
	}

	unique := map[string]bool{}
	for _, at := range c.AttackTypes {
		unique[at] = true
	}
	c.UniqueAttackTypes = len(unique)
	c.HasMaliciousActivity = HasMaliciousAttacks(c.AttackTypes)

	return c, nil
}

// Validate reports whether a canonical session is complete enough to
// process. Failures here are input errors: log, ack, drop.
func Validate(c *model.CanonicalSession) error {
	switch c.SessUUID {
	case "", "unknown", "error":
		return fmt.Errorf("normalize: invalid sess_uuid %q", c.SessUUID)
	}
	if c.PeerIP == "" {
		return fmt.Errorf("normalize: missing peer_ip")
	}
	return nil
}

// errorRecord builds the fails-soft record for sessions that blow up during
// normalization.
func errorRecord(now time.Time, reason string) *model.CanonicalSession {
	return &model.CanonicalSession{
		SessUUID:    "error",
		Error:       reason,
		ProcessedAt: now.UTC().Format(time.RFC3339Nano),
	}
}

// NormalizeIP validates dotted-quad IPv4 (each octet 0-255). IPv6 passes
// through unchanged; anything else collapses to 0.0.0.0.
func NormalizeIP(ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return "0.0.0.0"
	}

	octets := strings.Split(ip, ".")
	if len(octets) == 4 {
		valid := true
		for _, o := range octets {
			n, err := strconv.Atoi(o)
			if err != nil || n < 0 || n > 255 || o == "" {
				valid = false
				break
			}
		}
		if valid {
			return ip
		}
	}

	if strings.Contains(ip, ":") {
		return ip
	}
	return "0.0.0.0"
}

// NormalizeTimestamp accepts an ISO-8601 string or a numeric epoch (seconds,
// possibly fractional) and returns RFC 3339 UTC, or "" if unparseable.
func NormalizeTimestamp(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return normalizeTimeString(s)
	}

	var epoch float64
	if err := json.Unmarshal(raw, &epoch); err == nil {
		sec := int64(epoch)
		nsec := int64((epoch - float64(sec)) * 1e9)
		return time.Unix(sec, nsec).UTC().Format(time.RFC3339Nano)
	}

	return ""
}

func normalizeTimeString(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02T15:04:05.999999",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format(time.RFC3339Nano)
		}
	}
	// Numeric epoch sent as a string.
	if epoch, err := strconv.ParseFloat(s, 64); err == nil {
		sec := int64(epoch)
		nsec := int64((epoch - float64(sec)) * 1e9)
		return time.Unix(sec, nsec).UTC().Format(time.RFC3339Nano)
	}
	return ""
}

// normalizeAttackTypes accepts a JSON string or array of strings and returns
// a lower-cased, trimmed list.
func normalizeAttackTypes(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if single = strings.ToLower(strings.TrimSpace(single)); single != "" {
			return []string{single}
		}
		return nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, at := range list {
		if at = strings.ToLower(strings.TrimSpace(at)); at != "" {
			out = append(out, at)
		}
	}
	return out
}

func normalizePaths(paths []model.RawPath) []model.Path {
	out := make([]model.Path, 0, len(paths))
	for _, p := range paths {
		np := model.Path{
			Path:           CleanString(orDefault(p.Path, "/")),
			Method:         strings.ToUpper(orDefault(p.Method, "GET")),
			Timestamp:      NormalizeTimestamp(p.Timestamp),
			ResponseStatus: p.ResponseStatus,
			Headers:        orMap(p.Headers),
			Cookies:        orMap(p.Cookies),
			QueryParams:    stringifyParams(p.QueryParams),
			PostData:       rawToString(p.PostData),
		}

		np.AttackType = strings.ToLower(strings.TrimSpace(p.AttackType))
		if np.AttackType == "" || np.AttackType == "unknown" {
			// Classify the raw values: scrubbing control characters first
			// would hide CRLF injection from the pattern matcher.
			np.AttackType = classify.PrimaryAttack(p.Path, rawToString(p.PostData), "", p.Cookies)
		}

		out = append(out, np)
	}
	return out
}

// attackTypesFromPaths derives the session attack list when the agent did
// not supply one, preserving request order.
func attackTypesFromPaths(paths []model.Path) []string {
	var out []string
	for _, p := range paths {
		if p.AttackType != "" && p.AttackType != classify.LabelUnknown {
			out = append(out, p.AttackType)
		}
	}
	return out
}

// CleanString trims a value and strips non-printable control characters,
// keeping \n and \t.
func CleanString(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsPrint(r) {
			return r
		}
		return -1
	}, value)
}

// HasMaliciousAttacks reports whether any attack type is in the malicious
// set.
func HasMaliciousAttacks(attackTypes []string) bool {
	for _, at := range attackTypes {
		if maliciousAttackTypes[at] {
			return true
		}
	}
	return false
}

func stringifyParams(params map[string]any) map[string]string {
	if len(params) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(params))
	for k, v := range params {
		switch t := v.(type) {
		case string:
			out[k] = t
		case float64:
			out[k] = strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(t)
		case nil:
			out[k] = ""
		default:
			b, _ := json.Marshal(t)
			out[k] = string(b)
		}
	}
	return out
}

func rawToString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func orMap[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return map[K]V{}
	}
	return m
}
