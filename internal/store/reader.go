package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/snarelab/hivetrace/internal/model"
)

// ErrNotFound reports a session or artifact that does not exist.
var ErrNotFound = fmt.Errorf("store: not found")

// uuidSearchWindow bounds the fast path of by-UUID lookups before falling
// back to an exhaustive scan of every partition.
const uuidSearchWindow = 30

// Limits on list queries.
const (
	DefaultQueryLimit = 100
	MaxQueryLimit     = 500
)

// Reader serves the query API from the data directory.
type Reader struct {
	dataDir string
}

// NewReader creates a Reader rooted at dataDir.
func NewReader(dataDir string) *Reader {
	return &Reader{dataDir: dataDir}
}

// QueryFilter selects and orders sessions for list endpoints.
type QueryFilter struct {
	Date           string
	ThreatLevel    string
	AttackType     string
	MinRiskScore   int
	PeerIP         string
	SessUUID       string
	RequiresReview *bool
	SortBy         string // processed_at or risk_score
	SortOrder      string // asc or desc
	Limit          int
	Offset         int
}

// QueryResult is a filtered page of sessions plus the pre-pagination total.
type QueryResult struct {
	Date     string                 `json:"date"`
	Total    int                    `json:"total"`
	Count    int                    `json:"count"`
	Offset   int                    `json:"offset"`
	Sessions []model.SessionSummary `json:"sessions"`
}

// Dashboard is the aggregate view served to the operations UI.
type Dashboard struct {
	Date               string                 `json:"date"`
	Statistics         *model.DailySummary    `json:"statistics"`
	TopAlerts          []model.SessionSummary `json:"top_alerts"`
	HourlyDistribution []int                  `json:"hourly_distribution"`
	ScannerSessions    int                    `json:"scanner_sessions"`
	ManualSessions     int                    `json:"manual_sessions"`
	ToolDistribution   map[string]int         `json:"tool_distribution"`
	TopPaths           map[string]int         `json:"top_paths"`
	AverageDuration    float64                `json:"average_duration_seconds"`
	UniqueSourceIPs    int                    `json:"unique_source_ips"`
}

// GeoDistribution aggregates session origins for one day.
type GeoDistribution struct {
	Date      string         `json:"date"`
	Total     int            `json:"total"`
	Countries map[string]int `json:"countries"`
	Cities    map[string]int `json:"cities"`
	Unknown   int            `json:"unknown"`
}

// ReadDay loads a day's full session log. A missing day is an empty slice.
func (r *Reader) ReadDay(date string) ([]*model.EvaluatedSession, error) {
	return readDayLocked(sessionsFile(r.dataDir, date))
}

// Query filters, sorts and paginates one day's sessions.
func (r *Reader) Query(f QueryFilter) (*QueryResult, error) {
	day, err := r.ReadDay(f.Date)
	if err != nil {
		return nil, fmt.Errorf("store: query %s: %w", f.Date, err)
	}

	var matched []*model.EvaluatedSession
	for _, sess := range day {
		if matches(sess, f) {
			matched = append(matched, sess)
		}
	}
	sortSessions(matched, f.SortBy, f.SortOrder)

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	if limit > MaxQueryLimit {
		limit = MaxQueryLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	result := &QueryResult{
		Date:     f.Date,
		Total:    len(matched),
		Offset:   offset,
		Sessions: []model.SessionSummary{},
	}
	for i := offset; i < len(matched) && len(result.Sessions) < limit; i++ {
		result.Sessions = append(result.Sessions, matched[i].Summary())
	}
	result.Count = len(result.Sessions)
	return result, nil
}

// GetSession finds one session by UUID: recent partitions first, then every
// remaining partition.
func (r *Reader) GetSession(uuid string, now time.Time) (*model.EvaluatedSession, error) {
	searched := map[string]bool{}

	for i := 0; i < uuidSearchWindow; i++ {
		date := now.UTC().AddDate(0, 0, -i).Format(DateFormat)
		searched[date] = true
		if sess := r.findInDay(date, uuid); sess != nil {
			return sess, nil
		}
	}

	dates, err := r.AvailableDates()
	if err != nil {
		return nil, err
	}
	for _, date := range dates {
		if searched[date] {
			continue
		}
		if sess := r.findInDay(date, uuid); sess != nil {
			return sess, nil
		}
	}
	return nil, ErrNotFound
}

func (r *Reader) findInDay(date, uuid string) *model.EvaluatedSession {
	day, err := r.ReadDay(date)
	if err != nil {
		return nil
	}
	for _, sess := range day {
		if sess.SessUUID == uuid {
			return sess
		}
	}
	return nil
}

// Alerts returns a day's alerts, highest risk first. Level narrows to one
// alert file; empty unions critical and high.
func (r *Reader) Alerts(date, level string) ([]*model.EvaluatedSession, error) {
	var alerts []*model.EvaluatedSession
	if level == "" || level == "critical" {
		critical, err := readDayLocked(criticalAlertsFile(r.dataDir, date))
		if err != nil {
			return nil, fmt.Errorf("store: alerts %s: %w", date, err)
		}
		alerts = append(alerts, critical...)
	}
	if level == "" || level == "high" {
		high, err := readDayLocked(highAlertsFile(r.dataDir, date))
		if err != nil {
			return nil, fmt.Errorf("store: alerts %s: %w", date, err)
		}
		alerts = append(alerts, high...)
	}
	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].RiskScore > alerts[j].RiskScore
	})
	return alerts, nil
}

// Statistics returns the persisted summary for a day, or an empty one if the
// day has no data.
func (r *Reader) Statistics(date string) (*model.DailySummary, error) {
	var sum model.DailySummary
	if err := readJSON(summaryFile(r.dataDir, date), &sum); err != nil {
		if os.IsNotExist(err) {
			return model.EmptyDailySummary(date), nil
		}
		return nil, fmt.Errorf("store: statistics %s: %w", date, err)
	}
	return &sum, nil
}

// StatisticsRange merges summaries over an inclusive date span.
func (r *Reader) StatisticsRange(from, to time.Time) (*model.DailySummary, error) {
	var days []*model.DailySummary
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		sum, err := r.Statistics(d.Format(DateFormat))
		if err != nil {
			return nil, err
		}
		if sum.TotalSessions > 0 {
			days = append(days, sum)
		}
	}
	merged := MergeSummaries(days)
	merged.Date = fmt.Sprintf("%s/%s", from.Format(DateFormat), to.Format(DateFormat))
	return merged, nil
}

// ThreatIntel returns the persisted IOC feed for a day, or an empty feed.
func (r *Reader) ThreatIntel(date string) (*model.ThreatIntelFeed, error) {
	var feed model.ThreatIntelFeed
	if err := readJSON(intelFile(r.dataDir, date), &feed); err != nil {
		if os.IsNotExist(err) {
			return model.EmptyThreatIntelFeed(date), nil
		}
		return nil, fmt.Errorf("store: threat intel %s: %w", date, err)
	}
	return &feed, nil
}

// Dashboard builds the aggregate operations view for one day.
func (r *Reader) Dashboard(date string) (*Dashboard, error) {
	stats, err := r.Statistics(date)
	if err != nil {
		return nil, err
	}
	day, err := r.ReadDay(date)
	if err != nil {
		return nil, err
	}
	alerts, err := r.Alerts(date, "")
	if err != nil {
		return nil, err
	}

	dash := &Dashboard{
		Date:               date,
		Statistics:         stats,
		TopAlerts:          []model.SessionSummary{},
		HourlyDistribution: make([]int, 24),
		ToolDistribution:   map[string]int{},
		TopPaths:           map[string]int{},
	}

	for i, alert := range alerts {
		if i >= topListSize {
			break
		}
		dash.TopAlerts = append(dash.TopAlerts, alert.Summary())
	}

	ips := map[string]bool{}
	paths := map[string]int{}
	totalDuration := 0.0
	for _, sess := range day {
		if t, err := time.Parse(time.RFC3339Nano, sess.ProcessedAt); err == nil {
			dash.HourlyDistribution[t.UTC().Hour()]++
		}
		if sess.UserAgentInfo.IsScanner {
			dash.ScannerSessions++
			if tool := sess.UserAgentInfo.ToolIdentified; tool != "" {
				dash.ToolDistribution[tool]++
			}
		} else {
			dash.ManualSessions++
		}
		ips[sess.PeerIP] = true
		totalDuration += sess.TemporalPatterns.DurationSeconds
		for _, p := range sess.Paths {
			paths[p.Path]++
		}
	}

	dash.UniqueSourceIPs = len(ips)
	if len(day) > 0 {
		dash.AverageDuration = roundTwo(totalDuration / float64(len(day)))
	}
	dash.TopPaths = topCounts(paths, topListSize)
	return dash, nil
}

// GeoDistribution aggregates session origin countries and cities for a day.
func (r *Reader) GeoDistribution(date string) (*GeoDistribution, error) {
	day, err := r.ReadDay(date)
	if err != nil {
		return nil, err
	}

	geo := &GeoDistribution{
		Date:      date,
		Total:     len(day),
		Countries: map[string]int{},
		Cities:    map[string]int{},
	}
	for _, sess := range day {
		if sess.Location.Country == "" {
			geo.Unknown++
			continue
		}
		geo.Countries[sess.Location.Country]++
		if sess.Location.City != "" {
			geo.Cities[sess.Location.City]++
		}
	}
	geo.Cities = topCounts(geo.Cities, topListSize)
	return geo, nil
}

// AvailableDates lists every processed partition, newest first.
func (r *Reader) AvailableDates() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(r.dataDir, categoryProcessed))
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: list dates: %w", err)
	}

	var dates []string
	for _, entry := range entries {
		if entry.IsDir() && dateDirRE.MatchString(entry.Name()) {
			dates = append(dates, entry.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates, nil
}

func matches(sess *model.EvaluatedSession, f QueryFilter) bool {
	if f.ThreatLevel != "" && sess.ThreatLevel != strings.ToUpper(f.ThreatLevel) {
		return false
	}
	if f.AttackType != "" {
		found := false
		for _, at := range sess.AttackTypes {
			if at == strings.ToLower(f.AttackType) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if sess.RiskScore < f.MinRiskScore {
		return false
	}
	if f.PeerIP != "" && !strings.Contains(strings.ToLower(sess.PeerIP), strings.ToLower(f.PeerIP)) {
		return false
	}
	if f.SessUUID != "" && !strings.Contains(strings.ToLower(sess.SessUUID), strings.ToLower(f.SessUUID)) {
		return false
	}
	if f.RequiresReview != nil && sess.RequiresReview != *f.RequiresReview {
		return false
	}
	return true
}

func sortSessions(sessions []*model.EvaluatedSession, by, order string) {
	desc := order != "asc"
	risk := by == "risk_score"

	sort.SliceStable(sessions, func(i, j int) bool {
		var less bool
		if risk {
			less = sessions[i].RiskScore < sessions[j].RiskScore
		} else {
			less = sessions[i].ProcessedAt < sessions[j].ProcessedAt
		}
		if desc {
			return !less && !equalKey(sessions[i], sessions[j], risk)
		}
		return less
	})
}

func equalKey(a, b *model.EvaluatedSession, risk bool) bool {
	if risk {
		return a.RiskScore == b.RiskScore
	}
	return a.ProcessedAt == b.ProcessedAt
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
