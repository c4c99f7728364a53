package normalize

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snarelab/hivetrace/internal/model"
)

var testNow = time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

func rawSession() *model.RawSession {
	return &model.RawSession{
		SessUUID:  "3fa85f64-5717-4562-b3fc-2c963f66afa6",
		PeerIP:    "203.0.113.10",
		PeerPort:  51234,
		UserAgent: "sqlmap/1.7",
		SnareUUID: "snare-01",
		StartTime: json.RawMessage(`"2026-08-20T11:58:00Z"`),
		EndTime:   json.RawMessage(`1755691140.5`),
		Paths: []model.RawPath{
			{Path: "/", Method: "get", ResponseStatus: 200},
			{Path: "/login?id=1' OR '1'='1", Method: "POST", ResponseStatus: 500},
		},
	}
}

func TestNormalizeBasics(t *testing.T) {
	c, err := Normalize(rawSession(), testNow)
	require.NoError(t, err)

	assert.Equal(t, "3fa85f64-5717-4562-b3fc-2c963f66afa6", c.SessUUID)
	assert.Equal(t, "203.0.113.10", c.PeerIP)
	assert.Equal(t, testNow.Format(time.RFC3339Nano), c.ProcessedAt)
	assert.Equal(t, 2, c.TotalRequests)
	// snare_id defaults to snare_uuid when absent.
	assert.Equal(t, "snare-01", c.SnareID)
	require.NoError(t, Validate(c))
}

func TestNormalizeDerivesAttackTypesFromPaths(t *testing.T) {
	c, err := Normalize(rawSession(), testNow)
	require.NoError(t, err)

	assert.Equal(t, "GET", c.Paths[0].Method)
	assert.Equal(t, "index", c.Paths[0].AttackType)
	assert.Equal(t, "sqli", c.Paths[1].AttackType)
	assert.Equal(t, []string{"index", "sqli"}, c.AttackTypes)
	assert.True(t, c.HasMaliciousActivity)
	assert.Equal(t, 2, c.UniqueAttackTypes)
}

func TestNormalizeAttackTypesStringOrList(t *testing.T) {
	raw := rawSession()
	raw.AttackTypes = json.RawMessage(`"SQLI"`)
	c, _ := Normalize(raw, testNow)
	assert.Equal(t, []string{"sqli"}, c.AttackTypes)

	raw = rawSession()
	raw.AttackTypes = json.RawMessage(`[" XSS ", "lfi"]`)
	c, _ = Normalize(raw, testNow)
	assert.Equal(t, []string{"xss", "lfi"}, c.AttackTypes)
}

func TestNormalizeIP(t *testing.T) {
	assert.Equal(t, "203.0.113.10", NormalizeIP("203.0.113.10"))
	assert.Equal(t, "0.0.0.0", NormalizeIP("300.1.1.1"))
	assert.Equal(t, "0.0.0.0", NormalizeIP("not-an-ip"))
	assert.Equal(t, "0.0.0.0", NormalizeIP(""))
	assert.Equal(t, "2001:db8::1", NormalizeIP("2001:db8::1"))
}

func TestNormalizeTimestampVariants(t *testing.T) {
	cases := map[string]string{
		`"2026-08-20T11:58:00Z"`: "2026-08-20T11:58:00Z",
		`"2026-08-20T11:58:00"`:  "2026-08-20T11:58:00Z",
		`"2026-08-20 11:58:00"`:  "2026-08-20T11:58:00Z",
		`1700000000`:             "2023-11-14T22:13:20Z",
		`"1700000000"`:           "2023-11-14T22:13:20Z",
		`"garbage"`:              "",
		`null`:                   "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeTimestamp(json.RawMessage(in)), "input %s", in)
	}
}

func TestValidateRejectsPlaceholderUUIDs(t *testing.T) {
	for _, uuid := range []string{"", "unknown", "error"} {
		c := &model.CanonicalSession{SessUUID: uuid, PeerIP: "203.0.113.10"}
		assert.Error(t, Validate(c), "uuid %q", uuid)
	}
	assert.Error(t, Validate(&model.CanonicalSession{SessUUID: "ok-uuid"}))
}

func TestNormalizeNilSession(t *testing.T) {
	c, err := Normalize(nil, testNow)
	require.Error(t, err)
	assert.Equal(t, "error", c.SessUUID)
	assert.NotEmpty(t, c.Error)
}

func TestCleanStringStripsControlChars(t *testing.T) {
	assert.Equal(t, "abc", CleanString("ab\x00c"))
	assert.Equal(t, "a\tb\nc", CleanString("a\tb\nc"))
	assert.Equal(t, "x", CleanString("  x  "))
}

func TestCRLFDetectedBeforeScrubbing(t *testing.T) {
	raw := rawSession()
	raw.Paths = []model.RawPath{
		{Path: "/page\r\nSet-Cookie: admin=true", Method: "GET"},
	}
	c, err := Normalize(raw, testNow)
	require.NoError(t, err)
	assert.Equal(t, "crlf", c.Paths[0].AttackType)
	// The persisted path itself is scrubbed.
	assert.NotContains(t, c.Paths[0].Path, "\r")
}

func TestNormalizeIsIdempotentPerInput(t *testing.T) {
	a, _ := Normalize(rawSession(), testNow)
	b, _ := Normalize(rawSession(), testNow)
	assert.Equal(t, a, b)
}

func TestNormalizeGeoHint(t *testing.T) {
	raw := rawSession()
	raw.Location = &model.GeoLocation{Country: " Germany ", CountryCode: "de"}
	c, _ := Normalize(raw, testNow)
	assert.Equal(t, "Germany", c.Location.Country)
	assert.Equal(t, "DE", c.Location.CountryCode)
}
