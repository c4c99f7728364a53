package enrich

import (
	"regexp"
	"strings"

	"github.com/snarelab/hivetrace/internal/model"
)

// Encoding detectors, checked in this order. Matching runs on the lowercased
// combined payload, so the patterns only need lowercase classes.
var encodingPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"url_encoded", regexp.MustCompile(`%[0-9a-f]{2}`)},
	{"base64_pattern", regexp.MustCompile(`[a-z0-9+/]{20,}={0,2}`)},
	{"hex_encoded", regexp.MustCompile(`(0x[0-9a-f]+|\\x[0-9a-f]{2})`)},
	{"html_entities", regexp.MustCompile(`&#?[a-z0-9]+;`)},
	{"unicode_escaped", regexp.MustCompile(`\\u[0-9a-f]{4}`)},
}

var (
	commandChainRE  = regexp.MustCompile("(;|&&|\\|\\|?|`)\\s*(ls|cat|id|whoami|uname|pwd|echo|curl|wget|nc|bash|sh|rm|ping)\\b")
	pathTraversalRE = regexp.MustCompile(`(\.\./|%2e%2e%2f|%2e%2e/|\.\.%2f)`)
	specialCharRE   = regexp.MustCompile(`[^a-z0-9\s]`)
)

// analyzePayloads computes statistical payload features over every request
// value in the session: path, post body and query parameter values.
func analyzePayloads(paths []model.Path) model.PayloadAnalysis {
	a := model.PayloadAnalysis{EncodingDetected: []string{}}

	var payloads []string
	for _, p := range paths {
		if p.Path != "" {
			payloads = append(payloads, p.Path)
		}
		if p.PostData != "" {
			payloads = append(payloads, p.PostData)
		}
		for _, v := range p.QueryParams {
			if v != "" {
				payloads = append(payloads, v)
			}
		}
	}
	if len(payloads) == 0 {
		a.PayloadComplexity = "low"
		return a
	}

	for _, p := range payloads {
		a.TotalPayloadLength += len(p)
		if len(p) > a.LongestPayload {
			a.LongestPayload = len(p)
		}
	}
	a.AvgPayloadLength = float64(a.TotalPayloadLength) / float64(len(payloads))

	combined := strings.ToLower(strings.Join(payloads, " "))
	for _, enc := range encodingPatterns {
		if enc.re.MatchString(combined) {
			a.EncodingDetected = append(a.EncodingDetected, enc.name)
		}
	}
	a.HasEncodedContent = len(a.EncodingDetected) > 0

	a.HasCommandChaining = commandChainRE.MatchString(combined)
	a.HasPathTraversalPattern = pathTraversalRE.MatchString(combined)

	a.PayloadComplexity = complexityLabel(a, combined)
	return a
}

// complexityLabel scores length, layered encodings and special-character
// density into low / medium / high.
func complexityLabel(a model.PayloadAnalysis, combined string) string {
	score := 0

	switch {
	case a.LongestPayload > 500:
		score += 2
	case a.LongestPayload > 200:
		score++
	}

	score += len(a.EncodingDetected)

	if len(combined) > 0 {
		special := len(specialCharRE.FindAllString(combined, -1))
		if float64(special)/float64(len(combined)) > 0.3 {
			score += 2
		}
	}

	switch {
	case score >= 5:
		return "high"
	case score >= 2:
		return "medium"
	default:
		return "low"
	}
}
