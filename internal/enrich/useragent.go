package enrich

import (
	"strings"

	"github.com/snarelab/hivetrace/internal/model"
)

// Tool substrings checked in order; the first match wins. Scanners first so
// "sqlmap/1.7" never classifies as a generic bot.
var knownTools = []string{
	"sqlmap", "nikto", "nmap", "masscan", "nessus", "acunetix", "burp",
	"zap", "metasploit", "wget", "curl", "python-requests", "go-http-client",
	"scanner",
}

var botMarkers = []string{"bot", "crawler", "spider", "scraper"}

var browserMarkers = []string{"mozilla", "chrome", "safari", "firefox", "edge", "opera"}

// AnalyzeUserAgent classifies the client software behind a session.
func AnalyzeUserAgent(ua string) model.UserAgentInfo {
	info := model.UserAgentInfo{}
	lower := strings.ToLower(strings.TrimSpace(ua))

	for _, tool := range knownTools {
		if strings.Contains(lower, tool) {
			info.IsScanner = true
			info.ToolIdentified = tool
			break
		}
	}

	if !info.IsScanner {
		for _, marker := range botMarkers {
			if strings.Contains(lower, marker) {
				info.IsBot = true
				break
			}
		}
	}

	if !info.IsScanner && !info.IsBot {
		for _, marker := range browserMarkers {
			if strings.Contains(lower, marker) {
				info.IsBrowser = true
				break
			}
		}
	}

	// Missing, placeholder or very short user agents are suspicious on
	// their own; so is any identified attack tool.
	info.Suspicious = info.IsScanner ||
		lower == "" || lower == "-" || lower == "unknown" || len(lower) < 10

	return info
}
