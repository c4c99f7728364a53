package classify

import "regexp"

// Attack names as they appear on sessions and in persisted artifacts.
const (
	AttackXSS                = "xss"
	AttackCmdExec            = "cmd_exec"
	AttackLFI                = "lfi"
	AttackRFI                = "rfi"
	AttackPHPCodeInjection   = "php_code_injection"
	AttackPHPObjectInjection = "php_object_injection"
	AttackCRLF               = "crlf"
	AttackXXE                = "xxe_injection"
	AttackTemplateInjection  = "template_injection"
	AttackSQLI               = "sqli"

	LabelIndex     = "index"
	LabelWPContent = "wp-content"
	LabelUnknown   = "unknown"
)

// phpObjectRE is shared with the cookie scanner, which only checks a subset
// of categories.
var phpObjectRE = regexp.MustCompile(`(^|[;{}])O:[0-9]+:`)

// attackRule is one pattern-matched attack category. Order is the detection
// priority: within a request, higher-order attacks are reported first.
type attackRule struct {
	Name     string
	Order    int
	Patterns []*regexp.Regexp
}

// rules holds every pattern-based category except SQLi, which needs a
// two-step check (see detectSQLI). Scan order here is the tie-break order for
// categories of equal priority.
var rules = []attackRule{
	{
		Name:  AttackXSS,
		Order: 3,
		Patterns: compile(
			// Any HTML-tag-like sequence, possibly spanning lines.
			`<(?s:.)*?>`,
		),
	},
	{
		Name:  AttackCmdExec,
		Order: 3,
		Patterns: compile(
			// Shell command preceded by a delimiter and closed by a
			// non-identifier boundary.
			`[^A-Za-z:./](alias|cat|cd|cp|echo|exec|find|for|grep|ifconfig|ls|man|mkdir|netstat|ping|ps|pwd|uname|wget|touch|while)([^A-Za-z:./]|\b)`,
		),
	},
	{
		Name:  AttackLFI,
		Order: 2,
		Patterns: compile(
			`(/\.\.)*(home|proc|usr|etc)/`,
		),
	},
	{
		Name:  AttackRFI,
		Order: 2,
		Patterns: compile(
			`(?i)(http(s)?|ftp(s)?):`,
		),
	},
	{
		Name:  AttackPHPCodeInjection,
		Order: 2,
		Patterns: compile(
			`(;)*(echo|system|print|phpinfo)(\((?s:.)*\))`,
		),
	},
	{
		Name:     AttackPHPObjectInjection,
		Order:    2,
		Patterns: []*regexp.Regexp{phpObjectRE},
	},
	{
		Name:  AttackCRLF,
		Order: 2,
		Patterns: compile(
			`\r\n`,
		),
	},
	{
		Name:  AttackXXE,
		Order: 2,
		Patterns: compile(
			`<(\?xml|!DOCTYPE)`,
		),
	},
	{
		Name:  AttackTemplateInjection,
		Order: 2,
		Patterns: compile(
			`<%(?s:.)*?%>`,
			`\{\{(?s:.)*?\}\}`,
		),
	},
}

const sqliOrder = 2

// SQLi detection runs in two steps: a keyword match alone is enough;
// otherwise a quote/semicolon character combined with an indicator token.
var (
	sqliKeywordRE = regexp.MustCompile(`(?i)(union|select|insert|update|delete|drop|create|alter|exec|declare|cast|concat)`)
	sqliCharsRE   = regexp.MustCompile(`['";]`)

	sqliIndicators = []string{
		"or ", "and ", "union", "select", "insert", "update", "delete",
		"--", "/*", "*/", "@@", "char(", "concat(", "0x",
	}
)

// Benign-traffic labels, recognised when no attack pattern matched.
var (
	indexRE     = regexp.MustCompile(`^(/index\.html|/)`)
	wpContentRE = regexp.MustCompile(`^/wp-content/`)
)

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}
