package sanitize

import (
	"regexp"
)

// Placeholder tokens substituted for variable parts of a message.
const (
	PlaceholderPath   = "<PATH>"
	PlaceholderLine   = "<LINE>"
	PlaceholderColumn = "<COL>"
	PlaceholderHex    = "<HEX>"
	PlaceholderIdent  = "<IDENT>"
	PlaceholderString = "<STRING>"
)

// placeholderRegex finds tokens produced by the built-in rules. A rule never
// rewrites a span that overlaps one of these.
var placeholderRegex = regexp.MustCompile(`<(?:PATH|LINE|COL|HEX|IDENT|STRING)>`)

// Span is a half-open byte range [Start, End) inside a message.
type Span struct {
	Start int
	End   int
}

func (s Span) overlaps(o Span) bool {
	return s.Start < o.End && o.Start < s.End
}

// Rule finds the parts of a message that should be replaced by a placeholder.
type Rule interface {
	// Name identifies the rule in configuration.
	Name() string

	// Placeholder is the token substituted for every span the rule finds.
	Placeholder() string

	// Find returns the non-overlapping spans to replace, in ascending order.
	Find(text string) []Span
}

// RegexRule is a Rule backed by a regular expression. When Group is non-zero
// only that capture group is replaced, which lets a rule use surrounding text
// as context without rewriting it.
type RegexRule struct {
	RuleName    string
	Regex       *regexp.Regexp
	Group       int
	Token       string
	Description string
}

// Name implements Rule.
func (r RegexRule) Name() string { return r.RuleName }

// Placeholder implements Rule.
func (r RegexRule) Placeholder() string { return r.Token }

// Find implements Rule.
func (r RegexRule) Find(text string) []Span {
	matches := r.Regex.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}
	spans := make([]Span, 0, len(matches))
	for _, m := range matches {
		start, end := m[2*r.Group], m[2*r.Group+1]
		if start < 0 || start == end {
			continue
		}
		spans = append(spans, Span{Start: start, End: end})
	}
	return spans
}

var (
	// C:\Users\duck\Duck.java
	windowsPathRegex = regexp.MustCompile(`\b[A-Za-z]:\\(?:[^\\\s:*?"<>|()]+\\)*[^\\\s:*?"<>|()]+`)

	// /home/user/Foo.java, needs at least two segments.
	unixPathRegex = regexp.MustCompile(`(?:^|[\s('"=])((?:/[\w.$-]+){2,})`)

	// ducks/Mallard.class
	relativePathRegex = regexp.MustCompile(`\b[\w$.-]+(?:/[\w$.-]+)+\.(?:java|class|jar)\b`)

	// Mallard.java
	fileNameRegex = regexp.MustCompile(`\b[\w$-]+\.(?:java|class|jar)\b`)

	// <PATH>:12 or "line 12"
	lineRegex = regexp.MustCompile(`(?:<PATH>:|\bline )(\d+)`)

	// <LINE>:7
	columnRegex = regexp.MustCompile(`<LINE>:(\d+)`)

	// 0x1F
	hexLiteralRegex = regexp.MustCompile(`\b0[xX][0-9a-fA-F]+\b`)

	// Duck@1b6d3586
	identityHashRegex = regexp.MustCompile(`@([0-9a-f]{5,8})\b`)

	// java.lang.String, not preceded by a dot so System.out.println stays put.
	qualifiedNameRegex = regexp.MustCompile(`(?:^|[^\w$.])([a-z][\w$]*(?:\.[A-Za-z_$][\w$]*)+)`)

	// "quack"
	stringLiteralRegex = regexp.MustCompile(`"(?:[^"\\\n]|\\.)*"`)
)

// BuiltInRules contains every available rule keyed by name.
var BuiltInRules = map[string]Rule{
	"path_windows": RegexRule{
		RuleName:    "path_windows",
		Regex:       windowsPathRegex,
		Token:       PlaceholderPath,
		Description: "Windows drive paths",
	},
	"path_unix": RegexRule{
		RuleName:    "path_unix",
		Regex:       unixPathRegex,
		Group:       1,
		Token:       PlaceholderPath,
		Description: "absolute Unix paths",
	},
	"path_relative": RegexRule{
		RuleName:    "path_relative",
		Regex:       relativePathRegex,
		Token:       PlaceholderPath,
		Description: "relative paths to Java sources, classes and jars",
	},
	"file_name": RegexRule{
		RuleName:    "file_name",
		Regex:       fileNameRegex,
		Token:       PlaceholderPath,
		Description: "bare .java, .class and .jar file names",
	},
	"line": RegexRule{
		RuleName:    "line",
		Regex:       lineRegex,
		Group:       1,
		Token:       PlaceholderLine,
		Description: "line numbers after a path or the word line",
	},
	"column": RegexRule{
		RuleName:    "column",
		Regex:       columnRegex,
		Group:       1,
		Token:       PlaceholderColumn,
		Description: "column numbers after a line number",
	},
	"hex_literal": RegexRule{
		RuleName:    "hex_literal",
		Regex:       hexLiteralRegex,
		Token:       PlaceholderHex,
		Description: "0x prefixed hexadecimal literals",
	},
	"identity_hash": RegexRule{
		RuleName:    "identity_hash",
		Regex:       identityHashRegex,
		Group:       1,
		Token:       PlaceholderHex,
		Description: "Object.toString identity hashes",
	},
	"qualified_name": RegexRule{
		RuleName:    "qualified_name",
		Regex:       qualifiedNameRegex,
		Group:       1,
		Token:       PlaceholderIdent,
		Description: "package qualified Java names",
	},
	"string_literal": RegexRule{
		RuleName:    "string_literal",
		Regex:       stringLiteralRegex,
		Token:       PlaceholderString,
		Description: "double quoted string literals",
	},
}

// DefaultRules returns the rule names applied when none are configured, in
// the order they run. Paths must be masked before line numbers, and line
// numbers before columns.
func DefaultRules() []string {
	return []string{
		"path_windows",
		"path_unix",
		"path_relative",
		"file_name",
		"line",
		"column",
		"hex_literal",
		"identity_hash",
		"qualified_name",
		"string_literal",
	}
}

// GetRules returns the rules matching the given names, in the given order.
// Unknown rule names are silently ignored.
func GetRules(names []string) []Rule {
	rules := make([]Rule, 0, len(names))
	for _, name := range names {
		if rule, ok := BuiltInRules[name]; ok {
			rules = append(rules, rule)
		}
	}
	return rules
}

// maxMaskPasses bounds the fixpoint loop in Mask. Every pass that changes the
// text strictly reduces the number of unmasked bytes, so the loop ends well
// before this in practice.
const maxMaskPasses = 8

// Masker applies an ordered list of rules to a message.
type Masker struct {
	rules []Rule
}

// NewMasker creates a Masker for the named rules. An empty or entirely
// unknown list falls back to DefaultRules.
func NewMasker(names []string) *Masker {
	rules := GetRules(names)
	if len(rules) == 0 {
		rules = GetRules(DefaultRules())
	}
	return &Masker{rules: rules}
}

// NewMaskerWithRules creates a Masker from explicit Rule values.
func NewMaskerWithRules(rules ...Rule) *Masker {
	return &Masker{rules: rules}
}

// Rules returns the names of the active rules in application order.
func (m *Masker) Rules() []string {
	names := make([]string, len(m.rules))
	for i, r := range m.rules {
		names[i] = r.Name()
	}
	return names
}

// Mask applies every rule in order and repeats until the text stops changing,
// so Mask(Mask(s)) == Mask(s).
func (m *Masker) Mask(text string) string {
	for pass := 0; pass < maxMaskPasses; pass++ {
		next := text
		for _, rule := range m.rules {
			next = apply(next, rule)
		}
		if next == text {
			return text
		}
		text = next
	}
	return text
}

// apply replaces every span the rule finds that does not touch an existing
// placeholder.
func apply(text string, rule Rule) string {
	spans := rule.Find(text)
	if len(spans) == 0 {
		return text
	}

	var protected []Span
	for _, loc := range placeholderRegex.FindAllStringIndex(text, -1) {
		protected = append(protected, Span{Start: loc[0], End: loc[1]})
	}

	out := make([]byte, 0, len(text))
	last := 0
	for _, sp := range spans {
		if sp.Start < last || touches(sp, protected) {
			continue
		}
		out = append(out, text[last:sp.Start]...)
		out = append(out, rule.Placeholder()...)
		last = sp.End
	}
	out = append(out, text[last:]...)
	return string(out)
}

func touches(sp Span, protected []Span) bool {
	for _, p := range protected {
		if sp.overlaps(p) {
			return true
		}
	}
	return false
}
