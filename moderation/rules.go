package moderation

import (
	"fmt"
	"regexp"
	"strings"
)

// Rule is a compiled banned-word rule. A rule is either a literal pattern,
// matched as a case-sensitive substring, or a regular expression, compiled
// case-insensitively at load time. The asymmetry (literal case-sensitive,
// regex case-insensitive) is inherited product behavior; see rules_test.go.
type Rule struct {
	pattern string
	re      *regexp.Regexp // nil for literal rules
}

// CompileRule builds a Rule from its stored form. Regex patterns that fail to
// compile are surfaced as errors rather than silently skipped.
func CompileRule(pattern string, isRegex bool) (Rule, error) {
	if !isRegex {
		return Rule{pattern: pattern}, nil
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return Rule{}, fmt.Errorf("compile banned-word regex %q: %w", pattern, err)
	}
	return Rule{pattern: pattern, re: re}, nil
}

// Pattern returns the rule's source pattern as stored.
func (r Rule) Pattern() string { return r.pattern }

// IsRegex reports whether the rule is a compiled regular expression.
func (r Rule) IsRegex() bool { return r.re != nil }

// Matches reports whether text violates the rule.
func (r Rule) Matches(text string) bool {
	if r.re != nil {
		return r.re.MatchString(text)
	}
	return strings.Contains(text, r.pattern)
}
