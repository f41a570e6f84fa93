package moderation

import "testing"

func TestCompileRuleLiteral(t *testing.T) {
	rule, err := CompileRule("bigfollows", false)
	if err != nil {
		t.Fatalf("CompileRule: %v", err)
	}
	if rule.IsRegex() {
		t.Error("literal rule reported as regex")
	}
	if rule.Pattern() != "bigfollows" {
		t.Errorf("Pattern() = %q", rule.Pattern())
	}
	if !rule.Matches("buy followers at bigfollows dot com") {
		t.Error("substring should match")
	}
	if rule.Matches("nothing suspicious here") {
		t.Error("non-matching text matched")
	}
}

// Literal rules are case-sensitive substrings while regex rules are compiled
// case-insensitively. Both halves of the asymmetry are pinned here.
func TestRuleCaseSensitivity(t *testing.T) {
	literal, err := CompileRule("bigfollows", false)
	if err != nil {
		t.Fatalf("CompileRule literal: %v", err)
	}
	if literal.Matches("BIGFOLLOWS best viewers") {
		t.Error("literal rule should be case-sensitive")
	}

	regex, err := CompileRule("bigfollows", true)
	if err != nil {
		t.Fatalf("CompileRule regex: %v", err)
	}
	if !regex.IsRegex() {
		t.Error("regex rule not reported as regex")
	}
	if !regex.Matches("BIGFOLLOWS best viewers") {
		t.Error("regex rule should be case-insensitive")
	}
	if !regex.Matches("bigfollows") {
		t.Error("regex rule should match lowercase too")
	}
}

func TestCompileRuleRegexPatterns(t *testing.T) {
	rule, err := CompileRule(`buy \d+ followers`, true)
	if err != nil {
		t.Fatalf("CompileRule: %v", err)
	}
	if !rule.Matches("Buy 500 Followers now") {
		t.Error("regex with class should match")
	}
	if rule.Matches("buy followers") {
		t.Error("regex should require digits")
	}
}

func TestCompileRuleInvalidRegex(t *testing.T) {
	if _, err := CompileRule("[unclosed", true); err == nil {
		t.Error("expected error for invalid regex")
	}
	// The same pattern is fine as a literal.
	if _, err := CompileRule("[unclosed", false); err != nil {
		t.Errorf("literal compile should never fail: %v", err)
	}
}

func TestExtractURLs(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"http", "spam at http://scam.example/x today", []string{"http://scam.example/x"}},
		{"https", "go to https://scam.example now", []string{"https://scam.example"}},
		{"multiple", "http://a.example and https://b.example", []string{"http://a.example", "https://b.example"}},
		{"no scheme", "visit scam.example for followers", nil},
		{"plain text", "hello there", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractURLs(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("url %d: got %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}
