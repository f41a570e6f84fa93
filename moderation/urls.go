package moderation

import "regexp"

// urlPattern matches an http(s) scheme followed by a non-whitespace run.
// Deliberately loose: it feeds the spam-URL audit trail, not the violation
// decision itself.
var urlPattern = regexp.MustCompile(`https?://\S+`)

// ExtractURLs returns every http/https URL-shaped token in text, in order.
func ExtractURLs(text string) []string {
	return urlPattern.FindAllString(text, -1)
}
