// Package redact strips PHI-shaped substrings from text that is stored on
// processing jobs.
package redact

import (
	"regexp"
	"unicode/utf8"
)

const (
	EmailPlaceholder = "[REDACTED_EMAIL]"
	UUIDPlaceholder  = "[REDACTED_ID]"
	DatePlaceholder  = "[REDACTED_DATE]"
	TruncationMarker = "...[truncated]"

	DefaultMaxChars = 500
)

const monthNames = `januar|jänner|jaenner|februar|märz|maerz|april|mai|juni|juli|august|september|oktober|november|dezember|` +
	`january|february|march|may|june|july|october|december|` +
	`jan|feb|mär|mar|apr|jun|jul|aug|sept|sep|okt|oct|nov|dez|dec`

var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	uuidRe  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\b`)
	dateRes = []*regexp.Regexp{
		regexp.MustCompile(`\b\d{4}-\d{1,2}-\d{1,2}(?:[T ]\d{2}:\d{2}(?::\d{2}(?:\.\d+)?)?(?:Z|[+\-]\d{2}:?\d{2})?)?\b`),
		regexp.MustCompile(`\b\d{4}[/.]\d{1,2}[/.]\d{1,2}\b`),
		regexp.MustCompile(`\b\d{1,2}\.\d{1,2}\.\d{2,4}\b`),
		regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{2,4}\b`),
		regexp.MustCompile(`\b\d{1,2}-\d{1,2}-\d{2,4}\b`),
		// 15. März 2024, 15 March 2024
		regexp.MustCompile(`(?i)\b\d{1,2}\.?\s*(?:` + monthNames + `)\.?,?\s+\d{2,4}\b`),
		// March 15, 2024
		regexp.MustCompile(`(?i)\b(?:` + monthNames + `)\.?\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}\b`),
	}
)

// Message replaces emails, UUIDs and dates with placeholders, in that order,
// and truncates the result to at most maxChars runes including the marker.
// maxChars <= 0 selects DefaultMaxChars.
func Message(msg string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	out := emailRe.ReplaceAllString(msg, EmailPlaceholder)
	out = uuidRe.ReplaceAllString(out, UUIDPlaceholder)
	for _, re := range dateRes {
		out = re.ReplaceAllString(out, DatePlaceholder)
	}
	return truncate(out, maxChars)
}

func truncate(s string, maxChars int) string {
	if utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	keep := maxChars - utf8.RuneCountInString(TruncationMarker)
	if keep < 0 {
		keep = 0
	}
	runes := []rune(s)
	return string(runes[:keep]) + TruncationMarker
}
