package u_string

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	blockTags   = regexp.MustCompile(`(?is)<(script|style|head)[^>]*>.*?</(script|style|head)>`)
	breakTags   = regexp.MustCompile(`(?i)<\s*(br|/p|/div|/tr|/li|/h[1-6])[^>]*>`)
	anyTag      = regexp.MustCompile(`(?s)<[^>]*>`)
	spaceRuns   = regexp.MustCompile(`[ \t\r\f\v]+`)
	newlineRuns = regexp.MustCompile(`\n{3,}`)
	htmlMarker  = regexp.MustCompile(`(?i)<\s*(html|body|div|p|br|table|span|a\s|b>|strong|em>|ul|ol|h[1-6])`)
)

// LooksLikeHTML reports whether s appears to contain HTML markup
func LooksLikeHTML(s string) bool {
	return htmlMarker.MatchString(s)
}

// PlainText strips markup from an HTML body and collapses whitespace.
// Non-HTML input is only trimmed.
func PlainText(s string) string {
	if !LooksLikeHTML(s) {
		return strings.TrimSpace(s)
	}

	s = blockTags.ReplaceAllString(s, "")
	s = breakTags.ReplaceAllString(s, "\n")
	s = anyTag.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = spaceRuns.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	s = strings.Join(lines, "\n")

	return strings.TrimSpace(newlineRuns.ReplaceAllString(s, "\n\n"))
}

// Truncate cuts s to at most n runes
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// FirstJSONObject returns the first balanced {...} substring of s, ignoring
// braces inside JSON strings. It returns "" when no complete object exists.
func FirstJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		ch := s[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}

	return ""
}
