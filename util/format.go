package util

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

// Pre-compiled patterns for the note formatter and the token extractors.
var (
	codeSpanRegex = regexp.MustCompile("`([^`]+)`")
	mdLinkRegex   = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	bareURLRegex  = regexp.MustCompile(`(^|[\s>])(https?://[^\s<]+)`)
	boldRegex     = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	italicRegex   = regexp.MustCompile(`\*([^*]+)\*`)
	mentionRegex  = regexp.MustCompile(`(^|[\s(])(@[a-zA-Z0-9_]+@[a-zA-Z0-9.\-]*[a-zA-Z0-9])`)
	hashtagRegex  = regexp.MustCompile(`(^|[\s(])(#[a-zA-Z0-9_]+)`)
)

// FormatNote renders note text to the HTML stored in a Note's content.
// One canonical pass, applied in a fixed order: code spans, markdown links,
// bare URLs, bold, italic, line breaks. Mention and hashtag tokens are left
// verbatim so the message builder can lift them into tags.
func FormatNote(text string) string {
	s := html.EscapeString(strings.TrimSpace(text))

	s = codeSpanRegex.ReplaceAllString(s, "<code>$1</code>")

	s = mdLinkRegex.ReplaceAllStringFunc(s, func(match string) string {
		m := mdLinkRegex.FindStringSubmatch(match)
		if len(m) != 3 {
			return match
		}
		return fmt.Sprintf(`<a href="%s" rel="noopener noreferrer">%s</a>`, m[2], m[1])
	})

	s = bareURLRegex.ReplaceAllString(s, `$1<a href="$2" rel="noopener noreferrer">$2</a>`)
	s = boldRegex.ReplaceAllString(s, "<b>$1</b>")
	s = italicRegex.ReplaceAllString(s, "<i>$1</i>")
	s = strings.ReplaceAll(s, "\n", "<br>")

	return "<p>" + s + "</p>"
}

// ExtractMentions returns the deduplicated "@user@host" tokens of a text, in
// order of first appearance.
func ExtractMentions(text string) []string {
	return extractTokens(text, mentionRegex)
}

// ExtractHashtags returns the deduplicated "#tag" tokens of a text, in order
// of first appearance.
func ExtractHashtags(text string) []string {
	return extractTokens(text, hashtagRegex)
}

func extractTokens(text string, re *regexp.Regexp) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		token := m[2]
		if !seen[token] {
			seen[token] = true
			out = append(out, token)
		}
	}
	return out
}
