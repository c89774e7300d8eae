package search

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// markupTag matches the inline and break tags providers actually emit.
// Anything else that looks like a tag, such as "List<T>", is left alone.
var markupTag = regexp.MustCompile(`(?i)</?(?:strong|b|em|i|u|mark|span|a|br|p|div)(?:\s[^<>]*)?/?>`)

// CleanText strips HTML markup and decodes entities in provider free
// text. Brave wraps matched terms in <strong>, and YouTube titles
// arrive with entities like &#39; and &amp; still encoded. Runs of
// whitespace collapse to one space.
func CleanText(s string) string {
	if strings.Contains(s, "<") {
		s = markupTag.ReplaceAllStringFunc(s, func(tag string) string {
			// Breaks would otherwise glue words together.
			name := strings.ToLower(strings.Trim(tag, "</> "))
			if strings.HasPrefix(name, "br") || name == "p" || strings.HasPrefix(name, "p ") {
				return " "
			}
			return ""
		})
	}
	if strings.Contains(s, "&") {
		s = html.UnescapeString(s)
	}
	return strings.Join(strings.Fields(s), " ")
}
