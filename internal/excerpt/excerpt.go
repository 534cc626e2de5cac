// Package excerpt extracts element hints from the HTML excerpts reported by accessibility tools.
package excerpt

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	// Fallback patterns for excerpts the tokenizer cannot finish (usually truncated tags).
	leadingTagPattern = regexp.MustCompile(`<([a-zA-Z][a-zA-Z0-9-]*)`)
	idAttrPattern     = regexp.MustCompile(`\sid\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s"'>/=]+))`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// StartTag returns the upper-case name and the id attribute of the first start tag in excerpt.
// Text or comments before the tag are skipped. Both results are empty when no tag is found.
func StartTag(excerpt string) (tagName, id string) {
	z := html.NewTokenizer(strings.NewReader(excerpt))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return fallbackStartTag(excerpt)
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			for _, attr := range tok.Attr {
				if attr.Key == "id" {
					id = attr.Val
					break
				}
			}
			return strings.ToUpper(tok.Data), id
		}
	}
}

// fallbackStartTag handles a leading tag the tokenizer gave up on, such as "<div id="a" cla".
func fallbackStartTag(excerpt string) (string, string) {
	loc := leadingTagPattern.FindStringSubmatchIndex(excerpt)
	if loc == nil {
		return "", ""
	}
	tagName := strings.ToUpper(excerpt[loc[2]:loc[3]])

	rest := excerpt[loc[1]:]
	if end := strings.IndexByte(rest, '>'); end >= 0 {
		rest = rest[:end]
	}
	m := idAttrPattern.FindStringSubmatch(rest)
	if m == nil {
		return tagName, ""
	}
	for _, group := range m[1:] {
		if group != "" {
			return tagName, group
		}
	}
	return tagName, ""
}

// TextRuns returns the whitespace-normalized text segments between tags.
func TextRuns(excerpt string) []string {
	var runs []string
	z := html.NewTokenizer(strings.NewReader(excerpt))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return runs
		}
		if tt != html.TextToken {
			continue
		}
		text := strings.TrimSpace(whitespacePattern.ReplaceAllString(string(z.Text()), " "))
		if text != "" {
			runs = append(runs, text)
		}
	}
}

// LongestTextRun returns the longest plain-text segment of excerpt, or "".
// Ties go to the earliest run.
func LongestTextRun(excerpt string) string {
	longest := ""
	for _, run := range TextRuns(excerpt) {
		if len(run) > len(longest) {
			longest = run
		}
	}
	return longest
}
