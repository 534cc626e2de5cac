package excerpt

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// XPath returns the index-qualified path of the first element in sel, in the same
// form the browser computes: /html/body/main/p[2], with the index omitted when
// the element has no same-tag siblings.
func XPath(sel *goquery.Selection) string {
	if sel == nil || sel.Length() == 0 {
		return ""
	}
	var parts []string
	for n := sel.Get(0); n != nil && n.Type == html.ElementNode; n = n.Parent {
		parent := n.Parent
		if parent == nil || parent.Type != html.ElementNode {
			parts = append(parts, n.Data)
			break
		}
		count, index := 0, 0
		for c := parent.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.Data == n.Data {
				count++
				if c == n {
					index = count
				}
			}
		}
		if count > 1 {
			parts = append(parts, fmt.Sprintf("%s[%d]", n.Data, index))
		} else {
			parts = append(parts, n.Data)
		}
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return "/" + strings.Join(parts, "/")
}

// ResolveXPath finds the element addressed by an absolute index-qualified path
// such as /html/body/p[2]. Other XPath forms are not supported.
func ResolveXPath(doc *goquery.Document, path string) *goquery.Selection {
	empty := doc.Selection.Slice(0, 0)
	if !strings.HasPrefix(path, "/") || len(doc.Nodes) == 0 {
		return empty
	}
	current := doc.Nodes[0]
	for _, step := range strings.Split(strings.Trim(path, "/"), "/") {
		tag, index := step, 1
		if open := strings.IndexByte(step, '['); open > 0 && strings.HasSuffix(step, "]") {
			i, err := strconv.Atoi(step[open+1 : len(step)-1])
			if err != nil || i < 1 {
				return empty
			}
			tag, index = step[:open], i
		}
		tag = strings.ToLower(tag)

		var next *html.Node
		seen := 0
		for c := current.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.Data == tag {
				seen++
				if seen == index {
					next = c
					break
				}
			}
		}
		if next == nil {
			return empty
		}
		current = next
	}
	return doc.FindNodes(current)
}
