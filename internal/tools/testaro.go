package tools

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/jonathan/a11y-auditor/internal/browser"
	"github.com/jonathan/a11y-auditor/internal/excerpt"
	"github.com/jonathan/a11y-auditor/internal/types"
)

// maxExcerpt bounds the markup captured per instance.
const maxExcerpt = 400

// rule is one built-in check over the page DOM.
type rule struct {
	id       string
	what     string
	severity int
	// find returns the offending elements; document-level rules return the
	// document's html element.
	find func(doc *goquery.Document) *goquery.Selection
}

// testaroRules are run in this order unless the act names its own.
var testaroRules = []rule{
	{
		id:       "adbID",
		what:     "Referenced ID for aria-describedby missing or ambiguous",
		severity: 3,
		find:     findBadDescribedBy,
	},
	{
		id:       "docType",
		what:     "Document has no standard HTML doctype",
		severity: 3,
		find:     findMissingDocType,
	},
	{
		id:       "embAc",
		what:     "Active element embedded in a link or button",
		severity: 2,
		find: func(doc *goquery.Document) *goquery.Selection {
			return doc.Find("a a, a button, a input, a select, a textarea, button a, button button, button input, button select, button textarea")
		},
	},
	{
		id:       "hr",
		what:     "Element instead of styling used for vertical segmentation",
		severity: 0,
		find: func(doc *goquery.Document) *goquery.Selection {
			return doc.Find("hr")
		},
	},
	{
		id:       "linkExt",
		what:     "Link has a target=_blank attribute",
		severity: 0,
		find: func(doc *goquery.Document) *goquery.Selection {
			return doc.Find(`a[target="_blank"]`)
		},
	},
	{
		id:       "linkTitle",
		what:     "Link has a title attribute",
		severity: 0,
		find: func(doc *goquery.Document) *goquery.Selection {
			return doc.Find("a[title]")
		},
	},
	{
		id:       "phOnly",
		what:     "Input has no label other than a placeholder",
		severity: 2,
		find:     findPlaceholderOnly,
	},
	{
		id:       "titledEl",
		what:     "Title attribute belongs to an inappropriate element",
		severity: 1,
		find: func(doc *goquery.Document) *goquery.Selection {
			return doc.Find("[title]").FilterFunction(func(_ int, s *goquery.Selection) bool {
				switch goquery.NodeName(s) {
				case "a", "abbr", "button", "iframe", "input", "link", "select", "style", "textarea":
					return false
				}
				return true
			})
		},
	},
}

// TestaroRuleIDs lists the built-in rule ids.
func TestaroRuleIDs() []string {
	ids := make([]string, len(testaroRules))
	for i, r := range testaroRules {
		ids[i] = r.id
	}
	return ids
}

func lookupRule(id string) (rule, bool) {
	for _, r := range testaroRules {
		if r.id == id {
			return r, true
		}
	}
	return rule{}, false
}

func findBadDescribedBy(doc *goquery.Document) *goquery.Selection {
	return doc.Find("[aria-describedby]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		for _, id := range strings.Fields(s.AttrOr("aria-describedby", "")) {
			count := 0
			doc.Find("[id]").Each(func(_ int, t *goquery.Selection) {
				if t.AttrOr("id", "") == id {
					count++
				}
			})
			if count != 1 {
				return true
			}
		}
		return false
	})
}

func findMissingDocType(doc *goquery.Document) *goquery.Selection {
	for _, root := range doc.Nodes {
		for c := root.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.DoctypeNode && strings.EqualFold(c.Data, "html") {
				return doc.FindNodes()
			}
		}
	}
	return doc.Find("html").First()
}

func findPlaceholderOnly(doc *goquery.Document) *goquery.Selection {
	return doc.Find("input[placeholder], textarea[placeholder]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		for _, attr := range []string{"aria-label", "aria-labelledby", "title"} {
			if strings.TrimSpace(s.AttrOr(attr, "")) != "" {
				return false
			}
		}
		if s.Closest("label").Length() > 0 {
			return false
		}
		if id := s.AttrOr("id", ""); id != "" {
			labelled := doc.Find("label[for]").FilterFunction(func(_ int, l *goquery.Selection) bool {
				return l.AttrOr("for", "") == id
			})
			if labelled.Length() > 0 {
				return false
			}
		}
		return true
	})
}

// testaroRuleResult is the native result of one rule.
type testaroRuleResult struct {
	What              string                   `json:"what"`
	Totals            [4]int                   `json:"totals"`
	StandardInstances []types.StandardInstance `json:"standardInstances"`
}

// Testaro is the built-in rule engine. It checks the page's serialized DOM.
type Testaro struct {
	log *zap.Logger
}

// NewTestaro creates the built-in rule engine.
func NewTestaro(log *zap.Logger) *Testaro {
	if log == nil {
		log = zap.NewNop()
	}
	return &Testaro{log: log}
}

func (t *Testaro) Name() string { return "testaro" }

func (t *Testaro) Run(ctx context.Context, page browser.Page, act *types.TestAct, timeLimit time.Duration) (map[string]any, map[string]any, error) {
	content, err := page.Content(ctx)
	if err != nil {
		return nil, nil, &Error{Tool: t.Name(), Message: "failed to read page content", Cause: err}
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, nil, &Error{Tool: t.Name(), Message: "failed to parse page content", Cause: err}
	}

	ids := act.Rules
	if len(ids) == 0 {
		ids = TestaroRuleIDs()
	}

	results := make(map[string]testaroRuleResult)
	ruleTimes := make(map[string]int64)
	var unknown []string
	stoppedAt := ""
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, nil, &Error{Tool: t.Name(), Message: "interrupted before rule " + id, Cause: err}
		}
		r, ok := lookupRule(id)
		if !ok {
			unknown = append(unknown, id)
			continue
		}
		start := time.Now()
		results[id] = runRule(r, doc, act.Items())
		ruleTimes[id] = time.Since(start).Milliseconds()
		t.log.Debug("testaro rule done",
			zap.String("rule", id),
			zap.Int("instances", len(results[id].StandardInstances)))
		if act.StopOnFail && len(results[id].StandardInstances) > 0 {
			stoppedAt = id
			break
		}
	}

	result, err := toMap(results)
	if err != nil {
		return nil, nil, &Error{Tool: t.Name(), Message: "failed to build result", Cause: err}
	}
	data := map[string]any{
		"ruleTimes": ruleTimes,
	}
	if len(unknown) > 0 {
		data["unknownRules"] = unknown
	}
	if stoppedAt != "" {
		data["stoppedAt"] = stoppedAt
	}
	return data, result, nil
}

func runRule(r rule, doc *goquery.Document, withItems bool) testaroRuleResult {
	found := r.find(doc)
	res := testaroRuleResult{What: r.what, StandardInstances: []types.StandardInstance{}}
	count := found.Length()
	if count == 0 {
		return res
	}
	res.Totals[r.severity] = count
	if !withItems {
		inst := types.StandardInstance{
			RuleID:          r.id,
			What:            r.what,
			OrdinalSeverity: r.severity,
			Location:        types.Location{Doc: types.DocDOM},
			Count:           count,
		}
		if tag, same := commonTag(found); same {
			inst.TagName = tag
		}
		res.StandardInstances = append(res.StandardInstances, inst)
		return res
	}
	found.Each(func(_ int, s *goquery.Selection) {
		res.StandardInstances = append(res.StandardInstances, types.StandardInstance{
			RuleID:          r.id,
			What:            r.what,
			OrdinalSeverity: r.severity,
			TagName:         strings.ToUpper(goquery.NodeName(s)),
			ID:              s.AttrOr("id", ""),
			Location:        types.Location{Doc: types.DocDOM, Type: types.LocationXPath, Spec: excerpt.XPath(s)},
			Excerpt:         markup(s),
		})
	})
	return res
}

// commonTag returns the upper-case tag name shared by every element, if any.
func commonTag(sel *goquery.Selection) (string, bool) {
	tag := ""
	same := true
	sel.Each(func(i int, s *goquery.Selection) {
		name := strings.ToUpper(goquery.NodeName(s))
		if i == 0 {
			tag = name
		} else if name != tag {
			same = false
		}
	})
	return tag, same && tag != ""
}

// markup returns the element's outer HTML with whitespace collapsed, truncated.
func markup(s *goquery.Selection) string {
	outer, err := goquery.OuterHtml(s)
	if err != nil {
		return ""
	}
	outer = strings.Join(strings.Fields(outer), " ")
	if len(outer) > maxExcerpt {
		cut := maxExcerpt
		for cut > 0 && !utf8.RuneStart(outer[cut]) {
			cut--
		}
		outer = outer[:cut] + "…"
	}
	return outer
}
