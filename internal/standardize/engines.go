package standardize

import (
	"fmt"
	"strings"

	"github.com/jonathan/a11y-auditor/internal/types"
)

// axe: {details: {violations: [rule], incomplete: [rule]}}
type axeNode struct {
	Target []string `json:"target"`
	HTML   string   `json:"html"`
	Impact string   `json:"impact"`
}

type axeRule struct {
	ID          string    `json:"id"`
	Impact      string    `json:"impact"`
	Help        string    `json:"help"`
	Description string    `json:"description"`
	Nodes       []axeNode `json:"nodes"`
}

type axeResult struct {
	Details struct {
		Violations []axeRule `json:"violations"`
		Incomplete []axeRule `json:"incomplete"`
	} `json:"details"`
}

func convertAxe(result map[string]any) ([]types.StandardInstance, error) {
	var native axeResult
	if err := decode(result, &native); err != nil {
		return nil, err
	}
	var instances []types.StandardInstance
	add := func(rules []axeRule, table map[string]int) {
		for _, rule := range rules {
			what := rule.Help
			if what == "" {
				what = rule.Description
			}
			for _, node := range rule.Nodes {
				impact := node.Impact
				if impact == "" {
					impact = rule.Impact
				}
				severity, ok := table[impact]
				if !ok {
					continue
				}
				selector := ""
				if len(node.Target) > 0 {
					selector = node.Target[0]
				}
				instances = append(instances, types.StandardInstance{
					RuleID:          rule.ID,
					What:            what,
					OrdinalSeverity: severity,
					Location:        selectorLocation(selector),
					Excerpt:         node.HTML,
				})
			}
		}
	}
	add(native.Details.Violations, axeViolationSeverity)
	add(native.Details.Incomplete, axeIncompleteSeverity)
	return instances, nil
}

// alfa: {items: [{verdict, rule: {ruleID, ruleSummary}, target: {tagName, path, codeLines}}]}
type alfaResult struct {
	Items []struct {
		Verdict string `json:"verdict"`
		Rule    struct {
			RuleID      string `json:"ruleID"`
			RuleSummary string `json:"ruleSummary"`
		} `json:"rule"`
		Target struct {
			TagName   string   `json:"tagName"`
			Path      string   `json:"path"`
			CodeLines []string `json:"codeLines"`
		} `json:"target"`
	} `json:"items"`
}

func convertAlfa(result map[string]any) ([]types.StandardInstance, error) {
	var native alfaResult
	if err := decode(result, &native); err != nil {
		return nil, err
	}
	var instances []types.StandardInstance
	for _, item := range native.Items {
		severity, ok := alfaSeverity[item.Verdict]
		if !ok {
			continue
		}
		instances = append(instances, types.StandardInstance{
			RuleID:          item.Rule.RuleID,
			What:            item.Rule.RuleSummary,
			OrdinalSeverity: severity,
			TagName:         strings.ToUpper(item.Target.TagName),
			Location:        xpathLocation(item.Target.Path),
			Excerpt:         strings.Join(item.Target.CodeLines, " "),
		})
	}
	return instances, nil
}

// aslint: {rules: {ruleID: {issueType, description, results: [{selector, html, message}]}}}
type aslintResult struct {
	Rules map[string]struct {
		IssueType   string `json:"issueType"`
		Description string `json:"description"`
		Results     []struct {
			Selector string `json:"selector"`
			HTML     string `json:"html"`
			Message  string `json:"message"`
		} `json:"results"`
	} `json:"rules"`
}

func convertASLint(result map[string]any) ([]types.StandardInstance, error) {
	var native aslintResult
	if err := decode(result, &native); err != nil {
		return nil, err
	}
	var instances []types.StandardInstance
	for _, ruleID := range sortedKeys(native.Rules) {
		rule := native.Rules[ruleID]
		severity, ok := aslintSeverity[rule.IssueType]
		if !ok {
			continue
		}
		for _, r := range rule.Results {
			what := r.Message
			if what == "" {
				what = rule.Description
			}
			instances = append(instances, types.StandardInstance{
				RuleID:          ruleID,
				What:            what,
				OrdinalSeverity: severity,
				Location:        selectorLocation(r.Selector),
				Excerpt:         r.HTML,
			})
		}
	}
	return instances, nil
}

// ed11y: {results: [{test, type, content, tagName, id, box, excerpt}]}
type ed11yResult struct {
	Results []struct {
		Test    string     `json:"test"`
		Type    string     `json:"type"`
		Content string     `json:"content"`
		TagName string     `json:"tagName"`
		ID      string     `json:"id"`
		Box     *types.Box `json:"box"`
		Excerpt string     `json:"excerpt"`
	} `json:"results"`
}

func convertEd11y(result map[string]any) ([]types.StandardInstance, error) {
	var native ed11yResult
	if err := decode(result, &native); err != nil {
		return nil, err
	}
	var instances []types.StandardInstance
	for _, r := range native.Results {
		severity, ok := ed11ySeverity[r.Type]
		if !ok {
			continue
		}
		loc := types.Location{Doc: types.DocDOM}
		if r.Box != nil {
			loc = types.Location{Doc: types.DocDOM, Type: types.LocationBox, Spec: *r.Box}
		}
		instances = append(instances, types.StandardInstance{
			RuleID:          r.Test,
			What:            r.Content,
			OrdinalSeverity: severity,
			TagName:         strings.ToUpper(r.TagName),
			ID:              r.ID,
			Location:        loc,
			Excerpt:         r.Excerpt,
		})
	}
	return instances, nil
}

// htmlcs: {messages: ["type|code|tagName|id|message|excerpt", ...]}
type htmlcsResult struct {
	Messages []string `json:"messages"`
}

func convertHTMLCS(result map[string]any) ([]types.StandardInstance, error) {
	var native htmlcsResult
	if err := decode(result, &native); err != nil {
		return nil, err
	}
	var instances []types.StandardInstance
	for _, msg := range native.Messages {
		parts := strings.SplitN(msg, "|", 6)
		if len(parts) != 6 {
			return nil, fmt.Errorf("htmlcs message has %d fields: %q", len(parts), msg)
		}
		severity, ok := htmlcsSeverity[strings.ToLower(parts[0])]
		if !ok {
			continue
		}
		instances = append(instances, types.StandardInstance{
			RuleID:          parts[1],
			What:            parts[4],
			OrdinalSeverity: severity,
			TagName:         strings.ToUpper(parts[2]),
			ID:              parts[3],
			Location:        types.Location{Doc: types.DocDOM},
			Excerpt:         parts[5],
		})
	}
	return instances, nil
}

// ibm: {items: [{ruleId, level, message, path: {dom}, snippet}]}
type ibmResult struct {
	Items []struct {
		RuleID  string `json:"ruleId"`
		Level   string `json:"level"`
		Message string `json:"message"`
		Path    struct {
			DOM string `json:"dom"`
		} `json:"path"`
		Snippet string `json:"snippet"`
	} `json:"items"`
}

func convertIBM(result map[string]any) ([]types.StandardInstance, error) {
	var native ibmResult
	if err := decode(result, &native); err != nil {
		return nil, err
	}
	var instances []types.StandardInstance
	for _, item := range native.Items {
		severity, ok := ibmSeverity[item.Level]
		if !ok {
			continue
		}
		instances = append(instances, types.StandardInstance{
			RuleID:          item.RuleID,
			What:            item.Message,
			OrdinalSeverity: severity,
			Location:        xpathLocation(item.Path.DOM),
			Excerpt:         item.Snippet,
		})
	}
	return instances, nil
}

// qualWeb: {modules: {module: {assertions: {code: {code, name, results: [{verdict, description, elements: [{pointer, htmlCode}]}]}}}}
type qualWebResult struct {
	Modules map[string]struct {
		Assertions map[string]struct {
			Code    string `json:"code"`
			Name    string `json:"name"`
			Results []struct {
				Verdict     string `json:"verdict"`
				Description string `json:"description"`
				Elements    []struct {
					Pointer  string `json:"pointer"`
					HTMLCode string `json:"htmlCode"`
				} `json:"elements"`
			} `json:"results"`
		} `json:"assertions"`
	} `json:"modules"`
}

func convertQualWeb(result map[string]any) ([]types.StandardInstance, error) {
	var native qualWebResult
	if err := decode(result, &native); err != nil {
		return nil, err
	}
	var instances []types.StandardInstance
	for _, module := range sortedKeys(native.Modules) {
		table, ok := qualWebSeverity[module]
		if !ok {
			continue
		}
		assertions := native.Modules[module].Assertions
		for _, key := range sortedKeys(assertions) {
			rule := assertions[key]
			ruleID := rule.Code
			if ruleID == "" {
				ruleID = key
			}
			for _, r := range rule.Results {
				severity, ok := table[r.Verdict]
				if !ok {
					continue
				}
				what := r.Description
				if what == "" {
					what = rule.Name
				}
				if len(r.Elements) == 0 {
					instances = append(instances, types.StandardInstance{
						RuleID:          ruleID,
						What:            what,
						OrdinalSeverity: severity,
						Location:        types.Location{Doc: types.DocDOM},
					})
					continue
				}
				for _, el := range r.Elements {
					instances = append(instances, types.StandardInstance{
						RuleID:          ruleID,
						What:            what,
						OrdinalSeverity: severity,
						Location:        selectorLocation(el.Pointer),
						Excerpt:         el.HTMLCode,
					})
				}
			}
		}
	}
	return instances, nil
}

// wax: {violations: [{rule, message, severity, element}]}
type waxResult struct {
	Violations []struct {
		Rule     string `json:"rule"`
		Message  string `json:"message"`
		Severity string `json:"severity"`
		Element  string `json:"element"`
	} `json:"violations"`
}

func convertWAX(result map[string]any) ([]types.StandardInstance, error) {
	var native waxResult
	if err := decode(result, &native); err != nil {
		return nil, err
	}
	var instances []types.StandardInstance
	for _, v := range native.Violations {
		severity, ok := waxSeverity[v.Severity]
		if !ok {
			continue
		}
		ruleID := v.Rule
		if ruleID == "" {
			ruleID = v.Message
		}
		instances = append(instances, types.StandardInstance{
			RuleID:          ruleID,
			What:            v.Message,
			OrdinalSeverity: severity,
			Location:        types.Location{Doc: types.DocDOM},
			Excerpt:         v.Element,
		})
	}
	return instances, nil
}
