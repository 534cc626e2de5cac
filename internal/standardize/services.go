package standardize

import (
	"regexp"
	"sort"

	"github.com/jonathan/a11y-auditor/internal/types"
)

// nuVal: the validator's JSON output, {messages: [{type, subType, message, extract, lastLine}]}
type nuValResult struct {
	Messages []struct {
		Type     string `json:"type"`
		SubType  string `json:"subType"`
		Message  string `json:"message"`
		Extract  string `json:"extract"`
		LastLine int    `json:"lastLine"`
	} `json:"messages"`
}

// nuValQuoted matches the quoted specifics inside validator messages.
var nuValQuoted = regexp.MustCompile(`“[^”]*”`)

func convertNuVal(result map[string]any) ([]types.StandardInstance, error) {
	var native nuValResult
	if err := decode(result, &native); err != nil {
		return nil, err
	}
	var instances []types.StandardInstance
	for _, msg := range native.Messages {
		key := msg.Type
		if msg.SubType != "" {
			key += "/" + msg.SubType
		}
		severity, ok := nuValSeverity[key]
		if !ok {
			continue
		}
		loc := types.Location{Doc: types.DocSource}
		if msg.LastLine > 0 {
			loc = types.Location{Doc: types.DocSource, Type: types.LocationLine, Spec: msg.LastLine}
		}
		instances = append(instances, types.StandardInstance{
			// messages differ only in their quoted specifics within one rule
			RuleID:          nuValQuoted.ReplaceAllString(msg.Message, "“*”"),
			What:            msg.Message,
			OrdinalSeverity: severity,
			Location:        loc,
			Excerpt:         msg.Extract,
		})
	}
	return instances, nil
}

// wave: the WAVE API response, {categories: {category: {items: {id: {id, description, count, selectors}}}}}
type waveResult struct {
	Categories map[string]struct {
		Items map[string]struct {
			ID          string   `json:"id"`
			Description string   `json:"description"`
			Count       int      `json:"count"`
			Selectors   []string `json:"selectors"`
		} `json:"items"`
	} `json:"categories"`
}

func convertWAVE(result map[string]any) ([]types.StandardInstance, error) {
	var native waveResult
	if err := decode(result, &native); err != nil {
		return nil, err
	}
	categories := sortedKeys(native.Categories)
	sort.SliceStable(categories, func(i, j int) bool {
		return waveSeverity[categories[i]] > waveSeverity[categories[j]]
	})

	var instances []types.StandardInstance
	for _, category := range categories {
		severity, ok := waveSeverity[category]
		if !ok {
			continue
		}
		items := native.Categories[category].Items
		for _, key := range sortedKeys(items) {
			item := items[key]
			ruleID := item.ID
			if ruleID == "" {
				ruleID = key
			}
			// report types 1 and 2 carry only counts
			if len(item.Selectors) == 0 {
				if item.Count > 0 {
					instances = append(instances, types.StandardInstance{
						RuleID:          ruleID,
						What:            item.Description,
						OrdinalSeverity: severity,
						Location:        types.Location{Doc: types.DocDOM},
						Count:           item.Count,
					})
				}
				continue
			}
			for _, selector := range item.Selectors {
				instances = append(instances, types.StandardInstance{
					RuleID:          ruleID,
					What:            item.Description,
					OrdinalSeverity: severity,
					Location:        selectorLocation(selector),
				})
			}
		}
	}
	return instances, nil
}

// testaro: {ruleID: {what, totals, standardInstances, prevented, error}}
type testaroRule struct {
	What              string                   `json:"what"`
	Prevented         bool                     `json:"prevented"`
	StandardInstances []types.StandardInstance `json:"standardInstances"`
}

func convertTestaro(result map[string]any) ([]types.StandardInstance, error) {
	native := make(map[string]testaroRule)
	if err := decode(result, &native); err != nil {
		return nil, err
	}
	var instances []types.StandardInstance
	for _, ruleID := range sortedKeys(native) {
		rule := native[ruleID]
		if rule.Prevented {
			continue
		}
		for _, inst := range rule.StandardInstances {
			if inst.RuleID == "" {
				inst.RuleID = ruleID
			}
			if inst.What == "" {
				inst.What = rule.What
			}
			instances = append(instances, inst)
		}
	}
	return instances, nil
}
