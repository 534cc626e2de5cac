// Package identify resolves stable identifiers for the elements named in standard instances.
package identify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jonathan/a11y-auditor/internal/browser"
	"github.com/jonathan/a11y-auditor/internal/excerpt"
	"github.com/jonathan/a11y-auditor/internal/types"
)

// Resolver derives boxID and pathID for instances from a live page.
type Resolver struct {
	page browser.Page
	log  *zap.Logger
}

// NewResolver creates a resolver over page.
func NewResolver(page browser.Page, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{page: page, log: log}
}

// All identifies every instance of a standard result in place.
func (r *Resolver) All(ctx context.Context, result *types.StandardResult) {
	if result == nil {
		return
	}
	for i := range result.Instances {
		r.Identify(ctx, &result.Instances[i])
	}
}

// Identify fills in inst.BoxID and inst.PathID where they can be derived. It does
// nothing when both are already present, and never fails: locate errors are
// logged and the instance is left partially identified.
func (r *Resolver) Identify(ctx context.Context, inst *types.StandardInstance) {
	if inst.Identified() {
		return
	}

	r.fromLocation(ctx, inst)
	if inst.Identified() {
		return
	}
	if inst.ID != "" {
		if els := r.locate(ctx, inst, idSelector(inst.ID)); len(els) > 0 {
			r.fill(ctx, inst, els[0])
		}
		if inst.Identified() {
			return
		}
	}
	if inst.TagName != "" {
		r.fromTagName(ctx, inst)
	}
}

func (r *Resolver) fromLocation(ctx context.Context, inst *types.StandardInstance) {
	loc := inst.Location
	if loc.Doc != "" && loc.Doc != types.DocDOM {
		return
	}
	switch loc.Type {
	case types.LocationBox:
		if box, ok := loc.SpecBox(); ok && inst.BoxID == "" {
			inst.BoxID = box.ID()
		}
	case types.LocationSelector:
		spec := loc.SpecString()
		if spec == "" {
			return
		}
		if els := r.locate(ctx, inst, spec); len(els) == 1 {
			r.fill(ctx, inst, els[0])
		}
	case types.LocationXPath:
		spec := loc.SpecString()
		if spec == "" {
			return
		}
		els, err := r.page.LocateXPath(ctx, spec)
		if err != nil {
			r.log.Debug("xpath location did not resolve",
				zap.String("ruleID", inst.RuleID), zap.String("xpath", spec), zap.Error(err))
			return
		}
		switch {
		case len(els) == 1:
			r.fill(ctx, inst, els[0])
		case len(els) > 1 && inst.PathID == "":
			inst.PathID = spec
		}
	}
}

func (r *Resolver) fromTagName(ctx context.Context, inst *types.StandardInstance) {
	els := r.locate(ctx, inst, strings.ToLower(inst.TagName))
	if len(els) == 1 {
		r.fill(ctx, inst, els[0])
		return
	}
	if len(els) == 0 || inst.Excerpt == "" {
		return
	}
	run := excerpt.LongestTextRun(inst.Excerpt)
	if run == "" {
		return
	}
	var matches []browser.Element
	for _, el := range els {
		text, err := browser.Text(ctx, el)
		if err != nil {
			continue
		}
		if strings.Contains(text, run) {
			matches = append(matches, el)
		}
	}
	if len(matches) == 1 {
		r.fill(ctx, inst, matches[0])
	}
}

// locate runs a CSS query, logging and swallowing invalid selectors.
func (r *Resolver) locate(ctx context.Context, inst *types.StandardInstance, selector string) []browser.Element {
	els, err := r.page.Locate(ctx, selector)
	if err != nil {
		r.log.Warn("selector did not resolve",
			zap.String("ruleID", inst.RuleID), zap.String("selector", selector), zap.Error(err))
		return nil
	}
	return els
}

func (r *Resolver) fill(ctx context.Context, inst *types.StandardInstance, el browser.Element) {
	if inst.BoxID == "" {
		if box, err := browser.BoundingBox(ctx, el); err == nil {
			inst.BoxID = box.ID()
		} else {
			r.log.Debug("bounding box unavailable", zap.String("ruleID", inst.RuleID), zap.Error(err))
		}
	}
	if inst.PathID == "" {
		if path, err := browser.XPath(ctx, el); err == nil {
			inst.PathID = path
		} else {
			r.log.Debug("xpath unavailable", zap.String("ruleID", inst.RuleID), zap.Error(err))
		}
	}
}

// idSelector builds an attribute selector so ids that are not valid CSS
// identifiers still match.
func idSelector(id string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(id)
	return fmt.Sprintf(`[id="%s"]`, escaped)
}
