package validation

import (
	"encoding/json"
	"fmt"
	"slices"

	rootschemas "github.com/jonathan/a11y-auditor/schemas"

	"github.com/jonathan/a11y-auditor/internal/schemas"
	"github.com/jonathan/a11y-auditor/internal/types"
)

var standardModes = []string{string(types.StandardAlso), string(types.StandardOnly), string(types.StandardNo)}

// ParseJob decodes a job document, validates it and returns the typed job.
func ParseJob(data []byte) (*types.Job, error) {
	return parseJob(data, "")
}

// ParseDispatchedJob is ParseJob for a job that is about to run: a missing or
// empty executionTimeStamp is set to executedAt before validation.
func ParseDispatchedJob(data []byte, executedAt string) (*types.Job, error) {
	return parseJob(data, executedAt)
}

func parseJob(data []byte, executedAt string) (*types.Job, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil || doc == nil {
		return nil, &Error{Message: "job is not a JSON object", Cause: err}
	}
	if executedAt != "" {
		if s, _ := doc["executionTimeStamp"].(string); s == "" {
			doc["executionTimeStamp"] = executedAt
		}
	}
	if err := ValidateJob(doc); err != nil {
		return nil, err
	}

	// The typed job is decoded from the validated document, so integral
	// numbers such as 2.0 reach int fields as 2.
	normalized, err := json.Marshal(doc)
	if err != nil {
		return nil, &Error{Message: "failed to decode job", Cause: err}
	}
	var job types.Job
	if err := json.Unmarshal(normalized, &job); err != nil {
		return nil, &Error{Message: "failed to decode job", Cause: err}
	}
	return &job, nil
}

// ValidateJob checks a decoded job document and returns the first failure, or
// nil when the job is valid. It has no side effects.
func ValidateJob(doc map[string]any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fail("malformed job: %v", r)
		}
	}()

	if doc == nil {
		return fail("job is not an object")
	}
	if id, ok := doc["id"].(string); !ok || id == "" {
		return fail("bad job id")
	}
	if _, ok := doc["strict"].(bool); !ok {
		return fail("bad job strictness")
	}
	if s, ok := doc["standard"].(string); !ok || !slices.Contains(standardModes, s) {
		return fail("bad job standardization mode")
	}
	if v, present := doc["observe"]; present {
		if _, ok := v.(bool); !ok {
			return fail("bad job observation flag")
		}
	}
	device, ok := doc["device"].(map[string]any)
	if !ok || !isDeviceID(device["id"]) {
		return fail("bad job device")
	}
	if !isBrowserID(doc["browserID"]) {
		return fail("bad job browser ID")
	}
	if limit, ok := number(doc["timeLimit"]); !ok || limit < 1 {
		return fail("bad job time limit")
	}
	for _, field := range []string{"creationTimeStamp", "executionTimeStamp"} {
		s, ok := doc[field].(string)
		if !ok {
			return fail("bad job %s", field)
		}
		if _, err := types.ParseTimeStamp(s); err != nil {
			return fail("bad job %s", field)
		}
	}
	if v, present := doc["sendReportTo"]; present {
		s, ok := v.(string)
		if !ok || (s != "" && !isURL(s)) {
			return fail("bad job report destination")
		}
	}
	if v, present := doc["target"]; present {
		target, ok := v.(map[string]any)
		if !ok {
			return fail("bad job target")
		}
		for _, field := range []string{"url", "what"} {
			if fv, present := target[field]; present {
				if _, ok := fv.(string); !ok {
					return fail("bad job target %s", field)
				}
			}
		}
	}
	if v, present := doc["sources"]; present {
		if _, ok := v.(map[string]any); !ok {
			return fail("bad job sources")
		}
	}

	acts, ok := doc["acts"].([]any)
	if !ok || len(acts) == 0 {
		return fail("job has no acts")
	}
	for i, item := range acts {
		act, ok := item.(map[string]any)
		if !ok {
			return fail("act %d is not an object", i)
		}
		t, _ := act["type"].(string)
		if !types.ActType(t).Valid() {
			return fail("act %d has unknown type %q", i, t)
		}
	}
	for i, item := range acts {
		if err := ValidateAct(item.(map[string]any)); err != nil {
			vErr := err.(*Error)
			return &Error{Message: fmt.Sprintf("act %d: %s", i, vErr.Message), Cause: vErr.Cause}
		}
	}

	if err := schemas.ValidateDocument(rootschemas.Job, doc); err != nil {
		return &Error{Message: "job fails the job schema", Cause: err}
	}
	return nil
}

// ValidateAct checks one act document against the schema for its type.
func ValidateAct(act map[string]any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fail("malformed act: %v", r)
		}
	}()

	if act == nil {
		return fail("act is not an object")
	}
	t, _ := act["type"].(string)
	actType := types.ActType(t)
	if !actType.Valid() {
		return fail("unknown act type %q", t)
	}

	// an unknown tool fails the isTool check on which
	which, _ := act["which"].(string)
	for _, field := range FieldsFor(actType, which) {
		v, present := act[field.Name]
		if !present || v == nil {
			if field.Required {
				return fail("%s act missing %s", t, field.Name)
			}
			continue
		}
		if !hasKind(v, field.Kind) {
			return fail("bad %s %s: want %s", t, field.Name, field.Kind)
		}
		if field.Required && (field.Kind == KindString || field.Kind == KindArray) && !hasLength(v) {
			return fail("bad %s %s: empty", t, field.Name)
		}
		if field.Check == "" {
			continue
		}
		check, ok := predicates[field.Check]
		if !ok {
			return fail("no predicate named %s", field.Check)
		}
		if !check(v) {
			return fail("bad %s %s", t, field.Name)
		}
	}

	return nil
}

func hasKind(v any, kind Kind) bool {
	switch kind {
	case KindString:
		_, ok := v.(string)
		return ok
	case KindNumber:
		_, ok := number(v)
		return ok
	case KindBoolean:
		_, ok := v.(bool)
		return ok
	case KindArray:
		_, ok := v.([]any)
		return ok
	case KindObject:
		_, ok := v.(map[string]any)
		return ok
	}
	return false
}
