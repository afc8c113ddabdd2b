package rule

import (
	"fmt"

	"github.com/garyjia/requisition-approval/internal/domain/entity"
)

// EvaluateHeaderRule tests a single header rule against a requisition
func EvaluateHeaderRule(req *entity.Requisition, r *entity.HeaderRule) (bool, error) {
	field, ok := HeaderFields[r.Field]
	if !ok {
		return false, fmt.Errorf("unknown header field %q on rule %d", r.Field, r.ID)
	}
	return Evaluate(field.Extract(req), Lookup(r.Lookup), r.Value)
}

// EvaluateLineRule applies a line rule to every line according to its match
// mode. With no lines, "all" is vacuously true and "any" is false.
func EvaluateLineRule(lines []*entity.RequisitionLine, r *entity.LineRule) (bool, error) {
	field, ok := LineFields[r.Field]
	if !ok {
		return false, fmt.Errorf("unknown line field %q on rule %d", r.Field, r.ID)
	}

	lookup := Lookup(r.Lookup)
	switch r.MatchMode {
	case entity.MatchModeAll:
		for _, line := range lines {
			ok, err := Evaluate(field.Extract(line), lookup, r.Value)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case entity.MatchModeAny:
		for _, line := range lines {
			ok, err := Evaluate(field.Extract(line), lookup, r.Value)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}
	return false, fmt.Errorf("unknown match mode %q on rule %d", r.MatchMode, r.ID)
}

// HeaderCheck combines every header rule with op. No rules is a match.
func HeaderCheck(req *entity.Requisition, rules []*entity.HeaderRule, op entity.Operator) (bool, error) {
	results := make([]bool, 0, len(rules))
	for _, r := range rules {
		ok, err := EvaluateHeaderRule(req, r)
		if err != nil {
			return false, err
		}
		results = append(results, ok)
	}
	return op.Combine(results), nil
}

// LineCheck combines every line rule with op. No rules is a match.
func LineCheck(lines []*entity.RequisitionLine, rules []*entity.LineRule, op entity.Operator) (bool, error) {
	results := make([]bool, 0, len(rules))
	for _, r := range rules {
		ok, err := EvaluateLineRule(lines, r)
		if err != nil {
			return false, err
		}
		results = append(results, ok)
	}
	return op.Combine(results), nil
}
