package rule

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Evaluate applies lookup to value against the rule candidates.
//
// A null value only matches is_null. String lookups match when any candidate
// matches and are false for non-string values. Number lookups compare against
// the first candidate and are false for non-number values. An unknown lookup
// returns ErrUnsupportedLookup.
func Evaluate(value Value, lookup Lookup, candidates []string) (bool, error) {
	if !lookup.IsValid() {
		return false, fmt.Errorf("%w: %q", ErrUnsupportedLookup, lookup)
	}

	if lookup == LookupIsNull {
		return value.kind == KindNull || (value.kind == KindString && value.str == ""), nil
	}
	if value.kind == KindNull {
		return false, nil
	}

	if lookup.IsString() {
		if value.kind != KindString {
			return false, nil
		}
		return evaluateString(value.str, lookup, candidates)
	}

	if value.kind != KindNumber {
		return false, nil
	}
	return evaluateNumber(value.num, lookup, candidates)
}

func evaluateString(s string, lookup Lookup, candidates []string) (bool, error) {
	if lookup == LookupRegex {
		for _, pattern := range candidates {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return false, fmt.Errorf("invalid regex %q: %w", pattern, err)
			}
			if re.MatchString(s) {
				return true, nil
			}
		}
		return false, nil
	}

	match := stringMatcher(lookup)
	for _, c := range candidates {
		if match(s, c) {
			return true, nil
		}
	}
	return false, nil
}

func stringMatcher(lookup Lookup) func(s, c string) bool {
	switch lookup {
	case LookupExact:
		return func(s, c string) bool { return s == c }
	case LookupIExact:
		return strings.EqualFold
	case LookupContains:
		return strings.Contains
	case LookupIContains:
		return func(s, c string) bool { return strings.Contains(strings.ToLower(s), strings.ToLower(c)) }
	case LookupStartsWith:
		return strings.HasPrefix
	case LookupIStartsWith:
		return func(s, c string) bool { return strings.HasPrefix(strings.ToLower(s), strings.ToLower(c)) }
	case LookupEndsWith:
		return strings.HasSuffix
	case LookupIEndsWith:
		return func(s, c string) bool { return strings.HasSuffix(strings.ToLower(s), strings.ToLower(c)) }
	}
	return func(string, string) bool { return false }
}

func evaluateNumber(n decimal.Decimal, lookup Lookup, candidates []string) (bool, error) {
	if len(candidates) == 0 {
		return false, fmt.Errorf("number lookup %q requires a value", lookup)
	}
	target, err := decimal.NewFromString(strings.TrimSpace(candidates[0]))
	if err != nil {
		return false, fmt.Errorf("invalid number %q: %w", candidates[0], err)
	}

	switch lookup {
	case LookupEqual:
		return n.Equal(target), nil
	case LookupNotEqual:
		return !n.Equal(target), nil
	case LookupGT:
		return n.GreaterThan(target), nil
	case LookupGTE:
		return n.GreaterThanOrEqual(target), nil
	case LookupLT:
		return n.LessThan(target), nil
	case LookupLTE:
		return n.LessThanOrEqual(target), nil
	}
	return false, fmt.Errorf("%w: %q", ErrUnsupportedLookup, lookup)
}
