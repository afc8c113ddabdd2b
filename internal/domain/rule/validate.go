package rule

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/garyjia/requisition-approval/internal/domain/entity"
)

// ConfigError reports a rule that cannot be saved
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateHeaderRule checks a header rule before it is saved. is_null rules
// have their value cleared.
func ValidateHeaderRule(r *entity.HeaderRule) error {
	field, ok := HeaderFields[r.Field]
	if !ok {
		return &ConfigError{Field: "field", Message: fmt.Sprintf("%q is not a valid header field.", r.Field)}
	}
	value, err := validateLookupValue(field.Type, Lookup(r.Lookup), r.Value)
	if err != nil {
		return err
	}
	r.Value = value
	return nil
}

// ValidateLineRule checks a line rule before it is saved. is_null rules have
// their value cleared.
func ValidateLineRule(r *entity.LineRule) error {
	field, ok := LineFields[r.Field]
	if !ok {
		return &ConfigError{Field: "field", Message: fmt.Sprintf("%q is not a valid line field.", r.Field)}
	}
	if r.MatchMode == "" {
		r.MatchMode = entity.MatchModeAll
	}
	if r.MatchMode != entity.MatchModeAll && r.MatchMode != entity.MatchModeAny {
		return &ConfigError{Field: "match_mode", Message: fmt.Sprintf("%q is not a valid match mode.", r.MatchMode)}
	}
	value, err := validateLookupValue(field.Type, Lookup(r.Lookup), r.Value)
	if err != nil {
		return err
	}
	r.Value = value
	return nil
}

func validateLookupValue(fieldType FieldType, lookup Lookup, value []string) ([]string, error) {
	if !lookup.IsValid() {
		return nil, &ConfigError{Field: "lookup", Message: fmt.Sprintf("%q is not a valid lookup.", lookup)}
	}
	if lookup == LookupIsNull {
		return []string{}, nil
	}

	cleaned := make([]string, 0, len(value))
	for _, v := range value {
		if strings.TrimSpace(v) != "" {
			cleaned = append(cleaned, v)
		}
	}
	if len(cleaned) == 0 {
		return nil, &ConfigError{Field: "value", Message: "A value is required for this lookup."}
	}

	if lookup.IsNumber() {
		if fieldType != FieldTypeNumber {
			return nil, &ConfigError{Field: "lookup", Message: fmt.Sprintf("Lookup %q cannot be used with a text field.", lookup)}
		}
		if len(cleaned) > 1 {
			return nil, &ConfigError{Field: "value", Message: "Number lookups accept exactly one value."}
		}
		if _, err := decimal.NewFromString(strings.TrimSpace(cleaned[0])); err != nil {
			return nil, &ConfigError{Field: "value", Message: fmt.Sprintf("%q is not a valid number.", cleaned[0])}
		}
		return cleaned, nil
	}

	if lookup == LookupRegex {
		for _, pattern := range cleaned {
			if _, err := regexp.Compile(pattern); err != nil {
				return nil, &ConfigError{Field: "value", Message: fmt.Sprintf("Invalid regex pattern %q: %v", pattern, err)}
			}
		}
	}
	return cleaned, nil
}
