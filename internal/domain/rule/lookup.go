// Package rule evaluates approval chain rule predicates against requisition
// header and line fields.
package rule

import "errors"

// Lookup is a comparison operator used by a rule
type Lookup string

// String lookups
const (
	LookupExact       Lookup = "exact"
	LookupIExact      Lookup = "iexact"
	LookupContains    Lookup = "contains"
	LookupIContains   Lookup = "icontains"
	LookupStartsWith  Lookup = "startswith"
	LookupIStartsWith Lookup = "istartswith"
	LookupEndsWith    Lookup = "endswith"
	LookupIEndsWith   Lookup = "iendswith"
	LookupRegex       Lookup = "regex"
	LookupIsNull      Lookup = "is_null"
)

// Number lookups
const (
	LookupEqual    Lookup = "equal"
	LookupNotEqual Lookup = "not_equal"
	LookupGT       Lookup = "gt"
	LookupGTE      Lookup = "gte"
	LookupLT       Lookup = "lt"
	LookupLTE      Lookup = "lte"
)

// ErrUnsupportedLookup is returned when a stored rule carries a lookup the
// evaluator does not know. It signals corrupt configuration, not a mismatch.
var ErrUnsupportedLookup = errors.New("unsupported lookup")

var stringLookups = map[Lookup]bool{
	LookupExact:       true,
	LookupIExact:      true,
	LookupContains:    true,
	LookupIContains:   true,
	LookupStartsWith:  true,
	LookupIStartsWith: true,
	LookupEndsWith:    true,
	LookupIEndsWith:   true,
	LookupRegex:       true,
	LookupIsNull:      true,
}

var numberLookups = map[Lookup]bool{
	LookupEqual:    true,
	LookupNotEqual: true,
	LookupGT:       true,
	LookupGTE:      true,
	LookupLT:       true,
	LookupLTE:      true,
}

// IsString reports whether l is a string lookup
func (l Lookup) IsString() bool {
	return stringLookups[l]
}

// IsNumber reports whether l is a number lookup
func (l Lookup) IsNumber() bool {
	return numberLookups[l]
}

// IsValid reports whether l is a known lookup
func (l Lookup) IsValid() bool {
	return l.IsString() || l.IsNumber()
}

func (l Lookup) String() string {
	return string(l)
}
