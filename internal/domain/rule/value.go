package rule

import "github.com/shopspring/decimal"

// Kind is the runtime type of a field value
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
)

// Value is a field value extracted from a requisition
type Value struct {
	kind Kind
	str  string
	num  decimal.Decimal
}

// Null is the absent value
func Null() Value {
	return Value{kind: KindNull}
}

// String wraps s
func String(s string) Value {
	return Value{kind: KindString, str: s}
}

// Number wraps d
func Number(d decimal.Decimal) Value {
	return Value{kind: KindNumber, num: d}
}

// OptionalNumber wraps d, or returns Null when d is nil
func OptionalNumber(d *decimal.Decimal) Value {
	if d == nil {
		return Null()
	}
	return Number(*d)
}

func (v Value) Kind() Kind {
	return v.kind
}

func (v Value) IsNull() bool {
	return v.kind == KindNull
}
