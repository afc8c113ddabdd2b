package rule

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/requisition-approval/internal/domain/entity"
)

func sampleRequisition() *entity.Requisition {
	price := decimal.RequireFromString("250.00")
	qty := 2
	needBy := time.Date(2030, 1, 15, 0, 0, 0, 0, time.UTC)
	return &entity.Requisition{
		Name:     "Laptops",
		Supplier: "Acme",
		Currency: entity.CurrencyUSD,
		Owner:    &entity.User{ID: 1, Username: "alice", Email: "alice@example.com", FirstName: "Alice", LastName: "Smith"},
		Lines: []*entity.RequisitionLine{
			{
				LineNumber: 1, LineType: entity.LineTypeGoods, Category: "IT",
				Quantity: &qty, UnitPrice: &price, UnitOfMeasure: entity.UOMEach,
				LineTotal: decimal.RequireFromString("500.00"), PaymentTerm: entity.PaymentTermNet30,
				NeedBy: &needBy, ShipTo: &entity.Address{City: "Austin", Country: "US"},
			},
			{
				LineNumber: 2, LineType: entity.LineTypeService, Category: "Consulting",
				LineTotal: decimal.RequireFromString("1500.00"), PaymentTerm: entity.PaymentTermNet45,
			},
		},
	}
}

func TestHeaderFields_Extract(t *testing.T) {
	req := sampleRequisition()

	ok, err := EvaluateHeaderRule(req, &entity.HeaderRule{Field: "owner", Lookup: "exact", Value: []string{"alice"}})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = EvaluateHeaderRule(req, &entity.HeaderRule{Field: "project", Lookup: "is_null"})
	require.NoError(t, err)
	assert.True(t, ok, "missing project reads as null")

	ok, err = EvaluateHeaderRule(req, &entity.HeaderRule{Field: "project_code", Lookup: "exact", Value: []string{"X"}})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = EvaluateHeaderRule(req, &entity.HeaderRule{Field: "nope", Lookup: "exact", Value: []string{"x"}})
	assert.Error(t, err)
}

func TestLineFields_Extract(t *testing.T) {
	line := sampleRequisition().Lines[0]

	assert.Equal(t, String("2030-01-15"), LineFields["need_by"].Extract(line))
	assert.Equal(t, String("Austin"), LineFields["ship_to_city"].Extract(line))
	assert.Equal(t, String("each"), LineFields["uom"].Extract(line))
	assert.True(t, LineFields["unit_price"].Extract(&entity.RequisitionLine{}).IsNull())
	assert.True(t, LineFields["ship_to_zip"].Extract(&entity.RequisitionLine{}).IsNull())
	assert.Equal(t, KindNumber, LineFields["line_total"].Extract(line).Kind())
}

func TestEvaluateLineRule_MatchModes(t *testing.T) {
	lines := sampleRequisition().Lines

	all := &entity.LineRule{Field: "line_total", Lookup: "gt", Value: []string{"1000"}, MatchMode: entity.MatchModeAll}
	ok, err := EvaluateLineRule(lines, all)
	require.NoError(t, err)
	assert.False(t, ok)

	anyRule := &entity.LineRule{Field: "line_total", Lookup: "gt", Value: []string{"1000"}, MatchMode: entity.MatchModeAny}
	ok, err = EvaluateLineRule(lines, anyRule)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = EvaluateLineRule(nil, all)
	require.NoError(t, err)
	assert.True(t, ok, "all over zero lines is vacuously true")

	ok, err = EvaluateLineRule(nil, anyRule)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHeaderCheck_Operators(t *testing.T) {
	req := sampleRequisition()
	rules := []*entity.HeaderRule{
		{Field: "supplier", Lookup: "exact", Value: []string{"Acme"}},
		{Field: "name", Lookup: "exact", Value: []string{"Phones"}},
	}

	ok, err := HeaderCheck(req, rules, entity.OperatorAnd)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = HeaderCheck(req, rules, entity.OperatorOr)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = HeaderCheck(req, nil, entity.OperatorOr)
	require.NoError(t, err)
	assert.True(t, ok, "no rules is a match")
}

func TestLineCheck_PropagatesUnsupportedLookup(t *testing.T) {
	lines := sampleRequisition().Lines
	_, err := LineCheck(lines, []*entity.LineRule{
		{Field: "category", Lookup: "between", Value: []string{"a"}, MatchMode: entity.MatchModeAll},
	}, entity.OperatorAnd)
	assert.ErrorIs(t, err, ErrUnsupportedLookup)
}
