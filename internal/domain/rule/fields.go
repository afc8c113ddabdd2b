package rule

import (
	"sort"

	"github.com/garyjia/requisition-approval/internal/domain/entity"
)

// FieldType is the declared type of a rule field
type FieldType string

const (
	FieldTypeString FieldType = "string"
	FieldTypeNumber FieldType = "number"
)

// HeaderExtractor reads one header field from a requisition
type HeaderExtractor func(r *entity.Requisition) Value

// LineExtractor reads one field from a requisition line
type LineExtractor func(l *entity.RequisitionLine) Value

// HeaderField describes a header field available to rules
type HeaderField struct {
	Type    FieldType
	Extract HeaderExtractor
}

// LineField describes a line field available to rules
type LineField struct {
	Type    FieldType
	Extract LineExtractor
}

// HeaderFields is the closed vocabulary of header rule fields
var HeaderFields = map[string]HeaderField{
	"currency":            headerString(func(r *entity.Requisition) string { return r.Currency }),
	"external_reference":  headerString(func(r *entity.Requisition) string { return r.ExternalReference }),
	"justification":       headerString(func(r *entity.Requisition) string { return r.Justification }),
	"name":                headerString(func(r *entity.Requisition) string { return r.Name }),
	"supplier":            headerString(func(r *entity.Requisition) string { return r.Supplier }),
	"owner":               ownerField(func(u *entity.User) string { return u.Username }),
	"owner_email":         ownerField(func(u *entity.User) string { return u.Email }),
	"owner_first_name":    ownerField(func(u *entity.User) string { return u.FirstName }),
	"owner_last_name":     ownerField(func(u *entity.User) string { return u.LastName }),
	"project":             projectField(func(p *entity.Project) string { return p.Name }),
	"project_code":        projectField(func(p *entity.Project) string { return p.Code }),
	"project_description": projectField(func(p *entity.Project) string { return p.Description }),
}

// LineFields is the closed vocabulary of line rule fields
var LineFields = map[string]LineField{
	"category":                 lineString(func(l *entity.RequisitionLine) string { return l.Category }),
	"description":              lineString(func(l *entity.RequisitionLine) string { return l.Description }),
	"manufacturer":             lineString(func(l *entity.RequisitionLine) string { return l.Manufacturer }),
	"manufacturer_part_number": lineString(func(l *entity.RequisitionLine) string { return l.ManufacturerPartNumber }),
	"payment_term":             lineString(func(l *entity.RequisitionLine) string { return string(l.PaymentTerm) }),
	"uom":                      lineString(func(l *entity.RequisitionLine) string { return string(l.UnitOfMeasure) }),
	"need_by": {
		Type: FieldTypeString,
		Extract: func(l *entity.RequisitionLine) Value {
			if l.NeedBy == nil {
				return Null()
			}
			return String(l.NeedBy.Format(entity.DateLayout))
		},
	},
	"ship_to_attention":             shipTo(func(a *entity.Address) string { return a.Attention }),
	"ship_to_city":                  shipTo(func(a *entity.Address) string { return a.City }),
	"ship_to_code":                  shipTo(func(a *entity.Address) string { return a.Code }),
	"ship_to_country":               shipTo(func(a *entity.Address) string { return a.Country }),
	"ship_to_delivery_instructions": shipTo(func(a *entity.Address) string { return a.DeliveryInstructions }),
	"ship_to_description":           shipTo(func(a *entity.Address) string { return a.Description }),
	"ship_to_name":                  shipTo(func(a *entity.Address) string { return a.Name }),
	"ship_to_phone":                 shipTo(func(a *entity.Address) string { return a.Phone }),
	"ship_to_state":                 shipTo(func(a *entity.Address) string { return a.State }),
	"ship_to_street1":               shipTo(func(a *entity.Address) string { return a.Street1 }),
	"ship_to_street2":               shipTo(func(a *entity.Address) string { return a.Street2 }),
	"ship_to_zip":                   shipTo(func(a *entity.Address) string { return a.ZipCode }),
	"line_total": {
		Type:    FieldTypeNumber,
		Extract: func(l *entity.RequisitionLine) Value { return Number(l.LineTotal) },
	},
	"unit_price": {
		Type:    FieldTypeNumber,
		Extract: func(l *entity.RequisitionLine) Value { return OptionalNumber(l.UnitPrice) },
	},
}

// HeaderFieldNames returns the header vocabulary in sorted order
func HeaderFieldNames() []string {
	names := make([]string, 0, len(HeaderFields))
	for name := range HeaderFields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LineFieldNames returns the line vocabulary in sorted order
func LineFieldNames() []string {
	names := make([]string, 0, len(LineFields))
	for name := range LineFields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func headerString(get func(r *entity.Requisition) string) HeaderField {
	return HeaderField{
		Type:    FieldTypeString,
		Extract: func(r *entity.Requisition) Value { return String(get(r)) },
	}
}

func ownerField(get func(u *entity.User) string) HeaderField {
	return HeaderField{
		Type: FieldTypeString,
		Extract: func(r *entity.Requisition) Value {
			if r.Owner == nil {
				return Null()
			}
			return String(get(r.Owner))
		},
	}
}

func projectField(get func(p *entity.Project) string) HeaderField {
	return HeaderField{
		Type: FieldTypeString,
		Extract: func(r *entity.Requisition) Value {
			if r.Project == nil {
				return Null()
			}
			return String(get(r.Project))
		},
	}
}

func lineString(get func(l *entity.RequisitionLine) string) LineField {
	return LineField{
		Type:    FieldTypeString,
		Extract: func(l *entity.RequisitionLine) Value { return String(get(l)) },
	}
}

func shipTo(get func(a *entity.Address) string) LineField {
	return LineField{
		Type: FieldTypeString,
		Extract: func(l *entity.RequisitionLine) Value {
			if l.ShipTo == nil {
				return Null()
			}
			return String(get(l.ShipTo))
		},
	}
}
