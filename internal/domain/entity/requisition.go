package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// RequisitionStatus is the lifecycle status of a requisition
type RequisitionStatus string

const (
	RequisitionDraft           RequisitionStatus = "draft"
	RequisitionPendingApproval RequisitionStatus = "pending_approval"
	RequisitionApproved        RequisitionStatus = "approved"
	RequisitionRejected        RequisitionStatus = "rejected"
)

// LineType distinguishes priced goods from directly-entered services
type LineType string

const (
	LineTypeGoods   LineType = "goods"
	LineTypeService LineType = "service"
)

// UnitOfMeasure for goods lines
type UnitOfMeasure string

const (
	UOMEach UnitOfMeasure = "each"
	UOMBox  UnitOfMeasure = "box"
)

// PaymentTerm agreed with the supplier
type PaymentTerm string

const (
	PaymentTermNet30 PaymentTerm = "net_30"
	PaymentTermNet45 PaymentTerm = "net_45"
	PaymentTermNet90 PaymentTerm = "net_90"
)

// CurrencyUSD is the only supported currency
const CurrencyUSD = "usd"

// DateLayout is the storage and rule-evaluation format for calendar dates
const DateLayout = "2006-01-02"

// Requisition is a purchase request made of a header and its lines
type Requisition struct {
	ID                int64              `json:"id"`
	Name              string             `json:"name"`
	ExternalReference string             `json:"external_reference"`
	Status            RequisitionStatus  `json:"status"`
	OwnerID           int64              `json:"owner_id"`
	Owner             *User              `json:"owner,omitempty"`
	ProjectID         *int64             `json:"project_id,omitempty"`
	Project           *Project           `json:"project,omitempty"`
	Supplier          string             `json:"supplier"`
	Justification     string             `json:"justification"`
	TotalAmount       decimal.Decimal    `json:"total_amount"`
	Currency          string             `json:"currency"`
	SubmittedAt       *time.Time         `json:"submitted_at,omitempty"`
	ApprovedAt        *time.Time         `json:"approved_at,omitempty"`
	RejectedAt        *time.Time         `json:"rejected_at,omitempty"`
	Deleted           bool               `json:"-"`
	Lines             []*RequisitionLine `json:"lines,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
	CreatedByID       *int64             `json:"created_by_id,omitempty"`
	UpdatedByID       *int64             `json:"updated_by_id,omitempty"`
}

// LinesTotal sums the line totals
func (r *Requisition) LinesTotal() decimal.Decimal {
	total := decimal.Zero
	for _, line := range r.Lines {
		total = total.Add(line.LineTotal)
	}
	return total
}

// IsOwnedBy reports whether user owns the requisition
func (r *Requisition) IsOwnedBy(user *User) bool {
	return user != nil && r.OwnerID == user.ID
}

// RequisitionLine is one item on a requisition
type RequisitionLine struct {
	ID                     int64            `json:"id"`
	RequisitionID          int64            `json:"requisition_id"`
	LineNumber             int              `json:"line_number"`
	LineType               LineType         `json:"line_type"`
	Description            string           `json:"description"`
	Category               string           `json:"category"`
	Manufacturer           string           `json:"manufacturer"`
	ManufacturerPartNumber string           `json:"manufacturer_part_number"`
	Quantity               *int             `json:"quantity,omitempty"`
	UnitOfMeasure          UnitOfMeasure    `json:"unit_of_measure,omitempty"`
	UnitPrice              *decimal.Decimal `json:"unit_price,omitempty"`
	LineTotal              decimal.Decimal  `json:"line_total"`
	PaymentTerm            PaymentTerm      `json:"payment_term"`
	NeedBy                 *time.Time       `json:"need_by,omitempty"`
	ShipToID               *int64           `json:"ship_to_id,omitempty"`
	ShipTo                 *Address         `json:"ship_to,omitempty"`
	Deleted                bool             `json:"-"`
	CreatedAt              time.Time        `json:"created_at"`
	UpdatedAt              time.Time        `json:"updated_at"`
}
