package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/requisition-approval/internal/domain/entity"
)

func TestRenderApprovalTrail(t *testing.T) {
	submitted := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)
	approved := submitted.Add(2 * time.Hour)
	qty := 3
	price := decimal.RequireFromString("12.50")

	req := &entity.Requisition{
		ID:          42,
		Name:        "Monitors",
		Status:      entity.RequisitionApproved,
		Owner:       &entity.User{Username: "alice"},
		Supplier:    "Acme",
		TotalAmount: decimal.RequireFromString("37.50"),
		Currency:    "usd",
		SubmittedAt: &submitted,
		ApprovedAt:  &approved,
		Lines: []*entity.RequisitionLine{{
			LineNumber:    1,
			LineType:      entity.LineTypeGoods,
			Description:   "Monitor arm",
			Category:      "IT",
			Quantity:      &qty,
			UnitOfMeasure: entity.UOMEach,
			UnitPrice:     &price,
			LineTotal:     decimal.RequireFromString("37.50"),
			PaymentTerm:   entity.PaymentTermNet30,
		}},
	}
	approvals := []*entity.Approval{{
		SequenceNumber:  1,
		Approver:        &entity.User{Username: "bob"},
		Status:          entity.ApprovalApproved,
		Comment:         "ok",
		ApprovedAt:      &approved,
		TriggerMetadata: &entity.TriggerMetadata{Name: "Manager"},
	}, {
		SequenceNumber: 2,
		Approver:       &entity.User{Username: "carol"},
		Status:         entity.ApprovalCancelled,
	}}

	content, err := NewXLSXRenderer("", nil, zap.NewNop()).RenderApprovalTrail(req, approvals)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(content))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{sheetRequisition, sheetApprovals}, f.GetSheetList())

	name, _ := f.GetCellValue(sheetRequisition, "B2")
	assert.Equal(t, "Monitors", name)
	owner, _ := f.GetCellValue(sheetRequisition, "B5")
	assert.Equal(t, "alice", owner)
	approvedCell, _ := f.GetCellValue(sheetRequisition, "B11")
	assert.Equal(t, "2026-10-18 11:30", approvedCell)

	lineHeaderCell, _ := f.GetCellValue(sheetRequisition, "A14")
	assert.Equal(t, "Line", lineHeaderCell)
	category, _ := f.GetCellValue(sheetRequisition, "D15")
	assert.Equal(t, "IT", category)
	quantity, _ := f.GetCellValue(sheetRequisition, "G15")
	assert.Equal(t, "3", quantity)

	rows, err := f.GetRows(sheetApprovals)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"1", "bob", "Manager", "approved", "ok", "", "2026-10-18 11:30"}, rows[1])
	assert.Equal(t, "cancelled", rows[2][3])
}
