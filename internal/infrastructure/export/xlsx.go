// Package export renders requisitions and their approval trails as xlsx.
package export

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/requisition-approval/internal/application/port"
	"github.com/garyjia/requisition-approval/internal/domain/entity"
)

const (
	sheetRequisition = "Requisition"
	sheetApprovals   = "Approvals"
	timeLayout       = "2006-01-02 15:04"
)

var (
	lineHeader = []interface{}{
		"Line", "Type", "Description", "Category", "Manufacturer", "Part number",
		"Quantity", "UOM", "Unit price", "Line total", "Payment term", "Need by", "Ship to",
	}
	approvalHeader = []interface{}{
		"Sequence", "Approver", "Chain", "Status", "Comment", "Notified", "Decided",
	}
)

// XLSXRenderer builds the approval trail workbook
type XLSXRenderer struct {
	font   string
	loc    *time.Location
	logger *zap.Logger
}

// NewXLSXRenderer creates a renderer. font sets the workbook default font
// when non-empty; times are written in loc, or UTC when loc is nil.
func NewXLSXRenderer(font string, loc *time.Location, logger *zap.Logger) *XLSXRenderer {
	if loc == nil {
		loc = time.UTC
	}
	return &XLSXRenderer{font: font, loc: loc, logger: logger}
}

// RenderApprovalTrail writes the header and lines on one sheet and the
// approvals, in sequence order, on a second.
func (r *XLSXRenderer) RenderApprovalTrail(req *entity.Requisition, approvals []*entity.Approval) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if r.font != "" {
		if err := f.SetDefaultFont(r.font); err != nil {
			r.logger.Warn("Failed to set workbook font", zap.String("font", r.font), zap.Error(err))
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	if err := f.SetSheetName("Sheet1", sheetRequisition); err != nil {
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	if err := r.writeRequisition(f, bold, req); err != nil {
		return nil, err
	}

	if _, err := f.NewSheet(sheetApprovals); err != nil {
		return nil, fmt.Errorf("failed to add approvals sheet: %w", err)
	}
	if err := r.writeApprovals(f, bold, approvals); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}

	r.logger.Debug("Approval trail rendered",
		zap.Int64("requisition_id", req.ID),
		zap.Int("lines", len(req.Lines)),
		zap.Int("approvals", len(approvals)))
	return buf.Bytes(), nil
}

func (r *XLSXRenderer) writeRequisition(f *excelize.File, bold int, req *entity.Requisition) error {
	owner := ""
	if req.Owner != nil {
		owner = req.Owner.Username
	}
	project := ""
	if req.Project != nil {
		project = req.Project.Name
	}

	summary := [][]interface{}{
		{"Requisition", req.ID},
		{"Name", req.Name},
		{"External reference", req.ExternalReference},
		{"Status", string(req.Status)},
		{"Owner", owner},
		{"Project", project},
		{"Supplier", req.Supplier},
		{"Total", req.TotalAmount.InexactFloat64()},
		{"Currency", req.Currency},
		{"Submitted", r.timestamp(req.SubmittedAt)},
		{"Approved", r.timestamp(req.ApprovedAt)},
		{"Rejected", r.timestamp(req.RejectedAt)},
	}
	for i, row := range summary {
		if err := setRow(f, sheetRequisition, i+1, row); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(sheetRequisition, "A1", fmt.Sprintf("A%d", len(summary)), bold); err != nil {
		return fmt.Errorf("failed to style summary: %w", err)
	}

	headerRow := len(summary) + 2
	if err := setRow(f, sheetRequisition, headerRow, lineHeader); err != nil {
		return err
	}
	if err := styleRow(f, sheetRequisition, headerRow, len(lineHeader), bold); err != nil {
		return err
	}

	for i, line := range req.Lines {
		if err := setRow(f, sheetRequisition, headerRow+1+i, r.lineRow(line)); err != nil {
			return err
		}
	}
	return f.SetColWidth(sheetRequisition, "A", "M", 16)
}

func (r *XLSXRenderer) lineRow(line *entity.RequisitionLine) []interface{} {
	var quantity, unitPrice interface{}
	if line.Quantity != nil {
		quantity = *line.Quantity
	}
	if line.UnitPrice != nil {
		unitPrice = line.UnitPrice.InexactFloat64()
	}
	needBy := ""
	if line.NeedBy != nil {
		needBy = line.NeedBy.Format(entity.DateLayout)
	}
	shipTo := ""
	if line.ShipTo != nil {
		shipTo = line.ShipTo.Name
	}
	return []interface{}{
		line.LineNumber,
		string(line.LineType),
		line.Description,
		line.Category,
		line.Manufacturer,
		line.ManufacturerPartNumber,
		quantity,
		string(line.UnitOfMeasure),
		unitPrice,
		line.LineTotal.InexactFloat64(),
		string(line.PaymentTerm),
		needBy,
		shipTo,
	}
}

func (r *XLSXRenderer) writeApprovals(f *excelize.File, bold int, approvals []*entity.Approval) error {
	if err := setRow(f, sheetApprovals, 1, approvalHeader); err != nil {
		return err
	}
	if err := styleRow(f, sheetApprovals, 1, len(approvalHeader), bold); err != nil {
		return err
	}

	for i, a := range approvals {
		approver := ""
		if a.Approver != nil {
			approver = a.Approver.Username
		}
		chain := ""
		if a.TriggerMetadata != nil {
			chain = a.TriggerMetadata.Name
		}
		row := []interface{}{
			a.SequenceNumber,
			approver,
			chain,
			string(a.Status),
			a.Comment,
			r.timestamp(a.NotifiedAt),
			r.timestamp(decidedAt(a)),
		}
		if err := setRow(f, sheetApprovals, i+2, row); err != nil {
			return err
		}
	}
	return f.SetColWidth(sheetApprovals, "A", "G", 18)
}

func decidedAt(a *entity.Approval) *time.Time {
	switch a.Status {
	case entity.ApprovalApproved:
		return a.ApprovedAt
	case entity.ApprovalRejected:
		return a.RejectedAt
	case entity.ApprovalSkipped:
		return a.SkippedAt
	}
	return nil
}

func (r *XLSXRenderer) timestamp(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.In(r.loc).Format(timeLayout)
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func styleRow(f *excelize.File, sheet string, row, cols, style int) error {
	last, err := excelize.CoordinatesToCellName(cols, row)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, fmt.Sprintf("A%d", row), last, style); err != nil {
		return fmt.Errorf("failed to style %s row %d: %w", sheet, row, err)
	}
	return nil
}

var _ port.SpreadsheetRenderer = (*XLSXRenderer)(nil)
