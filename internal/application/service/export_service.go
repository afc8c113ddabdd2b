package service

import (
	"context"
	"fmt"
	"path"

	"github.com/garyjia/requisition-approval/internal/application/port"
	"github.com/garyjia/requisition-approval/internal/domain/entity"
	apperrors "github.com/garyjia/requisition-approval/internal/pkg/errors"
)

// Export is a rendered workbook and where it was archived
type Export struct {
	FileName string
	Path     string
	Content  []byte
}

// ExportService renders a requisition and its approval trail to xlsx
type ExportService interface {
	ExportApprovalTrail(ctx context.Context, requisitionID int64, caller *entity.User) (*Export, error)
}

type exportServiceImpl struct {
	requisitionRepo port.RequisitionRepository
	approvalRepo    port.ApprovalRepository
	renderer        port.SpreadsheetRenderer
	storage         port.FileStorage
	logger          Logger
	options
}

// NewExportService creates a new ExportService
func NewExportService(
	requisitionRepo port.RequisitionRepository,
	approvalRepo port.ApprovalRepository,
	renderer port.SpreadsheetRenderer,
	storage port.FileStorage,
	logger Logger,
	opts ...Option,
) ExportService {
	return &exportServiceImpl{
		requisitionRepo: requisitionRepo,
		approvalRepo:    approvalRepo,
		renderer:        renderer,
		storage:         storage,
		logger:          logger,
		options:         newOptions(opts),
	}
}

// ExportApprovalTrail is open to the owner, staff and anyone on the trail
func (s *exportServiceImpl) ExportApprovalTrail(ctx context.Context, requisitionID int64, caller *entity.User) (*Export, error) {
	req, err := s.requisitionRepo.GetByID(ctx, requisitionID)
	if err != nil {
		return nil, apperrors.Internal(err, "Failed to load requisition.")
	}
	if req == nil {
		return nil, apperrors.NotFound(apperrors.CodeRequisitionNotFound, "Requisition not found.")
	}

	approvals, err := s.approvalRepo.ListByRequisition(ctx, requisitionID)
	if err != nil {
		return nil, apperrors.Internal(err, "Failed to load approvals.")
	}
	if !canView(req, approvals, caller) {
		return nil, apperrors.Forbidden(apperrors.CodeForbidden, "You do not have access to this requisition.")
	}

	content, err := s.renderer.RenderApprovalTrail(req, approvals)
	if err != nil {
		return nil, apperrors.Internal(err, "Failed to render export.")
	}

	name := fmt.Sprintf("requisition-%d-%s.xlsx", req.ID, s.now().Format("20060102-150405"))
	export := &Export{
		FileName: name,
		Path:     path.Join("requisitions", fmt.Sprint(req.ID), name),
		Content:  content,
	}
	if s.storage != nil {
		if err := s.storage.Save(ctx, export.Path, content); err != nil {
			s.logger.Error("Failed to archive export", "requisition_id", req.ID, "path", export.Path, "error", err)
			export.Path = ""
		}
	}

	s.logger.Info("Approval trail exported", "requisition_id", req.ID, "approvals", len(approvals), "size", len(content))
	return export, nil
}

func canView(req *entity.Requisition, approvals []*entity.Approval, caller *entity.User) bool {
	if caller == nil {
		return false
	}
	if caller.IsStaff || req.IsOwnedBy(caller) {
		return true
	}
	for _, a := range approvals {
		if a.ApproverID == caller.ID {
			return true
		}
	}
	return false
}
