package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/requisition-approval/internal/application/service"
	"github.com/garyjia/requisition-approval/internal/domain/entity"
	apperrors "github.com/garyjia/requisition-approval/internal/pkg/errors"
)

const (
	apiVersion   = "1.0.0"
	xlsxMIMEType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	services Services
	logger   Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, logger Logger) *Handlers {
	return &Handlers{services: services, logger: logger}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// ApprovalResponse is an approval row as shown to API clients
type ApprovalResponse struct {
	ID               int64   `json:"id"`
	RequisitionID    int64   `json:"requisition_id"`
	ApproverID       int64   `json:"approver_id"`
	ApproverUsername string  `json:"approver_username,omitempty"`
	ChainName        string  `json:"chain_name,omitempty"`
	SequenceNumber   int     `json:"sequence_number"`
	Status           string  `json:"status"`
	Comment          string  `json:"comment,omitempty"`
	SystemGenerated  bool    `json:"system_generated"`
	NotifiedAt       *string `json:"notified_at,omitempty"`
	DecidedAt        *string `json:"decided_at,omitempty"`
}

// DecisionRequest is the body of approve, reject and skip
type DecisionRequest struct {
	Comment string `json:"comment"`
}

// BypassResponse reports how many approvals a bypass settled
type BypassResponse struct {
	RequisitionID int64 `json:"requisition_id"`
	Bypassed      int64 `json:"bypassed"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	ok(c, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   apiVersion,
	})
}

// CreateRequisition handles POST /api/v1/requisitions
func (h *Handlers) CreateRequisition(c *gin.Context) {
	var input service.CreateRequisitionInput
	if !h.bind(c, &input) {
		return
	}

	req, err := h.services.Requisitions.Create(c.Request.Context(), input, callerFrom(c))
	if err != nil {
		h.fail(c, "Failed to create requisition", err)
		return
	}
	ok(c, http.StatusCreated, req)
}

// GetRequisition handles GET /api/v1/requisitions/:id
func (h *Handlers) GetRequisition(c *gin.Context) {
	id, valid := pathID(c, "requisition")
	if !valid {
		return
	}

	req, err := h.services.Requisitions.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to get requisition", err, "id", id)
		return
	}
	ok(c, http.StatusOK, req)
}

// DeleteRequisition handles DELETE /api/v1/requisitions/:id
func (h *Handlers) DeleteRequisition(c *gin.Context) {
	id, valid := pathID(c, "requisition")
	if !valid {
		return
	}

	if err := h.services.Requisitions.Delete(c.Request.Context(), id, callerFrom(c)); err != nil {
		h.fail(c, "Failed to delete requisition", err, "id", id)
		return
	}
	c.Status(http.StatusNoContent)
}

// SubmitRequisition handles POST /api/v1/requisitions/:id/submit
func (h *Handlers) SubmitRequisition(c *gin.Context) {
	id, valid := pathID(c, "requisition")
	if !valid {
		return
	}

	req, err := h.services.Requisitions.Submit(c.Request.Context(), id, callerFrom(c))
	if err != nil {
		h.fail(c, "Failed to submit requisition", err, "id", id)
		return
	}
	h.logger.Info("Requisition submitted", "id", id, "total", req.TotalAmount.StringFixed(2))
	ok(c, http.StatusOK, req)
}

// WithdrawRequisition handles POST /api/v1/requisitions/:id/withdraw
func (h *Handlers) WithdrawRequisition(c *gin.Context) {
	id, valid := pathID(c, "requisition")
	if !valid {
		return
	}

	req, err := h.services.Requisitions.Withdraw(c.Request.Context(), id, callerFrom(c))
	if err != nil {
		h.fail(c, "Failed to withdraw requisition", err, "id", id)
		return
	}
	ok(c, http.StatusOK, req)
}

// BypassApprovals handles POST /api/v1/requisitions/:id/bypass
func (h *Handlers) BypassApprovals(c *gin.Context) {
	id, valid := pathID(c, "requisition")
	if !valid {
		return
	}

	n, err := h.services.Approvals.BypassApprovals(c.Request.Context(), id, callerFrom(c))
	if err != nil {
		h.fail(c, "Failed to bypass approvals", err, "id", id)
		return
	}
	ok(c, http.StatusOK, BypassResponse{RequisitionID: id, Bypassed: n})
}

// ListRequisitionApprovals handles GET /api/v1/requisitions/:id/approvals
func (h *Handlers) ListRequisitionApprovals(c *gin.Context) {
	id, valid := pathID(c, "requisition")
	if !valid {
		return
	}

	approvals, err := h.services.Approvals.ListByRequisition(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to list approvals", err, "id", id)
		return
	}
	ok(c, http.StatusOK, toApprovalResponses(approvals))
}

// GetHistory handles GET /api/v1/requisitions/:id/history
func (h *Handlers) GetHistory(c *gin.Context) {
	id, valid := pathID(c, "requisition")
	if !valid {
		return
	}

	history, err := h.services.Audit.History(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to load history", err, "id", id)
		return
	}
	ok(c, http.StatusOK, history)
}

// ExportRequisition handles GET /api/v1/requisitions/:id/export
func (h *Handlers) ExportRequisition(c *gin.Context) {
	id, valid := pathID(c, "requisition")
	if !valid {
		return
	}

	export, err := h.services.Exports.ExportApprovalTrail(c.Request.Context(), id, callerFrom(c))
	if err != nil {
		h.fail(c, "Failed to export requisition", err, "id", id)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.FileName))
	c.Data(http.StatusOK, xlsxMIMEType, export.Content)
}

// ListMyApprovals handles GET /api/v1/approvals/mine
func (h *Handlers) ListMyApprovals(c *gin.Context) {
	approvals, err := h.services.Approvals.ListForApprover(c.Request.Context(), callerFrom(c))
	if err != nil {
		h.fail(c, "Failed to list approvals", err)
		return
	}
	ok(c, http.StatusOK, toApprovalResponses(approvals))
}

// GetApproval handles GET /api/v1/approvals/:id
func (h *Handlers) GetApproval(c *gin.Context) {
	id, valid := pathID(c, "approval")
	if !valid {
		return
	}

	approval, err := h.services.Approvals.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to get approval", err, "id", id)
		return
	}
	ok(c, http.StatusOK, toApprovalResponse(approval))
}

// ApproveApproval handles POST /api/v1/approvals/:id/approve
func (h *Handlers) ApproveApproval(c *gin.Context) {
	h.decide(c, "approve", h.services.Approvals.Approve)
}

// RejectApproval handles POST /api/v1/approvals/:id/reject
func (h *Handlers) RejectApproval(c *gin.Context) {
	h.decide(c, "reject", h.services.Approvals.Reject)
}

// SkipApproval handles POST /api/v1/approvals/:id/skip
func (h *Handlers) SkipApproval(c *gin.Context) {
	h.decide(c, "skip", h.services.Approvals.Skip)
}

type decisionFunc func(ctx context.Context, approvalID int64, caller *entity.User, comment string) (*entity.Approval, error)

func (h *Handlers) decide(c *gin.Context, action string, fn decisionFunc) {
	id, valid := pathID(c, "approval")
	if !valid {
		return
	}

	// the body is optional
	var body DecisionRequest
	if c.Request.ContentLength != 0 && !h.bind(c, &body) {
		return
	}

	approval, err := fn(c.Request.Context(), id, callerFrom(c), body.Comment)
	if err != nil {
		h.fail(c, "Failed to "+action+" approval", err, "id", id)
		return
	}
	ok(c, http.StatusOK, toApprovalResponse(approval))
}

// CreateChain handles POST /api/v1/chains
func (h *Handlers) CreateChain(c *gin.Context) {
	var input service.CreateChainInput
	if !h.bind(c, &input) {
		return
	}

	chain, err := h.services.Chains.CreateChain(c.Request.Context(), input, callerFrom(c))
	if err != nil {
		h.fail(c, "Failed to create chain", err)
		return
	}
	ok(c, http.StatusCreated, chain)
}

// GetChain handles GET /api/v1/chains/:id
func (h *Handlers) GetChain(c *gin.Context) {
	id, valid := pathID(c, "chain")
	if !valid {
		return
	}

	chain, err := h.services.Chains.GetChain(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to get chain", err, "id", id)
		return
	}
	ok(c, http.StatusOK, chain)
}

// DeleteChain handles DELETE /api/v1/chains/:id
func (h *Handlers) DeleteChain(c *gin.Context) {
	id, valid := pathID(c, "chain")
	if !valid {
		return
	}

	if err := h.services.Chains.DeleteChain(c.Request.Context(), id, callerFrom(c)); err != nil {
		h.fail(c, "Failed to delete chain", err, "id", id)
		return
	}
	c.Status(http.StatusNoContent)
}

// AddHeaderRule handles POST /api/v1/chains/:id/header-rules
func (h *Handlers) AddHeaderRule(c *gin.Context) {
	id, valid := pathID(c, "chain")
	if !valid {
		return
	}
	var input service.RuleInput
	if !h.bind(c, &input) {
		return
	}

	rule, err := h.services.Chains.AddHeaderRule(c.Request.Context(), id, input, callerFrom(c))
	if err != nil {
		h.fail(c, "Failed to add header rule", err, "chain_id", id)
		return
	}
	ok(c, http.StatusCreated, rule)
}

// AddLineRule handles POST /api/v1/chains/:id/line-rules
func (h *Handlers) AddLineRule(c *gin.Context) {
	id, valid := pathID(c, "chain")
	if !valid {
		return
	}
	var input service.RuleInput
	if !h.bind(c, &input) {
		return
	}

	rule, err := h.services.Chains.AddLineRule(c.Request.Context(), id, input, callerFrom(c))
	if err != nil {
		h.fail(c, "Failed to add line rule", err, "chain_id", id)
		return
	}
	ok(c, http.StatusCreated, rule)
}

// CreateGroup handles POST /api/v1/groups
func (h *Handlers) CreateGroup(c *gin.Context) {
	var input service.CreateGroupInput
	if !h.bind(c, &input) {
		return
	}

	group, err := h.services.Chains.CreateGroup(c.Request.Context(), input, callerFrom(c))
	if err != nil {
		h.fail(c, "Failed to create group", err)
		return
	}
	ok(c, http.StatusCreated, group)
}

// DeactivateUser handles POST /api/v1/users/:id/deactivate
func (h *Handlers) DeactivateUser(c *gin.Context) {
	id, valid := pathID(c, "user")
	if !valid {
		return
	}

	result, err := h.services.Users.Deactivate(c.Request.Context(), id, callerFrom(c))
	if err != nil {
		h.fail(c, "Failed to deactivate user", err, "id", id)
		return
	}
	h.logger.Info("User deactivated", "id", id, "requisitions", len(result.Requisitions))
	ok(c, http.StatusOK, result)
}

func (h *Handlers) bind(c *gin.Context, target interface{}) bool {
	if err := c.ShouldBindJSON(target); err != nil {
		h.logger.Error("Invalid request body", "path", c.FullPath(), "error", err)
		abortWithError(c, apperrors.BadRequest(apperrors.CodeValidationFailed, "Invalid request body."))
		return false
	}
	return true
}

// fail writes err as the error envelope. Server-side failures are logged;
// client errors are expected traffic.
func (h *Handlers) fail(c *gin.Context, msg string, err error, keysAndValues ...interface{}) {
	status, _ := toErrorBody(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, append(keysAndValues, "error", err)...)
	}
	abortWithError(c, err)
}

func toApprovalResponses(approvals []*entity.Approval) []ApprovalResponse {
	out := make([]ApprovalResponse, 0, len(approvals))
	for _, a := range approvals {
		out = append(out, toApprovalResponse(a))
	}
	return out
}

// toApprovalResponse converts domain entity to API response
func toApprovalResponse(a *entity.Approval) ApprovalResponse {
	resp := ApprovalResponse{
		ID:              a.ID,
		RequisitionID:   a.RequisitionID,
		ApproverID:      a.ApproverID,
		SequenceNumber:  a.SequenceNumber,
		Status:          string(a.Status),
		Comment:         a.Comment,
		SystemGenerated: a.SystemGenerated,
		NotifiedAt:      formatTime(a.NotifiedAt),
	}
	if a.Approver != nil {
		resp.ApproverUsername = a.Approver.Username
	}
	if a.TriggerMetadata != nil {
		resp.ChainName = a.TriggerMetadata.Name
	}

	switch a.Status {
	case entity.ApprovalApproved:
		resp.DecidedAt = formatTime(a.ApprovedAt)
	case entity.ApprovalRejected:
		resp.DecidedAt = formatTime(a.RejectedAt)
	case entity.ApprovalSkipped:
		resp.DecidedAt = formatTime(a.SkippedAt)
	}
	return resp
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
