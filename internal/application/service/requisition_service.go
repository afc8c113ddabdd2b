package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/requisition-approval/internal/application/port"
	"github.com/garyjia/requisition-approval/internal/domain/entity"
	"github.com/garyjia/requisition-approval/internal/domain/event"
	"github.com/garyjia/requisition-approval/internal/domain/workflow"
	apperrors "github.com/garyjia/requisition-approval/internal/pkg/errors"
)

// DefaultMaxRequisitionLines caps the number of lines on one requisition
const DefaultMaxRequisitionLines = 250

// Amounts are stored with two decimal places and at most nine digits.
var maxAmount = decimal.New(1, 7)

// RequisitionConfig holds the creation limits
type RequisitionConfig struct {
	MaxLines   int
	Currencies []string
}

// CreateRequisitionInput is the payload for a new draft requisition
type CreateRequisitionInput struct {
	Name              string            `json:"name"`
	ExternalReference string            `json:"external_reference"`
	ProjectID         *int64            `json:"project_id"`
	Supplier          string            `json:"supplier"`
	Justification     string            `json:"justification"`
	TotalAmount       decimal.Decimal   `json:"total_amount"`
	Currency          string            `json:"currency"`
	Lines             []CreateLineInput `json:"lines"`
}

// CreateLineInput is one line of a new requisition
type CreateLineInput struct {
	LineNumber             int              `json:"line_number"`
	LineType               entity.LineType  `json:"line_type"`
	Description            string           `json:"description"`
	Category               string           `json:"category"`
	Manufacturer           string           `json:"manufacturer"`
	ManufacturerPartNumber string           `json:"manufacturer_part_number"`
	Quantity               *int             `json:"quantity"`
	UnitOfMeasure          string           `json:"uom"`
	UnitPrice              *decimal.Decimal `json:"unit_price"`
	LineTotal              decimal.Decimal  `json:"line_total"`
	PaymentTerm            string           `json:"payment_term"`
	NeedBy                 *string          `json:"need_by"`
	ShipToID               *int64           `json:"ship_to_id"`
}

// RequisitionService drives the requisition lifecycle
type RequisitionService interface {
	Create(ctx context.Context, input CreateRequisitionInput, caller *entity.User) (*entity.Requisition, error)
	Get(ctx context.Context, id int64) (*entity.Requisition, error)
	Submit(ctx context.Context, id int64, caller *entity.User) (*entity.Requisition, error)
	Withdraw(ctx context.Context, id int64, caller *entity.User) (*entity.Requisition, error)
	// Delete soft-deletes a draft or rejected requisition and its lines
	Delete(ctx context.Context, id int64, caller *entity.User) error
}

type requisitionServiceImpl struct {
	requisitionRepo port.RequisitionRepository
	approvalRepo    port.ApprovalRepository
	projectRepo     port.ProjectRepository
	addressRepo     port.AddressRepository
	matcher         ChainMatcher
	approvals       ApprovalService
	txManager       port.TransactionManager
	publisher       port.EventPublisher
	cfg             RequisitionConfig
	logger          Logger
	options
}

// NewRequisitionService creates a new RequisitionService
func NewRequisitionService(
	requisitionRepo port.RequisitionRepository,
	approvalRepo port.ApprovalRepository,
	projectRepo port.ProjectRepository,
	addressRepo port.AddressRepository,
	matcher ChainMatcher,
	approvals ApprovalService,
	txManager port.TransactionManager,
	publisher port.EventPublisher,
	cfg RequisitionConfig,
	logger Logger,
	opts ...Option,
) RequisitionService {
	if cfg.MaxLines <= 0 {
		cfg.MaxLines = DefaultMaxRequisitionLines
	}
	if len(cfg.Currencies) == 0 {
		cfg.Currencies = []string{entity.CurrencyUSD}
	}
	return &requisitionServiceImpl{
		requisitionRepo: requisitionRepo,
		approvalRepo:    approvalRepo,
		projectRepo:     projectRepo,
		addressRepo:     addressRepo,
		matcher:         matcher,
		approvals:       approvals,
		txManager:       txManager,
		publisher:       publisher,
		cfg:             cfg,
		logger:          logger,
		options:         newOptions(opts),
	}
}

// Get retrieves a requisition with its owner, project and lines
func (s *requisitionServiceImpl) Get(ctx context.Context, id int64) (*entity.Requisition, error) {
	req, err := s.requisitionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.Internal(err, "Failed to load requisition.")
	}
	if req == nil {
		return nil, apperrors.NotFound(apperrors.CodeRequisitionNotFound, "Requisition not found.")
	}
	return req, nil
}

// Create validates and stores a new draft owned by the caller
func (s *requisitionServiceImpl) Create(ctx context.Context, input CreateRequisitionInput, caller *entity.User) (*entity.Requisition, error) {
	if caller == nil {
		return nil, apperrors.Forbidden(apperrors.CodeForbidden, "You must be signed in to create a requisition.")
	}

	var req *entity.Requisition
	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		built, fieldErrs, err := s.build(ctx, input, caller)
		if err != nil {
			return err
		}
		if len(fieldErrs) > 0 {
			return apperrors.BadRequest(apperrors.CodeValidationFailed, "Requisition is invalid.").
				WithFieldErrors(fieldErrs)
		}
		if err := s.requisitionRepo.Create(ctx, built); err != nil {
			return apperrors.Internal(err, "Failed to save requisition.")
		}
		req = built
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Requisition created",
		"requisition_id", req.ID,
		"owner_id", caller.ID,
		"lines", len(req.Lines),
		"total_amount", req.TotalAmount.StringFixed(2),
	)
	return s.Get(ctx, req.ID)
}

// build converts the input to an entity, collecting every field error
func (s *requisitionServiceImpl) build(ctx context.Context, in CreateRequisitionInput, caller *entity.User) (*entity.Requisition, []apperrors.FieldError, error) {
	var errs []apperrors.FieldError
	fail := func(field, msg string) {
		errs = append(errs, apperrors.FieldError{Field: field, Message: msg})
	}

	req := &entity.Requisition{
		Name:              strings.TrimSpace(in.Name),
		ExternalReference: strings.TrimSpace(in.ExternalReference),
		Status:            entity.RequisitionDraft,
		OwnerID:           caller.ID,
		ProjectID:         in.ProjectID,
		Supplier:          strings.TrimSpace(in.Supplier),
		Justification:     in.Justification,
		TotalAmount:       in.TotalAmount,
		Currency:          strings.ToLower(strings.TrimSpace(in.Currency)),
		CreatedByID:       int64Ptr(caller.ID),
		UpdatedByID:       int64Ptr(caller.ID),
	}
	if req.Currency == "" {
		req.Currency = entity.CurrencyUSD
	}

	if req.Name == "" {
		fail("name", "This field is required.")
	}
	if req.Supplier == "" {
		fail("supplier", "This field is required.")
	}
	if !containsString(s.cfg.Currencies, req.Currency) {
		fail("currency", fmt.Sprintf("This is not a valid currency: %s", in.Currency))
	}
	if msg := checkAmount(in.TotalAmount, decimal.New(1, -2)); msg != "" {
		fail("total_amount", msg)
	}

	if in.ProjectID != nil {
		project, err := s.projectRepo.GetByID(ctx, *in.ProjectID)
		if err != nil {
			return nil, nil, apperrors.Internal(err, "Failed to load project.")
		}
		if project == nil {
			fail("project_id", "Project not found.")
		}
	}

	switch {
	case len(in.Lines) == 0:
		fail("lines", "Ensure at least one line is provided.")
	case len(in.Lines) > s.cfg.MaxLines:
		fail("lines", fmt.Sprintf("Ensure only %d or less lines are provided.", s.cfg.MaxLines))
	}

	today := s.now().UTC().Truncate(24 * time.Hour)
	seen := make(map[int]bool, len(in.Lines))
	for i, li := range in.Lines {
		prefix := fmt.Sprintf("lines[%d].", i)
		line, lineErrs, err := s.buildLine(ctx, li, today)
		if err != nil {
			return nil, nil, err
		}
		for _, fe := range lineErrs {
			fail(prefix+fe.Field, fe.Message)
		}
		if seen[li.LineNumber] {
			fail("lines", "Line numbers must contain unique values.")
		}
		seen[li.LineNumber] = true
		req.Lines = append(req.Lines, line)
	}

	if len(in.Lines) > 0 && !req.TotalAmount.Equal(req.LinesTotal()) {
		fail("total_amount", "This value does not align with line total(s).")
	}
	return req, errs, nil
}

func (s *requisitionServiceImpl) buildLine(ctx context.Context, in CreateLineInput, today time.Time) (*entity.RequisitionLine, []apperrors.FieldError, error) {
	var errs []apperrors.FieldError
	fail := func(field, msg string) {
		errs = append(errs, apperrors.FieldError{Field: field, Message: msg})
	}

	line := &entity.RequisitionLine{
		LineNumber:             in.LineNumber,
		LineType:               in.LineType,
		Description:            strings.TrimSpace(in.Description),
		Category:               strings.TrimSpace(in.Category),
		Manufacturer:           strings.TrimSpace(in.Manufacturer),
		ManufacturerPartNumber: strings.TrimSpace(in.ManufacturerPartNumber),
		Quantity:               in.Quantity,
		UnitOfMeasure:          entity.UnitOfMeasure(in.UnitOfMeasure),
		UnitPrice:              in.UnitPrice,
		LineTotal:              in.LineTotal,
		PaymentTerm:            entity.PaymentTerm(in.PaymentTerm),
		ShipToID:               in.ShipToID,
	}

	if in.LineNumber < 1 {
		fail("line_number", "Ensure this value is greater than or equal to 1.")
	}
	if line.Description == "" {
		fail("description", "This field is required.")
	}
	if line.Category == "" {
		fail("category", "This field is required.")
	}
	if msg := checkAmount(in.LineTotal, decimal.Zero); msg != "" {
		fail("line_total", msg)
	}

	switch line.PaymentTerm {
	case entity.PaymentTermNet30, entity.PaymentTermNet45, entity.PaymentTermNet90:
	default:
		fail("payment_term", fmt.Sprintf("This is not a valid payment term: %s", in.PaymentTerm))
	}
	switch line.UnitOfMeasure {
	case "", entity.UOMEach, entity.UOMBox:
	default:
		fail("uom", fmt.Sprintf("This is not a valid unit of measure: %s", in.UnitOfMeasure))
	}

	switch line.LineType {
	case entity.LineTypeService:
		if in.Quantity != nil || in.UnitPrice != nil || in.UnitOfMeasure != "" {
			fail("line_type", fmt.Sprintf("Line %d marked as service; quantity, unit price, and unit of measure fields must be unset or excluded.", in.LineNumber))
		}
	case entity.LineTypeGoods:
		if in.Quantity == nil || in.UnitPrice == nil || in.UnitOfMeasure == "" {
			fail("line_type", fmt.Sprintf("Line %d marked as goods; quantity, unit price, and unit of measure fields must be included and set.", in.LineNumber))
			break
		}
		if *in.Quantity < 1 {
			fail("quantity", "Ensure this value is greater than or equal to 1.")
		}
		if msg := checkAmount(*in.UnitPrice, decimal.Zero); msg != "" {
			fail("unit_price", msg)
		}
		if !in.UnitPrice.Mul(decimal.NewFromInt(int64(*in.Quantity))).Equal(in.LineTotal) {
			fail("line_total", "This value does not align with unit price and quantity.")
		}
	default:
		fail("line_type", fmt.Sprintf("This is not a valid line type: %s", in.LineType))
	}

	if in.NeedBy != nil && *in.NeedBy != "" {
		needBy, err := time.Parse(entity.DateLayout, *in.NeedBy)
		switch {
		case err != nil:
			fail("need_by", "Date has wrong format. Use YYYY-MM-DD.")
		case needBy.Before(today):
			fail("need_by", fmt.Sprintf("This value must be a future date: %s", *in.NeedBy))
		default:
			line.NeedBy = &needBy
		}
	}

	if in.ShipToID != nil {
		addr, err := s.addressRepo.GetByID(ctx, *in.ShipToID)
		if err != nil {
			return nil, nil, apperrors.Internal(err, "Failed to load address.")
		}
		if addr == nil {
			fail("ship_to_id", "Address not found.")
		}
		line.ShipTo = addr
	}
	return line, errs, nil
}

// checkAmount enforces the money column shape: two decimal places, nine
// digits, and a lower bound.
func checkAmount(d, min decimal.Decimal) string {
	switch {
	case d.LessThan(min):
		return fmt.Sprintf("Ensure this value is greater than or equal to %s.", min.StringFixed(2))
	case !d.Equal(d.Round(2)):
		return "Ensure that there are no more than 2 decimal places."
	case d.GreaterThanOrEqual(maxAmount):
		return "Ensure that there are no more than 9 digits in total."
	}
	return ""
}

// Submit generates the approval chain for a draft or rejected requisition
// and moves it to pending approval. Any matching failure leaves it untouched.
func (s *requisitionServiceImpl) Submit(ctx context.Context, id int64, caller *entity.User) (*entity.Requisition, error) {
	var count int
	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		req, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		if !req.IsOwnedBy(caller) {
			return apperrors.Forbidden(apperrors.CodeForbidden, "You must be the requisition owner to submit.")
		}
		if req.Status == entity.RequisitionPendingApproval {
			return apperrors.BadRequest(apperrors.CodeInvalidState, "This requisition has already been submitted.")
		}

		machine, err := workflow.RequisitionMachine(req.Status)
		if err != nil {
			return apperrors.Internal(err, "Requisition has an unknown status.")
		}
		if err := machine.Fire(ctx, workflow.TriggerSubmit); err != nil {
			return apperrors.BadRequest(apperrors.CodeInvalidState,
				"This requisition must be in draft or rejected status to submit.")
		}
		if !req.TotalAmount.Equal(req.LinesTotal()) {
			return apperrors.BadRequest(apperrors.CodeValidationFailed, "Requisition is invalid.").
				WithFieldErrors([]apperrors.FieldError{{
					Field:   "total_amount",
					Message: "This value does not align with line total(s).",
				}})
		}

		matches, err := s.matcher.FindMatchingChains(ctx, req)
		if err != nil {
			return apperrors.Internal(err, "Failed to evaluate approval chains.")
		}
		approvals, err := Materialize(req, matches)
		if err != nil {
			return err
		}
		if err := s.approvalRepo.CreateBatch(ctx, approvals); err != nil {
			return apperrors.Internal(err, "Failed to save approvals.")
		}
		count = len(approvals)

		req.Status = entity.RequisitionStatus(machine.State())
		req.SubmittedAt = timePtr(s.now())
		req.RejectedAt = nil
		req.UpdatedByID = int64Ptr(caller.ID)
		if err := s.requisitionRepo.Update(ctx, req); err != nil {
			return apperrors.Internal(err, "Failed to save requisition.")
		}

		publishAfterCommit(ctx, s.txManager, s.publisher, s.logger, event.NewEvent(
			event.TypeRequisitionSubmitted, req.ID, map[string]interface{}{
				event.KeyActorID: caller.ID,
				event.KeyCount:   count,
			}))
		s.txManager.AfterCommit(ctx, func(ctx context.Context) {
			if err := s.approvals.NotifyCurrentSequence(ctx, id); err != nil {
				s.logger.Error("Failed to notify current sequence", "requisition_id", id, "error", err)
			}
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Requisition submitted", "requisition_id", id, "approvals", count)
	return s.Get(ctx, id)
}

// Withdraw cancels the pending approvals and returns the requisition to draft
func (s *requisitionServiceImpl) Withdraw(ctx context.Context, id int64, caller *entity.User) (*entity.Requisition, error) {
	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		req, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		if !req.IsOwnedBy(caller) {
			return apperrors.Forbidden(apperrors.CodeForbidden, "You must be the requisition owner to withdraw.")
		}
		if req.Status == entity.RequisitionDraft {
			return apperrors.BadRequest(apperrors.CodeInvalidState, "This requisition has already been withdrawn.")
		}

		machine, err := workflow.RequisitionMachine(req.Status)
		if err != nil {
			return apperrors.Internal(err, "Requisition has an unknown status.")
		}
		if err := machine.Fire(ctx, workflow.TriggerWithdraw); err != nil {
			return apperrors.BadRequest(apperrors.CodeInvalidState,
				"This requisition must be in pending approval status to withdraw.")
		}

		if _, err := s.approvals.CancelPending(ctx, id, int64Ptr(caller.ID)); err != nil {
			return apperrors.Internal(err, "Failed to cancel approvals.")
		}

		req.Status = entity.RequisitionStatus(machine.State())
		req.SubmittedAt = nil
		req.UpdatedByID = int64Ptr(caller.ID)
		if err := s.requisitionRepo.Update(ctx, req); err != nil {
			return apperrors.Internal(err, "Failed to save requisition.")
		}

		publishAfterCommit(ctx, s.txManager, s.publisher, s.logger, event.NewEvent(
			event.TypeRequisitionWithdrawn, req.ID, map[string]interface{}{
				event.KeyActorID: caller.ID,
			}))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Requisition withdrawn", "requisition_id", id, "actor_id", caller.ID)
	return s.Get(ctx, id)
}

// Delete soft-deletes a requisition that is not in flight
func (s *requisitionServiceImpl) Delete(ctx context.Context, id int64, caller *entity.User) error {
	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		req, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		if !req.IsOwnedBy(caller) {
			return apperrors.Forbidden(apperrors.CodeForbidden, "You must be the requisition owner to delete.")
		}
		if req.Status != entity.RequisitionDraft && req.Status != entity.RequisitionRejected {
			return apperrors.BadRequest(apperrors.CodeInvalidState,
				"This requisition must be in draft or rejected status to delete.")
		}
		if err := s.requisitionRepo.SoftDelete(ctx, id, caller.ID); err != nil {
			return apperrors.Internal(err, "Failed to delete requisition.")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("Requisition deleted", "requisition_id", id, "actor_id", caller.ID)
	return nil
}

func containsString(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
