package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/requisition-approval/internal/application/port"
	"github.com/garyjia/requisition-approval/internal/domain/entity"
	"github.com/garyjia/requisition-approval/internal/domain/rule"
	apperrors "github.com/garyjia/requisition-approval/internal/pkg/errors"
)

// CreateChainInput is the payload for a new approval chain
type CreateChainInput struct {
	Name            string           `json:"name"`
	ApproverMode    string           `json:"approver_mode"`
	ApproverID      *int64           `json:"approver_id"`
	ApproverGroupID *int64           `json:"approver_group_id"`
	GroupMode       string           `json:"group_mode"`
	SequenceNumber  int              `json:"sequence_number"`
	MinAmount       decimal.Decimal  `json:"min_amount"`
	MaxAmount       *decimal.Decimal `json:"max_amount"`
	Active          *bool            `json:"active"`
	ValidFrom       *string          `json:"valid_from"`
	ValidTo         *string          `json:"valid_to"`
	HeaderRuleLogic string           `json:"header_rule_logic"`
	LineRuleLogic   string           `json:"line_rule_logic"`
	CrossRuleLogic  string           `json:"cross_rule_logic"`
}

// RuleInput is the payload for a header or line rule. MatchMode applies to
// line rules only.
type RuleInput struct {
	Field     string   `json:"field"`
	Lookup    string   `json:"lookup"`
	Value     []string `json:"value"`
	MatchMode string   `json:"match_mode"`
}

// CreateGroupInput is the payload for a new approval group
type CreateGroupInput struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	MemberIDs   []int64 `json:"member_ids"`
}

// ChainService administers approval chains, their rules and approver groups.
// Configuration errors are reported here, at save time.
type ChainService interface {
	CreateChain(ctx context.Context, input CreateChainInput, caller *entity.User) (*entity.ApprovalChain, error)
	GetChain(ctx context.Context, id int64) (*entity.ApprovalChain, error)
	AddHeaderRule(ctx context.Context, chainID int64, input RuleInput, caller *entity.User) (*entity.HeaderRule, error)
	AddLineRule(ctx context.Context, chainID int64, input RuleInput, caller *entity.User) (*entity.LineRule, error)
	DeleteChain(ctx context.Context, id int64, caller *entity.User) error
	CreateGroup(ctx context.Context, input CreateGroupInput, caller *entity.User) (*entity.ApprovalGroup, error)
}

type chainServiceImpl struct {
	chainRepo port.ChainRepository
	groupRepo port.GroupRepository
	userRepo  port.UserRepository
	txManager port.TransactionManager
	logger    Logger
}

// NewChainService creates a new ChainService
func NewChainService(
	chainRepo port.ChainRepository,
	groupRepo port.GroupRepository,
	userRepo port.UserRepository,
	txManager port.TransactionManager,
	logger Logger,
) ChainService {
	return &chainServiceImpl{
		chainRepo: chainRepo,
		groupRepo: groupRepo,
		userRepo:  userRepo,
		txManager: txManager,
		logger:    logger,
	}
}

// GetChain retrieves a live chain with its approvers and rules
func (s *chainServiceImpl) GetChain(ctx context.Context, id int64) (*entity.ApprovalChain, error) {
	chain, err := s.chainRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.Internal(err, "Failed to load approval chain.")
	}
	if chain == nil {
		return nil, apperrors.NotFound(apperrors.CodeChainNotFound, "Approval chain not found.")
	}
	return chain, nil
}

// CreateChain validates and stores a chain. An individual chain drops any
// group settings and a group chain drops the individual approver.
func (s *chainServiceImpl) CreateChain(ctx context.Context, input CreateChainInput, caller *entity.User) (*entity.ApprovalChain, error) {
	if err := requireStaff(caller, "manage approval chains"); err != nil {
		return nil, err
	}

	var chain *entity.ApprovalChain
	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		built, fieldErrs, err := s.buildChain(ctx, input)
		if err != nil {
			return err
		}
		if len(fieldErrs) > 0 {
			return apperrors.BadRequest(apperrors.CodeChainInvalid, "Approval chain is invalid.").
				WithFieldErrors(fieldErrs)
		}
		if err := s.chainRepo.Create(ctx, built); err != nil {
			if errors.Is(err, port.ErrDuplicate) {
				return apperrors.Conflict(apperrors.CodeChainInvalid, "An approval chain with this name already exists.")
			}
			return apperrors.Internal(err, "Failed to save approval chain.")
		}
		chain = built
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Approval chain created",
		"chain_id", chain.ID,
		"name", chain.Name,
		"approver_mode", chain.ApproverMode,
		"sequence_number", chain.SequenceNumber,
	)
	return s.GetChain(ctx, chain.ID)
}

func (s *chainServiceImpl) buildChain(ctx context.Context, in CreateChainInput) (*entity.ApprovalChain, []apperrors.FieldError, error) {
	var errs []apperrors.FieldError
	fail := func(field, msg string) {
		errs = append(errs, apperrors.FieldError{Field: field, Message: msg})
	}

	chain := &entity.ApprovalChain{
		Name:           strings.TrimSpace(in.Name),
		ApproverMode:   entity.ApproverMode(in.ApproverMode),
		GroupMode:      entity.GroupMode(in.GroupMode),
		SequenceNumber: in.SequenceNumber,
		MinAmount:      in.MinAmount,
		MaxAmount:      in.MaxAmount,
		Active:         in.Active == nil || *in.Active,
	}
	if chain.Name == "" {
		fail("name", "This field is required.")
	}

	switch chain.ApproverMode {
	case entity.ApproverModeIndividual:
		chain.ApproverGroupID = nil
		chain.GroupMode = entity.GroupModeAll
		if in.ApproverID == nil {
			fail("approver", "This field is required.")
			break
		}
		user, err := s.userRepo.GetByID(ctx, *in.ApproverID)
		if err != nil {
			return nil, nil, apperrors.Internal(err, "Failed to load approver.")
		}
		if user == nil {
			fail("approver", "User not found.")
		}
		chain.ApproverID = in.ApproverID
	case entity.ApproverModeGroup:
		chain.ApproverID = nil
		if chain.GroupMode == "" {
			chain.GroupMode = entity.GroupModeAll
		}
		if chain.GroupMode != entity.GroupModeAny && chain.GroupMode != entity.GroupModeAll {
			fail("group_mode", fmt.Sprintf("%q is not a valid group mode.", in.GroupMode))
		}
		if in.ApproverGroupID == nil {
			fail("approver_group", "This field is required.")
			break
		}
		group, err := s.groupRepo.GetByID(ctx, *in.ApproverGroupID)
		if err != nil {
			return nil, nil, apperrors.Internal(err, "Failed to load approver group.")
		}
		if group == nil {
			fail("approver_group", "Approval group not found.")
		}
		chain.ApproverGroupID = in.ApproverGroupID
	default:
		fail("approver_mode", fmt.Sprintf("%q is not a valid approver mode.", in.ApproverMode))
	}

	if in.SequenceNumber < entity.MinSequenceNumber || in.SequenceNumber > entity.MaxSequenceNumber {
		fail("sequence_number", fmt.Sprintf("Ensure this value is between %d and %d.",
			entity.MinSequenceNumber, entity.MaxSequenceNumber))
	}
	if msg := checkAmount(in.MinAmount, decimal.New(1, -2)); msg != "" {
		fail("min_amount", msg)
	}
	if in.MaxAmount != nil {
		if msg := checkAmount(*in.MaxAmount, decimal.New(1, -2)); msg != "" {
			fail("max_amount", msg)
		} else if in.MaxAmount.LessThan(in.MinAmount) {
			fail("max_amount", "Ensure this value is greater than or equal to the minimum amount.")
		}
	}

	var ok bool
	if chain.ValidFrom, ok = parseOptionalDate(in.ValidFrom); !ok {
		fail("valid_from", "Date has wrong format. Use YYYY-MM-DD.")
	}
	if chain.ValidTo, ok = parseOptionalDate(in.ValidTo); !ok {
		fail("valid_to", "Date has wrong format. Use YYYY-MM-DD.")
	}
	if chain.ValidFrom != nil && chain.ValidTo != nil && chain.ValidTo.Before(*chain.ValidFrom) {
		fail("valid_to", "Ensure this date is not before the start date.")
	}

	logics := []struct {
		field string
		raw   string
		dst   *entity.Operator
	}{
		{"header_rule_logic", in.HeaderRuleLogic, &chain.HeaderRuleLogic},
		{"line_rule_logic", in.LineRuleLogic, &chain.LineRuleLogic},
		{"cross_rule_logic", in.CrossRuleLogic, &chain.CrossRuleLogic},
	}
	for _, l := range logics {
		op := entity.Operator(strings.ToLower(l.raw))
		switch op {
		case "":
			op = entity.OperatorAnd
		case entity.OperatorAnd, entity.OperatorOr:
		default:
			fail(l.field, fmt.Sprintf("%q is not a valid operator.", l.raw))
		}
		*l.dst = op
	}

	return chain, errs, nil
}

func parseOptionalDate(raw *string) (*time.Time, bool) {
	if raw == nil || *raw == "" {
		return nil, true
	}
	t, err := time.Parse(entity.DateLayout, *raw)
	if err != nil {
		return nil, false
	}
	return &t, true
}

// AddHeaderRule validates and attaches a header rule to a chain
func (s *chainServiceImpl) AddHeaderRule(ctx context.Context, chainID int64, input RuleInput, caller *entity.User) (*entity.HeaderRule, error) {
	if err := requireStaff(caller, "manage approval chains"); err != nil {
		return nil, err
	}

	r := &entity.HeaderRule{
		ChainID: chainID,
		Field:   input.Field,
		Lookup:  input.Lookup,
		Value:   input.Value,
	}
	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.GetChain(ctx, chainID); err != nil {
			return err
		}
		if err := rule.ValidateHeaderRule(r); err != nil {
			return ruleInvalid(err)
		}
		if err := s.chainRepo.AddHeaderRule(ctx, r); err != nil {
			return apperrors.Internal(err, "Failed to save header rule.")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Header rule added", "chain_id", chainID, "rule_id", r.ID, "field", r.Field, "lookup", r.Lookup)
	return r, nil
}

// AddLineRule validates and attaches a line rule to a chain
func (s *chainServiceImpl) AddLineRule(ctx context.Context, chainID int64, input RuleInput, caller *entity.User) (*entity.LineRule, error) {
	if err := requireStaff(caller, "manage approval chains"); err != nil {
		return nil, err
	}

	r := &entity.LineRule{
		ChainID:   chainID,
		Field:     input.Field,
		Lookup:    input.Lookup,
		Value:     input.Value,
		MatchMode: entity.MatchMode(input.MatchMode),
	}
	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.GetChain(ctx, chainID); err != nil {
			return err
		}
		if err := rule.ValidateLineRule(r); err != nil {
			return ruleInvalid(err)
		}
		if err := s.chainRepo.AddLineRule(ctx, r); err != nil {
			return apperrors.Internal(err, "Failed to save line rule.")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Line rule added", "chain_id", chainID, "rule_id", r.ID, "field", r.Field, "match_mode", r.MatchMode)
	return r, nil
}

func ruleInvalid(err error) error {
	var cfgErr *rule.ConfigError
	if errors.As(err, &cfgErr) {
		return apperrors.BadRequest(apperrors.CodeRuleInvalid, "Approval rule is invalid.").
			WithFieldErrors([]apperrors.FieldError{{Field: cfgErr.Field, Message: cfgErr.Message}})
	}
	return apperrors.Internal(err, "Failed to validate rule.")
}

// DeleteChain soft-deletes and deactivates a chain. Approvals already
// generated from it keep their snapshot.
func (s *chainServiceImpl) DeleteChain(ctx context.Context, id int64, caller *entity.User) error {
	if err := requireStaff(caller, "manage approval chains"); err != nil {
		return err
	}

	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.GetChain(ctx, id); err != nil {
			return err
		}
		if err := s.chainRepo.SoftDelete(ctx, id); err != nil {
			return apperrors.Internal(err, "Failed to delete approval chain.")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("Approval chain deleted", "chain_id", id, "actor_id", caller.ID)
	return nil
}

// CreateGroup stores a group with its initial members
func (s *chainServiceImpl) CreateGroup(ctx context.Context, input CreateGroupInput, caller *entity.User) (*entity.ApprovalGroup, error) {
	if err := requireStaff(caller, "manage approval groups"); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.BadRequest(apperrors.CodeValidationFailed, "Approval group is invalid.").
			WithFieldErrors([]apperrors.FieldError{{Field: "name", Message: "This field is required."}})
	}

	group := &entity.ApprovalGroup{Name: name, Description: input.Description}
	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		for _, id := range input.MemberIDs {
			user, err := s.userRepo.GetByID(ctx, id)
			if err != nil {
				return apperrors.Internal(err, "Failed to load user.")
			}
			if user == nil {
				return apperrors.NotFound(apperrors.CodeUserNotFound, fmt.Sprintf("User %d not found.", id))
			}
			group.Members = append(group.Members, user)
		}
		if err := s.groupRepo.Create(ctx, group); err != nil {
			if errors.Is(err, port.ErrDuplicate) {
				return apperrors.Conflict(apperrors.CodeValidationFailed, "An approval group with this name already exists.")
			}
			return apperrors.Internal(err, "Failed to save approval group.")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Approval group created", "group_id", group.ID, "name", group.Name, "members", len(group.Members))
	return group, nil
}
