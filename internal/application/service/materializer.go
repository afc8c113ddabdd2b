package service

import (
	"fmt"

	"github.com/garyjia/requisition-approval/internal/domain/entity"
	apperrors "github.com/garyjia/requisition-approval/internal/pkg/errors"
)

// Materialize turns matched chains into unsaved pending approvals for req.
// Any chain that cannot produce an approver fails the whole submission.
func Materialize(req *entity.Requisition, matches []MatchedChain) ([]*entity.Approval, error) {
	if len(matches) == 0 {
		return nil, matchFailure("no approval chains matched")
	}

	var approvals []*entity.Approval
	for _, m := range matches {
		chain := m.Chain
		metadata := BuildTriggerMetadata(chain, m.HeaderRules, m.LineRules)

		var approvers []*entity.User
		switch chain.ApproverMode {
		case entity.ApproverModeIndividual:
			if chain.Approver == nil || !chain.Approver.IsActive {
				return nil, matchFailure(fmt.Sprintf("the approval chain %s contains an inactive approver", chain.Name))
			}
			approvers = []*entity.User{chain.Approver}
		case entity.ApproverModeGroup:
			if chain.ApproverGroup != nil {
				approvers = chain.ApproverGroup.ActiveMembers()
			}
			if len(approvers) == 0 {
				name := chain.Name
				if chain.ApproverGroup != nil {
					name = chain.ApproverGroup.Name
				}
				return nil, matchFailure(fmt.Sprintf("the approval group %s contains no active approvers", name))
			}
		default:
			return nil, apperrors.Internal(
				fmt.Errorf("chain %d has approver mode %q", chain.ID, chain.ApproverMode),
				"Approval chain is misconfigured.")
		}

		for _, approver := range approvers {
			approvals = append(approvals, &entity.Approval{
				RequisitionID:   req.ID,
				ApproverID:      approver.ID,
				Approver:        approver,
				SequenceNumber:  chain.SequenceNumber,
				Status:          entity.ApprovalPending,
				TriggerMetadata: metadata,
				SystemGenerated: true,
			})
		}
	}
	return approvals, nil
}

func matchFailure(reason string) error {
	return apperrors.BadRequest(apperrors.CodeMatchFailed,
		"This requisition cannot be submitted because "+reason+".")
}

// BuildTriggerMetadata snapshots the chain configuration that produced an
// approval. Empty rule lists are stored as null.
func BuildTriggerMetadata(chain *entity.ApprovalChain, headerRules []*entity.HeaderRule, lineRules []*entity.LineRule) *entity.TriggerMetadata {
	md := &entity.TriggerMetadata{
		Version:         entity.TriggerMetadataVersion,
		ChainID:         chain.ID,
		Name:            chain.Name,
		ApproverMode:    chain.ApproverMode,
		SequenceNumber:  chain.SequenceNumber,
		MinAmount:       chain.MinAmount.StringFixed(2),
		HeaderRuleLogic: chain.HeaderRuleLogic,
		LineRuleLogic:   chain.LineRuleLogic,
		CrossRuleLogic:  chain.CrossRuleLogic,
	}

	if chain.Approver != nil {
		md.Approver = &entity.ApproverSnapshot{ID: chain.Approver.ID, Username: chain.Approver.Username}
	}
	if chain.ApproverGroup != nil {
		md.ApproverGroup = &entity.GroupSnapshot{
			ID:        chain.ApproverGroup.ID,
			Name:      chain.ApproverGroup.Name,
			GroupMode: chain.GroupMode,
		}
	}
	if chain.MaxAmount != nil {
		ceiling := chain.MaxAmount.StringFixed(2)
		md.MaxAmount = &ceiling
	}
	if chain.ValidFrom != nil {
		from := chain.ValidFrom.Format(entity.DateLayout)
		md.ValidFrom = &from
	}
	if chain.ValidTo != nil {
		to := chain.ValidTo.Format(entity.DateLayout)
		md.ValidTo = &to
	}

	for _, r := range headerRules {
		md.HeaderRules = append(md.HeaderRules, entity.HeaderRuleSnapshot{
			Field:  r.Field,
			Lookup: r.Lookup,
			Value:  append([]string{}, r.Value...),
		})
	}
	for _, r := range lineRules {
		md.LineRules = append(md.LineRules, entity.LineRuleSnapshot{
			MatchMode: r.MatchMode,
			Field:     r.Field,
			Lookup:    r.Lookup,
			Value:     append([]string{}, r.Value...),
		})
	}
	return md
}
