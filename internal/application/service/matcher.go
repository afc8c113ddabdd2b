package service

import (
	"context"
	"fmt"

	"github.com/garyjia/requisition-approval/internal/application/port"
	"github.com/garyjia/requisition-approval/internal/domain/entity"
	"github.com/garyjia/requisition-approval/internal/domain/rule"
)

// MatchedChain is a chain whose rules accepted a requisition, together with
// the rules that were evaluated.
type MatchedChain struct {
	Chain       *entity.ApprovalChain
	HeaderRules []*entity.HeaderRule
	LineRules   []*entity.LineRule
}

// ChainMatcher selects the approval chains that apply to a requisition
type ChainMatcher interface {
	FindMatchingChains(ctx context.Context, req *entity.Requisition) ([]MatchedChain, error)
}

type chainMatcherImpl struct {
	chainRepo port.ChainRepository
	logger    Logger
	options
}

// NewChainMatcher creates a new ChainMatcher
func NewChainMatcher(chainRepo port.ChainRepository, logger Logger, opts ...Option) ChainMatcher {
	return &chainMatcherImpl{
		chainRepo: chainRepo,
		logger:    logger,
		options:   newOptions(opts),
	}
}

// FindMatchingChains evaluates every candidate chain in sequence order.
// Candidates are narrowed by amount band and validity window in storage;
// header and line rules are evaluated here. An evaluator error aborts the
// whole match.
func (m *chainMatcherImpl) FindMatchingChains(ctx context.Context, req *entity.Requisition) ([]MatchedChain, error) {
	candidates, err := m.chainRepo.FindCandidates(ctx, req.TotalAmount.Shift(2).Round(0).IntPart(), m.now())
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate chains: %w", err)
	}

	var matches []MatchedChain
	for _, chain := range candidates {
		ok, err := matchChain(req, chain)
		if err != nil {
			m.logger.Error("Rule evaluation failed",
				"requisition_id", req.ID,
				"chain_id", chain.ID,
				"error", err,
			)
			return nil, fmt.Errorf("chain %q: %w", chain.Name, err)
		}
		if !ok {
			continue
		}
		matches = append(matches, MatchedChain{
			Chain:       chain,
			HeaderRules: chain.HeaderRules,
			LineRules:   chain.LineRules,
		})
	}

	m.logger.Info("Approval chains matched",
		"requisition_id", req.ID,
		"candidates", len(candidates),
		"matched", len(matches),
	)
	return matches, nil
}

func matchChain(req *entity.Requisition, chain *entity.ApprovalChain) (bool, error) {
	header, err := rule.HeaderCheck(req, chain.HeaderRules, chain.HeaderRuleLogic)
	if err != nil {
		return false, err
	}
	line, err := rule.LineCheck(req.Lines, chain.LineRules, chain.LineRuleLogic)
	if err != nil {
		return false, err
	}
	return chain.CrossRuleLogic.Combine([]bool{header, line}), nil
}
