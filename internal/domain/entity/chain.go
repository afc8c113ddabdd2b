package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// ApproverMode selects how a chain names its approvers
type ApproverMode string

const (
	ApproverModeIndividual ApproverMode = "individual"
	ApproverModeGroup      ApproverMode = "group"
)

// GroupMode controls whether one or all group members must act
type GroupMode string

const (
	GroupModeAny GroupMode = "any"
	GroupModeAll GroupMode = "all"
)

// Operator combines rule results
type Operator string

const (
	OperatorAnd Operator = "and"
	OperatorOr  Operator = "or"
)

// Combine folds results with the operator. An empty slice is true.
func (o Operator) Combine(results []bool) bool {
	if len(results) == 0 {
		return true
	}
	if o == OperatorOr {
		for _, r := range results {
			if r {
				return true
			}
		}
		return false
	}
	for _, r := range results {
		if !r {
			return false
		}
	}
	return true
}

// MatchMode controls how a line rule is applied across lines
type MatchMode string

const (
	MatchModeAll MatchMode = "all"
	MatchModeAny MatchMode = "any"
)

// Sequence bounds for a chain
const (
	MinSequenceNumber = 1
	MaxSequenceNumber = 1000
)

// ApprovalGroup is a named set of approvers
type ApprovalGroup struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Members     []*User   `json:"members,omitempty"`
	Deleted     bool      `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ActiveMembers returns members whose accounts are active
func (g *ApprovalGroup) ActiveMembers() []*User {
	active := make([]*User, 0, len(g.Members))
	for _, m := range g.Members {
		if m.IsActive {
			active = append(active, m)
		}
	}
	return active
}

// ApprovalChain is one rule-gated approval step
type ApprovalChain struct {
	ID              int64            `json:"id"`
	Name            string           `json:"name"`
	ApproverMode    ApproverMode     `json:"approver_mode"`
	ApproverID      *int64           `json:"approver_id,omitempty"`
	Approver        *User            `json:"approver,omitempty"`
	ApproverGroupID *int64           `json:"approver_group_id,omitempty"`
	ApproverGroup   *ApprovalGroup   `json:"approver_group,omitempty"`
	GroupMode       GroupMode        `json:"group_mode"`
	SequenceNumber  int              `json:"sequence_number"`
	MinAmount       decimal.Decimal  `json:"min_amount"`
	MaxAmount       *decimal.Decimal `json:"max_amount,omitempty"`
	Active          bool             `json:"active"`
	ValidFrom       *time.Time       `json:"valid_from,omitempty"`
	ValidTo         *time.Time       `json:"valid_to,omitempty"`
	HeaderRuleLogic Operator         `json:"header_rule_logic"`
	LineRuleLogic   Operator         `json:"line_rule_logic"`
	CrossRuleLogic  Operator         `json:"cross_rule_logic"`
	HeaderRules     []*HeaderRule    `json:"header_rules,omitempty"`
	LineRules       []*LineRule      `json:"line_rules,omitempty"`
	Deleted         bool             `json:"-"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// HeaderRule tests one requisition header field
type HeaderRule struct {
	ID        int64     `json:"id"`
	ChainID   int64     `json:"approval_chain_id"`
	Field     string    `json:"field"`
	Lookup    string    `json:"lookup"`
	Value     []string  `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LineRule tests one line field across every line of a requisition
type LineRule struct {
	ID        int64     `json:"id"`
	ChainID   int64     `json:"approval_chain_id"`
	Field     string    `json:"field"`
	Lookup    string    `json:"lookup"`
	Value     []string  `json:"value"`
	MatchMode MatchMode `json:"match_mode"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
