package entity

import (
	"encoding/json"
	"fmt"
	"time"
)

// ApprovalStatus is the status of a single approval record
type ApprovalStatus string

const (
	ApprovalPending   ApprovalStatus = "pending"
	ApprovalApproved  ApprovalStatus = "approved"
	ApprovalRejected  ApprovalStatus = "rejected"
	ApprovalSkipped   ApprovalStatus = "skipped"
	ApprovalCancelled ApprovalStatus = "cancelled"
)

// Approval is one approver's decision slot for a submitted requisition
type Approval struct {
	ID              int64            `json:"id"`
	RequisitionID   int64            `json:"requisition_id"`
	ApproverID      int64            `json:"approver_id"`
	Approver        *User            `json:"approver,omitempty"`
	SequenceNumber  int              `json:"sequence_number"`
	Status          ApprovalStatus   `json:"status"`
	TriggerMetadata *TriggerMetadata `json:"trigger_metadata,omitempty"`
	SystemGenerated bool             `json:"system_generated"`
	Comment         string           `json:"comment,omitempty"`
	NotifiedAt      *time.Time       `json:"notified_at,omitempty"`
	ApprovedAt      *time.Time       `json:"approved_at,omitempty"`
	RejectedAt      *time.Time       `json:"rejected_at,omitempty"`
	SkippedAt       *time.Time       `json:"skipped_at,omitempty"`
	Deleted         bool             `json:"-"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	UpdatedByID     *int64           `json:"updated_by_id,omitempty"`
}

// IsAnyGroupMember reports whether this approval was generated from a group
// chain in "any" mode, where one decision settles the whole sequence.
func (a *Approval) IsAnyGroupMember() bool {
	md := a.TriggerMetadata
	return md != nil &&
		md.ApproverMode == ApproverModeGroup &&
		md.ApproverGroup != nil &&
		md.ApproverGroup.GroupMode == GroupModeAny
}

// TriggerMetadataVersion is the current snapshot schema version
const TriggerMetadataVersion = 1

// TriggerMetadata is the snapshot of the chain that produced an approval.
// It is frozen at submit time and never re-read from the live chain.
type TriggerMetadata struct {
	Version         int                  `json:"version"`
	ChainID         int64                `json:"id"`
	Name            string               `json:"name"`
	ApproverMode    ApproverMode         `json:"approver_mode"`
	Approver        *ApproverSnapshot    `json:"approver"`
	ApproverGroup   *GroupSnapshot       `json:"approver_group"`
	SequenceNumber  int                  `json:"sequence_number"`
	MinAmount       string               `json:"min_amount"`
	MaxAmount       *string              `json:"max_amount"`
	HeaderRuleLogic Operator             `json:"header_rule_logic"`
	LineRuleLogic   Operator             `json:"line_rule_logic"`
	CrossRuleLogic  Operator             `json:"cross_rule_logic"`
	ValidFrom       *string              `json:"valid_from"`
	ValidTo         *string              `json:"valid_to"`
	HeaderRules     []HeaderRuleSnapshot `json:"header_rules"`
	LineRules       []LineRuleSnapshot   `json:"line_rules"`
}

// ApproverSnapshot identifies the individual approver of a chain
type ApproverSnapshot struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// GroupSnapshot identifies the approver group of a chain
type GroupSnapshot struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	GroupMode GroupMode `json:"group_mode"`
}

// HeaderRuleSnapshot is a frozen header rule
type HeaderRuleSnapshot struct {
	Field  string   `json:"field"`
	Lookup string   `json:"lookup"`
	Value  []string `json:"value"`
}

// LineRuleSnapshot is a frozen line rule
type LineRuleSnapshot struct {
	MatchMode MatchMode `json:"match_mode"`
	Field     string    `json:"field"`
	Lookup    string    `json:"lookup"`
	Value     []string  `json:"value"`
}

// Marshal encodes the snapshot for storage
func (m *TriggerMetadata) Marshal() (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to marshal trigger metadata: %w", err)
	}
	return string(data), nil
}

// UnmarshalTriggerMetadata decodes a stored snapshot. Rows written before
// versioning carry no version field and are read as version 1.
func UnmarshalTriggerMetadata(raw string) (*TriggerMetadata, error) {
	if raw == "" {
		return nil, nil
	}
	var m TriggerMetadata
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger metadata: %w", err)
	}
	if m.Version == 0 {
		m.Version = TriggerMetadataVersion
	}
	if m.Version > TriggerMetadataVersion {
		return nil, fmt.Errorf("unsupported trigger metadata version %d", m.Version)
	}
	return &m, nil
}
