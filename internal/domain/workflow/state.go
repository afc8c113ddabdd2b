package workflow

// State is a status in either the requisition or the approval lifecycle.
// The two vocabularies share the "approved" and "rejected" values.
type State string

const (
	StateDraft           State = "draft"
	StatePendingApproval State = "pending_approval"
	StateApproved        State = "approved"
	StateRejected        State = "rejected"

	StatePending   State = "pending"
	StateSkipped   State = "skipped"
	StateCancelled State = "cancelled"
)

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state belongs to either lifecycle. It must not
// depend on package variables: the lifecycles call it during package init.
func (s State) IsValid() bool {
	switch s {
	case StateDraft, StatePendingApproval, StateApproved, StateRejected,
		StatePending, StateSkipped, StateCancelled:
		return true
	}
	return false
}
