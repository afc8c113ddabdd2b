package event

// Type identifies the type of domain event
type Type string

const (
	TypeRequisitionSubmitted Type = "requisition.submitted"
	TypeRequisitionWithdrawn Type = "requisition.withdrawn"
	TypeRequisitionApproved  Type = "requisition.approved"
	TypeRequisitionRejected  Type = "requisition.rejected"
	TypeApprovalRequested    Type = "approval.requested"
	TypeApprovalDecided      Type = "approval.decided"
	TypeApprovalsCancelled   Type = "approval.cancelled"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeRequisitionSubmitted,
		TypeRequisitionWithdrawn,
		TypeRequisitionApproved,
		TypeRequisitionRejected,
		TypeApprovalRequested,
		TypeApprovalDecided,
		TypeApprovalsCancelled:
		return true
	default:
		return false
	}
}

// AllTypes lists every defined event type
func AllTypes() []Type {
	return []Type{
		TypeRequisitionSubmitted,
		TypeRequisitionWithdrawn,
		TypeRequisitionApproved,
		TypeRequisitionRejected,
		TypeApprovalRequested,
		TypeApprovalDecided,
		TypeApprovalsCancelled,
	}
}
