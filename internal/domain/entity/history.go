package entity

import "time"

// RequisitionHistory is one audit-trail entry, written for every committed
// domain event touching a requisition.
type RequisitionHistory struct {
	ID            int64     `json:"id"`
	RequisitionID int64     `json:"requisition_id"`
	EventID       string    `json:"event_id"`
	EventType     string    `json:"event_type"`
	ActorID       *int64    `json:"actor_id,omitempty"`
	Data          string    `json:"data"`
	CorrelationID string    `json:"correlation_id"`
	Timestamp     time.Time `json:"timestamp"`
}
