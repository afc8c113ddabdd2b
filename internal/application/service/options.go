package service

import (
	"context"
	"time"

	"github.com/garyjia/requisition-approval/internal/application/port"
	"github.com/garyjia/requisition-approval/internal/domain/event"
)

// Option configures a service
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source used for lifecycle timestamps
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func newOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// publishAfterCommit queues evt for dispatch once the transaction in ctx
// commits. Dispatch failures are logged and never surface to the caller.
func publishAfterCommit(ctx context.Context, tx port.TransactionManager, pub port.EventPublisher, logger Logger, evt *event.Event) {
	if pub == nil {
		return
	}
	tx.AfterCommit(ctx, func(ctx context.Context) {
		if err := pub.Dispatch(ctx, evt); err != nil {
			logger.Error("Failed to dispatch event",
				"event_type", evt.Type,
				"event_id", evt.ID,
				"requisition_id", evt.RequisitionID,
				"error", err,
			)
		}
	})
}

func int64Ptr(v int64) *int64 {
	return &v
}

func timePtr(t time.Time) *time.Time {
	return &t
}
