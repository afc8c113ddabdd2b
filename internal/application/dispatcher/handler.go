package dispatcher

import (
	"context"

	"github.com/garyjia/requisition-approval/internal/domain/event"
)

// Handler reacts to a committed domain event
type Handler func(ctx context.Context, evt *event.Event) error

// Registration names a subscribed handler. An empty EventType means the
// handler receives every event.
type Registration struct {
	Name      string
	EventType event.Type
	Handler   Handler
}
