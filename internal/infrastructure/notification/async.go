package notification

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/garyjia/requisition-approval/internal/application/port"
	"github.com/garyjia/requisition-approval/internal/infrastructure/worker"
)

// ErrNotRunning is returned by Send before Start or after Stop
var ErrNotRunning = errors.New("notification delivery is not running")

// AsyncSink queues deliveries on a worker pool so that request handling
// never waits on the delivery channel. Failures are logged.
type AsyncSink struct {
	next   port.NotificationSink
	cfg    worker.PoolConfig
	logger *zap.Logger

	mu       sync.RWMutex
	pool     *worker.Pool
	ctx      context.Context
	inflight sync.WaitGroup
}

// NewAsyncSink wraps next
func NewAsyncSink(next port.NotificationSink, cfg worker.PoolConfig, logger *zap.Logger) *AsyncSink {
	return &AsyncSink{next: next, cfg: cfg, logger: logger}
}

func (s *AsyncSink) Name() string { return "notification-delivery" }

// Start creates the pool. Deliveries run with ctx, not the caller's context,
// so they outlive the request that produced them.
func (s *AsyncSink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool != nil {
		return errors.New("notification delivery already started")
	}
	pool, err := worker.NewPool(s.Name(), s.cfg, s.logger)
	if err != nil {
		return err
	}
	s.pool = pool
	s.ctx = context.WithoutCancel(ctx)
	return nil
}

// Stop waits for queued deliveries and releases the pool
func (s *AsyncSink) Stop() error {
	s.mu.Lock()
	pool := s.pool
	s.pool = nil
	s.mu.Unlock()
	if pool == nil {
		return nil
	}
	s.inflight.Wait()
	return pool.Release()
}

func (s *AsyncSink) Send(ctx context.Context, n port.Notification) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pool == nil {
		return ErrNotRunning
	}

	s.inflight.Add(1)
	err := s.pool.Submit(s.ctx, func(ctx context.Context) {
		defer s.inflight.Done()
		if err := s.next.Send(ctx, n); err != nil {
			recipient := int64(0)
			if n.Recipient != nil {
				recipient = n.Recipient.ID
			}
			s.logger.Error("Notification delivery failed",
				zap.String("template", n.Template),
				zap.Int64("recipient_id", recipient),
				zap.Error(err))
		}
	})
	if err != nil {
		s.inflight.Done()
		return err
	}
	return nil
}

var (
	_ port.NotificationSink = (*AsyncSink)(nil)
	_ worker.Worker         = (*AsyncSink)(nil)
)
