package worker

import (
	"context"
	"errors"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// ErrPoolClosed is returned when submitting to a released pool
var ErrPoolClosed = errors.New("worker pool is closed")

// Task is a unit of work run on a pool goroutine
type Task func(ctx context.Context)

// PoolConfig sizes a Pool
type PoolConfig struct {
	Size            int
	ExpiryDuration  time.Duration
	ShutdownTimeout time.Duration
}

// DefaultPoolConfig returns the pool settings used when none are configured
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Size:            16,
		ExpiryDuration:  10 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Pool is a bounded goroutine pool whose tasks see a context
type Pool struct {
	name    string
	pool    *ants.Pool
	timeout time.Duration
	logger  *zap.Logger
}

// NewPool creates a blocking pool. Task panics are logged, not propagated.
func NewPool(name string, cfg PoolConfig, logger *zap.Logger) (*Pool, error) {
	def := DefaultPoolConfig()
	if cfg.Size <= 0 {
		cfg.Size = def.Size
	}
	if cfg.ExpiryDuration <= 0 {
		cfg.ExpiryDuration = def.ExpiryDuration
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}

	p, err := ants.NewPool(cfg.Size,
		ants.WithPanicHandler(func(v interface{}) {
			logger.Error("Worker panic recovered", zap.String("pool", name), zap.Any("panic", v), zap.Stack("stack"))
		}),
		ants.WithNonblocking(false),
		ants.WithExpiryDuration(cfg.ExpiryDuration),
	)
	if err != nil {
		return nil, err
	}
	return &Pool{name: name, pool: p, timeout: cfg.ShutdownTimeout, logger: logger}, nil
}

// Submit queues task. A task whose context is cancelled while it waits is
// dropped.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := p.pool.Submit(func() {
		if ctx.Err() != nil {
			p.logger.Debug("Task skipped: context cancelled", zap.String("pool", p.name))
			return
		}
		task(ctx)
	})
	if errors.Is(err, ants.ErrPoolClosed) {
		return ErrPoolClosed
	}
	return err
}

// Running returns the number of busy goroutines
func (p *Pool) Running() int { return p.pool.Running() }

// Release waits for queued tasks up to the shutdown timeout
func (p *Pool) Release() error {
	return p.pool.ReleaseTimeout(p.timeout)
}
