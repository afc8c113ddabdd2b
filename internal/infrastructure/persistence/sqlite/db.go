package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/requisition-approval/internal/application/port"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey struct{}

var txKey = contextKey{}

// txState is the transaction carried in a context together with the
// callbacks waiting for it to commit.
type txState struct {
	tx      *sql.Tx
	baseCtx context.Context
	hooks   []func(ctx context.Context)
}

// DB wraps sql.DB and implements TransactionManager
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database wrapper
func NewDB(sqlDB *sql.DB, logger *zap.Logger) *DB {
	return &DB{
		DB:     sqlDB,
		logger: logger,
	}
}

// WithTransaction executes fn within a database transaction. A transaction
// already present in ctx is reused, so nested calls join the outer unit.
func (db *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if extractState(ctx) != nil {
		return fn(ctx)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		db.logger.Error("Failed to begin transaction", zap.Error(err))
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	state := &txState{tx: tx, baseCtx: ctx}
	txCtx := context.WithValue(ctx, txKey, state)

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			db.logger.Error("Transaction panicked, rolled back", zap.Any("panic", p))
			panic(p)
		}
	}()

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Error("Failed to rollback transaction", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		db.logger.Error("Failed to commit transaction", zap.Error(err))
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	db.runHooks(state)
	return nil
}

// AfterCommit implements port.TransactionManager
func (db *DB) AfterCommit(ctx context.Context, fn func(ctx context.Context)) {
	if state := extractState(ctx); state != nil {
		state.hooks = append(state.hooks, fn)
		return
	}
	db.safeRun(ctx, fn)
}

// runHooks runs post-commit callbacks in registration order. They receive
// the context the transaction was started from, so any storage work they do
// opens its own transaction.
func (db *DB) runHooks(state *txState) {
	for _, hook := range state.hooks {
		db.safeRun(state.baseCtx, hook)
	}
}

func (db *DB) safeRun(ctx context.Context, fn func(ctx context.Context)) {
	defer func() {
		if p := recover(); p != nil {
			db.logger.Error("Post-commit callback panicked", zap.Any("panic", p))
		}
	}()
	fn(ctx)
}

func extractState(ctx context.Context) *txState {
	if state, ok := ctx.Value(txKey).(*txState); ok {
		return state
	}
	return nil
}

// Executor returns the transaction carried by ctx, or db when there is none.
// Repositories route every statement through it.
func Executor(ctx context.Context, db *sql.DB) QueryExecutor {
	if state := extractState(ctx); state != nil {
		return state.tx
	}
	return db
}

// InTransaction reports whether ctx carries a transaction
func InTransaction(ctx context.Context) bool {
	return extractState(ctx) != nil
}

// QueryExecutor covers both *sql.DB and *sql.Tx
type QueryExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Verify interface compliance
var _ port.TransactionManager = (*DB)(nil)
