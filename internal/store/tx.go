package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/cogd/internal/metrics"
)

// Querier is the statement surface shared by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// WithTx returns a context carrying tx. Statements issued through a Client
// with this context run on tx.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFromContext returns the transaction carried by ctx, if any.
func TxFromContext(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sql.Tx)
	return tx, ok && tx != nil
}

// conn returns the transaction in ctx or the pool.
func (c *Client) conn(ctx context.Context) Querier {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return c.db
}

// beginRetries is the number of extra BEGIN attempts after a busy failure.
const beginRetries = 1

// begin starts a transaction, retrying once if the database is busy.
func (c *Client) begin(ctx context.Context) (*sql.Tx, error) {
	if c.Closed() {
		return nil, fmt.Errorf("begin transaction: %w", ErrUnavailable)
	}

	var lastErr error
	for attempt := 0; attempt <= beginRetries; attempt++ {
		if attempt > 0 {
			metrics.TxBeginRetries.Inc()
			c.logger.Warn(ctx, "retrying transaction begin", zap.Int("attempt", attempt+1), zap.Error(lastErr))
		}

		var err error
		if c.beginHook != nil {
			err = c.beginHook(attempt)
		}
		var tx *sql.Tx
		if err == nil {
			tx, err = c.db.BeginTx(ctx, nil)
		}
		if err == nil {
			return tx, nil
		}

		lastErr = classify(err)
		if !IsBusy(lastErr) {
			break
		}
	}
	return nil, fmt.Errorf("begin transaction: %w", lastErr)
}

// RunInTx runs fn inside a transaction carried by the context passed to it.
// If ctx already carries a transaction, fn joins it and the outer scope
// decides commit or rollback.
//
// fn returning an error rolls back and returns that error. A panic in fn
// rolls back and is re-raised.
func (c *Client) RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := TxFromContext(ctx); ok {
		return fn(ctx)
	}

	tx, err := c.begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(WithTx(ctx, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			c.logger.Error(ctx, "rollback failed", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", classify(err))
	}
	return nil
}
