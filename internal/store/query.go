package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/cogd/internal/ir"
	"github.com/roach88/cogd/internal/queryir"
)

// Query compiles and runs a row-returning query: Select, or any write with
// Returning columns. Rows come back in the order the query defines. The
// result is never nil.
func (c *Client) Query(ctx context.Context, q queryir.Query) ([]ir.IRObject, error) {
	sqlText, params, err := c.compiler.Compile(q)
	if err != nil {
		return nil, fmt.Errorf("compile query: %w", err)
	}
	return c.QuerySQL(ctx, sqlText, params...)
}

// QueryOne runs q and returns its first row. ok is false when no row matched.
func (c *Client) QueryOne(ctx context.Context, q queryir.Query) (row ir.IRObject, ok bool, err error) {
	rows, err := c.Query(ctx, q)
	if err != nil {
		return nil, false, err
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	return rows[0], true, nil
}

// Exec compiles and runs a write and returns the number of affected rows.
func (c *Client) Exec(ctx context.Context, q queryir.Query) (int64, error) {
	sqlText, params, err := c.compiler.Compile(q)
	if err != nil {
		return 0, fmt.Errorf("compile query: %w", err)
	}
	res, err := c.ExecSQL(ctx, sqlText, params...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", classify(err))
	}
	return n, nil
}

// Count runs a Count query.
func (c *Client) Count(ctx context.Context, q queryir.Count) (int64, error) {
	sqlText, params, err := c.compiler.Compile(q)
	if err != nil {
		return 0, fmt.Errorf("compile query: %w", err)
	}
	if c.Closed() {
		return 0, fmt.Errorf("count: %w", ErrUnavailable)
	}
	var n int64
	if err := c.conn(ctx).QueryRowContext(ctx, sqlText, params...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", classify(err))
	}
	return n, nil
}

// ExecSQL runs a raw statement on the transaction in ctx or the pool.
func (c *Client) ExecSQL(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if c.Closed() {
		return nil, fmt.Errorf("exec: %w", ErrUnavailable)
	}
	res, err := c.conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("exec: %w", classify(err))
	}
	return res, nil
}

// QuerySQL runs a raw query and scans every row into an IRObject keyed by
// column name.
func (c *Client) QuerySQL(ctx context.Context, query string, args ...any) ([]ir.IRObject, error) {
	if c.Closed() {
		return nil, fmt.Errorf("query: %w", ErrUnavailable)
	}
	rows, err := c.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", classify(err))
	}
	defer rows.Close()

	out, err := scanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("query: %w", classify(err))
	}
	return out, nil
}

func scanRows(rows *sql.Rows) ([]ir.IRObject, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := []ir.IRObject{}
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		obj := make(ir.IRObject, len(cols))
		for i, col := range cols {
			v, err := columnValue(raw[i])
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", col, err)
			}
			obj[col] = v
		}
		out = append(out, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// columnValue converts a scanned driver value. The sqlite3 driver returns
// time.Time for DATETIME and TIMESTAMP columns; those become RFC 3339 text.
func columnValue(v any) (ir.IRValue, error) {
	if t, ok := v.(time.Time); ok {
		return ir.IRString(t.UTC().Format(time.RFC3339Nano)), nil
	}
	return ir.FromGo(v)
}
