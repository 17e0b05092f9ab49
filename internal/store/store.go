package store

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"net/url"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/cogd/internal/logging"
	"github.com/roach88/cogd/internal/querysql"
)

// Options configures Open.
type Options struct {
	// BusyTimeout is how long SQLite waits on a lock before reporting busy.
	BusyTimeout time.Duration
	// MaxOpenConns bounds the pool. SQLite has one writer; the default of 1
	// serializes every statement through a single connection.
	MaxOpenConns int
	// Migrations, when set, are applied from MigrationsRoot after connecting.
	Migrations     fs.FS
	MigrationsRoot string
	Logger         *logging.Logger
}

// Client is the record store handle. It is safe for concurrent use.
type Client struct {
	db       *sql.DB
	path     string
	compiler *querysql.SQLCompiler
	logger   *logging.Logger

	mu     sync.RWMutex
	closed bool

	// beginHook runs before each BEGIN attempt; tests use it to inject
	// contention.
	beginHook func(attempt int) error
}

// Open creates or opens a SQLite database at path, verifies the connection
// and applies migrations.
func Open(ctx context.Context, path string, opts Options) (*Client, error) {
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = 5 * time.Second
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 1
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}

	db, err := sql.Open("sqlite3", dsn(path, opts.BusyTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", classify(err))
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", classify(err))
	}

	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxOpenConns)

	if opts.Migrations != nil {
		if err := ApplyMigrations(ctx, db, opts.Migrations, opts.MigrationsRoot); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply migrations: %w", err)
		}
	}

	return &Client{
		db:       db,
		path:     path,
		compiler: querysql.NewSQLCompiler(),
		logger:   opts.Logger.Named("store"),
	}, nil
}

// dsn builds the connection string. Pragmas go in the DSN so every pooled
// connection gets them, not just the first.
func dsn(path string, busy time.Duration) string {
	q := url.Values{}
	q.Set("_journal_mode", "WAL")
	q.Set("_synchronous", "NORMAL")
	q.Set("_busy_timeout", fmt.Sprintf("%d", busy.Milliseconds()))
	q.Set("_foreign_keys", "on")
	q.Set("_txlock", "immediate")
	return path + "?" + q.Encode()
}

// Close closes the database. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.db.Close()
}

// Closed reports whether Close has been called.
func (c *Client) Closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Path returns the database file path.
func (c *Client) Path() string {
	return c.path
}

// DB returns the underlying sql.DB. Statements issued on it bypass any
// transaction carried in a context.
func (c *Client) DB() *sql.DB {
	return c.db
}

// Ping verifies the database is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c.Closed() {
		return fmt.Errorf("ping: %w", ErrUnavailable)
	}
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", classify(err))
	}
	return nil
}

// Pragma reads a single pragma value.
func (c *Client) Pragma(ctx context.Context, name string) (string, error) {
	if !identOK(name) {
		return "", fmt.Errorf("invalid pragma name %q", name)
	}
	var value string
	if err := c.conn(ctx).QueryRowContext(ctx, "PRAGMA "+name).Scan(&value); err != nil {
		return "", fmt.Errorf("failed to query %s: %w", name, classify(err))
	}
	return value, nil
}

func identOK(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}
