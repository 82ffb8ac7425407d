// Package warehouse executes SQL against the Redshift/Postgres warehouse.
// It performs no retries; failures are returned as *Error with a transient
// or timeout classification for the caller to act on.
package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"github.com/maxkimambo/energy-etl/internal/logger"
)

// ErrNoRows is returned by QueryScalar when the query yields no row
var ErrNoRows = errors.New("query returned no rows")

// Executor runs statements that return no rows
type Executor interface {
	Exec(ctx context.Context, query string, args ...any) error
}

// Session is one pooled connection held for the duration of an operator call
type Session interface {
	Executor
	// QueryScalar returns the first column of the first row
	QueryScalar(ctx context.Context, query string, args ...any) (any, error)
	// InTx runs fn inside a transaction, committing on nil and rolling back otherwise
	InTx(ctx context.Context, fn func(tx Executor) error) error
	// Close returns the connection to the pool
	Close() error
}

// Client hands out sessions from a shared pool
type Client interface {
	Acquire(ctx context.Context) (Session, error)
	Ping(ctx context.Context) error
	Close() error
}

// PoolConfig tunes the shared connection pool
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultPoolConfig returns settings sized for the widest fan-out of a pipeline
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    8,
		MaxIdleConns:    4,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// SQLClient implements Client over database/sql
type SQLClient struct {
	db *sql.DB
}

// Open connects to the warehouse with the pgx driver
func Open(dsn string, cfg PoolConfig) (*SQLClient, error) {
	if dsn == "" {
		return nil, fmt.Errorf("warehouse DSN cannot be empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open warehouse connection: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	logger.Op.WithFields(map[string]interface{}{
		"max_open_conns": cfg.MaxOpenConns,
		"max_idle_conns": cfg.MaxIdleConns,
	}).Debug("Warehouse pool configured")

	return &SQLClient{db: db}, nil
}

// NewSQLClient wraps an existing handle
func NewSQLClient(db *sql.DB) *SQLClient {
	return &SQLClient{db: db}
}

// Acquire implements Client
func (c *SQLClient) Acquire(ctx context.Context) (Session, error) {
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return nil, classify("acquire", "", err)
	}
	return &sqlSession{conn: conn}, nil
}

// Ping implements Client
func (c *SQLClient) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return classify("ping", "", err)
	}
	return nil
}

// Close implements Client
func (c *SQLClient) Close() error {
	return c.db.Close()
}

// Stats exposes pool statistics
func (c *SQLClient) Stats() sql.DBStats {
	return c.db.Stats()
}

type sqlSession struct {
	conn *sql.Conn
}

func (s *sqlSession) Exec(ctx context.Context, query string, args ...any) error {
	if _, err := s.conn.ExecContext(ctx, query, args...); err != nil {
		return classify("exec", query, err)
	}
	return nil
}

func (s *sqlSession) QueryScalar(ctx context.Context, query string, args ...any) (any, error) {
	var v any
	if err := s.conn.QueryRowContext(ctx, query, args...).Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &Error{Op: "query", SQL: RedactSQL(query), Err: ErrNoRows}
		}
		return nil, classify("query", query, err)
	}
	return v, nil
}

func (s *sqlSession) InTx(ctx context.Context, fn func(tx Executor) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin", "", err)
	}
	if err := fn(&sqlTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			logger.Op.Warnf("Rollback failed: %v", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return classify("commit", "", err)
	}
	return nil
}

func (s *sqlSession) Close() error {
	return s.conn.Close()
}

type sqlTx struct {
	tx *sql.Tx
}

func (t *sqlTx) Exec(ctx context.Context, query string, args ...any) error {
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return classify("exec", query, err)
	}
	return nil
}
