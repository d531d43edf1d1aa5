package internal

import (
	"context"
	"database/sql"
	"os"
	"strconv"
)

type ctxKey string

const dbConnKey ctxKey = "dbconn"

func rlsEnabled() bool {
	return os.Getenv("RLS_ENABLED") == "true"
}

// withDBConn pins a connection for the request and scopes it to orgID so
// the row-level policies apply. It returns a nil conn when RLS is off.
func withDBConn(ctx context.Context, db *sql.DB, orgID int64) (*sql.Conn, context.Context, error) {
	if !rlsEnabled() {
		return nil, ctx, nil
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, ctx, err
	}
	_, err = conn.ExecContext(ctx, "SELECT set_config('app.current_org_id', $1, false)", strconv.FormatInt(orgID, 10))
	if err != nil {
		conn.Close()
		return nil, ctx, err
	}
	return conn, context.WithValue(ctx, dbConnKey, conn), nil
}

// querier is the common surface of *sql.DB and *sql.Conn.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// dbFrom returns the request's pinned connection when RLS is on, else the pool.
func dbFrom(ctx context.Context, db *sql.DB) querier {
	if !rlsEnabled() {
		return db
	}
	if c, ok := ctx.Value(dbConnKey).(*sql.Conn); ok {
		return c
	}
	return db
}

// db is shorthand for dbFrom on the server's pool.
func (s *Server) db(ctx context.Context) querier {
	return dbFrom(ctx, s.DB)
}

// inTx runs fn in a transaction on the request's connection, committing
// when fn returns nil.
func (s *Server) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db(ctx).BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
