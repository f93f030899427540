package connpool

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Conn is the subset of *pgx.Conn the pool and its callers rely on.
type Conn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close(ctx context.Context) error
}

// ConnectFunc opens a new connection.
type ConnectFunc func(ctx context.Context) (Conn, error)

// Observer receives validation outcomes from the pool.
type Observer interface {
	// ConnectionValidated is called after a connection passed validation.
	ConnectionValidated()

	// ValidationFailed is called when a borrow could not produce any
	// connection that passes validation.
	ValidationFailed()
}

type nopObserver struct{}

func (nopObserver) ConnectionValidated() {}
func (nopObserver) ValidationFailed()    {}

// PgxConnector returns a ConnectFunc that dials endpoint with pgx, overriding
// the user and password when credentials are given.
func PgxConnector(endpoint string, creds Credentials) (ConnectFunc, error) {
	cfg, err := pgx.ParseConfig(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to parse endpoint: %w", err)
	}
	if creds.Principal != "" {
		cfg.User = creds.Principal
	}
	if creds.Secret != "" {
		cfg.Password = creds.Secret
	}

	return func(ctx context.Context) (Conn, error) {
		return pgx.ConnectConfig(ctx, cfg.Copy())
	}, nil
}

// isReusable reports whether a returned connection can go back to the idle set.
func isReusable(conn Conn) bool {
	switch c := conn.(type) {
	case *pgx.Conn:
		if c.IsClosed() {
			return false
		}
		pc := c.PgConn()
		return !pc.IsBusy() && pc.TxStatus() == 'I'
	case interface{ IsClosed() bool }:
		return !c.IsClosed()
	}
	return true
}
