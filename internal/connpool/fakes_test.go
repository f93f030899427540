package connpool_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/yuku/schemapool/internal/connpool"
)

var errConnReset = errors.New("read: connection reset by peer")

// fakeConn is an in-memory stand-in for *pgx.Conn.
type fakeConn struct {
	id             int
	failValidation atomic.Bool
	closed         atomic.Bool
	execs          atomic.Int32
}

func (c *fakeConn) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	c.execs.Add(1)
	if err := ctx.Err(); err != nil {
		return pgconn.CommandTag{}, err
	}
	if c.failValidation.Load() {
		return pgconn.CommandTag{}, errConnReset
	}
	return pgconn.NewCommandTag("SELECT 1"), nil
}

func (c *fakeConn) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (c *fakeConn) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}

func (c *fakeConn) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, errors.New("not implemented")
}

func (c *fakeConn) Close(ctx context.Context) error {
	c.closed.Store(true)
	return nil
}

func (c *fakeConn) IsClosed() bool {
	return c.closed.Load()
}

// fakeDialer hands out fakeConns and records every dial.
type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn

	// failAfter makes every dial after the first failAfter dials fail.
	// Negative means never.
	failAfter int
	// unhealthy makes newly dialed connections fail validation.
	unhealthy atomic.Bool
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{failAfter: -1}
}

func (d *fakeDialer) Connect(ctx context.Context) (connpool.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.failAfter >= 0 && len(d.conns) >= d.failAfter {
		return nil, errors.New("password authentication failed for user \"app\"")
	}
	c := &fakeConn{id: len(d.conns)}
	c.failValidation.Store(d.unhealthy.Load())
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialer) Conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[i]
}

func (d *fakeDialer) All() []*fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*fakeConn(nil), d.conns...)
}

type countingObserver struct {
	validated atomic.Int32
	failed    atomic.Int32
}

func (o *countingObserver) ConnectionValidated() { o.validated.Add(1) }
func (o *countingObserver) ValidationFailed()    { o.failed.Add(1) }
