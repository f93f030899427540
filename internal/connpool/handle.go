package connpool

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/puddle/v2"
)

// Handle is a borrowed connection. It is not safe for concurrent use.
type Handle struct {
	pool *Pool
	res  *puddle.Resource[Conn]
	once sync.Once
}

func newHandle(p *Pool, res *puddle.Resource[Conn]) *Handle {
	return &Handle{pool: p, res: res}
}

// Conn returns the underlying connection. It must not be used after Release.
func (h *Handle) Conn() Conn {
	return h.res.Value()
}

// Exec runs sql on the borrowed connection.
func (h *Handle) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return h.res.Value().Exec(ctx, sql, arguments...)
}

// Query runs sql on the borrowed connection.
func (h *Handle) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return h.res.Value().Query(ctx, sql, args...)
}

// QueryRow runs sql on the borrowed connection.
func (h *Handle) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return h.res.Value().QueryRow(ctx, sql, args...)
}

// Begin starts a transaction on the borrowed connection. It must end before
// Release or the connection is discarded.
func (h *Handle) Begin(ctx context.Context) (pgx.Tx, error) {
	return h.res.Value().Begin(ctx)
}

// Release returns the connection to the pool. It never fails and is safe to
// call more than once.
func (h *Handle) Release() {
	h.once.Do(func() {
		h.pool.release(h.res)
	})
}
