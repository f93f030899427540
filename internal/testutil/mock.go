package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
	"github.com/yuku/schemapool/internal/connpool"
)

// NewMockPool returns a single-connection pool whose connection is a pgxmock
// matching SQL text exactly. Check expectations before the pool is closed,
// since closing calls Close on the mock.
func NewMockPool(t *testing.T) (*connpool.Pool, pgxmock.PgxConnIface) {
	t.Helper()

	mock, err := pgxmock.NewConn(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherEqual))
	require.NoError(t, err)

	p, err := connpool.New(context.Background(), connpool.Config{
		Connect: func(context.Context) (connpool.Conn, error) {
			return mock, nil
		},
		InitialSize:          1,
		MinSize:              1,
		MaxSize:              1,
		AcquireTimeout:       time.Second,
		TimeoutCheckInterval: time.Hour,
	})
	require.NoError(t, err)
	t.Cleanup(p.Close)

	return p, mock
}
