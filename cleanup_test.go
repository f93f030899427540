package schemapool_test

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuku/schemapool"
	"github.com/yuku/schemapool/internal/bootstrap"
	"github.com/yuku/schemapool/internal/testutil"
)

func TestDropSchemas(t *testing.T) {
	ctx := context.Background()

	t.Run("drops in reverse order", func(t *testing.T) {
		pool, mock := testutil.NewMockPool(t)

		mock.ExpectExec(`DROP SCHEMA IF EXISTS "address_schema" CASCADE`).WillReturnResult(pgxmock.NewResult("DROP SCHEMA", 0))
		mock.ExpectExec(`DROP SCHEMA IF EXISTS "user_schema" CASCADE`).WillReturnResult(pgxmock.NewResult("DROP SCHEMA", 0))

		require.NoError(t, schemapool.DropSchemas(ctx, pool, schemapool.DefaultSchemas(), nil))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("attempts every schema and reports each failure", func(t *testing.T) {
		pool, mock := testutil.NewMockPool(t)

		mock.ExpectExec(`DROP SCHEMA IF EXISTS "address_schema" CASCADE`).WillReturnError(errors.New("must be owner of schema address_schema"))
		mock.ExpectExec(`DROP SCHEMA IF EXISTS "user_schema" CASCADE`).WillReturnResult(pgxmock.NewResult("DROP SCHEMA", 0))

		err := schemapool.DropSchemas(ctx, pool, schemapool.DefaultSchemas(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ADDRESS_SCHEMA")
		assert.NotContains(t, err.Error(), "USER_SCHEMA")
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects invalid names before borrowing", func(t *testing.T) {
		pool, mock := testutil.NewMockPool(t)

		err := schemapool.DropSchemas(ctx, pool, []bootstrap.SchemaSpec{{Name: `x"; DROP DATABASE app; --`}}, nil)
		require.ErrorIs(t, err, schemapool.ErrInvalidSpec)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
