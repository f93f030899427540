package migrations_test

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuku/schemapool/migrations"
)

func TestFS(t *testing.T) {
	scripts, err := fs.Glob(migrations.FS, "*/*.sql")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"address_schema/V1__create_addresses.sql",
		"user_schema/V1__create_users.sql",
	}, scripts)

	for _, s := range scripts {
		b, err := fs.ReadFile(migrations.FS, s)
		require.NoError(t, err)
		assert.Contains(t, string(b), "CREATE SCHEMA", s)
	}
}
