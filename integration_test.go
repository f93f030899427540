package schemapool_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuku/schemapool"
	"github.com/yuku/schemapool/internal/bootstrap"
	"github.com/yuku/schemapool/internal/connpool"
	"github.com/yuku/schemapool/internal/readiness"
	"github.com/yuku/schemapool/internal/testutil"
)

func testConfig(url string) *schemapool.Config {
	return &schemapool.Config{
		Database: schemapool.DatabaseConfig{URL: url},
		Pool: schemapool.PoolConfig{
			InitialPoolSize:              1,
			MinPoolSize:                  1,
			MaxPoolSize:                  5,
			TimeoutCheckInterval:         30,
			InactiveConnectionTimeout:    300,
			SQLForValidateConnection:     "SELECT 1",
			ValidateConnectionOnBorrow:   true,
			SecondsToTrustIdleConnection: 0,
			AcquireTimeout:               5 * time.Second,
		},
		Bootstrap: schemapool.BootstrapConfig{
			Mode:    schemapool.ModeProvision,
			Schemas: schemapool.DefaultSchemas(),
		},
		Readiness: schemapool.ReadinessConfig{Timeout: 10 * time.Second},
	}
}

func openPool(t *testing.T, url string) *connpool.Pool {
	t.Helper()
	p, err := connpool.New(context.Background(), connpool.Config{
		Endpoint:    url,
		InitialSize: 1,
		MinSize:     1,
		MaxSize:     2,
	})
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func writeScripts(t *testing.T, scripts map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, text := range scripts {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	}
	return dir
}

func TestOpen_EndToEnd(t *testing.T) {
	url := testutil.FreshDatabase(t)
	ctx := context.Background()

	svc, err := schemapool.Open(ctx, testConfig(url), nil)
	require.NoError(t, err)
	defer svc.Close()

	assert.Equal(t, readiness.Ready, svc.Gate.State())
	require.Len(t, svc.Results, 2)
	for _, r := range svc.Results {
		assert.Equal(t, bootstrap.StatusSucceeded, r.Status, r.Schema)
	}

	users, err := svc.Repository.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	addresses, err := svc.Repository.ListAddresses(ctx)
	require.NoError(t, err)
	assert.Len(t, addresses, 2)

	stats := svc.Pool.Stats()
	assert.LessOrEqual(t, stats.Total, int32(5))
	assert.Equal(t, int32(0), stats.Active)

	t.Run("over HTTP", func(t *testing.T) {
		gin.SetMode(gin.TestMode)
		srv := httptest.NewServer(svc.Handler())
		defer srv.Close()

		for _, path := range []string{"/users", "/addresses", "/roles"} {
			resp, err := http.Get(srv.URL + path)
			require.NoError(t, err)

			var rows []map[string]any
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&rows))
			resp.Body.Close()

			assert.Equal(t, http.StatusOK, resp.StatusCode, path)
			assert.Len(t, rows, 2, path)
		}

		resp, err := http.Get(srv.URL + "/readyz")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestOpen_ProvisionedInstance(t *testing.T) {
	url := testutil.FreshDatabase(t)
	ctx := context.Background()

	svc, err := schemapool.Open(ctx, testConfig(url), nil)
	require.NoError(t, err)
	svc.Close()

	t.Run("provisioning again surfaces the script error", func(t *testing.T) {
		_, err := schemapool.Open(ctx, testConfig(url), nil)
		require.ErrorIs(t, err, schemapool.ErrScriptExecutionFailed)

		var se *schemapool.ScriptError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "USER_SCHEMA", se.Schema)
		assert.Equal(t, "user_schema/V1__create_users.sql", se.Script)
	})

	t.Run("verify mode accepts it", func(t *testing.T) {
		cfg := testConfig(url)
		cfg.Bootstrap.Mode = schemapool.ModeVerify

		svc, err := schemapool.Open(ctx, cfg, nil)
		require.NoError(t, err)
		defer svc.Close()

		users, err := svc.Repository.ListUsers(ctx)
		require.NoError(t, err)
		assert.Len(t, users, 2)
	})

	t.Run("dropping the schemas allows provisioning again", func(t *testing.T) {
		pool := openPool(t, url)
		require.NoError(t, schemapool.DropSchemas(ctx, pool, schemapool.DefaultSchemas(), nil))

		conn := testutil.Connect(t, url)
		assert.False(t, testutil.SchemaExists(t, conn, "user_schema"))
		assert.False(t, testutil.SchemaExists(t, conn, "address_schema"))

		svc, err := schemapool.Open(ctx, testConfig(url), nil)
		require.NoError(t, err)
		svc.Close()
	})
}

func TestOpen_VerifyFreshInstance(t *testing.T) {
	cfg := testConfig(testutil.FreshDatabase(t))
	cfg.Bootstrap.Mode = schemapool.ModeVerify

	_, err := schemapool.Open(context.Background(), cfg, nil)
	require.ErrorIs(t, err, schemapool.ErrSchemaMissing)
}

func TestOpen_PrivilegedChannel(t *testing.T) {
	url := testutil.FreshDatabase(t)

	cfg := testConfig(url)
	cfg.Admin.URL = url
	cfg.Bootstrap.Schemas = []bootstrap.SchemaSpec{
		{Name: "USER_SCHEMA", Privileged: true},
		{Name: "ADDRESS_SCHEMA"},
	}

	svc, err := schemapool.Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer svc.Close()
	assert.Equal(t, readiness.Ready, svc.Gate.State())
}

func TestOpen_ConnectFailed(t *testing.T) {
	url := testutil.ServerURL(t)

	cfg := testConfig(url)
	cfg.Database.User = "nobody"
	cfg.Database.Password = "wrong"

	_, err := schemapool.Open(context.Background(), cfg, nil)
	require.ErrorIs(t, err, schemapool.ErrConnectFailed)
}

const (
	createA = `CREATE SCHEMA ORDER_A; CREATE TABLE ORDER_A.items (id int); INSERT INTO ORDER_A.items VALUES (1), (2);`
	createB = `CREATE SCHEMA ORDER_B; CREATE TABLE ORDER_B.items AS SELECT * FROM ORDER_A.items;`
	seedB   = `INSERT INTO ORDER_B.items VALUES (3);`
	badB    = `INSERT INTO ORDER_B.missing VALUES (3);`
)

func TestProvision_Ordering(t *testing.T) {
	ctx := context.Background()
	loader := bootstrap.NewDirLoader(writeScripts(t, map[string]string{
		"a/create.sql": createA,
		"b/create.sql": createB,
		"b/seed.sql":   seedB,
		"b/bad.sql":    badB,
	}))
	specA := bootstrap.SchemaSpec{Name: "ORDER_A", Scripts: []string{"a/create.sql"}}
	specB := bootstrap.SchemaSpec{Name: "ORDER_B", Scripts: []string{"b/create.sql", "b/seed.sql"}}

	t.Run("dependency first succeeds", func(t *testing.T) {
		url := testutil.FreshDatabase(t)
		bs := bootstrap.New(openPool(t, url), loader)

		results, err := bs.Provision(ctx, []bootstrap.SchemaSpec{specA, specB})
		require.NoError(t, err)
		assert.Equal(t, bootstrap.StatusSucceeded, results[1].Status)

		var n int
		require.NoError(t, testutil.Connect(t, url).QueryRow(ctx, "SELECT count(*) FROM order_b.items").Scan(&n))
		assert.Equal(t, 3, n)
	})

	t.Run("dependent first fails and the dependency is never attempted", func(t *testing.T) {
		url := testutil.FreshDatabase(t)
		bs := bootstrap.New(openPool(t, url), loader)

		results, err := bs.Provision(ctx, []bootstrap.SchemaSpec{specB, specA})
		require.ErrorIs(t, err, bootstrap.ErrScriptExecutionFailed)
		assert.Equal(t, bootstrap.StatusFailed, results[0].Status)
		assert.Equal(t, bootstrap.StatusPending, results[1].Status)

		conn := testutil.Connect(t, url)
		assert.False(t, testutil.SchemaExists(t, conn, "order_a"))
		assert.False(t, testutil.SchemaExists(t, conn, "order_b"))
	})

	t.Run("partial failure rolls back the failing schema only", func(t *testing.T) {
		url := testutil.FreshDatabase(t)
		bs := bootstrap.New(openPool(t, url), loader)

		broken := bootstrap.SchemaSpec{Name: "ORDER_B", Scripts: []string{"b/create.sql", "b/bad.sql"}}
		results, err := bs.Provision(ctx, []bootstrap.SchemaSpec{specA, broken})
		require.ErrorIs(t, err, bootstrap.ErrScriptExecutionFailed)

		se, ok := bootstrap.AsScriptError(err)
		require.True(t, ok)
		assert.Equal(t, "b/bad.sql", se.Script)
		assert.Equal(t, bootstrap.StatusSucceeded, results[0].Status)
		assert.Equal(t, bootstrap.StatusFailed, results[1].Status)

		conn := testutil.Connect(t, url)
		assert.True(t, testutil.SchemaExists(t, conn, "order_a"))
		assert.False(t, testutil.SchemaExists(t, conn, "order_b"))
	})
}
