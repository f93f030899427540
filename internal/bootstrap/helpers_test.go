package bootstrap_test

import (
	"sync"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"github.com/yuku/schemapool/internal/bootstrap"
	"github.com/yuku/schemapool/internal/connpool"
	"github.com/yuku/schemapool/internal/testutil"
)

func newMockPool(t *testing.T) (*connpool.Pool, pgxmock.PgxConnIface) {
	t.Helper()
	return testutil.NewMockPool(t)
}

func newMemLoader(t *testing.T, scripts map[string]string) *bootstrap.ScriptLoader {
	t.Helper()

	fs := afero.NewMemMapFs()
	for name, text := range scripts {
		require.NoError(t, afero.WriteFile(fs, name, []byte(text), 0o644))
	}
	return bootstrap.NewScriptLoader(fs)
}

type recordingTracker struct {
	mu       sync.Mutex
	begun    [][]string
	records  []bootstrap.Result
	beginErr error
}

func (r *recordingTracker) Begin(schemas []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.begun = append(r.begun, schemas)
	return r.beginErr
}

func (r *recordingTracker) Record(res bootstrap.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, res)
}

// statuses returns the recorded status transitions of schema.
func (r *recordingTracker) statuses(schema string) []bootstrap.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []bootstrap.Status
	for _, rec := range r.records {
		if rec.Schema == schema {
			out = append(out, rec.Status)
		}
	}
	return out
}
