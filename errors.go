package schemapool

import (
	"github.com/yuku/schemapool/internal/bootstrap"
	"github.com/yuku/schemapool/internal/connpool"
	"github.com/yuku/schemapool/internal/readiness"
)

// Errors returned by Open and by the components it wires. Inspect them with
// errors.Is.
var (
	ErrConfigInvalid    = connpool.ErrConfigInvalid
	ErrConnectFailed    = connpool.ErrConnectFailed
	ErrPoolExhausted    = connpool.ErrPoolExhausted
	ErrValidationFailed = connpool.ErrValidationFailed
	ErrPoolClosed       = connpool.ErrPoolClosed

	ErrScriptExecutionFailed = bootstrap.ErrScriptExecutionFailed
	ErrAlreadyBootstrapped   = bootstrap.ErrAlreadyBootstrapped
	ErrSchemaMissing         = bootstrap.ErrSchemaMissing
	ErrInvalidSpec           = bootstrap.ErrInvalidSpec

	ErrReadinessTimeout = readiness.ErrReadinessTimeout
	ErrNotReady         = readiness.ErrNotReady
	ErrDegraded         = readiness.ErrDegraded
)

// ScriptError carries the schema and script of a failed provisioning step.
type ScriptError = bootstrap.ScriptError
