package bootstrap

import (
	"errors"
	"fmt"
)

var (
	// ErrScriptExecutionFailed is matched by every *ScriptError.
	ErrScriptExecutionFailed = errors.New("script execution failed")

	// ErrAlreadyBootstrapped is returned when a second bootstrap is attempted
	// in the same process.
	ErrAlreadyBootstrapped = errors.New("bootstrap already attempted")

	// ErrSchemaMissing is returned by Verify for a schema that does not exist.
	ErrSchemaMissing = errors.New("schema does not exist")

	// ErrInvalidSpec is returned for a malformed schema sequence.
	ErrInvalidSpec = errors.New("invalid schema spec")
)

// ScriptError records which script of which schema failed.
type ScriptError struct {
	Schema string
	Script string
	Err    error
}

func (e *ScriptError) Error() string {
	if e.Script == "" {
		return fmt.Sprintf("schema %s: %v", e.Schema, e.Err)
	}
	return fmt.Sprintf("schema %s: script %s: %v", e.Schema, e.Script, e.Err)
}

func (e *ScriptError) Unwrap() error {
	return e.Err
}

func (e *ScriptError) Is(target error) bool {
	return target == ErrScriptExecutionFailed
}
