// Package bootstrap provisions the application schemas on a fresh database
// instance, one schema at a time and in dependency order.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yuku/schemapool/internal/connpool"
	"github.com/yuku/schemapool/internal/pgconst"
	"go.uber.org/zap"
)

// Borrower hands out pooled connections. *connpool.Pool implements it.
type Borrower interface {
	Borrow(ctx context.Context) (*connpool.Handle, error)
}

// Tracker observes a bootstrap run. Begin is called once before any schema is
// touched and may refuse the run; Record receives every state transition.
type Tracker interface {
	Begin(schemas []string) error
	Record(r Result)
}

type nopTracker struct{}

func (nopTracker) Begin([]string) error { return nil }
func (nopTracker) Record(Result)        {}

// Option configures a Bootstrapper.
type Option func(*Bootstrapper)

// WithPrivileged sets the administrative channel used for specs marked
// Privileged.
func WithPrivileged(b Borrower) Option {
	return func(bs *Bootstrapper) { bs.privileged = b }
}

// WithTracker sets the tracker notified about results.
func WithTracker(t Tracker) Option {
	return func(bs *Bootstrapper) { bs.tracker = t }
}

// WithLogger sets the logger used for progress and failures.
func WithLogger(l *zap.Logger) Option {
	return func(bs *Bootstrapper) { bs.logger = l }
}

// WithClock overrides the time source for AttemptedAt and CompletedAt.
func WithClock(now func() time.Time) Option {
	return func(bs *Bootstrapper) { bs.now = now }
}

// Bootstrapper runs the provisioning sequence.
type Bootstrapper struct {
	pool       Borrower
	privileged Borrower
	loader     *ScriptLoader
	tracker    Tracker
	logger     *zap.Logger
	now        func() time.Time
}

// New creates a Bootstrapper borrowing from pool and reading scripts through
// loader.
func New(pool Borrower, loader *ScriptLoader, opts ...Option) *Bootstrapper {
	bs := &Bootstrapper{
		pool:    pool,
		loader:  loader,
		tracker: nopTracker{},
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(bs)
	}
	return bs
}

// Provision executes every script of every spec in order, one transaction per
// schema. The first failure stops the sequence: the failing schema is marked
// Failed and the schemas after it stay Pending. The returned error is the
// failing schema's *ScriptError.
//
// Scripts are not idempotent. Running Provision against an instance that is
// already provisioned fails on the first object that exists.
func (b *Bootstrapper) Provision(ctx context.Context, specs []SchemaSpec) ([]Result, error) {
	if err := validateSpecs(specs, true); err != nil {
		return nil, err
	}
	return b.run(ctx, specs, b.provisionSchema)
}

// Verify checks that every schema already exists, for instances provisioned
// out of band. It follows the same sequencing and stop semantics as Provision.
func (b *Bootstrapper) Verify(ctx context.Context, specs []SchemaSpec) ([]Result, error) {
	if err := validateSpecs(specs, false); err != nil {
		return nil, err
	}
	return b.run(ctx, specs, b.verifySchema)
}

type stepFunc func(ctx context.Context, spec SchemaSpec) error

func (b *Bootstrapper) run(ctx context.Context, specs []SchemaSpec, step stepFunc) ([]Result, error) {
	if err := b.tracker.Begin(Names(specs)); err != nil {
		return nil, err
	}

	results := make([]Result, len(specs))
	for i, spec := range specs {
		results[i] = Result{Schema: spec.Name, Status: StatusPending}
		b.tracker.Record(results[i])
	}

	for i, spec := range specs {
		results[i].Status = StatusRunning
		results[i].AttemptedAt = b.now()
		b.tracker.Record(results[i])

		err := step(ctx, spec)
		results[i].CompletedAt = b.now()

		if err != nil {
			results[i].Status = StatusFailed
			results[i].Err = err
			b.tracker.Record(results[i])
			b.logger.Error("schema bootstrap failed",
				zap.String("schema", spec.Name),
				zap.Int("remaining", len(specs)-i-1),
				zap.Error(err))
			return results, err
		}

		results[i].Status = StatusSucceeded
		b.tracker.Record(results[i])
		b.logger.Info("schema bootstrapped",
			zap.String("schema", spec.Name),
			zap.Duration("duration", results[i].CompletedAt.Sub(results[i].AttemptedAt)))
	}

	return results, nil
}

func (b *Bootstrapper) provisionSchema(ctx context.Context, spec SchemaSpec) error {
	// Read everything first so a missing file never holds a connection.
	scripts := make([]string, len(spec.Scripts))
	for i, name := range spec.Scripts {
		text, err := b.loader.Load(name)
		if err != nil {
			return &ScriptError{Schema: spec.Name, Script: name, Err: err}
		}
		scripts[i] = text
	}

	h, err := b.borrowerFor(spec).Borrow(ctx)
	if err != nil {
		return &ScriptError{Schema: spec.Name, Err: fmt.Errorf("failed to borrow connection: %w", err)}
	}
	defer h.Release()

	tx, err := h.Begin(ctx)
	if err != nil {
		return &ScriptError{Schema: spec.Name, Err: fmt.Errorf("failed to begin transaction: %w", err)}
	}

	for i, name := range spec.Scripts {
		b.logger.Debug("executing script", zap.String("schema", spec.Name), zap.String("script", name))
		if _, err := tx.Exec(ctx, scripts[i]); err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				b.logger.Warn("failed to roll back", zap.String("schema", spec.Name), zap.Error(rbErr))
			}
			return &ScriptError{Schema: spec.Name, Script: name, Err: err}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return &ScriptError{Schema: spec.Name, Err: fmt.Errorf("failed to commit: %w", err)}
	}
	return nil
}

const schemaExistsQuery = `SELECT EXISTS (SELECT 1 FROM information_schema.schemata WHERE schema_name = $1)`

func (b *Bootstrapper) verifySchema(ctx context.Context, spec SchemaSpec) error {
	h, err := b.borrowerFor(spec).Borrow(ctx)
	if err != nil {
		return &ScriptError{Schema: spec.Name, Err: fmt.Errorf("failed to borrow connection: %w", err)}
	}
	defer h.Release()

	var exists bool
	if err := h.QueryRow(ctx, schemaExistsQuery, pgconst.FoldIdentifier(spec.Name)).Scan(&exists); err != nil {
		return &ScriptError{Schema: spec.Name, Err: fmt.Errorf("failed to look up schema: %w", err)}
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrSchemaMissing, spec.Name)
	}
	return nil
}

func (b *Bootstrapper) borrowerFor(spec SchemaSpec) Borrower {
	if spec.Privileged && b.privileged != nil {
		return b.privileged
	}
	return b.pool
}

// Failed returns the first failed result, if any.
func Failed(results []Result) (Result, bool) {
	for _, r := range results {
		if r.Status == StatusFailed {
			return r, true
		}
	}
	return Result{}, false
}

// AsScriptError extracts the schema and script context from err.
func AsScriptError(err error) (*ScriptError, bool) {
	var se *ScriptError
	ok := errors.As(err, &se)
	return se, ok
}
