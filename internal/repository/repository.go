// Package repository lists the records of the user and address schemas
// through connections borrowed from the shared pool.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/sethvargo/go-retry"
	"github.com/yuku/schemapool/internal/connpool"
	"github.com/yuku/schemapool/internal/readiness"
	"go.uber.org/zap"
)

const (
	UsersTable     = "user_schema.users"
	AddressesTable = "address_schema.addresses"
)

// Borrower hands out pooled connections.
type Borrower interface {
	Borrow(ctx context.Context) (*connpool.Handle, error)
}

// Validator forces a validated borrow. A pool that implements it lets a
// degraded read prove the connection healthy again before giving up.
type Validator interface {
	Validate(ctx context.Context) error
}

// Gate refuses reads until the service is ready.
type Gate interface {
	Check() error
}

// ErrNotFound is returned by the lookups when no row matches.
var ErrNotFound = errors.New("record not found")

// Repository reads both schemas. It holds no connection between calls.
type Repository struct {
	pool       Borrower
	gate       Gate
	logger     *zap.Logger
	maxRetries uint64
	backoff    time.Duration
}

// Option configures a Repository.
type Option func(*Repository)

// WithRetry sets how often, and starting from which delay, a borrow that
// found the pool exhausted is retried.
func WithRetry(maxRetries uint64, base time.Duration) Option {
	return func(r *Repository) {
		r.maxRetries = maxRetries
		r.backoff = base
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(r *Repository) { r.logger = l }
}

// New returns a Repository reading through pool once gate reports Ready.
func New(pool Borrower, gate Gate, opts ...Option) *Repository {
	r := &Repository{
		pool:       pool,
		gate:       gate,
		logger:     zap.NewNop(),
		maxRetries: 3,
		backoff:    50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ListUsers returns every user.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	query, args, err := squirrel.Select("id", "name", "email", "password").
		From(UsersTable).
		OrderBy("id").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}

	var users []User
	if err := r.selectAll(ctx, &users, query, args...); err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return users, nil
}

// ListAddresses returns every address.
func (r *Repository) ListAddresses(ctx context.Context) ([]Address, error) {
	query, args, err := squirrel.Select("id", "name").
		From(AddressesTable).
		OrderBy("id").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}

	var addresses []Address
	if err := r.selectAll(ctx, &addresses, query, args...); err != nil {
		return nil, fmt.Errorf("listing addresses: %w", err)
	}
	return addresses, nil
}

// FindUserByEmail returns the user with the given email.
func (r *Repository) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	query, args, err := squirrel.Select("id", "name", "email", "password").
		From(UsersTable).
		Where(squirrel.Eq{"email": email}).
		Limit(1).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}

	var user User
	if err := r.getOne(ctx, &user, query, args...); err != nil {
		return nil, fmt.Errorf("finding user %q: %w", email, err)
	}
	return &user, nil
}

// UserExistsByEmail reports whether a user with the given email exists.
func (r *Repository) UserExistsByEmail(ctx context.Context, email string) (bool, error) {
	query, args, err := squirrel.Select("1").
		Prefix("SELECT EXISTS (").
		From(UsersTable).
		Where(squirrel.Eq{"email": email}).
		Suffix(")").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("building exists query: %w", err)
	}

	var exists bool
	err = r.withConn(ctx, func(h *connpool.Handle) error {
		return h.QueryRow(ctx, query, args...).Scan(&exists)
	})
	if err != nil {
		return false, fmt.Errorf("checking user %q: %w", email, err)
	}
	return exists, nil
}

// FindAddressByName returns the address with the given name.
func (r *Repository) FindAddressByName(ctx context.Context, name string) (*Address, error) {
	query, args, err := squirrel.Select("id", "name").
		From(AddressesTable).
		Where(squirrel.Eq{"name": name}).
		Limit(1).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select query: %w", err)
	}

	var address Address
	if err := r.getOne(ctx, &address, query, args...); err != nil {
		return nil, fmt.Errorf("finding address %q: %w", name, err)
	}
	return &address, nil
}

func (r *Repository) selectAll(ctx context.Context, dst any, query string, args ...any) error {
	return r.withConn(ctx, func(h *connpool.Handle) error {
		return pgxscan.Select(ctx, h, dst, query, args...)
	})
}

func (r *Repository) getOne(ctx context.Context, dst any, query string, args ...any) error {
	return r.withConn(ctx, func(h *connpool.Handle) error {
		err := pgxscan.Get(ctx, h, dst, query, args...)
		if pgxscan.NotFound(err) {
			return ErrNotFound
		}
		return err
	})
}

func (r *Repository) withConn(ctx context.Context, fn func(h *connpool.Handle) error) error {
	if err := r.admit(ctx); err != nil {
		return err
	}

	h, err := r.borrow(ctx)
	if err != nil {
		return err
	}
	defer h.Release()

	return fn(h)
}

// admit passes when the gate is Ready. A Degraded gate gets one forced
// validation first; its success moves the gate back to Ready.
func (r *Repository) admit(ctx context.Context) error {
	err := r.gate.Check()
	if err == nil || !errors.Is(err, readiness.ErrDegraded) {
		return err
	}

	v, ok := r.pool.(Validator)
	if !ok {
		return err
	}
	if verr := v.Validate(ctx); verr != nil {
		r.logger.Debug("degraded pool still failing validation", zap.Error(verr))
		return err
	}
	return r.gate.Check()
}

// borrow retries only on exhaustion; every other borrow error is returned as is.
func (r *Repository) borrow(ctx context.Context) (*connpool.Handle, error) {
	var h *connpool.Handle
	backoff := retry.WithMaxRetries(r.maxRetries, retry.NewExponential(r.backoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		h, err = r.pool.Borrow(ctx)
		if errors.Is(err, connpool.ErrPoolExhausted) {
			r.logger.Debug("pool exhausted, retrying borrow")
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}
