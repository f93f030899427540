// Package connpool implements the long-lived connection pool shared by the
// bootstrapper and the schema accessors.
package connpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/puddle/v2"
	"go.uber.org/zap"
)

// Pool owns a bounded set of database connections.
type Pool struct {
	cfg    Config
	res    *puddle.Pool[Conn]
	logger *zap.Logger

	// mu serializes eviction and replenishment.
	mu     sync.Mutex
	closed bool

	done chan struct{}
	wg   sync.WaitGroup

	evicted            atomic.Int64
	discarded          atomic.Int64
	validationFailures atomic.Int64
}

// New validates cfg, opens InitialSize connections and starts the idle
// eviction loop.
func New(ctx context.Context, cfg Config) (*Pool, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}

	connect := cfg.Connect
	if connect == nil {
		var err error
		connect, err = PgxConnector(cfg.Endpoint, cfg.Credentials)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfigInvalid, err)
		}
	}

	logger := cfg.Logger
	res, err := puddle.NewPool(&puddle.Config[Conn]{
		Constructor: func(ctx context.Context) (Conn, error) {
			return connect(ctx)
		},
		Destructor: func(conn Conn) {
			closeConn(conn, cfg.ValidationTimeout, logger)
		},
		MaxSize: cfg.MaxSize,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}

	for i := int32(0); i < cfg.InitialSize; i++ {
		if err := res.CreateResource(ctx); err != nil {
			res.Close()
			return nil, fmt.Errorf("%w: failed to open connection %d of %d: %w",
				ErrConnectFailed, i+1, cfg.InitialSize, err)
		}
	}

	p := &Pool{
		cfg:    cfg,
		res:    res,
		logger: logger,
		done:   make(chan struct{}),
	}

	p.wg.Add(1)
	go p.evictLoop()

	logger.Info("connection pool initialized",
		zap.Int32("initial_size", cfg.InitialSize),
		zap.Int32("min_size", cfg.MinSize),
		zap.Int32("max_size", cfg.MaxSize),
		zap.Bool("validate_on_borrow", cfg.ValidateOnBorrow),
		zap.Duration("idle_timeout", cfg.IdleTimeout),
	)

	return p, nil
}

// Borrow obtains a connection, waiting at most the configured acquire
// timeout. The returned handle must be released.
func (p *Pool) Borrow(ctx context.Context) (*Handle, error) {
	return p.borrow(ctx, false)
}

// Validate borrows a connection, validates it regardless of the trust window
// and releases it again.
func (p *Pool) Validate(ctx context.Context) error {
	h, err := p.borrow(ctx, true)
	if err != nil {
		return err
	}
	h.Release()
	return nil
}

func (p *Pool) borrow(ctx context.Context, force bool) (*Handle, error) {
	res, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}

	if !force && !p.needsValidation(res) {
		return newHandle(p, res), nil
	}

	verr := p.validate(ctx, res.Value())
	if verr == nil {
		p.cfg.Observer.ConnectionValidated()
		return newHandle(p, res), nil
	}
	if ctx.Err() != nil {
		p.release(res)
		return nil, ctx.Err()
	}

	p.logger.Warn("discarding connection that failed validation", zap.Error(verr))
	p.validationFailures.Add(1)
	p.discard(res)

	// One replacement attempt. It is validated unconditionally since it may be
	// another idle connection of the same age.
	res, err = p.acquire(ctx)
	if err != nil {
		if errors.Is(err, ErrConnectFailed) {
			p.cfg.Observer.ValidationFailed()
			return nil, fmt.Errorf("%w: replacement connection: %w", ErrValidationFailed, err)
		}
		return nil, err
	}
	if verr = p.validate(ctx, res.Value()); verr != nil {
		p.validationFailures.Add(1)
		p.discard(res)
		p.replenishAsync()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.cfg.Observer.ValidationFailed()
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, verr)
	}

	p.cfg.Observer.ConnectionValidated()
	return newHandle(p, res), nil
}

func (p *Pool) acquire(ctx context.Context) (*puddle.Resource[Conn], error) {
	acquireCtx, cancel := context.WithTimeout(ctx, p.cfg.AcquireTimeout)
	defer cancel()

	res, err := p.res.Acquire(acquireCtx)
	if err == nil {
		return res, nil
	}

	switch {
	case errors.Is(err, puddle.ErrClosedPool):
		return nil, ErrPoolClosed
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case acquireCtx.Err() != nil:
		return nil, fmt.Errorf("%w: no connection available within %s", ErrPoolExhausted, p.cfg.AcquireTimeout)
	default:
		return nil, fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}
}

func (p *Pool) needsValidation(res *puddle.Resource[Conn]) bool {
	if !p.cfg.ValidateOnBorrow {
		return false
	}
	trust := p.cfg.TrustIdleConnectionFor
	return trust <= 0 || res.IdleDuration() > trust
}

func (p *Pool) validate(ctx context.Context, conn Conn) error {
	vctx, cancel := context.WithTimeout(ctx, p.cfg.ValidationTimeout)
	defer cancel()
	_, err := conn.Exec(vctx, p.cfg.ValidationQuery)
	return err
}

// release returns res to the idle set, or discards it when it can no longer
// be reused.
func (p *Pool) release(res *puddle.Resource[Conn]) {
	if isReusable(res.Value()) {
		res.Release()
		return
	}
	p.logger.Debug("discarding poisoned connection")
	p.discard(res)
	p.replenishAsync()
}

func (p *Pool) discard(res *puddle.Resource[Conn]) {
	p.discarded.Add(1)
	p.destroy(res)
}

// destroy takes res out of the pool and closes it before returning, so the
// pool counts are accurate as soon as it returns.
func (p *Pool) destroy(res *puddle.Resource[Conn]) {
	conn := res.Value()
	res.Hijack()
	closeConn(conn, p.cfg.ValidationTimeout, p.logger)
}

func closeConn(conn Conn, timeout time.Duration, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := conn.Close(ctx); err != nil {
		logger.Debug("failed to close connection", zap.Error(err))
	}
}

// Config returns the effective configuration, defaults applied.
func (p *Pool) Config() Config {
	return p.cfg
}

// Close stops the eviction loop and closes every connection. It blocks until
// all borrowed handles have been released.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	close(p.done)
	p.wg.Wait()
	p.res.Close()
	p.logger.Info("connection pool closed")
}
