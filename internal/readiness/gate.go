// Package readiness blocks traffic until the pool has produced a validated
// connection and every configured schema has been bootstrapped.
package readiness

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/yuku/schemapool/internal/bootstrap"
	"go.uber.org/zap"
)

var (
	ErrReadinessTimeout = errors.New("timed out waiting for readiness")
	ErrNotReady         = errors.New("service not ready")
	ErrDegraded         = errors.New("service degraded")
)

var _ bootstrap.Tracker = (*Gate)(nil)

// State is the gate's current verdict.
type State int32

const (
	NotReady State = iota
	Ready
	Degraded
)

func (s State) String() string {
	switch s {
	case NotReady:
		return "NotReady"
	case Ready:
		return "Ready"
	case Degraded:
		return "Degraded"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Gate tracks pool health and bootstrap results. It implements
// bootstrap.Tracker and connpool.Observer.
//
// NotReady becomes Ready once the pool is healthy and every configured schema
// has succeeded. Ready becomes Degraded when the pool reports an escalated
// validation failure, and Degraded returns to Ready on the next successful
// validation. Bootstrap is never re-run.
type Gate struct {
	logger  *zap.Logger
	schemas []string

	mu      sync.Mutex
	state   State
	healthy bool
	begun   bool
	results map[string]bootstrap.Result
	since   time.Time
	// changed is closed and replaced on every state transition.
	changed chan struct{}
}

// New returns a gate waiting for schemas.
func New(schemas []string, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	results := make(map[string]bootstrap.Result, len(schemas))
	for _, s := range schemas {
		results[s] = bootstrap.Result{Schema: s, Status: bootstrap.StatusPending}
	}
	return &Gate{
		logger:  logger,
		schemas: append([]string(nil), schemas...),
		state:   NotReady,
		results: results,
		since:   time.Now(),
		changed: make(chan struct{}),
	}
}

// Begin admits exactly one bootstrap attempt per gate.
func (g *Gate) Begin(schemas []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.begun {
		return bootstrap.ErrAlreadyBootstrapped
	}
	g.begun = true
	g.logger.Info("bootstrap started", zap.Strings("schemas", schemas))
	return nil
}

// Record stores a bootstrap result.
func (g *Gate) Record(r bootstrap.Result) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if prev, ok := g.results[r.Schema]; ok && prev.Status.Terminal() {
		return
	}
	g.results[r.Schema] = r
	g.evaluateLocked()
}

// ConnectionValidated marks the pool healthy. A Degraded gate returns to Ready.
func (g *Gate) ConnectionValidated() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.healthy = true
	g.evaluateLocked()
}

// ValidationFailed marks the pool unhealthy. A Ready gate becomes Degraded.
func (g *Gate) ValidationFailed() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.healthy = false
	g.evaluateLocked()
}

func (g *Gate) evaluateLocked() {
	next := g.state
	switch g.state {
	case NotReady:
		if g.healthy && g.bootstrappedLocked() {
			next = Ready
		}
	case Ready:
		if !g.healthy {
			next = Degraded
		}
	case Degraded:
		if g.healthy {
			next = Ready
		}
	}
	if next == g.state {
		return
	}

	g.logger.Info("readiness changed",
		zap.Stringer("from", g.state),
		zap.Stringer("to", next),
		zap.Duration("after", time.Since(g.since)))
	g.state = next
	g.since = time.Now()
	close(g.changed)
	g.changed = make(chan struct{})
}

func (g *Gate) bootstrappedLocked() bool {
	for _, s := range g.schemas {
		if g.results[s].Status != bootstrap.StatusSucceeded {
			return false
		}
	}
	return true
}

// State returns the current state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Check returns nil when Ready, ErrNotReady or ErrDegraded otherwise.
func (g *Gate) Check() error {
	switch g.State() {
	case Ready:
		return nil
	case Degraded:
		return ErrDegraded
	default:
		return ErrNotReady
	}
}

// Results returns the latest result of each configured schema, in order.
func (g *Gate) Results() []bootstrap.Result {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]bootstrap.Result, len(g.schemas))
	for i, s := range g.schemas {
		out[i] = g.results[s]
	}
	return out
}

// AwaitReady blocks until the gate is Ready. It returns ErrReadinessTimeout
// when timeout elapses or ctx ends first. A non-positive timeout waits on ctx
// alone.
func (g *Gate) AwaitReady(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	for {
		g.mu.Lock()
		state, changed := g.state, g.changed
		g.mu.Unlock()

		if state == Ready {
			return nil
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return fmt.Errorf("%w: still %s: %w", ErrReadinessTimeout, state, ctx.Err())
		}
	}
}

// Prober forces a validation round trip. *connpool.Pool implements it.
type Prober interface {
	Validate(ctx context.Context) error
}

// Watch probes p every interval until ctx is done, so a Degraded gate can
// recover without traffic. The outcome reaches the gate through the pool's
// observer hooks.
func (g *Gate) Watch(ctx context.Context, p Prober, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Validate(ctx); err != nil && ctx.Err() == nil {
				g.logger.Warn("readiness probe failed", zap.Error(err))
			}
		}
	}
}
