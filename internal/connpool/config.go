package connpool

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	defaultAcquireTimeout       = 30 * time.Second
	defaultValidationTimeout    = 5 * time.Second
	defaultTimeoutCheckInterval = 30 * time.Second
	defaultValidationQuery      = "SELECT 1"
)

// Credentials identify the principal the pool connects as.
type Credentials struct {
	Principal string
	Secret    string
}

// Config holds the pooling parameters. It is copied into the Pool on creation
// and never changes afterwards.
type Config struct {
	// Endpoint is the connection URI or keyword/value DSN of the database.
	// It may be empty only when Connect is set.
	Endpoint string

	// Credentials override any user/password present in Endpoint.
	Credentials Credentials

	// InitialSize connections are established eagerly by New.
	InitialSize int32

	// MinSize is the floor kept open by eviction and replenishment.
	MinSize int32

	// MaxSize bounds the number of live connections. Must be at least 1.
	MaxSize int32

	// TimeoutCheckInterval is the period of the idle eviction sweep.
	TimeoutCheckInterval time.Duration

	// IdleTimeout is how long a connection may sit idle before eviction.
	// Zero disables eviction.
	IdleTimeout time.Duration

	// ValidationQuery is run to check a connection's liveness.
	ValidationQuery string

	// ValidateOnBorrow enables validation before a connection is handed out.
	ValidateOnBorrow bool

	// TrustIdleConnectionFor skips validation for connections that have been
	// idle for less than this window. Zero validates on every borrow.
	TrustIdleConnectionFor time.Duration

	// AcquireTimeout bounds how long Borrow waits for a free connection.
	AcquireTimeout time.Duration

	// ValidationTimeout bounds a single run of ValidationQuery.
	ValidationTimeout time.Duration

	// Connect opens a new connection. Defaults to dialing Endpoint with pgx.
	Connect ConnectFunc

	// Observer is notified about validation outcomes.
	Observer Observer

	Logger *zap.Logger
}

// withDefaults returns a copy of c with zero-valued optional fields filled in.
func (c Config) withDefaults() Config {
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = defaultAcquireTimeout
	}
	if c.ValidationTimeout <= 0 {
		c.ValidationTimeout = defaultValidationTimeout
	}
	if c.TimeoutCheckInterval <= 0 {
		c.TimeoutCheckInterval = defaultTimeoutCheckInterval
	}
	if c.ValidationQuery == "" {
		c.ValidationQuery = defaultValidationQuery
	}
	if c.Observer == nil {
		c.Observer = nopObserver{}
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Validate checks the sizing and timeout invariants.
func (c *Config) Validate() error {
	if c.Endpoint == "" && c.Connect == nil {
		return fmt.Errorf("Endpoint is required")
	}

	if c.MaxSize < 1 {
		return fmt.Errorf("MaxSize must be at least 1, got %d", c.MaxSize)
	}

	if c.MinSize < 0 {
		return fmt.Errorf("MinSize must not be negative, got %d", c.MinSize)
	}

	if c.MinSize > c.InitialSize {
		return fmt.Errorf("MinSize (%d) must not exceed InitialSize (%d)", c.MinSize, c.InitialSize)
	}

	if c.InitialSize > c.MaxSize {
		return fmt.Errorf("InitialSize (%d) must not exceed MaxSize (%d)", c.InitialSize, c.MaxSize)
	}

	if c.IdleTimeout < 0 {
		return fmt.Errorf("IdleTimeout must not be negative, got %s", c.IdleTimeout)
	}

	if c.TrustIdleConnectionFor < 0 {
		return fmt.Errorf("TrustIdleConnectionFor must not be negative, got %s", c.TrustIdleConnectionFor)
	}

	return nil
}
