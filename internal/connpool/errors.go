package connpool

import "errors"

var (
	// ErrConfigInvalid is returned by New when the pool parameters violate
	// their invariants. No connection has been opened when it is returned.
	ErrConfigInvalid = errors.New("invalid pool config")

	// ErrConnectFailed is returned when the endpoint is unreachable or the
	// credentials are rejected.
	ErrConnectFailed = errors.New("connect failed")

	// ErrPoolExhausted is returned when no connection became available within
	// the acquire timeout. It is transient.
	ErrPoolExhausted = errors.New("pool exhausted")

	// ErrValidationFailed is returned when a connection and its replacement
	// both failed validation.
	ErrValidationFailed = errors.New("connection validation failed")

	// ErrPoolClosed is returned by Borrow after Close.
	ErrPoolClosed = errors.New("pool closed")
)
