package pgpool

import "errors"

var (
	// ErrPoolExhausted is returned when all connections are leased and none
	// became available within the per-acquire timeout.
	ErrPoolExhausted = errors.New("connection pool exhausted")
	// ErrAcquireTimeout is returned when the caller's context expired or was
	// canceled while waiting for a connection.
	ErrAcquireTimeout = errors.New("connection acquire timeout")
	// ErrPoolClosed is returned for operations on a closed pool.
	ErrPoolClosed = errors.New("connection pool closed")
)
