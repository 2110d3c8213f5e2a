package pgpool

import (
	"errors"
	"time"
)

// TLSMode selects how the pool negotiates TLS with the backing store.
type TLSMode int

const (
	// TLSAuto enables strictly-validated TLS whenever the resolved host is
	// not a loopback or private address. This is the default.
	TLSAuto TLSMode = iota
	// TLSDisable never negotiates TLS.
	TLSDisable
	// TLSInsecure negotiates TLS but skips certificate validation. Explicit
	// opt-in only, never implicit.
	TLSInsecure
)

// Config defines a public type used by authcore APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	DSN string

	MinConns int
	MaxConns int

	AcquireTimeout    time.Duration
	MaxConnIdleTime   time.Duration
	IdleReapInterval  time.Duration
	KeepAliveInterval time.Duration
	QueryTimeout      time.Duration

	TLS TLSMode

	// Dial overrides the default pgx connector. Used by tests and by
	// deployments that need custom connection establishment.
	Dial DialFunc
}

// DevelopmentConfig returns the pool sizing used outside production: a
// small pool that keeps local databases and CI instances light.
func DevelopmentConfig() Config {
	return Config{
		MinConns:       2,
		MaxConns:       10,
		AcquireTimeout: 5 * time.Second,
	}
}

// ProductionConfig returns the production pool sizing. More connections
// stay warm and acquires fail faster, so a saturated replica sheds load
// instead of queueing it.
func ProductionConfig() Config {
	return Config{
		MinConns:       8,
		MaxConns:       40,
		AcquireTimeout: 3 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	if c.MinConns <= 0 {
		c.MinConns = 2
	}
	if c.MaxConns <= 0 {
		c.MaxConns = 10
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 5 * time.Second
	}
	if c.MaxConnIdleTime <= 0 {
		c.MaxConnIdleTime = 5 * time.Minute
	}
	if c.IdleReapInterval <= 0 {
		c.IdleReapInterval = time.Minute
	}
	if c.KeepAliveInterval <= 0 {
		c.KeepAliveInterval = 30 * time.Second
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = 10 * time.Second
	}
}

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation fails.
func (c *Config) Validate() error {
	if c.DSN == "" && c.Dial == nil {
		return errors.New("pgpool: DSN or Dial required")
	}
	if c.MinConns > c.MaxConns {
		return errors.New("pgpool: MinConns must be <= MaxConns")
	}
	switch c.TLS {
	case TLSAuto, TLSDisable, TLSInsecure:
	default:
		return errors.New("pgpool: invalid TLS mode")
	}
	return nil
}
