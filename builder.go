package authcore

import (
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/tripcents/authcore/internal/rate"
	"github.com/tripcents/authcore/jwt"
	"github.com/tripcents/authcore/pgpool"
	"github.com/tripcents/authcore/session"
)

// Builder defines a public type used by authcore APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config

	redis redis.UniversalClient
	pool  *pgpool.Pool
	store session.Store

	userProvider UserProvider

	logger    zerolog.Logger
	loggerSet bool

	built bool
}

// New describes the new operation and its observable behavior.
//
// New may return an error when input validation, dependency calls, or security checks fail.
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig may return an error when input validation, dependency calls, or security checks fail.
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the Redis client backing the rate limiter. Without it
// the engine falls back to in-process fixed windows.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithPool supplies the Postgres connection pool backing the session store.
// The builder does not take ownership; callers close the pool themselves.
func (b *Builder) WithPool(pool *pgpool.Pool) *Builder {
	b.pool = pool
	return b
}

// WithSessionStore overrides the session store. Takes precedence over
// [Builder.WithPool]; intended for in-memory deployments and tests.
func (b *Builder) WithSessionStore(store session.Store) *Builder {
	b.store = store
	return b
}

// WithUserProvider describes the withuserprovider operation and its observable behavior.
//
// WithUserProvider may return an error when input validation, dependency calls, or security checks fail.
// WithUserProvider does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithLogger describes the withlogger operation and its observable behavior.
//
// WithLogger may return an error when input validation, dependency calls, or security checks fail.
// WithLogger does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithLogger(log zerolog.Logger) *Builder {
	b.logger = log
	b.loggerSet = true
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled may return an error when input validation, dependency calls, or security checks fail.
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
// Build does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.userProvider == nil {
		return nil, errors.New("user provider required")
	}

	log := b.logger
	if !b.loggerSet {
		log = zerolog.Nop()
	}

	// -------- SESSION STORE --------
	store := b.store
	if store == nil {
		if b.pool == nil {
			return nil, errors.New("session store or connection pool required")
		}
		store = session.NewPGStore(b.pool, log)
	}

	// -------- TOKEN MANAGER --------
	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:  cfg.JWT.AccessTTL,
		RefreshTTL: cfg.JWT.RefreshTTL,
		SigningKey: cloneBytes(cfg.JWT.SigningKey),
		Issuer:     cfg.JWT.Issuer,
		Leeway:     cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	// -------- RATE LIMITER --------
	var limiter rate.Limiter
	if cfg.RateLimit.Enabled {
		if b.redis != nil {
			limiter = rate.NewRedisLimiter(b.redis)
		} else {
			limiter = rate.NewMemoryLimiter()
		}
	}

	engine := &Engine{
		config:       cfg,
		log:          log,
		sessionStore: store,
		pool:         b.pool,
		limiter:      limiter,
		jwtManager:   jm,
		metrics:      NewMetrics(cfg.Metrics),
		userProvider: b.userProvider,
	}

	if cfg.Session.SweepInterval > 0 {
		engine.sweeper = session.NewSweeper(store, cfg.Session.SweepInterval, log)
		engine.sweeper.Start()
	}

	b.built = true

	return engine, nil
}
