// Command authd runs the tripcents authentication service.
//
// Configuration is environment-driven; a .env file in the working directory
// is loaded when present. With DATABASE_URL set, sessions persist in
// Postgres through the managed connection pool; without it the service runs
// on the in-memory store and is suitable for development only.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	authcore "github.com/tripcents/authcore"
	"github.com/tripcents/authcore/httpd"
	"github.com/tripcents/authcore/internal/rate"
	"github.com/tripcents/authcore/metrics/export/prometheus"
	"github.com/tripcents/authcore/password"
	"github.com/tripcents/authcore/pgpool"
	"github.com/tripcents/authcore/session"
	"github.com/tripcents/authcore/users"
)

func main() {
	_ = godotenv.Load()

	log := newLogger()

	if err := run(log); err != nil {
		log.Fatal().Err(err).Msg("authd exited")
	}
}

func run(log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	signingKey := os.Getenv("AUTH_SIGNING_KEY")
	if signingKey == "" {
		return errors.New("AUTH_SIGNING_KEY is required (32+ bytes)")
	}

	cfg := authcore.DefaultConfig()
	cfg.JWT.SigningKey = []byte(signingKey)
	cfg.JWT.Issuer = envString("AUTH_ISSUER", cfg.JWT.Issuer)
	cfg.JWT.AccessTTL = envDuration("AUTH_ACCESS_TTL", cfg.JWT.AccessTTL)
	cfg.JWT.RefreshTTL = envDuration("AUTH_REFRESH_TTL", cfg.JWT.RefreshTTL)
	cfg.Session.SlidingExpiration = envBool("AUTH_SLIDING_SESSIONS", false)
	cfg.RateLimit.Enabled = envBool("AUTH_RATE_LIMIT", true)
	cfg.Metrics.Enabled = envBool("AUTH_METRICS", true)
	cfg.Metrics.EnableLatencyHistograms = envBool("AUTH_METRICS_LATENCY", false)

	builder := authcore.New().
		WithConfig(cfg).
		WithLogger(log)

	// Session persistence: Postgres when configured, in-memory otherwise.
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		poolCfg := pgpool.DevelopmentConfig()
		if envString("AUTH_ENV", "development") == "production" {
			poolCfg = pgpool.ProductionConfig()
		}
		poolCfg.DSN = dsn
		poolCfg.MinConns = envInt("PG_MIN_CONNS", poolCfg.MinConns)
		poolCfg.MaxConns = envInt("PG_MAX_CONNS", poolCfg.MaxConns)
		poolCfg.AcquireTimeout = envDuration("PG_ACQUIRE_TIMEOUT", poolCfg.AcquireTimeout)

		pool, err := pgpool.New(poolCfg, log)
		if err != nil {
			return err
		}
		defer pool.Close()
		pool.Warmup(ctx)

		store := session.NewPGStore(pool, log)
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		builder = builder.WithPool(pool).WithSessionStore(store)
	} else {
		log.Warn().Msg("DATABASE_URL not set, sessions are in-memory and will not survive a restart")
		builder = builder.WithSessionStore(session.NewMemStore())
	}

	var limiter rate.Limiter
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: os.Getenv("REDIS_PASSWORD"),
		})
		defer rdb.Close()
		builder = builder.WithRedis(rdb)
		limiter = rate.NewRedisLimiter(rdb)
	} else {
		log.Warn().Msg("REDIS_ADDR not set, rate limiting is per-process only")
		limiter = rate.NewMemoryLimiter()
	}

	hasher, err := password.NewArgon2(password.DefaultConfig())
	if err != nil {
		return err
	}
	builder = builder.WithUserProvider(users.NewMemProvider(hasher))

	engine, err := builder.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		metricsHandler = prometheus.NewPrometheusExporter(engine).Handler()
	}

	server := httpd.NewServer(httpd.Config{
		Addr: envString("HTTP_ADDR", ":8080"),
	}, engine, limiter, log, metricsHandler)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	return server.Shutdown(context.Background())
}

func newLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(envString("LOG_LEVEL", "info"))
	if err != nil {
		level = zerolog.InfoLevel
	}

	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	if envBool("LOG_PRETTY", false) {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return logger
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
