package pgpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

// Conn is the narrow surface of a backing-store connection leased from the
// pool. *pgx.Conn satisfies it; tests supply in-memory fakes.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// DialFunc establishes one new backing-store connection.
type DialFunc func(ctx context.Context) (Conn, error)

// Stats is a point-in-time snapshot of pool occupancy.
type Stats struct {
	Total   int
	Idle    int
	Active  int
	Waiting int
}

type pooledConn struct {
	conn      Conn
	idleSince time.Time
	lastPing  time.Time
}

// Pool owns a bounded set of backing-store connections with explicit
// acquire/release semantics. It is the process's only globally shared
// mutable resource: all store mutation flows through a leased [Conn].
//
// Capacity accounting: a token in slots represents room for one more live
// connection; idle holds established connections awaiting a lease. An
// acquire takes an idle connection when one exists and dials a new one
// under a capacity token otherwise.
type Pool struct {
	cfg  Config
	dial DialFunc
	log  zerolog.Logger

	idle  chan *pooledConn
	slots chan struct{}

	waiting atomic.Int64
	closed  atomic.Bool

	reapStop chan struct{}
	reapDone chan struct{}
	closeOne sync.Once
}

// New constructs a pool. Host resolution and TLS decisions happen here,
// once; no connections are established until [Pool.Warmup] or the first
// acquire.
func New(cfg Config, log zerolog.Logger) (*Pool, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dial := cfg.Dial
	if dial == nil {
		cc, err := prepareConnConfig(cfg)
		if err != nil {
			return nil, err
		}
		dial = func(ctx context.Context) (Conn, error) {
			return pgx.ConnectConfig(ctx, cc)
		}
	}

	p := &Pool{
		cfg:      cfg,
		dial:     dial,
		log:      log,
		idle:     make(chan *pooledConn, cfg.MaxConns),
		slots:    make(chan struct{}, cfg.MaxConns),
		reapStop: make(chan struct{}),
		reapDone: make(chan struct{}),
	}
	for i := 0; i < cfg.MaxConns; i++ {
		p.slots <- struct{}{}
	}

	go p.reapLoop()

	return p, nil
}

// Warmup eagerly establishes MinConns connections in parallel. A warmup
// failure is logged but does not abort construction: the pool degrades to
// dial-on-demand for the missing connections.
func (p *Pool) Warmup(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.MinConns; i++ {
		select {
		case <-p.slots:
		default:
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := p.dial(ctx)
			if err != nil {
				p.slots <- struct{}{}
				p.log.Warn().Err(err).Msg("pool warmup dial failed")
				return
			}
			now := time.Now()
			p.idle <- &pooledConn{conn: conn, idleSince: now, lastPing: now}
		}()
	}
	wg.Wait()

	s := p.Stats()
	p.log.Info().Int("established", s.Idle).Int("min", p.cfg.MinConns).Msg("pool warmup complete")
}

// Acquire leases a connection, waiting at most the per-acquire timeout (or
// the caller's earlier context deadline). Under saturation it fails fast
// with [ErrPoolExhausted] rather than queueing indefinitely; context
// expiry surfaces as [ErrAcquireTimeout]. It never leaves a connection
// checked out on the error path.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}

	// fast path: an idle connection is ready
	select {
	case pc := <-p.idle:
		return &Lease{pool: p, pc: pc}, nil
	default:
	}

	timer := time.NewTimer(p.cfg.AcquireTimeout)
	defer timer.Stop()

	p.waiting.Add(1)
	defer p.waiting.Add(-1)

	select {
	case pc := <-p.idle:
		return &Lease{pool: p, pc: pc}, nil
	case <-p.slots:
		return p.dialLeased(ctx)
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrAcquireTimeout, ctx.Err())
	case <-timer.C:
		return nil, ErrPoolExhausted
	}
}

func (p *Pool) dialLeased(ctx context.Context) (*Lease, error) {
	conn, err := p.dial(ctx)
	if err != nil {
		p.slots <- struct{}{}
		return nil, err
	}
	if p.closed.Load() {
		_ = conn.Close(context.Background())
		p.slots <- struct{}{}
		return nil, ErrPoolClosed
	}
	now := time.Now()
	return &Lease{pool: p, pc: &pooledConn{conn: conn, idleSince: now, lastPing: now}}, nil
}

// Stats returns current pool occupancy.
func (p *Pool) Stats() Stats {
	idle := len(p.idle)
	total := p.cfg.MaxConns - len(p.slots)
	return Stats{
		Total:   total,
		Idle:    idle,
		Active:  total - idle,
		Waiting: int(p.waiting.Load()),
	}
}

// Ping leases a connection and round-trips the backing store. Used by
// health checks.
func (p *Pool) Ping(ctx context.Context) error {
	lease, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	if err := lease.Conn().Ping(ctx); err != nil {
		lease.Discard()
		return err
	}
	lease.Release()
	return nil
}

// Close drains and closes all idle connections and stops the reaper.
// Connections leased at close time are closed when released.
func (p *Pool) Close() {
	p.closeOne.Do(func() {
		p.closed.Store(true)
		close(p.reapStop)
		<-p.reapDone

		for {
			select {
			case pc := <-p.idle:
				p.destroy(pc)
			default:
				return
			}
		}
	})
}

func (p *Pool) destroy(pc *pooledConn) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = pc.conn.Close(ctx)
	p.slots <- struct{}{}
}

func (p *Pool) release(pc *pooledConn) {
	if p.closed.Load() {
		p.destroy(pc)
		return
	}
	pc.idleSince = time.Now()
	p.idle <- pc
}

// reapLoop periodically closes connections idle past MaxConnIdleTime (down
// to MinConns) and keep-alive pings the survivors, discarding any that no
// longer respond.
func (p *Pool) reapLoop() {
	defer close(p.reapDone)

	tick := p.cfg.IdleReapInterval
	if p.cfg.KeepAliveInterval < tick {
		tick = p.cfg.KeepAliveInterval
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-p.reapStop:
			return
		case <-ticker.C:
			p.sweepIdle()
		}
	}
}

func (p *Pool) sweepIdle() {
	now := time.Now()

	var batch []*pooledConn
	for {
		select {
		case pc := <-p.idle:
			batch = append(batch, pc)
		default:
			goto drained
		}
	}
drained:

	for _, pc := range batch {
		total := p.cfg.MaxConns - len(p.slots)
		if total > p.cfg.MinConns && now.Sub(pc.idleSince) > p.cfg.MaxConnIdleTime {
			p.destroy(pc)
			continue
		}

		if now.Sub(pc.lastPing) > p.cfg.KeepAliveInterval {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			err := pc.conn.Ping(ctx)
			cancel()
			if err != nil {
				p.log.Warn().Err(err).Msg("idle connection failed keepalive, discarding")
				p.destroy(pc)
				continue
			}
			pc.lastPing = now
		}

		p.idle <- pc
	}
}

// Lease is an exclusively owned connection handle. Exactly one of
// [Lease.Release] or [Lease.Discard] must be called; both are idempotent.
type Lease struct {
	pool *Pool
	pc   *pooledConn
	done atomic.Bool
}

// Conn exposes the leased connection.
func (l *Lease) Conn() Conn {
	return l.pc.conn
}

// Release returns a healthy connection to the pool.
func (l *Lease) Release() {
	if l.done.Swap(true) {
		return
	}
	l.pool.release(l.pc)
}

// Discard closes a connection that errored during use instead of returning
// it to the pool.
func (l *Lease) Discard() {
	if l.done.Swap(true) {
		return
	}
	l.pool.destroy(l.pc)
}
