package session

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper periodically deletes expired session rows so the session table
// cannot grow without bound.
type Sweeper struct {
	store    Store
	interval time.Duration
	log      zerolog.Logger

	stop chan struct{}
	done chan struct{}
}

// NewSweeper creates a sweeper over the given store. A non-positive
// interval defaults to ten minutes.
func NewSweeper(store Store, interval time.Duration, log zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		log:      log,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop.
func (s *Sweeper) Start() {
	go s.run()
}

// Stop halts the loop and waits for the in-flight sweep, if any.
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Sweeper) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			removed, err := s.store.DeleteExpired(ctx)
			cancel()
			if err != nil {
				s.log.Warn().Err(err).Msg("session expiry sweep failed")
				continue
			}
			if removed > 0 {
				s.log.Debug().Int("removed", removed).Msg("session expiry sweep")
			}
		}
	}
}
