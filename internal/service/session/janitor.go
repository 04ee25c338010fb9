package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultSweepInterval is used when the janitor is given a non-positive interval.
const DefaultSweepInterval = time.Minute

// Janitor periodically reclaims idle sessions from a Store.
type Janitor struct {
	store    *Store
	interval time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewJanitor creates a janitor for store.
func NewJanitor(store *Store, interval time.Duration, logger zerolog.Logger) *Janitor {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Janitor{
		store:    store,
		interval: interval,
		logger:   logger.With().Str("component", "session.janitor").Logger(),
	}
}

// Start begins sweeping in the background. It is a no-op if already running.
func (j *Janitor) Start(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.done = make(chan struct{})
	j.running = true

	go j.run(runCtx, j.done)
}

// Stop cancels the background loop and waits for it to exit.
func (j *Janitor) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	cancel, done := j.cancel, j.done
	j.mu.Unlock()

	cancel()
	<-done
}

func (j *Janitor) run(ctx context.Context, done chan struct{}) {
	defer func() {
		j.mu.Lock()
		j.running = false
		close(done)
		j.mu.Unlock()
	}()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			start := time.Now()
			if removed := j.store.Sweep(now); removed > 0 {
				j.logger.Info().
					Int("removed", removed).
					Int("remaining", j.store.Len()).
					Dur("duration", time.Since(start)).
					Msg("swept idle sessions")
			}
		}
	}
}
