package lock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/stride/backoff"
)

// Handle represents a held lock. Release must be called on every exit
// path; it is safe to call more than once.
type Handle struct {
	store  Store
	key    string
	owner  string
	logger *slog.Logger

	stopCh   chan struct{}
	wg       sync.WaitGroup
	released sync.Once
}

// Acquire blocks until the lock for key is taken on behalf of owner,
// waiting between attempts according to the given strategy, or until
// ctx is done. On success it starts a background goroutine renewing the
// lock at half the TTL so long-running batches stay exclusive.
func Acquire(ctx context.Context, s Store, key, owner string, ttl time.Duration, wait backoff.Strategy, logger *slog.Logger) (*Handle, error) {
	if wait == nil {
		wait = backoff.Default()
	}

	for attempt := 1; ; attempt++ {
		ok, err := s.AcquireLock(ctx, key, owner, ttl)
		if err != nil {
			return nil, fmt.Errorf("stride/lock: acquire %q: %w", key, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("stride/lock: acquire %q: %w", key, ctx.Err())
		case <-time.After(wait(attempt)):
		}
	}

	h := &Handle{
		store:  s,
		key:    key,
		owner:  owner,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	h.wg.Add(1)
	go h.renewLoop(ttl)

	return h, nil
}

// renewLoop extends the TTL at half-life intervals until Release.
func (h *Handle) renewLoop(ttl time.Duration) {
	defer h.wg.Done()

	interval := ttl / 2
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			ok, err := h.store.RenewLock(context.Background(), h.key, h.owner, ttl)
			if err != nil {
				h.logger.Warn("lock renew error",
					slog.String("key", h.key),
					slog.String("error", err.Error()),
				)
				continue
			}
			if !ok {
				// Lost the lock: expired or taken over. The current
				// run keeps going; the checkpoint protocol tolerates
				// the overlap because execute is idempotent.
				h.logger.Warn("lock no longer held", slog.String("key", h.key))
			}
		}
	}
}

// Release stops renewal and drops the lock. Errors from the store are
// logged, not returned: release runs on every exit path, including
// ones already carrying the run's original error.
func (h *Handle) Release(ctx context.Context) {
	h.released.Do(func() {
		close(h.stopCh)
		h.wg.Wait()

		if err := h.store.ReleaseLock(ctx, h.key, h.owner); err != nil {
			h.logger.Warn("lock release error",
				slog.String("key", h.key),
				slog.String("error", err.Error()),
			)
		}
	})
}
