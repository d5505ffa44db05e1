// Package keeper provides batch housekeeping: pruning checkpoint
// records that have aged out of the retention window and re-submitting
// registered batches that never reached a finish. One keeper runs per
// cluster at a time, gated by a dedicated housekeeping lock.
package keeper

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	stride "github.com/xraph/stride"
	"github.com/xraph/stride/lock"
	"github.com/xraph/stride/record"
	"github.com/xraph/stride/unit"
)

// lockSuffix names the housekeeping lock among the batch locks.
const lockSuffix = "keeper"

// Submitter enqueues a unit for execution. retry.Dispatcher satisfies
// this interface.
type Submitter interface {
	Submit(ctx context.Context, u *unit.Unit, attempt int) (time.Time, error)
}

// Keeper periodically cleans aged checkpoint records and re-submits
// unfinished registered batches.
type Keeper struct {
	records   record.Store
	locks     lock.Store
	submitter Submitter
	logger    *slog.Logger

	retention time.Duration
	interval  time.Duration
	lockTTL   time.Duration
	owner     string
	now       func() time.Time

	mu      sync.Mutex
	units   []unit.Unit
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
}

// Option configures a Keeper.
type Option func(*Keeper)

// WithRetention sets how long records are kept after their last
// update.
func WithRetention(d time.Duration) Option {
	return func(k *Keeper) { k.retention = d }
}

// WithInterval sets how often housekeeping runs.
func WithInterval(d time.Duration) Option {
	return func(k *Keeper) { k.interval = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(k *Keeper) { k.now = now }
}

// New creates a Keeper. owner identifies this node when competing for
// the housekeeping lock.
func New(records record.Store, locks lock.Store, submitter Submitter, owner string, logger *slog.Logger, opts ...Option) *Keeper {
	k := &Keeper{
		records:   records,
		locks:     locks,
		submitter: submitter,
		logger:    logger,
		retention: 4 * time.Hour,
		interval:  10 * time.Minute,
		lockTTL:   time.Minute,
		owner:     owner,
		now:       func() time.Time { return time.Now().UTC() },
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Register adds a unit to the set Check re-submits when unfinished.
func (k *Keeper) Register(u unit.Unit) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.units = append(k.units, u)
}

// Clean deletes checkpoint records whose last update is older than the
// retention window. A deleted record is recreated from zero on the next
// run of its batch.
func (k *Keeper) Clean(ctx context.Context) error {
	cutoff := k.now().Add(-k.retention)

	records, err := k.records.ListRecords(ctx)
	if err != nil {
		return err
	}

	for _, r := range records {
		if !r.UpdatedAt.Before(cutoff) {
			continue
		}
		if err := k.records.DeleteRecord(ctx, r.Key); err != nil {
			if errors.Is(err, stride.ErrRecordNotFound) {
				continue
			}
			return err
		}
		k.logger.Info("cleaned aged batch record",
			slog.String("batch_key", r.Key),
			slog.Time("updated_at", r.UpdatedAt),
		)
	}
	return nil
}

// Check re-submits every registered unit whose checkpoint record is
// missing or lacks a finish stamp. Idempotent re-processing makes an
// extra submission for an already-running batch harmless: it blocks on
// the batch lock and resumes at the fixed point.
func (k *Keeper) Check(ctx context.Context) error {
	k.mu.Lock()
	units := make([]unit.Unit, len(k.units))
	copy(units, k.units)
	k.mu.Unlock()

	for i := range units {
		u := &units[i]

		r, err := k.records.GetRecord(ctx, u.Key())
		if err != nil && !errors.Is(err, stride.ErrRecordNotFound) {
			return err
		}
		if r != nil && r.Finished() {
			continue
		}

		if _, err := k.submitter.Submit(ctx, u, 0); err != nil {
			k.logger.Error("failed to re-submit unfinished batch",
				slog.String("batch_key", u.Key()),
				slog.String("error", err.Error()),
			)
			continue
		}
		k.logger.Info("re-submitted unfinished batch", slog.String("batch_key", u.Key()))
	}
	return nil
}

// Start launches the housekeeping loop. It returns immediately.
func (k *Keeper) Start(_ context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.running {
		return nil
	}
	k.running = true

	k.wg.Add(1)
	go k.loop()
	return nil
}

// Stop signals the loop to stop and waits for it to finish.
func (k *Keeper) Stop(_ context.Context) error {
	k.mu.Lock()
	if !k.running {
		k.mu.Unlock()
		return nil
	}
	k.running = false
	k.mu.Unlock()

	close(k.stopCh)
	k.wg.Wait()
	return nil
}

func (k *Keeper) loop() {
	defer k.wg.Done()

	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	for {
		select {
		case <-k.stopCh:
			return
		case <-ticker.C:
			k.tick(context.Background())
		}
	}
}

// tick runs one housekeeping cycle if this node wins the keeper lock.
func (k *Keeper) tick(ctx context.Context) {
	ok, err := k.locks.AcquireLock(ctx, record.LockKey(lockSuffix), k.owner, k.lockTTL)
	if err != nil {
		k.logger.Error("keeper lock error", slog.String("error", err.Error()))
		return
	}
	if !ok {
		return // another node is doing housekeeping
	}
	defer func() {
		if relErr := k.locks.ReleaseLock(ctx, record.LockKey(lockSuffix), k.owner); relErr != nil {
			k.logger.Warn("keeper lock release failed", slog.String("error", relErr.Error()))
		}
	}()

	if err := k.Clean(ctx); err != nil {
		k.logger.Error("clean failed", slog.String("error", err.Error()))
	}
	if err := k.Check(ctx); err != nil {
		k.logger.Error("check failed", slog.String("error", err.Error()))
	}
}
