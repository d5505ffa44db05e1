package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/xraph/stride/id"
	"github.com/xraph/stride/unit"
)

// Pool manages a set of concurrent worker goroutines that poll the
// invocation queue and execute complete batch runs through the
// Executor. Concurrency only matters across distinct batch keys: runs
// for the same key serialize on the batch lock.
type Pool struct {
	store        unit.Store
	executor     *Executor
	concurrency  int
	pollInterval time.Duration
	limiter      *rate.Limiter
	workerID     id.WorkerID
	logger       *slog.Logger

	stopCh   chan struct{}
	baseCtx  context.Context
	baseStop context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool

	active   map[string]context.CancelFunc
	activeMu sync.Mutex
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolConcurrency sets the number of concurrent worker goroutines.
func WithPoolConcurrency(n int) PoolOption {
	return func(p *Pool) { p.concurrency = n }
}

// WithPollInterval sets how often idle workers poll for invocations.
func WithPollInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.pollInterval = d }
}

// WithRateLimit caps how many invocations per second the pool starts,
// shared across all workers. A zero limit disables rate limiting.
func WithRateLimit(limit rate.Limit, burst int) PoolOption {
	return func(p *Pool) {
		if limit > 0 {
			p.limiter = rate.NewLimiter(limit, burst)
		}
	}
}

// NewPool creates a worker pool.
func NewPool(store unit.Store, executor *Executor, logger *slog.Logger, opts ...PoolOption) *Pool {
	p := &Pool{
		store:        store,
		executor:     executor,
		concurrency:  7,
		pollInterval: time.Second,
		workerID:     id.NewWorkerID(),
		logger:       logger,
		stopCh:       make(chan struct{}),
		active:       make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WorkerID returns the pool's unique worker identifier.
func (p *Pool) WorkerID() id.WorkerID { return p.workerID }

// Start launches the worker goroutines. It returns immediately.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true
	// Stop closes stopCh, so a restarted pool needs a fresh one.
	p.stopCh = make(chan struct{})
	p.baseCtx, p.baseStop = context.WithCancel(context.Background())

	p.logger.Info("worker pool starting",
		slog.String("worker_id", p.workerID.String()),
		slog.Int("concurrency", p.concurrency),
		slog.String("queue", unit.QueueName),
	)

	for range p.concurrency {
		p.wg.Add(1)
		go p.dequeueLoop()
	}

	return nil
}

// Stop signals all workers to stop and waits for them to finish.
// If the context has a deadline, active runs are cancelled when time
// runs out; progress already checkpointed survives the cancellation.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.logger.Info("worker pool stopping", slog.String("worker_id", p.workerID.String()))

	close(p.stopCh)
	p.baseStop()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out, cancelling active runs")
		p.cancelActive()
		p.wg.Wait()
	}

	return nil
}

// dequeueLoop is run by each worker goroutine.
func (p *Pool) dequeueLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		if p.limiter != nil {
			if err := p.limiter.Wait(p.baseCtx); err != nil {
				return
			}
		}

		invs, err := p.store.DequeueInvocations(p.baseCtx, 1)
		if err != nil {
			if p.baseCtx.Err() != nil {
				return
			}
			p.logger.Error("dequeue error", slog.String("error", err.Error()))
			p.sleep()
			continue
		}

		if len(invs) == 0 {
			p.sleep()
			continue
		}

		inv := invs[0]

		ctx, cancel := context.WithCancel(context.Background())
		p.track(inv.ID.String(), cancel)

		if execErr := p.executor.Execute(ctx, inv); execErr != nil {
			p.logger.Debug("invocation failed",
				slog.String("invocation_id", inv.ID.String()),
				slog.String("batch_key", inv.Unit.Key()),
				slog.String("error", execErr.Error()),
			)
		}

		p.untrack(inv.ID.String())
		cancel()
	}
}

func (p *Pool) sleep() {
	select {
	case <-time.After(p.pollInterval):
	case <-p.stopCh:
	}
}

func (p *Pool) track(invID string, cancel context.CancelFunc) {
	p.activeMu.Lock()
	p.active[invID] = cancel
	p.activeMu.Unlock()
}

func (p *Pool) untrack(invID string) {
	p.activeMu.Lock()
	delete(p.active, invID)
	p.activeMu.Unlock()
}

func (p *Pool) cancelActive() {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	for invID, cancel := range p.active {
		p.logger.Warn("cancelling active invocation", slog.String("invocation_id", invID))
		cancel()
	}
}
