// Package engine wires all Stride subsystems together. It creates the
// unit registry, extension registry, notifier, retry dispatcher,
// middleware chain, worker pool and keeper, and provides the
// Register/Submit/Execute operations.
//
// This package exists to break the import cycle: the root stride
// package defines the Service handle (held by callers) and so cannot
// import the subsystem packages back. The engine package sits above
// all subsystem packages and below the application layer.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/xraph/stride"
	"github.com/xraph/stride/backoff"
	"github.com/xraph/stride/ext"
	"github.com/xraph/stride/id"
	"github.com/xraph/stride/keeper"
	"github.com/xraph/stride/lock"
	mw "github.com/xraph/stride/middleware"
	"github.com/xraph/stride/notify"
	"github.com/xraph/stride/observability"
	"github.com/xraph/stride/record"
	"github.com/xraph/stride/retry"
	"github.com/xraph/stride/unit"
	"github.com/xraph/stride/worker"
)

// Engine wraps a Service with typed subsystem access.
// Use Build() to create one from a Service.
type Engine struct {
	svc        *stride.Service
	extensions *ext.Registry
	registry   *unit.Registry
	notifier   *notify.Notifier
	retrier    *retry.Dispatcher
	runner     *Runner
	pool       *worker.Pool
	keeper     *keeper.Keeper
	logger     *slog.Logger

	bo         backoff.Strategy
	sink       notify.Sink
	mws        []mw.Middleware
	runnerOpts []RunnerOption

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) {
		eng.extensions.Register(e)
	}
}

// WithMiddleware adds middleware to the engine's chain.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithBackoff sets the re-enqueue backoff strategy for failed runs.
// If not set, backoff.Default() (exponential with jitter) is used.
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) {
		eng.bo = b
	}
}

// WithNotificationSink sets the delivery sink for milestone
// notifications. If not set, rendered messages are logged only.
func WithNotificationSink(s notify.Sink) Option {
	return func(eng *Engine) {
		eng.sink = s
	}
}

// WithRunnerOptions forwards options to the Runner built by Build.
func WithRunnerOptions(opts ...RunnerOption) Option {
	return func(eng *Engine) {
		eng.runnerOpts = append(eng.runnerOpts, opts...)
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// When set, the tracing middleware uses this provider instead of the
// global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for the engine.
// When set, both the metrics middleware and the observability extension
// use this provider instead of the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// Build creates an Engine from an existing Service.
// The Service's store must implement the record, lock and unit store
// interfaces; the composite store.Store does.
func Build(svc *stride.Service, opts ...Option) (*Engine, error) {
	logger := svc.Logger()
	st := svc.Store()

	if st == nil {
		return nil, stride.ErrNoStore
	}

	rs, ok := st.(record.Store)
	if !ok {
		return nil, fmt.Errorf("stride: store does not implement record.Store")
	}
	ls, ok := st.(lock.Store)
	if !ok {
		return nil, fmt.Errorf("stride: store does not implement lock.Store")
	}
	us, ok := st.(unit.Store)
	if !ok {
		return nil, fmt.Errorf("stride: store does not implement unit.Store")
	}

	eng := &Engine{
		svc:        svc,
		extensions: ext.NewRegistry(logger),
		registry:   unit.NewRegistry(),
		logger:     logger,
	}

	for _, opt := range opts {
		opt(eng)
	}

	if eng.bo == nil {
		eng.bo = backoff.Default()
	}

	config := svc.Config()

	// Create the notifier.
	notifyOpts := []notify.Option{}
	if eng.sink != nil {
		notifyOpts = append(notifyOpts, notify.WithSink(eng.sink))
	}
	eng.notifier = notify.New(logger, notifyOpts...)

	// Create the retry dispatcher.
	eng.retrier = retry.New(us, logger,
		retry.WithStrategy(eng.bo),
		retry.WithMaxAttempts(config.MaxAttempts),
	)

	// Create the runner.
	runnerOpts := []RunnerOption{
		WithLockTTL(config.LockTTL),
		WithChunkTimeout(config.ChunkTimeout),
		WithRetrier(eng.retrier),
	}
	runnerOpts = append(runnerOpts, eng.runnerOpts...)
	eng.runner = NewRunner(rs, ls, eng.registry, eng.notifier, eng.extensions, logger, runnerOpts...)

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracer := eng.tracerProvider.Tracer("github.com/xraph/stride")
		tracingMw = mw.TracingWithTracer(tracer)
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/xraph/stride")
		metricsMw = mw.MetricsWithMeter(meter)
	} else {
		metricsMw = mw.Metrics()
	}

	// Register the observability metrics extension.
	var obsExt *observability.Metrics
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/xraph/stride/observability")
		obsExt = observability.NewMetricsWithMeter(meter)
	} else {
		obsExt = observability.NewMetrics()
	}
	eng.extensions.Register(obsExt)

	// Build default middleware stack: recover → tracing → metrics →
	// logging → timeout.
	defaultMws := []mw.Middleware{
		mw.Recover(logger),
		tracingMw,
		metricsMw,
		mw.Logging(logger),
	}
	if config.CompleteTimeout > 0 {
		defaultMws = append(defaultMws, mw.Timeout(config.CompleteTimeout, logger))
	}
	allMws := make([]mw.Middleware, 0, len(defaultMws)+len(eng.mws))
	allMws = append(allMws, defaultMws...)
	allMws = append(allMws, eng.mws...)

	// Create executor and pool.
	executor := worker.NewExecutor(eng.runner, logger, allMws...)

	poolOpts := []worker.PoolOption{
		worker.WithPoolConcurrency(config.Concurrency),
		worker.WithPollInterval(config.PollInterval),
	}
	if config.RateLimit > 0 {
		burst := config.RateBurst
		if burst <= 0 {
			burst = 1
		}
		poolOpts = append(poolOpts, worker.WithRateLimit(rate.Limit(config.RateLimit), burst))
	}
	eng.pool = worker.NewPool(us, executor, logger, poolOpts...)

	// Create the keeper. Its housekeeping lock is owned by this node.
	eng.keeper = keeper.New(rs, ls, eng.retrier, id.NewWorkerID().String(), logger)

	// Wire back into the Service.
	svc.SetPool(eng)
	svc.SetExtensions(eng.extensions)

	return eng, nil
}

// Register registers a handler implementation under a name that units
// reference through their Handler field.
func (eng *Engine) Register(name string, h unit.Handler) {
	eng.registry.Register(name, h)
}

// Watch registers a unit with the keeper so housekeeping re-submits it
// whenever its checkpoint record is missing or unfinished.
func (eng *Engine) Watch(u unit.Unit) {
	eng.keeper.Register(u)
}

// Submit enqueues a first-attempt invocation for the unit and returns
// when it becomes due. A consuming worker picks it up on its next poll.
func (eng *Engine) Submit(ctx context.Context, u *unit.Unit) (time.Time, error) {
	return eng.retrier.Submit(ctx, u, 0)
}

// Execute runs the unit synchronously in the calling goroutine: it
// acquires the batch lock, drives partial executions to the fixed
// point, and finishes or re-enqueues. Milestone extensions and
// notifications fire as during queued execution.
func (eng *Engine) Execute(ctx context.Context, u *unit.Unit) error {
	return eng.runner.ExecuteComplete(ctx, u, 0)
}

// ExecutePartial runs one chunk of the unit and returns the advanced
// cursor.
func (eng *Engine) ExecutePartial(ctx context.Context, u *unit.Unit) (string, error) {
	return eng.runner.ExecutePartial(ctx, u)
}

// Start begins invocation processing by starting the worker pool and
// the keeper loop. The Service's Start delegates here via SetPool.
func (eng *Engine) Start(ctx context.Context) error {
	if err := eng.pool.Start(ctx); err != nil {
		return err
	}
	return eng.keeper.Start(ctx)
}

// Stop gracefully shuts down the engine: the keeper stops first so no
// new invocations are re-submitted while the pool drains.
func (eng *Engine) Stop(ctx context.Context) error {
	if err := eng.keeper.Stop(ctx); err != nil {
		eng.logger.Error("keeper stop error", slog.String("error", err.Error()))
	}
	return eng.pool.Stop(ctx)
}

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Registry returns the unit handler registry.
func (eng *Engine) Registry() *unit.Registry { return eng.registry }

// Runner returns the execution runner.
func (eng *Engine) Runner() *Runner { return eng.runner }

// Keeper returns the housekeeping keeper.
func (eng *Engine) Keeper() *keeper.Keeper { return eng.keeper }

// Notifier returns the milestone notifier.
func (eng *Engine) Notifier() *notify.Notifier { return eng.notifier }

// Service returns the underlying Service.
func (eng *Engine) Service() *stride.Service { return eng.svc }
