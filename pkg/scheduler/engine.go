package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/apmfree78/snipper-sub000/internal/metrics"
	"github.com/apmfree78/snipper-sub000/pkg/config"
	"github.com/apmfree78/snipper-sub000/pkg/registry"
	"github.com/apmfree78/snipper-sub000/pkg/token"
)

// ChainSubscriber streams block headers and logs.
type ChainSubscriber interface {
	SubscribeNewBlocks(ctx context.Context) (<-chan *types.Header, <-chan error)
	SubscribeLogs(ctx context.Context, query geth.FilterQuery) (<-chan types.Log, <-chan error)
}

// LogHandler consumes pool creation logs.
type LogHandler interface {
	Handle(ctx context.Context, log types.Log) error
}

// Sweeper runs one lifecycle sweep.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) <-chan Outcome
}

// Engine wires the detection stream and the per-block sweep together.
type Engine struct {
	cfg      config.SchedulerConfig
	chain    ChainSubscriber
	query    geth.FilterQuery
	detector LogHandler
	sweeper  Sweeper
	registry *registry.Registry
	now      func() time.Time
	logger   *zap.Logger

	started     atomic.Bool
	detecting   atomic.Bool
	following   atomic.Bool
	lastBlock   atomic.Uint64
	failureRate atomic.Uint64 // math.Float64bits

	cancel context.CancelFunc
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewEngine creates a new scheduler engine
func NewEngine(
	cfg config.SchedulerConfig,
	chain ChainSubscriber,
	query geth.FilterQuery,
	detector LogHandler,
	sweeper Sweeper,
	reg *registry.Registry,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		cfg:      cfg,
		chain:    chain,
		query:    query,
		detector: detector,
		sweeper:  sweeper,
		registry: reg,
		now:      time.Now,
		logger:   logger,
	}
}

// Start launches the detection processor and the block loop.
func (e *Engine) Start(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return fmt.Errorf("engine already started")
	}
	e.logger.Info("Starting scheduler engine",
		zap.Int("factories", len(e.query.Addresses)))

	ctx, e.cancel = context.WithCancel(ctx)
	e.stopCh = make(chan struct{})

	logs, logErrs := e.chain.SubscribeLogs(ctx, e.query)
	headers, headerErrs := e.chain.SubscribeNewBlocks(ctx)
	e.detecting.Store(true)
	e.following.Store(true)

	e.wg.Add(2)
	go e.processLogs(ctx, logs, logErrs)
	go e.processBlocks(ctx, headers, headerErrs)

	e.logger.Info("Scheduler engine started")
	return nil
}

// Stop cancels the streams and waits for in-flight sweeps to drain.
func (e *Engine) Stop() {
	if !e.started.Load() {
		return
	}
	e.logger.Info("Stopping scheduler engine")
	close(e.stopCh)
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	e.detecting.Store(false)
	e.following.Store(false)
	e.started.Store(false)
	e.logger.Info("Scheduler engine stopped")
}

// Ready reports whether the engine runs, has seen at least one block and
// both chain streams are subscribed.
func (e *Engine) Ready() bool {
	return e.started.Load() && e.lastBlock.Load() > 0 &&
		e.detecting.Load() && e.following.Load()
}

// LastBlock is the number of the last block that triggered a sweep.
func (e *Engine) LastBlock() uint64 {
	return e.lastBlock.Load()
}

// LastFailureRate is the failed task ratio of the most recently drained sweep.
func (e *Engine) LastFailureRate() float64 {
	return math.Float64frombits(e.failureRate.Load())
}

var errStreamClosed = errors.New("stream closed")

func (e *Engine) processLogs(ctx context.Context, logs <-chan types.Log, errs <-chan error) {
	defer e.wg.Done()
	delay := e.resubscribeDelay()
	for {
		delivered, err := consume(ctx, e.stopCh, logs, errs, func(log types.Log) {
			if log.Removed {
				return
			}
			if err := e.detector.Handle(ctx, log); err != nil {
				e.logger.Warn("Failed to process pool creation log",
					zap.String("tx_hash", log.TxHash.Hex()),
					zap.Uint64("block", log.BlockNumber),
					zap.Error(err))
				metrics.ErrorsTotal.WithLabelValues("detector", "processing").Inc()
			}
		})
		if err == nil {
			return
		}
		e.detecting.Store(false)
		e.logger.Error("Log stream failed, resubscribing",
			zap.Duration("backoff", delay), zap.Error(err))
		metrics.ErrorsTotal.WithLabelValues("detector", "stream").Inc()

		if delivered {
			delay = e.resubscribeDelay()
		}
		if !e.backoff(ctx, delay) {
			return
		}
		delay = e.nextDelay(delay)

		logs, errs = e.chain.SubscribeLogs(ctx, e.query)
		e.detecting.Store(true)
		e.logger.Info("Log stream resubscribed")
	}
}

func (e *Engine) processBlocks(ctx context.Context, headers <-chan *types.Header, errs <-chan error) {
	defer e.wg.Done()
	delay := e.resubscribeDelay()
	for {
		delivered, err := consume(ctx, e.stopCh, headers, errs, func(header *types.Header) {
			e.onBlock(ctx, header)
		})
		if err == nil {
			return
		}
		e.following.Store(false)
		e.logger.Error("Block stream failed, resubscribing",
			zap.Duration("backoff", delay), zap.Error(err))
		metrics.ErrorsTotal.WithLabelValues("scheduler", "stream").Inc()

		if delivered {
			delay = e.resubscribeDelay()
		}
		if !e.backoff(ctx, delay) {
			return
		}
		delay = e.nextDelay(delay)

		headers, errs = e.chain.SubscribeNewBlocks(ctx)
		e.following.Store(true)
		e.logger.Info("Block stream resubscribed")
	}
}

// consume hands every item to handle until the stream ends. It returns a nil
// error only when the engine is stopping.
func consume[T any](ctx context.Context, stop <-chan struct{}, items <-chan T, errs <-chan error, handle func(T)) (bool, error) {
	delivered := false
	for {
		select {
		case item, ok := <-items:
			if !ok {
				return delivered, stopped(ctx, stop, errStreamClosed)
			}
			delivered = true
			handle(item)
		case err, ok := <-errs:
			if !ok || err == nil {
				err = errStreamClosed
			}
			return delivered, stopped(ctx, stop, err)
		case <-stop:
			return delivered, nil
		case <-ctx.Done():
			return delivered, nil
		}
	}
}

func stopped(ctx context.Context, stop <-chan struct{}, err error) error {
	select {
	case <-stop:
		return nil
	case <-ctx.Done():
		return nil
	default:
		return err
	}
}

// backoff waits d and reports false when the engine stops first.
func (e *Engine) backoff(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-e.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

func (e *Engine) resubscribeDelay() time.Duration {
	if e.cfg.ResubscribeDelay <= 0 {
		return time.Second
	}
	return e.cfg.ResubscribeDelay
}

func (e *Engine) nextDelay(d time.Duration) time.Duration {
	d *= 2
	if limit := e.cfg.MaxResubscribeDelay; limit > 0 && d > limit {
		return limit
	}
	return d
}

// onBlock starts a sweep without waiting for it; a slow task never delays
// the next block's sweep, which skips tokens that are still busy.
func (e *Engine) onBlock(ctx context.Context, header *types.Header) {
	number := header.Number.Uint64()
	e.lastBlock.Store(number)
	metrics.BlocksProcessed.Inc()
	metrics.LastProcessedBlock.Set(float64(number))

	start := time.Now()
	outcomes := e.sweeper.Sweep(ctx, e.now())

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.drain(number, outcomes)
		metrics.SweepDuration.Observe(time.Since(start).Seconds())
		e.updateTracked()
	}()
}

// drain consumes a sweep's outcomes and tracks the failure rate.
func (e *Engine) drain(block uint64, outcomes <-chan Outcome) {
	var total, failed int
	for o := range outcomes {
		total++
		status := "success"
		switch {
		case o.Failed():
			failed++
			status = "failure"
			e.logger.Warn("Lifecycle task failed",
				zap.Uint64("block", block),
				zap.String("action", string(o.Action)),
				zap.String("token", o.Label),
				zap.String("address", o.Address),
				zap.Stringer("from", o.From),
				zap.Stringer("to", o.To),
				zap.Error(o.Err))
		case o.Idle:
			status = "idle"
		}
		metrics.SweepOutcomes.WithLabelValues(string(o.Action), status).Inc()
	}

	if total == 0 {
		return
	}
	rate := float64(failed) / float64(total)
	e.failureRate.Store(math.Float64bits(rate))
	metrics.SweepFailureRate.Set(rate)

	if rate > e.cfg.MaxFailureRate {
		e.logger.Warn("Sweep failure rate above threshold",
			zap.Uint64("block", block),
			zap.Int("tasks", total),
			zap.Int("failed", failed),
			zap.Float64("rate", rate),
			zap.Float64("threshold", e.cfg.MaxFailureRate))
	}
}

func (e *Engine) updateTracked() {
	if e.registry == nil {
		return
	}
	counts := e.registry.CountByState()
	for s := token.Detected; s <= token.Removed; s++ {
		metrics.TrackedTokens.WithLabelValues(s.String()).Set(float64(counts[s]))
	}
}
