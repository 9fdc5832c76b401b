// Package worker runs ranking recalculations off the request queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/adapters/mq/queue"
	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/dedupe"
	"github.com/Avillegasa/equestrian-fei-system-sub000/internal/domain/model"
	"github.com/Avillegasa/equestrian-fei-system-sub000/pkg/logger"
	"github.com/Avillegasa/equestrian-fei-system-sub000/pkg/metrics"
)

// Default worker configuration constants.
const (
	poolShutdownTimeout = 30 * time.Second
)

// Recalculator rebuilds one category ranking.
type Recalculator interface {
	RecalculateRanking(ctx context.Context, competitionID, categoryID string) (*model.Ranking, error)
}

// Queue defines how workers receive requests.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Request
}

// Worker processes recalculation requests.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue closes.
	Run(ctx context.Context)
	// Shutdown stops the worker, waiting for the current request.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue        Queue
	recalculator Recalculator
	deduper      dedupe.Deduper
	name         string
	processed    *atomic.Int64

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker with configuration options.
func NewInMemoryWorker(q Queue, r Recalculator, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:        q,
		recalculator: r,
		name:         "worker",
		processed:    &atomic.Int64{},
		shutdown:     make(chan struct{}),
		done:         make(chan struct{}),
		logger:       logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	requests := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case r, ok := <-requests:
			if !ok {
				return
			}
			if err := w.process(ctx, r); err != nil {
				w.logger.Error(ctx, "recalculation failed",
					logger.String("competition_id", r.CompetitionID),
					logger.String("category_id", r.CategoryID),
					logger.Error(err),
				)
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Processed returns how many requests this worker has handled.
func (w *InMemoryWorker) Processed() int64 {
	return w.processed.Load()
}

func (w *InMemoryWorker) process(ctx context.Context, r queue.Request) error {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessing(time.Since(start).Seconds())
		w.processed.Add(1)
	}()

	// Release the key first so changes arriving during this run schedule
	// another pass.
	if w.deduper != nil {
		w.deduper.Unrecord(ctx, dedupe.Key(r.CompetitionID, r.CategoryID))
	}

	_, err := w.recalculator.RecalculateRanking(ctx, r.CompetitionID, r.CategoryID)
	switch {
	case err == nil:
		w.logger.Debug(ctx, "ranking recalculated",
			logger.String("competition_id", r.CompetitionID),
			logger.String("category_id", r.CategoryID),
			logger.String("cause", r.Cause),
			logger.Duration("queued_for", start.Sub(r.RequestedAt)),
		)
		return nil
	case errors.Is(err, model.ErrNoEligibleScoreCards):
		// Nothing rankable yet; the stored ranking was cleared.
		return nil
	default:
		metrics.RecordWorkerError()
		metrics.RecordError("worker", "recalculation")
		return fmt.Errorf("recalculate %s/%s: %w", r.CompetitionID, r.CategoryID, err)
	}
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates a worker pool. A count below one uses runtime.NumCPU().
func NewPool(workerCount int, q Queue, r Recalculator, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := range workerCount {
		workerOpts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		p.workers[i] = NewInMemoryWorker(q, r, workerOpts...)
	}
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Processed returns the total number of requests handled by the pool.
func (p *Pool) Processed() int64 {
	var n int64
	for _, w := range p.workers {
		n += w.Processed()
	}
	return n
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	metrics.UpdateWorkerActiveCount(len(p.workers))
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
}

// Shutdown closes the queue, lets workers drain it, and waits for them.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			timedOut = true
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	metrics.UpdateWorkerActiveCount(0)
	if timedOut {
		return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
	}
	return nil
}
