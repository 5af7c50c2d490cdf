package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/tphakala/radiotracker/internal/logger"
	"github.com/tphakala/radiotracker/internal/observability/metrics"
)

const (
	defaultWorkers      = 4
	defaultDispatchSize = 256
)

// MemoryQueueConfig configures a MemoryQueue
type MemoryQueueConfig struct {
	Workers        int  // concurrent handler runs
	RunImmediately bool // dispatch a job once as soon as it is added
	DispatchSize   int  // buffered ticks awaiting a worker
}

// DefaultMemoryQueueConfig returns the default queue settings
func DefaultMemoryQueueConfig() MemoryQueueConfig {
	return MemoryQueueConfig{
		Workers:        defaultWorkers,
		RunImmediately: true,
		DispatchSize:   defaultDispatchSize,
	}
}

type recurringEntry struct {
	job      RecurringJob
	cancel   context.CancelFunc
	inFlight *atomic.Bool // owned by MemoryQueue.inFlight, outlives the entry
}

// MemoryQueue is an in-process Queue. Every job has a ticker goroutine that
// feeds a dispatch channel; Process drains it into a bounded worker pool.
type MemoryQueue struct {
	cfg     MemoryQueueConfig
	metrics *metrics.SchedulerMetrics

	mu      sync.Mutex
	jobs    map[string]*recurringEntry
	closed  bool
	running bool

	// inFlight holds one flag per job id. A flag survives RemoveRecurring
	// while its run is active, so removing and re-adding a job (as Resync
	// does) cannot start a second run beside the first.
	inFlight map[string]*atomic.Bool

	dispatch chan string
	ctx      context.Context
	cancel   context.CancelFunc
	tickers  sync.WaitGroup

	runs, failures, panics, skipped atomic.Uint64
}

// NewMemoryQueue creates a queue. Call Close to stop its tickers.
func NewMemoryQueue(cfg MemoryQueueConfig, m *metrics.SchedulerMetrics) *MemoryQueue {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.DispatchSize <= 0 {
		cfg.DispatchSize = defaultDispatchSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &MemoryQueue{
		cfg:      cfg,
		metrics:  m,
		jobs:     make(map[string]*recurringEntry),
		inFlight: make(map[string]*atomic.Bool),
		dispatch: make(chan string, cfg.DispatchSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// AddRecurring registers a job, replacing any job with the same id
func (q *MemoryQueue) AddRecurring(_ context.Context, id string, payload Payload, interval time.Duration) error {
	if id == "" || interval <= 0 {
		return queueError(fmt.Errorf("%w: id %q interval %v", ErrInvalidJob, id, interval), "add_recurring", "job_id", id)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return queueError(ErrQueueClosed, "add_recurring", "job_id", id)
	}

	if old, ok := q.jobs[id]; ok {
		old.cancel()
	}
	inFlight, ok := q.inFlight[id]
	if !ok {
		inFlight = &atomic.Bool{}
		q.inFlight[id] = inFlight
	}

	tickCtx, cancel := context.WithCancel(q.ctx)
	q.jobs[id] = &recurringEntry{
		job: RecurringJob{
			ID:       id,
			Payload:  payload,
			Interval: interval,
			AddedAt:  time.Now(),
		},
		cancel:   cancel,
		inFlight: inFlight,
	}
	q.metrics.SetJobs(len(q.jobs))

	q.tickers.Add(1)
	go q.tick(tickCtx, id, interval, q.cfg.RunImmediately)
	return nil
}

// ListRecurring returns the registered jobs ordered by id
func (q *MemoryQueue) ListRecurring(_ context.Context) ([]RecurringJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, queueError(ErrQueueClosed, "list_recurring")
	}

	jobs := make([]RecurringJob, 0, len(q.jobs))
	for _, e := range q.jobs {
		jobs = append(jobs, e.job)
	}
	slices.SortFunc(jobs, func(a, b RecurringJob) int { return strings.Compare(a.ID, b.ID) })
	return jobs, nil
}

// RemoveRecurring stops and forgets a job. Runs already dispatched still finish.
func (q *MemoryQueue) RemoveRecurring(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.jobs[id]
	if !ok {
		return queueError(ErrJobNotFound, "remove_recurring", "job_id", id)
	}
	e.cancel()
	delete(q.jobs, id)
	if !e.inFlight.Load() {
		delete(q.inFlight, id)
	}
	q.metrics.SetJobs(len(q.jobs))
	return nil
}

// Process runs handler for dispatched ticks until ctx is done, then waits
// for in-flight runs to finish. Only one Process may run at a time.
func (q *MemoryQueue) Process(ctx context.Context, handler Handler) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return queueError(ErrQueueClosed, "process")
	}
	if q.running {
		q.mu.Unlock()
		return queueError(ErrAlreadyRunning, "process")
	}
	q.running = true
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.running = false
		q.mu.Unlock()
	}()

	sem := semaphore.NewWeighted(int64(q.cfg.Workers))
	var runs sync.WaitGroup
	defer runs.Wait()

	GetLogger().Info("job processing started", logger.Int("workers", q.cfg.Workers))
	for {
		select {
		case <-ctx.Done():
			GetLogger().Info("job processing stopping")
			return nil
		case <-q.ctx.Done():
			return nil
		case id := <-q.dispatch:
			entry, ok, claimed := q.claim(id)
			if !ok {
				continue
			}
			if !claimed {
				q.skipped.Add(1)
				q.metrics.TickSkipped()
				GetLogger().Debug("previous run still in flight, tick skipped", logger.String("job_id", id))
				continue
			}
			if err := sem.Acquire(ctx, 1); err != nil {
				q.release(id, entry.inFlight)
				return nil
			}
			runs.Go(func() {
				defer sem.Release(1)
				defer q.release(id, entry.inFlight)
				q.run(ctx, entry.job, handler)
			})
		}
	}
}

// claim marks job id as running. ok is false for a job that no longer
// exists; claimed is false while a previous run of id is still active.
func (q *MemoryQueue) claim(id string) (entry *recurringEntry, ok, claimed bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.jobs[id]
	if !ok {
		return nil, false, false
	}
	return e, true, e.inFlight.CompareAndSwap(false, true)
}

// release clears a run's flag and forgets it when its job was removed meanwhile.
func (q *MemoryQueue) release(id string, flag *atomic.Bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	flag.Store(false)
	if _, ok := q.jobs[id]; !ok && q.inFlight[id] == flag {
		delete(q.inFlight, id)
	}
}

// run executes one job run. Errors and panics are logged and counted only.
func (q *MemoryQueue) run(ctx context.Context, job RecurringJob, handler Handler) {
	start := time.Now()
	q.runs.Add(1)
	q.metrics.RunStarted()

	status := metrics.StatusSuccess
	defer func() {
		if r := recover(); r != nil {
			status = metrics.StatusPanic
			q.panics.Add(1)
			GetLogger().Error("job handler panicked",
				logger.String("job_id", job.ID),
				logger.Any("panic", r),
				logger.String("stack", string(debug.Stack())))
		}
		q.metrics.RunFinished(status, time.Since(start).Seconds())
	}()

	if err := handler.Handle(ctx, job.Payload); err != nil {
		status = metrics.StatusError
		q.failures.Add(1)
		GetLogger().Warn("job run failed",
			logger.String("job_id", job.ID),
			logger.String("station", job.Payload.Slug),
			logger.Error(err))
	}
}

func (q *MemoryQueue) tick(ctx context.Context, id string, interval time.Duration, immediate bool) {
	defer q.tickers.Done()

	if immediate {
		q.enqueue(ctx, id)
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			q.enqueue(ctx, id)
		}
	}
}

func (q *MemoryQueue) enqueue(ctx context.Context, id string) {
	if ctx.Err() != nil {
		return
	}
	select {
	case q.dispatch <- id:
	default:
		q.skipped.Add(1)
		q.metrics.TickSkipped()
		GetLogger().Warn("dispatch buffer full, tick dropped", logger.String("job_id", id))
	}
}

// Stats returns a snapshot of the queue counters
func (q *MemoryQueue) Stats() Stats {
	q.mu.Lock()
	jobs := len(q.jobs)
	q.mu.Unlock()
	return Stats{
		Jobs:         jobs,
		Runs:         q.runs.Load(),
		Failures:     q.failures.Load(),
		Panics:       q.panics.Load(),
		SkippedTicks: q.skipped.Load(),
	}
}

// Close stops every ticker and makes further calls fail. A running Process returns.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	for id, e := range q.jobs {
		e.cancel()
		delete(q.jobs, id)
	}
	q.metrics.SetJobs(0)
	q.cancel()
	q.mu.Unlock()

	q.tickers.Wait()
	return nil
}

var _ Queue = (*MemoryQueue)(nil)
