package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/stoats/internal/metrics"
	"github.com/roach88/stoats/internal/store"
)

// DefaultWorkers is the default size of the scheduler's worker pool.
const DefaultWorkers = 4

// Job is one unit of calculator work. Jobs with the same Owner never run
// concurrently.
type Job interface {
	Owner() string
	Run(ctx context.Context, s *store.Store) error
}

// JobResult reports how a submitted job finished.
type JobResult struct {
	Owner    string
	RunID    string
	Err      error
	Duration time.Duration
}

// Scheduler runs jobs on a fixed pool of workers.
//
// Thread-safety model:
//   - Submit(): safe from any goroutine
//   - Start()/Stop(): call once each, from the owning goroutine
//
// Jobs for different owners run in parallel; the store serializes their
// transactions. Jobs for one owner run one at a time, in submission order
// as far as the pool allows.
type Scheduler struct {
	store   *store.Store
	workers int
	runGen  RunIDGenerator
	metrics metrics.Collector

	queue *jobQueue
	wg    sync.WaitGroup

	mu     sync.Mutex
	owners map[string]*sync.Mutex
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithWorkers sets the worker pool size. Values below 1 are ignored.
func WithWorkers(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithRunIDGenerator replaces the UUIDv7 run ID generator.
func WithRunIDGenerator(g RunIDGenerator) SchedulerOption {
	return func(s *Scheduler) {
		s.runGen = g
	}
}

// WithMetrics sets the collector that records job failures.
func WithMetrics(m metrics.Collector) SchedulerOption {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// NewScheduler creates a stopped scheduler over st.
func NewScheduler(st *store.Store, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		store:   st,
		workers: DefaultWorkers,
		runGen:  UUIDv7Generator{},
		metrics: metrics.NewNoopCollector(),
		queue:   newJobQueue(),
		owners:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit queues job and returns a channel that receives its result.
//
// After Stop the job is rejected and the channel carries an error
// immediately.
func (s *Scheduler) Submit(job Job) <-chan JobResult {
	done := make(chan JobResult, 1)
	if !s.queue.Enqueue(queuedJob{job: job, done: done}) {
		done <- JobResult{Owner: job.Owner(), Err: fmt.Errorf("scheduler stopped: %s not run", job.Owner())}
	}
	return done
}

// Start launches the workers. They exit when ctx is cancelled or when
// Stop has been called and the queue is drained.
func (s *Scheduler) Start(ctx context.Context) {
	slog.Info("scheduler starting", "workers", s.workers)
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.work(ctx)
	}
}

// Stop rejects further submissions, lets queued jobs finish and waits
// for the workers.
func (s *Scheduler) Stop() {
	s.queue.Close()
	s.wg.Wait()
	slog.Info("scheduler stopped")
}

// RunAll submits jobs and waits for all of them. Results are returned in
// submission order. The scheduler must have been started.
func (s *Scheduler) RunAll(ctx context.Context, jobs ...Job) []JobResult {
	pending := make([]<-chan JobResult, len(jobs))
	for i, job := range jobs {
		pending[i] = s.Submit(job)
	}

	results := make([]JobResult, len(jobs))
	for i, ch := range pending {
		select {
		case results[i] = <-ch:
		case <-ctx.Done():
			results[i] = JobResult{Owner: jobs[i].Owner(), Err: ctx.Err()}
		}
	}
	return results
}

// RunStages runs each stage with RunAll after the previous one has
// finished. Results are flattened in submission order.
func (s *Scheduler) RunStages(ctx context.Context, stages [][]Job) []JobResult {
	var results []JobResult
	for _, stage := range stages {
		results = append(results, s.RunAll(ctx, stage...)...)
	}
	return results
}

func (s *Scheduler) work(ctx context.Context) {
	defer s.wg.Done()

	for {
		if qj, ok := s.queue.TryDequeue(); ok {
			qj.done <- s.run(ctx, qj.job)
			continue
		}

		select {
		case <-ctx.Done():
			s.drain(ctx.Err())
			return
		case _, open := <-s.queue.Wait():
			if !open && s.queue.Len() == 0 {
				return
			}
		}
	}
}

// drain fails every queued job after cancellation.
func (s *Scheduler) drain(err error) {
	for {
		qj, ok := s.queue.TryDequeue()
		if !ok {
			return
		}
		qj.done <- JobResult{Owner: qj.job.Owner(), Err: err}
	}
}

func (s *Scheduler) run(ctx context.Context, job Job) JobResult {
	owner := job.Owner()
	lock := s.ownerLock(owner)
	lock.Lock()
	defer lock.Unlock()

	result := JobResult{Owner: owner, RunID: s.runGen.Generate()}
	if err := ctx.Err(); err != nil {
		result.Err = err
		return result
	}

	ctx = WithRunID(ctx, result.RunID)
	slog.Info("job starting", "owner", owner, "run", result.RunID)

	start := time.Now()
	result.Err = job.Run(ctx, s.store)
	result.Duration = time.Since(start)

	if result.Err != nil {
		s.metrics.RecordError(ctx, owner, errorType(result.Err))
		slog.Error("job failed",
			"owner", owner,
			"run", result.RunID,
			"duration", result.Duration,
			"error", result.Err,
		)
	} else {
		slog.Info("job finished", "owner", owner, "run", result.RunID, "duration", result.Duration)
	}
	return result
}

func (s *Scheduler) ownerLock(owner string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.owners[owner]
	if !ok {
		lock = &sync.Mutex{}
		s.owners[owner] = lock
	}
	return lock
}

type runIDKey struct{}

// WithRunID attaches a run ID to ctx for log correlation.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunID returns the run ID attached to ctx, or "".
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}
