package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stoats/internal/ir"
	"github.com/roach88/stoats/internal/store"
	"github.com/roach88/stoats/internal/testutil"
)

// fnJob is a Job backed by a closure.
type fnJob struct {
	owner string
	fn    func(ctx context.Context) error
}

func (j fnJob) Owner() string { return j.owner }

func (j fnJob) Run(ctx context.Context, s *store.Store) error { return j.fn(ctx) }

func startScheduler(t *testing.T, opts ...SchedulerOption) *Scheduler {
	t.Helper()
	sched := NewScheduler(testutil.OpenStore(t), opts...)
	sched.Start(context.Background())
	t.Cleanup(sched.Stop)
	return sched
}

func TestScheduler_RunAllInOrder(t *testing.T) {
	sched := startScheduler(t, WithWorkers(1), WithRunIDGenerator(NewFixedGenerator("r1", "r2", "r3")))

	var seen []string
	job := func(owner string, err error) Job {
		return fnJob{owner: owner, fn: func(ctx context.Context) error {
			seen = append(seen, owner+":"+RunID(ctx))
			return err
		}}
	}

	boom := errors.New("boom")
	results := sched.RunAll(context.Background(), job("A", nil), job("B", boom), job("C", nil))

	require.Len(t, results, 3)
	assert.Equal(t, "A", results[0].Owner)
	assert.Equal(t, "r1", results[0].RunID)
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, boom)
	assert.Equal(t, "C", results[2].Owner)
	assert.Equal(t, []string{"A:r1", "B:r2", "C:r3"}, seen)
}

func TestScheduler_RunStagesWaitsForEachStage(t *testing.T) {
	sched := startScheduler(t, WithWorkers(4))

	var first atomic.Int32
	slow := func(owner string) Job {
		return fnJob{owner: owner, fn: func(ctx context.Context) error {
			time.Sleep(20 * time.Millisecond)
			first.Add(1)
			return nil
		}}
	}
	var seenAtStart int32
	after := fnJob{owner: "Response", fn: func(ctx context.Context) error {
		seenAtStart = first.Load()
		return nil
	}}

	results := sched.RunStages(context.Background(), [][]Job{
		{slow("Impulse"), slow("RestHR")},
		{after},
	})
	require.Len(t, results, 3)
	assert.Equal(t, "Response", results[2].Owner)
	assert.Equal(t, int32(2), seenAtStart)
}

func TestScheduler_SameOwnerSerializes(t *testing.T) {
	sched := startScheduler(t, WithWorkers(4))

	var active, peak int32
	job := fnJob{owner: "RestHR", fn: func(ctx context.Context) error {
		n := atomic.AddInt32(&active, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return nil
	}}

	results := sched.RunAll(context.Background(), job, job, job, job, job, job)
	for _, r := range results {
		require.NoError(t, r.Err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&peak))
}

func TestScheduler_DifferentOwnersRunInParallel(t *testing.T) {
	sched := startScheduler(t, WithWorkers(2))

	var started sync.WaitGroup
	started.Add(2)
	both := make(chan struct{})
	go func() {
		started.Wait()
		close(both)
	}()

	job := func(owner string) Job {
		return fnJob{owner: owner, fn: func(ctx context.Context) error {
			started.Done()
			select {
			case <-both:
				return nil
			case <-time.After(5 * time.Second):
				return errors.New("other owner never started")
			}
		}}
	}

	results := sched.RunAll(context.Background(), job("RestHR"), job("Response"))
	for _, r := range results {
		assert.NoError(t, r.Err)
	}
}

func TestScheduler_SubmitAfterStop(t *testing.T) {
	sched := NewScheduler(testutil.OpenStore(t))
	sched.Start(context.Background())
	sched.Stop()

	result := <-sched.Submit(fnJob{owner: "late", fn: func(ctx context.Context) error { return nil }})
	assert.Error(t, result.Err)
	assert.Equal(t, "late", result.Owner)
}

func TestScheduler_StopDrainsQueue(t *testing.T) {
	sched := NewScheduler(testutil.OpenStore(t), WithWorkers(1))

	var ran int32
	job := fnJob{owner: "A", fn: func(ctx context.Context) error {
		atomic.AddInt32(&ran, 1)
		return nil
	}}

	var pending []<-chan JobResult
	for i := 0; i < 5; i++ {
		pending = append(pending, sched.Submit(job))
	}
	sched.Start(context.Background())
	sched.Stop()

	for _, ch := range pending {
		assert.NoError(t, (<-ch).Err)
	}
	assert.Equal(t, int32(5), atomic.LoadInt32(&ran))
}

func TestScheduler_CancelledContext(t *testing.T) {
	sched := NewScheduler(testutil.OpenStore(t), WithWorkers(1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := sched.Submit(fnJob{owner: "A", fn: func(ctx context.Context) error { return nil }})
	sched.Start(ctx)
	defer sched.Stop()

	result := <-done
	assert.ErrorIs(t, result.Err, context.Canceled)
}

func TestScheduler_RunsCalculatorJobs(t *testing.T) {
	s := testutil.OpenStore(t)
	seedHeartRate(t, s, "a", day0.Add(6*time.Hour), 52)

	sched := NewScheduler(s, WithWorkers(2))
	sched.Start(context.Background())
	defer sched.Stop()

	clock := testutil.NewFixedClock(day0.Add(36 * time.Hour))
	restHR := restHRCalculator(clock.Now())
	impulse := NewImpulseCalculator("Activity", nil)

	results := sched.RunAll(context.Background(), restHR.Job(Range{}), impulse.Job())
	for _, r := range results {
		require.NoError(t, r.Err)
	}

	responses := newResponses(clock)
	results = sched.RunAll(context.Background(), responses.Job())
	require.NoError(t, results[0].Err)
	assert.Equal(t, "Response", results[0].Owner)

	assert.Len(t, readRestHR(t, s), 1)
	assert.NotEmpty(t, readResponse(t, s, "Fitness"))

	require.NoError(t, s.View(context.Background(), func(tx *store.Tx) error {
		n, err := tx.CountSources(context.Background(), ir.SourceInterval)
		assert.Equal(t, 1, n)
		return err
	}))
}
