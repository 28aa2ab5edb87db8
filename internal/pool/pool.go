// Package pool implements the adaptive worker-pool supervisor from spec
// §4.5. A goroutine population replaces the original's forked child
// processes (design note §9); the control loop shape — a ticker plus a
// stop channel — is grounded on internal/reputation's
// TrustScoreDecayScheduler, and the scale-up/rate-limit-sleep policy on
// internal/ghostpool.PoolManager's maintainPool.
package pool

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ocx/checkworker/internal/jobcounter"
	"github.com/ocx/checkworker/internal/metrics"
)

// tickInterval is how often the supervisor re-evaluates pool size, matching
// the original worker's 30-second master loop.
const tickInterval = 30 * time.Second

// spawnRateLimit is slept once per tick after spawning any new worker, so a
// burst of scale-up never spawns workers faster than one tick's worth at a
// time — matching the original's sleep(1) after topping up the pool.
const spawnRateLimit = 1 * time.Second

// RunFunc runs a single worker's job-processing loop until ctx is
// cancelled or it exits voluntarily.
type RunFunc func(ctx context.Context, workerID string) error

// Supervisor maintains a population of worker goroutines between MinWorker
// and MaxWorker, scaling up under load per adjust() and replacing any
// worker goroutine that returns (voluntary exit or error) with a fresh one.
type Supervisor struct {
	min, max int
	run      RunFunc
	counter  *jobcounter.Counter
	metrics  *metrics.Metrics

	mu         sync.Mutex
	population int

	wg sync.WaitGroup

	shutdown atomic.Bool
}

// New builds a Supervisor. run is invoked once per worker goroutine and
// should block until its context is cancelled or the worker decides to
// exit voluntarily (e.g. jobs_before_exit reached).
func New(min, max int, run RunFunc, counter *jobcounter.Counter, m *metrics.Metrics) *Supervisor {
	if min < 1 {
		min = 1
	}
	if max < min {
		max = min
	}
	return &Supervisor{min: min, max: max, run: run, counter: counter, metrics: m}
}

// adjust is the pure scaling function from spec §4.5, verified against the
// original worker's adjust_number_of_worker: once the pool is already at
// max it stays there; otherwise it holds at min unless the pool is running
// hot (either over 90% utilized or down to 2 or fewer idle workers), in
// which case it grows by 2, capped at max.
func adjust(min, max, workers, jobs int) int {
	if workers == max {
		return max
	}

	target := min
	if jobs > 0 {
		pctRunning := jobs * 100 / workers
		idle := workers - jobs
		if pctRunning > 90 || idle <= 2 {
			target = workers + 2
		}
	}

	if target > max {
		target = max
	}
	return target
}

// Run starts the pool and blocks until ctx is cancelled, at which point it
// waits for every worker goroutine to finish its current job and return.
func (s *Supervisor) Run(ctx context.Context) {
	// Single-worker fast path (spec §4.5): when min==max==1 there is no
	// pool to supervise, just one worker loop.
	if s.min == 1 && s.max == 1 {
		s.spawn(ctx)
		s.wg.Wait()
		return
	}

	for i := 0; i < s.min; i++ {
		s.spawn(ctx)
	}

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.maintain(ctx)
		case <-ctx.Done():
			s.shutdown.Store(true)
			s.wg.Wait()
			return
		}
	}
}

// maintain evaluates adjust() against the current population and in-flight
// job count and tops up the pool if it calls for growth.
func (s *Supervisor) maintain(ctx context.Context) {
	s.mu.Lock()
	workers := s.population
	s.mu.Unlock()

	if workers == 0 {
		return
	}

	jobs := s.counter.Snapshot(workers)
	s.metrics.InFlight.WithLabelValues("checkworker").Set(float64(jobs))
	target := adjust(s.min, s.max, workers, jobs)

	if target <= workers {
		return
	}

	slog.Info("pool: scaling up", "from", workers, "to", target, "in_flight", jobs)
	for i := workers; i < target; i++ {
		s.spawn(ctx)
	}
	time.Sleep(spawnRateLimit)
}

// spawn starts one worker goroutine, tracked in the wait group, and
// automatically replaces it with a fresh one if it returns while the pool
// is not shutting down — voluntary exits (jobs_before_exit) and crashes are
// both handled this way, matching the original's "worker exits, supervisor
// forks a replacement" cycle.
func (s *Supervisor) spawn(ctx context.Context) {
	s.mu.Lock()
	s.population++
	pop := s.population
	s.mu.Unlock()
	s.metrics.Population.WithLabelValues("checkworker").Set(float64(pop))

	id := uuid.New().String()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		if err := s.run(ctx, id); err != nil {
			slog.Warn("pool: worker exited with error", "worker", id, "error", err)
		}

		s.mu.Lock()
		s.population--
		pop := s.population
		s.mu.Unlock()
		s.metrics.Population.WithLabelValues("checkworker").Set(float64(pop))

		if !s.shutdown.Load() && ctx.Err() == nil {
			s.spawn(ctx)
		}
	}()
}
