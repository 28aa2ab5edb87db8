package pool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/checkworker/internal/jobcounter"
	"github.com/ocx/checkworker/internal/metrics"
)

// testMetrics is constructed once for the whole package: metrics.New()
// registers every collector against the default Prometheus registry, so
// calling it from more than one test would panic on the second
// registration.
var testMetrics = metrics.New()

func TestAdjust_HoldsAtMaxOnceReached(t *testing.T) {
	assert.Equal(t, 10, adjust(2, 10, 10, 10))
}

func TestAdjust_StaysAtMinWhenIdle(t *testing.T) {
	assert.Equal(t, 2, adjust(2, 10, 4, 0))
}

func TestAdjust_GrowsWhenOverNinetyPercentUtilized(t *testing.T) {
	// 7 workers, 7 jobs -> 100% utilized, not yet at max; 7+2 = 9 = max.
	assert.Equal(t, 9, adjust(2, 9, 7, 7))
}

func TestAdjust_GrowsWhenIdleCountLow(t *testing.T) {
	// 5 workers, 4 jobs -> idle == 1, triggers growth even under 90%.
	assert.Equal(t, 7, adjust(2, 20, 5, 4))
}

func TestAdjust_NeverExceedsMax(t *testing.T) {
	assert.Equal(t, 10, adjust(2, 10, 9, 9))
}

func TestAdjust_NeverExceedsMax_Property(t *testing.T) {
	for min := 1; min <= 5; min++ {
		for max := min; max <= min+20; max++ {
			for workers := min; workers <= max; workers++ {
				for jobs := 0; jobs <= workers; jobs++ {
					target := adjust(min, max, workers, jobs)
					if target < min || target > max {
						t.Fatalf("adjust(%d,%d,%d,%d) = %d out of bounds", min, max, workers, jobs, target)
					}
				}
			}
		}
	}
}

func TestSupervisor_SingleWorkerFastPath(t *testing.T) {
	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())

	run := func(runCtx context.Context, id string) error {
		calls.Add(1)
		<-runCtx.Done()
		return nil
	}

	s := New(1, 1, run, jobcounter.New(), testMetrics)

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not shut down")
	}

	require.GreaterOrEqual(t, calls.Load(), int32(1))
}

func TestSupervisor_SpawnsMinWorkers(t *testing.T) {
	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())

	run := func(runCtx context.Context, id string) error {
		calls.Add(1)
		<-runCtx.Done()
		return nil
	}

	s := New(3, 5, run, jobcounter.New(), testMetrics)

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not shut down")
	}

	assert.Equal(t, int32(3), calls.Load())
}
