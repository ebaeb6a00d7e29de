package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/droplist/internal/clock"
)

func TestScheduler_AddTask(t *testing.T) {
	s := New(nil, clock.NewMockClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
	noop := func(ctx context.Context) error { return nil }

	require.NoError(t, s.AddTask(&Task{ID: "update", Name: "Feed update", Schedule: Every(time.Hour), Func: noop}))
	assert.Error(t, s.AddTask(&Task{ID: "update", Schedule: Every(time.Hour), Func: noop}), "duplicate")
	assert.Error(t, s.AddTask(&Task{Schedule: Every(time.Hour), Func: noop}), "missing id")
	assert.Error(t, s.AddTask(&Task{ID: "x", Func: noop}), "missing schedule")
	assert.Error(t, s.AddTask(&Task{ID: "y", Schedule: Every(time.Hour)}), "missing func")

	status := s.GetStatus()
	require.Len(t, status, 1)
	assert.Equal(t, time.Date(2025, 1, 1, 1, 0, 0, 0, time.UTC), status[0].NextRun)
}

func TestScheduler_RunDue(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewMockClock(start)
	s := New(nil, clk)

	var runs atomic.Int32
	require.NoError(t, s.AddTask(&Task{
		ID:       "update",
		Schedule: Every(time.Hour),
		Func: func(ctx context.Context) error {
			runs.Add(1)
			return errors.New("feed unavailable")
		},
	}))

	ctx := context.Background()
	s.runDue(ctx, clk.Now())
	s.wg.Wait()
	assert.Zero(t, runs.Load(), "not due yet")

	clk.Advance(time.Hour)
	s.runDue(ctx, clk.Now())
	s.wg.Wait()
	assert.Equal(t, int32(1), runs.Load())

	status := s.GetStatus()[0]
	assert.Equal(t, int64(1), status.RunCount)
	assert.Equal(t, int64(1), status.ErrorCount)
	assert.Equal(t, "feed unavailable", status.LastError)
	assert.Equal(t, start.Add(2*time.Hour), status.NextRun)
}

func TestScheduler_NoOverlap(t *testing.T) {
	clk := clock.NewMockClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	s := New(nil, clk)

	release := make(chan struct{})
	var runs atomic.Int32
	require.NoError(t, s.AddTask(&Task{
		ID:       "slow",
		Schedule: Every(time.Minute),
		Func: func(ctx context.Context) error {
			runs.Add(1)
			<-release
			return nil
		},
	}))

	clk.Advance(time.Minute)
	s.runDue(context.Background(), clk.Now())
	clk.Advance(time.Minute)
	s.runDue(context.Background(), clk.Now())

	close(release)
	s.wg.Wait()
	assert.Equal(t, int32(1), runs.Load())
}

func TestScheduler_StartStop(t *testing.T) {
	s := New(nil, nil)
	s.tick = 5 * time.Millisecond

	ran := make(chan struct{}, 1)
	require.NoError(t, s.AddTask(&Task{
		ID:       "fast",
		Schedule: immediate{},
		Timeout:  time.Second,
		Func: func(ctx context.Context) error {
			select {
			case ran <- struct{}{}:
			default:
			}
			return nil
		},
	}))

	s.Start()
	s.Start() // idempotent
	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("task never ran")
	}
	s.Stop()
	s.Stop()
}

// immediate is always due.
type immediate struct{}

func (immediate) Next(t time.Time) time.Time { return t }
