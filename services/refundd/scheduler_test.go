package refundd

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingRunner struct {
	runs atomic.Int32
	err  error
}

func (r *countingRunner) Run(context.Context) (Summary, error) {
	r.runs.Add(1)
	return Summary{Outcome: OutcomeIdle}, r.err
}

func TestSchedulerRunsOnInterval(t *testing.T) {
	runner := &countingRunner{err: errors.New("transient")}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewScheduler(SchedulerConfig{Runner: runner, Interval: 5 * time.Millisecond}).Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return runner.runs.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}

func TestSchedulerDisabledWithoutInterval(t *testing.T) {
	runner := &countingRunner{}
	NewScheduler(SchedulerConfig{Runner: runner}).Start(context.Background())
	require.Zero(t, runner.runs.Load())
}
