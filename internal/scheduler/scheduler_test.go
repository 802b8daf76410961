package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRunner struct {
	mu   sync.Mutex
	runs []time.Time
	err  error
}

func (r *countingRunner) Run(ctx context.Context, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, now)
	return r.err
}

func (r *countingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScheduler_RunOnStart(t *testing.T) {
	runner := &countingRunner{}
	s := New(runner, time.Hour, true, testLogger())

	fixed := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	require.Eventually(t, func() bool { return runner.count() == 1 },
		time.Second, 5*time.Millisecond)

	cancel()
	err := <-done
	assert.ErrorIs(t, err, context.Canceled)

	// The run saw the scheduler's clock, not the wall clock.
	assert.Equal(t, fixed, runner.runs[0])
}

func TestScheduler_TicksOnInterval(t *testing.T) {
	runner := &countingRunner{}
	s := New(runner, 10*time.Millisecond, false, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Start(ctx) }()

	require.Eventually(t, func() bool { return runner.count() >= 3 },
		time.Second, 5*time.Millisecond)
}

func TestScheduler_KeepsTickingAfterFailure(t *testing.T) {
	runner := &countingRunner{err: assert.AnError}
	s := New(runner, 10*time.Millisecond, true, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Start(ctx) }()

	require.Eventually(t, func() bool { return runner.count() >= 2 },
		time.Second, 5*time.Millisecond)
}
