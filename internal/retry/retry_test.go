package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingSleeper struct {
	calls []time.Duration
}

func (s *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	s.calls = append(s.calls, d)
	return nil
}

type countingOp struct {
	attempts int
	fails    int
}

func (o *countingOp) call(_ context.Context) (string, error) {
	o.attempts++
	if o.attempts <= o.fails {
		return "", errors.New("transient error")
	}
	return "ok", nil
}

func newTestCaller(maxAttempts int, sleeper *recordingSleeper) *Caller {
	c := New(maxAttempts, 5*time.Second, zap.NewNop())
	c.Sleep = sleeper.sleep
	return c
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	for fails := 0; fails < 3; fails++ {
		sleeper := &recordingSleeper{}
		op := &countingOp{fails: fails}

		got, err := Do(context.Background(), newTestCaller(3, sleeper), "test op", op.call)
		require.NoError(t, err)
		assert.Equal(t, "ok", got)
		assert.Equal(t, fails+1, op.attempts)
		assert.Len(t, sleeper.calls, fails, "expected one sleep per failure")
		for _, d := range sleeper.calls {
			assert.Equal(t, 5*time.Second, d)
		}
	}
}

func TestDoPropagatesLastFailure(t *testing.T) {
	t.Parallel()

	sleeper := &recordingSleeper{}
	sentinel := errors.New("final failure")
	attempts := 0
	_, err := Do(context.Background(), newTestCaller(3, sleeper), "lookup", func(context.Context) (int, error) {
		attempts++
		if attempts == 3 {
			return 0, sentinel
		}
		return 0, errors.New("earlier failure")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Contains(t, err.Error(), "lookup")
	assert.Equal(t, 3, attempts)
	assert.Len(t, sleeper.calls, 2)
}

func TestRunWrapsErrorlessOperations(t *testing.T) {
	t.Parallel()

	sleeper := &recordingSleeper{}
	calls := 0
	err := newTestCaller(2, sleeper).Run(context.Background(), "noop", func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, sleeper.calls)
}

func TestDoStopsWhenSleepIsInterrupted(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(3, time.Hour, zap.NewNop())
	attempts := 0
	_, err := Do(ctx, c, "canceled", func(context.Context) (int, error) {
		attempts++
		return 0, errors.New("boom")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()

	c := New(0, -1, nil)
	assert.Equal(t, DefaultMaxAttempts, c.MaxAttempts)
	assert.Equal(t, DefaultDelay, c.Delay)
	assert.NotNil(t, c.Logger)
	assert.NotNil(t, c.Sleep)
}

func TestSleepContext(t *testing.T) {
	t.Parallel()

	require.NoError(t, SleepContext(context.Background(), time.Millisecond))
	require.NoError(t, SleepContext(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, SleepContext(ctx, time.Hour), context.Canceled)
}
