package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func TestDo_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	p := Policy{MaxAttempts: 3}

	attempts, err := p.Do(context.Background(), func(context.Context, int) error {
		calls++
		if calls < 2 {
			return errFlaky
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 2, calls)
}

func TestDo_Exhausted(t *testing.T) {
	var retried []int
	p := Policy{
		MaxAttempts: 3,
		OnRetry:     func(attempt int, _ error) { retried = append(retried, attempt) },
	}

	attempts, err := p.Do(context.Background(), func(context.Context, int) error { return errFlaky })

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	permanent := errors.New("permanent")
	p := Policy{
		MaxAttempts: 5,
		Retryable:   func(err error) bool { return !errors.Is(err, permanent) },
	}

	attempts, err := p.Do(context.Background(), func(context.Context, int) error { return permanent })

	assert.Equal(t, 1, attempts)
	assert.ErrorIs(t, err, permanent)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 3, Backoff: Constant(time.Hour)}

	attempts, err := p.Do(ctx, func(context.Context, int) error {
		cancel()
		return errFlaky
	})

	assert.Equal(t, 1, attempts)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, errFlaky)
}

func TestExponential(t *testing.T) {
	b := Exponential(100*time.Millisecond, time.Second)
	assert.Equal(t, 100*time.Millisecond, b(2))
	assert.Equal(t, 200*time.Millisecond, b(3))
	assert.Equal(t, 400*time.Millisecond, b(4))
	assert.Equal(t, time.Second, b(10))
}
