package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestBreaker(maxFailures uint32) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := New("amqp", maxFailures, 10*time.Second, quietLogger())
	cb.now = clock.now
	return cb, clock
}

var errSink = errors.New("sink unavailable")

func fail(context.Context) error    { return errSink }
func succeed(context.Context) error { return nil }

func TestStateString(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateClosed, "CLOSED"},
		{StateOpen, "OPEN"},
		{StateHalfOpen, "HALF_OPEN"},
		{State(999), "UNKNOWN"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.state.String())
	}
}

func TestNew_Defaults(t *testing.T) {
	cb := New("sink", 0, time.Second, nil)
	assert.Equal(t, uint32(1), cb.maxFailures)
	assert.NotNil(t, cb.logger)
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	cb, _ := newTestBreaker(3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, fail), errSink)
	}
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(ctx, func(context.Context) error {
		called = true
		return nil
	})
	assert.True(t, IsCircuitBreakerError(err))
	assert.False(t, called)
}

func TestCircuitBreaker_SuccessResetsConsecutiveFailures(t *testing.T) {
	cb, _ := newTestBreaker(2)
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	require.NoError(t, cb.Execute(ctx, succeed))
	_ = cb.Execute(ctx, fail)
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb, clock := newTestBreaker(1)
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	require.Equal(t, StateOpen, cb.GetState())

	clock.t = clock.t.Add(11 * time.Second)
	assert.Equal(t, StateHalfOpen, cb.GetState())

	for i := 0; i < 3; i++ {
		require.NoError(t, cb.Execute(ctx, succeed))
	}
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(1)
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	clock.t = clock.t.Add(11 * time.Second)

	assert.ErrorIs(t, cb.Execute(ctx, fail), errSink)
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestCircuitBreaker_HalfOpenLimitsProbes(t *testing.T) {
	cb, clock := newTestBreaker(1)
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	clock.t = clock.t.Add(11 * time.Second)

	block := make(chan struct{})
	results := make(chan error, 4)
	for i := 0; i < 3; i++ {
		go func() {
			results <- cb.Execute(ctx, func(context.Context) error {
				<-block
				return nil
			})
		}()
	}

	// wait until the three probes hold their slots
	require.Eventually(t, func() bool {
		return cb.GetStats().Requests >= 4
	}, time.Second, time.Millisecond)

	err := cb.Execute(ctx, succeed)
	assert.True(t, IsCircuitBreakerError(err))

	close(block)
	for i := 0; i < 3; i++ {
		assert.NoError(t, <-results)
	}
}

func TestIsCircuitBreakerError(t *testing.T) {
	err := &CircuitBreakerError{Name: "amqp", State: StateOpen}
	assert.True(t, IsCircuitBreakerError(err))
	assert.True(t, IsCircuitBreakerError(fmt.Errorf("publish: %w", err)))
	assert.False(t, IsCircuitBreakerError(errSink))
	assert.Equal(t, "circuit breaker 'amqp' is OPEN", err.Error())
}
