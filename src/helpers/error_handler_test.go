package helpers

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-gateway/src/logger"
)

// -----------------------------------------------------------------------------

func TestRetryWithBackoffStopsOnSuccess(t *testing.T) {
	log := logger.NewLogger(nil, "test")

	calls := 0
	err := RetryWithBackoff(log, "flaky op", 5, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoffGivesUp(t *testing.T) {
	log := logger.NewLogger(nil, "test")

	boom := errors.New("boom")
	calls := 0
	err := RetryWithBackoff(log, "dead op", 3, time.Millisecond, func() error {
		calls++
		return boom
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "dead op")
}

func TestRetryWithBackoffSingleAttempt(t *testing.T) {
	log := logger.NewLogger(nil, "test")

	calls := 0
	err := RetryWithBackoff(log, "once", 1, time.Millisecond, func() error {
		calls++
		return errors.New("no")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

// -----------------------------------------------------------------------------

func TestGatewayErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := &GatewayError{Op: "postgres connect", Err: cause}

	assert.Equal(t, "postgres connect: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)

	bare := &GatewayError{Op: "postgres connect"}
	assert.Equal(t, "postgres connect", bare.Error())
}

// -----------------------------------------------------------------------------

func TestRecommendedMemoryLimitBounds(t *testing.T) {
	limit := RecommendedMemoryLimitMB()

	// Whatever the machine, the policy stays inside its clamp.
	assert.GreaterOrEqual(t, limit, 1)
	assert.LessOrEqual(t, limit, 4096)
}
