package helpers

import (
	"fmt"
	"time"

	"trade-gateway/src/logger"
)

// -----------------------------------------------------------------------------

// GatewayError tags a failure with the operation that produced it.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// -----------------------------------------------------------------------------

// RetryWithBackoff runs fn up to attempts times, doubling the delay after
// each failure. Meant for boot-time dependencies that can still be coming
// up when the gateway starts, like the reference database.
func RetryWithBackoff(log *logger.Logger, op string, attempts int, baseDelay time.Duration, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		delay := baseDelay << (attempt - 1)
		log.Warning("%s failed (attempt %d/%d): %v, retrying in %v",
			op, attempt, attempts, lastErr, delay)
		time.Sleep(delay)
	}
	return &GatewayError{Op: op, Err: lastErr}
}
