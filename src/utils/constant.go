package utils

import "math"

// -----------------------------------------------------------------------------

// Constants for replay retention and memory management.
// A busy session produces on the order of a few thousand confirmations per
// day; the default window keeps a full day with headroom.
const (
	DefaultReplayCapacity = 8192

	// MinReplayCapacity is the floor the memory guard never shrinks below.
	MinReplayCapacity = 1024
)

// -----------------------------------------------------------------------------

// CalculateReplayCapacity sizes a replay window for the given number of
// trading days, approx 4000 records per day.
func CalculateReplayCapacity(days int) int {
	n := int(math.Ceil(float64(days) * 4000))
	if n < MinReplayCapacity {
		return MinReplayCapacity
	}
	return n
}
