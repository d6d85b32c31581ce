package helpers

// RecommendedMemoryLimitMB sizes the heap ceiling for the replay windows
// from installed RAM: half the machine, clamped to [512, 4096] MB. Machines
// with less than 512MB get their full total; a failed probe falls back to
// the floor.
func RecommendedMemoryLimitMB() int {
	totalMB := totalSystemMemoryMB()
	if totalMB <= 0 {
		return 512
	}

	limit := totalMB / 2
	if limit < 512 {
		if totalMB < 512 {
			return totalMB
		}
		return 512
	}
	if limit > 4096 {
		limit = 4096
	}
	return limit
}
