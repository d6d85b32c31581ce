//go:build linux

package helpers

import (
	"os"
	"strconv"
	"strings"
)

// totalSystemMemoryMB reads MemTotal from /proc/meminfo. Returns 0 when the
// probe fails.
func totalSystemMemoryMB() int {
	raw, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return 0
	}

	for _, line := range strings.Split(string(raw), "\n") {
		if !strings.HasPrefix(line, "MemTotal:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0
		}
		kb, err := strconv.Atoi(fields[1])
		if err != nil {
			return 0
		}
		return kb / 1024
	}
	return 0
}
