//go:build darwin

package helpers

import (
	"os/exec"
	"strconv"
	"strings"
)

// totalSystemMemoryMB asks sysctl for hw.memsize. Returns 0 when the probe
// fails.
func totalSystemMemoryMB() int {
	out, err := exec.Command("sysctl", "-n", "hw.memsize").Output()
	if err != nil {
		return 0
	}

	bytes, err := strconv.ParseInt(strings.TrimSpace(string(out)), 10, 64)
	if err != nil {
		return 0
	}
	return int(bytes >> 20)
}
