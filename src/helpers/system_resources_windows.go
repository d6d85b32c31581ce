//go:build windows

package helpers

import (
	"syscall"
	"unsafe"
)

// memoryStatusEx mirrors the win32 MEMORYSTATUSEX layout.
type memoryStatusEx struct {
	length               uint32
	memoryLoad           uint32
	totalPhys            uint64
	availPhys            uint64
	totalPageFile        uint64
	availPageFile        uint64
	totalVirtual         uint64
	availVirtual         uint64
	availExtendedVirtual uint64
}

// totalSystemMemoryMB calls GlobalMemoryStatusEx. Returns 0 when the probe
// fails.
func totalSystemMemoryMB() int {
	kernel32, err := syscall.LoadDLL("kernel32.dll")
	if err != nil {
		return 0
	}
	defer kernel32.Release()

	proc, err := kernel32.FindProc("GlobalMemoryStatusEx")
	if err != nil {
		return 0
	}

	var st memoryStatusEx
	st.length = uint32(unsafe.Sizeof(st))
	if ret, _, _ := proc.Call(uintptr(unsafe.Pointer(&st))); ret == 0 {
		return 0
	}
	return int(st.totalPhys >> 20)
}
