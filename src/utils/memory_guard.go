package utils

import (
	"runtime"
	"runtime/debug"
	"sync"

	"trade-gateway/src/logger"
)

// -----------------------------------------------------------------------------
// MemoryGuard keeps the process heap under a configured ceiling by shrinking
// registered replay windows. Stores register themselves at boot; Check is
// called periodically from the main loop.
// -----------------------------------------------------------------------------

// Shrinkable is the store-side contract: a bounded window that can give
// memory back by dropping its oldest records.
type Shrinkable interface {
	Capacity() int
	Resize(newCapacity int)
}

type MemoryGuard struct {
	mutex       sync.Mutex
	stores      map[string]Shrinkable
	maxMemoryMB int
	logger      *logger.Logger
}

// -----------------------------------------------------------------------------

// NewMemoryGuard creates a guard with the given heap ceiling in MB.
func NewMemoryGuard(maxMemoryMB int, logger *logger.Logger) *MemoryGuard {
	return &MemoryGuard{
		stores:      make(map[string]Shrinkable),
		maxMemoryMB: maxMemoryMB,
		logger:      logger,
	}
}

// -----------------------------------------------------------------------------

// Register adds a store under the given name. Re-registering replaces it.
func (g *MemoryGuard) Register(name string, store Shrinkable) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.stores[name] = store
}

// -----------------------------------------------------------------------------

// Check halves every registered window when the heap exceeds the ceiling.
// Windows never shrink below MinReplayCapacity.
func (g *MemoryGuard) Check() {
	currentMB := g.ProcessMemoryMB()
	if currentMB <= float64(g.maxMemoryMB) {
		return
	}

	g.logger.Warning("memory usage %.1fMB exceeds limit %dMB, shrinking replay windows",
		currentMB, g.maxMemoryMB)

	g.mutex.Lock()
	for name, store := range g.stores {
		oldCap := store.Capacity()
		newCap := oldCap / 2
		if newCap < MinReplayCapacity {
			newCap = MinReplayCapacity
		}
		if newCap < oldCap {
			store.Resize(newCap)
			g.logger.Info("shrunk %s window %d -> %d", name, oldCap, newCap)
		}
	}
	g.mutex.Unlock()

	runtime.GC()
	debug.FreeOSMemory()
}

// -----------------------------------------------------------------------------

// ProcessMemoryMB returns current heap allocation of the process in MB.
func (g *MemoryGuard) ProcessMemoryMB() float64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return float64(m.HeapAlloc) / 1024 / 1024
}
