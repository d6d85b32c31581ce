package utils

import "sync"

// -----------------------------------------------------------------------------
// ReplayLog is a fixed-size circular store of sequenced records backing the
// offline replay verbs. When full, the oldest records fall off so memory
// stays bounded; a replay that reaches past the window is silently partial.
// -----------------------------------------------------------------------------

// Sequenced is implemented by records that carry a replay sequence number.
type Sequenced interface {
	SetSeq(seq int64)
	GetSeq() int64
}

type ReplayLog[T Sequenced] struct {
	mu       sync.Mutex
	data     []T
	capacity int
	index    int // Next write position
	size     int // Current number of elements
	seq      int64
}

// -----------------------------------------------------------------------------

// NewReplayLog creates a new log with fixed capacity
func NewReplayLog[T Sequenced](capacity int) *ReplayLog[T] {
	if capacity <= 0 {
		capacity = DefaultReplayCapacity
	}

	return &ReplayLog[T]{
		data:     make([]T, capacity),
		capacity: capacity,
	}
}

// -----------------------------------------------------------------------------

// Append stamps the record with the next sequence number and stores it.
func (l *ReplayLog[T]) Append(rec T) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	rec.SetSeq(l.seq)

	l.data[l.index] = rec
	l.index = (l.index + 1) % l.capacity

	// Update size (never exceeds capacity)
	if l.size < l.capacity {
		l.size++
	}
	return l.seq
}

// -----------------------------------------------------------------------------

// Replay visits stored records with seq greater than after, oldest first.
func (l *ReplayLog[T]) Replay(after int64, visit func(rec T)) {
	l.mu.Lock()
	recs := l.snapshotLocked()
	l.mu.Unlock()

	for _, rec := range recs {
		if rec.GetSeq() > after {
			visit(rec)
		}
	}
}

// snapshotLocked extracts all records in insertion order (oldest to newest).
func (l *ReplayLog[T]) snapshotLocked() []T {
	if l.size == 0 {
		return nil
	}

	// Oldest element position: wrap-around when full
	startIdx := 0
	if l.size == l.capacity {
		startIdx = l.index
	}

	result := make([]T, l.size)
	for i := 0; i < l.size; i++ {
		result[i] = l.data[(startIdx+i)%l.capacity]
	}
	return result
}

// -----------------------------------------------------------------------------

// LastSeq returns the most recently issued sequence number.
func (l *ReplayLog[T]) LastSeq() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

// -----------------------------------------------------------------------------

// Size returns current number of elements
func (l *ReplayLog[T]) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

// -----------------------------------------------------------------------------

// Capacity returns the window size
func (l *ReplayLog[T]) Capacity() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.capacity
}

// -----------------------------------------------------------------------------

// Resize changes the window size, keeping the newest records when shrinking.
// Sequence numbering is unaffected.
func (l *ReplayLog[T]) Resize(newCapacity int) {
	if newCapacity <= 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if newCapacity == l.capacity {
		return
	}

	count := l.size
	if count > newCapacity {
		count = newCapacity
	}

	// Extract the latest 'count' records from the old layout
	startIdx := (l.index - count + l.capacity) % l.capacity
	newData := make([]T, newCapacity)
	for i := 0; i < count; i++ {
		newData[i] = l.data[(startIdx+i)%l.capacity]
	}

	l.data = newData
	l.capacity = newCapacity
	l.size = count
	l.index = count % newCapacity
}

// -----------------------------------------------------------------------------

// IsFull returns whether the window is full
func (l *ReplayLog[T]) IsFull() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size == l.capacity
}

// -----------------------------------------------------------------------------

// Clear drops all stored records but keeps the sequence counter.
func (l *ReplayLog[T]) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.index = 0
	l.size = 0
}
