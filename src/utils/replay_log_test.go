package utils

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------

type seqRec struct {
	seq  int64
	name string
}

func (r *seqRec) SetSeq(seq int64) { r.seq = seq }
func (r *seqRec) GetSeq() int64    { return r.seq }

func collect(l *ReplayLog[*seqRec], after int64) []string {
	var names []string
	l.Replay(after, func(rec *seqRec) {
		names = append(names, rec.name)
	})
	return names
}

// -----------------------------------------------------------------------------

func TestReplayLogAppendAssignsSequence(t *testing.T) {
	l := NewReplayLog[*seqRec](4)

	a := &seqRec{name: "a"}
	b := &seqRec{name: "b"}
	assert.Equal(t, int64(1), l.Append(a))
	assert.Equal(t, int64(2), l.Append(b))
	assert.Equal(t, int64(1), a.seq)
	assert.Equal(t, int64(2), b.seq)
	assert.Equal(t, int64(2), l.LastSeq())
	assert.Equal(t, 2, l.Size())
}

func TestReplayLogReplayAfterCursor(t *testing.T) {
	l := NewReplayLog[*seqRec](8)
	for _, n := range []string{"a", "b", "c", "d"} {
		l.Append(&seqRec{name: n})
	}

	assert.Equal(t, []string{"a", "b", "c", "d"}, collect(l, 0))
	assert.Equal(t, []string{"c", "d"}, collect(l, 2))
	assert.Empty(t, collect(l, 4))
	assert.Empty(t, collect(l, 99))
}

func TestReplayLogWrapKeepsNewest(t *testing.T) {
	l := NewReplayLog[*seqRec](3)
	for i := 1; i <= 5; i++ {
		l.Append(&seqRec{name: fmt.Sprintf("r%d", i)})
	}

	require.True(t, l.IsFull())
	assert.Equal(t, 3, l.Size())
	// The two oldest fell off the window.
	assert.Equal(t, []string{"r3", "r4", "r5"}, collect(l, 0))
	assert.Equal(t, int64(5), l.LastSeq())
}

func TestReplayLogResizeShrinkKeepsNewest(t *testing.T) {
	l := NewReplayLog[*seqRec](8)
	for i := 1; i <= 6; i++ {
		l.Append(&seqRec{name: fmt.Sprintf("r%d", i)})
	}

	l.Resize(3)
	assert.Equal(t, 3, l.Capacity())
	assert.Equal(t, []string{"r4", "r5", "r6"}, collect(l, 0))

	// Growing preserves contents and later appends keep numbering.
	l.Resize(10)
	l.Append(&seqRec{name: "r7"})
	assert.Equal(t, []string{"r4", "r5", "r6", "r7"}, collect(l, 0))
	assert.Equal(t, int64(7), l.LastSeq())
}

func TestReplayLogClearKeepsSequence(t *testing.T) {
	l := NewReplayLog[*seqRec](4)
	l.Append(&seqRec{name: "a"})
	l.Append(&seqRec{name: "b"})

	l.Clear()
	assert.Equal(t, 0, l.Size())
	assert.Empty(t, collect(l, 0))

	l.Append(&seqRec{name: "c"})
	assert.Equal(t, int64(3), l.LastSeq())
}

func TestReplayLogConcurrentAppend(t *testing.T) {
	l := NewReplayLog[*seqRec](1000)

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				l.Append(&seqRec{name: "x"})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 500, l.Size())
	assert.Equal(t, int64(500), l.LastSeq())

	// All sequence numbers distinct and dense.
	seen := make(map[int64]bool)
	l.Replay(0, func(rec *seqRec) { seen[rec.seq] = true })
	assert.Len(t, seen, 500)
}

// -----------------------------------------------------------------------------

func TestMemoryGuardShrinksRegisteredStores(t *testing.T) {
	// Ceiling of 0 MB forces a shrink on every check.
	g := NewMemoryGuard(0, testLogger(t))
	l := NewReplayLog[*seqRec](MinReplayCapacity * 4)
	g.Register("confirmations", l)

	g.Check()
	assert.Equal(t, MinReplayCapacity*2, l.Capacity())

	g.Check()
	g.Check()
	// Never below the floor.
	assert.Equal(t, MinReplayCapacity, l.Capacity())
}

func TestMemoryGuardRespectsCeiling(t *testing.T) {
	// A huge ceiling never triggers a shrink.
	g := NewMemoryGuard(1<<20, testLogger(t))
	l := NewReplayLog[*seqRec](2048)
	g.Register("events", l)

	g.Check()
	assert.Equal(t, 2048, l.Capacity())
	assert.Greater(t, g.ProcessMemoryMB(), 0.0)
}

func TestCalculateReplayCapacity(t *testing.T) {
	assert.Equal(t, 4000, CalculateReplayCapacity(1))
	assert.Equal(t, 28000, CalculateReplayCapacity(7))
	// Floor applies for tiny windows.
	assert.Equal(t, MinReplayCapacity, CalculateReplayCapacity(0))
}
