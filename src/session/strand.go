package session

import "sync"

// -----------------------------------------------------------------------------
// strand serializes all work of one session onto a single goroutine. Tasks
// posted from any goroutine run FIFO; sessions stay mutually parallel. After
// stop, posts are dropped and the drain goroutine exits.
// -----------------------------------------------------------------------------

const strandBuffer = 1024

type strand struct {
	tasks chan func()
	quit  chan struct{}
	once  sync.Once
}

func newStrand() *strand {
	s := &strand{
		tasks: make(chan func(), strandBuffer),
		quit:  make(chan struct{}),
	}
	go s.loop()
	return s
}

// -----------------------------------------------------------------------------

func (s *strand) loop() {
	for {
		select {
		case <-s.quit:
			return
		case task := <-s.tasks:
			task()
		}
	}
}

// -----------------------------------------------------------------------------

// post enqueues one task. A full queue blocks the caller until the strand
// catches up or stops.
func (s *strand) post(task func()) {
	select {
	case <-s.quit:
	case s.tasks <- task:
	}
}

// -----------------------------------------------------------------------------

// stop ends the strand. Queued tasks that have not started are dropped. The
// drain goroutine exits at its next select, so stop is safe to call from a
// strand task.
func (s *strand) stop() {
	s.once.Do(func() { close(s.quit) })
}
