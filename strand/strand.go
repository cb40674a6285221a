// Package strand implements spec.md §3/§4.G's Strand: a per-entity FIFO
// serialization domain. No two functors posted to the same Strand ever run
// concurrently, and they run in the order they were posted, regardless of
// how many goroutines call Execute concurrently or whether an Executor
// backs the Strand with a worker pool.
package strand

import "sync"

// Strand serializes execution of funcs posted to it. When exec is nil,
// functions run inline on whichever goroutine's Execute call finds the
// Strand idle (the caller "becomes" the strand's runner for as long as
// work keeps arriving); when exec is non-nil, draining happens on one of
// the Executor's pool goroutines instead, freeing the submitting
// goroutine immediately. Either way, at most one func runs at a time and
// FIFO order is preserved (spec.md §8 invariant 3).
type Strand struct {
	mu       sync.Mutex
	queue    []func()
	busy     bool
	runnerID uint64
	exec     *Executor
}

// New creates a Strand. A nil exec means Execute runs work inline on the
// calling goroutine; a non-nil exec dispatches draining to its pool.
func New(exec *Executor) *Strand {
	return &Strand{exec: exec}
}

// Execute posts fn to run on the strand. If the strand is idle, fn (and
// anything posted while it runs) executes right away; if the strand is
// busy, fn is appended to the FIFO queue and runs after everything ahead
// of it.
func (s *Strand) Execute(fn func()) {
	s.mu.Lock()
	if s.busy {
		s.queue = append(s.queue, fn)
		s.mu.Unlock()
		return
	}
	s.busy = true
	s.mu.Unlock()

	if s.exec != nil {
		s.exec.Submit(func() { s.drain(fn) })
	} else {
		s.drain(fn)
	}
}

// MoveAndExecute posts fn exactly like Execute. Its BDE/ntci counterpart
// distinguishes "execute" (copies a functor) from "move and execute"
// (transfers ownership of a functor holding move-only state, e.g. a
// unique_ptr); Go closures capture by reference or value with no analogous
// ownership-transfer cost, so the two operations collapse to one here —
// see SPEC_FULL.md §3's note on GC-based ownership replacing the original's
// move/shared_ptr distinctions.
func (s *Strand) MoveAndExecute(fn func()) { s.Execute(fn) }

func (s *Strand) drain(first func()) {
	fn := first
	for {
		s.mu.Lock()
		s.runnerID = goroutineID()
		s.mu.Unlock()

		fn()

		s.mu.Lock()
		if len(s.queue) == 0 {
			s.busy = false
			s.runnerID = 0
			s.mu.Unlock()
			return
		}
		fn = s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
	}
}

// IsRunningInCurrentGoroutine reports whether the calling goroutine is the
// one currently draining this strand — true from inside a func the strand
// itself invoked (directly or via nested Execute calls on the same
// goroutine), false from any unrelated goroutine, including one that is
// merely waiting on Execute to return.
func (s *Strand) IsRunningInCurrentGoroutine() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy && s.runnerID == goroutineID()
}

// QueueLen reports the number of funcs waiting to run after whatever is
// currently executing (0 if the strand is idle).
func (s *Strand) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
