package flow

import (
	"sync"

	"github.com/xtaci/ntsock"
)

// ShutdownPhase is one state of the five-state shutdown sequence of
// spec.md §3: Open, Initiated, SendClosed, ReceiveClosed, Complete.
type ShutdownPhase int

const (
	ShutdownOpen ShutdownPhase = iota
	ShutdownInitiated
	ShutdownSendClosed
	ShutdownReceiveClosed
	ShutdownComplete
)

func (p ShutdownPhase) String() string {
	switch p {
	case ShutdownOpen:
		return "open"
	case ShutdownInitiated:
		return "initiated"
	case ShutdownSendClosed:
		return "send-closed"
	case ShutdownReceiveClosed:
		return "receive-closed"
	case ShutdownComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// ShutdownOrigin records who asked for the shutdown.
type ShutdownOrigin int

const (
	ShutdownOriginNone ShutdownOrigin = iota
	ShutdownOriginLocal
	ShutdownOriginRemote
)

// ShutdownState is a monotonic, forward-only state machine: once a phase
// is reached it is never un-reached, and ShutdownComplete fires its
// completion signal exactly once no matter how many times Complete is
// called (spec.md §8 invariant 6). Grounded on xtaci/smux's Session.Close
// (session.go, vendored in the teacher), which pairs a sync.Once with a
// closed channel so concurrent callers and the read/write loops agree on
// "closed" exactly once; generalized here from a single terminal state to
// the full five-phase half-close sequence.
type ShutdownState struct {
	initiated  bool
	origin     ShutdownOrigin
	sendClosed bool
	recvClosed bool

	completeOnce sync.Once
	done         chan struct{}
}

// NewShutdownState returns a ShutdownState in phase Open.
func NewShutdownState() *ShutdownState {
	return &ShutdownState{done: make(chan struct{})}
}

// Phase reports the current phase.
func (s *ShutdownState) Phase() ShutdownPhase {
	switch {
	case s.isComplete():
		return ShutdownComplete
	case s.sendClosed && s.recvClosed:
		return ShutdownReceiveClosed
	case s.sendClosed:
		return ShutdownSendClosed
	case s.initiated:
		return ShutdownInitiated
	default:
		return ShutdownOpen
	}
}

// Origin reports who initiated the shutdown, or ShutdownOriginNone before
// Initiate has been called.
func (s *ShutdownState) Origin() ShutdownOrigin { return s.origin }

func (s *ShutdownState) isComplete() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Initiate transitions Open -> Initiated, recording who asked. Calling it
// again after initiation is a no-op returning ntsock.ErrInProgress rather
// than an error that would suggest the first request was lost.
func (s *ShutdownState) Initiate(origin ShutdownOrigin) error {
	if s.initiated {
		return ntsock.ErrInProgress
	}
	s.initiated = true
	s.origin = origin
	return nil
}

// CloseSend marks the send direction closed. Idempotent; returns
// ntsock.ErrClosed if the state has already reached Complete.
func (s *ShutdownState) CloseSend() error {
	if s.isComplete() {
		return ntsock.ErrClosed
	}
	s.sendClosed = true
	return nil
}

// CloseReceive marks the receive direction closed. Idempotent; returns
// ntsock.ErrClosed if the state has already reached Complete.
func (s *ShutdownState) CloseReceive() error {
	if s.isComplete() {
		return ntsock.ErrClosed
	}
	s.recvClosed = true
	return nil
}

// Complete transitions to ShutdownComplete and reports whether this call
// is the one that fired the transition (false if called before both
// directions are closed, or if the state was already complete).
func (s *ShutdownState) Complete() bool {
	if !s.sendClosed || !s.recvClosed {
		return false
	}
	fired := false
	s.completeOnce.Do(func() {
		close(s.done)
		fired = true
	})
	return fired
}

// Done returns a channel closed exactly once, when Complete first
// succeeds, for goroutines (e.g. the socket's Strand) that need to wait
// for shutdown without polling Phase.
func (s *ShutdownState) Done() <-chan struct{} { return s.done }
