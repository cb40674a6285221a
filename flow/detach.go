package flow

import (
	"sync"

	"github.com/xtaci/ntsock"
)

// DetachPhase is one state of the three-state reactor-detach sequence of
// spec.md §3/§4.H: Attached, Detaching, Detached.
type DetachPhase int

const (
	DetachAttached DetachPhase = iota
	DetachDetaching
	DetachDetached
)

func (p DetachPhase) String() string {
	switch p {
	case DetachAttached:
		return "attached"
	case DetachDetaching:
		return "detaching"
	case DetachDetached:
		return "detached"
	default:
		return "unknown"
	}
}

// DetachState tracks a socket's membership in a Reactor across an
// asynchronous DetachSocket call, with the same once-only completion
// guarantee as ShutdownState.
type DetachState struct {
	detaching bool

	once sync.Once
	done chan struct{}
}

// NewDetachState returns a DetachState in phase Attached.
func NewDetachState() *DetachState {
	return &DetachState{done: make(chan struct{})}
}

func (d *DetachState) Phase() DetachPhase {
	switch {
	case d.isDetached():
		return DetachDetached
	case d.detaching:
		return DetachDetaching
	default:
		return DetachAttached
	}
}

func (d *DetachState) isDetached() bool {
	select {
	case <-d.done:
		return true
	default:
		return false
	}
}

// BeginDetach transitions Attached -> Detaching. Calling it again returns
// ntsock.ErrInProgress.
func (d *DetachState) BeginDetach() error {
	if d.detaching {
		return ntsock.ErrInProgress
	}
	d.detaching = true
	return nil
}

// Complete transitions Detaching -> Detached, firing the completion signal
// at most once, and reports whether this call is the one that fired it.
func (d *DetachState) Complete() bool {
	if !d.detaching {
		return false
	}
	fired := false
	d.once.Do(func() {
		close(d.done)
		fired = true
	})
	return fired
}

// Done returns a channel closed exactly once, when Complete first
// succeeds.
func (d *DetachState) Done() <-chan struct{} { return d.done }
