//go:build unix && !linux

package netio

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/xtaci/ntsock"
)

// Reactor is the portable fallback ntsock.Reactor for unix platforms
// without epoll (spec.md §4.H): a single goroutine polling every armed
// descriptor with poll(2), rebuilt each iteration. It is intentionally the
// less fussy sibling of reactor_linux.go's epoll loop — the same
// tcpinfo_linux.go/tcpinfo_other.go split runZeroInc-sockstats uses to keep
// the fast path and the portable path out of each other's way.
type Reactor struct {
	mu      sync.Mutex
	targets map[int]ntsock.ReactorSocket
	armed   map[int]armState

	wake      chan struct{}
	stop      chan struct{}
	closeOnce sync.Once
}

type armState struct {
	readable, writable bool
}

// pollInterval bounds how long a newly-armed descriptor waits to be picked
// up when the loop is otherwise idle or blocked in poll(2).
const pollInterval = 100 * time.Millisecond

func NewReactor() (*Reactor, error) {
	r := &Reactor{
		targets: make(map[int]ntsock.ReactorSocket),
		armed:   make(map[int]armState),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
	go r.loop()
	return r, nil
}

func (r *Reactor) AttachSocket(handle ntsock.SocketHandle, target ntsock.ReactorSocket) error {
	h, ok := handle.(*Handle)
	if !ok {
		return ntsock.ErrInvalid
	}
	r.mu.Lock()
	r.targets[h.FD()] = target
	r.armed[h.FD()] = armState{}
	r.mu.Unlock()
	return nil
}

func (r *Reactor) DetachSocket(ctx context.Context, handle ntsock.SocketHandle, onDetached func()) error {
	h, ok := handle.(*Handle)
	if !ok {
		return ntsock.ErrInvalid
	}
	r.mu.Lock()
	delete(r.targets, h.FD())
	delete(r.armed, h.FD())
	r.mu.Unlock()
	go onDetached()
	return nil
}

func (r *Reactor) setArmed(handle ntsock.SocketHandle, mutate func(*armState)) {
	h, ok := handle.(*Handle)
	if !ok {
		return
	}
	r.mu.Lock()
	st := r.armed[h.FD()]
	mutate(&st)
	r.armed[h.FD()] = st
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Reactor) ShowReadable(handle ntsock.SocketHandle) {
	r.setArmed(handle, func(s *armState) { s.readable = true })
}

func (r *Reactor) HideReadable(handle ntsock.SocketHandle) {
	r.setArmed(handle, func(s *armState) { s.readable = false })
}

func (r *Reactor) ShowWritable(handle ntsock.SocketHandle) {
	r.setArmed(handle, func(s *armState) { s.writable = true })
}

func (r *Reactor) HideWritable(handle ntsock.SocketHandle) {
	r.setArmed(handle, func(s *armState) { s.writable = false })
}

func (r *Reactor) loop() {
	for {
		select {
		case <-r.stop:
			return
		default:
		}

		r.mu.Lock()
		var fds []unix.PollFd
		targets := make(map[int32]ntsock.ReactorSocket, len(r.armed))
		for fd, st := range r.armed {
			var events int16
			if st.readable {
				events |= unix.POLLIN
			}
			if st.writable {
				events |= unix.POLLOUT
			}
			if events == 0 {
				continue
			}
			fds = append(fds, unix.PollFd{Fd: int32(fd), Events: events})
			targets[int32(fd)] = r.targets[fd]
		}
		r.mu.Unlock()

		if len(fds) == 0 {
			select {
			case <-r.wake:
			case <-r.stop:
				return
			case <-time.After(pollInterval):
			}
			continue
		}

		n, err := unix.Poll(fds, int(pollInterval/time.Millisecond))
		if err != nil || n == 0 {
			continue
		}
		for _, pfd := range fds {
			if pfd.Revents == 0 {
				continue
			}
			target := targets[pfd.Fd]
			if target == nil {
				continue
			}
			if pfd.Revents&unix.POLLERR != 0 {
				target.ProcessSocketError(ntsock.ErrClosed)
				continue
			}
			if pfd.Revents&(unix.POLLIN|unix.POLLHUP) != 0 {
				target.ProcessSocketReadable()
			}
			if pfd.Revents&unix.POLLOUT != 0 {
				target.ProcessSocketWritable()
			}
		}
	}
}

// Close stops the polling goroutine.
func (r *Reactor) Close() error {
	r.closeOnce.Do(func() { close(r.stop) })
	return nil
}
