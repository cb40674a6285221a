//go:build linux

package netio

import (
	"context"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/xtaci/ntsock"
)

// Reactor is the reference ntsock.Reactor (spec.md §4.H), an epoll(7) event
// loop grounded on the same pack's platform-split style
// (runZeroInc-sockstats's tcpinfo_linux.go vs tcpinfo_other.go): level
// triggered, one shared epoll instance, one dispatcher goroutine.
type Reactor struct {
	epfd int

	mu      sync.Mutex
	targets map[int]ntsock.ReactorSocket
	armed   map[int]armState

	closeOnce sync.Once
	stop      chan struct{}
}

type armState struct {
	readable, writable bool
}

// NewReactor starts the epoll dispatcher goroutine and returns a ready
// Reactor. Call Close to stop the goroutine and release the epoll fd.
func NewReactor() (*Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, classifyErrno(err)
	}
	r := &Reactor{
		epfd:    epfd,
		targets: make(map[int]ntsock.ReactorSocket),
		armed:   make(map[int]armState),
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
	fd := h.FD()

	r.mu.Lock()
	r.targets[fd] = target
	r.armed[fd] = armState{}
	r.mu.Unlock()

	ev := unix.EpollEvent{Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return classifyErrno(err)
	}
	return nil
}

// DetachSocket removes fd from epoll and invokes onDetached once that is
// done. It is asynchronous per spec.md §4.H, so onDetached runs on a
// separate goroutine rather than inline.
func (r *Reactor) DetachSocket(ctx context.Context, handle ntsock.SocketHandle, onDetached func()) error {
	h, ok := handle.(*Handle)
	if !ok {
		return ntsock.ErrInvalid
	}
	fd := h.FD()

	unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	r.mu.Lock()
	delete(r.targets, fd)
	delete(r.armed, fd)
	r.mu.Unlock()

	go onDetached()
	return nil
}

func (r *Reactor) setArmed(handle ntsock.SocketHandle, mutate func(*armState)) {
	h, ok := handle.(*Handle)
	if !ok {
		return
	}
	fd := h.FD()

	r.mu.Lock()
	st := r.armed[fd]
	mutate(&st)
	r.armed[fd] = st
	r.mu.Unlock()

	var events uint32
	if st.readable {
		events |= unix.EPOLLIN
	}
	if st.writable {
		events |= unix.EPOLLOUT
	}
	ev := unix.EpollEvent{Fd: int32(fd), Events: events}
	unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
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
	events := make([]unix.EpollEvent, 128)
	for {
		select {
		case <-r.stop:
			return
		default:
		}
		// A bounded wait lets the loop observe r.stop after Close.
		n, err := unix.EpollWait(r.epfd, events, 100)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return
		}
		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			r.mu.Lock()
			target := r.targets[fd]
			r.mu.Unlock()
			if target == nil {
				continue
			}
			mask := events[i].Events
			if mask&(unix.EPOLLERR) != 0 {
				target.ProcessSocketError(ntsock.ErrClosed)
				continue
			}
			if mask&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
				target.ProcessSocketReadable()
			}
			if mask&unix.EPOLLOUT != 0 {
				target.ProcessSocketWritable()
			}
		}
	}
}

// Close stops the dispatcher goroutine and releases the epoll descriptor.
func (r *Reactor) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.stop)
		err = unix.Close(r.epfd)
	})
	return err
}
