package sock

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/xtaci/ntsock"
	"github.com/xtaci/ntsock/flow"
	"github.com/xtaci/ntsock/queue"
	"github.com/xtaci/ntsock/strand"
)

// ListenerOptions configures a ListenerSocket's OS backlog, accept-queue
// watermarks and accept-rate limiter (spec.md §4.J).
type ListenerOptions struct {
	Backlog             int
	AcceptLowWatermark  int
	AcceptHighWatermark int

	// AcceptRateLimit is the sustained accepts/sec the rate limiter
	// allows; zero disables rate limiting entirely.
	AcceptRateLimit rate.Limit
	AcceptRateBurst int
}

// DefaultListenerOptions mirrors the teacher's server/config.go sizing
// style, unthrottled by default.
func DefaultListenerOptions() ListenerOptions {
	return ListenerOptions{
		Backlog:             128,
		AcceptLowWatermark:  0,
		AcceptHighWatermark: 64,
	}
}

// ListenerEvents are the notification sinks a ListenerSocket drives on its
// Strand (spec.md §4.J, mirroring StreamEvents).
type ListenerEvents struct {
	OnLowWatermark  func()
	OnHighWatermark func()
	OnClosed        func()
	OnError         func(err error)
}

// ListenerSocket orchestrates an AcceptQueue and the detach state machine
// on top of a Reactor-attached listening SocketHandle to implement
// spec.md §4.J. The accept-rate limiter is grounded on
// golang.org/x/time/rate, the pack's idiomatic token bucket, replacing the
// teacher's unthrottled net.Listener.Accept loop (server/main.go) with the
// backlog admission control spec.md §4.J calls for.
type ListenerSocket struct {
	mu sync.Mutex

	handle  ntsock.SocketHandle
	reactor ntsock.Reactor
	strand  *strand.Strand
	wheel   *Wheel
	opts    ListenerOptions
	events  ListenerEvents

	acceptQ *queue.AcceptQueue
	limiter *rate.Limiter

	detach *flow.DetachState

	opened        bool
	listening     bool
	readableArmed bool
	closing       bool
	closeCallback func()
}

// NewListenerSocket wires a freshly constructed (but not yet Open'd)
// handle to a reactor and a strand.
func NewListenerSocket(handle ntsock.SocketHandle, reactor ntsock.Reactor, st *strand.Strand, wheel *Wheel, opts ListenerOptions, events ListenerEvents) *ListenerSocket {
	var limiter *rate.Limiter
	if opts.AcceptRateLimit > 0 {
		burst := opts.AcceptRateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(opts.AcceptRateLimit, burst)
	}
	return &ListenerSocket{
		handle:  handle,
		reactor: reactor,
		strand:  st,
		wheel:   wheel,
		opts:    opts,
		events:  events,
		acceptQ: queue.NewAcceptQueue(opts.AcceptLowWatermark, opts.AcceptHighWatermark),
		limiter: limiter,
		detach:  flow.NewDetachState(),
	}
}

// Open opens the underlying handle and attaches it to the reactor
// (spec.md §4.J, mirroring StreamSocket.Open).
func (s *ListenerSocket) Open(family ntsock.TransportFamily) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opened {
		return ntsock.ErrAlreadyOpen
	}
	if err := s.handle.Open(family); err != nil {
		return err
	}
	if err := s.handle.SetBlocking(false); err != nil {
		return err
	}
	s.opened = true
	return s.reactor.AttachSocket(s.handle, s)
}

// Bind assigns the local endpoint (spec.md §4.J bind).
func (s *ListenerSocket) Bind(endpoint ntsock.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle.Bind(endpoint)
}

// Listen starts the OS backlog and arms readability (spec.md §4.J listen).
func (s *ListenerSocket) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.handle.Listen(s.opts.Backlog); err != nil {
		return err
	}
	s.listening = true
	s.readableArmed = true
	s.reactor.ShowReadable(s.handle)
	return nil
}

// Accept requests the next child connection, invoking cb once one is
// available, cancelled, or its deadline elapses (spec.md §4.J, mirroring
// §4.I accept/cancel).
func (s *ListenerSocket) Accept(deadline time.Time, hasDeadline bool, tok ntsock.Token, hasToken bool, cb queue.AcceptCallback) (uint64, error) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return 0, ntsock.ErrClosed
	}
	id := s.acceptQ.NextID()
	entry := &queue.AcceptQueueEntry{ID: id, Token: tok, HasToken: hasToken, Callback: cb}
	if hasDeadline {
		entry.Deadline = deadline
		entry.HasDeadline = true
		entry.Timer = s.wheel.Schedule(deadline, func() {
			s.strand.Execute(func() { s.cancelAcceptByID(id) })
		})
	}
	satisfied := s.acceptQ.PushRequest(entry)
	s.mu.Unlock()

	if satisfied != nil && satisfied.Entry.Callback != nil {
		s.strand.Execute(func() {
			satisfied.Entry.Callback(satisfied.Entry.ID, satisfied.Conn.Handle(), satisfied.Conn.Remote(), nil)
		})
	}
	return id, nil
}

func (s *ListenerSocket) cancelAcceptByID(id uint64) {
	s.mu.Lock()
	entry, err := s.acceptQ.RemoveByID(id)
	s.mu.Unlock()
	if err != nil {
		return
	}
	if entry.Callback != nil {
		entry.Callback(entry.ID, nil, ntsock.Endpoint{}, ntsock.ErrTimedOut)
	}
}

// Cancel removes a pending accept request by token (spec.md §4.I cancel,
// mirrored for listeners).
func (s *ListenerSocket) Cancel(tok ntsock.Token) error {
	s.mu.Lock()
	entry, err := s.acceptQ.RemoveByToken(tok)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if entry.Callback != nil {
		entry.Callback(entry.ID, nil, ntsock.Endpoint{}, ntsock.ErrCancelled)
	}
	return nil
}

// ProcessSocketReadable implements ntsock.ReactorSocket: it dequeues one
// child connection per readable event (spec.md §4.J), honoring the
// accept-rate limiter and the accept-queue high watermark.
func (s *ListenerSocket) ProcessSocketReadable() {
	s.strand.Execute(s.handleReadable)
}

func (s *ListenerSocket) handleReadable() {
	s.mu.Lock()
	if s.acceptQ.WouldExceedHighWatermark() {
		s.readableArmed = false
		s.mu.Unlock()
		s.reactor.HideReadable(s.handle)
		return
	}
	s.mu.Unlock()

	if s.limiter != nil && !s.limiter.Allow() {
		delay := s.limiter.Reserve().Delay()
		s.mu.Lock()
		s.readableArmed = false
		s.mu.Unlock()
		s.reactor.HideReadable(s.handle)
		s.wheel.Schedule(time.Now().Add(delay), func() {
			s.strand.Execute(s.rearmReadable)
		})
		return
	}

	child, err := s.handle.Accept()
	if err != nil {
		if ntsock.Is(err, ntsock.KindWouldBlock) {
			return
		}
		if s.events.OnError != nil {
			s.events.OnError(err)
		}
		return
	}
	remote, _ := child.RemoteEndpoint()

	s.mu.Lock()
	satisfied := s.acceptQ.Offer(child, remote)
	lowEvent := s.acceptQ.AuthorizeLowWatermarkEvent()
	highEvent := s.acceptQ.AuthorizeHighWatermarkEvent(s.acceptQ.HighWatermark())
	s.mu.Unlock()

	if satisfied != nil && satisfied.Entry.Callback != nil {
		satisfied.Entry.Callback(satisfied.Entry.ID, satisfied.Conn.Handle(), satisfied.Conn.Remote(), nil)
	}
	if lowEvent && s.events.OnLowWatermark != nil {
		s.events.OnLowWatermark()
	}
	if highEvent && s.events.OnHighWatermark != nil {
		s.events.OnHighWatermark()
	}
}

func (s *ListenerSocket) rearmReadable() {
	s.mu.Lock()
	if s.readableArmed || s.closing {
		s.mu.Unlock()
		return
	}
	s.readableArmed = true
	s.mu.Unlock()
	s.reactor.ShowReadable(s.handle)
}

// ProcessSocketWritable implements ntsock.ReactorSocket; a listening
// socket never becomes writable.
func (s *ListenerSocket) ProcessSocketWritable() {}

// ProcessSocketError implements ntsock.ReactorSocket: it flushes every
// pending accept request and closes every buffered-but-undelivered child.
func (s *ListenerSocket) ProcessSocketError(err error) {
	s.strand.Execute(func() {
		s.mu.Lock()
		entries, handles := s.acceptQ.RemoveAll()
		s.mu.Unlock()
		for _, e := range entries {
			if e.Callback != nil {
				e.Callback(e.ID, nil, ntsock.Endpoint{}, err)
			}
		}
		for _, h := range handles {
			_ = h.Close()
		}
		if s.events.OnError != nil {
			s.events.OnError(err)
		}
	})
}

// ProcessNotifications implements ntsock.ReactorSocket; listener sockets
// do not receive per-datagram timestamps or zero-copy completions.
func (s *ListenerSocket) ProcessNotifications(ns []ntsock.Notification) {}

// Close detaches from the reactor and closes the OS handle, draining the
// accept queue with Closed status and closing every buffered-but-
// undelivered child (spec.md §5 resource lifecycle).
func (s *ListenerSocket) Close(ctx context.Context, cb func()) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return ntsock.ErrInProgress
	}
	s.closing = true
	s.closeCallback = cb
	entries, handles := s.acceptQ.RemoveAll()
	s.mu.Unlock()

	for _, e := range entries {
		if e.Callback != nil {
			e.Callback(e.ID, nil, ntsock.Endpoint{}, ntsock.ErrClosed)
		}
	}
	for _, h := range handles {
		_ = h.Close()
	}

	s.mu.Lock()
	err := s.detach.BeginDetach()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	return s.reactor.DetachSocket(ctx, s.handle, func() {
		s.strand.Execute(s.finishClose)
	})
}

func (s *ListenerSocket) finishClose() {
	s.mu.Lock()
	s.detach.Complete()
	_ = s.handle.Close()
	cb := s.closeCallback
	s.mu.Unlock()

	if cb != nil {
		cb()
	}
	if s.events.OnClosed != nil {
		s.events.OnClosed()
	}
}
