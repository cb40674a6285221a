package sock

import (
	"context"
	"sync"
	"time"

	"github.com/xtaci/ntsock"
	"github.com/xtaci/ntsock/data"
	"github.com/xtaci/ntsock/flow"
	"github.com/xtaci/ntsock/queue"
	"github.com/xtaci/ntsock/strand"
)

// StreamOptions configures watermarks, read-size feedback and connect
// retry policy for a StreamSocket (spec.md §3 SendQueue/ReceiveQueue/
// ReceiveFeedback fields, §4.I connect retry policy).
type StreamOptions struct {
	SendLowWatermark     int
	SendHighWatermark    int
	ReceiveLowWatermark  int
	ReceiveHighWatermark int

	ReceiveFeedbackMin     int
	ReceiveFeedbackMax     int
	ReceiveFeedbackInitial int

	MaxConnectAttempts int
	ConnectBackoff     time.Duration

	Batch queue.BatchOptions
}

// DefaultStreamOptions mirrors the teacher's sized-constant config style
// (client/config.go's defaultConfig), scaled for a bulk TCP stream.
func DefaultStreamOptions() StreamOptions {
	return StreamOptions{
		SendLowWatermark:       0,
		SendHighWatermark:      4 << 20,
		ReceiveLowWatermark:    0,
		ReceiveHighWatermark:   4 << 20,
		ReceiveFeedbackMin:     4096,
		ReceiveFeedbackMax:     256 << 10,
		ReceiveFeedbackInitial: 16384,
		MaxConnectAttempts:     3,
		ConnectBackoff:         100 * time.Millisecond,
		Batch:                  queue.BatchOptions{MaxBuffers: 64, MaxBytes: 1 << 20},
	}
}

// StreamEvents are the notification sinks a StreamSocket drives on its
// Strand as state changes (spec.md §4.I event list). Every field is
// optional.
type StreamEvents struct {
	OnConnected     func(err error)
	OnShutdown      func(phase flow.ShutdownPhase)
	OnClosed        func()
	OnLowWatermark  func()
	OnHighWatermark func()
	OnError         func(err error)
	OnNotification  func(ntsock.Notification)
}

// ConnectCallback reports the outcome of Connect.
type ConnectCallback func(err error)

// SendOptions carries per-send knobs (spec.md §4.I send).
type SendOptions struct {
	Token               ntsock.Token
	HasToken            bool
	Deadline            time.Time
	HasDeadline         bool
	IgnoreHighWatermark bool
	ZeroCopy            bool
	Callback            queue.SendCallback
}

// ReceiveOptions carries per-receive knobs (spec.md §4.I receive).
type ReceiveOptions struct {
	MinBytes    int
	MaxBytes    int
	Token       ntsock.Token
	HasToken    bool
	Deadline    time.Time
	HasDeadline bool
}

// ShutdownDirection selects which half (or both) of a stream shutdown()
// closes (spec.md §4.E).
type ShutdownDirection int

const (
	ShutdownSend ShutdownDirection = 1 << iota
	ShutdownReceive
	ShutdownBoth = ShutdownSend | ShutdownReceive
)

// StreamSocket orchestrates a SendQueue, a ReceiveQueue, the flow-control
// and shutdown state machines and a Strand on top of a Reactor-attached
// SocketHandle to implement spec.md §4.I. Per spec.md §5, the mutex below
// is held at the public-API boundary and at reactor-event entry; it is
// never held while a Strand-dispatched callback runs.
type StreamSocket struct {
	mu sync.Mutex

	handle  ntsock.SocketHandle
	reactor ntsock.Reactor
	strand  *strand.Strand
	wheel   *Wheel
	events  StreamEvents
	opts    StreamOptions

	sendQ *queue.SendQueue
	recvQ *queue.ReceiveQueue

	flow     *flow.FlowControlState
	shutdown *flow.ShutdownState
	detach   *flow.DetachState

	opened bool
	remote ntsock.Endpoint

	connecting      bool
	connectAttempts int
	connectCallback ConnectCallback
	connectDeadline *WheelTimer

	readableArmed       bool
	writableArmed       bool
	pendingSendShutdown bool

	closing       bool
	closeCallback func()
}

// NewStreamSocket wires a freshly constructed (but not yet Open'd) handle
// to a reactor and a strand.
func NewStreamSocket(handle ntsock.SocketHandle, reactor ntsock.Reactor, st *strand.Strand, wheel *Wheel, opts StreamOptions, events StreamEvents) *StreamSocket {
	fb := queue.NewReceiveFeedback(opts.ReceiveFeedbackMin, opts.ReceiveFeedbackMax, opts.ReceiveFeedbackInitial)
	return &StreamSocket{
		handle:   handle,
		reactor:  reactor,
		strand:   st,
		wheel:    wheel,
		events:   events,
		opts:     opts,
		sendQ:    queue.NewSendQueue(opts.SendLowWatermark, opts.SendHighWatermark),
		recvQ:    queue.NewReceiveQueue(opts.ReceiveLowWatermark, opts.ReceiveHighWatermark, fb),
		flow:     flow.NewFlowControlState(),
		shutdown: flow.NewShutdownState(),
		detach:   flow.NewDetachState(),
	}
}

// Open opens the underlying handle for the given transport family and
// attaches it to the reactor (spec.md §4.I open).
func (s *StreamSocket) Open(family ntsock.TransportFamily) error {
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

// Bind assigns the local endpoint (spec.md §4.I bind).
func (s *StreamSocket) Bind(endpoint ntsock.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle.Bind(endpoint)
}

// Connect initiates an asynchronous connect to endpoint, invoking cb on
// the strand once it succeeds, fails terminally, or its deadline elapses
// (spec.md §4.I connect). hasDeadline false means no per-attempt deadline.
func (s *StreamSocket) Connect(endpoint ntsock.Endpoint, deadline time.Time, hasDeadline bool, cb ConnectCallback) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return ntsock.ErrClosed
	}
	if s.connecting {
		s.mu.Unlock()
		return ntsock.ErrInProgress
	}
	s.connecting = true
	s.connectAttempts = 0
	s.remote = endpoint
	s.connectCallback = cb
	s.mu.Unlock()

	if hasDeadline {
		s.mu.Lock()
		s.connectDeadline = s.wheel.Schedule(deadline, func() {
			s.strand.Execute(func() { s.failConnect(ntsock.ErrTimedOut) })
		})
		s.mu.Unlock()
	}
	return s.attemptConnect()
}

func (s *StreamSocket) attemptConnect() error {
	s.mu.Lock()
	endpoint := s.remote
	s.mu.Unlock()

	err := s.handle.Connect(endpoint)
	if err == nil || ntsock.Is(err, ntsock.KindWouldBlock) || ntsock.Is(err, ntsock.KindInProgress) {
		s.mu.Lock()
		s.writableArmed = true
		s.mu.Unlock()
		s.reactor.ShowWritable(s.handle)
		return nil
	}
	return s.retryOrFailConnect(err)
}

func isTransientConnectError(err error) bool {
	switch ntsock.KindOf(err) {
	case ntsock.KindTimedOut, ntsock.KindConnectionRefused, ntsock.KindConnectionReset:
		return true
	default:
		return false
	}
}

func (s *StreamSocket) retryOrFailConnect(err error) error {
	s.mu.Lock()
	s.connectAttempts++
	attempts := s.connectAttempts
	max := s.opts.MaxConnectAttempts
	s.mu.Unlock()

	if !isTransientConnectError(err) || attempts >= max {
		s.strand.Execute(func() { s.failConnect(err) })
		return err
	}
	backoff := s.opts.ConnectBackoff * time.Duration(attempts)
	s.wheel.Schedule(time.Now().Add(backoff), func() {
		s.strand.Execute(func() { _ = s.attemptConnect() })
	})
	return nil
}

func (s *StreamSocket) failConnect(err error) {
	s.mu.Lock()
	if !s.connecting {
		s.mu.Unlock()
		return
	}
	s.connecting = false
	cb := s.connectCallback
	s.connectCallback = nil
	if s.connectDeadline != nil {
		s.connectDeadline.Stop()
		s.connectDeadline = nil
	}
	s.mu.Unlock()

	if cb != nil {
		cb(err)
	}
	if s.events.OnConnected != nil {
		s.events.OnConnected(err)
	}
}

func (s *StreamSocket) succeedConnect() {
	s.mu.Lock()
	if !s.connecting {
		s.mu.Unlock()
		return
	}
	s.connecting = false
	cb := s.connectCallback
	s.connectCallback = nil
	if s.connectDeadline != nil {
		s.connectDeadline.Stop()
		s.connectDeadline = nil
	}
	s.readableArmed = true
	s.mu.Unlock()

	s.reactor.ShowReadable(s.handle)
	if cb != nil {
		cb(nil)
	}
	if s.events.OnConnected != nil {
		s.events.OnConnected(nil)
	}
}

// Send enqueues d for transmission, attempting a direct non-blocking write
// first when nothing is already queued (spec.md §4.I send step 2), and
// returns the id used to Cancel it later.
func (s *StreamSocket) Send(d data.Data, opts SendOptions) (uint64, error) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return 0, ntsock.ErrClosed
	}
	if ph := s.shutdown.Phase(); ph != flow.ShutdownOpen && ph != flow.ShutdownInitiated {
		s.mu.Unlock()
		return 0, ntsock.ErrClosed
	}

	length := d.Size()
	relaxed := s.flow.SendRelaxed()
	if s.sendQ.WouldExceedHighWatermark(length, opts.IgnoreHighWatermark || relaxed) {
		s.mu.Unlock()
		return 0, ntsock.ErrQueueFull
	}

	id := s.sendQ.NextID()
	entry, err := queue.NewSendQueueEntry(id, d, time.Now().UnixNano())
	if err != nil {
		s.mu.Unlock()
		return 0, err
	}
	entry.Token = opts.Token
	entry.HasToken = opts.HasToken
	entry.Endpoint = s.remote
	entry.HasEndpoint = s.remote.IsDefined()
	entry.ZeroCopy = opts.ZeroCopy
	entry.Callback = opts.Callback

	tryDirect := s.sendQ.Empty() && !entry.IsFileRegion()
	s.mu.Unlock()

	if tryDirect {
		n, werr := s.handle.SendMultiple(entry.Chunks())
		if werr == nil {
			entry.ConsumeDirect(n)
			if entry.Length() == 0 {
				if entry.Callback != nil {
					entry.Callback(id, entry.TotalLength, nil)
				}
				return id, nil
			}
		} else if !ntsock.Is(werr, ntsock.KindWouldBlock) {
			return 0, werr
		}
	}

	if opts.HasDeadline {
		entry.Deadline = opts.Deadline
		entry.HasDeadline = true
		entry.Timer = s.wheel.Schedule(opts.Deadline, func() {
			s.strand.Execute(func() { s.cancelSendByID(id, ntsock.ErrTimedOut) })
		})
	}

	s.mu.Lock()
	becameNonEmpty := s.sendQ.Push(entry)
	arm := becameNonEmpty && !s.writableArmed
	if arm {
		s.writableArmed = true
	}
	highEvent := s.sendQ.AuthorizeHighWatermarkEvent(s.sendQ.HighWatermark())
	s.mu.Unlock()
	if arm {
		s.reactor.ShowWritable(s.handle)
	}
	if highEvent && s.events.OnHighWatermark != nil {
		s.events.OnHighWatermark()
	}
	return id, nil
}

func (s *StreamSocket) cancelSendByID(id uint64, cause error) {
	s.mu.Lock()
	entry, err := s.sendQ.RemoveByID(id)
	s.mu.Unlock()
	if err != nil {
		// Already in flight, already completed, or already gone: the
		// timer firing after the fact is a no-op (spec.md §5).
		return
	}
	s.completeSendEntry(entry, cause)
}

func (s *StreamSocket) completeSendEntry(e *queue.SendQueueEntry, err error) {
	if e.Callback != nil {
		e.Callback(e.ID, e.TotalLength-e.Length(), err)
	}
}

// Receive requests at least opts.MinBytes (and at most opts.MaxBytes, 0
// meaning "whatever has arrived") be delivered to cb once satisfied
// (spec.md §4.I receive).
func (s *StreamSocket) Receive(opts ReceiveOptions, cb queue.ReceiveCallback) (uint64, error) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return 0, ntsock.ErrClosed
	}
	if s.shutdown.Phase() >= flow.ShutdownReceiveClosed {
		s.mu.Unlock()
		return 0, ntsock.ErrClosed
	}

	id := s.recvQ.NextID()
	entry := &queue.ReceiveQueueEntry{
		ID: id, Token: opts.Token, HasToken: opts.HasToken,
		MinBytes: opts.MinBytes, MaxBytes: opts.MaxBytes, Callback: cb,
	}
	if opts.HasDeadline {
		entry.Deadline = opts.Deadline
		entry.HasDeadline = true
		entry.Timer = s.wheel.Schedule(opts.Deadline, func() {
			s.strand.Execute(func() { s.cancelReceiveByID(id) })
		})
	}

	satisfied := s.recvQ.PushRequest(entry)
	armNow := !s.readableArmed && s.recvQ.RoomForReadAhead() > 0
	if armNow {
		s.readableArmed = true
	}
	s.mu.Unlock()

	if armNow {
		s.reactor.ShowReadable(s.handle)
	}
	for _, sat := range satisfied {
		sat := sat
		if sat.Entry.Callback != nil {
			s.strand.Execute(func() { sat.Entry.Callback(sat.Entry.ID, sat.Data, nil) })
		}
	}
	return id, nil
}

func (s *StreamSocket) cancelReceiveByID(id uint64) {
	s.mu.Lock()
	entry, err := s.recvQ.RemoveByID(id)
	s.mu.Unlock()
	if err != nil {
		return
	}
	if entry.Callback != nil {
		entry.Callback(entry.ID, data.Data{}, ntsock.ErrTimedOut)
	}
}

// Cancel removes any pending send or receive entry carrying tok and
// reports its status with ntsock.ErrCancelled (spec.md §4.I cancel).
// Entries already in_progress are left alone and report
// ntsock.ErrInProgress.
func (s *StreamSocket) Cancel(tok ntsock.Token) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return ntsock.ErrClosed
	}
	sendEntry, sendErr := s.sendQ.RemoveByToken(tok)
	s.mu.Unlock()
	if sendErr == nil {
		s.completeSendEntry(sendEntry, ntsock.ErrCancelled)
		return nil
	}

	s.mu.Lock()
	recvEntry, recvErr := s.recvQ.RemoveByToken(tok)
	s.mu.Unlock()
	if recvErr == nil {
		if recvEntry.Callback != nil {
			recvEntry.Callback(recvEntry.ID, data.Data{}, ntsock.ErrCancelled)
		}
		return nil
	}

	if ntsock.Is(sendErr, ntsock.KindInProgress) || ntsock.Is(recvErr, ntsock.KindInProgress) {
		return ntsock.ErrInProgress
	}
	return ntsock.ErrNotFound
}

// ProcessSocketWritable implements ntsock.ReactorSocket.
func (s *StreamSocket) ProcessSocketWritable() {
	s.strand.Execute(s.handleWritable)
}

func (s *StreamSocket) handleWritable() {
	s.mu.Lock()
	connecting := s.connecting
	s.mu.Unlock()
	if connecting {
		s.verifyConnect()
		return
	}
	s.drainSendQueue()
}

func (s *StreamSocket) verifyConnect() {
	if err := s.handle.LastError(); err != nil {
		s.retryOrFailConnect(err)
		return
	}
	s.succeedConnect()
}

func (s *StreamSocket) drainSendQueue() {
	for {
		s.mu.Lock()
		if entry, ok := s.sendQ.PeekFront(); ok && entry.IsFileRegion() {
			s.mu.Unlock()
			if !s.sendFileRegionChunk() {
				return
			}
			continue
		}
		bufs := s.sendQ.BatchNext(s.opts.Batch)
		s.mu.Unlock()

		if len(bufs) == 0 {
			s.finishDrainIfEmpty()
			return
		}

		n, err := s.handle.SendMultiple(bufs)
		if err != nil {
			if ntsock.Is(err, ntsock.KindWouldBlock) {
				return
			}
			s.failSendQueue(err)
			return
		}
		if n == 0 {
			return
		}

		s.mu.Lock()
		completed := s.sendQ.PopBytes(n)
		lowEvent := s.sendQ.AuthorizeLowWatermarkEvent()
		s.mu.Unlock()

		for _, e := range completed {
			s.completeSendEntry(e, nil)
		}
		if lowEvent && s.events.OnLowWatermark != nil {
			s.events.OnLowWatermark()
		}
		if s.finishDrainIfEmpty() {
			return
		}
	}
}

// finishDrainIfEmpty disarms writability and completes any shutdown
// waiting on the send queue to flush, if the queue is now empty. It
// reports whether the queue was empty.
func (s *StreamSocket) finishDrainIfEmpty() bool {
	s.mu.Lock()
	empty := s.sendQ.Empty()
	var pending bool
	if empty {
		pending = s.pendingSendShutdown
		s.pendingSendShutdown = false
	}
	s.mu.Unlock()
	if !empty {
		return false
	}
	s.disarmWritable()
	if pending {
		s.finishSendShutdown()
	}
	return true
}

func (s *StreamSocket) sendFileRegionChunk() bool {
	s.mu.Lock()
	entry, ok := s.sendQ.PeekFront()
	s.mu.Unlock()
	if !ok || !entry.IsFileRegion() {
		return false
	}

	fr := entry.FileRegion()
	want := s.opts.Batch.MaxBytes
	if want <= 0 || int64(want) > fr.Remaining {
		want = int(fr.Remaining)
	}
	if want == 0 {
		return false
	}
	chunk := make([]byte, want)
	n, rerr := fr.Reader.ReadAt(chunk, fr.Offset)
	if n == 0 && rerr != nil {
		s.failSendQueue(rerr)
		return false
	}

	sent, werr := s.handle.Send(chunk[:n])
	if werr != nil {
		if ntsock.Is(werr, ntsock.KindWouldBlock) {
			return false
		}
		s.failSendQueue(werr)
		return false
	}

	s.mu.Lock()
	completed := s.sendQ.PopBytes(sent)
	lowEvent := s.sendQ.AuthorizeLowWatermarkEvent()
	s.mu.Unlock()

	for _, e := range completed {
		s.completeSendEntry(e, nil)
	}
	if lowEvent && s.events.OnLowWatermark != nil {
		s.events.OnLowWatermark()
	}
	return sent > 0
}

func (s *StreamSocket) failSendQueue(err error) {
	s.mu.Lock()
	all := s.sendQ.RemoveAll()
	s.mu.Unlock()
	for _, e := range all {
		s.completeSendEntry(e, err)
	}
	if s.events.OnError != nil {
		s.events.OnError(err)
	}
}

func (s *StreamSocket) disarmWritable() {
	s.mu.Lock()
	if !s.writableArmed {
		s.mu.Unlock()
		return
	}
	s.writableArmed = false
	s.mu.Unlock()
	s.reactor.HideWritable(s.handle)
}

// ProcessSocketReadable implements ntsock.ReactorSocket.
func (s *StreamSocket) ProcessSocketReadable() {
	s.strand.Execute(s.handleReadable)
}

func (s *StreamSocket) handleReadable() {
	s.mu.Lock()
	room := s.recvQ.RoomForReadAhead()
	if room == 0 {
		s.mu.Unlock()
		return
	}
	want := room
	if fb := s.recvQ.Feedback(); fb != nil && fb.Advise() < want {
		want = fb.Advise()
	}
	s.mu.Unlock()

	buf := make([]byte, want)
	n, err := s.handle.Receive(buf)
	if err != nil {
		switch {
		case ntsock.Is(err, ntsock.KindWouldBlock):
			return
		case ntsock.Is(err, ntsock.KindEndOfStream):
			s.receiveEOF()
			return
		default:
			s.failReceiveQueue(err)
			return
		}
	}

	if fb := s.recvQ.Feedback(); fb != nil {
		if n >= want {
			fb.OnFullRead()
		} else {
			fb.OnShortRead()
		}
	}

	s.mu.Lock()
	satisfied := s.recvQ.Fill(buf[:n])
	lowEvent := s.recvQ.AuthorizeLowWatermarkEvent()
	highEvent := s.recvQ.AuthorizeHighWatermarkEvent(s.recvQ.HighWatermark())
	stillRoom := s.recvQ.RoomForReadAhead() > 0
	if !stillRoom {
		s.readableArmed = false
	}
	s.mu.Unlock()

	for _, sat := range satisfied {
		if sat.Entry.Callback != nil {
			sat.Entry.Callback(sat.Entry.ID, sat.Data, nil)
		}
	}
	if lowEvent && s.events.OnLowWatermark != nil {
		s.events.OnLowWatermark()
	}
	if highEvent && s.events.OnHighWatermark != nil {
		s.events.OnHighWatermark()
	}
	if !stillRoom {
		s.reactor.HideReadable(s.handle)
	}
}

func (s *StreamSocket) receiveEOF() {
	_ = s.beginShutdown(flow.ShutdownOriginRemote, ShutdownReceive)
}

func (s *StreamSocket) failReceiveQueue(err error) {
	s.mu.Lock()
	all := s.recvQ.RemoveAll()
	s.mu.Unlock()
	for _, e := range all {
		if e.Callback != nil {
			e.Callback(e.ID, data.Data{}, err)
		}
	}
	if s.events.OnError != nil {
		s.events.OnError(err)
	}
}

// ProcessSocketError implements ntsock.ReactorSocket.
func (s *StreamSocket) ProcessSocketError(err error) {
	s.strand.Execute(func() {
		s.failSendQueue(err)
		s.failReceiveQueue(err)
	})
}

// ProcessNotifications implements ntsock.ReactorSocket, forwarding
// per-datagram timestamps and zero-copy completion ids for the
// application to correlate against its own send/receive ids. Holding a
// ZeroCopy entry's buffer alive until kernel confirmation is a
// SocketHandle-level concern this reference core does not implement.
func (s *StreamSocket) ProcessNotifications(ns []ntsock.Notification) {
	if s.events.OnNotification == nil {
		return
	}
	s.strand.Execute(func() {
		for _, n := range ns {
			s.events.OnNotification(n)
		}
	})
}

// Shutdown begins the graceful half/full-close sequence for the given
// direction(s) (spec.md §4.E/§4.I shutdown). It is idempotent per
// direction.
func (s *StreamSocket) Shutdown(dir ShutdownDirection) error {
	return s.beginShutdown(flow.ShutdownOriginLocal, dir)
}

func (s *StreamSocket) beginShutdown(origin flow.ShutdownOrigin, dir ShutdownDirection) error {
	s.mu.Lock()
	firstInitiate := s.shutdown.Initiate(origin) == nil
	s.mu.Unlock()
	if firstInitiate && s.events.OnShutdown != nil {
		s.events.OnShutdown(flow.ShutdownInitiated)
	}

	if dir&ShutdownSend != 0 {
		s.shutdownSendDirection()
	}
	if dir&ShutdownReceive != 0 {
		s.shutdownReceiveDirection()
	}
	return nil
}

func (s *StreamSocket) shutdownSendDirection() {
	s.mu.Lock()
	if s.flow.ShouldDrainSendQueue() && !s.sendQ.Empty() {
		s.pendingSendShutdown = true
		s.mu.Unlock()
		return
	}
	flushed := s.sendQ.RemoveAll()
	s.mu.Unlock()

	for _, e := range flushed {
		s.completeSendEntry(e, ntsock.ErrCancelled)
	}
	s.finishSendShutdown()
}

func (s *StreamSocket) finishSendShutdown() {
	_ = s.handle.Shutdown(true, false)
	s.mu.Lock()
	_ = s.shutdown.CloseSend()
	complete := s.shutdown.Complete()
	s.mu.Unlock()

	if s.events.OnShutdown != nil {
		s.events.OnShutdown(flow.ShutdownSendClosed)
	}
	if complete {
		s.finishShutdown()
	}
}

func (s *StreamSocket) shutdownReceiveDirection() {
	s.mu.Lock()
	flushed := s.recvQ.RemoveAll()
	s.mu.Unlock()

	for _, e := range flushed {
		if e.Callback != nil {
			e.Callback(e.ID, data.Data{}, ntsock.ErrCancelled)
		}
	}

	_ = s.handle.Shutdown(false, true)

	s.mu.Lock()
	_ = s.shutdown.CloseReceive()
	complete := s.shutdown.Complete()
	s.mu.Unlock()

	if s.events.OnShutdown != nil {
		s.events.OnShutdown(flow.ShutdownReceiveClosed)
	}
	if complete {
		s.finishShutdown()
	}
}

func (s *StreamSocket) finishShutdown() {
	_ = s.Close(context.Background(), nil)
}

// Close tears the socket down: flushes both queues with Closed status,
// detaches from the reactor, and — once detach completes on the strand —
// closes the OS handle and invokes cb (spec.md §4.E step 4, §5 resource
// lifecycle).
func (s *StreamSocket) Close(ctx context.Context, cb func()) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return ntsock.ErrInProgress
	}
	s.closing = true
	s.closeCallback = cb
	flushedSend := s.sendQ.RemoveAll()
	flushedRecv := s.recvQ.RemoveAll()
	s.mu.Unlock()

	for _, e := range flushedSend {
		s.completeSendEntry(e, ntsock.ErrClosed)
	}
	for _, e := range flushedRecv {
		if e.Callback != nil {
			e.Callback(e.ID, data.Data{}, ntsock.ErrClosed)
		}
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

func (s *StreamSocket) finishClose() {
	s.mu.Lock()
	s.detach.Complete()
	_ = s.handle.Close()
	cb := s.closeCallback
	s.mu.Unlock()

	// spec.md §4.E step 4: shutdown_complete is announced only once the
	// reactor has confirmed detachment and the OS handle is closed, not
	// when the shutdown sequence merely decides to close.
	if s.events.OnShutdown != nil {
		s.events.OnShutdown(flow.ShutdownComplete)
	}
	if cb != nil {
		cb()
	}
	if s.events.OnClosed != nil {
		s.events.OnClosed()
	}
}
