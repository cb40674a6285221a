package queue

import (
	"container/list"
	"time"

	"github.com/xtaci/ntsock"
)

// AcceptCallback is invoked (on the listener's strand) when a pending
// accept request is satisfied, cancelled, or fails.
type AcceptCallback func(id uint64, handle ntsock.SocketHandle, remote ntsock.Endpoint, err error)

// AcceptQueueEntry is one pending application accept() call, satisfied by
// the next connection the reactor hands off (spec.md §4.D).
type AcceptQueueEntry struct {
	ID          uint64
	Token       ntsock.Token
	HasToken    bool
	Deadline    time.Time
	HasDeadline bool
	Timer       Timer
	Callback    AcceptCallback
	InProgress  bool
}

// acceptedConn is one OS-level connection accepted ahead of an application
// accept() call.
type acceptedConn struct {
	handle ntsock.SocketHandle
	remote ntsock.Endpoint
}

func (c acceptedConn) Handle() ntsock.SocketHandle { return c.handle }
func (c acceptedConn) Remote() ntsock.Endpoint     { return c.remote }

// AcceptQueue is the FIFO of backlog-accepted connections and of pending
// application accept requests for a ListenerSocket, per spec.md §3/§4.D.
// Unlike SendQueue/ReceiveQueue, watermarks here count entries, not bytes:
// ListenerSocket's accept-rate limiter (package sock, grounded on
// golang.org/x/time/rate) governs how fast new connections are pulled off
// the OS backlog; this queue governs how many sit buffered waiting for an
// application accept() call.
type AcceptQueue struct {
	backlog  list.List // of acceptedConn
	pending  list.List // of *AcceptQueueEntry
	loWM     int
	hiWM     int
	loWanted bool
	hiWanted bool
	nextID   uint64
}

// NewAcceptQueue constructs an AcceptQueue with the given entry-count
// watermarks.
func NewAcceptQueue(loWM, hiWM int) *AcceptQueue {
	q := &AcceptQueue{hiWanted: true}
	q.SetLowWatermark(loWM)
	q.SetHighWatermark(hiWM)
	return q
}

func (q *AcceptQueue) NextID() uint64 {
	q.nextID++
	return q.nextID
}

// BacklogLen reports the number of accepted-but-undelivered connections.
func (q *AcceptQueue) BacklogLen() int { return q.backlog.Len() }

// PendingLen reports the number of outstanding accept() calls.
func (q *AcceptQueue) PendingLen() int { return q.pending.Len() }

func (q *AcceptQueue) SetLowWatermark(lo int) {
	q.loWM = lo
	if q.hiWM < q.loWM {
		q.hiWM = q.loWM
	}
}

func (q *AcceptQueue) SetHighWatermark(hi int) {
	q.hiWM = hi
	if q.loWM > q.hiWM {
		q.loWM = q.hiWM
	}
}

func (q *AcceptQueue) LowWatermark() int  { return q.loWM }
func (q *AcceptQueue) HighWatermark() int { return q.hiWM }

// WouldExceedHighWatermark reports whether admitting one more backlog entry
// would exceed hi_wm, the gate the readable handler uses before pulling
// another connection off the OS accept queue (spec.md §4.J).
func (q *AcceptQueue) WouldExceedHighWatermark() bool {
	return q.backlog.Len()+1 > q.hiWM
}

// AcceptSatisfied pairs a completed AcceptQueueEntry with the connection
// delivered to it.
type AcceptSatisfied struct {
	Entry *AcceptQueueEntry
	Conn  acceptedConn
}

// Offer admits one freshly-accepted OS connection into the backlog and
// tries to satisfy the oldest pending accept() request with it.
func (q *AcceptQueue) Offer(handle ntsock.SocketHandle, remote ntsock.Endpoint) *AcceptSatisfied {
	q.backlog.PushBack(acceptedConn{handle: handle, remote: remote})
	return q.drain()
}

func (q *AcceptQueue) drain() *AcceptSatisfied {
	if q.pending.Len() == 0 || q.backlog.Len() == 0 {
		return nil
	}
	pf := q.pending.Front()
	entry := pf.Value.(*AcceptQueueEntry)
	bf := q.backlog.Front()
	conn := bf.Value.(acceptedConn)

	if entry.Timer != nil {
		entry.Timer.Stop()
		entry.Timer = nil
	}
	q.pending.Remove(pf)
	q.backlog.Remove(bf)
	return &AcceptSatisfied{Entry: entry, Conn: conn}
}

// PushRequest enqueues a pending accept() request and immediately tries to
// satisfy it against the backlog.
func (q *AcceptQueue) PushRequest(entry *AcceptQueueEntry) *AcceptSatisfied {
	q.pending.PushBack(entry)
	return q.drain()
}

// RemoveByID cancels a pending (not yet in_progress) accept request.
func (q *AcceptQueue) RemoveByID(id uint64) (*AcceptQueueEntry, error) {
	for e := q.pending.Front(); e != nil; e = e.Next() {
		entry := e.Value.(*AcceptQueueEntry)
		if entry.ID != id {
			continue
		}
		return q.removeElement(e, entry)
	}
	return nil, ntsock.ErrNotFound
}

// RemoveByToken cancels a pending accept request by token.
func (q *AcceptQueue) RemoveByToken(tok ntsock.Token) (*AcceptQueueEntry, error) {
	for e := q.pending.Front(); e != nil; e = e.Next() {
		entry := e.Value.(*AcceptQueueEntry)
		if !entry.HasToken || !entry.Token.Equal(tok) {
			continue
		}
		return q.removeElement(e, entry)
	}
	return nil, ntsock.ErrNotFound
}

func (q *AcceptQueue) removeElement(e *list.Element, entry *AcceptQueueEntry) (*AcceptQueueEntry, error) {
	if entry.InProgress {
		return nil, ntsock.ErrInProgress
	}
	if entry.Timer != nil {
		entry.Timer.Stop()
		entry.Timer = nil
	}
	q.pending.Remove(e)
	return entry, nil
}

// RemoveAll flushes every pending accept request and every buffered
// backlog connection (the latter are closed by the caller, since this
// package does not know how), returning both for cleanup.
func (q *AcceptQueue) RemoveAll() ([]*AcceptQueueEntry, []ntsock.SocketHandle) {
	var entries []*AcceptQueueEntry
	for e := q.pending.Front(); e != nil; e = e.Next() {
		entry := e.Value.(*AcceptQueueEntry)
		if entry.Timer != nil {
			entry.Timer.Stop()
			entry.Timer = nil
		}
		entries = append(entries, entry)
	}
	q.pending.Init()

	var handles []ntsock.SocketHandle
	for e := q.backlog.Front(); e != nil; e = e.Next() {
		handles = append(handles, e.Value.(acceptedConn).handle)
	}
	q.backlog.Init()
	return entries, handles
}

// AuthorizeLowWatermarkEvent mirrors SendQueue.AuthorizeLowWatermarkEvent
// against backlog entry count.
func (q *AcceptQueue) AuthorizeLowWatermarkEvent() bool {
	if q.backlog.Len() <= q.loWM && q.loWanted {
		q.loWanted = false
		q.hiWanted = true
		return true
	}
	return false
}

// AuthorizeHighWatermarkEvent mirrors SendQueue.AuthorizeHighWatermarkEvent.
func (q *AcceptQueue) AuthorizeHighWatermarkEvent(effectiveHiWM int) bool {
	if q.backlog.Len() > effectiveHiWM && q.hiWanted {
		q.hiWanted = false
		q.loWanted = true
		return true
	}
	return false
}
