package queue

import (
	"container/list"
	"time"

	"github.com/xtaci/ntsock"
	"github.com/xtaci/ntsock/data"
)

// ReceiveCallback is invoked (on the owning socket's strand) when a
// ReceiveQueueEntry is satisfied, cancelled, or fails.
type ReceiveCallback func(id uint64, d data.Data, err error)

// ReceiveQueueEntry is one pending read request: a promise to deliver
// between MinBytes and MaxBytes once that many bytes have arrived
// (spec.md §3/§4.C).
type ReceiveQueueEntry struct {
	ID          uint64
	Token       ntsock.Token
	HasToken    bool
	MinBytes    int
	MaxBytes    int
	Deadline    time.Time
	HasDeadline bool
	Timer       Timer
	Callback    ReceiveCallback
	InProgress  bool
}

// Satisfied pairs a completed ReceiveQueueEntry with the bytes delivered to
// it.
type Satisfied struct {
	Entry *ReceiveQueueEntry
	Data  data.Data
}

// ReceiveQueue holds bytes the reactor has already read off the wire
// ("arrived") plus the FIFO of pending application read requests that
// consume them, per spec.md §3/§4.C. Arrived bytes accumulate even with no
// pending request (read-ahead), bounded by the high watermark, which is
// also what StreamSocket uses to decide whether to keep showing readable.
type ReceiveQueue struct {
	arrived  *data.Blob
	pending  list.List
	loWM     int
	hiWM     int
	loWanted bool
	hiWanted bool
	nextID   uint64
	feedback *ReceiveFeedback
}

// NewReceiveQueue constructs a ReceiveQueue with the given watermarks and
// the given AIMD receive-size advisor (which may be nil).
func NewReceiveQueue(loWM, hiWM int, feedback *ReceiveFeedback) *ReceiveQueue {
	q := &ReceiveQueue{
		arrived:  data.NewEmptyBlob(data.DefaultAllocator),
		hiWanted: true,
		feedback: feedback,
	}
	q.SetLowWatermark(loWM)
	q.SetHighWatermark(hiWM)
	return q
}

// NextID returns the next monotonic entry id.
func (q *ReceiveQueue) NextID() uint64 {
	q.nextID++
	return q.nextID
}

// SizeBytes reports the number of arrived-but-unconsumed bytes.
func (q *ReceiveQueue) SizeBytes() int { return q.arrived.Size() }

// PendingLen reports the number of outstanding read requests.
func (q *ReceiveQueue) PendingLen() int { return q.pending.Len() }

// Feedback returns the AIMD receive-size advisor, or nil if none was
// configured.
func (q *ReceiveQueue) Feedback() *ReceiveFeedback { return q.feedback }

func (q *ReceiveQueue) SetLowWatermark(lo int) {
	q.loWM = lo
	if q.hiWM < q.loWM {
		q.hiWM = q.loWM
	}
}

func (q *ReceiveQueue) SetHighWatermark(hi int) {
	q.hiWM = hi
	if q.loWM > q.hiWM {
		q.loWM = q.hiWM
	}
}

func (q *ReceiveQueue) LowWatermark() int  { return q.loWM }
func (q *ReceiveQueue) HighWatermark() int { return q.hiWM }

// RoomForReadAhead reports how many more bytes may be buffered before the
// high watermark is hit, the cue the readable handler uses to decide
// whether to issue another kernel read (spec.md §4.I point 6).
func (q *ReceiveQueue) RoomForReadAhead() int {
	room := q.hiWM - q.arrived.Size()
	if room < 0 {
		return 0
	}
	return room
}

// Fill appends freshly-read bytes to the arrived buffer and drains as many
// pending requests as can now be satisfied, in FIFO order (spec.md §4.C,
// §4.I readable-handler steps).
func (q *ReceiveQueue) Fill(buf []byte) []Satisfied {
	q.arrived.AppendCopy(buf)
	return q.drain()
}

func (q *ReceiveQueue) drain() []Satisfied {
	var out []Satisfied
	for q.pending.Len() > 0 {
		front := q.pending.Front()
		entry := front.Value.(*ReceiveQueueEntry)
		if q.arrived.Size() < entry.MinBytes {
			break
		}
		take := entry.MaxBytes
		if take <= 0 || take > q.arrived.Size() {
			take = q.arrived.Size()
		}
		delivered := q.takeBytes(take)
		if entry.Timer != nil {
			entry.Timer.Stop()
			entry.Timer = nil
		}
		q.pending.Remove(front)
		out = append(out, Satisfied{Entry: entry, Data: delivered})
	}
	return out
}

// takeBytes removes n bytes from the front of arrived and returns them as
// an owned Data value.
func (q *ReceiveQueue) takeBytes(n int) data.Data {
	chunks := q.arrived.Chunks()
	out := make([]byte, 0, n)
	remaining := n
	for _, c := range chunks {
		if remaining <= 0 {
			break
		}
		take := remaining
		if take > len(c) {
			take = len(c)
		}
		out = append(out, c[:take]...)
		remaining -= take
	}
	q.arrived.Consume(n)
	return data.NewOwnedBuffer(out)
}

// PushRequest enqueues a pending read request and immediately tries to
// satisfy it (and any requests ahead of it — there should be none since
// requests are FIFO) against already-arrived bytes.
func (q *ReceiveQueue) PushRequest(entry *ReceiveQueueEntry) []Satisfied {
	q.pending.PushBack(entry)
	return q.drain()
}

// RemoveByID cancels a pending (not yet in_progress) request, mirroring
// SendQueue.RemoveByID.
func (q *ReceiveQueue) RemoveByID(id uint64) (*ReceiveQueueEntry, error) {
	for e := q.pending.Front(); e != nil; e = e.Next() {
		entry := e.Value.(*ReceiveQueueEntry)
		if entry.ID != id {
			continue
		}
		return q.removeElement(e, entry)
	}
	return nil, ntsock.ErrNotFound
}

// RemoveByToken cancels a pending request by token.
func (q *ReceiveQueue) RemoveByToken(tok ntsock.Token) (*ReceiveQueueEntry, error) {
	for e := q.pending.Front(); e != nil; e = e.Next() {
		entry := e.Value.(*ReceiveQueueEntry)
		if !entry.HasToken || !entry.Token.Equal(tok) {
			continue
		}
		return q.removeElement(e, entry)
	}
	return nil, ntsock.ErrNotFound
}

func (q *ReceiveQueue) removeElement(e *list.Element, entry *ReceiveQueueEntry) (*ReceiveQueueEntry, error) {
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

// RemoveAll flushes every pending request (but not arrived bytes, which
// belong to the stream rather than to any one request) and returns them for
// cancellation callbacks.
func (q *ReceiveQueue) RemoveAll() []*ReceiveQueueEntry {
	var all []*ReceiveQueueEntry
	for e := q.pending.Front(); e != nil; e = e.Next() {
		entry := e.Value.(*ReceiveQueueEntry)
		if entry.Timer != nil {
			entry.Timer.Stop()
			entry.Timer = nil
		}
		all = append(all, entry)
	}
	q.pending.Init()
	return all
}

// AuthorizeLowWatermarkEvent mirrors SendQueue.AuthorizeLowWatermarkEvent
// against arrived byte count.
func (q *ReceiveQueue) AuthorizeLowWatermarkEvent() bool {
	if q.arrived.Size() <= q.loWM && q.loWanted {
		q.loWanted = false
		q.hiWanted = true
		return true
	}
	return false
}

// AuthorizeHighWatermarkEvent mirrors SendQueue.AuthorizeHighWatermarkEvent.
func (q *ReceiveQueue) AuthorizeHighWatermarkEvent(effectiveHiWM int) bool {
	if q.arrived.Size() > effectiveHiWM && q.hiWanted {
		q.hiWanted = false
		q.loWanted = true
		return true
	}
	return false
}

// ReceiveFeedback is an additive-increase/multiplicative-decrease advisor
// for the next kernel receive buffer size (spec.md §4.C, §9's call for an
// adaptive read-size heuristic in place of a fixed MTU guess). Grounded on
// xtaci/kcp-go's sess.go congestion-window growth, generalized from packet
// counts to buffer bytes.
type ReceiveFeedback struct {
	min, max, step int
	size           int
}

// NewReceiveFeedback seeds an advisor clamped to [min,max] starting at
// initial.
func NewReceiveFeedback(min, max, initial int) *ReceiveFeedback {
	if initial < min {
		initial = min
	}
	if initial > max {
		initial = max
	}
	step := (max - min) / 8
	if step < 1 {
		step = 1
	}
	return &ReceiveFeedback{min: min, max: max, step: step, size: initial}
}

// Advise returns the buffer size to request for the next receive.
func (f *ReceiveFeedback) Advise() int { return f.size }

// OnFullRead additively increases the advised size after a read that filled
// the entire buffer offered (a signal more is likely waiting).
func (f *ReceiveFeedback) OnFullRead() {
	f.size = min(f.size+f.step, f.max)
}

// OnShortRead multiplicatively decreases the advised size after a read that
// returned fewer bytes than offered.
func (f *ReceiveFeedback) OnShortRead() {
	f.size = max(f.size/2, f.min)
}
