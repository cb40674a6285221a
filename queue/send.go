// Package queue implements the three queue types of spec.md §4.B/§4.C/§4.D:
// SendQueue, ReceiveQueue and AcceptQueue. None of the queues are internally
// synchronized — per spec.md §5 ("a per-socket mutex is acquired at the
// public-API boundary and in reactor-event entry"), the owning socket in
// package sock is responsible for holding that mutex around every queue
// method call; the queues themselves assume a single caller at a time.
//
// Grounded on xtaci/smux's Session bucket/window bookkeeping (session.go,
// vendored in the teacher) for the push/drain/watermark shape, and on
// xtaci/kcp-go's sess.go send/receive buffers for the "entries carry their
// own in-flight state" idiom.
package queue

import (
	"container/list"
	"time"

	"github.com/xtaci/ntsock"
	"github.com/xtaci/ntsock/data"
)

// SendCallback is invoked (on the owning socket's strand) when a
// SendQueueEntry completes, is cancelled, or fails.
type SendCallback func(id uint64, bytesSent int, err error)

// Timer is the minimal contract a SendQueueEntry needs from whatever
// scheduled its deadline, so this package never depends on package skiplist
// directly.
type Timer interface{ Stop() }

// SendQueueEntry is one pending outbound payload, per spec.md §3.
type SendQueueEntry struct {
	ID            uint64
	Token         ntsock.Token
	HasToken      bool
	Endpoint      ntsock.Endpoint
	HasEndpoint   bool
	EnqueueTimeNS int64
	Deadline      time.Time
	HasDeadline   bool
	Timer         Timer
	Callback      SendCallback
	InProgress    bool
	ZeroCopy      bool

	// TotalLength is the entry's original byte length at construction,
	// preserved for callbacks (Length() reports only what remains).
	TotalLength int

	payload *data.Blob       // nil for a FileRegion entry
	file    *data.FileRegion // nil for a non-FileRegion entry
	length  int
}

// NewSendQueueEntry materializes d (except FileRegion, which is read lazily
// as it drains) into an entry with the given id.
func NewSendQueueEntry(id uint64, d data.Data, enqueueTimeNS int64) (*SendQueueEntry, error) {
	e := &SendQueueEntry{ID: id, EnqueueTimeNS: enqueueTimeNS}
	if d.Kind() == data.KindFileRegion {
		fr, err := d.FileRegionValue()
		if err != nil {
			return nil, err
		}
		e.file = &fr
		e.length = int(fr.Remaining)
		e.TotalLength = e.length
		return e, nil
	}
	blob := data.NewEmptyBlob(data.DefaultAllocator)
	n, err := data.Copy(blob, d)
	if err != nil {
		return nil, err
	}
	e.payload = blob
	e.length = n
	e.TotalLength = n
	return e, nil
}

// Length reports the number of bytes not yet handed to the kernel.
func (e *SendQueueEntry) Length() int { return e.length }

// IsFileRegion reports whether this entry streams from a file rather than
// from in-memory bytes.
func (e *SendQueueEntry) IsFileRegion() bool { return e.file != nil }

// Chunks returns the entry's remaining in-memory bytes as a gather list; it
// panics if called on a FileRegion entry (callers must check IsFileRegion).
func (e *SendQueueEntry) Chunks() [][]byte { return e.payload.Chunks() }

// FileRegion returns the entry's remaining file region; it panics if called
// on a non-FileRegion entry.
func (e *SendQueueEntry) FileRegion() data.FileRegion { return *e.file }

// ConsumeDirect advances the entry's cursor by n bytes for a direct
// non-blocking write attempted before the entry is pushed onto a
// SendQueue (spec.md §4.I send step 2). Callers must not call this once
// the entry has been pushed; use PopBytes instead.
func (e *SendQueueEntry) ConsumeDirect(n int) { e.consume(n) }

// consume advances the entry's cursor by n bytes (n must not exceed
// Length()).
func (e *SendQueueEntry) consume(n int) {
	if e.payload != nil {
		e.payload.Consume(n)
	} else {
		e.file.Offset += int64(n)
		e.file.Remaining -= int64(n)
	}
	e.length -= n
}

// BatchOptions bounds a single gather-write attempt (spec.md §4.B
// batch_next).
type BatchOptions struct {
	MaxBuffers int
	MaxBytes   int
}

// SendQueue is the ordered queue of pending outbound payloads described by
// spec.md §3/§4.B.
type SendQueue struct {
	entries   list.List
	sizeBytes int
	loWM      int
	hiWM      int
	loWanted  bool
	hiWanted  bool
	nextID    uint64
}

// NewSendQueue constructs a SendQueue with the given initial watermarks.
func NewSendQueue(loWM, hiWM int) *SendQueue {
	q := &SendQueue{hiWanted: true}
	q.SetLowWatermark(loWM)
	q.SetHighWatermark(hiWM)
	return q
}

// NextID returns the next monotonic entry id, per spec.md §3
// (SendQueue.next_id).
func (q *SendQueue) NextID() uint64 {
	q.nextID++
	return q.nextID
}

// SizeBytes reports Σ entries[i].length (spec.md §8 invariant 1).
func (q *SendQueue) SizeBytes() int { return q.sizeBytes }

// Empty reports whether the queue holds no entries.
func (q *SendQueue) Empty() bool { return q.entries.Len() == 0 }

// Len reports the number of entries.
func (q *SendQueue) Len() int { return q.entries.Len() }

// SetLowWatermark sets lo_wm, sanitizing hi_wm upward if needed so
// lo_wm <= hi_wm always holds (spec.md §3 SendQueue invariant).
func (q *SendQueue) SetLowWatermark(lo int) {
	q.loWM = lo
	if q.hiWM < q.loWM {
		q.hiWM = q.loWM
	}
}

// SetHighWatermark sets hi_wm, sanitizing lo_wm downward if needed.
func (q *SendQueue) SetHighWatermark(hi int) {
	q.hiWM = hi
	if q.loWM > q.hiWM {
		q.loWM = q.hiWM
	}
}

func (q *SendQueue) LowWatermark() int  { return q.loWM }
func (q *SendQueue) HighWatermark() int { return q.hiWM }

// WouldExceedHighWatermark reports whether enqueuing an entry of the given
// length would push size_bytes above hi_wm, the gate StreamSocket.Send uses
// to return QueueFull before Push (spec.md §4.I point 4), unless the caller
// opted into ignoring the high watermark.
func (q *SendQueue) WouldExceedHighWatermark(length int, ignoreHighWatermark bool) bool {
	if ignoreHighWatermark {
		return false
	}
	return q.sizeBytes+length > q.hiWM
}

// Push appends entry and reports whether the queue transitioned from empty
// to non-empty (spec.md §4.B push).
func (q *SendQueue) Push(entry *SendQueueEntry) bool {
	becameNonEmpty := q.entries.Len() == 0
	q.entries.PushBack(entry)
	q.sizeBytes += entry.length
	return becameNonEmpty
}

// PopBytes consumes n bytes from the head of the queue, possibly spanning
// several entries, marking every touched entry in_progress and releasing
// the timer of (and returning) any entry that fully drains, in order
// (spec.md §4.B pop_bytes, §4.I writable-handler steps 2-3).
func (q *SendQueue) PopBytes(n int) []*SendQueueEntry {
	var completed []*SendQueueEntry
	remaining := n
	for remaining > 0 && q.entries.Len() > 0 {
		front := q.entries.Front()
		entry := front.Value.(*SendQueueEntry)
		take := remaining
		if take > entry.length {
			take = entry.length
		}
		entry.consume(take)
		entry.InProgress = true
		q.sizeBytes -= take
		remaining -= take
		if entry.length == 0 {
			if entry.Timer != nil {
				entry.Timer.Stop()
				entry.Timer = nil
			}
			q.entries.Remove(front)
			completed = append(completed, entry)
		}
	}
	return completed
}

// RemoveByID removes the entry with the given id and returns it, provided it
// has not begun transferring; an in-flight entry is left in place and
// ErrInProgress is returned; a missing id reports ErrNotFound. This
// implements the §3 SendQueueEntry invariant ("cancellation ... is permitted
// only while !in_progress") uniformly for timed and untimed entries — see
// DESIGN.md for why this resolves the narrower wording in spec.md §4.B.
func (q *SendQueue) RemoveByID(id uint64) (*SendQueueEntry, error) {
	for e := q.entries.Front(); e != nil; e = e.Next() {
		entry := e.Value.(*SendQueueEntry)
		if entry.ID != id {
			continue
		}
		return q.removeElement(e, entry)
	}
	return nil, ntsock.ErrNotFound
}

// RemoveByToken removes the entry carrying the given token, with the same
// semantics as RemoveByID.
func (q *SendQueue) RemoveByToken(tok ntsock.Token) (*SendQueueEntry, error) {
	for e := q.entries.Front(); e != nil; e = e.Next() {
		entry := e.Value.(*SendQueueEntry)
		if !entry.HasToken || !entry.Token.Equal(tok) {
			continue
		}
		return q.removeElement(e, entry)
	}
	return nil, ntsock.ErrNotFound
}

func (q *SendQueue) removeElement(e *list.Element, entry *SendQueueEntry) (*SendQueueEntry, error) {
	if entry.InProgress {
		return nil, ntsock.ErrInProgress
	}
	if entry.Timer != nil {
		entry.Timer.Stop()
		entry.Timer = nil
	}
	q.entries.Remove(e)
	q.sizeBytes -= entry.length
	return entry, nil
}

// RemoveAll flushes every entry, releasing their timers, and returns them in
// FIFO order so the caller can invoke their callbacks with a terminal
// status (spec.md §4.B remove_all).
func (q *SendQueue) RemoveAll() []*SendQueueEntry {
	var all []*SendQueueEntry
	for e := q.entries.Front(); e != nil; e = e.Next() {
		entry := e.Value.(*SendQueueEntry)
		if entry.Timer != nil {
			entry.Timer.Stop()
			entry.Timer = nil
		}
		all = append(all, entry)
	}
	q.entries.Init()
	q.sizeBytes = 0
	return all
}

// AuthorizeLowWatermarkEvent reports whether a low-watermark event may be
// delivered now, and if so flips the alternation flags (spec.md §4.B,
// §5 watermark alternation invariant).
func (q *SendQueue) AuthorizeLowWatermarkEvent() bool {
	if q.sizeBytes <= q.loWM && q.loWanted {
		q.loWanted = false
		q.hiWanted = true
		return true
	}
	return false
}

// AuthorizeHighWatermarkEvent reports whether a high-watermark event may be
// delivered now against an effective threshold that may differ from hi_wm
// (spec.md §4.B), and if so flips the alternation flags.
func (q *SendQueue) AuthorizeHighWatermarkEvent(effectiveHiWM int) bool {
	if q.sizeBytes > effectiveHiWM && q.hiWanted {
		q.hiWanted = false
		q.loWanted = true
		return true
	}
	return false
}

// BatchNext assembles a gather-list from contiguous batchable entries
// starting at the head, bounded by opts, stopping at the first FileRegion
// entry (spec.md §4.B batch_next). An empty result with a non-empty queue
// means the head entry is a FileRegion and must be drained through
// FileRegion()/consume-by-PopBytes instead.
func (q *SendQueue) BatchNext(opts BatchOptions) [][]byte {
	var out [][]byte
	totalBytes := 0
	totalBuffers := 0
	for e := q.entries.Front(); e != nil; e = e.Next() {
		entry := e.Value.(*SendQueueEntry)
		if entry.IsFileRegion() {
			break
		}
		for _, chunk := range entry.Chunks() {
			if opts.MaxBuffers > 0 && totalBuffers >= opts.MaxBuffers {
				return out
			}
			if opts.MaxBytes > 0 && totalBytes+len(chunk) > opts.MaxBytes {
				if totalBuffers == 0 {
					// Always make forward progress with at least one
					// (possibly truncated) buffer.
					room := opts.MaxBytes - totalBytes
					if room > 0 {
						out = append(out, chunk[:room])
					}
				}
				return out
			}
			out = append(out, chunk)
			totalBytes += len(chunk)
			totalBuffers++
		}
	}
	return out
}

// PeekFront returns the head entry without removing it, for the writable
// handler to inspect before deciding how to drain it.
func (q *SendQueue) PeekFront() (*SendQueueEntry, bool) {
	if q.entries.Len() == 0 {
		return nil, false
	}
	return q.entries.Front().Value.(*SendQueueEntry), true
}
