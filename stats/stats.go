// Package stats is the local, unpublished counter set SPEC_FULL.md §4.T
// names: atomic counters for bytes sent/received, watermark transitions,
// accept-rate rejections and cancellations, grounded on the teacher's
// std/snmp.go (a periodic CSV dump of kcp-go's DefaultSnmp counters).
//
// Counters is deliberately not wired to prometheus/client_golang — spec.md
// §1 places the metrics publication pipeline and periodic collector out of
// scope, and wiring a registry here would reintroduce exactly that
// pipeline. Snapshot lets an external, out-of-module collector scrape the
// counters instead.
package stats

import (
	"strconv"
	"sync/atomic"
)

// Counters is safe for concurrent use; every field is updated with
// sync/atomic rather than under a mutex, matching the teacher's
// zero-contention-on-the-hot-path style (kcp-go's Snmp struct is likewise
// a flat set of independently-atomic fields, not a mutex-guarded struct).
type Counters struct {
	bytesSent     uint64
	bytesReceived uint64

	highWatermarkEvents uint64
	lowWatermarkEvents  uint64

	acceptsAccepted         uint64
	acceptsRateLimited      uint64
	acceptHighWatermarkHits uint64

	sendsCancelled    uint64
	receivesCancelled uint64
}

func (c *Counters) AddBytesSent(n uint64)     { atomic.AddUint64(&c.bytesSent, n) }
func (c *Counters) AddBytesReceived(n uint64) { atomic.AddUint64(&c.bytesReceived, n) }

func (c *Counters) IncHighWatermarkEvents() { atomic.AddUint64(&c.highWatermarkEvents, 1) }
func (c *Counters) IncLowWatermarkEvents()  { atomic.AddUint64(&c.lowWatermarkEvents, 1) }

func (c *Counters) IncAcceptsAccepted()         { atomic.AddUint64(&c.acceptsAccepted, 1) }
func (c *Counters) IncAcceptsRateLimited()      { atomic.AddUint64(&c.acceptsRateLimited, 1) }
func (c *Counters) IncAcceptHighWatermarkHits() { atomic.AddUint64(&c.acceptHighWatermarkHits, 1) }

func (c *Counters) IncSendsCancelled()    { atomic.AddUint64(&c.sendsCancelled, 1) }
func (c *Counters) IncReceivesCancelled() { atomic.AddUint64(&c.receivesCancelled, 1) }

// Snapshot is a point-in-time copy of every counter, keyed by name for an
// external collector (not part of this module, per spec.md §1) to scrape
// and publish however it likes.
type Snapshot struct {
	BytesSent     uint64
	BytesReceived uint64

	HighWatermarkEvents uint64
	LowWatermarkEvents  uint64

	AcceptsAccepted         uint64
	AcceptsRateLimited      uint64
	AcceptHighWatermarkHits uint64

	SendsCancelled    uint64
	ReceivesCancelled uint64
}

// Snapshot reads every counter. Individual fields may not be mutually
// consistent with one another (no global lock is taken), matching
// kcp-go's own Snmp.ToSlice/Header, which reads the same flat set of
// independently-atomic counters.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		BytesSent:               atomic.LoadUint64(&c.bytesSent),
		BytesReceived:           atomic.LoadUint64(&c.bytesReceived),
		HighWatermarkEvents:     atomic.LoadUint64(&c.highWatermarkEvents),
		LowWatermarkEvents:      atomic.LoadUint64(&c.lowWatermarkEvents),
		AcceptsAccepted:         atomic.LoadUint64(&c.acceptsAccepted),
		AcceptsRateLimited:      atomic.LoadUint64(&c.acceptsRateLimited),
		AcceptHighWatermarkHits: atomic.LoadUint64(&c.acceptHighWatermarkHits),
		SendsCancelled:          atomic.LoadUint64(&c.sendsCancelled),
		ReceivesCancelled:       atomic.LoadUint64(&c.receivesCancelled),
	}
}

// Header names Snapshot's fields in the order ToSlice emits them, mirroring
// kcp-go's Snmp.Header()/ToSlice() pair that std/snmp.go's CSV writer
// depends on.
func Header() []string {
	return []string{
		"BytesSent", "BytesReceived",
		"HighWatermarkEvents", "LowWatermarkEvents",
		"AcceptsAccepted", "AcceptsRateLimited", "AcceptHighWatermarkHits",
		"SendsCancelled", "ReceivesCancelled",
	}
}

// ToSlice renders the snapshot as strings in Header's order, for a CSV
// writer the way std/snmp.go's SnmpLogger uses kcp-go's DefaultSnmp.
func (s Snapshot) ToSlice() []string {
	return []string{
		itoa(s.BytesSent), itoa(s.BytesReceived),
		itoa(s.HighWatermarkEvents), itoa(s.LowWatermarkEvents),
		itoa(s.AcceptsAccepted), itoa(s.AcceptsRateLimited), itoa(s.AcceptHighWatermarkHits),
		itoa(s.SendsCancelled), itoa(s.ReceivesCancelled),
	}
}

func itoa(v uint64) string { return strconv.FormatUint(v, 10) }
