package ntsock

import "github.com/xtaci/ntsock/data"

// TransportFamily selects the socket family passed to Open.
type TransportFamily int

const (
	TransportFamilyTCP TransportFamily = iota
	TransportFamilyUDP
	TransportFamilyLocalStream
	TransportFamilyLocalDatagram
)

// Linger mirrors SO_LINGER.
type Linger struct {
	Enabled bool
	Seconds int
}

// Options enumerates the socket options consumed by the core (spec.md §6).
// Every field is a pointer so "unset" is distinguishable from "set to the
// zero value" — SocketHandle.SetOption/Option only touch fields that are
// non-nil.
type Options struct {
	ReuseAddress              *bool
	KeepAlive                 *bool
	Cork                      *bool
	DelayTransmission         *bool
	DelayAcknowledgement      *bool
	SendBufferSize            *int
	SendBufferLowWatermark    *int
	ReceiveBufferSize         *int
	ReceiveBufferLowWatermark *int
	Debug                     *bool
	Linger                    *Linger
	Broadcast                 *bool
	BypassRouting             *bool
	InlineOutOfBandData       *bool
	TimestampIncoming         *bool
	TimestampOutgoing         *bool
	ZeroCopy                  *bool
}

// SocketHandle is the opaque OS socket identity the core drives (spec.md
// §3, §6). It is non-negative (Valid() true) after Open and invalid after
// Close. Raw syscalls stay out of the core packages (spec.md §1); package
// netio supplies a syscall-backed reference implementation.
type SocketHandle interface {
	Open(family TransportFamily) error
	Valid() bool

	SetBlocking(blocking bool) error

	Bind(endpoint Endpoint) error
	Listen(backlog int) error
	Connect(endpoint Endpoint) error
	Accept() (SocketHandle, error)

	Send(buf []byte) (int, error)
	SendMultiple(bufs [][]byte) (int, error)
	Receive(buf []byte) (int, error)
	ReceiveMultiple(bufs [][]byte) (int, error)

	Shutdown(send, receive bool) error
	Close() error

	SetOption(opts Options) error
	Option() (Options, error)

	LastError() error
	SourceEndpoint() (Endpoint, error)
	RemoteEndpoint() (Endpoint, error)

	Duplicate() (SocketHandle, error)
}

// ConstBufferArray is a read-only gather list handed to SendMultiple; it is
// assembled by queue.SendQueue.BatchNext from pending Data chunks.
type ConstBufferArray = [][]byte

// MutableBufferArray is a scatter list handed to ReceiveMultiple.
type MutableBufferArray = [][]byte

// DataVariantBatchable re-exports data.Data.Batchable for callers that only
// import ntsock.
func DataVariantBatchable(d data.Data) bool { return d.Batchable() }
