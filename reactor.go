package ntsock

import "context"

// ReactorSocket receives readiness and notification events from a Reactor,
// per spec.md §4.H / §6. A Reactor may call these methods from its own
// goroutines; the StreamSocket/ListenerSocket implementations in package
// sock post the handling onto the socket's strand themselves. The
// reference Reactor implementation is in package netio.
type ReactorSocket interface {
	// ProcessSocketReadable is invoked when the descriptor is readable.
	ProcessSocketReadable()
	// ProcessSocketWritable is invoked when the descriptor is writable.
	ProcessSocketWritable()
	// ProcessSocketError is invoked on a socket-level error condition.
	ProcessSocketError(err error)
	// ProcessNotifications delivers per-datagram timestamps and zero-copy
	// completion ids reported out of band by the kernel.
	ProcessNotifications(ns []Notification)
}

// Notification carries a single reactor notification: either a timestamp for
// a previously sent/received datagram, or a zero-copy completion id.
type Notification struct {
	Kind      NotificationKind
	ID        uint32
	Timestamp int64 // nanoseconds, monotonic or wall per Kind
}

type NotificationKind int

const (
	NotificationTimestampSent NotificationKind = iota
	NotificationTimestampReceived
	NotificationZeroCopyComplete
)

// Reactor registers socket descriptors for readiness notification and
// delivers them to a ReactorSocket, per spec.md §4.H. detach_socket is
// asynchronous: it must return immediately and signal completion by invoking
// onDetached, which may run on another goroutine; callers post any
// follow-up work onto the socket's strand themselves.
type Reactor interface {
	AttachSocket(handle SocketHandle, target ReactorSocket) error
	DetachSocket(ctx context.Context, handle SocketHandle, onDetached func()) error

	ShowReadable(handle SocketHandle)
	HideReadable(handle SocketHandle)
	ShowWritable(handle SocketHandle)
	HideWritable(handle SocketHandle)
}
