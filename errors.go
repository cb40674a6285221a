package ntsock

import "github.com/pkg/errors"

// Kind classifies the outcome of an asynchronous operation. It deliberately
// stays a small closed set rather than per-call error types: callers switch
// on Kind, not on concrete error values.
type Kind int

const (
	// KindNone means success.
	KindNone Kind = iota
	KindWouldBlock
	KindEndOfStream
	KindConnectionRefused
	KindConnectionReset
	KindTimedOut
	KindCancelled
	KindInvalid
	KindNotFound
	KindNotAuthorized
	KindNotSupported
	KindInUse
	KindAlreadyOpen
	KindQueueFull
	KindInterrupted
	KindInProgress
	KindClosed
	KindSystem
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindWouldBlock:
		return "would-block"
	case KindEndOfStream:
		return "end-of-stream"
	case KindConnectionRefused:
		return "connection-refused"
	case KindConnectionReset:
		return "connection-reset"
	case KindTimedOut:
		return "timed-out"
	case KindCancelled:
		return "cancelled"
	case KindInvalid:
		return "invalid"
	case KindNotFound:
		return "not-found"
	case KindNotAuthorized:
		return "not-authorized"
	case KindNotSupported:
		return "not-supported"
	case KindInUse:
		return "in-use"
	case KindAlreadyOpen:
		return "already-open"
	case KindQueueFull:
		return "queue-full"
	case KindInterrupted:
		return "interrupted"
	case KindInProgress:
		return "in-progress"
	case KindClosed:
		return "closed"
	case KindSystem:
		return "system"
	default:
		return "unknown"
	}
}

// Error is the error type returned by every asynchronous operation in this
// module. It carries a Kind for programmatic dispatch and, for KindSystem,
// the originating OS error code.
type Error struct {
	kind   Kind
	osCode int
	msg    string
}

func (e *Error) Error() string {
	if e.msg != "" {
		return e.msg
	}
	return e.kind.String()
}

// Kind reports the error's classification.
func (e *Error) Kind() Kind { return e.kind }

// OSCode reports the originating errno for KindSystem errors, else zero.
func (e *Error) OSCode() int { return e.osCode }

// newErr builds a bare Kind-tagged *Error with no pkg/errors wrapping;
// callers that want context and a stack trace add it with Wrap.
func newErr(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

// NewError constructs an Error of the given Kind with a message.
func NewError(kind Kind, msg string) *Error { return newErr(kind, msg) }

// NewSystemError wraps an OS error code as a KindSystem Error.
func NewSystemError(code int, msg string) *Error {
	return &Error{kind: KindSystem, osCode: code, msg: msg}
}

// Wrap attaches additional context to err without losing its Kind, mirroring
// the teacher's habit of wrapping every propagated error with
// github.com/pkg/errors.Wrap at package boundaries.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, msg)
}

// KindOf extracts the Kind from err, returning KindInvalid for errors that
// did not originate in this module (e.g. a raw OS error never classified).
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var e *Error
	for {
		if as, ok := err.(*Error); ok {
			e = as
			break
		}
		cause := errors.Cause(err)
		if cause == err {
			break
		}
		err = cause
	}
	if e == nil {
		return KindInvalid
	}
	return e.kind
}

// Is reports whether err classifies as kind, looking through pkg/errors
// wrapping.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

var (
	ErrWouldBlock        = newErr(KindWouldBlock, "operation would block")
	ErrEndOfStream       = newErr(KindEndOfStream, "end of stream")
	ErrConnectionRefused = newErr(KindConnectionRefused, "connection refused")
	ErrConnectionReset   = newErr(KindConnectionReset, "connection reset")
	ErrTimedOut          = newErr(KindTimedOut, "timed out")
	ErrCancelled         = newErr(KindCancelled, "cancelled")
	ErrInvalid           = newErr(KindInvalid, "invalid")
	ErrNotFound          = newErr(KindNotFound, "not found")
	ErrNotAuthorized     = newErr(KindNotAuthorized, "not authorized")
	ErrNotSupported      = newErr(KindNotSupported, "not supported")
	ErrInUse             = newErr(KindInUse, "address in use")
	ErrAlreadyOpen       = newErr(KindAlreadyOpen, "already open")
	ErrQueueFull         = newErr(KindQueueFull, "queue full")
	ErrInterrupted       = newErr(KindInterrupted, "interrupted")
	ErrInProgress        = newErr(KindInProgress, "operation already in progress")
	ErrClosed            = newErr(KindClosed, "socket closed")
)
