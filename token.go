package ntsock

import "github.com/rs/xid"

// Token is an opaque identifier attached to an operation to support
// selective cancellation (spec.md GLOSSARY, §4.I cancel(token)).
//
// Grounded on runZeroInc-sockstats, which reaches for github.com/rs/xid for
// compact, sortable, allocation-light identifiers instead of a UUID or a
// hand-rolled counter; xid is used here for every user-facing token, while
// SendQueue's internal SendQueueEntry.id stays the plain monotonic uint64
// the spec mandates in §3.
type Token struct {
	id xid.ID
}

// NewToken mints a fresh, globally-unique Token.
func NewToken() Token { return Token{id: xid.New()} }

func (t Token) String() string { return t.id.String() }
func (t Token) IsZero() bool   { return t.id.IsZero() }

// Equal reports whether two tokens identify the same operation.
func (t Token) Equal(other Token) bool { return t.id.Compare(other.id) == 0 }
