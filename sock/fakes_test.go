package sock

import (
	"context"
	"sync"

	"github.com/xtaci/ntsock"
)

// fakeHandle is a minimal in-memory ntsock.SocketHandle: Send/SendMultiple
// append to an outgoing log, Receive/ReceiveMultiple drain a queue of
// byte slices tests push in, and Accept drains a queue of pre-built child
// handles. It never actually touches the network.
type fakeHandle struct {
	mu sync.Mutex

	open    bool
	family  ntsock.TransportFamily
	source  ntsock.Endpoint
	remote  ntsock.Endpoint
	lastErr error

	sent        [][]byte
	incoming    [][]byte
	children    []ntsock.SocketHandle
	sendBlocked bool
}

func newFakeHandle() *fakeHandle { return &fakeHandle{} }

func (h *fakeHandle) Open(family ntsock.TransportFamily) error {
	h.open = true
	h.family = family
	return nil
}
func (h *fakeHandle) Valid() bool                      { return h.open }
func (h *fakeHandle) SetBlocking(blocking bool) error  { return nil }
func (h *fakeHandle) Bind(e ntsock.Endpoint) error      { h.source = e; return nil }
func (h *fakeHandle) Listen(backlog int) error          { return nil }
func (h *fakeHandle) Connect(e ntsock.Endpoint) error   { h.remote = e; return nil }

func (h *fakeHandle) Accept() (ntsock.SocketHandle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.children) == 0 {
		return nil, ntsock.ErrWouldBlock
	}
	child := h.children[0]
	h.children = h.children[1:]
	return child, nil
}

func (h *fakeHandle) Send(buf []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sendBlocked {
		return 0, ntsock.ErrWouldBlock
	}
	cp := append([]byte(nil), buf...)
	h.sent = append(h.sent, cp)
	return len(buf), nil
}

func (h *fakeHandle) SendMultiple(bufs [][]byte) (int, error) {
	h.mu.Lock()
	blocked := h.sendBlocked
	h.mu.Unlock()
	if blocked {
		return 0, ntsock.ErrWouldBlock
	}
	total := 0
	for _, b := range bufs {
		n, err := h.Send(b)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (h *fakeHandle) Receive(buf []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.incoming) == 0 {
		return 0, ntsock.ErrWouldBlock
	}
	next := h.incoming[0]
	h.incoming = h.incoming[1:]
	return copy(buf, next), nil
}

func (h *fakeHandle) ReceiveMultiple(bufs [][]byte) (int, error) {
	if len(bufs) == 0 {
		return 0, nil
	}
	return h.Receive(bufs[0])
}

func (h *fakeHandle) Shutdown(send, receive bool) error           { return nil }
func (h *fakeHandle) Close() error                                { h.open = false; return nil }
func (h *fakeHandle) SetOption(opts ntsock.Options) error         { return nil }
func (h *fakeHandle) Option() (ntsock.Options, error)             { return ntsock.Options{}, nil }
func (h *fakeHandle) LastError() error                            { return h.lastErr }
func (h *fakeHandle) SourceEndpoint() (ntsock.Endpoint, error)    { return h.source, nil }
func (h *fakeHandle) RemoteEndpoint() (ntsock.Endpoint, error)    { return h.remote, nil }
func (h *fakeHandle) Duplicate() (ntsock.SocketHandle, error)     { return h, nil }

func (h *fakeHandle) pushIncoming(b []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.incoming = append(h.incoming, append([]byte(nil), b...))
}

func (h *fakeHandle) pushChild(c ntsock.SocketHandle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.children = append(h.children, c)
}

func (h *fakeHandle) allSent() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []byte
	for _, b := range h.sent {
		out = append(out, b...)
	}
	return out
}

// fakeReactor tracks attach/detach/show/hide calls without any real I/O
// multiplexer backing it; DetachSocket invokes onDetached synchronously,
// matching how a single-threaded test drives the strand inline.
type fakeReactor struct {
	mu            sync.Mutex
	attached      map[ntsock.SocketHandle]ntsock.ReactorSocket
	readableShown map[ntsock.SocketHandle]bool
	writableShown map[ntsock.SocketHandle]bool
}

func newFakeReactor() *fakeReactor {
	return &fakeReactor{
		attached:      make(map[ntsock.SocketHandle]ntsock.ReactorSocket),
		readableShown: make(map[ntsock.SocketHandle]bool),
		writableShown: make(map[ntsock.SocketHandle]bool),
	}
}

func (r *fakeReactor) AttachSocket(handle ntsock.SocketHandle, target ntsock.ReactorSocket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attached[handle] = target
	return nil
}

func (r *fakeReactor) DetachSocket(ctx context.Context, handle ntsock.SocketHandle, onDetached func()) error {
	onDetached()
	return nil
}

func (r *fakeReactor) ShowReadable(handle ntsock.SocketHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readableShown[handle] = true
}

func (r *fakeReactor) HideReadable(handle ntsock.SocketHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readableShown[handle] = false
}

func (r *fakeReactor) ShowWritable(handle ntsock.SocketHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writableShown[handle] = true
}

func (r *fakeReactor) HideWritable(handle ntsock.SocketHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writableShown[handle] = false
}
