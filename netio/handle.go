//go:build unix

package netio

import (
	"net"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/xtaci/ntsock"
)

// Handle is the reference ntsock.SocketHandle: a single OS file descriptor
// owned end to end, rather than borrowed from *net.TCPConn the way
// generic/rawcopy_unix.go borrows one via SyscallConn — SocketHandle needs
// Bind/Listen/Accept/SetOption control that borrowing can't give.
type Handle struct {
	mu       sync.Mutex
	fd       int
	domain   int
	sockType int
	family   ntsock.TransportFamily
	valid    bool
	lastErr  error
	unixPath string // bound unix-domain path, removed on Close
}

// NewHandle returns an unopened Handle.
func NewHandle() *Handle {
	return &Handle{fd: -1}
}

func familyToDomainType(family ntsock.TransportFamily) (domain, sockType int, err error) {
	switch family {
	case ntsock.TransportFamilyTCP:
		return unix.AF_INET, unix.SOCK_STREAM, nil
	case ntsock.TransportFamilyUDP:
		return unix.AF_INET, unix.SOCK_DGRAM, nil
	case ntsock.TransportFamilyLocalStream:
		return unix.AF_UNIX, unix.SOCK_STREAM, nil
	case ntsock.TransportFamilyLocalDatagram:
		return unix.AF_UNIX, unix.SOCK_DGRAM, nil
	default:
		return 0, 0, ntsock.ErrInvalid
	}
}

func (h *Handle) Open(family ntsock.TransportFamily) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.valid {
		return ntsock.ErrAlreadyOpen
	}
	domain, sockType, err := familyToDomainType(family)
	if err != nil {
		return err
	}
	// IPv6 sockets are opened as AF_INET6 lazily on Bind/Connect once the
	// caller's endpoint reveals the address family; AF_INET is the default
	// until then so Option()/SetOption() have a live fd to act on.
	fd, serr := unix.Socket(domain, sockType, 0)
	if serr != nil {
		return classifyErrno(serr)
	}
	unix.CloseOnExec(fd)
	h.fd = fd
	h.domain = domain
	h.sockType = sockType
	h.family = family
	h.valid = true
	return nil
}

func (h *Handle) Valid() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.valid
}

func (h *Handle) SetBlocking(blocking bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.valid {
		return ntsock.ErrClosed
	}
	if err := unix.SetNonblock(h.fd, !blocking); err != nil {
		return classifyErrno(err)
	}
	return nil
}

// reopenForIPv6 upgrades an AF_INET socket to AF_INET6 the first time an
// IPv6 endpoint is bound/connected to it, since Open can't know the family
// in advance from ntsock.TransportFamily alone.
func (h *Handle) reopenForIPv6() error {
	if h.domain == unix.AF_INET6 {
		return nil
	}
	fd, err := unix.Socket(unix.AF_INET6, h.sockType, 0)
	if err != nil {
		return classifyErrno(err)
	}
	unix.CloseOnExec(fd)
	unix.Close(h.fd)
	h.fd = fd
	h.domain = unix.AF_INET6
	return nil
}

func (h *Handle) Bind(endpoint ntsock.Endpoint) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.valid {
		return ntsock.ErrClosed
	}
	sa, path, err := endpointToSockaddr(endpoint, h.domain)
	if err != nil {
		return err
	}
	if endpoint.Type() == ntsock.EndpointIPv6 {
		if rerr := h.reopenForIPv6(); rerr != nil {
			return rerr
		}
		sa, _, _ = endpointToSockaddr(endpoint, h.domain)
	}
	if berr := unix.Bind(h.fd, sa); berr != nil {
		return classifyErrno(berr)
	}
	h.unixPath = path
	return nil
}

func (h *Handle) Listen(backlog int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.valid {
		return ntsock.ErrClosed
	}
	if backlog <= 0 {
		backlog = unix.SOMAXCONN
	}
	if err := unix.Listen(h.fd, backlog); err != nil {
		return classifyErrno(err)
	}
	return nil
}

func (h *Handle) Connect(endpoint ntsock.Endpoint) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.valid {
		return ntsock.ErrClosed
	}
	if endpoint.Type() == ntsock.EndpointIPv6 {
		if err := h.reopenForIPv6(); err != nil {
			return err
		}
	}
	sa, _, err := endpointToSockaddr(endpoint, h.domain)
	if err != nil {
		return err
	}
	if cerr := unix.Connect(h.fd, sa); cerr != nil {
		if cerr == unix.EINPROGRESS {
			return ntsock.ErrInProgress
		}
		return classifyErrno(cerr)
	}
	return nil
}

func (h *Handle) Accept() (ntsock.SocketHandle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.valid {
		return nil, ntsock.ErrClosed
	}
	nfd, _, err := unix.Accept(h.fd)
	if err != nil {
		return nil, classifyErrno(err)
	}
	unix.CloseOnExec(nfd)
	child := &Handle{fd: nfd, domain: h.domain, sockType: h.sockType, family: h.family, valid: true}
	return child, nil
}

func (h *Handle) Send(buf []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.valid {
		return 0, ntsock.ErrClosed
	}
	n, err := unix.Write(h.fd, buf)
	if err != nil {
		return n, classifyErrno(err)
	}
	return n, nil
}

func (h *Handle) SendMultiple(bufs [][]byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.valid {
		return 0, ntsock.ErrClosed
	}
	n, err := unix.Writev(h.fd, bufs)
	if err != nil {
		return n, classifyErrno(err)
	}
	return n, nil
}

func (h *Handle) Receive(buf []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.valid {
		return 0, ntsock.ErrClosed
	}
	n, err := unix.Read(h.fd, buf)
	if err != nil {
		return n, classifyErrno(err)
	}
	if n == 0 && len(buf) > 0 && h.sockType == unix.SOCK_STREAM {
		return 0, ntsock.ErrEndOfStream
	}
	return n, nil
}

func (h *Handle) ReceiveMultiple(bufs [][]byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.valid {
		return 0, ntsock.ErrClosed
	}
	n, err := unix.Readv(h.fd, bufs)
	if err != nil {
		return n, classifyErrno(err)
	}
	if n == 0 && h.sockType == unix.SOCK_STREAM {
		return 0, ntsock.ErrEndOfStream
	}
	return n, nil
}

func (h *Handle) Shutdown(send, receive bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.valid {
		return ntsock.ErrClosed
	}
	var how int
	switch {
	case send && receive:
		how = unix.SHUT_RDWR
	case send:
		how = unix.SHUT_WR
	case receive:
		how = unix.SHUT_RD
	default:
		return nil
	}
	if err := unix.Shutdown(h.fd, how); err != nil {
		return classifyErrno(err)
	}
	return nil
}

func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.valid {
		return nil
	}
	err := unix.Close(h.fd)
	h.valid = false
	if h.unixPath != "" {
		_ = unix.Unlink(h.unixPath)
	}
	if err != nil {
		return classifyErrno(err)
	}
	return nil
}

func (h *Handle) LastError() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastErr
}

func (h *Handle) SourceEndpoint() (ntsock.Endpoint, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.valid {
		return ntsock.Endpoint{}, ntsock.ErrClosed
	}
	sa, err := unix.Getsockname(h.fd)
	if err != nil {
		return ntsock.Endpoint{}, classifyErrno(err)
	}
	return sockaddrToEndpoint(sa)
}

func (h *Handle) RemoteEndpoint() (ntsock.Endpoint, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.valid {
		return ntsock.Endpoint{}, ntsock.ErrClosed
	}
	sa, err := unix.Getpeername(h.fd)
	if err != nil {
		return ntsock.Endpoint{}, classifyErrno(err)
	}
	return sockaddrToEndpoint(sa)
}

func (h *Handle) Duplicate() (ntsock.SocketHandle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.valid {
		return nil, ntsock.ErrClosed
	}
	fd, err := unix.Dup(h.fd)
	if err != nil {
		return nil, classifyErrno(err)
	}
	return &Handle{fd: fd, domain: h.domain, sockType: h.sockType, family: h.family, valid: true}, nil
}

// FD returns the raw descriptor, for Reactor implementations in this
// package that need to register it with epoll/kqueue/select.
func (h *Handle) FD() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fd
}

func endpointToSockaddr(endpoint ntsock.Endpoint, domain int) (unix.Sockaddr, string, error) {
	switch endpoint.Type() {
	case ntsock.EndpointIPv4:
		var addr [4]byte
		copy(addr[:], endpoint.IP().To4())
		return &unix.SockaddrInet4{Port: int(endpoint.Port()), Addr: addr}, "", nil
	case ntsock.EndpointIPv6:
		var addr [16]byte
		copy(addr[:], endpoint.IP().To16())
		return &unix.SockaddrInet6{Port: int(endpoint.Port()), Addr: addr}, "", nil
	case ntsock.EndpointLocal:
		return &unix.SockaddrUnix{Name: endpoint.Path()}, endpoint.Path(), nil
	case ntsock.EndpointUndefined:
		// A zero Endpoint binds to the wildcard address on the socket's
		// current domain, matching bind(2)'s behaviour for INADDR_ANY.
		if domain == unix.AF_INET6 {
			return &unix.SockaddrInet6{Port: 0}, "", nil
		}
		return &unix.SockaddrInet4{Port: 0}, "", nil
	default:
		return nil, "", ntsock.ErrInvalid
	}
}

func sockaddrToEndpoint(sa unix.Sockaddr) (ntsock.Endpoint, error) {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return ntsock.NewIPv4Endpoint(net.IP(v.Addr[:]), uint16(v.Port)), nil
	case *unix.SockaddrInet6:
		return ntsock.NewIPv6Endpoint(net.IP(v.Addr[:]), uint16(v.Port), ""), nil
	case *unix.SockaddrUnix:
		return ntsock.NewLocalEndpoint(v.Name), nil
	default:
		return ntsock.Endpoint{}, ntsock.ErrNotSupported
	}
}

// classifyErrno maps a raw unix errno to the core's closed Kind set
// (spec.md §7), the same boundary-translation role errors.go's Wrap plays
// for in-module errors.
func classifyErrno(err error) error {
	if err == nil {
		return nil
	}
	switch err {
	case unix.EAGAIN:
		return ntsock.ErrWouldBlock
	case unix.ECONNREFUSED:
		return ntsock.ErrConnectionRefused
	case unix.ECONNRESET, unix.EPIPE:
		return ntsock.ErrConnectionReset
	case unix.ETIMEDOUT:
		return ntsock.ErrTimedOut
	case unix.EINTR:
		return ntsock.ErrInterrupted
	case unix.EINVAL:
		return ntsock.ErrInvalid
	case unix.EADDRINUSE:
		return ntsock.ErrInUse
	case unix.EADDRNOTAVAIL, unix.ENETUNREACH, unix.EHOSTUNREACH:
		return ntsock.ErrNotFound
	case unix.EACCES, unix.EPERM:
		return ntsock.ErrNotAuthorized
	case unix.EOPNOTSUPP, unix.ENOPROTOOPT:
		return ntsock.ErrNotSupported
	case unix.EBADF, unix.ENOTCONN:
		return ntsock.ErrClosed
	default:
		if errno, ok := err.(unix.Errno); ok {
			return ntsock.NewSystemError(int(errno), errno.Error())
		}
		return ntsock.Wrap(err, "netio")
	}
}
