// Package netio is the reference SocketHandle/Reactor pair that drives real
// OS sockets for package sock (spec.md §1 excludes raw syscalls from the
// core itself; this package is the "driver" the core was always meant to be
// paired with).
//
// Handle is grounded on generic/rawcopy_unix.go's raw-fd style (SyscallConn,
// direct syscall.Read/Write) generalized to own the fd end to end via
// golang.org/x/sys/unix rather than borrowing one from *net.TCPConn, since
// SocketHandle needs Bind/Listen/Accept/SetOption control the net package
// does not expose uniformly. The option set and its platform split
// (options_linux.go / options_other.go) are grounded on
// runZeroInc-sockstats's pkg/tcpinfo platform-specific getsockopt files.
//
// Reactor is grounded on the same pack entry: an epoll-backed
// implementation on Linux (reactor_linux.go) with a portable goroutine-loop
// fallback elsewhere (reactor_other.go), mirroring that package's
// tcpinfo_linux.go / tcpinfo_other.go split.
package netio
