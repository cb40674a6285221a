//go:build linux

package netio

import (
	"golang.org/x/sys/unix"

	"github.com/xtaci/ntsock"
)

// SetOption applies every non-nil field of opts (spec.md §6's socket option
// list) via setsockopt(2). Linux exposes the full set, including TCP_CORK,
// SO_ZEROCOPY and SO_TIMESTAMPING that other unix platforms lack — hence
// the platform split with options_other.go, grounded on
// runZeroInc-sockstats's tcpinfo_linux.go/tcpinfo_other.go file pair.
func (h *Handle) SetOption(opts ntsock.Options) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.valid {
		return ntsock.ErrClosed
	}
	fd := h.fd

	if opts.ReuseAddress != nil {
		if err := setBoolOpt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, *opts.ReuseAddress); err != nil {
			return err
		}
	}
	if opts.KeepAlive != nil {
		if err := setBoolOpt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, *opts.KeepAlive); err != nil {
			return err
		}
	}
	if opts.Cork != nil {
		if err := setBoolOpt(fd, unix.IPPROTO_TCP, unix.TCP_CORK, *opts.Cork); err != nil {
			return err
		}
	}
	if opts.DelayTransmission != nil {
		// TCP_NODELAY disables Nagle; DelayTransmission asks for Nagle, so
		// the sense is inverted.
		if err := setBoolOpt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, !*opts.DelayTransmission); err != nil {
			return err
		}
	}
	if opts.DelayAcknowledgement != nil {
		// TCP_QUICKACK 0 requests delayed ACKs; it must be re-armed after
		// every read if the kernel clears it, a caveat the core's caller
		// owns, not this adapter.
		if err := setBoolOpt(fd, unix.IPPROTO_TCP, unix.TCP_QUICKACK, !*opts.DelayAcknowledgement); err != nil {
			return err
		}
	}
	if opts.SendBufferSize != nil {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, *opts.SendBufferSize); err != nil {
			return classifyErrno(err)
		}
	}
	if opts.SendBufferLowWatermark != nil {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDLOWAT, *opts.SendBufferLowWatermark); err != nil {
			return classifyErrno(err)
		}
	}
	if opts.ReceiveBufferSize != nil {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, *opts.ReceiveBufferSize); err != nil {
			return classifyErrno(err)
		}
	}
	if opts.ReceiveBufferLowWatermark != nil {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVLOWAT, *opts.ReceiveBufferLowWatermark); err != nil {
			return classifyErrno(err)
		}
	}
	if opts.Debug != nil {
		if err := setBoolOpt(fd, unix.SOL_SOCKET, unix.SO_DEBUG, *opts.Debug); err != nil {
			return err
		}
	}
	if opts.Linger != nil {
		l := &unix.Linger{Linger: int32(opts.Linger.Seconds)}
		if opts.Linger.Enabled {
			l.Onoff = 1
		}
		if err := unix.SetsockoptLinger(fd, unix.SOL_SOCKET, unix.SO_LINGER, l); err != nil {
			return classifyErrno(err)
		}
	}
	if opts.Broadcast != nil {
		if err := setBoolOpt(fd, unix.SOL_SOCKET, unix.SO_BROADCAST, *opts.Broadcast); err != nil {
			return err
		}
	}
	if opts.BypassRouting != nil {
		if err := setBoolOpt(fd, unix.SOL_SOCKET, unix.SO_DONTROUTE, *opts.BypassRouting); err != nil {
			return err
		}
	}
	if opts.InlineOutOfBandData != nil {
		if err := setBoolOpt(fd, unix.SOL_SOCKET, unix.SO_OOBINLINE, *opts.InlineOutOfBandData); err != nil {
			return err
		}
	}
	if opts.TimestampIncoming != nil {
		if err := setBoolOpt(fd, unix.SOL_SOCKET, unix.SO_TIMESTAMPNS, *opts.TimestampIncoming); err != nil {
			return err
		}
	}
	if opts.TimestampOutgoing != nil {
		flags := 0
		if *opts.TimestampOutgoing {
			flags = unix.SOF_TIMESTAMPING_TX_SOFTWARE | unix.SOF_TIMESTAMPING_SOFTWARE | unix.SOF_TIMESTAMPING_OPT_ID
		}
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_TIMESTAMPING, flags); err != nil {
			return classifyErrno(err)
		}
	}
	if opts.ZeroCopy != nil {
		if err := setBoolOpt(fd, unix.SOL_SOCKET, unix.SO_ZEROCOPY, *opts.ZeroCopy); err != nil {
			return err
		}
	}
	return nil
}

func setBoolOpt(fd, level, name int, v bool) error {
	n := 0
	if v {
		n = 1
	}
	if err := unix.SetsockoptInt(fd, level, name, n); err != nil {
		return classifyErrno(err)
	}
	return nil
}

func getBoolOpt(fd, level, name int) (bool, error) {
	n, err := unix.GetsockoptInt(fd, level, name)
	if err != nil {
		return false, classifyErrno(err)
	}
	return n != 0, nil
}

// Option reports the live values of the option set (spec.md §6) that it
// reads back from the kernel. The low-watermark, DelayAcknowledgement and
// Timestamp fields are always left nil, as is any field whose getsockopt
// call fails.
func (h *Handle) Option() (ntsock.Options, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.valid {
		return ntsock.Options{}, ntsock.ErrClosed
	}
	fd := h.fd
	var opts ntsock.Options

	if v, err := getBoolOpt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR); err == nil {
		opts.ReuseAddress = &v
	}
	if v, err := getBoolOpt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE); err == nil {
		opts.KeepAlive = &v
	}
	if v, err := getBoolOpt(fd, unix.IPPROTO_TCP, unix.TCP_CORK); err == nil {
		opts.Cork = &v
	}
	if v, err := getBoolOpt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY); err == nil {
		nv := !v
		opts.DelayTransmission = &nv
	}
	if n, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF); err == nil {
		opts.SendBufferSize = &n
	}
	if n, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF); err == nil {
		opts.ReceiveBufferSize = &n
	}
	if v, err := getBoolOpt(fd, unix.SOL_SOCKET, unix.SO_DEBUG); err == nil {
		opts.Debug = &v
	}
	if l, err := unix.GetsockoptLinger(fd, unix.SOL_SOCKET, unix.SO_LINGER); err == nil {
		opts.Linger = &ntsock.Linger{Enabled: l.Onoff != 0, Seconds: int(l.Linger)}
	}
	if v, err := getBoolOpt(fd, unix.SOL_SOCKET, unix.SO_BROADCAST); err == nil {
		opts.Broadcast = &v
	}
	if v, err := getBoolOpt(fd, unix.SOL_SOCKET, unix.SO_DONTROUTE); err == nil {
		opts.BypassRouting = &v
	}
	if v, err := getBoolOpt(fd, unix.SOL_SOCKET, unix.SO_OOBINLINE); err == nil {
		opts.InlineOutOfBandData = &v
	}
	if v, err := getBoolOpt(fd, unix.SOL_SOCKET, unix.SO_ZEROCOPY); err == nil {
		opts.ZeroCopy = &v
	}
	return opts, nil
}
