//go:build unix && !linux

package netio

import (
	"golang.org/x/sys/unix"

	"github.com/xtaci/ntsock"
)

// SetOption applies the subset of spec.md §6's option list that has a
// portable equivalent outside Linux. Cork, DelayAcknowledgement,
// TimestampIncoming/Outgoing and ZeroCopy have no BSD/Darwin counterpart
// (TCP_CORK, TCP_QUICKACK, SO_TIMESTAMPING and SO_ZEROCOPY are Linux-only)
// and report ntsock.ErrNotSupported rather than silently no-op, so callers
// can tell the option was never applied.
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
		return ntsock.ErrNotSupported
	}
	if opts.DelayTransmission != nil {
		if err := setBoolOpt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, !*opts.DelayTransmission); err != nil {
			return err
		}
	}
	if opts.DelayAcknowledgement != nil {
		return ntsock.ErrNotSupported
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
		return ntsock.ErrNotSupported
	}
	if opts.TimestampOutgoing != nil {
		return ntsock.ErrNotSupported
	}
	if opts.ZeroCopy != nil {
		return ntsock.ErrNotSupported
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
	return opts, nil
}
