//go:build unix

package netio

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xtaci/ntsock"
)

func TestHandleTCPLoopbackRoundTrip(t *testing.T) {
	listener := NewHandle()
	require.NoError(t, listener.Open(ntsock.TransportFamilyTCP))
	reuse := true
	require.NoError(t, listener.SetOption(ntsock.Options{ReuseAddress: &reuse}))
	require.NoError(t, listener.Bind(ntsock.NewIPv4Endpoint(net.IPv4(127, 0, 0, 1), 0)))
	require.NoError(t, listener.Listen(1))

	src, err := listener.SourceEndpoint()
	require.NoError(t, err)

	accepted := make(chan ntsock.SocketHandle, 1)
	go func() {
		h, aerr := listener.Accept()
		require.NoError(t, aerr)
		accepted <- h
	}()

	client := NewHandle()
	require.NoError(t, client.Open(ntsock.TransportFamilyTCP))
	require.NoError(t, client.Connect(src))

	var server ntsock.SocketHandle
	select {
	case server = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for accept")
	}

	n, err := client.Send([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 5, n)

	buf := make([]byte, 16)
	n, err = server.Receive(buf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf[:n]))

	require.NoError(t, client.Close())
	require.NoError(t, server.Close())
	require.NoError(t, listener.Close())
}

func TestHandleSetOptionOptionRoundTrip(t *testing.T) {
	h := NewHandle()
	require.NoError(t, h.Open(ntsock.TransportFamilyTCP))
	defer h.Close()

	keepAlive := true
	size := 1 << 16
	require.NoError(t, h.SetOption(ntsock.Options{KeepAlive: &keepAlive, SendBufferSize: &size}))

	got, err := h.Option()
	require.NoError(t, err)
	require.NotNil(t, got.KeepAlive)
	require.True(t, *got.KeepAlive)
	require.NotNil(t, got.SendBufferSize)
}

func TestHandleDuplicate(t *testing.T) {
	h := NewHandle()
	require.NoError(t, h.Open(ntsock.TransportFamilyTCP))
	defer h.Close()

	dup, err := h.Duplicate()
	require.NoError(t, err)
	defer dup.Close()
	require.True(t, dup.Valid())
}

type fakeReactorSocket struct {
	onReadable func()
}

func (f *fakeReactorSocket) ProcessSocketReadable()                        { f.onReadable() }
func (f *fakeReactorSocket) ProcessSocketWritable()                        {}
func (f *fakeReactorSocket) ProcessSocketError(err error)                  {}
func (f *fakeReactorSocket) ProcessNotifications(ns []ntsock.Notification) {}

func TestReactorDispatchesReadable(t *testing.T) {
	r, err := NewReactor()
	require.NoError(t, err)
	defer r.Close()

	listener := NewHandle()
	require.NoError(t, listener.Open(ntsock.TransportFamilyTCP))
	defer listener.Close()
	reuse := true
	require.NoError(t, listener.SetOption(ntsock.Options{ReuseAddress: &reuse}))
	require.NoError(t, listener.Bind(ntsock.NewIPv4Endpoint(net.IPv4(127, 0, 0, 1), 0)))
	require.NoError(t, listener.Listen(1))
	require.NoError(t, listener.SetBlocking(false))

	src, err := listener.SourceEndpoint()
	require.NoError(t, err)

	readable := make(chan struct{}, 1)
	target := &fakeReactorSocket{onReadable: func() {
		select {
		case readable <- struct{}{}:
		default:
		}
	}}
	require.NoError(t, r.AttachSocket(listener, target))
	r.ShowReadable(listener)

	client := NewHandle()
	require.NoError(t, client.Open(ntsock.TransportFamilyTCP))
	defer client.Close()
	require.NoError(t, client.Connect(src))

	select {
	case <-readable:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for readable event")
	}
}
