package sock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/xtaci/ntsock"
	"github.com/xtaci/ntsock/strand"
)

func newTestListenerSocket(t *testing.T, opts ListenerOptions) (*ListenerSocket, *fakeHandle, *fakeReactor) {
	t.Helper()
	h := newFakeHandle()
	r := newFakeReactor()
	st := strand.New(nil)
	w := NewWheel()
	t.Cleanup(w.Close)
	s := NewListenerSocket(h, r, st, w, opts, ListenerEvents{})
	require.NoError(t, s.Open(ntsock.TransportFamilyTCP))
	require.NoError(t, s.Bind(ntsock.Endpoint{}))
	require.NoError(t, s.Listen())
	return s, h, r
}

func TestListenerSocketAcceptSatisfiesPendingRequest(t *testing.T) {
	s, h, _ := newTestListenerSocket(t, DefaultListenerOptions())

	var gotHandle ntsock.SocketHandle
	var gotErr error
	done := make(chan struct{})
	_, err := s.Accept(time.Time{}, false, ntsock.Token{}, false, func(id uint64, handle ntsock.SocketHandle, remote ntsock.Endpoint, err error) {
		gotHandle, gotErr = handle, err
		close(done)
	})
	require.NoError(t, err)

	child := newFakeHandle()
	h.pushChild(child)
	s.ProcessSocketReadable()

	<-done
	require.NoError(t, gotErr)
	require.Equal(t, ntsock.SocketHandle(child), gotHandle)
}

func TestListenerSocketHighWatermarkHidesReadable(t *testing.T) {
	opts := DefaultListenerOptions()
	opts.AcceptHighWatermark = 1
	s, h, r := newTestListenerSocket(t, opts)

	h.pushChild(newFakeHandle())
	s.ProcessSocketReadable()

	h.pushChild(newFakeHandle())
	s.ProcessSocketReadable()

	r.mu.Lock()
	shown := r.readableShown[h]
	r.mu.Unlock()
	require.False(t, shown)
}

func TestListenerSocketAcceptRateLimiterBacksOff(t *testing.T) {
	opts := DefaultListenerOptions()
	opts.AcceptRateLimit = rate.Every(time.Hour)
	opts.AcceptRateBurst = 1
	s, h, r := newTestListenerSocket(t, opts)

	h.pushChild(newFakeHandle())
	s.ProcessSocketReadable()
	r.mu.Lock()
	shownAfterFirst := r.readableShown[h]
	r.mu.Unlock()
	require.True(t, shownAfterFirst)

	h.pushChild(newFakeHandle())
	s.ProcessSocketReadable()

	r.mu.Lock()
	shownAfterSecond := r.readableShown[h]
	r.mu.Unlock()
	require.False(t, shownAfterSecond)
}

func TestListenerSocketCloseClosesBufferedChildren(t *testing.T) {
	s, h, _ := newTestListenerSocket(t, DefaultListenerOptions())

	child := newFakeHandle()
	h.pushChild(child)
	s.ProcessSocketReadable()
	h.pushChild(child)
	s.ProcessSocketReadable()

	require.NoError(t, s.Close(context.Background(), nil))
}
