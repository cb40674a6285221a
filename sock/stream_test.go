package sock

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xtaci/ntsock"
	"github.com/xtaci/ntsock/data"
	"github.com/xtaci/ntsock/strand"
)

func newTestStreamSocket(t *testing.T) (*StreamSocket, *fakeHandle, *fakeReactor) {
	t.Helper()
	h := newFakeHandle()
	r := newFakeReactor()
	st := strand.New(nil)
	w := NewWheel()
	t.Cleanup(w.Close)
	s := NewStreamSocket(h, r, st, w, DefaultStreamOptions(), StreamEvents{})
	require.NoError(t, s.Open(ntsock.TransportFamilyTCP))
	return s, h, r
}

func TestStreamSocketSendDirectWriteCompletesImmediately(t *testing.T) {
	s, h, _ := newTestStreamSocket(t)

	var gotID uint64
	var gotN int
	var gotErr error
	cb := func(id uint64, n int, err error) {
		gotID, gotN, gotErr = id, n, err
	}

	payload := []byte("hello")
	id, err := s.Send(data.NewOwnedBuffer(payload), SendOptions{Callback: cb})
	require.NoError(t, err)
	require.Equal(t, id, gotID)
	require.NoError(t, gotErr)
	require.Equal(t, len(payload), gotN)
	require.Equal(t, payload, h.allSent())
}

func TestStreamSocketSendQueueFullReturnsError(t *testing.T) {
	s, h, _ := newTestStreamSocket(t)
	s.sendQ.SetHighWatermark(5)

	h.mu.Lock()
	h.sendBlocked = true
	h.mu.Unlock()

	_, err := s.Send(data.NewOwnedBuffer([]byte("first")), SendOptions{})
	require.NoError(t, err)

	_, err = s.Send(data.NewOwnedBuffer([]byte("second")), SendOptions{})
	require.Error(t, err)
	require.Equal(t, ntsock.KindQueueFull, ntsock.KindOf(err))
}

func TestStreamSocketReceiveSatisfiesPendingRequest(t *testing.T) {
	s, h, _ := newTestStreamSocket(t)

	var gotData data.Data
	var gotErr error
	done := make(chan struct{})
	_, err := s.Receive(ReceiveOptions{MinBytes: 5}, func(id uint64, d data.Data, err error) {
		gotData, gotErr = d, err
		close(done)
	})
	require.NoError(t, err)

	h.pushIncoming([]byte("hello"))
	s.ProcessSocketReadable()

	<-done
	require.NoError(t, gotErr)
	buf, err := gotData.Buffer()
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), buf)
}

func TestStreamSocketCancelSendByToken(t *testing.T) {
	s, h, _ := newTestStreamSocket(t)
	h.mu.Lock()
	h.sendBlocked = true
	h.mu.Unlock()

	tok := ntsock.NewToken()
	var gotErr error
	done := make(chan struct{})
	_, err := s.Send(data.NewOwnedBuffer([]byte("queued")), SendOptions{
		Token: tok, HasToken: true,
		Callback: func(id uint64, n int, err error) {
			gotErr = err
			close(done)
		},
	})
	require.NoError(t, err)

	require.NoError(t, s.Cancel(tok))
	<-done
	require.Equal(t, ntsock.KindCancelled, ntsock.KindOf(gotErr))
}

func TestStreamSocketShutdownGracefulDrainsSendQueue(t *testing.T) {
	s, h, _ := newTestStreamSocket(t)
	h.mu.Lock()
	h.sendBlocked = true
	h.mu.Unlock()

	_, err := s.Send(data.NewOwnedBuffer([]byte("queued")), SendOptions{})
	require.NoError(t, err)

	require.NoError(t, s.Shutdown(ShutdownSend))
	require.True(t, s.pendingSendShutdown)

	h.mu.Lock()
	h.sendBlocked = false
	h.mu.Unlock()
	s.ProcessSocketWritable()

	require.False(t, s.pendingSendShutdown)
}
