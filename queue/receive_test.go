package queue

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xtaci/ntsock"
)

func TestReceiveQueueFillSatisfiesPendingRequestOnceMinBytesArrive(t *testing.T) {
	q := NewReceiveQueue(0, 1<<20, nil)
	var delivered []Satisfied
	entry := &ReceiveQueueEntry{ID: q.NextID(), MinBytes: 5, MaxBytes: 5}
	q.PushRequest(entry)

	delivered = q.Fill([]byte("abc"))
	require.Empty(t, delivered)

	delivered = q.Fill([]byte("de"))
	require.Len(t, delivered, 1)
	s, err := delivered[0].Data.Buffer()
	require.NoError(t, err)
	require.Equal(t, []byte("abcde"), s)
	require.Equal(t, 0, q.SizeBytes())
}

func TestReceiveQueueReadAheadBuffersWithoutPendingRequest(t *testing.T) {
	q := NewReceiveQueue(0, 1<<20, nil)
	delivered := q.Fill([]byte("buffered"))
	require.Empty(t, delivered)
	require.Equal(t, 8, q.SizeBytes())
}

func TestReceiveQueueCancelRefusesInProgress(t *testing.T) {
	q := NewReceiveQueue(0, 1<<20, nil)
	tok := ntsock.NewToken()
	entry := &ReceiveQueueEntry{ID: q.NextID(), MinBytes: 10, Token: tok, HasToken: true}
	q.PushRequest(entry)

	entry.InProgress = true
	_, err := q.RemoveByToken(tok)
	require.ErrorIs(t, err, ntsock.ErrInProgress)
}

func TestReceiveFeedbackAIMD(t *testing.T) {
	f := NewReceiveFeedback(256, 4096, 256)
	initial := f.Advise()
	f.OnFullRead()
	require.Greater(t, f.Advise(), initial)

	for i := 0; i < 20; i++ {
		f.OnFullRead()
	}
	require.LessOrEqual(t, f.Advise(), 4096)

	before := f.Advise()
	f.OnShortRead()
	require.Less(t, f.Advise(), before)

	for i := 0; i < 20; i++ {
		f.OnShortRead()
	}
	require.GreaterOrEqual(t, f.Advise(), 256)
}

func TestReceiveQueueWatermarkAlternation(t *testing.T) {
	q := NewReceiveQueue(0, 10, nil)
	q.Fill(make([]byte, 20))

	require.True(t, q.AuthorizeHighWatermarkEvent(10))
	require.False(t, q.AuthorizeHighWatermarkEvent(10))
}
