package queue

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xtaci/ntsock"
	"github.com/xtaci/ntsock/data"
)

type fakeTimer struct{ stopped bool }

func (t *fakeTimer) Stop() { t.stopped = true }

func TestSendQueueSizeBytesEqualsSumOfEntries(t *testing.T) {
	q := NewSendQueue(0, 1<<20)
	e1, err := NewSendQueueEntry(q.NextID(), data.NewOwnedBuffer([]byte("hello")), 0)
	require.NoError(t, err)
	e2, err := NewSendQueueEntry(q.NextID(), data.NewOwnedBuffer([]byte("world!")), 0)
	require.NoError(t, err)

	q.Push(e1)
	q.Push(e2)
	require.Equal(t, 11, q.SizeBytes())
}

func TestSendQueuePopBytesSpansEntriesAndReleasesTimers(t *testing.T) {
	q := NewSendQueue(0, 1<<20)
	e1, _ := NewSendQueueEntry(q.NextID(), data.NewOwnedBuffer([]byte("abc")), 0)
	e2, _ := NewSendQueueEntry(q.NextID(), data.NewOwnedBuffer([]byte("defgh")), 0)
	timer1, timer2 := &fakeTimer{}, &fakeTimer{}
	e1.Timer, e2.Timer = timer1, timer2
	q.Push(e1)
	q.Push(e2)

	completed := q.PopBytes(5)
	require.Len(t, completed, 1)
	require.Equal(t, e1, completed[0])
	require.True(t, timer1.stopped)
	require.False(t, timer2.stopped)
	require.Equal(t, 3, q.SizeBytes())

	completed = q.PopBytes(3)
	require.Len(t, completed, 1)
	require.True(t, timer2.stopped)
	require.Equal(t, 0, q.SizeBytes())
}

func TestSendQueueCancelByTokenRefusesInProgress(t *testing.T) {
	q := NewSendQueue(0, 1<<20)
	e, _ := NewSendQueueEntry(q.NextID(), data.NewOwnedBuffer([]byte("payload")), 0)
	tok := ntsock.NewToken()
	e.Token, e.HasToken = tok, true
	q.Push(e)

	q.PopBytes(1) // marks e.InProgress
	_, err := q.RemoveByToken(tok)
	require.ErrorIs(t, err, ntsock.ErrInProgress)

	removed, err := q.RemoveByID(e.ID)
	require.Nil(t, removed)
	require.Error(t, err)
}

func TestSendQueueCancelByTokenSucceedsBeforeInProgress(t *testing.T) {
	q := NewSendQueue(0, 1<<20)
	e, _ := NewSendQueueEntry(q.NextID(), data.NewOwnedBuffer([]byte("payload")), 0)
	tok := ntsock.NewToken()
	e.Token, e.HasToken = tok, true
	q.Push(e)

	removed, err := q.RemoveByToken(tok)
	require.NoError(t, err)
	require.Equal(t, e.ID, removed.ID)
	require.Equal(t, 0, q.SizeBytes())
}

func TestSendQueueWatermarksSanitizeEachOther(t *testing.T) {
	q := NewSendQueue(10, 20)
	q.SetLowWatermark(30)
	require.Equal(t, 30, q.HighWatermark())

	q.SetHighWatermark(5)
	require.Equal(t, 5, q.LowWatermark())
}

func TestSendQueueWatermarkEventsAlternate(t *testing.T) {
	q := NewSendQueue(0, 10)
	e, _ := NewSendQueueEntry(q.NextID(), data.NewOwnedBuffer(make([]byte, 20)), 0)
	q.Push(e)

	require.True(t, q.AuthorizeHighWatermarkEvent(10))
	require.False(t, q.AuthorizeHighWatermarkEvent(10), "must not redeliver high-watermark before a low-watermark event")

	q.PopBytes(20)
	require.True(t, q.AuthorizeLowWatermarkEvent())
	require.False(t, q.AuthorizeLowWatermarkEvent())
}

func TestSendQueueBatchNextStopsAtFileRegion(t *testing.T) {
	q := NewSendQueue(0, 1<<20)
	e1, _ := NewSendQueueEntry(q.NextID(), data.NewOwnedBuffer([]byte("abc")), 0)
	e2, _ := NewSendQueueEntry(q.NextID(), data.NewFileRegion(data.FileRegion{Remaining: 4}), 0)
	q.Push(e1)
	q.Push(e2)

	batch := q.BatchNext(BatchOptions{})
	require.Len(t, batch, 1)
	require.Equal(t, []byte("abc"), batch[0])

	front, ok := q.PeekFront()
	require.True(t, ok)
	require.False(t, front.IsFileRegion())
}

func TestSendQueueBatchNextRespectsMaxBytes(t *testing.T) {
	q := NewSendQueue(0, 1<<20)
	e, _ := NewSendQueueEntry(q.NextID(), data.NewOwnedBuffer([]byte("0123456789")), 0)
	q.Push(e)

	batch := q.BatchNext(BatchOptions{MaxBytes: 4})
	total := 0
	for _, b := range batch {
		total += len(b)
	}
	require.Equal(t, 4, total)
}

func TestSendQueueRemoveAllReleasesEverything(t *testing.T) {
	q := NewSendQueue(0, 1<<20)
	e1, _ := NewSendQueueEntry(q.NextID(), data.NewOwnedBuffer([]byte("a")), 0)
	e2, _ := NewSendQueueEntry(q.NextID(), data.NewOwnedBuffer([]byte("b")), 0)
	timer1 := &fakeTimer{}
	e1.Timer = timer1
	q.Push(e1)
	q.Push(e2)

	all := q.RemoveAll()
	require.Len(t, all, 2)
	require.True(t, timer1.stopped)
	require.Equal(t, 0, q.SizeBytes())
	require.True(t, q.Empty())
}
