package queue

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xtaci/ntsock"
)

type fakeHandle struct{ ntsock.SocketHandle }

func TestAcceptQueueOfferSatisfiesOldestPendingRequest(t *testing.T) {
	q := NewAcceptQueue(0, 8)
	entry := &AcceptQueueEntry{ID: q.NextID()}
	require.Nil(t, q.PushRequest(entry))

	h := &fakeHandle{}
	remote := ntsock.NewIPv4Endpoint(nil, 9000)
	satisfied := q.Offer(h, remote)
	require.NotNil(t, satisfied)
	require.Equal(t, entry.ID, satisfied.Entry.ID)
	require.Equal(t, h, satisfied.Conn.Handle())
	require.Equal(t, 0, q.BacklogLen())
	require.Equal(t, 0, q.PendingLen())
}

func TestAcceptQueueBacklogsWithNoPendingRequest(t *testing.T) {
	q := NewAcceptQueue(0, 8)
	h := &fakeHandle{}
	satisfied := q.Offer(h, ntsock.Endpoint{})
	require.Nil(t, satisfied)
	require.Equal(t, 1, q.BacklogLen())
}

func TestAcceptQueueHighWatermarkGatesAdmission(t *testing.T) {
	q := NewAcceptQueue(0, 1)
	q.Offer(&fakeHandle{}, ntsock.Endpoint{})
	require.True(t, q.WouldExceedHighWatermark())
}

func TestAcceptQueueRemoveAllReturnsBothSides(t *testing.T) {
	q := NewAcceptQueue(0, 8)
	q.Offer(&fakeHandle{}, ntsock.Endpoint{})
	entry := &AcceptQueueEntry{ID: q.NextID()}
	q.PushRequest(entry)

	entries, handles := q.RemoveAll()
	require.Len(t, entries, 1)
	require.Len(t, handles, 1)
}
