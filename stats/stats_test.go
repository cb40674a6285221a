package stats

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCountersSnapshot(t *testing.T) {
	var c Counters
	c.AddBytesSent(100)
	c.AddBytesReceived(40)
	c.IncHighWatermarkEvents()
	c.IncHighWatermarkEvents()
	c.IncLowWatermarkEvents()
	c.IncAcceptsAccepted()
	c.IncAcceptsRateLimited()
	c.IncAcceptHighWatermarkHits()
	c.IncSendsCancelled()
	c.IncReceivesCancelled()

	snap := c.Snapshot()
	require.EqualValues(t, 100, snap.BytesSent)
	require.EqualValues(t, 40, snap.BytesReceived)
	require.EqualValues(t, 2, snap.HighWatermarkEvents)
	require.EqualValues(t, 1, snap.LowWatermarkEvents)
	require.EqualValues(t, 1, snap.AcceptsAccepted)
	require.EqualValues(t, 1, snap.AcceptsRateLimited)
	require.EqualValues(t, 1, snap.AcceptHighWatermarkHits)
	require.EqualValues(t, 1, snap.SendsCancelled)
	require.EqualValues(t, 1, snap.ReceivesCancelled)

	require.Len(t, snap.ToSlice(), len(Header()))
}

func TestCSVLoggerWritesRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stats.csv")

	var c Counters
	c.AddBytesSent(5)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		CSVLogger(ctx, path, 5*time.Millisecond, &c, nil)
		close(done)
	}()

	require.Eventually(t, func() bool {
		info, err := os.Stat(path)
		return err == nil && info.Size() > 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
