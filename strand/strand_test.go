package strand

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func drained(s *Strand) bool {
	return !s.busyForTest()
}

func (s *Strand) busyForTest() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

func waitDrained(t *testing.T, s *Strand) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !drained(s) {
		if time.Now().After(deadline) {
			t.Fatal("strand never drained")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestStrandRunsInlineWhenIdle(t *testing.T) {
	s := New(nil)
	ran := false
	s.Execute(func() { ran = true })
	require.True(t, ran)
}

func TestStrandPreservesFIFOOrder(t *testing.T) {
	s := New(nil)

	started := make(chan struct{})
	release := make(chan struct{})
	go s.Execute(func() {
		close(started)
		<-release
	})
	<-started

	var mu sync.Mutex
	var order []int
	for i := 0; i < 10; i++ {
		i := i
		s.Execute(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	require.Equal(t, 10, s.QueueLen())

	close(release)
	waitDrained(t, s)

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		require.Equal(t, i, v)
	}
}

func TestStrandNeverRunsTwoTasksConcurrently(t *testing.T) {
	exec := NewExecutor(4)
	defer exec.Close()
	s := New(exec)

	var inFlight int32
	var maxSeen int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		s.Execute(func() {
			defer wg.Done()
			n := atomic.AddInt32(&inFlight, 1)
			for {
				old := atomic.LoadInt32(&maxSeen)
				if n <= old || atomic.CompareAndSwapInt32(&maxSeen, old, n) {
					break
				}
			}
			atomic.AddInt32(&inFlight, -1)
		})
	}
	wg.Wait()
	require.Equal(t, int32(1), atomic.LoadInt32(&maxSeen))
}

func TestIsRunningInCurrentGoroutineIsTrueOnlyInsideTheStrand(t *testing.T) {
	s := New(nil)
	require.False(t, s.IsRunningInCurrentGoroutine())

	var insideReport bool
	s.Execute(func() {
		insideReport = s.IsRunningInCurrentGoroutine()
	})
	require.True(t, insideReport)
	require.False(t, s.IsRunningInCurrentGoroutine())
}

func TestExecutorRunsSubmittedWork(t *testing.T) {
	exec := NewExecutor(2)
	defer exec.Close()

	done := make(chan struct{})
	exec.Submit(func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("submitted task never ran")
	}
}
