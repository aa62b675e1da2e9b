package task

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestManagerRunsEnqueuedTaskOnKick(t *testing.T) {
	m := NewManager(time.Hour, 0)
	m.Start(context.Background())
	defer m.Stop()

	done := make(chan struct{})
	m.Enqueue(func(ctx context.Context) { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run")
	}
}

func TestManagerRespectsMaxConcurrent(t *testing.T) {
	m := NewManager(time.Hour, 2)
	m.Start(context.Background())
	defer m.Stop()

	var running int32
	var maxObserved int32
	var wg sync.WaitGroup
	release := make(chan struct{})

	for i := 0; i < 6; i++ {
		wg.Add(1)
		m.Enqueue(func(ctx context.Context) {
			defer wg.Done()
			n := atomic.AddInt32(&running, 1)
			for {
				cur := atomic.LoadInt32(&maxObserved)
				if n <= cur || atomic.CompareAndSwapInt32(&maxObserved, cur, n) {
					break
				}
			}
			<-release
			atomic.AddInt32(&running, -1)
		})
	}

	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	require.LessOrEqual(t, int(atomic.LoadInt32(&maxObserved)), 2)
}

func TestManagerCancelStopsPendingTask(t *testing.T) {
	m := NewManager(time.Hour, 1)
	m.Start(context.Background())
	defer m.Stop()

	block := make(chan struct{})
	m.Enqueue(func(ctx context.Context) { <-block })

	ran := make(chan struct{}, 1)
	id := m.Enqueue(func(ctx context.Context) { ran <- struct{}{} })
	m.Cancel(id)
	close(block)

	select {
	case <-ran:
		t.Fatal("cancelled task ran")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestManagerStopCancelsRunningTask(t *testing.T) {
	m := NewManager(time.Hour, 0)
	m.Start(context.Background())

	cancelled := make(chan struct{})
	m.Enqueue(func(ctx context.Context) {
		<-ctx.Done()
		close(cancelled)
	})
	time.Sleep(50 * time.Millisecond)
	m.Stop()

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("running task was not cancelled on Stop")
	}
}
