package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sheerbytes/thrudrop/internal/dispatch"
	"github.com/sheerbytes/thrudrop/internal/logging"
)

func TestPoolServesMoreItemsThanWorkers(t *testing.T) {
	const workers = 2
	const items = 5

	q := dispatch.New[int]()
	release := make(map[int]chan struct{}, items)
	for i := 0; i < items; i++ {
		release[i] = make(chan struct{})
	}

	var mu sync.Mutex
	var started []int
	startedCh := make(chan int, items)
	p := New(workers, q, func(ctx context.Context, item int) {
		mu.Lock()
		started = append(started, item)
		mu.Unlock()
		startedCh <- item
		<-release[item]
	}, logging.Discard())
	p.Start(context.Background())

	for i := 0; i < items; i++ {
		require.True(t, q.Enqueue(i))
	}

	// Exactly two items are in service; the rest wait in order.
	first := []int{<-startedCh, <-startedCh}
	require.ElementsMatch(t, []int{0, 1}, first)
	require.Eventually(t, func() bool { return p.Busy() == workers }, time.Second, 5*time.Millisecond)
	require.Equal(t, items-workers, q.Len())

	close(release[0])
	require.Equal(t, 2, <-startedCh)
	close(release[1])
	require.Equal(t, 3, <-startedCh)
	close(release[2])
	require.Equal(t, 4, <-startedCh)
	close(release[3])
	close(release[4])

	q.Shutdown()
	waitOrFail(t, p)
	require.Equal(t, 0, p.Busy())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, started, items)
}

func TestPoolRecoversFromPanic(t *testing.T) {
	q := dispatch.New[string]()
	served := make(chan string, 2)
	p := New(1, q, func(ctx context.Context, item string) {
		if item == "boom" {
			panic("handler failure")
		}
		served <- item
	}, logging.Discard())
	p.Start(context.Background())

	q.Enqueue("boom")
	q.Enqueue("ok")

	select {
	case got := <-served:
		require.Equal(t, "ok", got)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive a panicking handler")
	}

	q.Shutdown()
	waitOrFail(t, p)
}

func TestPoolSizeAtLeastOne(t *testing.T) {
	p := New(0, dispatch.New[int](), func(context.Context, int) {}, logging.Discard())
	require.Equal(t, 1, p.Size())
}

func TestPoolDrainsPendingOnShutdown(t *testing.T) {
	q := dispatch.New[int]()
	var mu sync.Mutex
	var served []int
	p := New(1, q, func(ctx context.Context, item int) {
		mu.Lock()
		served = append(served, item)
		mu.Unlock()
	}, logging.Discard())

	for i := 0; i < 3; i++ {
		q.Enqueue(i)
	}
	q.Shutdown()
	p.Start(context.Background())
	p.Start(context.Background())
	waitOrFail(t, p)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{0, 1, 2}, served)
}

func waitOrFail[T any](t *testing.T, p *Pool[T]) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		p.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("workers did not exit after shutdown")
	}
}
