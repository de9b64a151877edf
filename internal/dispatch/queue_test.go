package dispatch

import (
	"sync"
	"testing"
	"time"
)

func TestFIFO(t *testing.T) {
	q := New[int]()
	for i := 0; i < 5; i++ {
		if !q.Enqueue(i) {
			t.Fatalf("Enqueue(%d) rejected", i)
		}
	}
	if q.Len() != 5 {
		t.Fatalf("expected Len 5, got %d", q.Len())
	}
	for want := 0; want < 5; want++ {
		got, ok := q.Dequeue()
		if !ok || got != want {
			t.Fatalf("expected %d, got %d (ok=%v)", want, got, ok)
		}
	}
}

func TestDequeueBlocksUntilEnqueue(t *testing.T) {
	q := New[string]()
	got := make(chan string, 1)
	go func() {
		item, _ := q.Dequeue()
		got <- item
	}()

	select {
	case item := <-got:
		t.Fatalf("Dequeue returned %q before anything was enqueued", item)
	case <-time.After(50 * time.Millisecond):
	}

	q.Enqueue("conn")
	select {
	case item := <-got:
		if item != "conn" {
			t.Fatalf("expected conn, got %q", item)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Dequeue did not wake up")
	}
}

func TestShutdownWakesAllConsumers(t *testing.T) {
	q := New[int]()
	const consumers = 4
	var wg sync.WaitGroup
	results := make(chan bool, consumers)
	for i := 0; i < consumers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := q.Dequeue()
			results <- ok
		}()
	}

	time.Sleep(20 * time.Millisecond)
	q.Shutdown()
	q.Shutdown()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumers still blocked after Shutdown")
	}
	close(results)
	for ok := range results {
		if ok {
			t.Fatal("expected shutdown signal, got an item")
		}
	}
	if _, ok := q.Dequeue(); ok {
		t.Fatal("future Dequeue calls must see the shutdown signal")
	}
}

func TestShutdownDeliversPendingFirst(t *testing.T) {
	q := New[int]()
	q.Enqueue(1)
	q.Enqueue(2)
	q.Shutdown()

	if q.Enqueue(3) {
		t.Fatal("Enqueue after Shutdown should be rejected")
	}
	for want := 1; want <= 2; want++ {
		got, ok := q.Dequeue()
		if !ok || got != want {
			t.Fatalf("expected %d, got %d (ok=%v)", want, got, ok)
		}
	}
	if _, ok := q.Dequeue(); ok {
		t.Fatal("expected shutdown signal once empty")
	}
	if !q.Closed() {
		t.Fatal("expected Closed to report true")
	}
}

func TestDrain(t *testing.T) {
	q := New[int]()
	q.Enqueue(7)
	q.Enqueue(8)

	items := q.Drain()
	if len(items) != 2 || items[0] != 7 || items[1] != 8 {
		t.Fatalf("unexpected drain result %v", items)
	}
	if q.Len() != 0 {
		t.Fatalf("expected empty queue, got %d", q.Len())
	}
}

func TestEachItemDeliveredOnce(t *testing.T) {
	q := New[int]()
	const total = 1000
	const consumers = 8

	var mu sync.Mutex
	seen := make(map[int]int)
	var wg sync.WaitGroup
	for i := 0; i < consumers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				item, ok := q.Dequeue()
				if !ok {
					return
				}
				mu.Lock()
				seen[item]++
				mu.Unlock()
			}
		}()
	}
	for i := 0; i < total; i++ {
		q.Enqueue(i)
	}
	q.Shutdown()
	wg.Wait()

	if len(seen) != total {
		t.Fatalf("expected %d distinct items, got %d", total, len(seen))
	}
	for item, n := range seen {
		if n != 1 {
			t.Fatalf("item %d delivered %d times", item, n)
		}
	}
}
