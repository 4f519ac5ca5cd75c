package payload

import (
	"sync"
	"testing"
)

func TestBufferEnqueueDropsOnFull(t *testing.T) {
	const capacity = 4
	b := NewBuffer(capacity)

	for i := 0; i < capacity; i++ {
		if !b.Enqueue(New(100, uint64(i), nil)) {
			t.Fatalf("enqueue %d: expected success under capacity", i)
		}
	}

	dropped := 0
	for i := 0; i < 3; i++ {
		if b.Enqueue(New(100, uint64(capacity+i), nil)) {
			t.Fatalf("enqueue %d: expected drop past capacity", i)
		}
		dropped++
	}

	if b.Size() != capacity {
		t.Fatalf("size = %d, want %d", b.Size(), capacity)
	}
	if dropped != 3 {
		t.Fatalf("dropped = %d, want 3", dropped)
	}
}

func TestBufferFIFOOrder(t *testing.T) {
	b := NewBuffer(8)
	for i := uint64(0); i < 5; i++ {
		b.Enqueue(New(1, i, nil))
	}

	for i := uint64(0); i < 5; i++ {
		front := b.Front()
		if front == nil || front.Sequence != i {
			t.Fatalf("front sequence = %v, want %d", front, i)
		}
		b.PopFront()
	}

	if !b.IsEmpty() {
		t.Fatalf("expected empty buffer after draining")
	}
}

func TestBufferClearReleasesAll(t *testing.T) {
	b := NewBuffer(4)
	released := 0
	for i := uint64(0); i < 4; i++ {
		b.Enqueue(NewWithReleaser(1, i, nil, func(*Payload) { released++ }))
	}

	b.Clear()

	if !b.IsEmpty() {
		t.Fatalf("expected empty buffer after clear")
	}
	if released != 4 {
		t.Fatalf("released = %d, want 4", released)
	}
}

// TestBufferTryEnqueueConcurrentIsExact drives many goroutines at a
// buffer with exactly one free slot left. TryEnqueue's full-check and
// append happen under one lock acquisition, so exactly one caller must
// see enqueued=true and every other caller must see wasFull=true —
// unlike a separate IsFull()-then-Enqueue() probe, which can let two
// callers both pass the probe before either appends.
func TestBufferTryEnqueueConcurrentIsExact(t *testing.T) {
	const capacity = 8
	const racers = 50

	b := NewBuffer(capacity)
	for i := 0; i < capacity-1; i++ {
		b.Enqueue(New(1, uint64(i), nil))
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	enqueuedCount, fullCount := 0, 0

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(seq int) {
			defer wg.Done()
			enqueued, wasFull := b.TryEnqueue(New(1, uint64(100+seq), nil))
			mu.Lock()
			if enqueued {
				enqueuedCount++
			}
			if wasFull {
				fullCount++
			}
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	if enqueuedCount != 1 {
		t.Fatalf("enqueuedCount = %d, want exactly 1", enqueuedCount)
	}
	if fullCount != racers-1 {
		t.Fatalf("fullCount = %d, want %d", fullCount, racers-1)
	}
	if b.Size() != capacity {
		t.Fatalf("size = %d, want %d", b.Size(), capacity)
	}
}

func TestBufferIsFull(t *testing.T) {
	b := NewBuffer(2)
	if b.IsFull() {
		t.Fatalf("empty buffer reported full")
	}
	b.Enqueue(New(1, 0, nil))
	if b.IsFull() {
		t.Fatalf("half-full buffer reported full")
	}
	b.Enqueue(New(1, 1, nil))
	if !b.IsFull() {
		t.Fatalf("full buffer not reported full")
	}
}
