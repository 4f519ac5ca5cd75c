package payload

import "sync"

// Buffer is a bounded FIFO of Payloads belonging to a single output
// Connection. All operations take a single mutex; the critical section is
// a pointer copy and an index bump, so no lock-free structure is needed.
// There is no condition variable: the channel package's write loop is
// edge-triggered off Enqueue rather than polling IsEmpty, so nothing ever
// needs to block waiting for this buffer to gain an item.
type Buffer struct {
	mu       sync.Mutex
	items    []*Payload
	capacity int
}

// NewBuffer creates a Buffer with the given fixed capacity.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{
		items:    make([]*Payload, 0, capacity),
		capacity: capacity,
	}
}

// Capacity returns the buffer's fixed capacity.
func (b *Buffer) Capacity() int { return b.capacity }

// Enqueue pushes p at the tail if the buffer is not full. If full, p is
// dropped and Enqueue returns false. Dropping is an expected operation
// under load, not an error; the caller decides what (if anything) to
// count or log.
func (b *Buffer) Enqueue(p *Payload) bool {
	enqueued, _ := b.TryEnqueue(p)
	return enqueued
}

// TryEnqueue is Enqueue plus the full check, both under the same lock
// acquisition: callers that need to know whether this particular call
// was the one that found the buffer full (to count or log a drop)
// cannot get an atomic answer from a separate Size()/IsFull() probe
// followed by a later Enqueue — under concurrent producers, the probe
// and the append can interleave with another goroutine's append,
// making the probe stale by the time Enqueue runs. TryEnqueue folds
// both into one critical section instead.
func (b *Buffer) TryEnqueue(p *Payload) (enqueued, wasFull bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) >= b.capacity {
		return false, true
	}
	b.items = append(b.items, p)
	return true, false
}

// Front returns the head element without removing it. Behavior is
// undefined if the buffer is empty; callers must check IsEmpty first.
func (b *Buffer) Front() *Payload {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) == 0 {
		return nil
	}
	return b.items[0]
}

// PopFront removes the head element and releases the buffer's reference
// to it. No-op if the buffer is empty.
func (b *Buffer) PopFront() {
	b.mu.Lock()
	if len(b.items) == 0 {
		b.mu.Unlock()
		return
	}
	head := b.items[0]
	b.items[0] = nil
	b.items = b.items[1:]
	b.mu.Unlock()

	if head != nil {
		head.Release()
	}
}

// Clear drops all held payloads, releasing their references.
func (b *Buffer) Clear() {
	b.mu.Lock()
	items := b.items
	b.items = make([]*Payload, 0, b.capacity)
	b.mu.Unlock()

	for _, p := range items {
		if p != nil {
			p.Release()
		}
	}
}

// Size returns the current number of queued payloads.
func (b *Buffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// IsFull reports whether the buffer is at capacity.
func (b *Buffer) IsFull() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items) >= b.capacity
}

// IsEmpty reports whether the buffer holds no payloads.
func (b *Buffer) IsEmpty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items) == 0
}
