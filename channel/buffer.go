package channel

import (
	"log/slog"
	"sync"

	"github.com/streamgate/channeld/payload"
)

// outputState pairs a single output connection's PayloadBuffer with the
// hysteretic overflow latch from spec section 4.4.5, plus the active
// flag that makes the write loop edge-triggered instead of a busy poll:
// a transmit chain only ever starts from an enqueue landing on an idle
// output, or from the connection opening with data already queued, and
// it keeps running by advancing straight to the next element until the
// buffer drains. This is the single accessor both the read path
// (enqueue) and the write path (advance) go through, so the latch and
// the active flag never drift out of sync with the buffer they
// describe.
type outputState struct {
	mu      sync.Mutex
	buf     *payload.Buffer
	latched bool
	active  bool
}

func newOutputState(capacity int) *outputState {
	return &outputState{buf: payload.NewBuffer(capacity)}
}

// enqueue retains p on behalf of this output and enqueues it, recording
// a drop (via onDrop) when the buffer is already full. kick reports
// whether the caller must start a transmit chain: true only the first
// time an enqueue lands on an output that was idle. The overflow
// warning itself is left to the caller, which needs the connection's
// log context.
//
// The full check and the enqueue itself must resolve as a single
// atomic operation (payload.Buffer.TryEnqueue, under the buffer's own
// lock) rather than a full-check under o.mu followed by a separately
// locked Enqueue: with concurrent producers fanning into one output
// (legal per a multi-worker executor pool), two goroutines could
// otherwise both observe room for the last free slot, both skip
// onDrop, and then have only one Enqueue actually succeed — dropping
// the other payload with no counter incremented and no warning
// logged.
func (o *outputState) enqueue(p *payload.Payload, onDrop func()) (justOverflowed, kick bool) {
	p.Retain()
	if enqueued, _ := o.buf.TryEnqueue(p); !enqueued {
		p.Release()
		onDrop()
		o.mu.Lock()
		if !o.latched {
			o.latched = true
			justOverflowed = true
		}
		o.mu.Unlock()
		return justOverflowed, false
	}

	o.mu.Lock()
	if !o.active {
		o.active = true
		kick = true
	}
	o.mu.Unlock()
	return false, kick
}

// ensureStarted (re)claims the output for a transmit chain whenever its
// connection transitions into Open, whether that's the first open or a
// reconnect resuming a chain a fault paused mid-flight. A fault leaves
// active set while data remains queued (writeComplete advances past the
// failed head and then returns early on a lost connection, so concurrent
// enqueues don't kick a second chain), so
// this ignores the current flag rather than treating it as a guard: it
// is only ever called right as the connection becomes transmit-able,
// a moment at which no transmit can already be outstanding.
func (o *outputState) ensureStarted() (p *payload.Payload, started bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.buf.IsEmpty() {
		o.active = false
		return nil, false
	}
	o.active = true
	return o.buf.Front(), true
}

// advance completes the head transmit and either returns the next
// element (the chain keeps running) or marks the output idle again,
// waiting for the next enqueue to restart it.
func (o *outputState) advance() (p *payload.Payload, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.buf.PopFront()
	o.afterPopLocked()

	if o.buf.IsEmpty() {
		o.active = false
		return nil, false
	}
	return o.buf.Front(), true
}

// afterPopLocked re-evaluates the hysteresis low-water mark following a
// dequeue, clearing the latch once the buffer has drained to at most
// 80% of capacity. Callers must hold o.mu.
func (o *outputState) afterPopLocked() {
	if !o.latched {
		return
	}
	cap := o.buf.Capacity()
	if cap == 0 {
		return
	}
	if o.buf.Size() <= cap*4/5 {
		o.latched = false
	}
}

func (o *outputState) size() int     { return o.buf.Size() }
func (o *outputState) capacity() int { return o.buf.Capacity() }

// clear drops every queued payload and resets the loop to idle, called
// when an input connection (re)opens: stale payloads queued before a
// reconnect must not be transmitted as if they were fresh (4.4.2).
func (o *outputState) clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.buf.Clear()
	o.active = false
	o.latched = false
}

// warnOverflow logs the single warning an overflow transition produces,
// kept as its own function so call sites read as intent, not plumbing.
func warnOverflow(log *slog.Logger, connName string, size, capacity int) {
	log.Warn("output buffer overflow, dropping payloads",
		"connection", connName, "size", size, "capacity", capacity)
}
