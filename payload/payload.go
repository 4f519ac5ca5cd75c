// Package payload defines the immutable, reference-counted byte buffer
// that flows from input Connections through the Channel router to output
// Connections, and the bounded per-output queue it is held in.
package payload

import "sync/atomic"

// Payload is an opaque byte buffer tagged with the stream it belongs to.
// Once returned by a Connection's receive path it is never mutated; it is
// fanned out to every output mapped to its stream by sharing the same
// pointer, never by copying the underlying bytes.
type Payload struct {
	StreamID   uint16
	Sequence   uint64
	data       []byte
	refs       atomic.Int32
	onReleased func(*Payload)
}

// New wraps data as a Payload for the given stream and sequence number.
// The returned Payload starts with a reference count of 1, held by the
// caller (typically the Connection that produced it).
func New(streamID uint16, sequence uint64, data []byte) *Payload {
	p := &Payload{StreamID: streamID, Sequence: sequence, data: data}
	p.refs.Store(1)
	return p
}

// NewWithReleaser is like New but invokes onReleased once the reference
// count drops to zero, letting an (external, out-of-scope) payload pool
// reclaim the backing buffer.
func NewWithReleaser(streamID uint16, sequence uint64, data []byte, onReleased func(*Payload)) *Payload {
	p := New(streamID, sequence, data)
	p.onReleased = onReleased
	return p
}

// Bytes returns the underlying buffer. Callers must not modify it.
func (p *Payload) Bytes() []byte { return p.data }

// Size returns the length of the underlying buffer.
func (p *Payload) Size() int { return len(p.data) }

// Retain increments the reference count. Called once per output a
// payload is fanned out to, before it is enqueued into that output's
// PayloadBuffer.
func (p *Payload) Retain() {
	p.refs.Add(1)
}

// Release decrements the reference count, invoking the release callback
// (if any) when it reaches zero. Called once an output has finished
// transmitting, or dropping, its copy.
func (p *Payload) Release() {
	if p.refs.Add(-1) == 0 && p.onReleased != nil {
		p.onReleased(p)
	}
}
