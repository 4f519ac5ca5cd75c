// Package connection defines the asynchronous transport endpoint the
// channel router depends on, and two concrete realizations: Tcp (a plain
// byte-stream transport over net.Conn) and Cdi (a self-driven, low-latency
// transport built on QUIC streams). The router only ever depends on the
// Connection interface in this package; the concrete transports are
// replaceable collaborators.
package connection

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/streamgate/channeld/payload"
	"github.com/streamgate/channeld/stream"
)

// Mode determines whether a Connection dials (Client) or accepts (Server).
type Mode int

const (
	Client Mode = iota
	Server
)

// Direction is In for connections the router reads from, Out for
// connections the router writes to.
type Direction int

const (
	In Direction = iota
	Out
)

// Type distinguishes transports. Cdi connections are self-driven: the
// router arms async_receive once and never re-arms it.
type Type int

const (
	Tcp Type = iota
	Cdi
)

func (t Type) String() string {
	if t == Cdi {
		return "cdi"
	}
	return "tcp"
}

// Status is the Connection's current state.
type Status int32

const (
	Closed Status = iota
	Connecting
	Open
	Faulted
)

func (s Status) String() string {
	switch s {
	case Closed:
		return "closed"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Faulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// ErrUnsupportedPayloadType is returned by AddStream when a stream's
// payload type isn't one the connection accepts.
var ErrUnsupportedPayloadType = errors.New("connection: unsupported payload type")

// ReceiveHandler is invoked once per payload received on an input
// Connection. err is non-nil on a transport-level receive failure; p is
// nil in that case.
type ReceiveHandler func(err error, p *payload.Payload)

// TransmitHandler is invoked once a transmit attempt (successful or not)
// completes.
type TransmitHandler func(err error)

// CompletionHandler is invoked once an async_connect/async_accept
// attempt completes.
type CompletionHandler func(err error)

// Connection is the uniform asynchronous interface every transport
// implements. All Async* methods are suspension points: they return
// immediately and invoke their handler later on the transport's own
// goroutine; whether the channel then handles the completion inline or
// defers it onto its executor is the channel's notification policy.
type Connection interface {
	Name() string
	Host() string
	Port() int
	Mode() Mode
	Direction() Direction
	Type() Type
	Status() Status

	// AsyncConnect dials the remote peer. Valid when Mode() == Client.
	AsyncConnect(h CompletionHandler)
	// AsyncAccept accepts an inbound peer. Valid when Mode() == Server.
	AsyncAccept(h CompletionHandler)
	// AsyncReceive arms one receive. For Tcp connections the router calls
	// this after every completion; for Cdi it is called exactly once and
	// the transport self-drives all subsequent deliveries to h.
	AsyncReceive(h ReceiveHandler)
	// AsyncTransmit hands p to the transport. At most one outstanding
	// transmit per output connection.
	AsyncTransmit(p *payload.Payload, h TransmitHandler)
	// Disconnect closes the connection synchronously. Idempotent.
	Disconnect() error

	AddStream(s stream.Stream) error
	GetStream(id uint16) (stream.Stream, bool)
	Streams() []stream.Stream
}

// validPayloadType is shared by both transport implementations:
// AddStream validates a stream's payload type is one the router's data
// model recognizes.
func validPayloadType(t stream.PayloadType) bool {
	switch t {
	case stream.Video, stream.Audio, stream.Ancillary:
		return true
	default:
		return false
	}
}

// base holds the fields and bookkeeping common to every transport.
type base struct {
	name      string
	host      string
	port      int
	mode      Mode
	direction Direction
	typ       Type
	status    atomic.Int32

	streamsMu sync.RWMutex
	streams   map[uint16]stream.Stream

	received    atomic.Uint64
	transmitted atomic.Uint64
	errors      atomic.Uint64
}

func newBase(name, host string, port int, mode Mode, direction Direction, typ Type) base {
	return base{
		name:      name,
		host:      host,
		port:      port,
		mode:      mode,
		direction: direction,
		typ:       typ,
		streams:   make(map[uint16]stream.Stream),
	}
}

func (b *base) Name() string         { return b.name }
func (b *base) Host() string         { return b.host }
func (b *base) Port() int            { return b.port }
func (b *base) Mode() Mode           { return b.mode }
func (b *base) Direction() Direction { return b.direction }
func (b *base) Type() Type           { return b.typ }
func (b *base) Status() Status       { return Status(b.status.Load()) }

// Received, Transmitted and Errors report the connection-level counters
// from the data model (section 3): received/transmitted/error payload
// counts, independent of any per-stream counters.
func (b *base) Received() uint64    { return b.received.Load() }
func (b *base) Transmitted() uint64 { return b.transmitted.Load() }
func (b *base) Errors() uint64      { return b.errors.Load() }

func (b *base) recordReceived()    { b.received.Add(1) }
func (b *base) recordTransmitted() { b.transmitted.Add(1) }
func (b *base) recordError()       { b.errors.Add(1) }

func (b *base) setStatus(s Status) { b.status.Store(int32(s)) }

func (b *base) AddStream(s stream.Stream) error {
	if !validPayloadType(s.PayloadType()) {
		return ErrUnsupportedPayloadType
	}
	b.streamsMu.Lock()
	defer b.streamsMu.Unlock()
	b.streams[s.ID()] = s
	return nil
}

func (b *base) GetStream(id uint16) (stream.Stream, bool) {
	b.streamsMu.RLock()
	defer b.streamsMu.RUnlock()
	s, ok := b.streams[id]
	return s, ok
}

func (b *base) Streams() []stream.Stream {
	b.streamsMu.RLock()
	defer b.streamsMu.RUnlock()
	out := make([]stream.Stream, 0, len(b.streams))
	for _, s := range b.streams {
		out = append(out, s)
	}
	return out
}
