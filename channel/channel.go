// Package channel implements the router described by this module's
// specification: it owns a set of Connections and Streams, the
// stream↔connection bimap, one bounded PayloadBuffer per output
// connection, and drives the receive→fan-out→transmit loops that move
// payloads from inputs to outputs.
package channel

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/streamgate/channeld/bimap"
	"github.com/streamgate/channeld/connection"
	"github.com/streamgate/channeld/executor"
	"github.com/streamgate/channeld/stream"
)

// Handler is invoked with a non-nil error only when the channel gives up
// re-establishing a connection; transient receive/transmit errors and
// buffer drops are counted and logged, never escalated here.
type Handler func(err error)

// Channel is the routing core. Construct with New, populate it with
// AddInput/AddOutput/Add*Stream/MapStream, seal it with
// ValidateConfiguration, then Start it. Shutdown tears it down.
type Channel struct {
	log *slog.Logger

	// configMu guards connections/streams/connOrder/streamOrder during
	// the configuration phase. Per the concurrency model, these become
	// read-only once Start has run, so runtime code paths don't take
	// configMu at all.
	configMu    sync.Mutex
	connections map[string]connection.Connection
	connOrder   []string
	streams     map[uint16]stream.Stream
	streamOrder []uint16
	sealed      bool

	bimap   *bimap.Map
	buffers map[string]*outputState // keyed by output connection name

	exec             *executor.Executor
	active           atomic.Bool
	releaseSentinel  func()
	inlineHandlers   bool
	reconnectBackoff time.Duration

	attemptMu   sync.Mutex
	lastAttempt map[string]time.Time
}

// Option configures a Channel at construction time.
type Option func(*Channel)

// WithLogger overrides the default slog.Default() logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Channel) { c.log = log }
}

// WithInlineHandlers selects inline completion delivery (direct from the
// transport goroutine) instead of the default deferred delivery through
// the executor.
func WithInlineHandlers(inline bool) Option {
	return func(c *Channel) { c.inlineHandlers = inline }
}

// WithReconnectBackoff sets a minimum delay between successive
// open_connections recovery attempts for the same connection. Zero (the
// default) matches the spec's immediate-retry behavior.
func WithReconnectBackoff(d time.Duration) Option {
	return func(c *Channel) { c.reconnectBackoff = d }
}

// New constructs an empty Channel.
func New(queueSize int, opts ...Option) *Channel {
	c := &Channel{
		log:         slog.Default(),
		connections: make(map[string]connection.Connection),
		streams:     make(map[uint16]stream.Stream),
		bimap:       bimap.New(),
		buffers:     make(map[string]*outputState),
		exec:        executor.New(queueSize),
		lastAttempt: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "channel")
	return c
}

// AddInput constructs and registers an input Connection of the given
// transport type. capacity is accepted for signature symmetry with
// AddOutput but unused: input connections have no PayloadBuffer.
func (c *Channel) AddInput(typ connection.Type, name, host string, port int, mode connection.Mode, capacity int) (connection.Connection, error) {
	return c.addConnection(typ, name, host, port, mode, connection.In, capacity)
}

// AddOutput constructs and registers an output Connection, along with
// its PayloadBuffer of the given fixed capacity.
func (c *Channel) AddOutput(typ connection.Type, name, host string, port int, mode connection.Mode, capacity int) (connection.Connection, error) {
	return c.addConnection(typ, name, host, port, mode, connection.Out, capacity)
}

func (c *Channel) addConnection(typ connection.Type, name, host string, port int, mode connection.Mode, dir connection.Direction, capacity int) (connection.Connection, error) {
	var conn connection.Connection
	switch typ {
	case connection.Tcp:
		conn = connection.NewTCP(name, host, port, mode, dir, c.log)
	case connection.Cdi:
		conn = connection.NewCDI(name, host, port, mode, dir, nil, c.log)
	default:
		return nil, invalidConfig("connection %q: unsupported transport type %v", name, typ)
	}
	return c.registerConnection(conn, capacity)
}

// AddConnection registers a pre-constructed Connection, the seam tests use
// to substitute a double for a real transport. Production callers should
// go through AddInput/AddOutput instead, which build one of the two
// concrete transports for them.
func (c *Channel) AddConnection(conn connection.Connection, capacity int) (connection.Connection, error) {
	return c.registerConnection(conn, capacity)
}

func (c *Channel) registerConnection(conn connection.Connection, capacity int) (connection.Connection, error) {
	c.configMu.Lock()
	defer c.configMu.Unlock()

	name := conn.Name()
	if c.sealed {
		return nil, invalidConfig("cannot add connection %q: configuration already validated", name)
	}
	if _, exists := c.connections[name]; exists {
		return nil, invalidConfig("connection %q already exists", name)
	}

	c.connections[name] = conn
	c.connOrder = append(c.connOrder, name)

	if conn.Direction() == connection.Out {
		c.buffers[name] = newOutputState(capacity)
	}

	return conn, nil
}

// AddVideoStream constructs and registers a Video stream descriptor.
func (c *Channel) AddVideoStream(id uint16, width, height int, frameRate float64) (*stream.VideoStream, error) {
	s := stream.NewVideoStream(id, width, height, frameRate)
	if err := c.addStream(s); err != nil {
		return nil, err
	}
	return s, nil
}

// AddAudioStream constructs and registers an Audio stream descriptor.
func (c *Channel) AddAudioStream(id uint16, sampleRate, channels int, groupID uint32) (*stream.AudioStream, error) {
	s := stream.NewAudioStream(id, sampleRate, channels, groupID)
	if err := c.addStream(s); err != nil {
		return nil, err
	}
	return s, nil
}

// AddAncillaryStream constructs and registers an Ancillary stream
// descriptor.
func (c *Channel) AddAncillaryStream(id uint16, language string) (*stream.AncillaryStream, error) {
	s := stream.NewAncillaryStream(id, language)
	if err := c.addStream(s); err != nil {
		return nil, err
	}
	return s, nil
}

func (c *Channel) addStream(s stream.Stream) error {
	c.configMu.Lock()
	defer c.configMu.Unlock()

	if c.sealed {
		return invalidConfig("cannot add stream %d: configuration already validated", s.ID())
	}
	if _, exists := c.streams[s.ID()]; exists {
		return invalidConfig("stream %d already exists", s.ID())
	}
	c.streams[s.ID()] = s
	c.streamOrder = append(c.streamOrder, s.ID())
	return nil
}

// MapStream binds streamID to connName. A stream may have at most one
// input connection (invariant 2); attempting to map a second input to an
// already-input-mapped stream raises InvalidConfigurationError. Any
// number of output connections may be mapped to the same stream.
func (c *Channel) MapStream(streamID uint16, connName string) error {
	c.configMu.Lock()
	defer c.configMu.Unlock()

	if c.sealed {
		return invalidConfig("cannot map stream %d: configuration already validated", streamID)
	}

	if _, ok := c.streams[streamID]; !ok {
		return invalidConfig("unknown stream %d", streamID)
	}
	conn, ok := c.connections[connName]
	if !ok {
		return invalidConfig("unknown connection %q", connName)
	}

	if conn.Direction() == connection.In {
		for _, existing := range c.bimap.ConnectionsFor(streamID) {
			if other := c.connections[existing]; other != nil && other.Direction() == connection.In {
				return invalidConfig("stream %d already has an input connection %q", streamID, existing)
			}
		}
	}

	c.bimap.Link(connName, streamID)
	return conn.AddStream(c.streams[streamID])
}

// ValidateConfiguration seals the configuration and checks invariant 3:
// every registered connection must have at least one stream mapped to
// it. Once this returns successfully, AddInput/AddOutput/Add*Stream/
// MapStream all fail.
func (c *Channel) ValidateConfiguration() error {
	c.configMu.Lock()
	defer c.configMu.Unlock()

	for _, name := range c.connOrder {
		if !c.bimap.HasConnection(name) {
			return invalidConfig("connection %q has no streams mapped", name)
		}
	}
	c.sealed = true
	return nil
}

// ShowConfiguration writes a human-readable listing of every connection
// and stream to w. Format is diagnostic only, not a wire contract.
func (c *Channel) ShowConfiguration(w io.Writer) {
	c.configMu.Lock()
	defer c.configMu.Unlock()

	fmt.Fprintln(w, "connections:")
	for _, name := range c.connOrder {
		conn := c.connections[name]
		fmt.Fprintf(w, "  %s: type=%v direction=%v mode=%v host=%s port=%d status=%v\n",
			name, conn.Type(), conn.Direction(), conn.Mode(), conn.Host(), conn.Port(), conn.Status())
	}
	fmt.Fprintln(w, "streams:")
	for _, id := range c.streamOrder {
		s := c.streams[id]
		fmt.Fprintf(w, "  %d: type=%v received=%d transmitted=%d errors=%d\n",
			id, s.PayloadType(), s.Counters().Received(), s.Counters().Transmitted(), s.Counters().Errors())
	}
}

// ShowStreamConnections writes the connections bound to streamID to w.
func (c *Channel) ShowStreamConnections(w io.Writer, streamID uint16) {
	fmt.Fprintf(w, "stream %d connections: %v\n", streamID, c.bimap.ConnectionsFor(streamID))
}

// ConnectionSnapshot is a point-in-time view of one connection's state,
// returned by Snapshot for diagnostics.
type ConnectionSnapshot struct {
	Name        string
	Type        connection.Type
	Direction   connection.Direction
	Status      connection.Status
	Received    uint64
	Transmitted uint64
	Errors      uint64
	BufferSize  int
	BufferCap   int
}

// StreamSnapshot is a point-in-time view of one stream's counters.
type StreamSnapshot struct {
	ID          uint16
	PayloadType stream.PayloadType
	Received    uint64
	Transmitted uint64
	Errors      uint64
}

// Snapshot returns the current state of every connection and stream.
// This is a read-only diagnostic accessor, not a metrics export (the
// CloudWatch sink stays an external collaborator per the spec).
func (c *Channel) Snapshot() (conns []ConnectionSnapshot, streams []StreamSnapshot) {
	c.configMu.Lock()
	defer c.configMu.Unlock()

	for _, name := range c.connOrder {
		conn := c.connections[name]
		snap := ConnectionSnapshot{
			Name:      name,
			Type:      conn.Type(),
			Direction: conn.Direction(),
			Status:    conn.Status(),
		}
		if counted, ok := conn.(interface {
			Received() uint64
			Transmitted() uint64
			Errors() uint64
		}); ok {
			snap.Received = counted.Received()
			snap.Transmitted = counted.Transmitted()
			snap.Errors = counted.Errors()
		}
		if buf, ok := c.buffers[name]; ok {
			snap.BufferSize = buf.size()
			snap.BufferCap = buf.capacity()
		}
		conns = append(conns, snap)
	}
	for _, id := range c.streamOrder {
		s := c.streams[id]
		streams = append(streams, StreamSnapshot{
			ID:          id,
			PayloadType: s.PayloadType(),
			Received:    s.Counters().Received(),
			Transmitted: s.Counters().Transmitted(),
			Errors:      s.Counters().Errors(),
		})
	}
	return conns, streams
}

func (c *Channel) isActive() bool { return c.active.Load() }

// connectionByName returns the registered Connection, or nil. Safe to
// call from runtime code paths since connections is read-only after
// Start (invariant enforced by ValidateConfiguration sealing writes).
func (c *Channel) connectionByName(name string) connection.Connection {
	return c.connections[name]
}

func (c *Channel) streamByID(id uint16) (stream.Stream, bool) {
	s, ok := c.streams[id]
	return s, ok
}

func (c *Channel) outputsFor(streamID uint16) []connection.Connection {
	var outs []connection.Connection
	for _, name := range c.bimap.ConnectionsFor(streamID) {
		if conn := c.connections[name]; conn != nil && conn.Direction() == connection.Out {
			outs = append(outs, conn)
		}
	}
	return outs
}

// deliver runs fn either inline (on the calling goroutine) or deferred
// through the executor, per the notification policy.
func (c *Channel) deliver(fn func()) {
	if c.inlineHandlers {
		fn()
		return
	}
	c.exec.Post(fn)
}
