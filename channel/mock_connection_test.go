package channel

import (
	"errors"
	"sync"

	"github.com/streamgate/channeld/connection"
	"github.com/streamgate/channeld/payload"
	"github.com/streamgate/channeld/stream"
)

var errMockTransmitFailed = errors.New("mock: transmit failed")

// mockConn is a fully synchronous, controllable connection.Connection
// double. Paired with WithInlineHandlers(true), every Async* call below
// completes on the caller's goroutine, so a test drives the router
// deterministically one call at a time with no goroutine scheduling to
// race against.
type mockConn struct {
	mu sync.Mutex

	name      string
	direction connection.Direction
	mode      connection.Mode
	typ       connection.Type
	status    connection.Status

	streams map[uint16]stream.Stream

	// Input side: AsyncReceive delivers one queued payload per call. An
	// exhausted queue leaves the call pending forever (no handler
	// invocation), the same as a real transport with nothing to read.
	// recvHandler is retained so a test can drive a self-driven (CDI-style)
	// input by calling it directly without the router ever re-arming.
	recvQueue         []*payload.Payload
	recvIdx           int
	recvErr           error
	recvHandler       connection.ReceiveHandler
	asyncReceiveCalls int

	// Output side: AsyncTransmit completes immediately with transmitErr
	// unless blocked is set, in which case it never calls its handler —
	// modeling sustained backpressure on the remote end. failAt, if >= 0,
	// fails exactly the attempt at that 0-based index and faults the
	// connection, then clears itself so a later reconnect succeeds.
	blocked     bool
	transmitErr error
	transmitted []*payload.Payload
	attempts    int
	failAt      int

	connectErr  error
	disconnects int
}

func newMockConn(name string, dir connection.Direction, mode connection.Mode) *mockConn {
	return &mockConn{
		name:      name,
		direction: dir,
		mode:      mode,
		typ:       connection.Tcp,
		status:    connection.Closed,
		streams:   make(map[uint16]stream.Stream),
		failAt:    -1,
	}
}

// driveHandler invokes the handler AsyncReceive last stored, simulating a
// self-driven transport (CDI) delivering a payload without the router
// ever calling AsyncReceive again.
func (m *mockConn) driveHandler(err error, p *payload.Payload) {
	m.mu.Lock()
	h := m.recvHandler
	m.mu.Unlock()
	h(err, p)
}

func (m *mockConn) queue(p *payload.Payload) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recvQueue = append(m.recvQueue, p)
}

func (m *mockConn) setBlocked(b bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocked = b
}

func (m *mockConn) transmittedPayloads() []*payload.Payload {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*payload.Payload, len(m.transmitted))
	copy(out, m.transmitted)
	return out
}

func (m *mockConn) Name() string                    { return m.name }
func (m *mockConn) Host() string                    { return "mock" }
func (m *mockConn) Port() int                       { return 0 }
func (m *mockConn) Mode() connection.Mode           { return m.mode }
func (m *mockConn) Direction() connection.Direction { return m.direction }
func (m *mockConn) Type() connection.Type           { return m.typ }

func (m *mockConn) Status() connection.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *mockConn) setStatus(s connection.Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}

func (m *mockConn) AsyncConnect(h connection.CompletionHandler) { m.open(h) }
func (m *mockConn) AsyncAccept(h connection.CompletionHandler)  { m.open(h) }

func (m *mockConn) open(h connection.CompletionHandler) {
	m.mu.Lock()
	err := m.connectErr
	if err == nil {
		m.status = connection.Open
	} else {
		m.status = connection.Faulted
	}
	m.mu.Unlock()
	h(err)
}

func (m *mockConn) AsyncReceive(h connection.ReceiveHandler) {
	m.mu.Lock()
	m.asyncReceiveCalls++
	m.recvHandler = h

	if m.recvErr != nil {
		err := m.recvErr
		m.recvErr = nil
		m.mu.Unlock()
		h(err, nil)
		return
	}
	if m.recvIdx >= len(m.recvQueue) {
		m.mu.Unlock()
		return
	}
	p := m.recvQueue[m.recvIdx]
	m.recvIdx++
	m.mu.Unlock()
	h(nil, p)
}

func (m *mockConn) AsyncTransmit(p *payload.Payload, h connection.TransmitHandler) {
	m.mu.Lock()
	if m.blocked {
		m.mu.Unlock()
		return
	}
	idx := m.attempts
	m.attempts++
	if m.failAt == idx {
		m.failAt = -1
		m.status = connection.Faulted
		m.mu.Unlock()
		h(errMockTransmitFailed)
		return
	}
	err := m.transmitErr
	m.transmitted = append(m.transmitted, p)
	m.mu.Unlock()
	h(err)
}

func (m *mockConn) Disconnect() error {
	m.mu.Lock()
	m.status = connection.Closed
	m.disconnects++
	m.mu.Unlock()
	return nil
}

func (m *mockConn) AddStream(s stream.Stream) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streams[s.ID()] = s
	return nil
}

func (m *mockConn) GetStream(id uint16) (stream.Stream, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.streams[id]
	return s, ok
}

func (m *mockConn) Streams() []stream.Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]stream.Stream, 0, len(m.streams))
	for _, s := range m.streams {
		out = append(out, s)
	}
	return out
}

var _ connection.Connection = (*mockConn)(nil)
