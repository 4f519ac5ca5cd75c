package channel

import (
	"github.com/streamgate/channeld/connection"
	"github.com/streamgate/channeld/payload"
	"github.com/streamgate/channeld/stream"
)

// startWrite (re)claims conn's output buffer for a transmit chain if
// there is data queued, called whenever the connection transitions into
// Open: on first open, and again on every successful reconnect, which
// resumes whatever chain a prior fault paused. An output with nothing
// queued stays idle until readComplete's enqueue kicks it.
func (c *Channel) startWrite(conn connection.Connection, handler Handler) {
	buf, ok := c.buffers[conn.Name()]
	if !ok {
		return
	}
	if p, started := buf.ensureStarted(); started {
		c.transmit(conn, p, handler)
	}
}

// transmit issues a single AsyncTransmit for p against conn.
func (c *Channel) transmit(conn connection.Connection, p *payload.Payload, handler Handler) {
	s, _ := c.streamByID(p.StreamID)
	conn.AsyncTransmit(p, c.writeCompleteHandler(conn, s, handler))
}

// writeCompleteHandler binds conn, the resolved stream and handler into a
// connection.TransmitHandler, deferred through the notification policy.
func (c *Channel) writeCompleteHandler(conn connection.Connection, s stream.Stream, handler Handler) connection.TransmitHandler {
	return func(err error) {
		c.deliver(func() { c.writeComplete(conn, s, err, handler) })
	}
}

// writeComplete is 4.4.4's write_complete: record the outcome on the
// stream's counters — an aggregate over every output of that stream, so
// a payload fanned out to N outputs counts up to N times; no separate
// per-(stream, output) counter is kept — then advance to the next
// queued element or go idle. A connection lost
// mid-transmit triggers recovery; the chain resumes, from wherever the
// buffer stands, once the connection reopens.
func (c *Channel) writeComplete(conn connection.Connection, s stream.Stream, err error, handler Handler) {
	if s != nil {
		if err != nil {
			s.Counters().PayloadError()
		} else {
			s.Counters().TransmittedPayload()
		}
	}

	buf, ok := c.buffers[conn.Name()]
	if !ok {
		return
	}
	next, ok := buf.advance()

	if err != nil && conn.Status() != connection.Open {
		c.openConnections(handler)
		return
	}
	if !c.isActive() || !ok {
		return
	}
	c.transmit(conn, next, handler)
}
