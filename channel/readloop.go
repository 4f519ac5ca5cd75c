package channel

import (
	"github.com/streamgate/channeld/connection"
	"github.com/streamgate/channeld/payload"
)

// asyncRead drives the read loop for non-CDI inputs: issue one receive,
// and on completion either recover (if the connection dropped) or
// re-arm. CDI inputs never call this — they are armed once in
// onConnectionOpened and self-drive every subsequent delivery.
func (c *Channel) asyncRead(conn connection.Connection, err error, handler Handler) {
	if !c.isActive() {
		return
	}
	if err != nil && conn.Status() != connection.Open {
		c.openConnections(handler)
		return
	}
	conn.AsyncReceive(c.readCompleteHandler(conn, handler))
}

// readCompleteHandler binds conn and handler into a connection.ReceiveHandler,
// deferred through the channel's notification policy.
func (c *Channel) readCompleteHandler(conn connection.Connection, handler Handler) connection.ReceiveHandler {
	return func(err error, p *payload.Payload) {
		c.deliver(func() { c.readComplete(conn, err, p, handler) })
	}
}

// readComplete is 4.4.3's read_complete: resolve the stream, update
// counters, fan out to every output mapped to that stream, then either
// re-arm (Tcp) or do nothing (Cdi self-drives).
func (c *Channel) readComplete(conn connection.Connection, err error, p *payload.Payload, handler Handler) {
	if err != nil {
		c.log.Warn("receive error", "connection", conn.Name(), "error", err)
		if conn.Type() != connection.Cdi {
			c.asyncRead(conn, err, handler)
		}
		return
	}

	// p arrives holding the Connection's own reference (payload.New's
	// "held by the caller" contract); the channel takes ownership of
	// that reference here and releases it once fan-out is done, after
	// every output that wants a copy has taken its own via Retain.
	defer p.Release()

	s, ok := c.streamByID(p.StreamID)
	if !ok {
		c.log.Warn("payload for unmapped stream, dropping", "connection", conn.Name(), "stream", p.StreamID)
	} else {
		s.Counters().ReceivedPayload()
	}

	for _, out := range c.outputsFor(p.StreamID) {
		if out.Status() != connection.Open {
			if s != nil {
				s.Counters().PayloadError()
			}
			c.openConnections(handler)
			continue
		}

		buf, ok := c.buffers[out.Name()]
		if !ok {
			continue
		}

		justOverflowed, kick := buf.enqueue(p, func() {
			if s != nil {
				s.Counters().PayloadError()
			}
		})
		if justOverflowed {
			warnOverflow(c.log, out.Name(), buf.size(), buf.capacity())
		}
		if kick {
			c.transmit(out, p, handler)
		}
	}

	if conn.Type() != connection.Cdi {
		c.asyncRead(conn, nil, handler)
	}
}
