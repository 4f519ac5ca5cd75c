package channel

import (
	"context"
	"time"

	"github.com/streamgate/channeld/connection"
)

// Start installs the active sentinel, opens every connection, then
// services the executor: on the calling goroutine if poolSize is 0, or
// across poolSize worker goroutines (joined via errgroup inside
// executor.RunPool) otherwise. Start blocks until ctx is cancelled or
// Shutdown is called.
func (c *Channel) Start(ctx context.Context, handler Handler, poolSize int) error {
	c.releaseSentinel = c.exec.Start()
	c.active.Store(true)

	c.openConnections(handler)

	err := c.exec.RunPool(ctx, poolSize)
	c.log.Info("executor stopped", "error", err)
	return err
}

// Shutdown drops the active sentinel, disconnects every connection, and
// stops the executor. Idempotent: a second call after the sentinel has
// already been released is a no-op.
func (c *Channel) Shutdown() {
	if !c.active.CompareAndSwap(true, false) {
		return
	}
	if c.releaseSentinel != nil {
		c.releaseSentinel()
	}
	for _, name := range c.connOrder {
		if conn := c.connections[name]; conn != nil {
			if err := conn.Disconnect(); err != nil {
				c.log.Warn("disconnect failed", "connection", name, "error", err)
			}
		}
	}
	c.exec.Stop()
}

// openConnections initiates dial (Client) or listen/accept (Server) for
// every Connection that is neither Open nor Connecting. Calling it while every connection
// is already Open is a no-op. The spec's recovery trigger fires on every
// call; WithReconnectBackoff only throttles how often the actual dial
// attempt underneath it goes out for one connection.
func (c *Channel) openConnections(handler Handler) {
	for _, name := range c.connOrder {
		conn := c.connections[name]
		if conn == nil || conn.Status() == connection.Open || conn.Status() == connection.Connecting {
			continue
		}
		c.attemptOpen(conn, handler)
	}
}

// attemptOpen issues the dial/accept for conn, or defers it until
// reconnectBackoff has elapsed since the last attempt against this
// connection. This keeps a permanently-down peer from being redialed in
// a tight loop while leaving the zero-backoff default identical to the
// spec's immediate re-dial.
func (c *Channel) attemptOpen(conn connection.Connection, handler Handler) {
	if wait := c.backoffRemaining(conn.Name()); wait > 0 {
		time.AfterFunc(wait, func() {
			c.deliver(func() { c.attemptOpen(conn, handler) })
		})
		return
	}

	switch conn.Mode() {
	case connection.Client:
		conn.AsyncConnect(c.connectionOpened(conn, handler))
	case connection.Server:
		conn.AsyncAccept(c.connectionOpened(conn, handler))
	}
}

// backoffRemaining reports how much longer the caller must wait before
// attempting conn again, recording the attempt (and returning 0) when
// it's allowed through immediately.
func (c *Channel) backoffRemaining(name string) time.Duration {
	if c.reconnectBackoff <= 0 {
		return 0
	}

	c.attemptMu.Lock()
	defer c.attemptMu.Unlock()

	if last, ok := c.lastAttempt[name]; ok {
		if elapsed := time.Since(last); elapsed < c.reconnectBackoff {
			return c.reconnectBackoff - elapsed
		}
	}
	c.lastAttempt[name] = time.Now()
	return 0
}

// connectionOpened returns the completion handler bound to conn, run per
// the channel's notification policy.
func (c *Channel) connectionOpened(conn connection.Connection, handler Handler) connection.CompletionHandler {
	return func(err error) {
		c.deliver(func() { c.onConnectionOpened(conn, err, handler) })
	}
}

func (c *Channel) onConnectionOpened(conn connection.Connection, err error, handler Handler) {
	if err != nil {
		c.log.Warn("connection open failed", "connection", conn.Name(), "error", err)
		if handler != nil {
			handler(err)
		}
		return
	}
	c.log.Info("connection open", "connection", conn.Name())

	if !c.isActive() {
		return
	}

	if conn.Direction() == connection.In {
		// Clear before arming the receive, so payloads the new receive
		// delivers (inline, or on another worker) are not discarded.
		for _, streamID := range c.bimap.StreamsFor(conn.Name()) {
			for _, out := range c.outputsFor(streamID) {
				if buf, ok := c.buffers[out.Name()]; ok {
					buf.clear()
				}
			}
		}

		if conn.Type() != connection.Cdi {
			c.asyncRead(conn, nil, handler)
		} else {
			conn.AsyncReceive(c.readCompleteHandler(conn, handler))
		}
		return
	}

	c.startWrite(conn, handler)
}
