package connection

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"

	"github.com/quic-go/quic-go"

	"github.com/streamgate/channeld/payload"
)

// cdiHeaderSize mirrors the TCP framing so the router-facing wire format
// is identical across transports; only the underlying stream differs.
const cdiHeaderSize = 14

// CDI is the specialized, self-driven transport the spec models after an
// RDMA-like media link: once armed, it drives its own receive loop and
// delivers every subsequent payload straight to the stored handler
// without the router ever calling AsyncReceive again. It is built on a
// single QUIC stream per Connection.
type CDI struct {
	base
	log        *slog.Logger
	tlsConfig  *tls.Config
	quicConfig *quic.Config

	ctx    context.Context
	cancel context.CancelFunc

	listener *quic.Listener
	qconn    *quic.Conn
	stream   *quic.Stream

	armed bool
}

// NewCDI constructs a CDI Connection. If tlsConfig is nil, a self-signed
// one is generated (CDI is a closed link between router-managed peers,
// not a public-facing service). If log is nil, slog.Default() is used.
func NewCDI(name, host string, port int, mode Mode, direction Direction, tlsConfig *tls.Config, log *slog.Logger) *CDI {
	if log == nil {
		log = slog.Default()
	}
	if tlsConfig == nil {
		if generated, err := selfSignedTLSConfig("channeld-cdi"); err == nil {
			tlsConfig = generated
		}
	}
	return &CDI{
		base:      newBase(name, host, port, mode, direction, Cdi),
		log:       log.With("component", "cdi-connection", "name", name),
		tlsConfig: tlsConfig,
		quicConfig: &quic.Config{
			EnableDatagrams: true,
		},
	}
}

func (c *CDI) AsyncConnect(h CompletionHandler) {
	if c.mode != Client {
		go h(fmt.Errorf("cdi %s: AsyncConnect called on a %v connection", c.name, c.mode))
		return
	}
	c.setStatus(Connecting)
	c.ctx, c.cancel = context.WithCancel(context.Background())
	go func() {
		addr := fmt.Sprintf("%s:%d", c.host, c.port)
		qconn, err := quic.DialAddr(c.ctx, addr, c.tlsConfig, c.quicConfig)
		if err != nil {
			c.setStatus(Faulted)
			h(fmt.Errorf("cdi dial %s: %w", addr, err))
			return
		}
		st, err := qconn.OpenStreamSync(c.ctx)
		if err != nil {
			c.setStatus(Faulted)
			h(fmt.Errorf("cdi %s: open stream: %w", c.name, err))
			return
		}
		c.qconn = qconn
		c.stream = st
		c.setStatus(Open)
		h(nil)
	}()
}

func (c *CDI) AsyncAccept(h CompletionHandler) {
	if c.mode != Server {
		go h(fmt.Errorf("cdi %s: AsyncAccept called on a %v connection", c.name, c.mode))
		return
	}
	c.setStatus(Connecting)
	c.ctx, c.cancel = context.WithCancel(context.Background())
	go func() {
		addr := fmt.Sprintf("%s:%d", c.host, c.port)
		if c.listener == nil {
			ln, err := quic.ListenAddr(addr, c.tlsConfig, c.quicConfig)
			if err != nil {
				c.setStatus(Faulted)
				h(fmt.Errorf("cdi listen %s: %w", addr, err))
				return
			}
			c.listener = ln
		}

		qconn, err := c.listener.Accept(c.ctx)
		if err != nil {
			c.setStatus(Faulted)
			h(fmt.Errorf("cdi accept on %s: %w", addr, err))
			return
		}
		st, err := qconn.AcceptStream(c.ctx)
		if err != nil {
			c.setStatus(Faulted)
			h(fmt.Errorf("cdi %s: accept stream: %w", c.name, err))
			return
		}
		c.qconn = qconn
		c.stream = st
		c.setStatus(Open)
		h(nil)
	}()
}

// AsyncReceive arms the self-driven receive loop exactly once. Calling it
// a second time is a no-op: the router never re-arms a CDI connection,
// but the guard keeps this safe even if something upstream calls it
// twice.
func (c *CDI) AsyncReceive(h ReceiveHandler) {
	if c.armed {
		return
	}
	c.armed = true
	go c.driveReceive(h)
}

func (c *CDI) driveReceive(h ReceiveHandler) {
	for {
		if c.stream == nil {
			h(fmt.Errorf("cdi %s: receive armed on an unopened connection", c.name), nil)
			return
		}

		header := make([]byte, cdiHeaderSize)
		if _, err := io.ReadFull(c.stream, header); err != nil {
			c.recordError()
			h(fmt.Errorf("cdi %s: read header: %w", c.name, err), nil)
			if c.ctx.Err() != nil {
				return
			}
			continue
		}
		streamID := binary.BigEndian.Uint16(header[0:2])
		sequence := binary.BigEndian.Uint64(header[2:10])
		size := binary.BigEndian.Uint32(header[10:14])

		body := make([]byte, size)
		if _, err := io.ReadFull(c.stream, body); err != nil {
			c.recordError()
			h(fmt.Errorf("cdi %s: read body: %w", c.name, err), nil)
			if c.ctx.Err() != nil {
				return
			}
			continue
		}
		c.recordReceived()
		h(nil, payload.New(streamID, sequence, body))
	}
}

func (c *CDI) AsyncTransmit(p *payload.Payload, h TransmitHandler) {
	st := c.stream
	if st == nil {
		go h(fmt.Errorf("cdi %s: AsyncTransmit on an unopened connection", c.name))
		return
	}
	go func() {
		header := make([]byte, cdiHeaderSize)
		binary.BigEndian.PutUint16(header[0:2], p.StreamID)
		binary.BigEndian.PutUint64(header[2:10], p.Sequence)
		binary.BigEndian.PutUint32(header[10:14], uint32(p.Size()))

		if _, err := st.Write(header); err != nil {
			c.recordError()
			c.setStatus(Faulted)
			h(fmt.Errorf("cdi %s: write header: %w", c.name, err))
			return
		}
		if _, err := st.Write(p.Bytes()); err != nil {
			c.recordError()
			c.setStatus(Faulted)
			h(fmt.Errorf("cdi %s: write body: %w", c.name, err))
			return
		}
		c.recordTransmitted()
		h(nil)
	}()
}

func (c *CDI) Disconnect() error {
	c.setStatus(Closed)
	if c.cancel != nil {
		c.cancel()
	}
	var err error
	if c.stream != nil {
		err = c.stream.Close()
		c.stream = nil
	}
	if c.qconn != nil {
		_ = c.qconn.CloseWithError(0, "disconnect")
		c.qconn = nil
	}
	if c.listener != nil {
		if lerr := c.listener.Close(); err == nil {
			err = lerr
		}
		c.listener = nil
	}
	return err
}

var _ Connection = (*CDI)(nil)
