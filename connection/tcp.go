package connection

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	temperrcatcher "github.com/jbenet/go-temp-err-catcher"

	"github.com/streamgate/channeld/payload"
)

// tcpHeaderSize is the fixed header prefixing every payload on the wire:
// 2 bytes stream id, 8 bytes sequence, 4 bytes size.
const tcpHeaderSize = 14

// TCP is the plain byte-stream transport: a Client dials, a Server
// listens and accepts exactly one peer per Connection. Framing is a
// fixed 14-byte header (stream id, sequence, size) followed by the raw
// payload bytes — just enough concrete protocol to exercise the router
// end to end; real framing concerns belong to the transport layer the
// spec keeps external.
type TCP struct {
	base
	log      *slog.Logger
	listener net.Listener
	conn     net.Conn
}

// NewTCP constructs a TCP Connection. If log is nil, slog.Default() is used.
func NewTCP(name, host string, port int, mode Mode, direction Direction, log *slog.Logger) *TCP {
	if log == nil {
		log = slog.Default()
	}
	return &TCP{
		base: newBase(name, host, port, mode, direction, Tcp),
		log:  log.With("component", "tcp-connection", "name", name),
	}
}

func (t *TCP) AsyncConnect(h CompletionHandler) {
	if t.mode != Client {
		go h(fmt.Errorf("tcp %s: AsyncConnect called on a %v connection", t.name, t.mode))
		return
	}
	t.setStatus(Connecting)
	go func() {
		conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", t.host, t.port), dialTimeout)
		if err != nil {
			t.setStatus(Faulted)
			h(fmt.Errorf("tcp dial %s:%d: %w", t.host, t.port, err))
			return
		}
		t.conn = conn
		t.setStatus(Open)
		h(nil)
	}()
}

func (t *TCP) AsyncAccept(h CompletionHandler) {
	if t.mode != Server {
		go h(fmt.Errorf("tcp %s: AsyncAccept called on a %v connection", t.name, t.mode))
		return
	}
	t.setStatus(Connecting)
	go func() {
		if t.listener == nil {
			ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", t.host, t.port))
			if err != nil {
				t.setStatus(Faulted)
				h(fmt.Errorf("tcp listen %s:%d: %w", t.host, t.port, err))
				return
			}
			t.listener = ln
		}

		var catcher temperrcatcher.TempErrCatcher
		for {
			conn, err := t.listener.Accept()
			if err != nil {
				if catcher.IsTemporary(err) {
					t.log.Warn("transient accept error, retrying", "error", err)
					continue
				}
				t.setStatus(Faulted)
				h(fmt.Errorf("tcp accept on %s:%d: %w", t.host, t.port, err))
				return
			}
			t.conn = conn
			t.setStatus(Open)
			h(nil)
			return
		}
	}()
}

func (t *TCP) AsyncReceive(h ReceiveHandler) {
	conn := t.conn
	if conn == nil {
		go h(fmt.Errorf("tcp %s: AsyncReceive on an unopened connection", t.name), nil)
		return
	}
	go func() {
		header := make([]byte, tcpHeaderSize)
		if _, err := io.ReadFull(conn, header); err != nil {
			t.recordError()
			t.setStatus(Faulted)
			h(fmt.Errorf("tcp %s: read header: %w", t.name, err), nil)
			return
		}
		streamID := binary.BigEndian.Uint16(header[0:2])
		sequence := binary.BigEndian.Uint64(header[2:10])
		size := binary.BigEndian.Uint32(header[10:14])

		body := make([]byte, size)
		if _, err := io.ReadFull(conn, body); err != nil {
			t.recordError()
			t.setStatus(Faulted)
			h(fmt.Errorf("tcp %s: read body: %w", t.name, err), nil)
			return
		}
		t.recordReceived()
		h(nil, payload.New(streamID, sequence, body))
	}()
}

func (t *TCP) AsyncTransmit(p *payload.Payload, h TransmitHandler) {
	conn := t.conn
	if conn == nil {
		go h(fmt.Errorf("tcp %s: AsyncTransmit on an unopened connection", t.name))
		return
	}
	go func() {
		header := make([]byte, tcpHeaderSize)
		binary.BigEndian.PutUint16(header[0:2], p.StreamID)
		binary.BigEndian.PutUint64(header[2:10], p.Sequence)
		binary.BigEndian.PutUint32(header[10:14], uint32(p.Size()))

		if _, err := conn.Write(header); err != nil {
			t.recordError()
			t.setStatus(Faulted)
			h(fmt.Errorf("tcp %s: write header: %w", t.name, err))
			return
		}
		if _, err := conn.Write(p.Bytes()); err != nil {
			t.recordError()
			t.setStatus(Faulted)
			h(fmt.Errorf("tcp %s: write body: %w", t.name, err))
			return
		}
		t.recordTransmitted()
		h(nil)
	}()
}

func (t *TCP) Disconnect() error {
	t.setStatus(Closed)
	var err error
	if t.conn != nil {
		err = t.conn.Close()
		t.conn = nil
	}
	if t.listener != nil {
		if lerr := t.listener.Close(); err == nil {
			err = lerr
		}
		t.listener = nil
	}
	return err
}

var _ Connection = (*TCP)(nil)

// dialTimeout bounds how long AsyncConnect waits before giving up; kept
// small since the channel router treats a dial failure as transient and
// retries via open_connections.
const dialTimeout = 5 * time.Second
