package ws

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Conn is one upgraded WebSocket connection. Reads happen from a single
// goroutine (the per-client worker); writes are serialized by a mutex so
// broadcasts from other goroutines interleave safely with responses.
type Conn struct {
	conn net.Conn
	br   *bufio.Reader

	writeMu      sync.Mutex
	writeTimeout time.Duration
	maxPayload   int

	closed atomic.Bool

	// fragment accumulator for the message in progress
	fragOpcode byte
	fragBuf    []byte
}

// Upgrade performs the server side of the opening handshake on a raw TCP
// connection and returns the framed Conn. On any failure the connection
// is closed and an error returned.
func Upgrade(conn net.Conn, maxHandshake, maxPayload int, writeTimeout time.Duration) (*Conn, error) {
	br := bufio.NewReader(conn)
	header, err := readHandshake(br, maxHandshake)
	if err != nil {
		conn.Close()
		return nil, err
	}
	key, err := extractKey(header)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := conn.Write([]byte(upgradeResponse(key))); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: write upgrade response: %v", ErrConnBroken, err)
	}
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}
	return &Conn{
		conn:         conn,
		br:           br,
		writeTimeout: writeTimeout,
		maxPayload:   maxPayload,
	}, nil
}

// RemoteAddr reports the peer address of the underlying connection.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// ReadMessage blocks until one complete text or binary message is
// assembled. Control frames interleaved between fragments are handled
// here without disturbing the fragment buffer: PING is answered with a
// PONG echo, PONG is ignored, CLOSE is echoed and ends the connection.
func (c *Conn) ReadMessage() (opcode byte, payload []byte, err error) {
	if c.closed.Load() {
		return 0, nil, ErrConnBroken
	}
	for {
		f, err := readFrame(c.br, c.maxPayload)
		if err != nil {
			c.Close()
			return 0, nil, err
		}

		if f.isControl() {
			if !f.fin {
				c.Close()
				return 0, nil, fmt.Errorf("%w: fragmented control frame", ErrConnBroken)
			}
			switch f.opcode {
			case OpPing:
				if err := c.writeControl(OpPong, f.payload); err != nil {
					return 0, nil, err
				}
			case OpPong:
				// unsolicited pong, ignore
			case OpClose:
				c.echoClose(f.payload)
				c.Close()
				return 0, nil, ErrConnBroken
			default:
				c.Close()
				return 0, nil, fmt.Errorf("%w: unknown control opcode %#x", ErrConnBroken, f.opcode)
			}
			continue
		}

		switch f.opcode {
		case OpText, OpBinary:
			if len(c.fragBuf) > 0 {
				c.Close()
				return 0, nil, fmt.Errorf("%w: new message before fragment end", ErrConnBroken)
			}
			c.fragOpcode = f.opcode
			c.fragBuf = append(c.fragBuf, f.payload...)
		case OpContinuation:
			if c.fragOpcode == 0 {
				c.Close()
				return 0, nil, fmt.Errorf("%w: continuation without start", ErrConnBroken)
			}
			c.fragBuf = append(c.fragBuf, f.payload...)
		default:
			c.Close()
			return 0, nil, fmt.Errorf("%w: unknown opcode %#x", ErrConnBroken, f.opcode)
		}

		if f.fin {
			op := c.fragOpcode
			msg := c.fragBuf
			c.fragOpcode = 0
			c.fragBuf = nil
			return op, msg, nil
		}
	}
}

// WriteText sends one text message as a single unfragmented frame.
func (c *Conn) WriteText(payload []byte) error {
	return c.writeMessage(OpText, payload)
}

// WriteBinary sends one binary message as a single unfragmented frame.
func (c *Conn) WriteBinary(payload []byte) error {
	return c.writeMessage(OpBinary, payload)
}

func (c *Conn) writeMessage(opcode byte, payload []byte) error {
	if c.closed.Load() {
		return ErrConnBroken
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return writeFrame(c.conn, opcode, true, payload)
}

func (c *Conn) writeControl(opcode byte, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return writeFrame(c.conn, opcode, true, payload)
}

// echoClose replies to a client CLOSE with the same status code (default
// 1000) and reason. Best-effort: the connection is torn down regardless.
func (c *Conn) echoClose(payload []byte) {
	code := uint16(1000)
	var reason []byte
	if len(payload) >= 2 {
		code = binary.BigEndian.Uint16(payload[:2])
		reason = payload[2:]
	}
	buf := make([]byte, 2, 2+len(reason))
	binary.BigEndian.PutUint16(buf, code)
	buf = append(buf, reason...)
	_ = c.writeControl(OpClose, buf)
}

// Close marks the connection closed and shuts down the transport.
// Sends after Close fail with ErrConnBroken.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.conn.Close()
}

// IsClosed reports whether Close has been called.
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}
