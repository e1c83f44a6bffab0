// Package tcp frames chat packets over a plain TCP stream: each packet
// travels as a 4-byte little-endian payload length followed by the payload.
package tcp

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/georgegerdin/chat-example/pkg/protocol"
)

// Conn adapts a net.Conn to the pipeline's transport interface by applying
// the length-prefix framing rule.
type Conn struct {
	conn   net.Conn
	reader io.Reader
}

// NewConn wraps a net.Conn.
func NewConn(conn net.Conn) *Conn {
	return &Conn{conn: conn, reader: bufio.NewReader(conn)}
}

// NewConnWithReader wraps a net.Conn whose first bytes were already read
// into reader. This is used when the listener has peeked at the connection
// for protocol detection.
func NewConnWithReader(conn net.Conn, reader *bufio.Reader) *Conn {
	return &Conn{conn: conn, reader: reader}
}

// ReadFrame reads one length-prefixed payload. The declared length is
// validated before any body bytes are read; zero or above
// protocol.MaxFrameSize fails with protocol.ErrFrameTooLarge.
func (c *Conn) ReadFrame() ([]byte, error) {
	var header [protocol.FrameHeaderSize]byte
	if _, err := io.ReadFull(c.reader, header[:]); err != nil {
		return nil, err
	}
	length := binary.LittleEndian.Uint32(header[:])
	if length == 0 || length > protocol.MaxFrameSize {
		return nil, fmt.Errorf("%w: declared length %d", protocol.ErrFrameTooLarge, length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(c.reader, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// WriteFrame sends one payload. Header and payload go out in a single
// Write call so a frame is never interleaved with another.
func (c *Conn) WriteFrame(data []byte) error {
	frame := protocol.AppendFrame(make([]byte, 0, protocol.FrameHeaderSize+len(data)), data)
	_, err := c.conn.Write(frame)
	return err
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// RemoteAddr returns the remote address for logging.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
