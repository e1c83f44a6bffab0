// Package ws carries chat packets over WebSocket using gobwas/ws. Each
// binary message holds exactly one packet payload; the WebSocket layer
// provides the framing, so no extra length prefix is used.
package ws

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"

	gws "github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/georgegerdin/chat-example/pkg/protocol"
)

// Conn adapts a WebSocket to the pipeline's transport interface.
type Conn struct {
	conn   net.Conn
	rw     io.ReadWriter
	client bool
}

// readWriter pairs a buffered reader with the raw socket so reads drain
// handshake leftovers first while control-frame replies go straight out.
type readWriter struct {
	io.Reader
	io.Writer
}

// Accept upgrades an incoming connection whose bytes are being read through
// reader and returns the server side of the WebSocket. The reader must be
// positioned at the start of the HTTP upgrade request; peeked bytes are
// preserved.
func Accept(conn net.Conn, reader *bufio.Reader) (*Conn, error) {
	rw := readWriter{Reader: reader, Writer: conn}
	if _, err := gws.Upgrade(rw); err != nil {
		return nil, fmt.Errorf("websocket upgrade: %w", err)
	}
	return &Conn{conn: conn, rw: rw, client: false}, nil
}

// Dial connects to a chat server at a ws:// URL and returns the client side
// of the WebSocket.
func Dial(ctx context.Context, url string) (*Conn, error) {
	conn, buffered, _, err := gws.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	// The dialer may have read past the handshake; those bytes live in the
	// returned reader and must not be lost.
	var r io.Reader = conn
	if buffered != nil {
		r = buffered
	}
	return &Conn{conn: conn, rw: readWriter{Reader: r, Writer: conn}, client: true}, nil
}

// ReadFrame reads one binary message. Empty and oversized messages are
// rejected with protocol.ErrFrameTooLarge, mirroring the TCP framing rules.
func (c *Conn) ReadFrame() ([]byte, error) {
	var data []byte
	var err error
	if c.client {
		data, err = wsutil.ReadServerBinary(c.rw)
	} else {
		data, err = wsutil.ReadClientBinary(c.rw)
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 || len(data) > protocol.MaxFrameSize {
		return nil, fmt.Errorf("%w: message length %d", protocol.ErrFrameTooLarge, len(data))
	}
	return data, nil
}

// WriteFrame sends one payload as a binary message.
func (c *Conn) WriteFrame(data []byte) error {
	if c.client {
		return wsutil.WriteClientBinary(c.conn, data)
	}
	return wsutil.WriteServerBinary(c.conn, data)
}

// Close sends a close frame best-effort, then releases the socket.
func (c *Conn) Close() error {
	if c.client {
		_ = wsutil.WriteClientMessage(c.conn, gws.OpClose, nil)
	} else {
		_ = wsutil.WriteServerMessage(c.conn, gws.OpClose, nil)
	}
	return c.conn.Close()
}

// RemoteAddr returns the remote address for logging.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
