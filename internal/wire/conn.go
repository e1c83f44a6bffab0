// Package wire drives one connection for both the chat client and server:
// a read loop that turns transport frames into decoded packets, and a FIFO
// write queue that guarantees in-order, non-interleaved packet writes.
package wire

import "github.com/georgegerdin/chat-example/pkg/protocol"

// Conn abstracts a bidirectional packet transport for both framed TCP and
// WebSocket. This interface isolates transport details from the pipeline.
type Conn interface {
	// ReadFrame reads a single packet payload. It blocks until a whole
	// payload is available and returns io.EOF when the peer closes.
	ReadFrame() ([]byte, error)

	// WriteFrame sends a single packet payload.
	WriteFrame(data []byte) error

	// Close closes the connection. Closing unblocks pending reads and
	// writes; it is the only cancellation mechanism the pipeline needs.
	Close() error

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string
}

// Handler receives pipeline callbacks. HandlePacket runs on the pipeline's
// read goroutine, one packet at a time in arrival order. HandleClosed runs
// exactly once, on the same goroutine, after the final HandlePacket.
type Handler interface {
	HandlePacket(pkt protocol.Packet)
	HandleClosed(err error)
}
