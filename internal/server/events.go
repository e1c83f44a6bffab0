package server

import (
	"github.com/georgegerdin/chat-example/internal/wire"
	"github.com/georgegerdin/chat-example/pkg/protocol"
)

// event is anything the run loop consumes. Every mutation of the session
// registry arrives as one of the types below; nothing else touches it.
type event interface{}

// sessionOpened admits a freshly accepted connection, already wrapped in
// its transport.
type sessionOpened struct {
	conn wire.Conn
}

// packetReceived carries one inbound packet from a session.
type packetReceived struct {
	sid uint64
	pkt protocol.Packet
}

// sessionClosed reports that a session's pipeline has shut down for good.
type sessionClosed struct {
	sid uint64
	err error
}

// loginChecked resumes a login once the gateway has answered. The session
// may have disconnected in the meantime, so it is addressed by id.
type loginChecked struct {
	sid      uint64
	username string
	ok       bool
}

// accountCreated resumes an account registration once the gateway has
// answered.
type accountCreated struct {
	sid      uint64
	username string
	ok       bool
}

// stopRequested asks the loop to close every session and exit once the
// registry is empty.
type stopRequested struct{}
