package server

import (
	"github.com/georgegerdin/chat-example/internal/wire"
	"github.com/georgegerdin/chat-example/pkg/protocol"
)

// session is the server-side state of one connected client. Sessions live
// in the run loop's registry and are addressed by id everywhere else, so a
// callback that outlives its connection simply misses the lookup.
type session struct {
	id       uint64
	pipe     *wire.Pipeline
	remote   string
	username string // empty until a login succeeds
}

func (s *session) authenticated() bool {
	return s.username != ""
}

// sessionHandler forwards pipeline callbacks for one session id into the
// server's event loop.
type sessionHandler struct {
	srv *Server
	sid uint64
}

func (h sessionHandler) HandlePacket(pkt protocol.Packet) {
	h.srv.post(packetReceived{sid: h.sid, pkt: pkt})
}

func (h sessionHandler) HandleClosed(err error) {
	h.srv.post(sessionClosed{sid: h.sid, err: err})
}

var _ wire.Handler = sessionHandler{}
