// Package server implements the chat server. A single listener serves both
// raw framed TCP and WebSocket clients on one port, and a single event loop
// goroutine owns the session registry, so login, relay, and disconnect all
// happen without registry locks.
package server

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/georgegerdin/chat-example/internal/auth"
	"github.com/georgegerdin/chat-example/internal/store"
	"github.com/georgegerdin/chat-example/internal/transport/tcp"
	"github.com/georgegerdin/chat-example/internal/transport/ws"
	"github.com/georgegerdin/chat-example/internal/wire"
	"github.com/georgegerdin/chat-example/pkg/protocol"
)

// SystemSender is the sender name on server-generated announcements.
const SystemSender = "System"

// Config carries the server's collaborators and policy switches.
type Config struct {
	// Addr is the listen address, for example ":12345".
	Addr string

	// Store answers credential checks and registrations. Required.
	Store store.Credentials

	// Archive, when non-nil, records every relayed chat message.
	Archive store.Archive

	// CloseOnAuthFailure drops the connection after a failed login
	// instead of leaving it open for another attempt.
	CloseOnAuthFailure bool

	// Logger receives server logs. Nil falls back to log.Default().
	Logger *log.Logger
}

// Server accepts chat connections and relays messages between them.
type Server struct {
	addr               string
	gateway            *auth.Gateway
	archive            store.Archive
	closeOnAuthFailure bool
	logger             *log.Logger

	listener net.Listener
	events   chan event
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Owned by the run loop.
	sessions map[uint64]*session
	nextID   uint64
	stopping bool
}

// New creates a Server from cfg. Call Start to begin serving.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		addr:               cfg.Addr,
		gateway:            auth.NewGateway(cfg.Store, logger),
		archive:            cfg.Archive,
		closeOnAuthFailure: cfg.CloseOnAuthFailure,
		logger:             logger,
		events:             make(chan event, 64),
		quit:               make(chan struct{}),
		done:               make(chan struct{}),
		sessions:           make(map[uint64]*session),
	}
}

// Start binds the listener and begins serving in the background. It
// returns once the listener is ready, so Addr is valid immediately after.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	s.listener = listener
	s.logger.Printf("Chat server started on %s (TCP and WebSocket)", listener.Addr().String())

	go s.run()
	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr returns the server's listening address. Useful after starting on
// an ephemeral port.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// Stop closes the listener, disconnects every session, and waits for the
// registry to drain. It is safe to call more than once.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.quit)
		if s.listener == nil {
			close(s.done)
			return
		}
		s.listener.Close()
		s.post(stopRequested{})
	})
	<-s.done
	s.wg.Wait()
	s.logger.Printf("Chat server stopped")
}

// post delivers an event to the run loop. It reports false when the loop
// has already exited and the event was dropped.
func (s *Server) post(ev event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
				s.logger.Printf("Failed to accept connection: %v", err)
				continue
			}
		}
		s.wg.Add(1)
		go s.setupConn(conn)
	}
}

// setupConn sniffs the first bytes of a connection to route it to the
// right transport, then hands the wrapped connection to the run loop. The
// sniff is unambiguous: any frame length this protocol allows keeps the
// fourth little-endian byte zero, so a binary client can never spell an
// HTTP method.
func (s *Server) setupConn(conn net.Conn) {
	defer s.wg.Done()
	reader := bufio.NewReader(conn)
	prefix, err := reader.Peek(4)
	if err != nil {
		s.logger.Printf("Failed to peek connection from %s: %v", conn.RemoteAddr(), err)
		conn.Close()
		return
	}

	var wconn wire.Conn
	if isHTTPMethod(prefix) {
		wsConn, err := ws.Accept(conn, reader)
		if err != nil {
			s.logger.Printf("Failed to upgrade connection from %s: %v", conn.RemoteAddr(), err)
			conn.Close()
			return
		}
		wconn = wsConn
	} else {
		wconn = tcp.NewConnWithReader(conn, reader)
	}

	if !s.post(sessionOpened{conn: wconn}) {
		wconn.Close()
	}
}

// isHTTPMethod reports whether the peeked prefix starts an HTTP request
// line, which marks the connection as a WebSocket upgrade.
func isHTTPMethod(prefix []byte) bool {
	methods := [][]byte{
		[]byte("GET "),
		[]byte("POST"),
		[]byte("PUT "),
		[]byte("HEAD"),
		[]byte("OPTI"),
		[]byte("PATC"),
		[]byte("DELE"),
		[]byte("CONN"),
	}
	for _, m := range methods {
		if bytes.HasPrefix(prefix, m) {
			return true
		}
	}
	return false
}

// run is the server's event loop and the only goroutine that touches the
// session registry. It exits once a stop has been requested and the last
// session is gone.
func (s *Server) run() {
	defer close(s.done)
	for {
		switch ev := (<-s.events).(type) {
		case sessionOpened:
			s.admit(ev.conn)
		case packetReceived:
			s.dispatch(ev.sid, ev.pkt)
		case loginChecked:
			s.finishLogin(ev.sid, ev.username, ev.ok)
		case accountCreated:
			s.finishCreate(ev.sid, ev.username, ev.ok)
		case sessionClosed:
			s.dropSession(ev.sid, ev.err)
		case stopRequested:
			s.beginShutdown()
		}
		if s.stopping && len(s.sessions) == 0 {
			return
		}
	}
}

func (s *Server) admit(conn wire.Conn) {
	if s.stopping {
		conn.Close()
		return
	}
	s.nextID++
	sess := &session{
		id:     s.nextID,
		remote: conn.RemoteAddr(),
	}
	connLogger := log.New(s.logger.Writer(), fmt.Sprintf("[%s] ", sess.remote), s.logger.Flags())
	sess.pipe = wire.NewPipeline(conn, sessionHandler{srv: s, sid: sess.id}, connLogger)
	s.sessions[sess.id] = sess
	sess.pipe.Start()
	s.logger.Printf("New connection from %s as session %d (%d online)", sess.remote, sess.id, len(s.sessions))
}

func (s *Server) dispatch(sid uint64, pkt protocol.Packet) {
	sess, ok := s.sessions[sid]
	if !ok {
		return
	}
	switch pkt := pkt.(type) {
	case *protocol.Login:
		username := pkt.Username
		s.gateway.Authenticate(username, pkt.Password, func(ok bool) {
			s.post(loginChecked{sid: sid, username: username, ok: ok})
		})
	case *protocol.CreateUser:
		username := pkt.Username
		s.gateway.CreateAccount(username, pkt.Password, func(ok bool) {
			s.post(accountCreated{sid: sid, username: username, ok: ok})
		})
	case *protocol.ChatMessage:
		s.relayChat(sess, pkt.Message)
	default:
		// Status packets only flow server to client. A client sending
		// one is confused but harmless.
		s.logger.Printf("Ignoring %v packet from session %d", pkt.Kind(), sid)
	}
}

// relayChat broadcasts one chat line to everyone but the sender. The
// sender field supplied by the client is never trusted; the session's
// authenticated username is the sender of record.
func (s *Server) relayChat(sess *session, text string) {
	if !sess.authenticated() {
		s.logger.Printf("Dropping chat from unauthenticated session %d", sess.id)
		sess.pipe.Enqueue(&protocol.LoginFailed{})
		return
	}
	s.broadcast(&protocol.ChatMessage{Sender: sess.username, Message: text}, sess)
	s.record(sess.username, text)
}

// record archives a relayed message off the event loop.
func (s *Server) record(sender, text string) {
	if s.archive == nil {
		return
	}
	msg := store.Message{Sender: sender, Content: text, SentAt: time.Now()}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.archive.StoreMessage(msg); err != nil {
			s.logger.Printf("Failed to archive message from %s: %v", sender, err)
		}
	}()
}

func (s *Server) finishLogin(sid uint64, username string, ok bool) {
	sess, found := s.sessions[sid]
	if !found {
		// Disconnected while the gateway was checking.
		return
	}
	if !ok {
		s.logger.Printf("Failed login for %q on session %d", username, sess.id)
		sess.pipe.Enqueue(&protocol.LoginFailed{})
		if s.closeOnAuthFailure {
			sess.pipe.CloseAfterFlush()
		}
		return
	}
	sess.username = username
	sess.pipe.Enqueue(&protocol.LoginSuccess{})
	s.logger.Printf("User %q logged in on session %d", username, sess.id)
	s.broadcast(&protocol.ChatMessage{Sender: SystemSender, Message: username + " has joined the chat."}, sess)
}

func (s *Server) finishCreate(sid uint64, username string, ok bool) {
	sess, found := s.sessions[sid]
	if !found {
		return
	}
	if !ok {
		sess.pipe.Enqueue(&protocol.AccountExists{})
		return
	}
	s.logger.Printf("Account %q created on session %d", username, sess.id)
	sess.pipe.Enqueue(&protocol.AccountCreated{})
}

// dropSession removes a closed session from the registry and announces
// the departure. Removal happens first, so the broadcast can never target
// the dead connection.
func (s *Server) dropSession(sid uint64, err error) {
	sess, found := s.sessions[sid]
	if !found {
		return
	}
	delete(s.sessions, sid)
	if err != nil && !errors.Is(err, io.EOF) {
		s.logger.Printf("Session %d from %s closed: %v (%d online)", sid, sess.remote, err, len(s.sessions))
	} else {
		s.logger.Printf("Session %d from %s disconnected (%d online)", sid, sess.remote, len(s.sessions))
	}
	if sess.authenticated() {
		s.broadcast(&protocol.ChatMessage{Sender: SystemSender, Message: sess.username + " has left the chat."}, nil)
	}
}

// broadcast enqueues pkt on every session except skip. Each pipeline
// preserves enqueue order, so two broadcasts reach any one client in the
// order they were made here.
func (s *Server) broadcast(pkt protocol.Packet, skip *session) {
	for _, sess := range s.sessions {
		if sess == skip {
			continue
		}
		sess.pipe.Enqueue(pkt)
	}
}

func (s *Server) beginShutdown() {
	s.stopping = true
	s.logger.Printf("Shutting down, closing %d sessions", len(s.sessions))
	for _, sess := range s.sessions {
		sess.pipe.Close()
	}
}
