// Package client implements the chat client state machine. A Client covers
// one connection from dial to disconnect; to reconnect, create a new one.
package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"

	"github.com/georgegerdin/chat-example/internal/transport/tcp"
	"github.com/georgegerdin/chat-example/internal/transport/ws"
	"github.com/georgegerdin/chat-example/internal/wire"
	"github.com/georgegerdin/chat-example/pkg/protocol"
)

// ErrAlreadyConnected is returned by Connect when it has been called
// before on the same Client.
var ErrAlreadyConnected = errors.New("client: connect already attempted")

// State describes where the client is in its connection lifecycle.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Transport selects how the client reaches the server.
type Transport string

const (
	TransportTCP       Transport = "tcp"
	TransportWebSocket Transport = "ws"
)

// EventKind discriminates the events a client emits.
type EventKind int

const (
	// EventConnected fires once when the connection is established.
	EventConnected EventKind = iota
	// EventDisconnected fires once when the connection is gone. It is
	// always the last event; the channel closes after it.
	EventDisconnected
	// EventLoginResult reports the outcome of a login attempt.
	EventLoginResult
	// EventAccountResult reports the outcome of an account registration.
	EventAccountResult
	// EventChatMessage delivers a chat line from the server.
	EventChatMessage
)

// Event is one item on the client's event stream.
type Event struct {
	Kind    EventKind
	OK      bool   // login and account results
	Sender  string // chat messages
	Message string // chat messages
	Err     error  // disconnect reason, nil for a local Disconnect
}

// Client connects to a chat server and exposes what happens as a stream
// of events. The caller must drain Events; the stream applies backpressure
// to the connection when it is not consumed.
type Client struct {
	addr      string
	transport Transport
	logger    *log.Logger

	events chan Event
	state  atomic.Int32
	used   atomic.Bool

	mu   sync.Mutex
	pipe *wire.Pipeline
}

// New creates a client for the server at addr. A nil logger falls back to
// log.Default().
func New(addr string, transport Transport, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		addr:      addr,
		transport: transport,
		logger:    logger,
		events:    make(chan Event, 16),
	}
}

// Events returns the client's event stream. It closes after the
// EventDisconnected event.
func (c *Client) Events() <-chan Event {
	return c.events
}

// State returns the client's current lifecycle state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// LoggedIn reports whether a login has succeeded on this connection.
func (c *Client) LoggedIn() bool {
	return c.State() == StateAuthenticated
}

// Connect dials the server and starts the connection pipeline. On success
// an EventConnected is emitted; on failure an EventDisconnected carries
// the dial error and the event stream closes.
func (c *Client) Connect(ctx context.Context) error {
	if !c.used.CompareAndSwap(false, true) {
		return ErrAlreadyConnected
	}
	c.state.Store(int32(StateConnecting))

	conn, err := c.dial(ctx)
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		c.events <- Event{Kind: EventDisconnected, Err: err}
		close(c.events)
		return fmt.Errorf("failed to connect to server: %w", err)
	}

	c.mu.Lock()
	c.pipe = wire.NewPipeline(conn, clientHandler{c}, c.logger)
	pipe := c.pipe
	c.mu.Unlock()

	c.state.Store(int32(StateConnected))
	pipe.Start()
	c.events <- Event{Kind: EventConnected}
	return nil
}

func (c *Client) dial(ctx context.Context) (wire.Conn, error) {
	switch c.transport {
	case TransportWebSocket:
		return ws.Dial(ctx, "ws://"+c.addr)
	default:
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", c.addr)
		if err != nil {
			return nil, err
		}
		return tcp.NewConn(conn), nil
	}
}

// Login asks the server to authenticate this connection. The outcome
// arrives as an EventLoginResult. Before Connect it is a no-op.
func (c *Client) Login(username, password string) {
	if pipe := c.currentPipe(); pipe != nil {
		pipe.Enqueue(&protocol.Login{Username: username, Password: password})
	}
}

// CreateAccount asks the server to register a new account. The outcome
// arrives as an EventAccountResult. Registering does not log in.
func (c *Client) CreateAccount(username, password string) {
	if pipe := c.currentPipe(); pipe != nil {
		pipe.Enqueue(&protocol.CreateUser{Username: username, Password: password})
	}
}

// SendMessage sends a chat line. Until a login has succeeded it is a
// no-op; the server names this client as the sender either way.
func (c *Client) SendMessage(content string) {
	if !c.LoggedIn() {
		return
	}
	if pipe := c.currentPipe(); pipe != nil {
		pipe.Enqueue(&protocol.ChatMessage{Message: content})
	}
}

// Disconnect closes the connection. The EventDisconnected still arrives
// on the event stream. Before Connect it is a no-op.
func (c *Client) Disconnect() {
	if pipe := c.currentPipe(); pipe != nil {
		pipe.Close()
	}
}

func (c *Client) currentPipe() *wire.Pipeline {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pipe
}

// clientHandler feeds pipeline callbacks into the client's event stream.
// Callbacks arrive on the pipeline's read goroutine, one at a time.
type clientHandler struct {
	c *Client
}

func (h clientHandler) HandlePacket(pkt protocol.Packet) {
	c := h.c
	switch pkt := pkt.(type) {
	case *protocol.LoginSuccess:
		c.state.Store(int32(StateAuthenticated))
		c.events <- Event{Kind: EventLoginResult, OK: true}
	case *protocol.LoginFailed:
		// A failed re-login leaves an earlier authentication intact,
		// so the state does not change here.
		c.events <- Event{Kind: EventLoginResult, OK: false}
	case *protocol.AccountCreated:
		c.events <- Event{Kind: EventAccountResult, OK: true}
	case *protocol.AccountExists:
		c.events <- Event{Kind: EventAccountResult, OK: false}
	case *protocol.ChatMessage:
		c.events <- Event{Kind: EventChatMessage, Sender: pkt.Sender, Message: pkt.Message}
	default:
		c.logger.Printf("Ignoring %v packet from server", pkt.Kind())
	}
}

func (h clientHandler) HandleClosed(err error) {
	c := h.c
	c.state.Store(int32(StateDisconnected))
	c.events <- Event{Kind: EventDisconnected, Err: err}
	close(c.events)
}

var _ wire.Handler = clientHandler{}
