package wire_test

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/georgegerdin/chat-example/internal/wire"
	"github.com/georgegerdin/chat-example/pkg/protocol"
)

// mockConn is a mock implementation of wire.Conn for testing.
type mockConn struct {
	readCh     chan []byte
	writtenMu  sync.Mutex
	written    [][]byte
	writeErr   error
	closeOnce  sync.Once
	closedCh   chan struct{}
	remoteAddr string
}

func newMockConn(addr string) *mockConn {
	return &mockConn{
		readCh:     make(chan []byte, 10),
		closedCh:   make(chan struct{}),
		remoteAddr: addr,
	}
}

func (m *mockConn) ReadFrame() ([]byte, error) {
	select {
	case <-m.closedCh:
		return nil, io.EOF
	case data, ok := <-m.readCh:
		if !ok {
			return nil, io.EOF
		}
		return data, nil
	}
}

func (m *mockConn) WriteFrame(data []byte) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.writtenMu.Lock()
	defer m.writtenMu.Unlock()
	copied := make([]byte, len(data))
	copy(copied, data)
	m.written = append(m.written, copied)
	return nil
}

func (m *mockConn) Close() error {
	m.closeOnce.Do(func() { close(m.closedCh) })
	return nil
}

func (m *mockConn) RemoteAddr() string {
	return m.remoteAddr
}

func (m *mockConn) GetWritten() [][]byte {
	m.writtenMu.Lock()
	defer m.writtenMu.Unlock()
	out := make([][]byte, len(m.written))
	copy(out, m.written)
	return out
}

// Compile-time check that mockConn implements wire.Conn
var _ wire.Conn = (*mockConn)(nil)

// recordHandler collects pipeline callbacks for assertions.
type recordHandler struct {
	mu      sync.Mutex
	packets []protocol.Packet
	closed  chan error
}

func newRecordHandler() *recordHandler {
	return &recordHandler{closed: make(chan error, 2)}
}

func (h *recordHandler) HandlePacket(pkt protocol.Packet) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.packets = append(h.packets, pkt)
}

func (h *recordHandler) HandleClosed(err error) {
	h.closed <- err
}

func (h *recordHandler) GetPackets() []protocol.Packet {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]protocol.Packet, len(h.packets))
	copy(out, h.packets)
	return out
}

func waitClosed(t *testing.T, h *recordHandler) error {
	t.Helper()
	select {
	case err := <-h.closed:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for HandleClosed")
		return nil
	}
}

// waitCondition polls until cond holds or the deadline passes.
func waitCondition(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timeout waiting for condition")
}

func TestPipeline_DispatchesPacketsInOrder(t *testing.T) {
	conn := newMockConn("test:1")
	handler := newRecordHandler()
	p := wire.NewPipeline(conn, handler, nil)
	p.Start()
	defer p.Close()

	conn.readCh <- protocol.Encode(&protocol.Login{Username: "alice", Password: "p1"})
	conn.readCh <- protocol.Encode(&protocol.ChatMessage{Sender: "alice", Message: "hi"})

	waitCondition(t, func() bool { return len(handler.GetPackets()) == 2 })

	packets := handler.GetPackets()
	login, ok := packets[0].(*protocol.Login)
	if !ok {
		t.Fatalf("first packet = %#v, want *Login", packets[0])
	}
	if login.Username != "alice" || login.Password != "p1" {
		t.Errorf("Login = %+v, want alice/p1", login)
	}
	msg, ok := packets[1].(*protocol.ChatMessage)
	if !ok {
		t.Fatalf("second packet = %#v, want *ChatMessage", packets[1])
	}
	if msg.Message != "hi" {
		t.Errorf("ChatMessage.Message = %q, want %q", msg.Message, "hi")
	}
}

func TestPipeline_SkipsMalformedPayloads(t *testing.T) {
	conn := newMockConn("test:1")
	handler := newRecordHandler()
	p := wire.NewPipeline(conn, handler, nil)
	p.Start()
	defer p.Close()

	conn.readCh <- []byte{0xff}
	conn.readCh <- protocol.Encode(&protocol.LoginSuccess{})

	waitCondition(t, func() bool { return len(handler.GetPackets()) == 1 })

	if _, ok := handler.GetPackets()[0].(*protocol.LoginSuccess); !ok {
		t.Errorf("packet = %#v, want *LoginSuccess", handler.GetPackets()[0])
	}
	select {
	case err := <-handler.closed:
		t.Errorf("pipeline closed unexpectedly: %v", err)
	default:
	}
}

func TestPipeline_WritesInEnqueueOrder(t *testing.T) {
	conn := newMockConn("test:1")
	handler := newRecordHandler()
	p := wire.NewPipeline(conn, handler, nil)
	p.Start()
	defer p.Close()

	want := []protocol.Packet{
		&protocol.LoginSuccess{},
		&protocol.ChatMessage{Sender: "System", Message: "alice has joined the chat."},
		&protocol.ChatMessage{Sender: "bob", Message: "hi"},
	}
	for _, pkt := range want {
		p.Enqueue(pkt)
	}

	waitCondition(t, func() bool { return len(conn.GetWritten()) == len(want) })

	for i, data := range conn.GetWritten() {
		got, err := protocol.Decode(data)
		if err != nil {
			t.Fatalf("written payload %d does not decode: %v", i, err)
		}
		if got.Kind() != want[i].Kind() {
			t.Errorf("written payload %d kind = %v, want %v", i, got.Kind(), want[i].Kind())
		}
	}
}

func TestPipeline_CloseIsIdempotent(t *testing.T) {
	conn := newMockConn("test:1")
	handler := newRecordHandler()
	p := wire.NewPipeline(conn, handler, nil)
	p.Start()

	p.Close()
	p.Close()

	if err := waitClosed(t, handler); err != nil {
		t.Errorf("HandleClosed err = %v, want nil for explicit close", err)
	}
	select {
	case <-handler.closed:
		t.Error("HandleClosed fired more than once")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPipeline_ReadErrorClosesOnce(t *testing.T) {
	conn := newMockConn("test:1")
	handler := newRecordHandler()
	p := wire.NewPipeline(conn, handler, nil)
	p.Start()

	close(conn.readCh)

	if err := waitClosed(t, handler); !errors.Is(err, io.EOF) {
		t.Errorf("HandleClosed err = %v, want io.EOF", err)
	}
	select {
	case <-handler.closed:
		t.Error("HandleClosed fired more than once")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPipeline_WriteErrorClosesPipeline(t *testing.T) {
	conn := newMockConn("test:1")
	conn.writeErr = errors.New("broken pipe")
	handler := newRecordHandler()
	p := wire.NewPipeline(conn, handler, nil)
	p.Start()

	p.Enqueue(&protocol.LoginSuccess{})

	if err := waitClosed(t, handler); err == nil {
		t.Error("HandleClosed err = nil, want write error")
	}
}

func TestPipeline_CloseAfterFlushWritesPending(t *testing.T) {
	conn := newMockConn("test:1")
	handler := newRecordHandler()
	p := wire.NewPipeline(conn, handler, nil)
	p.Start()

	p.Enqueue(&protocol.LoginFailed{})
	p.Enqueue(&protocol.ChatMessage{Sender: "System", Message: "goodbye"})
	p.CloseAfterFlush()

	if err := waitClosed(t, handler); err != nil {
		t.Errorf("HandleClosed err = %v, want nil for flush close", err)
	}
	if n := len(conn.GetWritten()); n != 2 {
		t.Fatalf("wrote %d payloads before closing, want 2", n)
	}
	if got, _ := protocol.Decode(conn.GetWritten()[0]); got.Kind() != protocol.KindLoginFailed {
		t.Errorf("first payload kind = %v, want %v", got.Kind(), protocol.KindLoginFailed)
	}
}

func TestPipeline_EnqueueAfterCloseIsNoop(t *testing.T) {
	conn := newMockConn("test:1")
	handler := newRecordHandler()
	p := wire.NewPipeline(conn, handler, nil)
	p.Start()

	p.Close()
	waitClosed(t, handler)

	p.Enqueue(&protocol.ChatMessage{Sender: "a", Message: "late"})

	time.Sleep(50 * time.Millisecond)
	if n := len(conn.GetWritten()); n != 0 {
		t.Errorf("wrote %d payloads after close, want 0", n)
	}
}
