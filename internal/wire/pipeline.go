package wire

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/georgegerdin/chat-example/pkg/protocol"
)

// Pipeline owns one connection. It decodes inbound frames into packets and
// hands them to its Handler, and drains an unbounded FIFO queue of outbound
// packets through a single writer goroutine, so there is at most one
// outstanding write per connection and enqueue order is delivery order.
type Pipeline struct {
	conn    Conn
	handler Handler
	logger  *log.Logger

	mu    sync.Mutex
	queue [][]byte
	wake  chan struct{}

	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
	drain     atomic.Bool
	closeErr  error
}

// NewPipeline creates a pipeline for conn. Callbacks are delivered to
// handler once Start is called. A nil logger falls back to log.Default().
func NewPipeline(conn Conn, handler Handler, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.Default()
	}
	return &Pipeline{
		conn:    conn,
		handler: handler,
		logger:  logger,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Start launches the read and write loops. Call it exactly once, after the
// owner is ready to receive callbacks.
func (p *Pipeline) Start() {
	go p.writeLoop()
	go p.readLoop()
}

// Enqueue appends a packet to the write queue. It never blocks and may be
// called from any goroutine; after close it is a no-op.
func (p *Pipeline) Enqueue(pkt protocol.Packet) {
	if p.closed.Load() {
		return
	}
	payload := protocol.Encode(pkt)
	p.mu.Lock()
	p.queue = append(p.queue, payload)
	p.mu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Close shuts the pipeline down. It is idempotent: however many times it is
// called, and however the pipeline dies, HandleClosed fires exactly once.
func (p *Pipeline) Close() {
	p.shutdown(nil)
}

// CloseAfterFlush closes the pipeline once everything already enqueued has
// been written. Packets enqueued after the call may be discarded.
func (p *Pipeline) CloseAfterFlush() {
	p.drain.Store(true)
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// RemoteAddr returns the remote address of the underlying connection.
func (p *Pipeline) RemoteAddr() string {
	return p.conn.RemoteAddr()
}

// shutdown performs the close transition exactly once: the closed flag
// flips, the pending write queue is discarded, and the socket is released,
// which unblocks the read and write loops.
func (p *Pipeline) shutdown(err error) {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		p.closeErr = err
		close(p.done)
		p.mu.Lock()
		p.queue = nil
		p.mu.Unlock()
		_ = p.conn.Close()
	})
}

// readLoop reads frames until the connection dies, then fires HandleClosed.
// Decoding and dispatch happen here, so a Handler sees packets strictly in
// arrival order with no concurrency.
func (p *Pipeline) readLoop() {
	for {
		payload, err := p.conn.ReadFrame()
		if err != nil {
			p.shutdown(err)
			break
		}
		pkt, err := protocol.Decode(payload)
		if err != nil {
			p.logger.Printf("Dropping malformed packet from %s: %v", p.conn.RemoteAddr(), err)
			continue
		}
		if pkt == nil {
			continue
		}
		p.handler.HandlePacket(pkt)
	}
	// done is closed before the socket by shutdown, so closeErr is
	// published by the time a read fails.
	<-p.done
	p.handler.HandleClosed(p.closeErr)
}

// writeLoop drains the queue one payload at a time.
func (p *Pipeline) writeLoop() {
	for {
		select {
		case <-p.done:
			return
		case <-p.wake:
		}
		for {
			p.mu.Lock()
			if len(p.queue) == 0 {
				p.mu.Unlock()
				break
			}
			payload := p.queue[0]
			p.queue = p.queue[1:]
			p.mu.Unlock()
			if err := p.conn.WriteFrame(payload); err != nil {
				p.shutdown(fmt.Errorf("write to %s: %w", p.conn.RemoteAddr(), err))
				return
			}
		}
		if p.drain.Load() {
			p.shutdown(nil)
			return
		}
	}
}
