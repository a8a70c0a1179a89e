// Package transport owns the WebSocket listener and every live connection.
// Callers see connections only as opaque ConnID handles and receive one
// event per Receive call.
package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"webvnc/internal/logger"
	"webvnc/internal/protocol"
)

const (
	defaultEventBuffer = 256

	// closeGrace bounds the best-effort close frame sent before a teardown.
	closeGrace = time.Second
)

var (
	ErrUnknownConn    = errors.New("unknown connection")
	ErrRegistryClosed = errors.New("registry closed")
	errConnectionGone = errors.New("connection closed")
)

// ConnID identifies one accepted, upgraded connection.
type ConnID string

func newConnID() ConnID { return ConnID(uuid.NewString()) }

type EventKind int

const (
	EventConnected EventKind = iota + 1
	EventMessage
	EventDisconnected
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventMessage:
		return "message"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Event is what Receive yields. Payload and Binary are set for EventMessage.
type Event struct {
	Kind    EventKind
	Conn    ConnID
	Payload []byte
	Binary  bool
}

// Config holds listener and per-connection settings.
type Config struct {
	Addr             string
	ReadTimeout      time.Duration // bound on reading the rest of a frame once it has started
	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration
	MaxPayload       int64
	EventBuffer      int
}

func (c Config) withDefaults() Config {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.MaxPayload <= 0 {
		c.MaxPayload = protocol.DefaultMaxPayload
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = defaultEventBuffer
	}
	return c
}

type conn struct {
	id     ConnID
	nc     net.Conn
	br     *bufio.Reader
	wmu    sync.Mutex
	closed atomic.Bool
}

func (c *conn) write(op protocol.Opcode, payload []byte, timeout time.Duration) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.closed.Load() {
		return errConnectionGone
	}
	if timeout > 0 {
		_ = c.nc.SetWriteDeadline(time.Now().Add(timeout))
	}
	return protocol.WriteFrame(c.nc, op, payload)
}

// Registry accepts connections, runs the handshake, and multiplexes all
// inbound traffic onto a single event stream.
type Registry struct {
	cfg Config
	ln  net.Listener

	mu      sync.RWMutex
	conns   map[ConnID]*conn
	pending map[net.Conn]struct{}

	events chan Event
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// Listen binds cfg.Addr and starts accepting. A bind failure is returned
// to the caller; it is the only fatal error this package produces.
func Listen(ctx context.Context, cfg Config) (*Registry, error) {
	cfg = cfg.withDefaults()
	lc := net.ListenConfig{Control: controlListener}
	ln, err := lc.Listen(ctx, "tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}
	return newRegistry(ln, cfg), nil
}

func newRegistry(ln net.Listener, cfg Config) *Registry {
	cfg = cfg.withDefaults()
	r := &Registry{
		cfg:    cfg,
		ln:     ln,
		conns:   make(map[ConnID]*conn),
		pending: make(map[net.Conn]struct{}),
		events:  make(chan Event, cfg.EventBuffer),
		done:    make(chan struct{}),
	}
	r.wg.Add(1)
	go r.acceptLoop()
	return r
}

// Addr returns the bound listener address.
func (r *Registry) Addr() net.Addr { return r.ln.Addr() }

// Len reports the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Receive waits at most timeout for the next event. ok is false when no
// event arrived in time or the registry is shut down.
func (r *Registry) Receive(timeout time.Duration) (ev Event, ok bool) {
	select {
	case <-r.done:
		return Event{}, false
	default:
	}
	select {
	case ev = <-r.events:
		return ev, true
	default:
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case ev = <-r.events:
		return ev, true
	case <-t.C:
		return Event{}, false
	case <-r.done:
		return Event{}, false
	}
}

// SendText writes one text frame. A write failure closes the connection.
func (r *Registry) SendText(id ConnID, text string) error {
	return r.send(id, protocol.OpText, []byte(text))
}

// SendBinary writes one binary frame. A write failure closes the connection.
func (r *Registry) SendBinary(id ConnID, data []byte) error {
	return r.send(id, protocol.OpBinary, data)
}

func (r *Registry) send(id ConnID, op protocol.Opcode, payload []byte) error {
	select {
	case <-r.done:
		return ErrRegistryClosed
	default:
	}
	c := r.lookup(id)
	if c == nil {
		return ErrUnknownConn
	}
	if err := c.write(op, payload, r.cfg.WriteTimeout); err != nil {
		r.teardown(c)
		return fmt.Errorf("send %s to %s: %w", op, id, err)
	}
	return nil
}

// Close sends a close frame best-effort and tears the connection down.
// The disconnect is still reported once through Receive.
func (r *Registry) Close(id ConnID) {
	c := r.lookup(id)
	if c == nil {
		return
	}
	_ = c.write(protocol.OpClose, nil, closeGrace)
	r.teardown(c)
}

// Shutdown stops accepting, closes every connection, including those
// still in the handshake, and waits for the registry goroutines to exit.
func (r *Registry) Shutdown() error {
	var err error
	r.once.Do(func() {
		close(r.done)
		err = r.ln.Close()

		r.mu.Lock()
		for nc := range r.pending {
			_ = nc.Close()
		}
		live := make([]*conn, 0, len(r.conns))
		for _, c := range r.conns {
			live = append(live, c)
		}
		r.mu.Unlock()

		// One shared deadline also cuts short any write already in flight,
		// so the farewell frames take at most closeGrace in total.
		deadline := time.Now().Add(closeGrace)
		for _, c := range live {
			_ = c.nc.SetWriteDeadline(deadline)
		}
		for _, c := range live {
			_ = c.write(protocol.OpClose, nil, 0)
			r.teardown(c)
		}
	})
	r.wg.Wait()
	return err
}

func (r *Registry) lookup(id ConnID) *conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[id]
}

func (r *Registry) teardown(c *conn) {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	r.mu.Lock()
	delete(r.conns, c.id)
	r.mu.Unlock()
	_ = c.nc.Close()
}

func (r *Registry) emit(ev Event) bool {
	select {
	case r.events <- ev:
		return true
	case <-r.done:
		return false
	}
}

func (r *Registry) acceptLoop() {
	defer r.wg.Done()
	for {
		nc, err := r.ln.Accept()
		if err != nil {
			select {
			case <-r.done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Warn("accept failed", "err", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}
		r.wg.Add(1)
		go r.serve(nc)
	}
}

// track records nc as handshaking so Shutdown can close it. It reports
// false once the registry is shutting down.
func (r *Registry) track(nc net.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	select {
	case <-r.done:
		return false
	default:
	}
	r.pending[nc] = struct{}{}
	return true
}

func (r *Registry) serve(nc net.Conn) {
	defer r.wg.Done()

	if !r.track(nc) {
		_ = nc.Close()
		return
	}
	_ = nc.SetDeadline(time.Now().Add(r.cfg.HandshakeTimeout))
	br := bufio.NewReader(nc)
	if _, err := protocol.Handshake(br, nc); err != nil {
		r.mu.Lock()
		delete(r.pending, nc)
		r.mu.Unlock()
		logger.Debug("handshake failed", "remote", nc.RemoteAddr().String(), "err", err)
		_ = nc.Close()
		return
	}
	_ = nc.SetDeadline(time.Time{})

	c := &conn{id: newConnID(), nc: nc, br: br}
	r.mu.Lock()
	delete(r.pending, nc)
	select {
	case <-r.done:
		r.mu.Unlock()
		_ = nc.Close()
		return
	default:
	}
	r.conns[c.id] = c
	r.mu.Unlock()

	logger.Debug("connection accepted", "conn", c.id, "remote", nc.RemoteAddr().String())
	if !r.emit(Event{Kind: EventConnected, Conn: c.id}) {
		r.teardown(c)
		return
	}
	r.readLoop(c)
}

// readLoop is the only place that reports EventDisconnected, so each
// connection is reported exactly once however it ends.
func (r *Registry) readLoop(c *conn) {
	defer func() {
		r.teardown(c)
		r.emit(Event{Kind: EventDisconnected, Conn: c.id})
		logger.Debug("connection closed", "conn", c.id)
	}()

	for {
		// Idle viewers may stay silent indefinitely; the timeout applies
		// only once a frame has begun.
		_ = c.nc.SetReadDeadline(time.Time{})
		if _, err := c.br.Peek(1); err != nil {
			return
		}
		if r.cfg.ReadTimeout > 0 {
			_ = c.nc.SetReadDeadline(time.Now().Add(r.cfg.ReadTimeout))
		}
		f, err := protocol.ReadFrame(c.br, r.cfg.MaxPayload)
		if err != nil {
			logger.Debug("frame decode failed", "conn", c.id, "err", err)
			return
		}

		switch f.Opcode {
		case protocol.OpPing:
			if err := c.write(protocol.OpPong, f.Payload, r.cfg.WriteTimeout); err != nil {
				return
			}
		case protocol.OpPong:
		case protocol.OpClose:
			_ = c.write(protocol.OpClose, nil, r.cfg.WriteTimeout)
			return
		case protocol.OpText, protocol.OpBinary:
			ev := Event{Kind: EventMessage, Conn: c.id, Payload: f.Payload, Binary: f.Opcode == protocol.OpBinary}
			if !r.emit(ev) {
				return
			}
		default:
			// Reserved opcodes are accepted and ignored.
		}
	}
}
