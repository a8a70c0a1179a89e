// Package server ties the transport, session table, control arbiter,
// capture broadcaster and input relay into one running remote desktop
// server.
package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"webvnc/internal/capture"
	"webvnc/internal/clients"
	"webvnc/internal/config"
	"webvnc/internal/control"
	"webvnc/internal/events"
	"webvnc/internal/input"
	"webvnc/internal/logger"
	"webvnc/internal/transport"
	"webvnc/internal/types"
	"webvnc/internal/users"
)

// Transport is what the server needs from the connection registry.
type Transport interface {
	Receive(timeout time.Duration) (transport.Event, bool)
	SendText(id transport.ConnID, text string) error
	SendBinary(id transport.ConnID, data []byte) error
	Close(id transport.ConnID)
}

// Options carries the backends and loop intervals. Backend and Injector
// are required; zero intervals fall back to the package defaults.
type Options struct {
	PollInterval    time.Duration
	CaptureInterval time.Duration
	PointerInterval time.Duration

	Backend  capture.Backend
	Injector input.Injector
	Emitter  *events.Emitter
	Users    *users.Store
}

type Server struct {
	tr   Transport
	opts Options

	// mu serializes dispatch with user administration, which arrives from
	// the config watcher.
	mu sync.Mutex

	sessions *clients.Manager
	users    *users.Store
	arbiter  *control.Arbiter
	topology *capture.Topology
	pointer  *input.Pointer
	keyboard *input.Keyboard
	emitter  *events.Emitter

	broadcaster *capture.Broadcaster
	relay       *input.Relay

	addr net.Addr
	stop func() error
	warn rate.Sometimes
}

// New builds a server on top of an already listening transport.
func New(tr Transport, opts Options) *Server {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 100 * time.Millisecond
	}
	if opts.Users == nil {
		opts.Users = users.NewStore()
	}

	s := &Server{
		tr:       tr,
		opts:     opts,
		sessions: clients.NewManager(),
		users:    opts.Users,
		topology: capture.NewTopology(),
		pointer:  &input.Pointer{},
		keyboard: input.NewKeyboard(opts.Injector),
		emitter:  opts.Emitter,
		warn:     rate.Sometimes{First: 3, Interval: 10 * time.Second},
	}
	s.arbiter = control.New(s.sessions)
	s.broadcaster = capture.NewBroadcaster(capture.BroadcasterConfig{
		Interval: opts.CaptureInterval,
		Backend:  opts.Backend,
		Topology: s.topology,
		Viewers:  s.sessions,
		Sender:   tr,
	})
	s.relay = input.NewRelay(opts.Injector, s.pointer, opts.PointerInterval)
	return s
}

// Start binds the WebSocket listener described by cfg and returns a server
// ready to Run. A bind failure is returned as is; nothing is left running.
func Start(ctx context.Context, cfg *config.Config, opts Options) (*Server, error) {
	reg, err := transport.Listen(ctx, transport.Config{
		Addr:             cfg.Server.Listen,
		ReadTimeout:      cfg.Transport.ReadTimeout,
		WriteTimeout:     cfg.Transport.WriteTimeout,
		HandshakeTimeout: cfg.Transport.HandshakeTimeout,
		MaxPayload:       cfg.Transport.MaxPayload,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.Server.Listen, err)
	}

	if opts.PollInterval <= 0 {
		opts.PollInterval = cfg.Transport.PollInterval
	}
	if opts.CaptureInterval <= 0 {
		opts.CaptureInterval = cfg.Capture.Interval
	}
	if opts.PointerInterval <= 0 {
		opts.PointerInterval = cfg.Input.PointerInterval
	}

	s := New(reg, opts)
	s.addr = reg.Addr()
	s.stop = reg.Shutdown
	logger.Info("websocket server listening", "addr", s.addr.String())
	return s, nil
}

// Addr is the bound listener address, or nil when built with New.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Run drives the receive loop, the capture broadcaster and the input relay
// until ctx is done, then shuts the transport down.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.broadcaster.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		s.relay.Run(ctx)
	}()

	for ctx.Err() == nil {
		ev, ok := s.tr.Receive(s.opts.PollInterval)
		if !ok {
			continue
		}
		s.HandleEvent(ev)
	}

	cancel()
	wg.Wait()
	if s.stop != nil {
		if err := s.stop(); err != nil {
			logger.Debug("transport shutdown", "err", err)
		}
	}
	return nil
}

// HandleEvent applies one transport event. Messages are handled one at a
// time in arrival order.
func (s *Server) HandleEvent(ev transport.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch ev.Kind {
	case transport.EventConnected:
		s.sessions.Add(ev.Conn)
		logger.Debug("client connected", "conn", ev.Conn)
	case transport.EventDisconnected:
		s.disconnected(ev.Conn)
	case transport.EventMessage:
		s.dispatch(ev.Conn, types.Decode(ev.Payload))
	}
}

func (s *Server) disconnected(id transport.ConnID) {
	prev, ok := s.sessions.Remove(id)
	if !ok {
		return
	}
	logger.Debug("client disconnected", "conn", id, "user", prev.UserKey)
	if prev.UserKey != "" {
		s.emitter.Emit(events.New(events.Disconnect, events.Fields{
			"User":     prev.DisplayName,
			"User_Key": prev.UserKey,
		}))
	}
	s.emitter.EmitAll(s.arbiter.SessionGone(prev))
}

// reply encodes msg and sends it as a text frame. Send failures already
// tore the connection down in the transport.
func (s *Server) reply(id transport.ConnID, msg any) {
	text, err := types.Encode(msg)
	if err != nil {
		logger.Error("encode reply", "conn", id, "err", err)
		return
	}
	if err := s.tr.SendText(id, text); err != nil {
		logger.Debug("reply failed", "conn", id, "err", err)
	}
}

func (s *Server) deliver(res control.Result) {
	for _, out := range res.Replies {
		s.reply(out.To, out.Msg)
	}
	s.emitter.EmitAll(res.Events)
}

func (s *Server) throttledWarn(msg string, args ...any) {
	s.warn.Do(func() { logger.Warn(msg, args...) })
}
