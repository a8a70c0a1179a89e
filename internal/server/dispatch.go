package server

import (
	"fmt"
	"strings"

	"webvnc/internal/clients"
	"webvnc/internal/events"
	"webvnc/internal/input"
	"webvnc/internal/logger"
	"webvnc/internal/transport"
	"webvnc/internal/types"
	"webvnc/internal/users"
)

const (
	errInvalidLogin       = "Invalid login"
	errInvalidCredentials = "Invalid username or password"
)

func (s *Server) dispatch(id transport.ConnID, msg types.Inbound) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("message handler panicked", "conn", id, "panic", fmt.Sprint(r))
		}
	}()

	switch m := msg.(type) {
	case types.Login:
		s.handleLogin(id, m)
	case types.Logout:
		s.handleLogout(id)
	case types.Hello:
		s.handleHello(id)
	case types.MonitorSelect:
		s.handleMonitorSelect(id, m)
	case types.ControlRequest:
		s.deliver(s.arbiter.Request(id, m.Force))
	case types.ControlRelease:
		s.deliver(s.arbiter.Release(id))
	case types.Click:
		s.handleClick(id, m)
	case types.Key:
		s.handleKey(id, m)
	case types.KeyCombo:
		s.handleKeyCombo(id, m)
	case types.Ignored:
		logger.Debug("ignoring message", "conn", id, "type", m.Type)
	}
}

func (s *Server) handleLogin(id transport.ConnID, m types.Login) {
	if !m.Valid {
		s.reply(id, types.LoginFailed(errInvalidLogin))
		return
	}
	key := users.Key(m.User)
	rec, ok := s.users.Verify(key, m.Password)
	if key == "" || !ok {
		logger.Info("login failed", "conn", id, "user", key)
		s.reply(id, types.LoginFailed(errInvalidCredentials))
		return
	}

	// Sessions show the name as typed; the key is the identity.
	name := strings.TrimSpace(m.User)
	sess, ok := s.sessions.Update(id, func(ss *clients.Session) {
		ss.UserKey = key
		ss.DisplayName = name
		ss.Authenticated = true
		ss.ControlAllowed = rec.Control
		ss.HasControl = false
		if ss.MonitorIndex < 1 {
			ss.MonitorIndex = 1
		}
	})
	if !ok {
		return
	}
	logger.Info("login", "conn", id, "user", key, "control", rec.Control)

	holder, _ := s.arbiter.Current()
	s.reply(id, types.LoginOK(name, holder.Name, rec.Control, false))
	count := s.topology.Count()
	s.reply(id, types.NewMonitors(count, sess.Monitor(count)))

	s.emitter.Emit(events.New(events.Login, events.Fields{
		"User":            name,
		"User_Key":        key,
		"Control_Allowed": rec.Control,
	}))
}

func (s *Server) handleLogout(id transport.ConnID) {
	var prior clients.Session
	_, ok := s.sessions.Update(id, func(ss *clients.Session) {
		prior = *ss
		// The identity stays so a later disconnect or user removal still
		// finds this connection.
		ss.Authenticated = false
		ss.ControlAllowed = false
		ss.HasControl = false
	})
	if !ok || !prior.Authenticated {
		return
	}
	logger.Info("logout", "conn", id, "user", prior.UserKey)
	s.emitter.EmitAll(s.arbiter.LoggedOut(prior))
	s.emitter.Emit(events.New(events.Logout, events.Fields{
		"User":     prior.DisplayName,
		"User_Key": prior.UserKey,
	}))
}

func (s *Server) handleHello(id transport.ConnID) {
	sess, ok := s.sessions.Get(id)
	if !ok {
		return
	}
	count := s.topology.Count()
	s.reply(id, types.NewMonitors(count, sess.Monitor(count)))
}

func (s *Server) handleMonitorSelect(id transport.ConnID, m types.MonitorSelect) {
	count := s.topology.Count()
	idx := s.topology.Clamp(m.Index)
	if _, ok := s.sessions.Update(id, func(ss *clients.Session) { ss.MonitorIndex = idx }); !ok {
		return
	}
	s.reply(id, types.NewMonitors(count, idx))
}

func (s *Server) handleClick(id transport.ConnID, m types.Click) {
	sess, ok := s.arbiter.Authorized(id)
	if !ok {
		return
	}
	x, y := input.Clamp01(m.X), input.Clamp01(m.Y)
	if m.Action != "move" {
		s.emitter.Emit(events.New(events.Mouse, events.Fields{
			"User":     sess.DisplayName,
			"User_Key": sess.UserKey,
			"Action":   m.Action,
			"Button":   input.ButtonName(m.Button),
			"X":        x,
			"Y":        y,
		}))
	}
	s.pointer.Update(x, y, m.Button, m.Action)
}

func (s *Server) handleKey(id transport.ConnID, m types.Key) {
	sess, ok := s.arbiter.Authorized(id)
	if !ok {
		return
	}
	key, ok := input.NormalizeKey(m.Key)
	if !ok {
		logger.Debug("unknown key", "conn", id, "key", m.Key)
		return
	}
	s.emitter.Emit(events.New(events.Key, events.Fields{
		"User":     sess.DisplayName,
		"User_Key": sess.UserKey,
		"Action":   m.Action,
		"Key":      key,
		"Raw_Key":  m.Key,
	}))
	if err := s.keyboard.HandleKey(m.Action, key); err != nil {
		s.throttledWarn("key injection failed", "key", key, "action", m.Action, "err", err)
	}
}

func (s *Server) handleKeyCombo(id transport.ConnID, m types.KeyCombo) {
	sess, ok := s.arbiter.Authorized(id)
	if !ok {
		return
	}
	keys := input.NormalizeKeys(m.Keys)
	if len(keys) == 0 {
		return
	}
	s.emitter.Emit(events.New(events.KeyCombo, events.Fields{
		"User":     sess.DisplayName,
		"User_Key": sess.UserKey,
		"Keys":     keys,
		"Raw_Keys": m.Keys,
	}))
	if err := s.keyboard.HandleCombo(keys); err != nil {
		s.throttledWarn("key combo injection failed", "keys", keys, "err", err)
	}
}
