package server

import (
	"webvnc/internal/config"
	"webvnc/internal/events"
	"webvnc/internal/logger"
	"webvnc/internal/users"
)

// AddUser creates or replaces a user record. Live sessions keep the
// permissions they logged in with.
func (s *Server) AddUser(name, password string, control bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUser(name, password, control)
}

func (s *Server) addUser(name, password string, control bool) error {
	key, err := s.users.Add(name, password, control)
	if err != nil {
		return err
	}
	logger.Info("user added", "user", key, "control", control)
	return nil
}

// RemoveUser deletes a user, closes every connection logged in as that
// user and clears control if they held it. It reports whether a record
// existed.
func (s *Server) RemoveUser(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeUser(name)
}

func (s *Server) removeUser(name string) bool {
	key, existed := s.users.Remove(name)
	if key == "" {
		return false
	}

	// Sessions leave the table before their connections close, so the
	// disconnects that follow find nothing to clean up.
	ids := s.sessions.RemoveUser(key)
	for _, id := range ids {
		s.tr.Close(id)
	}
	if !existed && len(ids) == 0 {
		return false
	}

	logger.Info("user removed", "user", key, "sessions", len(ids))
	s.emitter.Emit(events.New(events.UserRemoved, events.Fields{
		"User_Key": key,
		"Sessions": len(ids),
	}))
	s.emitter.EmitAll(s.arbiter.ClearUser(key))
	return existed
}

// SyncUsers makes the store match list: listed users are upserted, users
// no longer listed are removed. The whole change lands between two
// dispatched events.
func (s *Server) SyncUsers(list []config.UserConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[string]bool, len(list))
	for _, u := range list {
		if err := s.addUser(u.Name, u.Password, u.Control); err != nil {
			logger.Warn("skipping user", "name", u.Name, "err", err)
			continue
		}
		want[users.Key(u.Name)] = true
	}
	for _, key := range s.users.Keys() {
		if !want[key] {
			s.removeUser(key)
		}
	}
}
