package clients

import (
	"sort"
	"sync"

	"webvnc/internal/transport"
)

// Session is the per-connection state. HasControl marks this connection as
// an acting controller, which is distinct from its user being the global
// controller since one user may hold several connections.
type Session struct {
	Conn           transport.ConnID
	UserKey        string
	DisplayName    string
	Authenticated  bool
	ControlAllowed bool
	HasControl     bool
	MonitorIndex   int // 0 until selected or set on login
}

// Qualifies reports whether the session may hold control.
func (s Session) Qualifies() bool {
	return s.Authenticated && s.ControlAllowed
}

// Monitor returns the selected monitor clamped to [1, count].
func (s Session) Monitor(count int) int {
	if count < 1 {
		count = 1
	}
	idx := s.MonitorIndex
	if idx < 1 {
		idx = 1
	}
	if idx > count {
		idx = count
	}
	return idx
}

// Manager tracks sessions keyed by connection.
type Manager struct {
	mu       sync.RWMutex
	sessions map[transport.ConnID]*Session
}

func NewManager() *Manager {
	return &Manager{sessions: make(map[transport.ConnID]*Session)}
}

func (m *Manager) getOrCreate(id transport.ConnID) *Session {
	s, ok := m.sessions[id]
	if !ok {
		s = &Session{Conn: id}
		m.sessions[id] = s
	}
	return s
}

// Add registers an empty session for a freshly accepted connection.
func (m *Manager) Add(id transport.ConnID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getOrCreate(id)
}

// Remove drops the session and returns its last state.
func (m *Manager) Remove(id transport.ConnID) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, false
	}
	delete(m.sessions, id)
	return *s, true
}

// Get returns a copy of the session.
func (m *Manager) Get(id transport.ConnID) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Update applies fn to the live session under the table lock and returns
// the resulting copy. fn must not call back into the Manager.
func (m *Manager) Update(id transport.ConnID, fn func(*Session)) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, false
	}
	fn(s)
	return *s, true
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Snapshot copies every session, ordered by connection id.
func (m *Manager) Snapshot() []Session {
	m.mu.RLock()
	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, *s)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Conn < out[j].Conn })
	return out
}

// ForEachSession executes fn over a snapshot so fn may send or block.
func (m *Manager) ForEachSession(fn func(Session)) {
	for _, s := range m.Snapshot() {
		fn(s)
	}
}

// SetUserControl sets HasControl on every qualifying session of the user
// and returns the affected connections.
func (m *Manager) SetUserControl(userKey string, on bool) []transport.ConnID {
	if userKey == "" {
		return nil
	}
	m.mu.Lock()
	var ids []transport.ConnID
	for id, s := range m.sessions {
		if s.UserKey == userKey && s.Qualifies() {
			s.HasControl = on
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()
	sortIDs(ids)
	return ids
}

// HasQualifyingSession reports whether the user still has a live,
// authenticated, control-allowed session.
func (m *Manager) HasQualifyingSession(userKey string) bool {
	return m.exists(func(s *Session) bool {
		return s.UserKey == userKey && s.Qualifies()
	})
}

// HasActiveController is HasQualifyingSession restricted to sessions that
// are currently acting as controller.
func (m *Manager) HasActiveController(userKey string) bool {
	return m.exists(func(s *Session) bool {
		return s.UserKey == userKey && s.Qualifies() && s.HasControl
	})
}

func (m *Manager) exists(pred func(*Session) bool) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		if pred(s) {
			return true
		}
	}
	return false
}

// Viewers groups authenticated sessions by monitor, clamping stored
// indices against count at read time.
func (m *Manager) Viewers(count int) map[int][]transport.ConnID {
	out := make(map[int][]transport.ConnID)
	for _, s := range m.Snapshot() {
		if !s.Authenticated {
			continue
		}
		idx := s.Monitor(count)
		out[idx] = append(out[idx], s.Conn)
	}
	return out
}

// RemoveUser drops every session bound to the user and returns their
// connections so the caller can close them.
func (m *Manager) RemoveUser(userKey string) []transport.ConnID {
	if userKey == "" {
		return nil
	}
	m.mu.Lock()
	var ids []transport.ConnID
	for id, s := range m.sessions {
		if s.UserKey == userKey {
			ids = append(ids, id)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()
	sortIDs(ids)
	return ids
}

func sortIDs(ids []transport.ConnID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
