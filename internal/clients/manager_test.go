package clients

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webvnc/internal/transport"
)

func login(m *Manager, id transport.ConnID, user string, allowed bool) {
	m.Add(id)
	m.Update(id, func(s *Session) {
		s.UserKey = user
		s.DisplayName = user
		s.Authenticated = true
		s.ControlAllowed = allowed
		s.MonitorIndex = 1
	})
}

func TestAddGetRemove(t *testing.T) {
	m := NewManager()
	m.Add("c1")
	s, ok := m.Get("c1")
	require.True(t, ok)
	assert.Equal(t, transport.ConnID("c1"), s.Conn)
	assert.False(t, s.Authenticated)
	assert.Equal(t, 1, m.Len())

	// Get returns a copy.
	s.Authenticated = true
	s, _ = m.Get("c1")
	assert.False(t, s.Authenticated)

	removed, ok := m.Remove("c1")
	assert.True(t, ok)
	assert.Equal(t, transport.ConnID("c1"), removed.Conn)
	_, ok = m.Remove("c1")
	assert.False(t, ok)
	assert.Zero(t, m.Len())
}

func TestUpdateMissingSession(t *testing.T) {
	m := NewManager()
	called := false
	_, ok := m.Update("nope", func(*Session) { called = true })
	assert.False(t, ok)
	assert.False(t, called)
}

func TestSetUserControlOnlyQualifying(t *testing.T) {
	m := NewManager()
	login(m, "a1", "alice", true)
	login(m, "a2", "alice", true)
	login(m, "b1", "bob", true)
	m.Add("a3")
	m.Update("a3", func(s *Session) { s.UserKey = "alice" }) // logged out tab

	ids := m.SetUserControl("alice", true)
	assert.Equal(t, []transport.ConnID{"a1", "a2"}, ids)

	s, _ := m.Get("a3")
	assert.False(t, s.HasControl)
	s, _ = m.Get("b1")
	assert.False(t, s.HasControl)

	assert.True(t, m.HasActiveController("alice"))
	m.SetUserControl("alice", false)
	assert.False(t, m.HasActiveController("alice"))
	assert.True(t, m.HasQualifyingSession("alice"))
	assert.Nil(t, m.SetUserControl("", true))
}

func TestHasQualifyingSessionRequiresControlGrant(t *testing.T) {
	m := NewManager()
	login(m, "v1", "viewer", false)
	assert.False(t, m.HasQualifyingSession("viewer"))
	assert.False(t, m.HasQualifyingSession("ghost"))
}

func TestViewersClampAtReadTime(t *testing.T) {
	m := NewManager()
	login(m, "a", "alice", true)
	login(m, "b", "bob", false)
	login(m, "c", "carol", false)
	m.Add("anon")
	m.Update("b", func(s *Session) { s.MonitorIndex = 2 })
	m.Update("c", func(s *Session) { s.MonitorIndex = 5 })

	v := m.Viewers(3)
	assert.Equal(t, []transport.ConnID{"a"}, v[1])
	assert.Equal(t, []transport.ConnID{"b"}, v[2])
	assert.Equal(t, []transport.ConnID{"c"}, v[3])

	v = m.Viewers(1)
	assert.Equal(t, []transport.ConnID{"a", "b", "c"}, v[1])

	s, _ := m.Get("c")
	assert.Equal(t, 5, s.MonitorIndex, "stored index is left alone")
}

func TestRemoveUser(t *testing.T) {
	m := NewManager()
	login(m, "a1", "alice", true)
	login(m, "a2", "alice", false)
	login(m, "b1", "bob", true)

	assert.Equal(t, []transport.ConnID{"a1", "a2"}, m.RemoveUser("alice"))
	assert.Equal(t, 1, m.Len())
	assert.Empty(t, m.RemoveUser("alice"))
}

func TestSessionMonitor(t *testing.T) {
	assert.Equal(t, 1, Session{}.Monitor(3))
	assert.Equal(t, 2, Session{MonitorIndex: 2}.Monitor(3))
	assert.Equal(t, 3, Session{MonitorIndex: 9}.Monitor(3))
	assert.Equal(t, 1, Session{MonitorIndex: 9}.Monitor(0))
}

func TestForEachSessionSnapshot(t *testing.T) {
	m := NewManager()
	m.Add("x")
	m.Add("y")
	var seen []transport.ConnID
	m.ForEachSession(func(s Session) {
		seen = append(seen, s.Conn)
		m.Remove(s.Conn)
	})
	assert.Equal(t, []transport.ConnID{"x", "y"}, seen)
	assert.Zero(t, m.Len())
}
