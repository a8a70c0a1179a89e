// Package control decides which single user may drive input.
//
// The Arbiter never sends anything itself. Each call returns the messages
// to deliver and the events to emit, so the caller can do I/O after the
// arbiter lock is released. Lock order is arbiter, then session table.
package control

import (
	"sync"

	"webvnc/internal/clients"
	"webvnc/internal/events"
	"webvnc/internal/transport"
	"webvnc/internal/types"
)

const reasonNotAllowed = "Not allowed"

// Sessions is the slice of the session table the arbiter needs.
type Sessions interface {
	Get(id transport.ConnID) (clients.Session, bool)
	SetUserControl(userKey string, on bool) []transport.ConnID
	HasQualifyingSession(userKey string) bool
	HasActiveController(userKey string) bool
}

// Outbound is one message addressed to one connection.
type Outbound struct {
	To  transport.ConnID
	Msg any
}

type Result struct {
	Replies []Outbound
	Events  []events.Event
}

func (r *Result) send(to transport.ConnID, msg any) {
	r.Replies = append(r.Replies, Outbound{To: to, Msg: msg})
}

func (r *Result) broadcast(ids []transport.ConnID, msg any) {
	for _, id := range ids {
		r.send(id, msg)
	}
}

func (r *Result) emit(name string, f events.Fields) {
	r.Events = append(r.Events, events.New(name, f))
}

// Holder identifies the global controller.
type Holder struct {
	Key  string
	Name string
}

type Arbiter struct {
	mu       sync.Mutex
	sessions Sessions
	holder   Holder
}

func New(sessions Sessions) *Arbiter {
	return &Arbiter{sessions: sessions}
}

// Current returns the controller, if any.
func (a *Arbiter) Current() (Holder, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.holder, a.holder.Key != ""
}

// Authorized reports whether the connection may inject input right now:
// authenticated, control-allowed, acting as controller, and its user is
// the global controller.
func (a *Arbiter) Authorized(id transport.ConnID) (clients.Session, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.sessions.Get(id)
	if !ok {
		return clients.Session{}, false
	}
	if !s.Authenticated || !s.ControlAllowed || !s.HasControl {
		return s, false
	}
	if s.UserKey == "" || s.UserKey != a.holder.Key {
		return s, false
	}
	return s, true
}

// Request handles Control_Request from a connection.
func (a *Arbiter) Request(from transport.ConnID, force bool) Result {
	a.mu.Lock()
	defer a.mu.Unlock()

	var res Result
	s, ok := a.sessions.Get(from)
	if !ok || !s.Authenticated {
		return res
	}
	if !s.ControlAllowed {
		res.send(from, types.ControlDenied(reasonNotAllowed))
		return res
	}
	if s.UserKey == "" {
		return res
	}

	if a.holder.Key != "" && !a.sessions.HasQualifyingSession(a.holder.Key) {
		a.holder = Holder{}
	}

	switch {
	case a.holder.Key == "":
		a.holder = Holder{Key: s.UserKey, Name: s.DisplayName}
		ids := a.sessions.SetUserControl(s.UserKey, true)
		res.broadcast(ids, types.NewControlChanged(true, a.holder.Name))
		res.send(from, types.ControlGranted(a.holder.Name))
		res.emit(events.ControlChange, changeFields(events.ChangeAcquire, s, force, Holder{}))

	case a.holder.Key == s.UserKey:
		a.sessions.SetUserControl(s.UserKey, true)
		res.send(from, types.ControlGranted(a.holder.Name))
		res.emit(events.ControlChange, changeFields(events.ChangeAcquire, s, force, a.holder))

	case !force:
		res.send(from, types.ControlInUse(a.holder.Name))

	default:
		prev := a.holder
		lost := a.sessions.SetUserControl(prev.Key, false)
		res.broadcast(lost, types.NewControlChanged(false, s.DisplayName))

		a.holder = Holder{Key: s.UserKey, Name: s.DisplayName}
		gained := a.sessions.SetUserControl(s.UserKey, true)
		res.broadcast(gained, types.NewControlChanged(true, a.holder.Name))
		res.send(from, types.ControlGranted(a.holder.Name))
		res.emit(events.ControlChange, changeFields(events.ChangeForce, s, true, prev))
	}
	return res
}

// Release handles Control_Release. Anyone but the holder is ignored.
func (a *Arbiter) Release(from transport.ConnID) Result {
	a.mu.Lock()
	defer a.mu.Unlock()

	var res Result
	s, ok := a.sessions.Get(from)
	if !ok || !s.Qualifies() || s.UserKey == "" {
		return res
	}
	if a.holder.Key != s.UserKey {
		return res
	}
	ids := a.sessions.SetUserControl(s.UserKey, false)
	res.broadcast(ids, types.NewControlChanged(false, ""))
	a.holder = Holder{}
	res.emit(events.ControlChange, events.Fields{
		"Type":     events.ChangeRelease,
		"User":     s.DisplayName,
		"User_Key": s.UserKey,
		"Forced":   false,
	})
	return res
}

// SessionGone is called after a session left the table. Control is
// cleared when it was acting as controller and no other acting session of
// the same user remains.
func (a *Arbiter) SessionGone(prev clients.Session) []events.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !prev.HasControl || prev.UserKey == "" || prev.UserKey != a.holder.Key {
		return nil
	}
	if a.sessions.HasActiveController(prev.UserKey) {
		return nil
	}
	a.holder = Holder{}
	return []events.Event{events.New(events.ControlChange, events.Fields{
		"Type":     events.ChangeDisconnect,
		"User":     prev.DisplayName,
		"User_Key": prev.UserKey,
	})}
}

// LoggedOut clears control when the session that logged out was acting as
// the controller.
func (a *Arbiter) LoggedOut(prev clients.Session) []events.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !prev.HasControl || prev.UserKey == "" || prev.UserKey != a.holder.Key {
		return nil
	}
	a.holder = Holder{}
	return []events.Event{events.New(events.ControlChange, events.Fields{
		"Type":     events.ChangeLogout,
		"User":     prev.DisplayName,
		"User_Key": prev.UserKey,
	})}
}

// ClearUser drops control held by a user that no longer exists.
func (a *Arbiter) ClearUser(userKey string) []events.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	if userKey == "" || a.holder.Key != userKey {
		return nil
	}
	prev := a.holder
	a.holder = Holder{}
	return []events.Event{events.New(events.ControlChange, events.Fields{
		"Type":     events.ChangeRemove,
		"User":     prev.Name,
		"User_Key": prev.Key,
	})}
}

func changeFields(kind string, s clients.Session, forced bool, prev Holder) events.Fields {
	return events.Fields{
		"Type":                     kind,
		"User":                     s.DisplayName,
		"User_Key":                 s.UserKey,
		"Forced":                   forced,
		"Previous_Controller_User": prev.Name,
		"Previous_Controller_Key":  prev.Key,
	}
}
