// Package events carries observability records out of the server. Sinks
// are external; their failures never reach protocol handling.
package events

import (
	"encoding/json"
	"time"
)

// Event names.
const (
	Login         = "Login"
	Logout        = "Logout"
	Disconnect    = "Disconnect"
	ControlChange = "Control_Change"
	Key           = "Key"
	KeyCombo      = "Key_Combo"
	Mouse         = "Mouse"
	UserRemoved   = "User_Removed"
)

// Control_Change types.
const (
	ChangeAcquire    = "Acquire"
	ChangeForce      = "Force"
	ChangeRelease    = "Release"
	ChangeDisconnect = "Disconnect"
	ChangeLogout     = "Logout"
	ChangeRemove     = "Remove"
)

type Fields map[string]any

// Event is one record. It serializes flat: {"Event": name, ...fields,
// "Timestamp": unix seconds}.
type Event struct {
	Name      string
	Fields    Fields
	Timestamp time.Time
}

func New(name string, fields Fields) Event {
	return Event{Name: name, Fields: fields}
}

// Get returns a field value or nil.
func (e Event) Get(key string) any {
	return e.Fields[key]
}

func (e Event) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Fields)+2)
	for k, v := range e.Fields {
		out[k] = v
	}
	out["Event"] = e.Name
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	out["Timestamp"] = float64(ts.Unix()) + float64(ts.Nanosecond())/1e9
	return json.Marshal(out)
}
