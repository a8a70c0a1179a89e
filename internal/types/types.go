// Package types holds the JSON messages exchanged with the browser client.
package types

import "encoding/json"

// Message type tags.
const (
	TypeLogin          = "Login"
	TypeLoginResult    = "Login_Result"
	TypeLogout         = "Logout"
	TypeHello          = "Hello"
	TypeMonitors       = "Monitors"
	TypeMonitorSelect  = "Monitor_Select"
	TypeControlRequest = "Control_Request"
	TypeControlResult  = "Control_Result"
	TypeControlRelease = "Control_Release"
	TypeControlChanged = "Control_Changed"
	TypeClick          = "Click"
	TypeKey            = "Key"
	TypeKeyCombo       = "Key_Combo"
)

// Inbound is one decoded client message. The set of implementations is
// closed; anything unrecognized decodes to Ignored.
type Inbound interface {
	inbound()
}

// Login carries the client's credentials. Valid is false when either
// field was missing or not a string.
type Login struct {
	User     string
	Password string
	Valid    bool
}

type Logout struct{}

type Hello struct{}

type MonitorSelect struct {
	Index int
}

type ControlRequest struct {
	Force bool
}

type ControlRelease struct{}

// Click is a pointer update. X and Y are normalized to [0,1] but not yet
// clamped.
type Click struct {
	X, Y   float64
	Button string
	Action string
}

// Key is a single key event. Key holds the raw name, falling back to the
// client's Code field when Key was empty.
type Key struct {
	Action string
	Key    string
}

type KeyCombo struct {
	Keys []string
}

// Ignored is any payload that was not valid JSON, had no usable Type tag,
// or lacked fields its type requires.
type Ignored struct {
	Type string
}

func (Login) inbound()          {}
func (Logout) inbound()         {}
func (Hello) inbound()          {}
func (MonitorSelect) inbound()  {}
func (ControlRequest) inbound() {}
func (ControlRelease) inbound() {}
func (Click) inbound()          {}
func (Key) inbound()            {}
func (KeyCombo) inbound()       {}
func (Ignored) inbound()        {}

// LoginResult answers a Login. Control, User and Active are only present
// on success.
type LoginResult struct {
	Type       string  `json:"Type"`
	Success    bool    `json:"Success"`
	Error      string  `json:"Error,omitempty"`
	Controller string  `json:"Controller,omitempty"`
	Control    *bool   `json:"Control,omitempty"`
	User       *string `json:"User,omitempty"`
	Active     *bool   `json:"Active,omitempty"`
}

// Monitors reports the monitor count and the session's selected index.
type Monitors struct {
	Type   string `json:"Type"`
	Count  int    `json:"Count"`
	Active int    `json:"Active"`
}

type ControlResult struct {
	Type       string  `json:"Type"`
	Success    bool    `json:"Success"`
	Active     bool    `json:"Active"`
	Error      string  `json:"Error,omitempty"`
	InUse      bool    `json:"In_Use,omitempty"`
	Controller *string `json:"Controller,omitempty"`
}

type ControlChanged struct {
	Type       string `json:"Type"`
	Active     bool   `json:"Active"`
	Controller string `json:"Controller"`
}

func LoginFailed(reason string) LoginResult {
	return LoginResult{Type: TypeLoginResult, Success: false, Error: reason}
}

func LoginOK(user, controller string, controlAllowed, active bool) LoginResult {
	return LoginResult{
		Type:       TypeLoginResult,
		Success:    true,
		Controller: controller,
		Control:    &controlAllowed,
		User:       &user,
		Active:     &active,
	}
}

func NewMonitors(count, active int) Monitors {
	return Monitors{Type: TypeMonitors, Count: count, Active: active}
}

func ControlGranted(controller string) ControlResult {
	return ControlResult{Type: TypeControlResult, Success: true, Active: true, Controller: &controller}
}

func ControlInUse(controller string) ControlResult {
	return ControlResult{Type: TypeControlResult, Success: false, Active: false, InUse: true, Controller: &controller}
}

func ControlDenied(reason string) ControlResult {
	return ControlResult{Type: TypeControlResult, Success: false, Active: false, Error: reason}
}

func NewControlChanged(active bool, controller string) ControlChanged {
	return ControlChanged{Type: TypeControlChanged, Active: active, Controller: controller}
}

// Encode renders an outbound message as compact JSON text.
func Encode(msg any) (string, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
