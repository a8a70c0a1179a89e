//go:build cgo

// Package robot injects input into the local desktop through robotgo.
package robot

import (
	"github.com/go-vgo/robotgo"

	"webvnc/internal/input"
)

// Injector implements input.Injector.
type Injector struct{}

var _ input.Injector = Injector{}

func New() Injector { return Injector{} }

func (Injector) MoveTo(x, y int) error {
	robotgo.Move(x, y)
	return nil
}

func (Injector) ButtonDown(button string) error {
	return robotgo.Toggle(robotButton(button), "down")
}

func (Injector) ButtonUp(button string) error {
	return robotgo.Toggle(robotButton(button), "up")
}

func (Injector) KeyDown(key string) error {
	return robotgo.KeyToggle(robotKey(key), "down")
}

func (Injector) KeyUp(key string) error {
	return robotgo.KeyToggle(robotKey(key), "up")
}

func (Injector) KeyPress(key string) error {
	return robotgo.KeyTap(robotKey(key))
}

func (Injector) ScreenSize() (int, int, error) {
	w, h := robotgo.GetScreenSize()
	if w <= 0 || h <= 0 {
		return 0, 0, input.ErrNoScreen
	}
	return w, h, nil
}

func robotButton(b string) string {
	if b == "middle" {
		return "center"
	}
	return b
}

func robotKey(k string) string {
	switch k {
	case "win":
		return "cmd"
	case "ctrl":
		return "control"
	default:
		return k
	}
}
