//go:build !cgo

package robot

import "webvnc/internal/input"

// Injector is a stand-in for builds without cgo. Every call fails with
// input.ErrUnsupported, so the server still streams but cannot drive input.
type Injector struct{}

var _ input.Injector = Injector{}

func New() Injector { return Injector{} }

func (Injector) MoveTo(x, y int) error          { return input.ErrUnsupported }
func (Injector) ButtonDown(button string) error { return input.ErrUnsupported }
func (Injector) ButtonUp(button string) error   { return input.ErrUnsupported }
func (Injector) KeyDown(key string) error       { return input.ErrUnsupported }
func (Injector) KeyUp(key string) error         { return input.ErrUnsupported }
func (Injector) KeyPress(key string) error      { return input.ErrUnsupported }

func (Injector) ScreenSize() (int, int, error) { return 0, 0, input.ErrUnsupported }
