package input

import "errors"

var (
	ErrNoScreen    = errors.New("screen size unavailable")
	ErrUnsupported = errors.New("input injection not supported in this build")
)

// Injector drives the local pointer and keyboard. Key names are the
// canonical tokens from NormalizeKey; buttons come from ButtonName.
type Injector interface {
	MoveTo(x, y int) error
	ButtonDown(button string) error
	ButtonUp(button string) error
	KeyDown(key string) error
	KeyUp(key string) error
	KeyPress(key string) error
	ScreenSize() (w, h int, err error)
}
