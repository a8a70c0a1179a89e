package input

import (
	"fmt"
	"sync"
)

type fakeInjector struct {
	mu     sync.Mutex
	calls  []string
	w, h   int
	failOn string
}

func (f *fakeInjector) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	if f.failOn != "" && f.failOn == call {
		return fmt.Errorf("injected failure: %s", call)
	}
	return nil
}

func (f *fakeInjector) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeInjector) MoveTo(x, y int) error { return f.record(fmt.Sprintf("move %d,%d", x, y)) }
func (f *fakeInjector) ButtonDown(b string) error { return f.record("bdown " + b) }
func (f *fakeInjector) ButtonUp(b string) error { return f.record("bup " + b) }
func (f *fakeInjector) KeyDown(k string) error { return f.record("down " + k) }
func (f *fakeInjector) KeyUp(k string) error { return f.record("up " + k) }
func (f *fakeInjector) KeyPress(k string) error { return f.record("press " + k) }
func (f *fakeInjector) ScreenSize() (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.w == 0 {
		return 0, 0, ErrNoScreen
	}
	return f.w, f.h, nil
}
