package input

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"webvnc/internal/logger"
)

// Pointer is the latest pointer state from the controller. Writers
// overwrite it; the Relay applies only what it sees at each tick.
type Pointer struct {
	mu     sync.Mutex
	has    bool
	down   bool
	button string
	x, y   float64
}

type pointerState struct {
	has    bool
	down   bool
	button string
	x, y   float64
}

// Update records a pointer message. Coordinates are clamped to [0,1];
// action down and up set the button state, anything else keeps it.
func (p *Pointer) Update(x, y float64, button, action string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.has = true
	p.button = ButtonName(button)
	p.x = Clamp01(x)
	p.y = Clamp01(y)
	switch action {
	case "down":
		p.down = true
	case "up":
		p.down = false
	}
}

func (p *Pointer) load() pointerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return pointerState{has: p.has, down: p.down, button: p.button, x: p.x, y: p.y}
}

// Clamp01 limits a normalized coordinate to [0, 1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Relay is the single consumer of a Pointer. It moves the cursor only
// when the pixel position changes and presses or releases only on edges.
type Relay struct {
	inj      Injector
	ptr      *Pointer
	interval time.Duration

	w, h         int
	havePrev     bool
	prevX, prevY int
	prevDown     bool

	warn rate.Sometimes
}

func NewRelay(inj Injector, ptr *Pointer, interval time.Duration) *Relay {
	if interval <= 0 {
		interval = 2 * time.Millisecond
	}
	return &Relay{
		inj:      inj,
		ptr:      ptr,
		interval: interval,
		warn:     rate.Sometimes{First: 3, Interval: 10 * time.Second},
	}
}

// Run ticks until ctx is done.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Step()
		}
	}
}

// Step runs one relay tick.
func (r *Relay) Step() {
	if r.w <= 0 || r.h <= 0 {
		w, h, err := r.inj.ScreenSize()
		if err != nil || w <= 0 || h <= 0 {
			return
		}
		r.w, r.h = w, h
	}
	st := r.ptr.load()
	if !st.has {
		return
	}

	x := toPixel(st.x, r.w)
	y := toPixel(st.y, r.h)
	if !r.havePrev || x != r.prevX || y != r.prevY {
		r.check("move", r.inj.MoveTo(x, y))
	}
	switch {
	case st.down && !r.prevDown:
		r.check("button down", r.inj.ButtonDown(st.button))
	case !st.down && r.prevDown:
		r.check("button up", r.inj.ButtonUp(st.button))
	}

	r.havePrev = true
	r.prevX, r.prevY = x, y
	r.prevDown = st.down
}

func (r *Relay) check(op string, err error) {
	if err == nil {
		return
	}
	r.warn.Do(func() {
		logger.Warn("pointer injection failed", "op", op, "err", err)
	})
}

func toPixel(v float64, size int) int {
	p := int(v * float64(size))
	if p >= size {
		p = size - 1
	}
	return p
}
