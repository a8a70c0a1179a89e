package events

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"

	"webvnc/internal/logger"
)

// Sink receives events on the emitter's worker goroutine.
type Sink func(Event) error

// Emitter delivers events to its sinks asynchronously. Emit never blocks;
// when more than limit events are pending new ones are dropped.
type Emitter struct {
	sinks []Sink
	limit int

	mu      sync.Mutex
	pending *queue.Queue
	wake    chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once

	dropped atomic.Int64
}

// NewEmitter starts the worker. limit < 1 selects 1024.
func NewEmitter(limit int, sinks ...Sink) *Emitter {
	if limit < 1 {
		limit = 1024
	}
	e := &Emitter{
		sinks:   sinks,
		limit:   limit,
		pending: queue.New(),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	e.wg.Add(1)
	go e.run()
	return e
}

// Emit stamps and enqueues ev. Safe on a nil Emitter.
func (e *Emitter) Emit(ev Event) {
	if e == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	e.mu.Lock()
	if e.pending.Length() >= e.limit {
		e.mu.Unlock()
		n := e.dropped.Add(1)
		if n == 1 || n%1000 == 0 {
			logger.Debug("event emitter dropped events (queue full)", "dropped", n, "event", ev.Name)
		}
		return
	}
	e.pending.Add(ev)
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// EmitAll emits each event in order.
func (e *Emitter) EmitAll(evs []Event) {
	for _, ev := range evs {
		e.Emit(ev)
	}
}

func (e *Emitter) Dropped() int64 {
	if e == nil {
		return 0
	}
	return e.dropped.Load()
}

// Close delivers whatever is still queued and stops the worker.
func (e *Emitter) Close() {
	if e == nil {
		return
	}
	e.once.Do(func() { close(e.done) })
	e.wg.Wait()
}

func (e *Emitter) run() {
	defer e.wg.Done()
	for {
		select {
		case <-e.wake:
			e.drain()
		case <-e.done:
			e.drain()
			return
		}
	}
}

func (e *Emitter) drain() {
	for {
		e.mu.Lock()
		if e.pending.Length() == 0 {
			e.mu.Unlock()
			return
		}
		ev := e.pending.Remove().(Event)
		e.mu.Unlock()

		for _, sink := range e.sinks {
			deliver(sink, ev)
		}
	}
}

func deliver(sink Sink, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Debug("event sink panicked", "event", ev.Name, "panic", fmt.Sprint(r))
		}
	}()
	if err := sink(ev); err != nil {
		logger.Debug("event sink failed", "event", ev.Name, "err", err)
	}
}
