package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webvnc/internal/config"
	"webvnc/internal/events"
	"webvnc/internal/transport"
	"webvnc/internal/users"
)

type fakeTransport struct {
	mu     sync.Mutex
	inbox  chan transport.Event
	text   map[transport.ConnID][]string
	binary map[transport.ConnID][][]byte
	closed []transport.ConnID
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbox:  make(chan transport.Event, 64),
		text:   make(map[transport.ConnID][]string),
		binary: make(map[transport.ConnID][][]byte),
	}
}

func (f *fakeTransport) Receive(timeout time.Duration) (transport.Event, bool) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case ev := <-f.inbox:
		return ev, true
	case <-t.C:
		return transport.Event{}, false
	}
}

func (f *fakeTransport) SendText(id transport.ConnID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.text[id] = append(f.text[id], text)
	return nil
}

func (f *fakeTransport) SendBinary(id transport.ConnID, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.binary[id] = append(f.binary[id], data)
	return nil
}

func (f *fakeTransport) Close(id transport.ConnID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, id)
}

func (f *fakeTransport) sent(id transport.ConnID) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.text[id]...)
}

func (f *fakeTransport) frames(id transport.ConnID) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.binary[id]...)
}

func (f *fakeTransport) closedConns() []transport.ConnID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transport.ConnID(nil), f.closed...)
}

// ofType returns every message of the given type sent to id.
func (f *fakeTransport) ofType(t *testing.T, id transport.ConnID, typ string) []string {
	t.Helper()
	var out []string
	for _, s := range f.sent(id) {
		var head struct{ Type string }
		require.NoError(t, json.Unmarshal([]byte(s), &head))
		if head.Type == typ {
			out = append(out, s)
		}
	}
	return out
}

func (f *fakeTransport) last(t *testing.T, id transport.ConnID, typ string) string {
	t.Helper()
	msgs := f.ofType(t, id, typ)
	require.NotEmpty(t, msgs, "no %s sent to %s", typ, id)
	return msgs[len(msgs)-1]
}

type fakeInjector struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeInjector) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return nil
}

func (f *fakeInjector) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeInjector) MoveTo(x, y int) error     { return f.record(fmt.Sprintf("move %d,%d", x, y)) }
func (f *fakeInjector) ButtonDown(b string) error { return f.record("bdown " + b) }
func (f *fakeInjector) ButtonUp(b string) error   { return f.record("bup " + b) }
func (f *fakeInjector) KeyDown(k string) error    { return f.record("down " + k) }
func (f *fakeInjector) KeyUp(k string) error      { return f.record("up " + k) }
func (f *fakeInjector) KeyPress(k string) error   { return f.record("press " + k) }

func (f *fakeInjector) ScreenSize() (int, int, error) { return 1000, 500, nil }

type fakeBackend struct {
	count int
}

func (b *fakeBackend) ListMonitors() (int, error) { return b.count, nil }

func (b *fakeBackend) Grab(index int) ([]byte, error) { return []byte{byte(index)}, nil }

type harness struct {
	srv     *Server
	tr      *fakeTransport
	inj     *fakeInjector
	emitter *events.Emitter

	mu  sync.Mutex
	evs []events.Event
}

// newHarness builds a server with two monitors and three users: alice and
// bob may take control, carol may only watch.
func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{tr: newFakeTransport(), inj: &fakeInjector{}}
	h.emitter = events.NewEmitter(0, func(ev events.Event) error {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.evs = append(h.evs, ev)
		return nil
	})
	t.Cleanup(h.emitter.Close)

	store := users.NewStore()
	for _, u := range []struct {
		name, password string
		control        bool
	}{
		{"alice", "secret", true},
		{"bob", "hunter2", true},
		{"carol", "viewer", false},
	} {
		_, err := store.Add(u.name, u.password, u.control)
		require.NoError(t, err)
	}

	h.srv = New(h.tr, Options{
		Backend:  &fakeBackend{count: 2},
		Injector: h.inj,
		Emitter:  h.emitter,
		Users:    store,
	})
	h.srv.topology.Set(2)
	return h
}

func (h *harness) connect(ids ...transport.ConnID) {
	for _, id := range ids {
		h.srv.HandleEvent(transport.Event{Kind: transport.EventConnected, Conn: id})
	}
}

func (h *harness) disconnect(id transport.ConnID) {
	h.srv.HandleEvent(transport.Event{Kind: transport.EventDisconnected, Conn: id})
}

func (h *harness) send(id transport.ConnID, payload string) {
	h.srv.HandleEvent(transport.Event{Kind: transport.EventMessage, Conn: id, Payload: []byte(payload)})
}

func (h *harness) login(id transport.ConnID, user, password string) {
	h.send(id, fmt.Sprintf(`{"Type":"Login","User":%q,"Password":%q}`, user, users.HashPassword(password)))
}

// events stops the emitter and returns everything it delivered. Call it
// once, after the last action of a test.
func (h *harness) events() []events.Event {
	h.emitter.Close()
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]events.Event(nil), h.evs...)
}

func named(evs []events.Event, name string) []events.Event {
	var out []events.Event
	for _, ev := range evs {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

func TestBroadcastFollowsSelectedMonitor(t *testing.T) {
	h := newHarness(t)
	h.connect("c1", "c2", "c3")
	h.login("c1", "alice", "secret")
	h.login("c2", "carol", "viewer")
	h.send("c1", `{"Type":"Monitor_Select","Index":2}`)

	assert.Equal(t, 2, h.srv.broadcaster.Tick())
	assert.Equal(t, [][]byte{{2}}, h.tr.frames("c1"))
	assert.Equal(t, [][]byte{{1}}, h.tr.frames("c2"))
	assert.Empty(t, h.tr.frames("c3"), "unauthenticated sessions are not streamed")
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	h.srv.opts.PollInterval = 5 * time.Millisecond

	done := make(chan error, 1)
	go func() { done <- h.srv.Run(ctx) }()

	h.tr.inbox <- transport.Event{Kind: transport.EventConnected, Conn: "c1"}
	h.tr.inbox <- transport.Event{Kind: transport.EventMessage, Conn: "c1", Payload: []byte(`{"Type":"Hello"}`)}
	require.Eventually(t, func() bool { return len(h.tr.sent("c1")) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.JSONEq(t, `{"Type":"Monitors","Count":2,"Active":1}`, h.tr.sent("c1")[0])

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestStartSurfacesBindFailure(t *testing.T) {
	h := newHarness(t)
	cfg := config.Default()
	cfg.Server.Listen = "127.0.0.1:0"
	first, err := Start(context.Background(), cfg, Options{Backend: &fakeBackend{count: 1}, Injector: h.inj})
	require.NoError(t, err)
	require.NotNil(t, first.Addr())
	defer first.stop()

	cfg.Server.Listen = first.Addr().String()
	_, err = Start(context.Background(), cfg, Options{Backend: &fakeBackend{count: 1}, Injector: h.inj})
	assert.ErrorContains(t, err, "failed to listen")
}
