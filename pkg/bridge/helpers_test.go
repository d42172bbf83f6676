package bridge

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nsd-bridge/nsd-go/pkg/discovery"
	"github.com/nsd-bridge/nsd-go/pkg/discovery/discoverytest"
	"github.com/nsd-bridge/nsd-go/pkg/log"
)

// recorder collects delivered events.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) sink(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// memLogger captures protocol log events.
type memLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (m *memLogger) Log(e log.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
}

func (m *memLogger) callbacks(name string) []*log.CallbackEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*log.CallbackEvent
	for _, e := range m.events {
		if e.Callback != nil && e.Callback.Name == name {
			out = append(out, e.Callback)
		}
	}
	return out
}

// logBuffer collects operational log output from any goroutine.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (l *logBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.Write(p)
}

func (l *logBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.String()
}

type harness struct {
	b      *Bridge
	engine *discoverytest.Engine
	events *recorder
	plog   *memLogger
}

func newHarness(t *testing.T, engine *discoverytest.Engine, cfg Config) *harness {
	t.Helper()

	h := &harness{engine: engine, events: &recorder{}, plog: &memLogger{}}
	cfg.OnEvent = h.events.sink
	cfg.ProtocolLogger = h.plog
	cfg.EngineName = "test"
	h.b = New(engine, cfg)

	// Operations the test left pending are abandoned after a short wait.
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		_ = h.b.Shutdown(ctx)
	})
	return h
}

// flush waits for pending events and returns everything delivered so far.
func (h *harness) flush(t *testing.T) []Event {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.b.Flush(ctx))
	return h.events.all()
}

// lastKey returns the engine key of the latest call to method.
func (h *harness) lastKey(t *testing.T, method string) string {
	t.Helper()

	calls := h.engine.CallsTo(method)
	require.NotEmpty(t, calls, "no %s call", method)
	return calls[len(calls)-1].Key
}

func printer() discovery.Descriptor {
	return discovery.Descriptor{Name: "printer", Type: "_http._tcp.local."}
}
