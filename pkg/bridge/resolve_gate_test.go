package bridge

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nsd-bridge/nsd-go/pkg/discovery"
	"github.com/nsd-bridge/nsd-go/pkg/discovery/discoverytest"
	"github.com/nsd-bridge/nsd-go/pkg/nsderr"
	"github.com/nsd-bridge/nsd-go/pkg/txt"
)

func waitForCalls(t *testing.T, h *harness, method string, n int) []discoverytest.Call {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(h.engine.CallsTo(method)) >= n
	}, time.Second, time.Millisecond)
	return h.engine.CallsTo(method)
}

func TestResolvesRunOneAtATime(t *testing.T) {
	h := newHarness(t, discoverytest.New(), Config{ResolveTimeout: 3 * time.Second})

	for _, handle := range []string{"r1", "r2", "r3"} {
		require.NoError(t, h.b.Resolve(handle, discovery.Descriptor{Name: handle, Type: "_http._tcp."}))
	}

	calls := waitForCalls(t, h, discoverytest.MethodResolve, 1)
	time.Sleep(20 * time.Millisecond)
	require.Len(t, h.engine.CallsTo(discoverytest.MethodResolve), 1, "second resolve issued before the first finished")
	assert.Equal(t, 3*time.Second, calls[0].Timeout)
	assert.Equal(t, "_http._tcp", calls[0].Descriptor.Type)

	h.engine.FireResolved(calls[0].Key, discovery.Descriptor{Host: "r1.local", Port: 80})

	calls = waitForCalls(t, h, discoverytest.MethodResolve, 2)
	h.engine.FireResolveFailed(calls[1].Key, nsderr.CodeNotFound)

	calls = waitForCalls(t, h, discoverytest.MethodResolve, 3)
	h.engine.FireResolved(calls[2].Key, discovery.Descriptor{Name: "r3", Type: "_http._tcp.local.", Host: "r3.local"})

	var names []string
	for _, c := range calls {
		names = append(names, c.Descriptor.Name)
	}
	assert.Equal(t, []string{"r1", "r2", "r3"}, names)
	assert.Equal(t, 1, h.engine.MaxConcurrentResolves())

	events := h.flush(t)
	require.Len(t, events, 3)

	assert.Equal(t, EventResolveSuccessful, events[0].Kind)
	assert.Equal(t, discovery.Descriptor{Name: "r1", Type: "_http._tcp", Host: "r1.local", Port: 80}, events[0].Service)

	assert.Equal(t, EventResolveFailed, events[1].Kind)
	assert.Equal(t, "r2", events[1].Handle)
	assert.Equal(t, "service could not be found on the network", events[1].Err.Message)

	assert.Equal(t, EventResolveSuccessful, events[2].Kind)
	assert.Equal(t, "_http._tcp", events[2].Service.Type)
}

func TestConcurrentResolvesStaySerial(t *testing.T) {
	h := newHarness(t, discoverytest.New(), Config{ResolveTimeout: 3 * time.Second})
	const n = 8

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d := discovery.Descriptor{Name: fmt.Sprintf("svc%d", i), Type: "_http._tcp"}
			assert.NoError(t, h.b.Resolve(fmt.Sprintf("r%d", i), d))
		}(i)
	}
	wg.Wait()

	for i := 1; i <= n; i++ {
		calls := waitForCalls(t, h, discoverytest.MethodResolve, i)
		require.Len(t, calls, i, "resolve issued before the previous one finished")
		h.engine.FireResolved(calls[i-1].Key, discovery.Descriptor{Host: "host.local", Port: 80})
	}
	assert.Equal(t, 1, h.engine.MaxConcurrentResolves())

	// Results come back in the order the engine was asked.
	calls := h.engine.CallsTo(discoverytest.MethodResolve)
	events := h.flush(t)
	require.Len(t, events, n)
	handles := make(map[string]bool)
	for i, e := range events {
		assert.Equal(t, EventResolveSuccessful, e.Kind)
		assert.Equal(t, calls[i].Descriptor.Name, e.Service.Name)
		assert.Equal(t, "r"+strings.TrimPrefix(e.Service.Name, "svc"), e.Handle)
		handles[e.Handle] = true
	}
	assert.Len(t, handles, n)
}

func TestResolveValidation(t *testing.T) {
	h := newHarness(t, discoverytest.New(), Config{})

	tests := []struct {
		name   string
		handle string
		d      discovery.Descriptor
	}{
		{"EmptyDescriptor", "r", discovery.Descriptor{}},
		{"MissingName", "r", discovery.Descriptor{Type: "_http._tcp"}},
		{"MissingType", "r", discovery.Descriptor{Name: "printer"}},
		{"MissingHandle", "", discovery.Descriptor{Name: "printer", Type: "_http._tcp"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.b.Resolve(tt.handle, tt.d)
			require.Error(t, err)
			assert.Equal(t, nsderr.IllegalArgument, nsderr.CauseOf(err))
		})
	}
}

func TestResolveDuplicateHandle(t *testing.T) {
	h := newHarness(t, discoverytest.New(), Config{})

	require.NoError(t, h.b.Resolve("r", printer()))
	err := h.b.Resolve("r", printer())
	require.Error(t, err)
	assert.Equal(t, nsderr.AlreadyActive, nsderr.CauseOf(err))
}

func TestResolveRefusedByEngineReleasesGate(t *testing.T) {
	h := newHarness(t, discoverytest.New(), Config{})
	h.engine.FailNext(discoverytest.MethodResolve, nsderr.WithCode(nsderr.CodeMaxLimit, errors.New("busy")))

	require.NoError(t, h.b.Resolve("r1", printer()))
	require.NoError(t, h.b.Resolve("r2", printer()))

	calls := waitForCalls(t, h, discoverytest.MethodResolve, 2)
	h.engine.FireResolved(calls[1].Key, discovery.Descriptor{Host: "printer.local"})

	events := h.flush(t)
	require.Len(t, events, 2)
	assert.Equal(t, EventResolveFailed, events[0].Kind)
	assert.Equal(t, nsderr.MaxLimit, events[0].Err.Cause)
	assert.Equal(t, EventResolveSuccessful, events[1].Kind)
}

func TestResolveKeepsTXTValues(t *testing.T) {
	h := newHarness(t, discoverytest.New(), Config{})

	require.NoError(t, h.b.Resolve("r", printer()))
	calls := waitForCalls(t, h, discoverytest.MethodResolve, 1)

	record := txt.Record{"flag": nil, "empty": {}, "path": []byte("/x")}
	h.engine.FireResolved(calls[0].Key, discovery.Descriptor{Host: "printer.local", Port: 80, TXT: record})

	events := h.flush(t)
	require.Len(t, events, 1)
	assert.Equal(t, record, events[0].Service.TXT)

	msg := events[0].Message()
	assert.Nil(t, msg.ServiceTXT["flag"])
	assert.NotNil(t, msg.ServiceTXT["empty"])
	assert.Empty(t, msg.ServiceTXT["empty"])
}

func TestGateExpiresUnansweredRequest(t *testing.T) {
	issued := make(chan *resolveRequest, 2)
	expired := make(chan *resolveRequest, 2)

	g := newResolveGate(
		func(r *resolveRequest) { issued <- r },
		func(r *resolveRequest) {
			expired <- r
			close(r.done)
		},
		20*time.Millisecond,
	)
	g.start()
	defer g.close()

	r1 := newResolveRequest("r1", "k1", printer())
	r2 := newResolveRequest("r2", "k2", printer())
	require.True(t, g.enqueue(r1))
	require.True(t, g.enqueue(r2))

	assert.Same(t, r1, <-issued)
	assert.Same(t, r1, <-expired)
	assert.Same(t, r2, <-issued)
}

func TestGateCloseReturnsUnfinished(t *testing.T) {
	issued := make(chan *resolveRequest, 1)
	g := newResolveGate(func(r *resolveRequest) { issued <- r }, func(*resolveRequest) {}, time.Hour)
	g.start()

	r1 := newResolveRequest("r1", "k1", printer())
	r2 := newResolveRequest("r2", "k2", printer())
	g.enqueue(r1)
	g.enqueue(r2)
	<-issued

	pending := g.close()
	require.Len(t, pending, 2)
	assert.Same(t, r1, pending[0])
	assert.Same(t, r2, pending[1])

	assert.False(t, g.enqueue(newResolveRequest("r3", "k3", printer())))
}
