package bridge

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nsd-bridge/nsd-go/pkg/discovery"
	"github.com/nsd-bridge/nsd-go/pkg/discovery/discoverytest"
	"github.com/nsd-bridge/nsd-go/pkg/log"
	"github.com/nsd-bridge/nsd-go/pkg/nsderr"
	"github.com/nsd-bridge/nsd-go/pkg/txt"
)

func service() discovery.Descriptor {
	return discovery.Descriptor{Name: "svc", Type: "_http._tcp", Port: 8080}
}

func TestRegistrationReportsPublishedName(t *testing.T) {
	engine := discoverytest.New()
	engine.AutoPublish = true
	engine.Rename = func(name string) string { return name + " (2)" }
	h := newHarness(t, engine, Config{})

	require.NoError(t, h.b.Register("h2", service()))

	events := h.flush(t)
	require.Len(t, events, 1)
	assert.Equal(t, EventRegistrationSuccessful, events[0].Kind)
	assert.Equal(t, "h2", events[0].Handle)
	assert.Equal(t, "svc (2)", events[0].Service.Name)

	msg := events[0].Message()
	assert.Equal(t, "svc (2)", msg.ServiceName)
	assert.Empty(t, msg.ServiceType)
	assert.Zero(t, msg.ServicePort)

	sessions := h.b.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, "registered", sessions[0].State)
	assert.Equal(t, "svc (2)", sessions[0].Service.Name)
}

func TestRegisterValidation(t *testing.T) {
	h := newHarness(t, discoverytest.New(), Config{})

	tests := []struct {
		name string
		d    discovery.Descriptor
	}{
		{"Empty", discovery.Descriptor{}},
		{"MissingName", discovery.Descriptor{Type: "_http._tcp", Port: 80}},
		{"MissingType", discovery.Descriptor{Name: "svc", Port: 80}},
		{"MissingPort", discovery.Descriptor{Name: "svc", Type: "_http._tcp"}},
		{"BadTXTKey", discovery.Descriptor{Name: "svc", Type: "_http._tcp", Port: 80, TXT: txt.Record{"a=b": nil}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.b.Register("h", tt.d)
			require.Error(t, err)
			assert.Equal(t, nsderr.IllegalArgument, nsderr.CauseOf(err))
		})
	}
	assert.Empty(t, h.engine.Calls())
}

func TestRegisterPassesHostAndTXT(t *testing.T) {
	h := newHarness(t, discoverytest.New(), Config{})

	d := service()
	d.Type = "_http._tcp."
	d.Host = "box.local"
	d.TXT = txt.Record{"v": []byte("1"), "flag": nil}
	require.NoError(t, h.b.Register("h", d))

	calls := h.engine.CallsTo(discoverytest.MethodPublish)
	require.Len(t, calls, 1)
	assert.Equal(t, "_http._tcp", calls[0].Descriptor.Type)
	assert.Equal(t, "box.local", calls[0].Descriptor.Host)
	assert.Equal(t, d.TXT, calls[0].Descriptor.TXT)
}

func TestPublishFailure(t *testing.T) {
	h := newHarness(t, discoverytest.New(), Config{})

	require.NoError(t, h.b.Register("h", service()))
	h.engine.FirePublishFailed(h.lastKey(t, discoverytest.MethodPublish), nsderr.CodeCollision)

	events := h.flush(t)
	require.Len(t, events, 1)
	assert.Equal(t, EventRegistrationFailed, events[0].Kind)
	assert.Equal(t, "service could not be published: name already in use", events[0].Err.Message)

	err := h.b.Unregister("h")
	require.Error(t, err)
	assert.Equal(t, nsderr.IllegalArgument, nsderr.CauseOf(err))
}

func TestEngineRefusingPublish(t *testing.T) {
	h := newHarness(t, discoverytest.New(), Config{})
	h.engine.FailNext(discoverytest.MethodPublish, nsderr.WithCode(nsderr.CodePortInUse, errors.New("in use")))

	require.NoError(t, h.b.Register("h", service()))

	events := h.flush(t)
	require.Len(t, events, 1)
	assert.Equal(t, EventRegistrationFailed, events[0].Kind)
	assert.Equal(t, "port is already in use", events[0].Err.Message)
	assert.Empty(t, h.b.Sessions())
}

func TestUnregister(t *testing.T) {
	h := newHarness(t, discoverytest.New(), Config{})

	require.NoError(t, h.b.Register("h", service()))
	key := h.lastKey(t, discoverytest.MethodPublish)
	h.engine.FirePublished(key, "svc")

	require.NoError(t, h.b.Unregister("h"))
	err := h.b.Unregister("h")
	require.Error(t, err)
	assert.Equal(t, nsderr.AlreadyActive, nsderr.CauseOf(err))

	h.engine.FireWithdrawn(key)
	assert.Equal(t, []EventKind{
		EventRegistrationSuccessful,
		EventUnregistrationSuccessful,
	}, kindsOf(h.flush(t)))
	assert.Empty(t, h.b.Sessions())
}

func TestUnregisterDeferredUntilPublished(t *testing.T) {
	h := newHarness(t, discoverytest.New(), Config{})

	require.NoError(t, h.b.Register("h", service()))
	key := h.lastKey(t, discoverytest.MethodPublish)

	require.NoError(t, h.b.Unregister("h"))
	assert.Empty(t, h.engine.CallsTo(discoverytest.MethodWithdraw))

	h.engine.FirePublished(key, "svc")
	require.Len(t, h.engine.CallsTo(discoverytest.MethodWithdraw), 1)
	h.engine.FireWithdrawn(key)

	assert.Equal(t, []EventKind{
		EventRegistrationSuccessful,
		EventUnregistrationSuccessful,
	}, kindsOf(h.flush(t)))
	assert.Equal(t, log.OutcomeDeferred, h.plog.callbacks("Published")[0].Outcome)
}

func TestWithdrawFailure(t *testing.T) {
	h := newHarness(t, discoverytest.New(), Config{})

	require.NoError(t, h.b.Register("h", service()))
	key := h.lastKey(t, discoverytest.MethodPublish)
	h.engine.FirePublished(key, "svc")
	require.NoError(t, h.b.Unregister("h"))
	h.engine.FireWithdrawFailed(key, nsderr.CodeUnsupported)

	events := h.flush(t)
	require.Len(t, events, 2)
	assert.Equal(t, EventUnregistrationFailed, events[1].Kind)
	assert.Equal(t, "unregister is not supported by the discovery engine", events[1].Err.Message)
}

func TestUnregisterUnknownHandle(t *testing.T) {
	h := newHarness(t, discoverytest.New(), Config{})

	err := h.b.Unregister("nope")
	require.Error(t, err)
	assert.Equal(t, nsderr.IllegalArgument, nsderr.CauseOf(err))
}

func TestRegisterDuplicateHandle(t *testing.T) {
	engine := discoverytest.New()
	engine.AutoPublish = true
	h := newHarness(t, engine, Config{})

	require.NoError(t, h.b.Register("h", service()))
	err := h.b.Register("h", service())
	require.Error(t, err)
	assert.Equal(t, nsderr.AlreadyActive, nsderr.CauseOf(err))
}
