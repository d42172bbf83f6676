package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nsd-bridge/nsd-go/pkg/discovery"
	"github.com/nsd-bridge/nsd-go/pkg/nsderr"
	"github.com/nsd-bridge/nsd-go/pkg/txt"
	"github.com/nsd-bridge/nsd-go/pkg/wire"
)

func TestEventMessageCarriesService(t *testing.T) {
	e := Event{
		Kind:   EventResolveSuccessful,
		Handle: "r",
		Service: discovery.Descriptor{
			Name: "printer",
			Type: "_ipp._tcp.local.",
			Host: "printer.local",
			TXT:  txt.Record{"rp": []byte("ipp/print")},
		},
	}

	msg := e.Message()
	assert.Equal(t, wire.KindEvent, msg.Kind)
	assert.Equal(t, "onResolveSuccessful", msg.Method)
	assert.Equal(t, "_ipp._tcp", msg.ServiceType)
	assert.Equal(t, "printer.local", msg.ServiceHost)
	assert.Zero(t, msg.ServicePort, "absent port stays absent")
	assert.Equal(t, map[string][]byte{"rp": []byte("ipp/print")}, msg.ServiceTXT)
	assert.Empty(t, msg.ErrorCause)
}

func TestEventMessageCarriesError(t *testing.T) {
	e := failure(EventDiscoveryStartFailed, "h1", nsderr.CodeAlreadyActive, nsderr.OpStartDiscovery)

	msg := e.Message()
	assert.Equal(t, "onDiscoveryStartFailed", msg.Method)
	assert.Equal(t, "h1", msg.Handle)
	assert.Equal(t, "alreadyActive", msg.ErrorCause)
	assert.Equal(t, "operation already active", msg.ErrorMessage)
	assert.Empty(t, msg.ServiceName)
	assert.Empty(t, msg.Code, "events report errors in error.* fields")
}

func TestEventKindNames(t *testing.T) {
	for kind := EventDiscoveryStartSuccessful; kind <= EventUnregistrationFailed; kind++ {
		name := kind.String()
		assert.NotEqual(t, "unknown", name)
		assert.Equal(t, kind.IsFailure(), name[len(name)-6:] == "Failed", name)
	}
	assert.Equal(t, "unknown", EventKind(0).String())
}
