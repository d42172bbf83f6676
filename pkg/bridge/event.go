package bridge

import (
	"github.com/nsd-bridge/nsd-go/pkg/discovery"
	"github.com/nsd-bridge/nsd-go/pkg/nsderr"
	"github.com/nsd-bridge/nsd-go/pkg/wire"
)

// EventKind identifies a client event.
type EventKind uint8

const (
	EventDiscoveryStartSuccessful EventKind = iota + 1
	EventDiscoveryStartFailed
	EventDiscoveryStopSuccessful
	EventDiscoveryStopFailed
	EventServiceDiscovered
	EventServiceLost
	EventResolveSuccessful
	EventResolveFailed
	EventRegistrationSuccessful
	EventRegistrationFailed
	EventUnregistrationSuccessful
	EventUnregistrationFailed
)

var eventNames = map[EventKind]string{
	EventDiscoveryStartSuccessful: wire.EventDiscoveryStartSuccessful,
	EventDiscoveryStartFailed:     wire.EventDiscoveryStartFailed,
	EventDiscoveryStopSuccessful:  wire.EventDiscoveryStopSuccessful,
	EventDiscoveryStopFailed:      wire.EventDiscoveryStopFailed,
	EventServiceDiscovered:        wire.EventServiceDiscovered,
	EventServiceLost:              wire.EventServiceLost,
	EventResolveSuccessful:        wire.EventResolveSuccessful,
	EventResolveFailed:            wire.EventResolveFailed,
	EventRegistrationSuccessful:   wire.EventRegistrationSuccessful,
	EventRegistrationFailed:       wire.EventRegistrationFailed,
	EventUnregistrationSuccessful: wire.EventUnregistrationSuccessful,
	EventUnregistrationFailed:     wire.EventUnregistrationFailed,
}

// String returns the protocol event name.
func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return "unknown"
}

// IsFailure reports whether the event carries an error.
func (k EventKind) IsFailure() bool {
	switch k {
	case EventDiscoveryStartFailed, EventDiscoveryStopFailed, EventResolveFailed,
		EventRegistrationFailed, EventUnregistrationFailed:
		return true
	}
	return false
}

// Event is an asynchronous outcome reported to the client.
type Event struct {
	Kind   EventKind
	Handle string

	// Service is set for discovered, lost and resolved services. For
	// EventRegistrationSuccessful only Service.Name is set: the name the
	// service was published under.
	Service discovery.Descriptor

	// Err is set for failure events.
	Err *nsderr.Error
}

// Message converts the event to its wire form.
func (e Event) Message() *wire.Message {
	msg := &wire.Message{
		Kind:   wire.KindEvent,
		Method: e.Kind.String(),
		Handle: e.Handle,
	}

	switch e.Kind {
	case EventServiceDiscovered, EventServiceLost, EventResolveSuccessful:
		setService(msg, e.Service)
	case EventRegistrationSuccessful:
		msg.ServiceName = e.Service.Name
	}

	if e.Err != nil {
		msg.ErrorCause = e.Err.Cause.String()
		msg.ErrorMessage = e.Err.Message
	}
	return msg
}

// setService copies d into the service fields of msg.
func setService(msg *wire.Message, d discovery.Descriptor) {
	msg.ServiceName = d.Name
	msg.ServiceType = discovery.ServiceType(d.Type)
	msg.ServiceHost = d.Host
	msg.ServicePort = d.Port
	if d.TXT != nil {
		msg.ServiceTXT = d.TXT.Clone()
	}
}

// failure creates a failure event from a native code.
func failure(kind EventKind, handle string, code nsderr.Code, op nsderr.Op) Event {
	cause, message := nsderr.Map(code, op)
	return Event{Kind: kind, Handle: handle, Err: nsderr.New(cause, message)}
}
