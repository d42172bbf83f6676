package log

import (
	"time"

	"github.com/nsd-bridge/nsd-go/pkg/wire"
)

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID identifies the bridge instance (UUID).
	SessionID string `cbor:"2,keyasint"`

	// Direction indicates message flow relative to the bridge.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// Handle is the client handle the event belongs to.
	Handle string `cbor:"6,keyasint,omitempty"`

	// Engine names the discovery engine (e.g. "zeroconf").
	Engine string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Message     *MessageEvent     `cbor:"10,keyasint,omitempty"` // Wire layer
	Callback    *CallbackEvent    `cbor:"11,keyasint,omitempty"` // Engine layer
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"` // Bridge sessions
	Error       *ErrorEventData   `cbor:"13,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates a message into the bridge (client request or engine callback).
	DirectionIn Direction = 0
	// DirectionOut indicates a message out of the bridge (response, event or engine call).
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which layer captured the event.
type Layer uint8

const (
	// LayerWire is the client protocol layer.
	LayerWire Layer = 0
	// LayerBridge is the session layer.
	LayerBridge Layer = 1
	// LayerEngine is the native engine boundary.
	LayerEngine Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerWire:
		return "WIRE"
	case LayerBridge:
		return "BRIDGE"
	case LayerEngine:
		return "ENGINE"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a protocol message (request/response/event).
	CategoryMessage Category = 0
	// CategoryCallback indicates a native engine callback.
	CategoryCallback Category = 1
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryCallback:
		return "CALLBACK"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// MessageEvent captures a protocol message at the wire layer.
type MessageEvent struct {
	// Kind distinguishes request/response/event.
	Kind wire.Kind `cbor:"1,keyasint"`

	// ID correlates request/response pairs (0 for events).
	ID uint32 `cbor:"2,keyasint,omitempty"`

	// Method is the request method or event name.
	Method string `cbor:"3,keyasint,omitempty"`

	// Service describes the service carried by the message, if any.
	Service string `cbor:"4,keyasint,omitempty"`

	// Cause is the error cause of a failed response or failure event.
	Cause string `cbor:"5,keyasint,omitempty"`

	// Text is the error message of a failed response or failure event.
	Text string `cbor:"6,keyasint,omitempty"`

	// ProcessingTime is the duration from request receipt to response send (response only).
	// Stored as nanoseconds.
	ProcessingTime *time.Duration `cbor:"7,keyasint,omitempty"`
}

// CallbackEvent captures a callback delivered by the discovery engine.
type CallbackEvent struct {
	// Name is the callback (e.g. "ServiceFound").
	Name string `cbor:"1,keyasint"`

	// Service describes the reported service, if any.
	Service string `cbor:"2,keyasint,omitempty"`

	// Code is the native error code of failure callbacks.
	Code *int `cbor:"3,keyasint,omitempty"`

	// Outcome says what the bridge did with the callback.
	Outcome Outcome `cbor:"4,keyasint"`
}

// Outcome is the bridge's handling of an engine callback.
type Outcome uint8

const (
	// OutcomeDelivered means the callback produced a client event.
	OutcomeDelivered Outcome = 0
	// OutcomeDuplicate means the callback repeated an already reported service.
	OutcomeDuplicate Outcome = 1
	// OutcomeUnknown means a lost callback named a service never reported found.
	OutcomeUnknown Outcome = 2
	// OutcomeStale means the handle was no longer registered.
	OutcomeStale Outcome = 3
	// OutcomeDeferred means the callback completed an operation that a
	// queued stop or unregister follows up on.
	OutcomeDeferred Outcome = 4
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "DELIVERED"
	case OutcomeDuplicate:
		return "DUPLICATE"
	case OutcomeUnknown:
		return "UNKNOWN_SERVICE"
	case OutcomeStale:
		return "STALE"
	case OutcomeDeferred:
		return "DEFERRED"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent captures session lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityDiscovery indicates a discovery session state change.
	StateEntityDiscovery StateEntity = 0
	// StateEntityResolve indicates a resolve state change.
	StateEntityResolve StateEntity = 1
	// StateEntityRegistration indicates a registration session state change.
	StateEntityRegistration StateEntity = 2
	// StateEntityBridge indicates a bridge lifecycle change.
	StateEntityBridge StateEntity = 3
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityDiscovery:
		return "DISCOVERY"
	case StateEntityResolve:
		return "RESOLVE"
	case StateEntityRegistration:
		return "REGISTRATION"
	case StateEntityBridge:
		return "BRIDGE"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Code is the error code (if applicable).
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
