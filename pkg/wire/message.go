package wire

import (
	"fmt"
)

// Kind distinguishes requests, responses and events.
type Kind uint8

const (
	KindRequest  Kind = 1
	KindResponse Kind = 2
	KindEvent    Kind = 3
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "REQUEST"
	case KindResponse:
		return "RESPONSE"
	case KindEvent:
		return "EVENT"
	default:
		return "UNKNOWN"
	}
}

// IsValid returns true if the kind is defined.
func (k Kind) IsValid() bool {
	return k >= KindRequest && k <= KindEvent
}

// Request methods.
const (
	MethodStartDiscovery = "startDiscovery"
	MethodStopDiscovery  = "stopDiscovery"
	MethodResolve        = "resolve"
	MethodRegister       = "register"
	MethodUnregister     = "unregister"
)

// Event names.
const (
	EventDiscoveryStartSuccessful = "onDiscoveryStartSuccessful"
	EventDiscoveryStartFailed     = "onDiscoveryStartFailed"
	EventDiscoveryStopSuccessful  = "onDiscoveryStopSuccessful"
	EventDiscoveryStopFailed      = "onDiscoveryStopFailed"
	EventServiceDiscovered        = "onServiceDiscovered"
	EventServiceLost              = "onServiceLost"
	EventResolveSuccessful        = "onResolveSuccessful"
	EventResolveFailed            = "onResolveFailed"
	EventRegistrationSuccessful   = "onRegistrationSuccessful"
	EventRegistrationFailed       = "onRegistrationFailed"
	EventUnregistrationSuccessful = "onUnregistrationSuccessful"
	EventUnregistrationFailed     = "onUnregistrationFailed"
)

// Message is one item of the bridge stream.
//
// CBOR encoding (absent fields are omitted):
//
//	{
//	  "kind":          1|2|3,
//	  "id":            uint32,   // request/response correlation
//	  "method":        string,   // request method or event name
//	  "handle":        string,
//	  "service.name":  string,
//	  "service.type":  string,
//	  "service.host":  string,
//	  "service.port":  uint16,
//	  "service.txt":   {string: bytes|null},
//	  "error.cause":   string,   // events
//	  "error.message": string,   // events
//	  "code":          string,   // failed responses
//	  "message":       string    // failed responses
//	}
type Message struct {
	Kind   Kind   `cbor:"kind"`
	ID     uint32 `cbor:"id,omitempty"`
	Method string `cbor:"method,omitempty"`
	Handle string `cbor:"handle,omitempty"`

	ServiceName string            `cbor:"service.name,omitempty"`
	ServiceType string            `cbor:"service.type,omitempty"`
	ServiceHost string            `cbor:"service.host,omitempty"`
	ServicePort uint16            `cbor:"service.port,omitempty"`
	ServiceTXT  map[string][]byte `cbor:"service.txt,omitempty"`

	ErrorCause   string `cbor:"error.cause,omitempty"`
	ErrorMessage string `cbor:"error.message,omitempty"`

	Code    string `cbor:"code,omitempty"`
	Message string `cbor:"message,omitempty"`
}

// Validate checks that the message is well formed for its kind.
func (m *Message) Validate() error {
	if !m.Kind.IsValid() {
		return fmt.Errorf("invalid message kind: %d", m.Kind)
	}
	switch m.Kind {
	case KindRequest, KindEvent:
		if m.Method == "" {
			return fmt.Errorf("%s without method", m.Kind)
		}
	case KindResponse:
		if m.ID == 0 {
			return fmt.Errorf("response without request id")
		}
	}
	return nil
}

// IsSuccess returns true for a response that carries no error code.
func (m *Message) IsSuccess() bool {
	return m.Kind == KindResponse && m.Code == ""
}

// NewResponse creates a success response for req.
func NewResponse(req *Message) *Message {
	return &Message{
		Kind:   KindResponse,
		ID:     req.ID,
		Method: req.Method,
		Handle: req.Handle,
	}
}

// NewErrorResponse creates a failed response for req.
func NewErrorResponse(req *Message, code, message string) *Message {
	resp := NewResponse(req)
	resp.Code = code
	resp.Message = message
	return resp
}
