package wire

import (
	"bytes"
	"io"
	"testing"
)

func TestMessageUsesProtocolKeys(t *testing.T) {
	msg := &Message{
		Kind:        KindRequest,
		ID:          7,
		Method:      MethodRegister,
		Handle:      "h2",
		ServiceName: "svc",
		ServiceType: "_http._tcp",
		ServicePort: 8080,
	}

	data, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("EncodeMessage failed: %v", err)
	}

	var raw map[string]any
	if err := Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	for _, key := range []string{"kind", "id", "method", "handle", "service.name", "service.type", "service.port"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("key %q missing from encoding", key)
		}
	}
	for _, key := range []string{"service.host", "service.txt", "error.cause", "code"} {
		if _, ok := raw[key]; ok {
			t.Errorf("absent field %q should be omitted", key)
		}
	}
}

func TestZeroPortOmitted(t *testing.T) {
	msg := &Message{
		Kind:        KindEvent,
		Method:      EventServiceDiscovered,
		Handle:      "h1",
		ServiceName: "printer",
		ServiceType: "_http._tcp",
	}

	data, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("EncodeMessage failed: %v", err)
	}

	var raw map[string]any
	if err := Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if _, ok := raw["service.port"]; ok {
		t.Error("service.port should be omitted when zero")
	}
}

func TestTXTValueStates(t *testing.T) {
	msg := &Message{
		Kind:   KindEvent,
		Method: EventResolveSuccessful,
		Handle: "r1",
		ServiceTXT: map[string][]byte{
			"path":  []byte("/index.html"),
			"empty": {},
			"flag":  nil,
		},
	}

	data, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("EncodeMessage failed: %v", err)
	}
	decoded, err := DecodeMessage(data)
	if err != nil {
		t.Fatalf("DecodeMessage failed: %v", err)
	}

	if got := string(decoded.ServiceTXT["path"]); got != "/index.html" {
		t.Errorf("path = %q, want %q", got, "/index.html")
	}

	empty, ok := decoded.ServiceTXT["empty"]
	if !ok || empty == nil || len(empty) != 0 {
		t.Errorf("empty = %#v, want present empty value", empty)
	}

	flag, ok := decoded.ServiceTXT["flag"]
	if !ok || flag != nil {
		t.Errorf("flag = %#v, want present key without value", flag)
	}
}

func TestMessageValidation(t *testing.T) {
	tests := []struct {
		name    string
		msg     Message
		wantErr bool
	}{
		{"valid request", Message{Kind: KindRequest, ID: 1, Method: MethodResolve}, false},
		{"valid event", Message{Kind: KindEvent, Method: EventServiceLost}, false},
		{"valid response", Message{Kind: KindResponse, ID: 1}, false},
		{"unknown kind", Message{Kind: 9, Method: MethodResolve}, true},
		{"zero kind", Message{Method: MethodResolve}, true},
		{"request without method", Message{Kind: KindRequest, ID: 1}, true},
		{"event without name", Message{Kind: KindEvent}, true},
		{"response without id", Message{Kind: KindResponse}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestResponses(t *testing.T) {
	req := &Message{Kind: KindRequest, ID: 3, Method: MethodStopDiscovery, Handle: "h1"}

	ok := NewResponse(req)
	if !ok.IsSuccess() {
		t.Error("NewResponse should be a success")
	}
	if ok.ID != 3 || ok.Handle != "h1" || ok.Method != MethodStopDiscovery {
		t.Errorf("response does not echo request: %+v", ok)
	}

	failed := NewErrorResponse(req, "illegalArgument", "unknown handle")
	if failed.IsSuccess() {
		t.Error("NewErrorResponse should not be a success")
	}
	if failed.Code != "illegalArgument" || failed.Message != "unknown handle" {
		t.Errorf("error response = %+v", failed)
	}
}

func TestUnknownFieldsIgnored(t *testing.T) {
	data, err := Marshal(map[string]any{
		"kind":    uint8(KindRequest),
		"id":      uint32(1),
		"method":  MethodStartDiscovery,
		"handle":  "h1",
		"agentId": "legacy",
	})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	msg, err := DecodeMessage(data)
	if err != nil {
		t.Fatalf("DecodeMessage failed: %v", err)
	}
	if msg.Handle != "h1" || msg.Method != MethodStartDiscovery {
		t.Errorf("decoded %+v", msg)
	}
}

func TestDecodeInvalid(t *testing.T) {
	if _, err := DecodeMessage([]byte{0xff}); err == nil {
		t.Error("expected error for malformed CBOR")
	}

	data, _ := Marshal(map[string]any{"handle": "h1"})
	if _, err := DecodeMessage(data); err == nil {
		t.Error("expected error for message without kind")
	}
}

func TestDecodeKeepsInvalidRequest(t *testing.T) {
	data, err := Marshal(&Message{Kind: KindRequest, ID: 7})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	msg, err := DecodeMessage(data)
	if err == nil {
		t.Fatal("expected error for request without method")
	}
	if msg == nil || msg.ID != 7 {
		t.Errorf("DecodeMessage returned %+v, want the request with id 7", msg)
	}
}

func TestStream(t *testing.T) {
	var buf bytes.Buffer
	out := NewStream(nil, &buf)

	msgs := []*Message{
		{Kind: KindRequest, ID: 1, Method: MethodStartDiscovery, Handle: "h1", ServiceType: "_http._tcp."},
		{Kind: KindRequest, ID: 2, Method: MethodStopDiscovery, Handle: "h1"},
	}
	for _, m := range msgs {
		if err := out.Write(m); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if err := out.Write(&Message{Kind: KindEvent}); err == nil {
		t.Error("Write should reject invalid messages")
	}

	in := NewStream(&buf, io.Discard)
	for i, want := range msgs {
		got, err := in.Read()
		if err != nil {
			t.Fatalf("Read %d failed: %v", i, err)
		}
		if got.ID != want.ID || got.Method != want.Method || got.Handle != want.Handle {
			t.Errorf("Read %d = %+v, want %+v", i, got, want)
		}
	}
	if _, err := in.Read(); err != io.EOF {
		t.Errorf("Read at end = %v, want io.EOF", err)
	}
}
