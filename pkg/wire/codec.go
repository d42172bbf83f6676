package wire

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// encMode is the CBOR encoder mode for bridge messages.
// Configured for deterministic encoding.
var encMode cbor.EncMode

// decMode is the CBOR decoder mode for bridge messages.
var decMode cbor.DecMode

func init() {
	var err error

	// Configure encoder for deterministic output
	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical, // Deterministic key ordering
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull, // nil TXT value -> null
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	// Configure decoder to be lenient for forward compatibility
	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet, // Ignore duplicate keys (last wins)
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// Marshal encodes a value to CBOR bytes.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR bytes into a value.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// NewDecoder creates a new CBOR decoder that reads from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}

// EncodeMessage encodes a message to CBOR bytes.
func EncodeMessage(msg *Message) ([]byte, error) {
	if err := msg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}
	return Marshal(msg)
}

// DecodeMessage decodes CBOR bytes into a message.
// A message that decodes but fails validation is returned together with the
// error so the caller can still correlate a reply.
func DecodeMessage(data []byte) (*Message, error) {
	var msg Message
	if err := Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}
	if err := msg.Validate(); err != nil {
		return &msg, fmt.Errorf("invalid message: %w", err)
	}
	return &msg, nil
}

// Stream reads and writes messages on a CBOR sequence.
// Reads and writes may happen concurrently, but each direction must be used
// from one goroutine at a time.
type Stream struct {
	dec *cbor.Decoder
	w   io.Writer
}

// NewStream creates a stream reading from r and writing to w.
func NewStream(r io.Reader, w io.Writer) *Stream {
	return &Stream{dec: NewDecoder(r), w: w}
}

// Read decodes the next message. It returns io.EOF at the end of the stream.
// A message that fails validation is returned along with the error.
func (s *Stream) Read() (*Message, error) {
	var raw cbor.RawMessage
	if err := s.dec.Decode(&raw); err != nil {
		return nil, err
	}
	return DecodeMessage(raw)
}

// Write encodes msg as the next item of the sequence.
func (s *Stream) Write(msg *Message) error {
	data, err := EncodeMessage(msg)
	if err != nil {
		return err
	}
	_, err = s.w.Write(data)
	return err
}
