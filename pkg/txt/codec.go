package txt

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/nsd-bridge/nsd-go/pkg/nsderr"
)

const (
	// MaxStringLen is the maximum length of one key=value string.
	MaxStringLen = 255

	// MaxRecordLen is the largest encoded record that still fits a single
	// mDNS message of 9000 bytes (RFC 6762 section 17) next to its SRV and
	// address records.
	MaxRecordLen = 8900
)

// Record is a TXT attribute map. A nil value means "no value".
type Record map[string][]byte

var (
	// ErrTruncated is returned when a length prefix points past the end of the data.
	ErrTruncated = errors.New("txt: truncated record")
)

// Clone returns a deep copy of r that preserves nil and empty values.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		if v == nil {
			out[k] = nil
			continue
		}
		out[k] = append([]byte{}, v...)
	}
	return out
}

// Keys returns the keys of r in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Equal reports whether r and o hold the same keys with byte-identical values
// and identical nil/empty states.
func (r Record) Equal(o Record) bool {
	if len(r) != len(o) {
		return false
	}
	for k, v := range r {
		ov, ok := o[k]
		if !ok {
			return false
		}
		if (v == nil) != (ov == nil) || !bytes.Equal(v, ov) {
			return false
		}
	}
	return true
}

// ValidateKey checks a key against RFC 6763 section 6.4: at least one
// character, printable US-ASCII, no '='.
func ValidateKey(key string) error {
	if key == "" {
		return nsderr.New(nsderr.IllegalArgument, "TXT key must not be empty")
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		if c < 0x20 || c > 0x7e || c == '=' {
			return nsderr.Newf(nsderr.IllegalArgument, "TXT key %q contains an illegal character", key)
		}
	}
	return nil
}

// Validate checks every entry of r without encoding it.
func (r Record) Validate() error {
	for _, key := range r.Keys() {
		if err := validateEntry(key, r[key]); err != nil {
			return err
		}
	}
	return nil
}

func validateEntry(key string, value []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if value != nil && !utf8.Valid(value) {
		return nsderr.Newf(nsderr.IllegalArgument, "TXT value of key %q is not valid UTF-8", key)
	}
	size := len(key)
	if value != nil {
		size += 1 + len(value)
	}
	if size > MaxStringLen {
		return nsderr.Newf(nsderr.IllegalArgument, "TXT entry %q exceeds %d bytes", key, MaxStringLen)
	}
	return nil
}

// Encode serializes r into the DNS-SD TXT wire format.
//
// Keys are written in sorted order. Every entry is validated before any
// output is produced, so a failing record never yields partial data.
// An empty or nil record encodes as a single empty string. Records larger
// than MaxRecordLen are rejected.
func Encode(r Record) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if len(r) == 0 {
		return []byte{0}, nil
	}

	var buf bytes.Buffer
	for _, key := range r.Keys() {
		value := r[key]
		n := len(key)
		if value != nil {
			n += 1 + len(value)
		}
		buf.WriteByte(byte(n))
		buf.WriteString(key)
		if value != nil {
			buf.WriteByte('=')
			buf.Write(value)
		}
	}
	if buf.Len() > MaxRecordLen {
		return nil, nsderr.Newf(nsderr.IllegalArgument, "TXT record of %d bytes exceeds %d bytes", buf.Len(), MaxRecordLen)
	}
	return buf.Bytes(), nil
}

// Decode parses DNS-SD TXT wire data.
//
// Empty strings and strings with an empty key are skipped. When a key
// appears more than once (compared case-insensitively) the first occurrence
// wins. Returned values never alias data.
func Decode(data []byte) (Record, error) {
	r := make(Record)
	seen := make(map[string]bool)

	for i := 0; i < len(data); {
		n := int(data[i])
		i++
		if i+n > len(data) {
			return nil, fmt.Errorf("%w: string of %d bytes at offset %d", ErrTruncated, n, i-1)
		}
		chunk := data[i : i+n]
		i += n

		key, value := splitEntry(chunk)
		if key == "" {
			continue
		}
		folded := strings.ToLower(key)
		if seen[folded] {
			continue
		}
		seen[folded] = true
		r[key] = value
	}
	return r, nil
}

// splitEntry splits a key=value string. A string without '=' yields a nil value.
func splitEntry(chunk []byte) (string, []byte) {
	idx := bytes.IndexByte(chunk, '=')
	if idx < 0 {
		return string(chunk), nil
	}
	return string(chunk[:idx]), append([]byte{}, chunk[idx+1:]...)
}
