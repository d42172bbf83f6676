package txt

import "bytes"

// Strings converts r to the "key=value" string slice used by mDNS libraries.
// Entries without a value are rendered as the bare key.
func Strings(r Record) []string {
	out := make([]string, 0, len(r))
	for _, key := range r.Keys() {
		value := r[key]
		if value == nil {
			out = append(out, key)
			continue
		}
		out = append(out, key+"="+string(value))
	}
	return out
}

// FromStrings parses a "key=value" string slice into a Record with the same
// rules as Decode. Strings longer than MaxStringLen cannot appear on the wire
// and are ignored. A slice without any entries yields a nil Record.
func FromStrings(strs []string) Record {
	var buf bytes.Buffer
	for _, s := range strs {
		if len(s) > MaxStringLen {
			continue
		}
		buf.WriteByte(byte(len(s)))
		buf.WriteString(s)
	}

	r, err := Decode(buf.Bytes())
	if err != nil || len(r) == 0 {
		return nil
	}
	return r
}
