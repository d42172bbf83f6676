// Package txt encodes and decodes DNS-SD TXT records (RFC 6763 section 6).
//
// A Record maps attribute keys to values. Three value states are kept apart:
//
//	rec["a"] = []byte("x") // present value      -> "a=x"
//	rec["b"] = []byte{}    // present empty value -> "b="
//	rec["c"] = nil         // no value            -> "c"
//
// Encode and Decode are exact inverses for all three states. Some native
// engines are not: they report a present empty value as "no value". Callers
// that receive records from an engine must not rely on the empty state
// surviving a round trip through it.
package txt
