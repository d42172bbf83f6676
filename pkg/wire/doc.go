// Package wire defines the CBOR wire format of the DNS-SD bridge protocol.
//
// The bridge talks to its client over a stream of CBOR data items (a CBOR
// sequence, RFC 8742). Every data item is one Message. Items are
// self-delimiting, so the stream needs no additional framing.
//
// # Message Kinds
//
//   - Request: client to bridge (startDiscovery, stopDiscovery, resolve,
//     register, unregister)
//   - Response: bridge to client, acknowledges one request by ID
//   - Event: bridge to client, asynchronous result of an operation
//
// # Keys
//
// Maps use the protocol's dotted string keys ("handle", "service.name",
// "error.cause", ...) so that clients in any language can address fields by
// name.
//
// # TXT values
//
// service.txt maps attribute keys to byte strings. A CBOR null value is an
// attribute without a value ("key"), an empty byte string is an attribute
// with an empty value ("key=").
package wire
