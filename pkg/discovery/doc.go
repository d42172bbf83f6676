// Package discovery describes DNS-SD services and the native engines that
// browse, resolve and advertise them.
//
// # Descriptors
//
// A Descriptor carries name, type, host, port and TXT attributes of a service.
// Service types are compared in normalized form: leading and trailing dots are
// dropped, and types reported by an engine with a browse domain attached
// (_http._tcp.local.) are cut back to the service part (_http._tcp).
//
// # Engines
//
// An Engine is the native multicast implementation. Every operation is keyed
// by an opaque string chosen by the caller, and every callback hands that key
// back. An engine delivers exactly one terminal callback per started
// operation; a synchronous error return means the operation never started.
//
// Two engines are provided:
//   - ZeroconfEngine, built on github.com/enbility/zeroconf/v3
//   - HashicorpEngine, built on github.com/hashicorp/mdns (polling browse)
//
// # Capabilities
//
// Browsing requires multicast access. A Capability is acquired before a browse
// starts and released after it stops; MulticastLock reference counts
// acquisitions across concurrent browses.
package discovery
