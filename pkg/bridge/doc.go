// Package bridge maps client handles onto discovery engine operations.
//
// A Bridge accepts five requests (startDiscovery, stopDiscovery, resolve,
// register, unregister), each naming a client-chosen handle, and reports
// their asynchronous outcome as events. Between the client and the engine it:
//
//   - keeps one session per handle and operation kind, and drops engine
//     callbacks whose session is gone;
//   - suppresses repeated "found" reports and "lost" reports for services
//     that were never reported;
//   - runs resolves one at a time in request order;
//   - maps engine error codes onto the protocol's error causes;
//   - delivers all events from one goroutine so that events of a handle
//     arrive in the order they were produced.
//
// Validation failures are returned synchronously. Once a request has been
// accepted, every later failure is reported as an event.
package bridge
