// Package nsderr defines the error taxonomy of the discovery bridge.
//
// Every failure that reaches a client is expressed as one of five causes:
//
//   - IllegalArgument: malformed or missing request fields
//   - AlreadyActive:   the engine refused because the operation is already running
//   - MaxLimit:        the engine refused because of resource limits
//   - SecurityIssue:   a required platform capability (multicast access) is missing
//   - InternalError:   everything else, including unknown native codes
//
// Native engines report failures as Code values. Map turns a (Code, Op) pair
// into a (Cause, message) pair and never fails, so raw native codes are never
// exposed to clients.
package nsderr
