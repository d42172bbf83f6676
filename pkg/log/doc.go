// Package log provides structured protocol logging for the DNS-SD bridge.
//
// This package defines the Logger interface and Event types for capturing
// protocol-level events at multiple layers (wire, bridge, engine).
// It is separate from operational logging (slog) - protocol capture provides
// a complete machine-readable trace of requests, engine callbacks and the
// events they produced.
//
// # Basic Usage
//
// Applications configure logging by providing a Logger implementation:
//
//	// For development: log to console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/var/log/nsd/bridge.nlog")
//
//	// Both: use MultiLogger
//	cfg.ProtocolLogger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    log.NewFileLogger("/var/log/nsd/bridge.nlog"),
//	)
//
// # Event Types
//
// Events are captured at multiple layers:
//   - Wire: Requests, responses and events exchanged with the client (MessageEvent)
//   - Engine: Native engine callbacks, including suppressed ones (CallbackEvent)
//   - Bridge: Per-handle session state changes (StateChangeEvent)
//
// Errors have a dedicated event type.
//
// # File Format
//
// Log files are CBOR sequences with the .nlog extension. The nsd-log CLI
// tool provides viewing and statistics.
package log
