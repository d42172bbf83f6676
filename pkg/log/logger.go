package log

// Logger receives protocol capture events from the bridge.
//
// Log is called from request goroutines, engine callback goroutines and the
// event delivery goroutine, often while a session lock is held. It must be
// safe for concurrent use and must not block.
type Logger interface {
	Log(event Event)
}

// NoopLogger drops every event. The zero value is ready to use.
type NoopLogger struct{}

// Log does nothing.
func (NoopLogger) Log(Event) {}
