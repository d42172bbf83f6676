package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes protocol events to an slog.Logger.
// Useful for development when you want to see protocol events in console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger at Debug level.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("session_id", event.SessionID),
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}

	if event.Handle != "" {
		attrs = append(attrs, slog.String("handle", event.Handle))
	}
	if event.Engine != "" {
		attrs = append(attrs, slog.String("engine", event.Engine))
	}

	// Add type-specific attributes
	switch {
	case event.Message != nil:
		attrs = append(attrs,
			slog.String("msg_kind", event.Message.Kind.String()),
			slog.String("method", event.Message.Method),
		)
		if event.Message.ID != 0 {
			attrs = append(attrs, slog.Uint64("msg_id", uint64(event.Message.ID)))
		}
		if event.Message.Service != "" {
			attrs = append(attrs, slog.String("service", event.Message.Service))
		}
		if event.Message.Cause != "" {
			attrs = append(attrs,
				slog.String("cause", event.Message.Cause),
				slog.String("error_msg", event.Message.Text),
			)
		}
		if event.Message.ProcessingTime != nil {
			attrs = append(attrs, slog.Duration("processing_time", *event.Message.ProcessingTime))
		}
	case event.Callback != nil:
		attrs = append(attrs,
			slog.String("callback", event.Callback.Name),
			slog.String("outcome", event.Callback.Outcome.String()),
		)
		if event.Callback.Service != "" {
			attrs = append(attrs, slog.String("service", event.Callback.Service))
		}
		if event.Callback.Code != nil {
			attrs = append(attrs, slog.Int("native_code", *event.Callback.Code))
		}
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
		if event.Error.Code != nil {
			attrs = append(attrs, slog.Int("error_code", *event.Error.Code))
		}
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "protocol", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
