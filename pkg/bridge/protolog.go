package bridge

import (
	"time"

	"github.com/nsd-bridge/nsd-go/pkg/discovery"
	"github.com/nsd-bridge/nsd-go/pkg/log"
	"github.com/nsd-bridge/nsd-go/pkg/nsderr"
	"github.com/nsd-bridge/nsd-go/pkg/wire"
)

// record stamps and forwards a protocol log event.
func (b *Bridge) record(e log.Event) {
	e.Timestamp = time.Now()
	e.SessionID = b.sessionID
	e.Engine = b.engineName
	b.plog.Log(e)
}

func (b *Bridge) logState(entity log.StateEntity, handle, oldState, newState, reason string) {
	b.record(log.Event{
		Direction: log.DirectionIn,
		Layer:     log.LayerBridge,
		Category:  log.CategoryState,
		Handle:    handle,
		StateChange: &log.StateChangeEvent{
			Entity:   entity,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

// logCallback records an engine callback and what became of it. For stale
// callbacks handle is the engine key.
func (b *Bridge) logCallback(handle, name string, d *discovery.Descriptor, code *nsderr.Code, outcome log.Outcome) {
	cb := &log.CallbackEvent{Name: name, Outcome: outcome}
	if d != nil {
		cb.Service = d.String()
	}
	if code != nil {
		c := int(*code)
		cb.Code = &c
	}

	if outcome != log.OutcomeDelivered {
		b.logger.Debug("engine callback not delivered", "handle", handle, "callback", name, "outcome", outcome.String())
	}

	b.record(log.Event{
		Direction: log.DirectionIn,
		Layer:     log.LayerEngine,
		Category:  log.CategoryCallback,
		Handle:    handle,
		Callback:  cb,
	})
}

// logMessage records a wire message. processing is set for responses.
func (b *Bridge) logMessage(dir log.Direction, msg *wire.Message, processing *time.Duration) {
	me := &log.MessageEvent{
		Kind:           msg.Kind,
		ID:             msg.ID,
		Method:         msg.Method,
		ProcessingTime: processing,
	}
	if msg.ServiceName != "" || msg.ServiceType != "" {
		me.Service = descriptorFromMessage(msg).String()
	}
	switch {
	case msg.ErrorCause != "":
		me.Cause = msg.ErrorCause
		me.Text = msg.ErrorMessage
	case msg.Code != "":
		me.Cause = msg.Code
		me.Text = msg.Message
	}

	b.record(log.Event{
		Direction: dir,
		Layer:     log.LayerWire,
		Category:  log.CategoryMessage,
		Handle:    msg.Handle,
		Message:   me,
	})
}
