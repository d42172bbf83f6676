package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/nsd-bridge/nsd-go/pkg/discovery"
	"github.com/nsd-bridge/nsd-go/pkg/log"
	"github.com/nsd-bridge/nsd-go/pkg/nsderr"
)

// resolveGrace is added to the resolve timeout before the gate gives up on
// an engine that never answered.
const resolveGrace = 2 * time.Second

// Config configures a Bridge.
type Config struct {
	// Logger receives operational logs. Defaults to discarding them.
	Logger *slog.Logger

	// ProtocolLogger receives protocol capture events. Defaults to NoopLogger.
	ProtocolLogger log.Logger

	// Capability is acquired for every active browse. Nil means no
	// capability is required.
	Capability discovery.Capability

	// ResolveTimeout bounds a single resolve. Defaults to
	// discovery.DefaultResolveTimeout.
	ResolveTimeout time.Duration

	// EventBuffer is the initial capacity of the event queue.
	EventBuffer int

	// EngineName is recorded in protocol log events.
	EngineName string

	// OnEvent receives every client event, in order, from a single goroutine.
	OnEvent EventSink
}

// Bridge exposes a DNS-SD engine to a client through handles.
//
// Requests are validated and acknowledged synchronously; their outcomes
// arrive later as events. A Bridge is safe for concurrent use.
type Bridge struct {
	engine     discovery.Engine
	quirks     discovery.Quirks
	listener   *engineListener
	capability discovery.Capability

	logger     *slog.Logger
	plog       log.Logger
	sessionID  string
	engineName string
	onEvent    EventSink

	registry       *registry
	gate           *resolveGate
	dispatcher     *Dispatcher
	resolveTimeout time.Duration

	closing atomic.Bool
}

// New creates a bridge over engine and starts event delivery.
func New(engine discovery.Engine, cfg Config) *Bridge {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.ProtocolLogger == nil {
		cfg.ProtocolLogger = log.NoopLogger{}
	}
	if cfg.ResolveTimeout <= 0 {
		cfg.ResolveTimeout = discovery.DefaultResolveTimeout
	}

	b := &Bridge{
		engine:         engine,
		quirks:         engine.Quirks(),
		capability:     cfg.Capability,
		logger:         cfg.Logger,
		plog:           cfg.ProtocolLogger,
		sessionID:      uuid.NewString(),
		engineName:     cfg.EngineName,
		onEvent:        cfg.OnEvent,
		registry:       newRegistry(),
		resolveTimeout: cfg.ResolveTimeout,
	}
	b.listener = &engineListener{b: b}
	b.gate = newResolveGate(b.issueResolve, b.expireResolve, cfg.ResolveTimeout+resolveGrace)
	b.dispatcher = NewDispatcher(b.deliver, cfg.EventBuffer, cfg.Logger)

	b.dispatcher.Start()
	b.gate.start()

	b.logState(log.StateEntityBridge, "", "", "running", "")
	b.logger.Info("bridge started", "session_id", b.sessionID, "engine", b.engineName)
	return b
}

// SessionID returns the identifier stamped on protocol log events.
func (b *Bridge) SessionID() string {
	return b.sessionID
}

// Sessions lists the live handles.
func (b *Bridge) Sessions() []SessionInfo {
	return b.registry.snapshot()
}

// Flush waits until every event emitted so far has been delivered.
func (b *Bridge) Flush(ctx context.Context) error {
	return b.dispatcher.Flush(ctx)
}

// accepting returns an error once shutdown has begun.
func (b *Bridge) accepting(op nsderr.Op) error {
	if b.closing.Load() {
		cause, msg := nsderr.Map(nsderr.CodeShutdown, op)
		return nsderr.New(cause, msg)
	}
	return nil
}

// emit queues e for delivery. Callers hold the lock of the session e
// belongs to, which keeps the events of one handle in order.
func (b *Bridge) emit(e Event) {
	b.dispatcher.Post(e)
}

// deliver runs on the dispatcher goroutine.
func (b *Bridge) deliver(e Event) {
	b.logMessage(log.DirectionOut, e.Message(), nil)
	if b.onEvent != nil {
		b.onEvent(e)
	}
}

// Shutdown withdraws every registration, stops every browse and fails the
// queued resolves, then closes the engine. Events produced on the way are
// delivered before Shutdown returns. Withdraw failures are returned
// together.
func (b *Bridge) Shutdown(ctx context.Context) error {
	if b.closing.Swap(true) {
		return nil
	}
	b.logState(log.StateEntityBridge, "", "running", "stopping", "shutdown")
	b.logger.Info("bridge shutting down")

	registrations := b.registry.allRegistrations()
	discoveries := b.registry.allDiscoveries()
	errs := make([]error, len(registrations))

	var g errgroup.Group
	for i, s := range registrations {
		g.Go(func() error {
			errs[i] = b.unregisterOnShutdown(ctx, s)
			return nil
		})
	}
	for _, s := range discoveries {
		g.Go(func() error {
			b.stopOnShutdown(ctx, s)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range b.gate.close() {
		b.completeResolve(r, nil, nsderr.CodeShutdown)
	}

	err := multierr.Combine(errs...)
	if cerr := b.engine.Close(); cerr != nil {
		err = multierr.Append(err, fmt.Errorf("close engine: %w", cerr))
	}

	// The engine is gone; whatever is left will never see a callback.
	for _, s := range b.registry.allRegistrations() {
		b.abandonRegistration(s)
	}
	for _, s := range b.registry.allDiscoveries() {
		b.abandonDiscovery(s)
	}

	b.logState(log.StateEntityBridge, "", "stopping", "stopped", "")
	b.logger.Debug("delivering queued events", "pending", b.dispatcher.Pending())
	b.dispatcher.Stop()

	if err != nil {
		b.logger.Warn("bridge shut down with errors", "error", err)
	} else {
		b.logger.Info("bridge stopped")
	}
	return err
}

func (b *Bridge) unregisterOnShutdown(ctx context.Context, s *registrationSession) error {
	if err := b.Unregister(s.handle); err != nil && nsderr.CauseOf(err) != nsderr.AlreadyActive {
		// Ended on its own since the snapshot was taken.
		return nil
	}

	select {
	case <-s.done:
		return s.result()
	case <-ctx.Done():
		return fmt.Errorf("unregister %q: %w", s.handle, ctx.Err())
	}
}

func (b *Bridge) stopOnShutdown(ctx context.Context, s *discoverySession) {
	if err := b.StopDiscovery(s.handle); err != nil && nsderr.CauseOf(err) != nsderr.AlreadyActive {
		return
	}

	select {
	case <-s.done:
	case <-ctx.Done():
		b.logger.Warn("browse did not stop before shutdown deadline", "handle", s.handle)
	}
}

func (b *Bridge) abandonRegistration(s *registrationSession) {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	code := nsderr.CodeShutdown
	if state == registrationIdle || state == registrationRegistering {
		b.failPublish(s, code)
		return
	}
	b.finishRegistration(s, &code)
}

func (b *Bridge) abandonDiscovery(s *discoverySession) {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	code := nsderr.CodeShutdown
	if state == discoveryIdle || state == discoveryStarting {
		b.failDiscoveryStart(s, code)
		return
	}
	b.finishDiscovery(s, &code)
}
