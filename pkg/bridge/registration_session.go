package bridge

import (
	"fmt"
	"sync"

	"github.com/nsd-bridge/nsd-go/pkg/discovery"
	"github.com/nsd-bridge/nsd-go/pkg/log"
	"github.com/nsd-bridge/nsd-go/pkg/nsderr"
)

type registrationState uint8

const (
	registrationIdle registrationState = iota
	registrationRegistering
	registrationRegistered
	registrationUnregistering
	registrationFailed
)

func (s registrationState) String() string {
	switch s {
	case registrationIdle:
		return "idle"
	case registrationRegistering:
		return "registering"
	case registrationRegistered:
		return "registered"
	case registrationUnregistering:
		return "unregistering"
	case registrationFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// registrationSession is the state of one registration handle.
type registrationSession struct {
	handle     string
	key        string
	descriptor discovery.Descriptor

	mu                  sync.Mutex
	state               registrationState
	unregisterRequested bool
	name                string // confirmed by the engine

	// done is closed when the session leaves the registry. err is set if
	// withdrawing the service failed.
	done chan struct{}
	err  error
}

func newRegistrationSession(handle, key string, d discovery.Descriptor) *registrationSession {
	return &registrationSession{
		handle:     handle,
		key:        key,
		descriptor: d,
		done:       make(chan struct{}),
	}
}

func (s *registrationSession) info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.descriptor
	if s.name != "" {
		d.Name = s.name
	}
	return SessionInfo{
		Kind:    OpRegistration,
		Handle:  s.handle,
		State:   s.state.String(),
		Service: d,
	}
}

// result returns the withdraw failure of s. Only valid after done is closed.
func (s *registrationSession) result() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// setRegistrationState changes the state of s. Caller holds s.mu.
func (b *Bridge) setRegistrationState(s *registrationSession, state registrationState, reason string) {
	old := s.state
	s.state = state
	b.logState(log.StateEntityRegistration, s.handle, old.String(), state.String(), reason)
}

// Register publishes d under handle. The outcome is reported by an
// onRegistrationSuccessful event carrying the published name, which may
// differ from d.Name, or by onRegistrationFailed.
func (b *Bridge) Register(handle string, d discovery.Descriptor) error {
	if err := b.accepting(nsderr.OpRegister); err != nil {
		return err
	}

	s, err := b.registry.beginRegistration(handle, d)
	if err != nil {
		return err
	}

	s.mu.Lock()
	b.setRegistrationState(s, registrationRegistering, "")
	s.mu.Unlock()

	if b.quirks.CollapsesEmptyTXT && hasEmptyValue(s.descriptor) {
		b.logger.Debug("engine publishes empty TXT values as keys without value", "handle", handle)
	}
	b.logger.Info("registering service", "handle", handle, "service", s.descriptor.String())

	if err := b.engine.Publish(s.key, s.descriptor, b.listener); err != nil {
		b.logger.Warn("engine refused publish", "handle", handle, "error", err)
		b.failPublish(s, nsderr.Classify(err))
	}
	return nil
}

// Unregister withdraws the service of handle. An unregister issued while
// the service is still being published takes effect once the engine reports
// the outcome of the publish.
func (b *Bridge) Unregister(handle string) error {
	s, err := b.registry.registration(handle)
	if err != nil {
		return err
	}

	s.mu.Lock()
	switch s.state {
	case registrationIdle, registrationRegistering:
		s.unregisterRequested = true
		s.mu.Unlock()
		b.logger.Debug("unregister deferred until registration completes", "handle", handle)
		return nil

	case registrationUnregistering:
		s.mu.Unlock()
		return nsderr.Newf(nsderr.AlreadyActive, "registration %q is already unregistering", handle)

	case registrationRegistered:
		b.setRegistrationState(s, registrationUnregistering, "unregister requested")
		s.mu.Unlock()
		b.issueWithdraw(s)
		return nil

	default:
		s.mu.Unlock()
		return unknownHandle(OpRegistration, handle)
	}
}

func (b *Bridge) issueWithdraw(s *registrationSession) {
	if err := b.engine.Withdraw(s.key); err != nil {
		b.logger.Warn("engine refused withdraw", "handle", s.handle, "error", err)
		code := nsderr.Classify(err)
		b.finishRegistration(s, &code)
	}
}

// failPublish ends s after a failed publish.
func (b *Bridge) failPublish(s *registrationSession, code nsderr.Code) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !b.registry.endRegistration(s) {
		return
	}
	b.setRegistrationState(s, registrationFailed, "publish failed")

	close(s.done)
	b.emit(failure(EventRegistrationFailed, s.handle, code, nsderr.OpRegister))
}

// finishRegistration ends s after its withdraw completed. A nil code means
// the service was withdrawn.
func (b *Bridge) finishRegistration(s *registrationSession, code *nsderr.Code) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !b.registry.endRegistration(s) {
		return
	}

	if code == nil {
		b.setRegistrationState(s, registrationIdle, "withdrawn")
		close(s.done)
		b.emit(Event{Kind: EventUnregistrationSuccessful, Handle: s.handle})
		return
	}

	b.setRegistrationState(s, registrationFailed, "withdraw failed")
	e := failure(EventUnregistrationFailed, s.handle, *code, nsderr.OpUnregister)
	s.err = fmt.Errorf("unregister %q: %w", s.handle, e.Err)
	close(s.done)
	b.emit(e)
}

func (b *Bridge) onPublished(key, name string) {
	s := b.registry.registrationByKey(key)
	if s == nil {
		b.logCallback(key, "Published", &discovery.Descriptor{Name: name}, nil, log.OutcomeStale)
		return
	}

	s.mu.Lock()
	if s.state != registrationRegistering {
		s.mu.Unlock()
		b.logCallback(s.handle, "Published", &discovery.Descriptor{Name: name}, nil, log.OutcomeStale)
		return
	}

	if name == "" {
		name = s.descriptor.Name
	}
	s.name = name
	b.setRegistrationState(s, registrationRegistered, "")
	b.emit(Event{
		Kind:    EventRegistrationSuccessful,
		Handle:  s.handle,
		Service: discovery.Descriptor{Name: name},
	})

	deferred := s.unregisterRequested
	if deferred {
		b.setRegistrationState(s, registrationUnregistering, "deferred unregister")
	}
	s.mu.Unlock()

	if name != s.descriptor.Name {
		b.logger.Info("service renamed by engine", "handle", s.handle, "requested", s.descriptor.Name, "published", name)
	}

	if deferred {
		b.logCallback(s.handle, "Published", &discovery.Descriptor{Name: name}, nil, log.OutcomeDeferred)
		b.issueWithdraw(s)
		return
	}
	b.logCallback(s.handle, "Published", &discovery.Descriptor{Name: name}, nil, log.OutcomeDelivered)
}

func (b *Bridge) onPublishFailed(key string, code nsderr.Code) {
	s := b.registry.registrationByKey(key)
	if s == nil {
		b.logCallback(key, "PublishFailed", nil, &code, log.OutcomeStale)
		return
	}
	b.logCallback(s.handle, "PublishFailed", nil, &code, log.OutcomeDelivered)
	b.failPublish(s, code)
}

func (b *Bridge) onWithdrawn(key string) {
	s := b.registry.registrationByKey(key)
	if s == nil {
		b.logCallback(key, "Withdrawn", nil, nil, log.OutcomeStale)
		return
	}
	b.logCallback(s.handle, "Withdrawn", nil, nil, log.OutcomeDelivered)
	b.finishRegistration(s, nil)
}

func (b *Bridge) onWithdrawFailed(key string, code nsderr.Code) {
	s := b.registry.registrationByKey(key)
	if s == nil {
		b.logCallback(key, "WithdrawFailed", nil, &code, log.OutcomeStale)
		return
	}
	b.logCallback(s.handle, "WithdrawFailed", nil, &code, log.OutcomeDelivered)
	b.finishRegistration(s, &code)
}

func hasEmptyValue(d discovery.Descriptor) bool {
	for _, v := range d.TXT {
		if v != nil && len(v) == 0 {
			return true
		}
	}
	return false
}
