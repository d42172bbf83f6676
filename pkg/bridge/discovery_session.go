package bridge

import (
	"sync"

	"github.com/nsd-bridge/nsd-go/pkg/discovery"
	"github.com/nsd-bridge/nsd-go/pkg/log"
	"github.com/nsd-bridge/nsd-go/pkg/nsderr"
)

type discoveryState uint8

const (
	discoveryIdle discoveryState = iota
	discoveryStarting
	discoveryActive
	discoveryStopping
	discoveryFailed
)

func (s discoveryState) String() string {
	switch s {
	case discoveryIdle:
		return "idle"
	case discoveryStarting:
		return "starting"
	case discoveryActive:
		return "active"
	case discoveryStopping:
		return "stopping"
	case discoveryFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// discoverySession is the state of one browse handle.
type discoverySession struct {
	handle      string
	key         string
	serviceType string

	mu            sync.Mutex
	state         discoveryState
	stopRequested bool
	capability    discovery.Capability // non-nil while a reference is held
	found         *discovery.DiscoveredSet

	// done is closed when the session leaves the registry.
	done chan struct{}
}

func newDiscoverySession(handle, key, serviceType string) *discoverySession {
	return &discoverySession{
		handle:      handle,
		key:         key,
		serviceType: serviceType,
		found:       discovery.NewDiscoveredSet(),
		done:        make(chan struct{}),
	}
}

func (s *discoverySession) info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionInfo{
		Kind:    OpDiscovery,
		Handle:  s.handle,
		State:   s.state.String(),
		Service: discovery.Descriptor{Type: s.serviceType},
		Found:   s.found.Services(),
	}
}

// releaseCapability drops the capability reference, at most once.
// Caller holds s.mu.
func (s *discoverySession) releaseCapability() {
	if s.capability != nil {
		s.capability.Release()
		s.capability = nil
	}
}

// setDiscoveryState changes the state of s. Caller holds s.mu.
func (b *Bridge) setDiscoveryState(s *discoverySession, state discoveryState, reason string) {
	old := s.state
	s.state = state
	b.logState(log.StateEntityDiscovery, s.handle, old.String(), state.String(), reason)
}

// StartDiscovery starts browsing for serviceType under handle. The outcome
// is reported by an onDiscoveryStartSuccessful or onDiscoveryStartFailed event.
func (b *Bridge) StartDiscovery(handle, serviceType string) error {
	if err := b.accepting(nsderr.OpStartDiscovery); err != nil {
		return err
	}

	s, err := b.registry.beginDiscovery(handle, serviceType)
	if err != nil {
		return err
	}

	if b.capability != nil {
		if err := b.capability.Acquire(); err != nil {
			b.registry.endDiscovery(s)
			b.logger.Warn("multicast capability unavailable", "handle", handle, "error", err)
			if nsderr.CauseOf(err) != nsderr.SecurityIssue {
				return nsderr.New(nsderr.SecurityIssue, nsderr.MessageOf(err))
			}
			return err
		}
	}

	s.mu.Lock()
	s.capability = b.capability
	b.setDiscoveryState(s, discoveryStarting, "")
	s.mu.Unlock()

	b.logger.Info("starting discovery", "handle", handle, "type", s.serviceType)

	if err := b.engine.StartBrowse(s.key, s.serviceType, b.listener); err != nil {
		b.logger.Warn("engine refused browse", "handle", handle, "error", err)
		b.failDiscoveryStart(s, nsderr.Classify(err))
	}
	return nil
}

// StopDiscovery stops the browse of handle. A stop issued while the browse
// is still starting takes effect once the engine reports the start.
func (b *Bridge) StopDiscovery(handle string) error {
	s, err := b.registry.discovery(handle)
	if err != nil {
		return err
	}

	s.mu.Lock()
	switch s.state {
	case discoveryIdle, discoveryStarting:
		s.stopRequested = true
		s.mu.Unlock()
		b.logger.Debug("stop deferred until discovery started", "handle", handle)
		return nil

	case discoveryStopping:
		s.mu.Unlock()
		return nsderr.Newf(nsderr.AlreadyActive, "discovery %q is already stopping", handle)

	case discoveryActive:
		b.setDiscoveryState(s, discoveryStopping, "stop requested")
		s.releaseCapability()
		s.mu.Unlock()
		b.issueStopBrowse(s)
		return nil

	default:
		s.mu.Unlock()
		return unknownHandle(OpDiscovery, handle)
	}
}

func (b *Bridge) issueStopBrowse(s *discoverySession) {
	if err := b.engine.StopBrowse(s.key); err != nil {
		b.logger.Warn("engine refused to stop browse", "handle", s.handle, "error", err)
		code := nsderr.Classify(err)
		b.finishDiscovery(s, &code)
	}
}

// failDiscoveryStart ends s after a failed start.
func (b *Bridge) failDiscoveryStart(s *discoverySession, code nsderr.Code) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !b.registry.endDiscovery(s) {
		return
	}
	b.setDiscoveryState(s, discoveryFailed, "start failed")
	s.releaseCapability()
	close(s.done)
	b.emit(failure(EventDiscoveryStartFailed, s.handle, code, nsderr.OpStartDiscovery))
}

// finishDiscovery ends s after its browse ended. A nil code means the
// browse stopped as requested.
func (b *Bridge) finishDiscovery(s *discoverySession, code *nsderr.Code) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !b.registry.endDiscovery(s) {
		return
	}
	// Still held if the engine ended the browse on its own.
	s.releaseCapability()
	close(s.done)

	if code == nil {
		b.setDiscoveryState(s, discoveryIdle, "stopped")
		b.emit(Event{Kind: EventDiscoveryStopSuccessful, Handle: s.handle})
		return
	}
	b.setDiscoveryState(s, discoveryFailed, "stop failed")
	b.emit(failure(EventDiscoveryStopFailed, s.handle, *code, nsderr.OpStopDiscovery))
}

func (b *Bridge) onBrowseStarted(key string) {
	s := b.registry.discoveryByKey(key)
	if s == nil {
		b.logCallback(key, "BrowseStarted", nil, nil, log.OutcomeStale)
		return
	}

	s.mu.Lock()
	if s.state != discoveryStarting {
		s.mu.Unlock()
		b.logCallback(s.handle, "BrowseStarted", nil, nil, log.OutcomeStale)
		return
	}

	b.setDiscoveryState(s, discoveryActive, "")
	b.emit(Event{Kind: EventDiscoveryStartSuccessful, Handle: s.handle})

	deferred := s.stopRequested
	if deferred {
		b.setDiscoveryState(s, discoveryStopping, "deferred stop")
		s.releaseCapability()
	}
	s.mu.Unlock()

	if deferred {
		b.logCallback(s.handle, "BrowseStarted", nil, nil, log.OutcomeDeferred)
		b.issueStopBrowse(s)
		return
	}
	b.logCallback(s.handle, "BrowseStarted", nil, nil, log.OutcomeDelivered)
}

func (b *Bridge) onBrowseStartFailed(key string, code nsderr.Code) {
	s := b.registry.discoveryByKey(key)
	if s == nil {
		b.logCallback(key, "BrowseStartFailed", nil, &code, log.OutcomeStale)
		return
	}
	b.logCallback(s.handle, "BrowseStartFailed", nil, &code, log.OutcomeDelivered)
	b.failDiscoveryStart(s, code)
}

func (b *Bridge) onServiceFound(key string, d discovery.Descriptor) {
	s := b.registry.discoveryByKey(key)
	if s == nil {
		b.logCallback(key, "ServiceFound", &d, nil, log.OutcomeStale)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != discoveryActive && s.state != discoveryStopping {
		b.logCallback(s.handle, "ServiceFound", &d, nil, log.OutcomeStale)
		return
	}

	d = d.Normalized()
	if d.Type == "" {
		d.Type = s.serviceType
	}
	if !s.found.Add(d) {
		if !b.quirks.DuplicateFound {
			b.logger.Warn("engine reported a service twice", "handle", s.handle, "service", d.Name)
		}
		b.logCallback(s.handle, "ServiceFound", &d, nil, log.OutcomeDuplicate)
		return
	}

	b.logCallback(s.handle, "ServiceFound", &d, nil, log.OutcomeDelivered)
	b.emit(Event{Kind: EventServiceDiscovered, Handle: s.handle, Service: d})
}

func (b *Bridge) onServiceLost(key string, d discovery.Descriptor) {
	s := b.registry.discoveryByKey(key)
	if s == nil {
		b.logCallback(key, "ServiceLost", &d, nil, log.OutcomeStale)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if d.Type == "" {
		d.Type = s.serviceType
	}
	stored, ok := s.found.Remove(d)
	if !ok {
		b.logCallback(s.handle, "ServiceLost", &d, nil, log.OutcomeUnknown)
		return
	}

	b.logCallback(s.handle, "ServiceLost", &stored, nil, log.OutcomeDelivered)
	b.emit(Event{Kind: EventServiceLost, Handle: s.handle, Service: stored})
}

func (b *Bridge) onBrowseStopped(key string) {
	s := b.registry.discoveryByKey(key)
	if s == nil {
		b.logCallback(key, "BrowseStopped", nil, nil, log.OutcomeStale)
		return
	}
	b.logCallback(s.handle, "BrowseStopped", nil, nil, log.OutcomeDelivered)
	b.finishDiscovery(s, nil)
}

func (b *Bridge) onBrowseStopFailed(key string, code nsderr.Code) {
	s := b.registry.discoveryByKey(key)
	if s == nil {
		b.logCallback(key, "BrowseStopFailed", nil, &code, log.OutcomeStale)
		return
	}
	b.logCallback(s.handle, "BrowseStopFailed", nil, &code, log.OutcomeDelivered)
	b.finishDiscovery(s, &code)
}
