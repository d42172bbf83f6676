package bridge

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/nsd-bridge/nsd-go/pkg/discovery"
	"github.com/nsd-bridge/nsd-go/pkg/nsderr"
)

// OpKind is the kind of operation a handle names.
type OpKind uint8

const (
	OpDiscovery OpKind = iota
	OpResolve
	OpRegistration
)

// String returns the operation kind name.
func (k OpKind) String() string {
	switch k {
	case OpDiscovery:
		return "discovery"
	case OpResolve:
		return "resolve"
	case OpRegistration:
		return "registration"
	default:
		return "unknown"
	}
}

// table maps handles and engine keys to sessions of one kind.
//
// The engine never sees a handle. Each session gets a fresh key, so a
// callback for an operation that ended cannot reach a later session that
// reuses the handle.
type table[S any] struct {
	byHandle map[string]*S
	byKey    map[string]*S
}

func newTable[S any]() table[S] {
	return table[S]{
		byHandle: make(map[string]*S),
		byKey:    make(map[string]*S),
	}
}

func (t table[S]) insert(handle, key string, s *S) {
	t.byHandle[handle] = s
	t.byKey[key] = s
}

// remove deletes the session stored under handle and key. It reports false
// if they no longer name s.
func (t table[S]) remove(handle, key string, s *S) bool {
	if t.byKey[key] != s {
		return false
	}
	delete(t.byKey, key)
	if t.byHandle[handle] == s {
		delete(t.byHandle, handle)
	}
	return true
}

// registry is the single owner of handle state. Sessions are created and
// removed only here.
type registry struct {
	mu            sync.Mutex
	seq           atomic.Uint64
	discoveries   table[discoverySession]
	resolves      table[resolveRequest]
	registrations table[registrationSession]
}

func newRegistry() *registry {
	return &registry{
		discoveries:   newTable[discoverySession](),
		resolves:      newTable[resolveRequest](),
		registrations: newTable[registrationSession](),
	}
}

// newKey returns an engine key for handle.
func (r *registry) newKey(kind OpKind, handle string) string {
	return fmt.Sprintf("%s/%s#%d", kind, handle, r.seq.Add(1))
}

func requireHandle(handle string) error {
	if handle == "" {
		return nsderr.New(nsderr.IllegalArgument, "expected handle")
	}
	return nil
}

func alreadyActive(kind OpKind, handle string) error {
	return nsderr.Newf(nsderr.AlreadyActive, "%s %q already active", kind, handle)
}

func unknownHandle(kind OpKind, handle string) error {
	return nsderr.Newf(nsderr.IllegalArgument, "unknown %s handle %q", kind, handle)
}

// beginDiscovery creates the session of a browse for serviceType.
func (r *registry) beginDiscovery(handle, serviceType string) (*discoverySession, error) {
	if err := requireHandle(handle); err != nil {
		return nil, err
	}
	if err := discovery.ValidateType(serviceType); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.discoveries.byHandle[handle]; exists {
		return nil, alreadyActive(OpDiscovery, handle)
	}
	s := newDiscoverySession(handle, r.newKey(OpDiscovery, handle), discovery.ServiceType(serviceType))
	r.discoveries.insert(handle, s.key, s)
	return s, nil
}

// discovery returns the browse session of handle.
func (r *registry) discovery(handle string) (*discoverySession, error) {
	if err := requireHandle(handle); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.discoveries.byHandle[handle]
	if !ok {
		return nil, unknownHandle(OpDiscovery, handle)
	}
	return s, nil
}

// discoveryByKey returns the session a callback belongs to, or nil if it is stale.
func (r *registry) discoveryByKey(key string) *discoverySession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.discoveries.byKey[key]
}

// endDiscovery removes s. It reports false if s was already removed.
func (r *registry) endDiscovery(s *discoverySession) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.discoveries.remove(s.handle, s.key, s)
}

// beginResolve creates a resolve request for d.
func (r *registry) beginResolve(handle string, d discovery.Descriptor) (*resolveRequest, error) {
	if err := requireHandle(handle); err != nil {
		return nil, err
	}
	if err := d.ValidateForResolve(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.resolves.byHandle[handle]; exists {
		return nil, alreadyActive(OpResolve, handle)
	}
	req := newResolveRequest(handle, r.newKey(OpResolve, handle), d.Normalized())
	r.resolves.insert(handle, req.key, req)
	return req, nil
}

func (r *registry) resolveByKey(key string) *resolveRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolves.byKey[key]
}

func (r *registry) endResolve(req *resolveRequest) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolves.remove(req.handle, req.key, req)
}

// beginRegistration creates the session that publishes d.
func (r *registry) beginRegistration(handle string, d discovery.Descriptor) (*registrationSession, error) {
	if err := requireHandle(handle); err != nil {
		return nil, err
	}
	if err := d.ValidateForRegister(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.registrations.byHandle[handle]; exists {
		return nil, alreadyActive(OpRegistration, handle)
	}
	s := newRegistrationSession(handle, r.newKey(OpRegistration, handle), d.Normalized())
	r.registrations.insert(handle, s.key, s)
	return s, nil
}

func (r *registry) registration(handle string) (*registrationSession, error) {
	if err := requireHandle(handle); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.registrations.byHandle[handle]
	if !ok {
		return nil, unknownHandle(OpRegistration, handle)
	}
	return s, nil
}

func (r *registry) registrationByKey(key string) *registrationSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registrations.byKey[key]
}

// endRegistration removes s. It reports false if s was already removed.
func (r *registry) endRegistration(s *registrationSession) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registrations.remove(s.handle, s.key, s)
}

// allDiscoveries returns the live browse sessions.
func (r *registry) allDiscoveries() []*discoverySession {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*discoverySession, 0, len(r.discoveries.byHandle))
	for _, s := range r.discoveries.byHandle {
		out = append(out, s)
	}
	return out
}

// allRegistrations returns the live registration sessions.
func (r *registry) allRegistrations() []*registrationSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*registrationSession, 0, len(r.registrations.byHandle))
	for _, s := range r.registrations.byHandle {
		out = append(out, s)
	}
	return out
}

// SessionInfo describes a live handle.
type SessionInfo struct {
	Kind    OpKind
	Handle  string
	State   string
	Service discovery.Descriptor

	// Found lists the currently discovered services by name (discovery only).
	Found []discovery.Descriptor
}

// snapshot lists all live handles sorted by kind and handle.
func (r *registry) snapshot() []SessionInfo {
	r.mu.Lock()
	discoveries := make([]*discoverySession, 0, len(r.discoveries.byHandle))
	for _, s := range r.discoveries.byHandle {
		discoveries = append(discoveries, s)
	}
	resolves := make([]*resolveRequest, 0, len(r.resolves.byHandle))
	for _, req := range r.resolves.byHandle {
		resolves = append(resolves, req)
	}
	registrations := make([]*registrationSession, 0, len(r.registrations.byHandle))
	for _, s := range r.registrations.byHandle {
		registrations = append(registrations, s)
	}
	r.mu.Unlock()

	// Session locks are taken after the registry lock is released.
	var out []SessionInfo
	for _, s := range discoveries {
		out = append(out, s.info())
	}
	for _, req := range resolves {
		out = append(out, req.info())
	}
	for _, s := range registrations {
		out = append(out, s.info())
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Handle < out[j].Handle
	})
	return out
}
