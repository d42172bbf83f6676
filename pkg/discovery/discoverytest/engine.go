// Package discoverytest provides a scripted discovery engine and a mock
// capability for tests.
package discoverytest

import (
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/nsd-bridge/nsd-go/pkg/discovery"
	"github.com/nsd-bridge/nsd-go/pkg/nsderr"
)

// Engine method names recorded in Call.Method.
const (
	MethodStartBrowse = "StartBrowse"
	MethodStopBrowse  = "StopBrowse"
	MethodResolve     = "Resolve"
	MethodPublish     = "Publish"
	MethodWithdraw    = "Withdraw"
)

// Call records one engine invocation.
type Call struct {
	Method     string
	Key        string
	Type       string
	Descriptor discovery.Descriptor
	Timeout    time.Duration
}

// Engine is a discovery.Engine whose callbacks are fired by the test.
//
// By default every operation stays pending until the test fires its
// terminal callback. AutoBrowse and AutoPublish complete browse and
// registration operations synchronously inside the engine call.
type Engine struct {
	// AutoBrowse reports BrowseStarted from StartBrowse and BrowseStopped
	// from StopBrowse.
	AutoBrowse bool

	// AutoPublish reports Published from Publish and Withdrawn from Withdraw.
	AutoPublish bool

	// Rename maps a requested name to the published one. Nil keeps the name.
	Rename func(name string) string

	// EngineQuirks is returned by Quirks. CollapsesEmptyTXT also makes the
	// engine collapse empty TXT values in reported descriptors.
	EngineQuirks discovery.Quirks

	mu            sync.Mutex
	calls         []Call
	failures      map[string]error
	browses       map[string]discovery.BrowseListener
	resolves      map[string]discovery.ResolveListener
	registrations map[string]discovery.RegistrationListener
	resolving     int
	maxResolving  int
	closed        bool
}

// New creates a scripted engine.
func New() *Engine {
	return &Engine{
		failures:      make(map[string]error),
		browses:       make(map[string]discovery.BrowseListener),
		resolves:      make(map[string]discovery.ResolveListener),
		registrations: make(map[string]discovery.RegistrationListener),
	}
}

// FailNext makes the next call to method return err.
func (e *Engine) FailNext(method string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures[method] = err
}

// Calls returns all recorded calls in order.
func (e *Engine) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Call(nil), e.calls...)
}

// CallsTo returns the recorded calls of one method in order.
func (e *Engine) CallsTo(method string) []Call {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []Call
	for _, c := range e.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// MaxConcurrentResolves returns the highest number of resolves that were
// pending at the same time.
func (e *Engine) MaxConcurrentResolves() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxResolving
}

// Closed reports whether Close was called.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// record stores c and returns the injected failure for its method.
func (e *Engine) record(c Call) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls = append(e.calls, c)
	err := e.failures[c.Method]
	delete(e.failures, c.Method)
	return err
}

// StartBrowse implements discovery.Engine.
func (e *Engine) StartBrowse(key, serviceType string, l discovery.BrowseListener) error {
	if err := e.record(Call{Method: MethodStartBrowse, Key: key, Type: serviceType}); err != nil {
		return err
	}

	e.mu.Lock()
	e.browses[key] = l
	auto := e.AutoBrowse
	e.mu.Unlock()

	if auto {
		l.BrowseStarted(key)
	}
	return nil
}

// StopBrowse implements discovery.Engine.
func (e *Engine) StopBrowse(key string) error {
	if err := e.record(Call{Method: MethodStopBrowse, Key: key}); err != nil {
		return err
	}

	e.mu.Lock()
	l, ok := e.browses[key]
	auto := e.AutoBrowse
	if ok && auto {
		delete(e.browses, key)
	}
	e.mu.Unlock()

	if !ok {
		return nsderr.WithCode(nsderr.CodeNotFound, nil)
	}
	if auto {
		l.BrowseStopped(key)
	}
	return nil
}

// Resolve implements discovery.Engine.
func (e *Engine) Resolve(key string, d discovery.Descriptor, timeout time.Duration, l discovery.ResolveListener) error {
	if err := e.record(Call{Method: MethodResolve, Key: key, Descriptor: d, Timeout: timeout}); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.resolves[key] = l
	e.resolving++
	if e.resolving > e.maxResolving {
		e.maxResolving = e.resolving
	}
	return nil
}

// Publish implements discovery.Engine.
func (e *Engine) Publish(key string, d discovery.Descriptor, l discovery.RegistrationListener) error {
	if err := e.record(Call{Method: MethodPublish, Key: key, Descriptor: d}); err != nil {
		return err
	}

	e.mu.Lock()
	e.registrations[key] = l
	auto := e.AutoPublish
	rename := e.Rename
	e.mu.Unlock()

	if auto {
		name := d.Name
		if rename != nil {
			name = rename(name)
		}
		l.Published(key, name)
	}
	return nil
}

// Withdraw implements discovery.Engine.
func (e *Engine) Withdraw(key string) error {
	if err := e.record(Call{Method: MethodWithdraw, Key: key}); err != nil {
		return err
	}

	e.mu.Lock()
	l, ok := e.registrations[key]
	auto := e.AutoPublish
	if ok && auto {
		delete(e.registrations, key)
	}
	e.mu.Unlock()

	if !ok {
		return nsderr.WithCode(nsderr.CodeNotFound, nil)
	}
	if auto {
		l.Withdrawn(key)
	}
	return nil
}

// Quirks implements discovery.Engine.
func (e *Engine) Quirks() discovery.Quirks {
	return e.EngineQuirks
}

// Close implements discovery.Engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *Engine) browse(key string, terminal bool) discovery.BrowseListener {
	e.mu.Lock()
	defer e.mu.Unlock()

	l := e.browses[key]
	if terminal {
		delete(e.browses, key)
	}
	return l
}

func (e *Engine) registration(key string, terminal bool) discovery.RegistrationListener {
	e.mu.Lock()
	defer e.mu.Unlock()

	l := e.registrations[key]
	if terminal {
		delete(e.registrations, key)
	}
	return l
}

func (e *Engine) resolve(key string) discovery.ResolveListener {
	e.mu.Lock()
	defer e.mu.Unlock()

	l, ok := e.resolves[key]
	if ok {
		delete(e.resolves, key)
		e.resolving--
	}
	return l
}

// collapse applies the CollapsesEmptyTXT quirk.
func (e *Engine) collapse(d discovery.Descriptor) discovery.Descriptor {
	if !e.EngineQuirks.CollapsesEmptyTXT || d.TXT == nil {
		return d
	}
	d.TXT = d.TXT.Clone()
	for k, v := range d.TXT {
		if len(v) == 0 {
			d.TXT[k] = nil
		}
	}
	return d
}

// The Fire methods deliver callbacks for an operation started under key.
// They report false if the engine holds no such operation.

func (e *Engine) FireBrowseStarted(key string) bool {
	l := e.browse(key, false)
	if l == nil {
		return false
	}
	l.BrowseStarted(key)
	return true
}

func (e *Engine) FireBrowseStartFailed(key string, code nsderr.Code) bool {
	l := e.browse(key, true)
	if l == nil {
		return false
	}
	l.BrowseStartFailed(key, code)
	return true
}

func (e *Engine) FireServiceFound(key string, d discovery.Descriptor) bool {
	l := e.browse(key, false)
	if l == nil {
		return false
	}
	l.ServiceFound(key, e.collapse(d))
	return true
}

func (e *Engine) FireServiceLost(key string, d discovery.Descriptor) bool {
	l := e.browse(key, false)
	if l == nil {
		return false
	}
	l.ServiceLost(key, d)
	return true
}

func (e *Engine) FireBrowseStopped(key string) bool {
	l := e.browse(key, true)
	if l == nil {
		return false
	}
	l.BrowseStopped(key)
	return true
}

func (e *Engine) FireBrowseStopFailed(key string, code nsderr.Code) bool {
	l := e.browse(key, true)
	if l == nil {
		return false
	}
	l.BrowseStopFailed(key, code)
	return true
}

func (e *Engine) FireResolved(key string, d discovery.Descriptor) bool {
	l := e.resolve(key)
	if l == nil {
		return false
	}
	l.Resolved(key, e.collapse(d))
	return true
}

func (e *Engine) FireResolveFailed(key string, code nsderr.Code) bool {
	l := e.resolve(key)
	if l == nil {
		return false
	}
	l.ResolveFailed(key, code)
	return true
}

func (e *Engine) FirePublished(key, name string) bool {
	l := e.registration(key, false)
	if l == nil {
		return false
	}
	l.Published(key, name)
	return true
}

func (e *Engine) FirePublishFailed(key string, code nsderr.Code) bool {
	l := e.registration(key, true)
	if l == nil {
		return false
	}
	l.PublishFailed(key, code)
	return true
}

func (e *Engine) FireWithdrawn(key string) bool {
	l := e.registration(key, true)
	if l == nil {
		return false
	}
	l.Withdrawn(key)
	return true
}

func (e *Engine) FireWithdrawFailed(key string, code nsderr.Code) bool {
	l := e.registration(key, true)
	if l == nil {
		return false
	}
	l.WithdrawFailed(key, code)
	return true
}

// Ensure Engine implements discovery.Engine.
var _ discovery.Engine = (*Engine)(nil)

// MockCapability is a testify mock of discovery.Capability.
type MockCapability struct {
	mock.Mock
}

// Acquire implements discovery.Capability.
func (m *MockCapability) Acquire() error {
	args := m.Called()
	return args.Error(0)
}

// Release implements discovery.Capability.
func (m *MockCapability) Release() {
	m.Called()
}

// Ensure MockCapability implements discovery.Capability.
var _ discovery.Capability = (*MockCapability)(nil)
