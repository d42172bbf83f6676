package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/nsd-bridge/nsd-go/pkg/discovery"
	"github.com/nsd-bridge/nsd-go/pkg/log"
	"github.com/nsd-bridge/nsd-go/pkg/nsderr"
)

type resolveState uint8

const (
	resolveQueued resolveState = iota
	resolveRunning
	resolveDone
)

func (s resolveState) String() string {
	switch s {
	case resolveQueued:
		return "queued"
	case resolveRunning:
		return "resolving"
	case resolveDone:
		return "done"
	default:
		return "unknown"
	}
}

// resolveRequest is one accepted resolve.
type resolveRequest struct {
	handle     string
	key        string
	descriptor discovery.Descriptor

	mu    sync.Mutex
	state resolveState

	// done is closed on the terminal outcome.
	done chan struct{}
}

func newResolveRequest(handle, key string, d discovery.Descriptor) *resolveRequest {
	return &resolveRequest{
		handle:     handle,
		key:        key,
		descriptor: d,
		done:       make(chan struct{}),
	}
}

func (r *resolveRequest) info() SessionInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return SessionInfo{
		Kind:    OpResolve,
		Handle:  r.handle,
		State:   r.state.String(),
		Service: r.descriptor,
	}
}

// resolveGate runs resolves one at a time, in the order they were queued.
//
// A request leaves the gate when its done channel closes. If the engine
// never reports an outcome, expire is called after the watchdog interval so
// later requests are not blocked forever.
type resolveGate struct {
	mu     sync.Mutex
	queue  []*resolveRequest
	active *resolveRequest
	closed bool
	wake   chan struct{}

	issue    func(*resolveRequest)
	expire   func(*resolveRequest)
	watchdog time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newResolveGate(issue, expire func(*resolveRequest), watchdog time.Duration) *resolveGate {
	ctx, cancel := context.WithCancel(context.Background())
	return &resolveGate{
		wake:     make(chan struct{}, 1),
		issue:    issue,
		expire:   expire,
		watchdog: watchdog,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (g *resolveGate) start() {
	g.wg.Add(1)
	go g.run()
}

// enqueue appends r. It reports false once the gate is closed.
func (g *resolveGate) enqueue(r *resolveRequest) bool {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return false
	}
	g.queue = append(g.queue, r)
	g.mu.Unlock()

	select {
	case g.wake <- struct{}{}:
	default:
	}
	return true
}

// len returns the number of requests waiting behind the active one.
func (g *resolveGate) len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.queue)
}

// close stops the worker and returns every request that has not finished,
// the active one first.
func (g *resolveGate) close() []*resolveRequest {
	g.mu.Lock()
	g.closed = true
	var pending []*resolveRequest
	if g.active != nil {
		pending = append(pending, g.active)
	}
	pending = append(pending, g.queue...)
	g.queue = nil
	g.mu.Unlock()

	g.cancel()
	g.wg.Wait()
	return pending
}

func (g *resolveGate) run() {
	defer g.wg.Done()

	for {
		r := g.next()
		if r == nil {
			return
		}

		g.issue(r)

		timer := time.NewTimer(g.watchdog)
		select {
		case <-r.done:
		case <-timer.C:
			// The engine has no way to cancel a resolve, so its lookup may
			// still be running when the next one is issued. A late callback
			// finds the key ended and is logged as stale.
			g.expire(r)
		case <-g.ctx.Done():
			timer.Stop()
			return
		}
		timer.Stop()

		g.mu.Lock()
		g.active = nil
		g.mu.Unlock()
	}
}

// next blocks until a request is queued and makes it the active one.
// It returns nil when the gate is closed.
func (g *resolveGate) next() *resolveRequest {
	for {
		g.mu.Lock()
		if g.closed {
			g.mu.Unlock()
			return nil
		}
		if len(g.queue) > 0 {
			r := g.queue[0]
			g.queue[0] = nil
			g.queue = g.queue[1:]
			g.active = r
			g.mu.Unlock()
			return r
		}
		g.mu.Unlock()

		select {
		case <-g.wake:
		case <-g.ctx.Done():
			return nil
		}
	}
}

// Resolve queues a resolve of d under handle. The request is acknowledged
// once validated; the engine is asked only after every earlier resolve has
// finished. The outcome is reported by an onResolveSuccessful or
// onResolveFailed event.
func (b *Bridge) Resolve(handle string, d discovery.Descriptor) error {
	if err := b.accepting(nsderr.OpResolve); err != nil {
		return err
	}

	r, err := b.registry.beginResolve(handle, d)
	if err != nil {
		return err
	}

	if !b.gate.enqueue(r) {
		b.registry.endResolve(r)
		return b.accepting(nsderr.OpResolve)
	}

	b.logState(log.StateEntityResolve, handle, "", resolveQueued.String(), "")
	b.logger.Debug("resolve queued", "handle", handle, "service", r.descriptor.String(), "waiting", b.gate.len())
	return nil
}

// issueResolve hands r to the engine. Called by the gate worker.
func (b *Bridge) issueResolve(r *resolveRequest) {
	r.mu.Lock()
	if r.state != resolveQueued {
		r.mu.Unlock()
		return
	}
	old := r.state
	r.state = resolveRunning
	b.logState(log.StateEntityResolve, r.handle, old.String(), r.state.String(), "")
	r.mu.Unlock()

	if err := b.engine.Resolve(r.key, r.descriptor, b.resolveTimeout, b.listener); err != nil {
		b.logger.Warn("engine refused resolve", "handle", r.handle, "error", err)
		b.completeResolve(r, nil, nsderr.Classify(err))
	}
}

// expireResolve fails r when the engine missed its own timeout.
func (b *Bridge) expireResolve(r *resolveRequest) {
	b.logger.Warn("resolve outlived its timeout", "handle", r.handle, "timeout", b.resolveTimeout)
	b.completeResolve(r, nil, nsderr.CodeTimeout)
}

// completeResolve reports the outcome of r and releases the gate. A nil
// result means failure with code. It reports false if r had already finished.
func (b *Bridge) completeResolve(r *resolveRequest, result *discovery.Descriptor, code nsderr.Code) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !b.registry.endResolve(r) {
		return false
	}

	old := r.state
	r.state = resolveDone
	if result != nil {
		b.logState(log.StateEntityResolve, r.handle, old.String(), r.state.String(), "resolved")
		b.emit(Event{Kind: EventResolveSuccessful, Handle: r.handle, Service: *result})
	} else {
		b.logState(log.StateEntityResolve, r.handle, old.String(), r.state.String(), "failed")
		b.emit(failure(EventResolveFailed, r.handle, code, nsderr.OpResolve))
	}
	close(r.done)
	return true
}

func (b *Bridge) onResolved(key string, d discovery.Descriptor) {
	r := b.registry.resolveByKey(key)
	if r == nil {
		b.logCallback(key, "Resolved", &d, nil, log.OutcomeStale)
		return
	}

	d = d.Normalized()
	if d.Name == "" {
		d.Name = r.descriptor.Name
	}
	if d.Type == "" {
		d.Type = r.descriptor.Type
	}

	b.logCallback(r.handle, "Resolved", &d, nil, log.OutcomeDelivered)
	b.completeResolve(r, &d, nsderr.CodeInternal)
}

func (b *Bridge) onResolveFailed(key string, code nsderr.Code) {
	r := b.registry.resolveByKey(key)
	if r == nil {
		b.logCallback(key, "ResolveFailed", nil, &code, log.OutcomeStale)
		return
	}
	b.logCallback(r.handle, "ResolveFailed", nil, &code, log.OutcomeDelivered)
	b.completeResolve(r, nil, code)
}
