package bridge

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// EventSink receives delivered events. It is called from a single goroutine.
type EventSink func(Event)

// dispatchItem is an event or a flush barrier.
type dispatchItem struct {
	event   Event
	barrier chan struct{}
}

// Dispatcher delivers events to a sink from one goroutine in the order they
// were posted. Posting never blocks: the queue grows as needed, so engine
// callbacks are not held up by a slow client.
type Dispatcher struct {
	mu    sync.Mutex
	queue []dispatchItem
	wake  chan struct{}

	sink   EventSink
	logger *slog.Logger

	// Background processing
	ctx       context.Context
	cancel    context.CancelFunc
	processWg sync.WaitGroup
	running   atomic.Bool
}

// NewDispatcher creates a dispatcher. capacity is the initial queue size.
func NewDispatcher(sink EventSink, capacity int, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if capacity < 0 {
		capacity = 0
	}
	return &Dispatcher{
		queue:  make([]dispatchItem, 0, capacity),
		wake:   make(chan struct{}, 1),
		sink:   sink,
		logger: logger,
	}
}

// Start begins delivery.
func (d *Dispatcher) Start() {
	if d.running.Swap(true) {
		return // Already running
	}

	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.processWg.Add(1)
	go d.processLoop()
}

// Stop delivers the events already queued and stops delivery.
// Events posted after Stop are dropped.
func (d *Dispatcher) Stop() {
	if !d.running.Swap(false) {
		return // Not running
	}

	d.cancel()
	d.processWg.Wait()
}

// Post queues an event. It reports false if the dispatcher is not running.
func (d *Dispatcher) Post(e Event) bool {
	if !d.running.Load() {
		d.logger.Debug("event dropped, dispatcher stopped", "event", e.Kind.String(), "handle", e.Handle)
		return false
	}
	d.push(dispatchItem{event: e})
	return true
}

// Flush waits until every event posted before the call has been delivered.
func (d *Dispatcher) Flush(ctx context.Context) error {
	if !d.running.Load() {
		return nil
	}

	barrier := make(chan struct{})
	d.push(dispatchItem{barrier: barrier})

	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of queued items.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

func (d *Dispatcher) push(item dispatchItem) {
	d.mu.Lock()
	d.queue = append(d.queue, item)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// take removes and returns all queued items.
func (d *Dispatcher) take() []dispatchItem {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.queue) == 0 {
		return nil
	}
	batch := d.queue
	d.queue = make([]dispatchItem, 0, cap(batch))
	return batch
}

func (d *Dispatcher) processLoop() {
	defer d.processWg.Done()

	for {
		batch := d.take()
		if len(batch) > 0 {
			d.deliver(batch)
			continue
		}

		select {
		case <-d.wake:
		case <-d.ctx.Done():
			// Deliver what was queued before Stop.
			d.deliver(d.take())
			return
		}
	}
}

func (d *Dispatcher) deliver(batch []dispatchItem) {
	for _, item := range batch {
		if item.barrier != nil {
			close(item.barrier)
			continue
		}
		d.safeSink(item.event)
	}
}

// safeSink calls the sink, containing panics so one faulty event cannot
// stop delivery of the others.
func (d *Dispatcher) safeSink(e Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event sink panicked", "event", e.Kind.String(), "handle", e.Handle, "panic", r)
		}
	}()
	if d.sink != nil {
		d.sink(e)
	}
}
