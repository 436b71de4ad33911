// Package progress delivers pipeline checkpoints to observers. Delivery is
// best effort: a sink must never block or fail the run that reports to it.
package progress

import (
	"sync"
)

// Event is one progress checkpoint.
type Event struct {
	Message string `json:"status"`
	Percent int    `json:"progress"`
}

// Sink receives progress events.
type Sink interface {
	Report(Event)
}

// Func adapts a plain function to a Sink.
type Func func(Event)

// Report calls f.
func (f Func) Report(e Event) {
	if f != nil {
		f(e)
	}
}

// Nop discards every event.
var Nop Sink = Func(nil)

// Multi fans one event out to several sinks in order.
type Multi []Sink

// Report forwards e to every non-nil sink.
func (m Multi) Report(e Event) {
	for _, s := range m {
		if s != nil {
			s.Report(e)
		}
	}
}

// Channel is a bounded queue of events. Report never blocks: when the buffer
// is full the event is dropped and counted.
type Channel struct {
	ch      chan Event
	mu      sync.Mutex
	closed  bool
	dropped int
}

// NewChannel creates a Channel holding up to size pending events.
func NewChannel(size int) *Channel {
	if size < 1 {
		size = 1
	}
	return &Channel{ch: make(chan Event, size)}
}

// Report enqueues e or drops it.
func (c *Channel) Report(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		c.dropped++
		return
	}
	select {
	case c.ch <- e:
	default:
		c.dropped++
	}
}

// Events returns the receive side of the queue.
func (c *Channel) Events() <-chan Event {
	return c.ch
}

// Dropped returns how many events were discarded.
func (c *Channel) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Close stops accepting events and closes the queue.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
}

// Monotonic guards a sink for one run: percents are clamped to 0..100 and
// never go backwards, and a panicking sink is isolated from the caller.
type Monotonic struct {
	next Sink

	mu   sync.Mutex
	last int
	// OnPanic, if set, observes recovered sink panics.
	OnPanic func(recovered any)
}

// NewMonotonic wraps next. A nil next behaves like Nop.
func NewMonotonic(next Sink) *Monotonic {
	if next == nil {
		next = Nop
	}
	return &Monotonic{next: next}
}

// Report forwards e with its percent raised to at least the last reported
// value.
func (m *Monotonic) Report(e Event) {
	m.mu.Lock()
	e.Percent = max(0, min(100, e.Percent))
	if e.Percent < m.last {
		e.Percent = m.last
	}
	m.last = e.Percent
	m.mu.Unlock()

	defer func() {
		if r := recover(); r != nil && m.OnPanic != nil {
			m.OnPanic(r)
		}
	}()
	m.next.Report(e)
}

// Last returns the highest percent reported so far.
func (m *Monotonic) Last() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}
