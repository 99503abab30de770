package pipeline

import (
	"sync"

	"media-cache/internal/logging"
)

// Dispatcher runs callbacks one at a time, in the order they were posted,
// on a single goroutine. Progress and completion callbacks of every task
// go through it, so callers never see two callbacks run concurrently.
type Dispatcher struct {
	queue chan func()
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
	once   sync.Once

	// late serializes callbacks delivered after Close.
	late sync.Mutex
}

// NewDispatcher starts a dispatcher with the given queue capacity.
func NewDispatcher(buffer int) *Dispatcher {
	if buffer < 0 {
		buffer = 0
	}
	d := &Dispatcher{
		queue: make(chan func(), buffer),
		done:  make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	for fn := range d.queue {
		d.run(fn)
	}
}

func (d *Dispatcher) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("dispatcher: callback panicked: %v", r)
		}
	}()
	fn()
}

// Post queues fn, blocking while the queue is full. It returns false if
// the dispatcher is closed and fn will never run.
func (d *Dispatcher) Post(fn func()) bool {
	if fn == nil {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	d.queue <- fn
	return true
}

// TryPost queues fn unless the queue is full or the dispatcher is closed.
// It never blocks and reports whether fn was queued.
func (d *Dispatcher) TryPost(fn func()) bool {
	if fn == nil {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.queue <- fn:
		return true
	default:
		return false
	}
}

// Deliver is Post for callbacks that must not be lost. Once the dispatcher
// is closed, fn runs on a new goroutine after the queue has drained, still
// one late callback at a time.
func (d *Dispatcher) Deliver(fn func()) {
	if fn == nil || d.Post(fn) {
		return
	}
	go func() {
		<-d.done
		d.late.Lock()
		defer d.late.Unlock()
		d.run(fn)
	}()
}

// Close stops accepting callbacks and waits until the queued ones ran.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
	})
	<-d.done
}
