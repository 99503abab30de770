package pipeline

import (
	"context"
	"image"
	"sync"

	"github.com/google/uuid"

	"media-cache/internal/media"
	"media-cache/internal/mediatypes"
)

// Source says where a resolved ref came from.
type Source string

const (
	SourceRAM     Source = "ram"
	SourceDisk    Source = "disk"
	SourceNetwork Source = "network"
)

// Result is the single outcome of a Task.
type Result struct {
	Ref      *media.Ref
	Path     string
	Category mediatypes.Category
	// Image is set when the ref is an image and decoding was requested.
	Image  image.Image
	Source Source
	Err    error
}

// RequestOptions tunes a single Request.
type RequestOptions struct {
	// Shrink divides the decoded image dimensions. 0 uses the pipeline default.
	Shrink int
	// SkipDecode resolves the ref to a local file without decoding it.
	SkipDecode bool
	// OnProgress receives the bytes persisted so far, on the dispatcher.
	// Ticks are dropped while the dispatcher is backed up.
	OnProgress func(written int64)
	// OnDone receives the result, on the dispatcher, after any OnProgress
	// call. It is never dropped: a task that ends after Close still gets it,
	// once the queued callbacks have run.
	OnDone func(Result)
}

const progressBuffer = 16

// Task is a handle on one in-flight request.
type Task struct {
	ID  uuid.UUID
	Ref *media.Ref

	ctx    context.Context
	cancel context.CancelFunc

	opts       RequestOptions
	dispatcher *Dispatcher

	mu       sync.Mutex
	finished bool
	progress chan int64
	done     chan Result
	waitCh   chan struct{}
	result   Result
}

func newTask(ctx context.Context, ref *media.Ref, opts RequestOptions, d *Dispatcher) *Task {
	ctx, cancel := context.WithCancel(ctx)
	return &Task{
		ID:         uuid.New(),
		Ref:        ref,
		ctx:        ctx,
		cancel:     cancel,
		opts:       opts,
		dispatcher: d,
		progress:   make(chan int64, progressBuffer),
		done:       make(chan Result, 1),
		waitCh:     make(chan struct{}),
	}
}

// Progress delivers byte counts while the task persists. Ticks are dropped
// when the reader falls behind. The channel closes when the task ends.
func (t *Task) Progress() <-chan int64 { return t.progress }

// Done delivers exactly one Result.
func (t *Task) Done() <-chan Result { return t.done }

// Wait blocks until the task ends and returns its result. Unlike Done it
// may be called any number of times.
func (t *Task) Wait() Result {
	<-t.waitCh
	return t.result
}

// Cancel aborts the task. A persist in progress stops at the next chunk.
func (t *Task) Cancel() { t.cancel() }

// Context returns the task's context.
func (t *Task) Context() context.Context { return t.ctx }

// reportProgress never blocks: like the Progress channel, OnProgress ticks
// are dropped while the dispatcher queue is full. Posting under t.mu keeps
// every tick ahead of OnDone.
func (t *Task) reportProgress(written int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return
	}
	select {
	case t.progress <- written:
	default:
	}
	if fn := t.opts.OnProgress; fn != nil {
		t.dispatcher.TryPost(func() { fn(written) })
	}
}

// finish records r and notifies every listener. Only the first call counts.
func (t *Task) finish(r Result) {
	t.mu.Lock()
	if t.finished {
		t.mu.Unlock()
		return
	}
	t.finished = true
	r.Ref = t.Ref
	t.result = r
	close(t.progress)
	t.done <- r
	close(t.waitCh)
	t.mu.Unlock()

	t.cancel()
	if fn := t.opts.OnDone; fn != nil {
		t.dispatcher.Deliver(func() { fn(r) })
	}
}
