package generate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/reelsmith/studio/internal/apperr"
	"github.com/reelsmith/studio/internal/logging"
)

var ErrDispatcherClosed = apperr.New(apperr.KindTransient, "DISPATCHER_CLOSED", "dispatcher is shutting down")

// Handle tracks one background task.
type Handle struct {
	done chan struct{}
	err  error
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

func (h *Handle) finish(err error) {
	h.err = err
	close(h.done)
}

// Done is closed once the task has returned.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the task's error. It is only meaningful after Done is closed.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Wait blocks until the task finishes or ctx ends.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type task struct {
	name   string
	fn     func(ctx context.Context) error
	handle *Handle
}

// Dispatcher runs submission tasks on a fixed number of workers. Tasks run
// under the dispatcher's own context so they outlive the request that
// queued them.
type Dispatcher struct {
	queue  chan task
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(workers int, logger *slog.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		queue:  make(chan task, workers*4),
		ctx:    ctx,
		cancel: cancel,
		logger: logging.WithComponent(logger, "dispatcher"),
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	return d
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for t := range d.queue {
		t.handle.finish(d.run(t))
	}
}

func (d *Dispatcher) run(t task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("task panicked", "task", t.name, "panic", r)
			err = fmt.Errorf("task %s panicked: %v", t.name, r)
		}
	}()
	if err := d.ctx.Err(); err != nil {
		return err
	}
	return t.fn(d.ctx)
}

// Go queues fn. ctx only bounds the wait for a free queue slot; an error
// means fn was never queued and will not run.
func (d *Dispatcher) Go(ctx context.Context, name string, fn func(ctx context.Context) error) (*Handle, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, ErrDispatcherClosed
	}

	h := newHandle()
	select {
	case d.queue <- task{name: name, fn: fn, handle: h}:
		return h, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown stops accepting tasks and waits for queued ones to drain. When
// ctx ends first, running tasks see their context cancelled.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-drained
		return ctx.Err()
	}
}
