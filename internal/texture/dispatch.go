package texture

import (
	"context"
	"math"
	"sync"

	"github.com/mahirjain10/texture-workers/internal/types"
)

// Handle tracks one asynchronous transfer.
type Handle struct {
	done chan struct{}
}

// Done is closed once the terminal event has been delivered.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the terminal event has been delivered or ctx ends.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// transfer sits between a RemoteJobService and an observer. Whatever the
// remote does, the observer sees non-decreasing progress in [0,1], followed by
// exactly one terminal event and nothing after it.
//
// Observer callbacks run with mu held so that progress and the terminal event
// are delivered in order; they must not block on the same transfer.
type transfer struct {
	mu       sync.Mutex
	ctx      context.Context
	taskID   string
	last     float64
	done     bool
	progress func(fraction float64)
	terminal func(complete bool, code int, message string)
	handle   *Handle
}

func newTransfer(taskID string, progress func(float64), terminal func(bool, int, string)) *transfer {
	return &transfer{
		ctx:      context.Background(),
		taskID:   taskID,
		last:     -1,
		progress: progress,
		terminal: terminal,
		handle:   &Handle{done: make(chan struct{})},
	}
}

func (t *transfer) OnProgress(_ string, fraction float64) {
	if math.IsNaN(fraction) {
		return
	}
	fraction = min(max(fraction, 0), 1)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done || fraction < t.last || t.ctx.Err() != nil {
		return
	}
	t.last = fraction
	if t.progress != nil {
		t.progress(fraction)
	}
}

func (t *transfer) OnResult(_ string, complete bool) {
	if t.cancelled() {
		return
	}
	if complete {
		t.finish(true, types.CodeOK, "")
		return
	}
	t.finish(false, types.CodeInternal, "transfer reported incomplete")
}

func (t *transfer) OnError(_ string, code int, message string) {
	if t.cancelled() {
		return
	}
	if code == types.CodeOK {
		code = types.CodeInternal
	}
	t.finish(false, code, message)
}

// cancelled ends the transfer with CodeCancelled once its context is done, so
// a result racing the cancellation cannot win.
func (t *transfer) cancelled() bool {
	if t.ctx.Err() == nil {
		return false
	}
	t.finish(false, types.CodeCancelled, context.Cause(t.ctx).Error())
	return true
}

// finish delivers the terminal event unless one was already delivered.
func (t *transfer) finish(complete bool, code int, message string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	if t.terminal != nil {
		t.terminal(complete, code, message)
	}
	close(t.handle.done)
	return true
}

// run executes op on a worker goroutine. Cancelling ctx ends the transfer with
// CodeCancelled; events the remote produces afterwards are dropped. A remote
// that returns without reporting a result still yields one terminal event.
func (t *transfer) run(ctx context.Context, op func(ctx context.Context, l TransferListener)) *Handle {
	t.ctx = ctx
	go func() {
		stop := context.AfterFunc(ctx, func() {
			t.finish(false, types.CodeCancelled, context.Cause(ctx).Error())
		})
		defer stop()

		op(ctx, t)
		if !t.cancelled() {
			t.finish(false, types.CodeInternal, "transfer ended without a result")
		}
	}()
	return t.handle
}
