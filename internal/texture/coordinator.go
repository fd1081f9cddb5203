package texture

import (
	"context"
	"sync"
)

// Coordinator runs posted functions one at a time on a single goroutine. All
// state owned by a Client is read and written only from inside posted functions.
type Coordinator struct {
	tasks    chan func()
	stopped  chan struct{}
	finished chan struct{}
	once     sync.Once
}

func NewCoordinator(buffer int) *Coordinator {
	return &Coordinator{
		tasks:    make(chan func(), buffer),
		stopped:  make(chan struct{}),
		finished: make(chan struct{}),
	}
}

// Run processes posted functions until Stop is called or ctx ends. Functions
// still queued at that point are run before Run returns.
func (c *Coordinator) Run(ctx context.Context) {
	defer close(c.finished)
	for {
		select {
		case fn := <-c.tasks:
			fn()
		case <-ctx.Done():
			c.Stop()
			c.drain()
			return
		case <-c.stopped:
			c.drain()
			return
		}
	}
}

func (c *Coordinator) drain() {
	for {
		select {
		case fn := <-c.tasks:
			fn()
		default:
			return
		}
	}
}

// Post queues fn. It reports false when the coordinator has stopped.
func (c *Coordinator) Post(fn func()) bool {
	select {
	case <-c.stopped:
		return false
	default:
	}
	select {
	case c.tasks <- fn:
		return true
	case <-c.stopped:
		return false
	}
}

// Do posts fn and waits for it to run.
func (c *Coordinator) Do(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	if !c.Post(func() { fn(); close(ran) }) {
		return ErrClientClosed
	}
	select {
	case <-ran:
		return nil
	case <-c.finished:
		select {
		case <-ran:
			return nil
		default:
			return ErrClientClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop ends Run after the already queued functions. It is safe to call twice.
func (c *Coordinator) Stop() {
	c.once.Do(func() { close(c.stopped) })
}

// Finished is closed when Run has returned.
func (c *Coordinator) Finished() <-chan struct{} {
	return c.finished
}
