// Package writequeue serializes every host-side file mutation through one
// FIFO. Operations run strictly one at a time in submission order, whichever
// destination they touch.
package writequeue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/iksnae/cellbook/internal"
)

// ErrClosed is reported for operations submitted after Close.
var ErrClosed = errors.New("writequeue: closed")

// Op is a single file mutation
type Op func(ctx context.Context) error

type job struct {
	label  string
	op     Op
	result chan error
}

// Queue is an unbounded FIFO drained by a single worker goroutine. A failed
// operation does not stop the ones queued behind it.
type Queue struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pending []job
	wake    chan struct{}
	closed  bool

	done chan struct{}
}

// New starts a queue whose operations run with a context derived from ctx.
func New(ctx context.Context) *Queue {
	ctx, cancel := context.WithCancel(ctx)
	q := &Queue{
		ctx:    ctx,
		cancel: cancel,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

// Enqueue appends op and returns a channel that receives its result once it
// has run. The label is used in logs only.
func (q *Queue) Enqueue(label string, op Op) <-chan error {
	result := make(chan error, 1)

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		result <- ErrClosed
		return result
	}
	q.pending = append(q.pending, job{label: label, op: op, result: result})
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return result
}

// Flush waits until every operation enqueued before the call has run.
func (q *Queue) Flush(ctx context.Context) error {
	select {
	case err := <-q.Enqueue("flush", func(context.Context) error { return nil }):
		if errors.Is(err, ErrClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of operations waiting to run.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close stops accepting operations, runs what is already queued and waits
// for the worker to exit.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	<-q.done
	q.cancel()
}

func (q *Queue) next() (job, bool, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return job{}, false, q.closed
	}
	j := q.pending[0]
	q.pending[0] = job{}
	q.pending = q.pending[1:]
	return j, true, false
}

func (q *Queue) run() {
	defer close(q.done)
	for {
		j, ok, closed := q.next()
		if closed {
			return
		}
		if !ok {
			<-q.wake
			continue
		}
		j.result <- q.exec(j)
	}
}

func (q *Queue) exec(j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", j.label, r)
			internal.LogError("write queue: %v", err)
		}
	}()
	internal.LogDebug("write queue: %s", j.label)
	return j.op(q.ctx)
}
