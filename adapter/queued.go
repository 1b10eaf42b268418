package adapter

import "context"

// Queue is a process-wide first-in-first-out task queue: a goroutine reads
// from a channel of thunks and runs them one at a time, so every operation
// submitted through a given Queue value settles strictly in submission
// order. Errors inside a task do not stop the queue; the task's own result
// channel carries the failure back to its caller.
type Queue struct {
	tasks chan func()
	done  chan struct{}
}

// NewQueue starts the queue's worker goroutine. Callers should keep one
// Queue per desired ordering domain and share it across every adapter that
// must serialize against the others.
func NewQueue() *Queue {
	q := &Queue{
		tasks: make(chan func(), 64),
		done:  make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue) run() {
	for {
		select {
		case task := <-q.tasks:
			task()
		case <-q.done:
			return
		}
	}
}

// Close stops the worker goroutine. Tasks already queued but not yet run
// are dropped.
func (q *Queue) Close() {
	close(q.done)
}

// submit enqueues fn and blocks until it has run, returning whatever fn
// returned. If ctx is cancelled while waiting to be scheduled or while
// waiting for fn's result, submit returns ctx.Err(); fn itself is not
// interrupted once it has started.
func submit[T any](ctx context.Context, q *Queue, fn func() (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}
	resultCh := make(chan result, 1)
	task := func() {
		val, err := fn()
		resultCh <- result{val, err}
	}

	select {
	case q.tasks <- task:
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}

	select {
	case r := <-resultCh:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// NewQueuedRemote builds a RemoteAdapter whose operations all funnel
// through q, giving "one global first-in-first-out queue" across every
// store sharing the same Queue value.
func NewQueuedRemote(cfg RemoteConfig, q *Queue) Adapter {
	base := NewRemote(cfg)
	return Adapter{
		Get: func(ctx context.Context, params Params) (any, error) {
			return submit(ctx, q, func() (any, error) { return base.Get(ctx, params) })
		},
		GetOne: func(ctx context.Context, params Params) (any, error) {
			return submit(ctx, q, func() (any, error) { return base.GetOne(ctx, params) })
		},
		Create: func(ctx context.Context, data any) (any, error) {
			return submit(ctx, q, func() (any, error) { return base.Create(ctx, data) })
		},
		Set: func(ctx context.Context, data any) (any, error) {
			return submit(ctx, q, func() (any, error) { return base.Set(ctx, data) })
		},
		Patch: func(ctx context.Context, partial any) (any, error) {
			return submit(ctx, q, func() (any, error) { return base.Patch(ctx, partial) })
		},
		Delete: func(ctx context.Context, params Params) error {
			_, err := submit(ctx, q, func() (any, error) { return nil, base.Delete(ctx, params) })
			return err
		},
	}
}
