package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/MrSnakeDoc/vsdesk/internal/logger"
)

const (
	// DefaultWriteTimeout bounds a single persistence call
	DefaultWriteTimeout = 10 * time.Second
)

// WriteFunc is one persistence call.
type WriteFunc func(ctx context.Context) error

type writeJob struct {
	op   string
	fn   WriteFunc
	done chan struct{} // set on Flush markers only
}

// WriteQueue applies persistence calls one at a time, in the order they were
// enqueued, on its own goroutine. Enqueue never blocks the caller.
type WriteQueue struct {
	name    string
	logger  logger.Logger
	timeout time.Duration
	onError func(op string, err error)

	mu      sync.Mutex
	jobs    []writeJob
	stopped bool

	wake   chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewWriteQueue creates a queue. onError, when set, is called on the queue
// goroutine for every failed write after it was logged.
func NewWriteQueue(name string, log logger.Logger, timeout time.Duration, onError func(op string, err error)) *WriteQueue {
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}
	return &WriteQueue{
		name:    name,
		logger:  log,
		timeout: timeout,
		onError: onError,
		wake:    make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start runs the queue until Stop is called or ctx is done. Pending writes
// are drained before the goroutine exits; they run detached from ctx
// cancellation.
func (q *WriteQueue) Start(ctx context.Context) {
	base := context.WithoutCancel(ctx)
	go func() {
		defer close(q.doneCh)
		for {
			select {
			case <-q.wake:
				q.drain(base)
			case <-q.stopCh:
				q.drain(base)
				return
			case <-ctx.Done():
				q.mu.Lock()
				q.stopped = true
				q.mu.Unlock()
				q.drain(base)
				return
			}
		}
	}()
}

// Stop refuses new writes, waits for pending ones and returns.
func (q *WriteQueue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		<-q.doneCh
		return
	}
	q.stopped = true
	q.mu.Unlock()
	close(q.stopCh)
	<-q.doneCh
}

// Enqueue schedules fn after every write enqueued before it.
func (q *WriteQueue) Enqueue(op string, fn WriteFunc) {
	if !q.push(writeJob{op: op, fn: fn}) {
		q.logger.Warn("write dropped, queue stopped",
			logger.String("queue", q.name),
			logger.String("op", op))
	}
}

// Flush waits until every write enqueued before the call has run.
func (q *WriteQueue) Flush(ctx context.Context) error {
	marker := writeJob{op: "flush", done: make(chan struct{})}
	if !q.push(marker) {
		select {
		case <-q.doneCh:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	select {
	case <-marker.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *WriteQueue) push(j writeJob) bool {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return false
	}
	q.jobs = append(q.jobs, j)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

func (q *WriteQueue) drain(ctx context.Context) {
	for {
		q.mu.Lock()
		if len(q.jobs) == 0 {
			q.mu.Unlock()
			return
		}
		j := q.jobs[0]
		q.jobs[0] = writeJob{}
		q.jobs = q.jobs[1:]
		q.mu.Unlock()

		if j.done != nil {
			close(j.done)
			continue
		}
		q.run(ctx, j)
	}
}

func (q *WriteQueue) run(ctx context.Context, j writeJob) {
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	start := time.Now()
	err := j.fn(ctx)
	if err == nil {
		q.logger.Debug("write applied",
			logger.String("queue", q.name),
			logger.String("op", j.op),
			logger.Duration("took", time.Since(start)))
		return
	}

	q.logger.Warn("write failed",
		logger.String("queue", q.name),
		logger.String("op", j.op),
		logger.Error(err))
	if q.onError != nil {
		q.onError(j.op, err)
	}
}
