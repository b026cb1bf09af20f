package walker

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/harrison/gpfind/internal/models"
)

// TaskQueue is an unbounded multi-producer, multi-consumer queue of
// directories together with the in-flight counter used for termination.
//
// Termination protocol:
//   - Enqueue increments the counter BEFORE the task becomes visible.
//   - A worker calls MarkDone once per dequeued task, after every child of
//     that task was enqueued.
//   - The counter can therefore only reach zero when nothing is queued and
//     nothing is being expanded. That transition fires Idle exactly once.
//
// The queue never drops a task: Enqueue does not block and only fails after
// Close.
type TaskQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []models.DirectoryTask
	closed bool

	inFlight atomic.Int64
	idle     chan struct{}
	idleOnce sync.Once
}

// NewTaskQueue creates an empty, open queue.
func NewTaskQueue() *TaskQueue {
	q := &TaskQueue{idle: make(chan struct{})}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue counts the task as in flight and hands it to one waiting consumer.
func (q *TaskQueue) Enqueue(task models.DirectoryTask) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.inFlight.Add(1)
	q.items = append(q.items, task)
	q.mu.Unlock()
	q.cond.Signal()
	return nil
}

// Dequeue blocks until a task is available. It returns ErrQueueClosed once
// the queue is closed, or the context error if ctx ends first.
func (q *TaskQueue) Dequeue(ctx context.Context) (models.DirectoryTask, error) {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed && ctx.Err() == nil {
		q.cond.Wait()
	}
	if err := ctx.Err(); err != nil {
		return models.DirectoryTask{}, err
	}
	if q.closed {
		return models.DirectoryTask{}, ErrQueueClosed
	}

	task := q.items[0]
	q.items[0] = models.DirectoryTask{}
	q.items = q.items[1:]
	return task, nil
}

// MarkDone records that one dequeued task was fully expanded.
// It panics if called more often than tasks were enqueued.
func (q *TaskQueue) MarkDone() {
	n := q.inFlight.Add(-1)
	if n < 0 {
		panic("walker: MarkDone called without a matching Enqueue")
	}
	if n == 0 {
		q.idleOnce.Do(func() { close(q.idle) })
	}
}

// InFlight returns the number of tasks enqueued but not yet marked done.
func (q *TaskQueue) InFlight() int64 {
	return q.inFlight.Load()
}

// Len returns the number of tasks waiting to be dequeued.
func (q *TaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Idle is closed the first time the in-flight counter drops to zero.
func (q *TaskQueue) Idle() <-chan struct{} {
	return q.idle
}

// Close stops the queue. Waiting and future Dequeue calls return
// ErrQueueClosed; tasks still queued are discarded, which only happens when
// the run is being cancelled.
func (q *TaskQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.items = nil
	q.mu.Unlock()
	q.cond.Broadcast()
}

// watchQuiescence is the termination detector. It is the only caller of
// Close during a run: it waits until the queue goes idle, or the run is
// cancelled, and then closes the queue so every worker leaves its loop.
func watchQuiescence(ctx context.Context, q *TaskQueue) {
	select {
	case <-q.Idle():
	case <-ctx.Done():
	}
	q.Close()
}
