package docstore

import (
	"context"
	"errors"
	"sync"

	"solidtodo/internal/tasklist"
)

// ErrQueueClosed is returned when enqueuing on a closed SaveQueue.
var ErrQueueClosed = errors.New("save queue closed")

// Saver writes a snapshot of the task list to url.
type Saver interface {
	Save(ctx context.Context, url string, tasks []tasklist.Task) error
}

// SaveQueue runs saves one at a time, strictly in the order they were
// enqueued. A save starts only after the previous one has settled, so two
// quick edits can never reach the store out of order.
type SaveQueue struct {
	saver   Saver
	onError func(error)
	ctx     context.Context

	mu     sync.Mutex
	closed bool
	jobs   chan saveJob
	done   chan struct{}
}

type saveJob struct {
	url   string
	tasks []tasklist.Task

	// barrier is closed when the worker reaches this job; used by Flush.
	barrier chan struct{}
}

// NewSaveQueue starts the queue worker. ctx is used for every save and
// stops the worker when cancelled. onError, if non-nil, is called from the
// worker goroutine for each failed save.
func NewSaveQueue(ctx context.Context, saver Saver, onError func(error)) *SaveQueue {
	q := &SaveQueue{
		saver:   saver,
		onError: onError,
		ctx:     ctx,
		jobs:    make(chan saveJob, 64),
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

// Enqueue schedules a save of tasks. The slice is copied.
func (q *SaveQueue) Enqueue(url string, tasks []tasklist.Task) error {
	return q.push(saveJob{url: url, tasks: append([]tasklist.Task(nil), tasks...)})
}

// Flush waits until every save enqueued before the call has settled.
func (q *SaveQueue) Flush(ctx context.Context) error {
	barrier := make(chan struct{})
	if err := q.push(saveJob{barrier: barrier}); err != nil {
		if errors.Is(err, ErrQueueClosed) {
			<-q.done
			return nil
		}
		return err
	}
	select {
	case <-barrier:
		return nil
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting saves, lets the pending ones finish and stops the
// worker.
func (q *SaveQueue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()
	<-q.done
}

func (q *SaveQueue) push(job saveJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- job:
		return nil
	case <-q.ctx.Done():
		return q.ctx.Err()
	}
}

func (q *SaveQueue) run() {
	defer close(q.done)
	for {
		select {
		case job, ok := <-q.jobs:
			if !ok {
				return
			}
			if job.barrier != nil {
				close(job.barrier)
				continue
			}
			if err := q.saver.Save(q.ctx, job.url, job.tasks); err != nil && q.onError != nil {
				q.onError(err)
			}
		case <-q.ctx.Done():
			return
		}
	}
}
