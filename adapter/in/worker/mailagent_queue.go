package worker

import (
	"sync"

	"mailagent_server/core/domain"
	"mailagent_server/core/port/out"
)

// Queue is the in-memory FIFO feeding categorization workers. Producers
// never block; consumers block in Dequeue until an item arrives or the
// queue is stopped.
type Queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []domain.QueueItem
	stopped bool
}

var _ out.JobQueue = (*Queue)(nil)

func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// AddJob appends the item. Items added after Stop are dropped; the worker
// fleet is already gone.
func (q *Queue) AddJob(item domain.QueueItem) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return
	}
	q.items = append(q.items, item)
	q.cond.Signal()
}

// Dequeue blocks until an item is available or the queue is stopped. The
// second return is false only on shutdown.
func (q *Queue) Dequeue() (domain.QueueItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.stopped {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return domain.QueueItem{}, false
	}

	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

// Length reports the number of queued items.
func (q *Queue) Length() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Stop wakes all blocked consumers. Items still queued are drained by
// consumers before they observe the stop.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.stopped = true
	q.cond.Broadcast()
}
