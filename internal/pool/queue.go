package pool

import (
	"sync"
	"time"

	"github.com/nexus-build/nexus/internal/models"
)

// priorityOrder is the bucket scan order for dequeue, highest first. A
// Feature's MoSCoW priority (spec's own taxonomy: must/should/could/wont)
// doubles as the pool's scheduling priority rather than introducing a
// parallel critical/high/normal/low enum — "must" tasks simply dequeue
// ahead of "should", and so on.
var priorityOrder = []models.Priority{
	models.PriorityMust,
	models.PriorityShould,
	models.PriorityCould,
	models.PriorityWont,
}

type queuedTask struct {
	task       models.Task
	roleHint   models.AgentRole
	enqueuedAt time.Time
}

// priorityQueue is FIFO within a bucket, buckets scanned in priorityOrder,
// per spec.md §4.8's scheduling policy.
type priorityQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	buckets map[models.Priority][]queuedTask
	closed  bool
}

func newPriorityQueue() *priorityQueue {
	q := &priorityQueue{buckets: make(map[models.Priority][]queuedTask)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *priorityQueue) push(task models.Task, roleHint models.AgentRole) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	priority := task.Priority
	if priority == "" {
		priority = models.PriorityShould
	}
	q.buckets[priority] = append(q.buckets[priority], queuedTask{task: task, roleHint: roleHint, enqueuedAt: timeNow()})
	q.cond.Signal()
}

// pop blocks until a task is available or the queue is closed, returning
// ok=false in the latter case.
func (q *priorityQueue) pop() (queuedTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		for _, p := range priorityOrder {
			bucket := q.buckets[p]
			if len(bucket) > 0 {
				item := bucket[0]
				q.buckets[p] = bucket[1:]
				return item, true
			}
		}
		if q.closed {
			return queuedTask{}, false
		}
		q.cond.Wait()
	}
}

func (q *priorityQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// lengths returns the current queued count per priority bucket, used by
// Metrics().
func (q *priorityQueue) lengths() map[models.Priority]int {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(map[models.Priority]int, len(priorityOrder))
	for _, p := range priorityOrder {
		out[p] = len(q.buckets[p])
	}
	return out
}

// timeNow stamps each queued task's enqueuedAt; production always uses
// time.Now. Dequeue order within a bucket follows push order and does not
// read this timestamp.
var timeNow = time.Now
