package sched

import (
	"sync"
	"time"

	"github.com/emirpasic/gods/trees/redblacktree"

	"github.com/me/schedrt/pkg/model"
)

// queueKey orders the ready queue: higher priority first, then earlier
// release time, then lower id (FIFO among equals).
type queueKey struct {
	priority int
	release  time.Time
	id       model.TaskID
}

func compareKeys(a, b any) int {
	ka, kb := a.(queueKey), b.(queueKey)
	switch {
	case ka.priority > kb.priority:
		return -1
	case ka.priority < kb.priority:
		return 1
	case ka.release.Before(kb.release):
		return -1
	case kb.release.Before(ka.release):
		return 1
	case ka.id < kb.id:
		return -1
	case ka.id > kb.id:
		return 1
	default:
		return 0
	}
}

// readyQueue is the thread-safe priority queue workers block on. stop wakes
// every waiter; drained waiters receive nil.
type readyQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	tree    *redblacktree.Tree
	stopped bool
}

func newReadyQueue() *readyQueue {
	q := &readyQueue{tree: redblacktree.NewWith(compareKeys)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *readyQueue) push(t *model.Task) {
	q.mu.Lock()
	q.tree.Put(queueKey{priority: t.Priority, release: t.ReleaseTime, id: t.ID}, t)
	q.mu.Unlock()
	q.cond.Signal()
}

// popBlocking removes and returns the highest-priority task, blocking until
// one is available. Returns nil once the queue is stopped.
func (q *readyQueue) popBlocking() *model.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.tree.Empty() && !q.stopped {
		q.cond.Wait()
	}
	if q.stopped {
		return nil
	}
	node := q.tree.Left()
	q.tree.Remove(node.Key)
	return node.Value.(*model.Task)
}

func (q *readyQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tree.Size()
}

func (q *readyQueue) stop() {
	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// reset rearms a stopped queue so the scheduler can be started again.
func (q *readyQueue) reset() {
	q.mu.Lock()
	q.stopped = false
	q.mu.Unlock()
}
