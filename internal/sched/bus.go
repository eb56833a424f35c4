package sched

import (
	"sync"

	"github.com/me/schedrt/pkg/model"
)

// CompletionBus delivers per-task one-shot completion signals. The dash
// facades subscribe before submitting; the scheduler fulfils after
// reporting. Subscribe and Fulfill are serialized, so a subscriber that
// wakes always sees the outcome published by the fulfiller.
type CompletionBus struct {
	mu      sync.Mutex
	waiters map[model.TaskID]chan bool
	stored  map[model.TaskID]bool
}

// NewCompletionBus creates an empty bus.
func NewCompletionBus() *CompletionBus {
	return &CompletionBus{
		waiters: make(map[model.TaskID]chan bool),
		stored:  make(map[model.TaskID]bool),
	}
}

// Subscribe returns a channel that yields the task's outcome exactly once.
// Subscribing after fulfilment yields the stored outcome immediately. Each
// id supports at most one outstanding subscription.
func (b *CompletionBus) Subscribe(id model.TaskID) <-chan bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan bool, 1)
	if ok, done := b.stored[id]; done {
		ch <- ok
		delete(b.stored, id)
		return ch
	}
	b.waiters[id] = ch
	return ch
}

// Fulfill publishes the outcome for id. With a subscriber waiting it is
// delivered at once; otherwise the outcome is stored for a later Subscribe.
func (b *CompletionBus) Fulfill(id model.TaskID, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, waiting := b.waiters[id]; waiting {
		ch <- ok
		delete(b.waiters, id)
		return
	}
	b.stored[id] = ok
}
