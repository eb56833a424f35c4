package sched

import (
	"sync"

	"github.com/me/schedrt/pkg/model"
)

// depSet tracks the ids of tasks reported ok. A task's dependencies are
// satisfied when every id it depends on is in the set. Completion is
// published under the set's lock, so a dependent admitted afterwards
// observes it (happens-before).
type depSet struct {
	mu        sync.Mutex
	completed map[model.TaskID]struct{}
}

func newDepSet() *depSet {
	return &depSet{completed: make(map[model.TaskID]struct{})}
}

func (d *depSet) markComplete(id model.TaskID) {
	d.mu.Lock()
	d.completed[id] = struct{}{}
	d.mu.Unlock()
}

func (d *depSet) satisfied(t *model.Task) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, dep := range t.DependsOn {
		if _, ok := d.completed[dep]; !ok {
			return false
		}
	}
	return true
}
