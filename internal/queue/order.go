package queue

import (
	"sort"

	"github.com/colonycore/colony/internal/task"
)

// dispatchBefore reports whether a should be served before b: higher
// priority first, earlier enqueue sequence within a priority.
func dispatchBefore(a, b *task.QueuedTask) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.Seq() < b.Seq()
}

// sortByDispatchOrder orders tasks in place by dispatch order.
func sortByDispatchOrder(tasks []task.QueuedTask) {
	sort.Slice(tasks, func(i, j int) bool {
		return dispatchBefore(&tasks[i], &tasks[j])
	})
}
