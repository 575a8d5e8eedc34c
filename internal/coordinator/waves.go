package coordinator

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/sourcegraph/conc"

	"github.com/colonycore/colony/internal/errors"
	"github.com/colonycore/colony/internal/task"
)

// TaskSpec is one member of a wave-parallel batch: a task plus the ids of
// other batch members it depends on.
type TaskSpec struct {
	Task         task.Task
	Dependencies []string
}

// ExecuteTasksInParallel runs a batch of interdependent tasks in waves. A
// task joins the current wave once every dependency id appears in the
// accumulated result set; a failed dependency still yields a result, so its
// dependents run (and may themselves fail on the missing output). Each wave
// member is assigned to the best-performing idle worker; when no worker is
// free the member fails with a no-worker error without blocking the rest of
// the wave. The call blocks at each wave boundary until every dispatched
// member reports or times out.
//
// If no task is eligible while unexecuted tasks remain, the dependency graph
// has a cycle or references ids outside the batch; that is fatal and the
// results gathered so far are returned alongside the error.
func (c *Coordinator) ExecuteTasksInParallel(ctx context.Context, specs []TaskSpec) (map[string]task.Result, error) {
	for i := range specs {
		if specs[i].Task.ID == "" {
			specs[i].Task = task.New(specs[i].Task.From, specs[i].Task.To, specs[i].Task.Payload, specs[i].Task.Priority)
		}
	}

	results := make(map[string]task.Result, len(specs))
	var resultsMu sync.Mutex
	remaining := make(map[string]TaskSpec, len(specs))
	for _, spec := range specs {
		remaining[spec.Task.ID] = spec
	}

	wave := 0
	for len(remaining) > 0 {
		if err := ctx.Err(); err != nil {
			return results, errors.Wrap(errors.ErrCanceled, "parallel execution aborted")
		}

		eligible := eligibleSpecs(remaining, results)
		if len(eligible) == 0 {
			return results, errors.NewCoordinatorError(
				"unsatisfiable dependencies among tasks "+strings.Join(remainingIDs(remaining), ", "),
				errors.ErrDependencyCycle).WithWave(wave)
		}

		c.log.Debug("executing wave", "wave", wave, "size", len(eligible))

		// Claim one idle worker per eligible task, best performers first.
		available := c.GetWorkersByPerformance()
		var wg conc.WaitGroup
		for i, spec := range eligible {
			spec := spec
			delete(remaining, spec.Task.ID)

			if i >= len(available) {
				resultsMu.Lock()
				results[spec.Task.ID] = task.NewFailedResult(spec.Task.ID, "",
					errors.NewCoordinatorError("wave dispatch", errors.ErrNoWorkerAvailable).
						WithTaskID(spec.Task.ID).WithWave(wave))
				resultsMu.Unlock()
				continue
			}
			workerID := available[i].ID

			wg.Go(func() {
				res := c.executeOne(ctx, spec.Task, workerID)
				resultsMu.Lock()
				results[spec.Task.ID] = res
				resultsMu.Unlock()
			})
		}
		wg.Wait()
		wave++
	}

	return results, nil
}

// executeOne assigns a task to a worker and waits for its result. Dispatch
// and wait failures become failed results so the wave accounting never loses
// a member.
func (c *Coordinator) executeOne(ctx context.Context, t task.Task, workerID string) task.Result {
	if err := c.AssignTask(t, workerID); err != nil {
		return task.NewFailedResult(t.ID, workerID, err)
	}
	res, err := c.WaitForResult(ctx, t.ID, c.waitTimeout)
	if err != nil {
		return task.NewFailedResult(t.ID, workerID, err)
	}
	return res
}

// eligibleSpecs returns the remaining specs whose dependencies are all
// resolved, in a deterministic order.
func eligibleSpecs(remaining map[string]TaskSpec, results map[string]task.Result) []TaskSpec {
	var eligible []TaskSpec
	for _, spec := range remaining {
		satisfied := true
		for _, dep := range spec.Dependencies {
			if _, ok := results[dep]; !ok {
				satisfied = false
				break
			}
		}
		if satisfied {
			eligible = append(eligible, spec)
		}
	}
	sortSpecs(eligible)
	return eligible
}

// sortSpecs orders wave members by descending priority, then id, so worker
// claiming is deterministic.
func sortSpecs(specs []TaskSpec) {
	sort.Slice(specs, func(i, j int) bool {
		if specs[i].Task.Priority != specs[j].Task.Priority {
			return specs[i].Task.Priority > specs[j].Task.Priority
		}
		return specs[i].Task.ID < specs[j].Task.ID
	})
}

func remainingIDs(remaining map[string]TaskSpec) []string {
	ids := make([]string, 0, len(remaining))
	for id := range remaining {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
