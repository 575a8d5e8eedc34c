// Package queue implements the dependency- and priority-aware task queue.
// Tasks enter Pending or Ready depending on their dependency set, are served
// highest-priority-first with FIFO ordering within a priority, and move
// through the Retrying state on failure per the configured retry policy.
// All methods are safe for concurrent use via an internal mutex.
package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/colonycore/colony/internal/errors"
	"github.com/colonycore/colony/internal/event"
	"github.com/colonycore/colony/internal/logging"
	"github.com/colonycore/colony/internal/retry"
	"github.com/colonycore/colony/internal/store"
	"github.com/colonycore/colony/internal/task"
)

// defaultResultTTL bounds result retention when a store is attached.
const defaultResultTTL = time.Hour

// Queue manages queued tasks with dependency resolution.
type Queue struct {
	mu sync.Mutex

	name  string
	tasks map[string]*task.QueuedTask

	// dependents is the reverse dependency index: completed-task id ->
	// ids of tasks still waiting on it. It exists so a completion resolves
	// its dependents without scanning every tracked task.
	dependents map[string]map[string]struct{}

	// results holds one result per completed task. When a store is
	// attached, results are also written there under a retention TTL.
	results map[string]task.Result

	policy    retry.Policy
	bus       *event.Bus
	log       *logging.Logger
	st        store.Store
	resultTTL time.Duration

	seq uint64
	now func() time.Time
}

// Option configures a Queue.
type Option func(*Queue)

// WithPolicy sets the retry policy consulted by MarkFailed.
func WithPolicy(p retry.Policy) Option {
	return func(q *Queue) { q.policy = p }
}

// WithBus attaches an event bus; the queue publishes task lifecycle events.
func WithBus(bus *event.Bus) Option {
	return func(q *Queue) { q.bus = bus }
}

// WithLogger sets the queue's logger.
func WithLogger(log *logging.Logger) Option {
	return func(q *Queue) { q.log = log }
}

// WithStore attaches a persistent store. The queue mirrors its ready set and
// dependency sets there and retains results under the given TTL.
func WithStore(st store.Store, resultTTL time.Duration) Option {
	return func(q *Queue) {
		q.st = st
		if resultTTL > 0 {
			q.resultTTL = resultTTL
		}
	}
}

// WithClock overrides the queue's time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// New creates an empty Queue with the default exponential backoff policy.
func New(name string, opts ...Option) *Queue {
	q := &Queue{
		name:       name,
		tasks:      make(map[string]*task.QueuedTask),
		dependents: make(map[string]map[string]struct{}),
		results:    make(map[string]task.Result),
		policy:     retry.NewExponentialBackoff(),
		log:        logging.NopLogger(),
		resultTTL:  defaultResultTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue adds a task with the given dependency ids. The task id is assigned
// if empty. Status is Ready when the (unresolved) dependency set is empty,
// Pending otherwise. Dependencies on already-completed tasks are resolved
// immediately. Returns the task id.
func (q *Queue) Enqueue(t task.Task, dependencies []string) (string, error) {
	if t.ID == "" {
		t = withGeneratedID(t)
	}
	if t.Payload == "" {
		return "", errors.NewValidationError("task payload must not be empty").WithField("payload")
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = q.now()
	}

	q.mu.Lock()

	if _, exists := q.tasks[t.ID]; exists {
		q.mu.Unlock()
		return "", errors.NewValidationError("task already enqueued").
			WithField("id").WithValue(t.ID)
	}

	// Deduplicate, drop self-references, and drop dependencies that have
	// already completed.
	remaining := make([]string, 0, len(dependencies))
	seen := make(map[string]struct{}, len(dependencies))
	for _, dep := range dependencies {
		if dep == "" || dep == t.ID {
			continue
		}
		if _, dup := seen[dep]; dup {
			continue
		}
		seen[dep] = struct{}{}
		if existing, ok := q.tasks[dep]; ok && existing.Status == task.StatusCompleted {
			continue
		}
		remaining = append(remaining, dep)
	}

	q.seq++
	qt := &task.QueuedTask{
		Task:         t,
		Dependencies: remaining,
		Status:       task.StatusReady,
		MaxRetries:   q.policy.MaxRetries(),
	}
	qt.SetSeq(q.seq)
	if len(remaining) > 0 {
		qt.Status = task.StatusPending
	}

	q.tasks[t.ID] = qt
	for _, dep := range remaining {
		set, ok := q.dependents[dep]
		if !ok {
			set = make(map[string]struct{})
			q.dependents[dep] = set
		}
		set[t.ID] = struct{}{}
	}

	var mirrorErr error
	if q.st != nil {
		ctx := context.Background()
		if qt.Status == task.StatusReady {
			mirrorErr = q.st.ZAdd(ctx, store.ReadyKey(q.name), float64(t.Priority), t.ID)
		} else {
			mirrorErr = q.st.SAdd(ctx, store.DepsKey(t.ID), remaining...)
		}
	}
	status := qt.Status
	q.mu.Unlock()

	if mirrorErr != nil {
		return "", errors.Wrapf(mirrorErr, "mirroring task %s to store", t.ID)
	}

	q.log.Debug("task enqueued",
		"task_id", t.ID, "priority", t.Priority, "status", status.String(),
		"dependencies", len(remaining))
	q.publish(event.NewTaskEnqueuedEvent(t.ID, t.Priority, remaining))
	if status == task.StatusReady {
		q.publish(event.NewTaskReadyEvent(t.ID, ""))
	}
	return t.ID, nil
}

// Dequeue removes and returns the highest-priority ready task, marking it
// InProgress and stamping StartedAt. Ties within a priority resolve in
// enqueue order. Returns nil with no error when no task is ready. Two
// concurrent calls never return the same task.
func (q *Queue) Dequeue() (*task.QueuedTask, error) {
	q.mu.Lock()

	now := q.now()
	q.promoteRetrying(now)

	qt := q.selectReady()
	if qt == nil {
		q.mu.Unlock()
		return nil, nil
	}

	qt.Status = task.StatusInProgress
	started := now
	qt.StartedAt = &started

	var mirrorErr error
	if q.st != nil {
		mirrorErr = q.st.ZRem(context.Background(), store.ReadyKey(q.name), qt.ID)
	}

	cp := *qt
	q.mu.Unlock()

	if mirrorErr != nil {
		return nil, errors.Wrapf(mirrorErr, "removing task %s from store mirror", cp.ID)
	}

	q.publish(event.NewTaskStartedEvent(cp.ID, cp.To))
	return &cp, nil
}

// Peek returns the task Dequeue would select next without mutating anything.
// Returns nil with no error when no task is ready.
func (q *Queue) Peek() (*task.QueuedTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.promoteRetrying(q.now())

	qt := q.selectReady()
	if qt == nil {
		return nil, nil
	}
	cp := *qt
	return &cp, nil
}

// MarkComplete records a successful result for the task, removes it from the
// active ordering, and resolves its dependents: any tracked task whose
// dependency set contains taskID has that entry removed, and transitions
// Pending -> Ready when its set becomes empty. Returns the ids of newly
// ready tasks. Unknown task ids are logged no-ops.
func (q *Queue) MarkComplete(taskID string, result task.Result) ([]string, error) {
	q.mu.Lock()

	qt, ok := q.tasks[taskID]
	if !ok {
		q.mu.Unlock()
		q.log.Warn("markComplete for unknown task", "task_id", taskID)
		return nil, nil
	}
	if qt.Status == task.StatusCompleted {
		q.mu.Unlock()
		q.log.Warn("markComplete for already completed task", "task_id", taskID)
		return nil, nil
	}

	now := q.now()
	qt.Status = task.StatusCompleted
	qt.CompletedAt = &now
	q.results[taskID] = result

	unblocked := q.resolveDependents(taskID)

	var storeErr error
	if q.st != nil {
		storeErr = q.persistCompletion(taskID, result, unblocked)
	}
	q.mu.Unlock()

	q.log.Debug("task completed", "task_id", taskID, "unblocked", len(unblocked))
	q.publish(event.NewTaskCompletedEvent(taskID, unblocked))
	for _, id := range unblocked {
		q.publish(event.NewTaskReadyEvent(id, taskID))
	}

	if storeErr != nil {
		return unblocked, errors.Wrapf(storeErr, "persisting completion of task %s", taskID)
	}
	return unblocked, nil
}

// MarkFailed increments the task's retry count and consults the retry policy.
// If the policy allows another attempt the task enters Retrying with a
// ScheduledAt backoff deadline; otherwise it is terminally Failed and its
// dependents stay Pending until the caller re-enqueues a replacement.
// Unknown task ids are logged no-ops.
func (q *Queue) MarkFailed(taskID string, taskErr error) error {
	q.mu.Lock()

	qt, ok := q.tasks[taskID]
	if !ok {
		q.mu.Unlock()
		q.log.Warn("markFailed for unknown task", "task_id", taskID)
		return nil
	}
	if qt.Status.IsTerminal() {
		q.mu.Unlock()
		q.log.Warn("markFailed for terminal task",
			"task_id", taskID, "status", qt.Status.String())
		return nil
	}

	wasReady := qt.Status == task.StatusReady
	qt.RetryCount++
	attempt := qt.RetryCount

	var delay time.Duration
	retrying := q.policy.ShouldRetry(attempt, taskErr)
	if retrying {
		delay = q.policy.Delay(attempt)
		at := q.now().Add(delay)
		qt.Status = task.StatusRetrying
		qt.ScheduledAt = &at
	} else {
		now := q.now()
		qt.Status = task.StatusFailed
		qt.CompletedAt = &now
	}

	var mirrorErr error
	if q.st != nil && wasReady {
		mirrorErr = q.st.ZRem(context.Background(), store.ReadyKey(q.name), taskID)
	}
	q.mu.Unlock()

	errMsg := ""
	if taskErr != nil {
		errMsg = taskErr.Error()
	}
	if retrying {
		q.log.Info("task scheduled for retry",
			"task_id", taskID, "attempt", attempt, "delay", delay.String(), "error", errMsg)
		q.publish(event.NewTaskRetryingEvent(taskID, attempt, delay))
	} else {
		q.log.Warn("task permanently failed",
			"task_id", taskID, "attempts", attempt, "error", errMsg)
		q.publish(event.NewTaskFailedEvent(taskID, errMsg))
	}

	if mirrorErr != nil {
		return errors.Wrapf(mirrorErr, "removing task %s from store mirror", taskID)
	}
	return nil
}

// GetReadyTasks returns all ready tasks in dispatch order, first promoting
// any Retrying task whose backoff deadline has elapsed. Promotion is lazy:
// it happens on read rather than via a timer.
func (q *Queue) GetReadyTasks() []task.QueuedTask {
	q.mu.Lock()
	promoted := q.promoteRetrying(q.now())

	ready := make([]task.QueuedTask, 0)
	for _, qt := range q.tasks {
		if qt.Status == task.StatusReady {
			ready = append(ready, *qt)
		}
	}
	q.mu.Unlock()

	for _, id := range promoted {
		q.publish(event.NewTaskReadyEvent(id, ""))
	}

	sortByDispatchOrder(ready)
	return ready
}

// GetTask returns a copy of the tracked task with the given id.
func (q *Queue) GetTask(taskID string) (task.QueuedTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	qt, ok := q.tasks[taskID]
	if !ok {
		return task.QueuedTask{}, false
	}
	return *qt, true
}

// GetResult returns the recorded result for a completed task. When a store
// is attached, results that have aged out of memory are looked up there.
func (q *Queue) GetResult(taskID string) (task.Result, bool) {
	q.mu.Lock()
	r, ok := q.results[taskID]
	st := q.st
	q.mu.Unlock()

	if ok {
		return r, true
	}
	if st == nil {
		return task.Result{}, false
	}

	raw, found, err := st.Get(context.Background(), store.ResultKey(taskID))
	if err != nil || !found {
		return task.Result{}, false
	}
	var stored task.Result
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		q.log.Warn("corrupt stored result", "task_id", taskID, "error", err.Error())
		return task.Result{}, false
	}
	return stored, true
}

// Size returns the number of tracked, non-terminal tasks.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, qt := range q.tasks {
		if !qt.Status.IsTerminal() {
			n++
		}
	}
	return n
}

// Counts returns a snapshot of task counts by status.
func (q *Queue) Counts() map[task.Status]int {
	q.mu.Lock()
	defer q.mu.Unlock()

	counts := make(map[task.Status]int)
	for _, qt := range q.tasks {
		counts[qt.Status]++
	}
	return counts
}

// Clear removes all tracked tasks, dependency state, and retained results.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.tasks = make(map[string]*task.QueuedTask)
	q.dependents = make(map[string]map[string]struct{})
	q.results = make(map[string]task.Result)
}

// -----------------------------------------------------------------------------
// internals (callers hold q.mu)
// -----------------------------------------------------------------------------

// selectReady returns the ready task with the highest priority, breaking
// ties by insertion sequence.
func (q *Queue) selectReady() *task.QueuedTask {
	var best *task.QueuedTask
	for _, qt := range q.tasks {
		if qt.Status != task.StatusReady {
			continue
		}
		if best == nil || dispatchBefore(qt, best) {
			best = qt
		}
	}
	return best
}

// promoteRetrying moves Retrying tasks whose ScheduledAt has elapsed back to
// Ready at their original priority. A task that failed while its dependency
// set was still unresolved goes back to Pending instead: readiness waits on
// the dependencies, not the clock. Returns the ids promoted to Ready.
func (q *Queue) promoteRetrying(now time.Time) []string {
	var promoted []string
	for id, qt := range q.tasks {
		if qt.Status != task.StatusRetrying || qt.ScheduledAt == nil || qt.ScheduledAt.After(now) {
			continue
		}
		qt.ScheduledAt = nil
		if len(qt.Dependencies) > 0 {
			qt.Status = task.StatusPending
			continue
		}
		qt.Status = task.StatusReady
		if q.st != nil {
			if err := q.st.ZAdd(context.Background(), store.ReadyKey(q.name), float64(qt.Priority), id); err != nil {
				q.log.Warn("mirroring promoted task", "task_id", id, "error", err.Error())
			}
		}
		promoted = append(promoted, id)
	}
	return promoted
}

// resolveDependents removes taskID from every dependent's dependency set and
// promotes Pending tasks whose set became empty. Returns newly ready ids in
// dispatch order.
func (q *Queue) resolveDependents(taskID string) []string {
	waiting := q.dependents[taskID]
	if len(waiting) == 0 {
		delete(q.dependents, taskID)
		return nil
	}

	var ready []task.QueuedTask
	for depID := range waiting {
		dep, ok := q.tasks[depID]
		if !ok {
			continue
		}
		dep.Dependencies = removeString(dep.Dependencies, taskID)
		if len(dep.Dependencies) == 0 && dep.Status == task.StatusPending {
			dep.Status = task.StatusReady
			ready = append(ready, *dep)
		}
	}
	delete(q.dependents, taskID)

	sortByDispatchOrder(ready)
	ids := make([]string, len(ready))
	for i, qt := range ready {
		ids[i] = qt.ID
	}
	return ids
}

// persistCompletion writes the result under its retention TTL and updates the
// store mirrors for the completed task and its newly ready dependents.
func (q *Queue) persistCompletion(taskID string, result task.Result, unblocked []string) error {
	ctx := context.Background()

	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	if err := q.st.Set(ctx, store.ResultKey(taskID), string(raw), q.resultTTL); err != nil {
		return err
	}
	if err := q.st.Del(ctx, store.DepsKey(taskID)); err != nil {
		return err
	}
	for _, id := range unblocked {
		if err := q.st.SRem(ctx, store.DepsKey(id), taskID); err != nil {
			return err
		}
		qt, ok := q.tasks[id]
		if !ok {
			continue
		}
		if err := q.st.ZAdd(ctx, store.ReadyKey(q.name), float64(qt.Priority), id); err != nil {
			return err
		}
	}
	return nil
}

func (q *Queue) publish(e event.Event) {
	if q.bus != nil {
		q.bus.Publish(e)
	}
}

func withGeneratedID(t task.Task) task.Task {
	generated := task.New(t.From, t.To, t.Payload, t.Priority)
	generated.Domain = t.Domain
	generated.Deadline = t.Deadline
	if !t.CreatedAt.IsZero() {
		generated.CreatedAt = t.CreatedAt
	}
	return generated
}

// removeString returns s without target. It allocates a fresh slice so task
// copies handed out earlier keep their snapshot of the dependency set.
func removeString(s []string, target string) []string {
	out := make([]string, 0, len(s))
	for _, v := range s {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}
