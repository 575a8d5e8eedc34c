// Package coordinator schedules tasks onto registered workers. It owns the
// worker registry and all worker state transitions, correlates results with
// waiting callers, and drives wave-parallel execution of dependent task
// batches. Tasks and results travel over a transport; the queue, event bus,
// and store are injected and optional.
package coordinator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/colonycore/colony/internal/domain"
	"github.com/colonycore/colony/internal/errors"
	"github.com/colonycore/colony/internal/event"
	"github.com/colonycore/colony/internal/logging"
	"github.com/colonycore/colony/internal/queue"
	"github.com/colonycore/colony/internal/routing"
	"github.com/colonycore/colony/internal/store"
	"github.com/colonycore/colony/internal/task"
	"github.com/colonycore/colony/internal/transport"
)

const (
	// DefaultWaitTimeout bounds WaitForResult when the caller passes no
	// timeout.
	DefaultWaitTimeout = time.Minute

	// defaultHeartbeatTTL is how long a worker's heartbeat key lives in
	// the store before an external monitor may consider it offline.
	defaultHeartbeatTTL = 30 * time.Second

	// coordinatorID is the default transport identity.
	coordinatorID = "coordinator"
)

// workerEntry pairs a worker's info with its registration order, which is
// the tie-break for performance sorting.
type workerEntry struct {
	info WorkerInfo
	seq  int
}

// Coordinator schedules tasks onto workers and correlates their results.
type Coordinator struct {
	id    string
	tr    transport.Transport
	q     *queue.Queue
	bus   *event.Bus
	log   *logging.Logger
	st    store.Store
	hbTTL time.Duration

	waitTimeout time.Duration
	now         func() time.Time

	mu      sync.Mutex
	workers map[string]*workerEntry
	regSeq  int

	// pending buffers tasks that targeted a busy worker, drained FIFO as
	// workers report in.
	pending []task.Task

	results map[string]task.Result

	// waiters holds the channels of every WaitForResult caller blocked on
	// a task id. Result intake closes them all after delivering the
	// result, so concurrent waiters on one id are all satisfied.
	waiters map[string][]chan task.Result

	// engine and members drive domain-aware worker selection in
	// ProcessTaskQueue. Without them every task goes to the first idle
	// worker.
	engine  *routing.Engine
	members []domain.Member

	unsubscribe func()
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithID sets the coordinator's transport identity.
func WithID(id string) Option {
	return func(c *Coordinator) { c.id = id }
}

// WithQueue attaches the task queue; result intake then drives
// MarkComplete/MarkFailed.
func WithQueue(q *queue.Queue) Option {
	return func(c *Coordinator) { c.q = q }
}

// WithBus attaches an event bus for worker and result lifecycle events.
func WithBus(bus *event.Bus) Option {
	return func(c *Coordinator) { c.bus = bus }
}

// WithLogger sets the coordinator's logger.
func WithLogger(log *logging.Logger) Option {
	return func(c *Coordinator) { c.log = log }
}

// WithStore attaches a store used for worker heartbeat keys.
func WithStore(st store.Store, heartbeatTTL time.Duration) Option {
	return func(c *Coordinator) {
		c.st = st
		if heartbeatTTL > 0 {
			c.hbTTL = heartbeatTTL
		}
	}
}

// WithWaitTimeout sets the default WaitForResult timeout.
func WithWaitTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.waitTimeout = d
		}
	}
}

// WithRouting attaches a routing engine and the member roster it selects
// from. Queue processing then routes domain-tagged tasks to the member the
// engine picks, provided that member's worker is idle.
func WithRouting(engine *routing.Engine, members []domain.Member) Option {
	return func(c *Coordinator) {
		c.engine = engine
		c.members = members
	}
}

// WithClock overrides the coordinator's time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// New creates a Coordinator speaking over the given transport.
func New(tr transport.Transport, opts ...Option) *Coordinator {
	c := &Coordinator{
		id:          coordinatorID,
		tr:          tr,
		log:         logging.NopLogger(),
		hbTTL:       defaultHeartbeatTTL,
		waitTimeout: DefaultWaitTimeout,
		now:         time.Now,
		workers:     make(map[string]*workerEntry),
		results:     make(map[string]task.Result),
		waiters:     make(map[string][]chan task.Result),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start subscribes the coordinator to its transport inbox so worker results
// flow into result intake. Stop cancels the subscription.
func (c *Coordinator) Start() error {
	cancel, err := c.tr.Subscribe(c.id, c.handleEnvelope)
	if err != nil {
		return errors.Wrap(err, "subscribing coordinator to transport")
	}
	c.mu.Lock()
	c.unsubscribe = cancel
	c.mu.Unlock()
	return nil
}

// Stop cancels the transport subscription established by Start.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	cancel := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (c *Coordinator) handleEnvelope(env transport.Envelope) {
	if env.Kind != transport.KindResult || env.Result == nil {
		c.log.Warn("ignoring non-result envelope", "kind", string(env.Kind), "from", env.From)
		return
	}
	c.HandleResult(*env.Result)
}

// RegisterWorker adds a worker to the registry, initially Idle with a
// success rate of 1.0. Re-registering an offline worker resets its state;
// registering an active worker id is an error.
func (c *Coordinator) RegisterWorker(id string) error {
	if id == "" {
		return errors.NewValidationError("worker id must not be empty").WithField("id")
	}

	c.mu.Lock()
	if entry, ok := c.workers[id]; ok && entry.info.State != WorkerOffline {
		c.mu.Unlock()
		return errors.NewValidationError("worker already registered").
			WithField("id").WithValue(id)
	}
	now := c.now()
	c.regSeq++
	c.workers[id] = &workerEntry{
		info: WorkerInfo{
			ID:           id,
			State:        WorkerIdle,
			SuccessRate:  1.0,
			RegisteredAt: now,
			LastSeen:     now,
		},
		seq: c.regSeq,
	}
	c.mu.Unlock()

	c.heartbeat(id)
	c.log.Info("worker registered", "worker_id", id)
	c.publish(event.NewWorkerRegisteredEvent(id))
	return nil
}

// DeregisterWorker marks the worker Offline. It keeps the registry entry so
// historical success rate survives a re-registration check, but the worker
// receives no further assignments.
func (c *Coordinator) DeregisterWorker(id string) error {
	c.mu.Lock()
	entry, ok := c.workers[id]
	if !ok {
		c.mu.Unlock()
		return errors.NewCoordinatorError("deregister", errors.ErrWorkerNotFound).WithWorkerID(id)
	}
	entry.info.State = WorkerOffline
	entry.info.CurrentTask = ""
	c.mu.Unlock()

	c.log.Info("worker deregistered", "worker_id", id)
	c.publish(event.NewWorkerDeregisteredEvent(id))
	return nil
}

// GetWorker returns a copy of the registry entry for the given worker id.
func (c *Coordinator) GetWorker(id string) (WorkerInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.workers[id]
	if !ok {
		return WorkerInfo{}, false
	}
	return entry.info, true
}

// Workers returns every registered worker, including busy and offline ones,
// in registration order.
func (c *Coordinator) Workers() []WorkerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := make([]*workerEntry, 0, len(c.workers))
	for _, entry := range c.workers {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	infos := make([]WorkerInfo, len(entries))
	for i, entry := range entries {
		infos[i] = entry.info
	}
	return infos
}

// GetAvailableWorkers returns all Idle workers in registration order.
func (c *Coordinator) GetAvailableWorkers() []WorkerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.availableLocked()
}

// GetWorkersByPerformance returns Idle workers sorted by descending success
// rate. Ties keep registration order.
func (c *Coordinator) GetWorkersByPerformance() []WorkerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	available := c.availableLocked()
	sort.SliceStable(available, func(i, j int) bool {
		return available[i].SuccessRate > available[j].SuccessRate
	})
	return available
}

// availableLocked returns Idle workers in registration order. Callers hold
// c.mu.
func (c *Coordinator) availableLocked() []WorkerInfo {
	entries := make([]*workerEntry, 0, len(c.workers))
	for _, entry := range c.workers {
		if entry.info.State == WorkerIdle {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	infos := make([]WorkerInfo, len(entries))
	for i, entry := range entries {
		infos[i] = entry.info
	}
	return infos
}

// AssignTask dispatches the task to the named worker. An unknown or offline
// worker is an error; a busy worker buffers the task FIFO for later dispatch
// instead. On dispatch the envelope's From is the coordinator, the worker
// goes Busy, and its task count increments.
func (c *Coordinator) AssignTask(t task.Task, workerID string) error {
	assigned, err := c.assignToIdle(t, workerID)
	if err != nil {
		return err
	}
	if !assigned {
		c.mu.Lock()
		c.pending = append(c.pending, t)
		c.mu.Unlock()
		c.log.Debug("worker busy, task buffered", "worker_id", workerID, "task_id", t.ID)
	}
	return nil
}

// assignToIdle performs the dispatch when the worker is idle. Returns false
// with no error when the worker is busy, leaving buffering to the caller.
func (c *Coordinator) assignToIdle(t task.Task, workerID string) (bool, error) {
	c.mu.Lock()
	entry, ok := c.workers[workerID]
	if !ok || entry.info.State == WorkerOffline {
		c.mu.Unlock()
		return false, errors.NewCoordinatorError("assign task", errors.ErrWorkerNotFound).
			WithWorkerID(workerID).WithTaskID(t.ID)
	}
	if entry.info.State != WorkerIdle {
		c.mu.Unlock()
		return false, nil
	}

	entry.info.State = WorkerBusy
	entry.info.TaskCount++
	entry.info.CurrentTask = t.ID
	c.mu.Unlock()

	env := transport.NewTaskEnvelope(c.id, workerID, t)
	if err := c.tr.Send(env); err != nil {
		// Roll back so the worker is not stuck Busy for a task it never
		// received.
		c.mu.Lock()
		entry.info.State = WorkerIdle
		entry.info.TaskCount--
		entry.info.CurrentTask = ""
		c.mu.Unlock()
		return false, errors.NewCoordinatorError("dispatch task", err).
			WithWorkerID(workerID).WithTaskID(t.ID)
	}

	c.log.Debug("task assigned", "worker_id", workerID, "task_id", t.ID)
	c.publish(event.NewWorkerBusyEvent(workerID, t.ID))
	return true, nil
}

// HandleResult is result intake: the issuing worker returns to Idle with its
// success rate recomputed cumulatively, the result is recorded and forwarded
// to the queue, all waiters on the task id are satisfied, and the pending
// buffer is drained onto now-idle workers in FIFO order.
func (c *Coordinator) HandleResult(res task.Result) {
	c.mu.Lock()

	entry, ok := c.workers[res.WorkerID]
	if ok {
		entry.info.LastSeen = c.now()
		if entry.info.State == WorkerBusy {
			entry.info.State = WorkerIdle
			entry.info.CurrentTask = ""
		} else if entry.info.State == WorkerIdle {
			// A result from a worker with no outstanding assignment is a
			// protocol violation.
			entry.info.State = WorkerError
		}
		if entry.info.TaskCount > 0 {
			score := 0.0
			if res.Success {
				score = 1.0
			}
			n := float64(entry.info.TaskCount)
			entry.info.SuccessRate = (entry.info.SuccessRate*(n-1) + score) / n
		}
	}

	c.results[res.TaskID] = res
	waiting := c.waiters[res.TaskID]
	delete(c.waiters, res.TaskID)

	var rate float64
	if ok {
		rate = entry.info.SuccessRate
	}
	c.mu.Unlock()

	if !ok {
		c.log.Warn("result from unknown worker", "worker_id", res.WorkerID, "task_id", res.TaskID)
	}

	c.heartbeat(res.WorkerID)

	if c.q != nil {
		if res.Success {
			if _, err := c.q.MarkComplete(res.TaskID, res); err != nil {
				c.log.Error("recording completion", "task_id", res.TaskID, "error", err.Error())
			}
		} else {
			if err := c.q.MarkFailed(res.TaskID, errors.Wrap(errors.ErrTaskFailed, res.Error)); err != nil {
				c.log.Error("recording failure", "task_id", res.TaskID, "error", err.Error())
			}
		}
	}

	for _, ch := range waiting {
		ch <- res
		close(ch)
	}

	c.publish(event.NewResultRecordedEvent(res.TaskID, res.WorkerID, res.Success))
	if ok {
		c.publish(event.NewWorkerIdleEvent(res.WorkerID, rate))
	}

	c.drainPending()
}

// drainPending re-attempts dispatch for buffered tasks, one per idle worker,
// preserving FIFO order. A task that cannot be dispatched goes back to the
// front of the buffer so it is not lost and stays first in line.
func (c *Coordinator) drainPending() {
	for {
		c.mu.Lock()
		if len(c.pending) == 0 {
			c.mu.Unlock()
			return
		}
		idle := c.availableLocked()
		if len(idle) == 0 {
			c.mu.Unlock()
			return
		}
		next := c.pending[0]
		c.pending = c.pending[1:]
		target := idle[0].ID
		c.mu.Unlock()

		assigned, err := c.assignToIdle(next, target)
		if assigned {
			continue
		}
		c.mu.Lock()
		c.pending = append([]task.Task{next}, c.pending...)
		c.mu.Unlock()
		if err != nil {
			c.log.Error("draining pending buffer", "task_id", next.ID, "error", err.Error())
		}
		return
	}
}

// GetResult returns the recorded result for a task id.
func (c *Coordinator) GetResult(taskID string) (task.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, ok := c.results[taskID]
	return res, ok
}

// PendingCount returns the number of tasks buffered awaiting an idle worker.
func (c *Coordinator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// WaitForResult blocks until a result for the task id arrives or the timeout
// elapses. A non-positive timeout uses the coordinator default. Already
// recorded results return immediately. Any number of concurrent waiters on
// one task id are all satisfied by the same result; a timed-out waiter's
// slot is released so it cannot leak.
func (c *Coordinator) WaitForResult(ctx context.Context, taskID string, timeout time.Duration) (task.Result, error) {
	if timeout <= 0 {
		timeout = c.waitTimeout
	}

	c.mu.Lock()
	if res, ok := c.results[taskID]; ok {
		c.mu.Unlock()
		return res, nil
	}
	ch := make(chan task.Result, 1)
	c.waiters[taskID] = append(c.waiters[taskID], ch)
	c.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res, nil
	case <-timer.C:
		c.removeWaiter(taskID, ch)
		return task.Result{}, errors.NewTimeoutError("wait for result", timeout).WithTaskID(taskID)
	case <-ctx.Done():
		c.removeWaiter(taskID, ch)
		return task.Result{}, errors.Wrapf(errors.ErrCanceled, "waiting for task %s", taskID)
	}
}

// removeWaiter unregisters a waiter channel, tolerating a race where intake
// already delivered to it.
func (c *Coordinator) removeWaiter(taskID string, ch chan task.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	waiting := c.waiters[taskID]
	for i, w := range waiting {
		if w == ch {
			c.waiters[taskID] = append(waiting[:i], waiting[i+1:]...)
			break
		}
	}
	if len(c.waiters[taskID]) == 0 {
		delete(c.waiters, taskID)
	}
}

// ProcessTaskQueue bridges the queue and the worker pool: it dequeues up to
// min(ready, idle) tasks and assigns one to each idle worker. Domain-tagged
// tasks go through the routing engine when one is attached; a task the
// engine cannot place is marked failed on the queue so the retry policy
// decides its fate. Returns the number of tasks dispatched.
func (c *Coordinator) ProcessTaskQueue() (int, error) {
	if c.q == nil {
		return 0, errors.NewCoordinatorError("process queue", errors.ErrQueueEmpty)
	}

	dispatched := 0
	for {
		idle := c.GetAvailableWorkers()
		if len(idle) == 0 {
			return dispatched, nil
		}
		qt, err := c.q.Dequeue()
		if err != nil {
			return dispatched, err
		}
		if qt == nil {
			return dispatched, nil
		}
		target, err := c.selectWorker(qt.Task, idle)
		if err != nil {
			c.log.Warn("routing task", "task_id", qt.ID, "domain", qt.Domain, "error", err.Error())
			if ferr := c.q.MarkFailed(qt.ID, err); ferr != nil {
				return dispatched, ferr
			}
			continue
		}
		if err := c.AssignTask(qt.Task, target); err != nil {
			return dispatched, err
		}
		dispatched++
	}
}

// selectWorker picks the worker for a dequeued task. Undomained tasks, or
// any task when no engine is attached, take the first idle worker. Domained
// tasks consult the engine over the members whose worker is currently idle.
func (c *Coordinator) selectWorker(t task.Task, idle []WorkerInfo) (string, error) {
	if c.engine == nil || t.Domain == "" {
		return idle[0].ID, nil
	}

	idleIDs := make(map[string]bool, len(idle))
	for _, w := range idle {
		idleIDs[w.ID] = true
	}
	candidates := make([]domain.Member, 0, len(c.members))
	for _, m := range c.members {
		if idleIDs[m.ID] {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 0 {
		return idle[0].ID, nil
	}

	member, err := c.engine.FindBestMember(t, candidates)
	if err != nil {
		return "", err
	}
	return member.ID, nil
}

func (c *Coordinator) heartbeat(workerID string) {
	if c.st == nil || workerID == "" {
		return
	}
	key := store.HeartbeatKey(workerID)
	if err := c.st.Set(context.Background(), key, c.now().Format(time.RFC3339Nano), c.hbTTL); err != nil {
		c.log.Warn("writing heartbeat", "worker_id", workerID, "error", err.Error())
	}
}

func (c *Coordinator) publish(e event.Event) {
	if c.bus != nil {
		c.bus.Publish(e)
	}
}
