package event

import "time"

// Event is the interface that all events must implement.
// It provides a common way to identify and timestamp events.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "task.enqueued", "worker.idle")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type identifiers, grouped by lifecycle. Subscribers match on these
// rather than raw strings.
const (
	TypeTaskEnqueued  = "task.enqueued"
	TypeTaskReady     = "task.ready"
	TypeTaskStarted   = "task.started"
	TypeTaskCompleted = "task.completed"
	TypeTaskFailed    = "task.failed"
	TypeTaskRetrying  = "task.retrying"

	TypeWorkerRegistered   = "worker.registered"
	TypeWorkerDeregistered = "worker.deregistered"
	TypeWorkerBusy         = "worker.busy"
	TypeWorkerIdle         = "worker.idle"

	TypeResultRecorded = "result.recorded"
)

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

// newBaseEvent creates a baseEvent with the current time.
func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Task Lifecycle Events
// -----------------------------------------------------------------------------

// TaskEnqueuedEvent is emitted when a task enters the queue.
type TaskEnqueuedEvent struct {
	baseEvent
	TaskID       string   // Unique identifier for the task
	Priority     int      // Task priority (higher = more urgent)
	Dependencies []string // IDs of tasks this task depends on
}

// NewTaskEnqueuedEvent creates a TaskEnqueuedEvent.
func NewTaskEnqueuedEvent(taskID string, priority int, dependencies []string) TaskEnqueuedEvent {
	return TaskEnqueuedEvent{
		baseEvent:    newBaseEvent(TypeTaskEnqueued),
		TaskID:       taskID,
		Priority:     priority,
		Dependencies: dependencies,
	}
}

// TaskReadyEvent is emitted when a task's dependency set becomes empty
// and it becomes eligible for dispatch.
type TaskReadyEvent struct {
	baseEvent
	TaskID      string // Task that became ready
	UnblockedBy string // Completed task that resolved the last dependency, if any
}

// NewTaskReadyEvent creates a TaskReadyEvent.
func NewTaskReadyEvent(taskID, unblockedBy string) TaskReadyEvent {
	return TaskReadyEvent{
		baseEvent:   newBaseEvent(TypeTaskReady),
		TaskID:      taskID,
		UnblockedBy: unblockedBy,
	}
}

// TaskStartedEvent is emitted when a task is dequeued for execution.
type TaskStartedEvent struct {
	baseEvent
	TaskID   string // Task that started
	WorkerID string // Worker executing the task, if assigned
}

// NewTaskStartedEvent creates a TaskStartedEvent.
func NewTaskStartedEvent(taskID, workerID string) TaskStartedEvent {
	return TaskStartedEvent{
		baseEvent: newBaseEvent(TypeTaskStarted),
		TaskID:    taskID,
		WorkerID:  workerID,
	}
}

// TaskCompletedEvent is emitted when a task completes successfully.
type TaskCompletedEvent struct {
	baseEvent
	TaskID    string   // Task that completed
	Unblocked []string // Tasks made ready by this completion
}

// NewTaskCompletedEvent creates a TaskCompletedEvent.
func NewTaskCompletedEvent(taskID string, unblocked []string) TaskCompletedEvent {
	return TaskCompletedEvent{
		baseEvent: newBaseEvent(TypeTaskCompleted),
		TaskID:    taskID,
		Unblocked: unblocked,
	}
}

// TaskFailedEvent is emitted when a task fails permanently.
type TaskFailedEvent struct {
	baseEvent
	TaskID string // Task that failed
	Error  string // Failure description
}

// NewTaskFailedEvent creates a TaskFailedEvent.
func NewTaskFailedEvent(taskID, errMsg string) TaskFailedEvent {
	return TaskFailedEvent{
		baseEvent: newBaseEvent(TypeTaskFailed),
		TaskID:    taskID,
		Error:     errMsg,
	}
}

// TaskRetryingEvent is emitted when a failed task is scheduled for retry.
type TaskRetryingEvent struct {
	baseEvent
	TaskID  string        // Task being retried
	Attempt int           // Retry attempt number (1-based)
	Delay   time.Duration // Backoff delay before the task is ready again
}

// NewTaskRetryingEvent creates a TaskRetryingEvent.
func NewTaskRetryingEvent(taskID string, attempt int, delay time.Duration) TaskRetryingEvent {
	return TaskRetryingEvent{
		baseEvent: newBaseEvent(TypeTaskRetrying),
		TaskID:    taskID,
		Attempt:   attempt,
		Delay:     delay,
	}
}

// -----------------------------------------------------------------------------
// Worker Lifecycle Events
// -----------------------------------------------------------------------------

// WorkerRegisteredEvent is emitted when a worker registers with the coordinator.
type WorkerRegisteredEvent struct {
	baseEvent
	WorkerID string // Worker that registered
}

// NewWorkerRegisteredEvent creates a WorkerRegisteredEvent.
func NewWorkerRegisteredEvent(workerID string) WorkerRegisteredEvent {
	return WorkerRegisteredEvent{
		baseEvent: newBaseEvent(TypeWorkerRegistered),
		WorkerID:  workerID,
	}
}

// WorkerDeregisteredEvent is emitted when a worker is removed.
type WorkerDeregisteredEvent struct {
	baseEvent
	WorkerID string // Worker that was removed
}

// NewWorkerDeregisteredEvent creates a WorkerDeregisteredEvent.
func NewWorkerDeregisteredEvent(workerID string) WorkerDeregisteredEvent {
	return WorkerDeregisteredEvent{
		baseEvent: newBaseEvent(TypeWorkerDeregistered),
		WorkerID:  workerID,
	}
}

// WorkerBusyEvent is emitted when a worker accepts an assignment.
type WorkerBusyEvent struct {
	baseEvent
	WorkerID string // Worker that became busy
	TaskID   string // Task it is executing
}

// NewWorkerBusyEvent creates a WorkerBusyEvent.
func NewWorkerBusyEvent(workerID, taskID string) WorkerBusyEvent {
	return WorkerBusyEvent{
		baseEvent: newBaseEvent(TypeWorkerBusy),
		WorkerID:  workerID,
		TaskID:    taskID,
	}
}

// WorkerIdleEvent is emitted when a worker finishes its assignment.
type WorkerIdleEvent struct {
	baseEvent
	WorkerID    string  // Worker that became idle
	SuccessRate float64 // Worker's success rate after the latest result
}

// NewWorkerIdleEvent creates a WorkerIdleEvent.
func NewWorkerIdleEvent(workerID string, successRate float64) WorkerIdleEvent {
	return WorkerIdleEvent{
		baseEvent:   newBaseEvent(TypeWorkerIdle),
		WorkerID:    workerID,
		SuccessRate: successRate,
	}
}

// -----------------------------------------------------------------------------
// Result Events
// -----------------------------------------------------------------------------

// ResultRecordedEvent is emitted when the coordinator records a task result.
type ResultRecordedEvent struct {
	baseEvent
	TaskID   string // Task the result belongs to
	WorkerID string // Worker that produced the result
	Success  bool   // Whether the task succeeded
}

// NewResultRecordedEvent creates a ResultRecordedEvent.
func NewResultRecordedEvent(taskID, workerID string, success bool) ResultRecordedEvent {
	return ResultRecordedEvent{
		baseEvent: newBaseEvent(TypeResultRecorded),
		TaskID:    taskID,
		WorkerID:  workerID,
		Success:   success,
	}
}
