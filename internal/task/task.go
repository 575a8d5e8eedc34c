// Package task defines the task, queued-task, and result types shared by the
// queue, coordinator, and worker runtime.
package task

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the current state of a queued task.
type Status string

const (
	// StatusPending indicates the task has unresolved dependencies.
	StatusPending Status = "pending"

	// StatusReady indicates all dependencies are resolved and the task is
	// eligible for dispatch.
	StatusReady Status = "ready"

	// StatusInProgress indicates the task has been dequeued and dispatched.
	StatusInProgress Status = "in_progress"

	// StatusCompleted indicates the task finished successfully.
	StatusCompleted Status = "completed"

	// StatusFailed indicates the task failed and exhausted all retries.
	StatusFailed Status = "failed"

	// StatusRetrying indicates the task failed and is waiting out its
	// backoff delay before becoming ready again.
	StatusRetrying Status = "retrying"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true if this status represents a final state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Task is an immutable unit of work submitted by a caller. Once created,
// only queue-managed fields on the wrapping QueuedTask change.
type Task struct {
	// ID uniquely identifies the task. Assigned on enqueue if empty.
	ID string `json:"id"`

	// From identifies the submitter (caller or coordinator id).
	From string `json:"from,omitempty"`

	// To identifies the destination worker, or is empty until routed.
	To string `json:"to,omitempty"`

	// Payload is the free-text task content handlers act on.
	Payload string `json:"payload"`

	// Domain is the routing domain the task belongs to, if any.
	Domain string `json:"domain,omitempty"`

	// Priority orders dispatch; higher values are more urgent. Defaults to 0.
	Priority int `json:"priority"`

	// Deadline is an optional completion deadline.
	Deadline *time.Time `json:"deadline,omitempty"`

	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
}

// New creates a Task with a generated ID and creation timestamp.
func New(from, to, payload string, priority int) Task {
	return Task{
		ID:        uuid.NewString(),
		From:      from,
		To:        to,
		Payload:   payload,
		Priority:  priority,
		CreatedAt: time.Now(),
	}
}

// QueuedTask wraps a Task with queue-managed execution state.
type QueuedTask struct {
	Task

	// Dependencies holds the IDs of tasks that must complete before this
	// task becomes ready. The queue removes entries as dependencies resolve.
	Dependencies []string `json:"dependencies,omitempty"`

	// Status is the current execution state.
	Status Status `json:"status"`

	// RetryCount is the number of failures so far.
	RetryCount int `json:"retry_count"`

	// MaxRetries is the maximum number of retry attempts allowed.
	MaxRetries int `json:"max_retries"`

	// ScheduledAt is the earliest time a retrying task may become ready again.
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`

	// StartedAt is when the task was dequeued for execution.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the task reached a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// seq is the queue-assigned insertion sequence used for FIFO tie-breaking.
	seq uint64
}

// Seq returns the queue-assigned insertion sequence number.
func (qt *QueuedTask) Seq() uint64 { return qt.seq }

// SetSeq records the insertion sequence. Called once by the queue on enqueue.
func (qt *QueuedTask) SetSeq(seq uint64) { qt.seq = seq }

// Blocked returns true while the task still has unresolved dependencies.
func (qt *QueuedTask) Blocked() bool {
	return len(qt.Dependencies) > 0
}

// Result references the originating task and carries its outcome.
// Exactly one Result exists per completed-or-failed task.
type Result struct {
	// TaskID references the task this result belongs to.
	TaskID string `json:"task_id"`

	// WorkerID identifies the worker that produced the result.
	WorkerID string `json:"worker_id,omitempty"`

	// Success reports whether the task handler succeeded.
	Success bool `json:"success"`

	// Output is the opaque handler output payload.
	Output string `json:"output,omitempty"`

	// Error holds the failure description when Success is false.
	Error string `json:"error,omitempty"`

	// Timestamp is when the result was produced.
	Timestamp time.Time `json:"timestamp"`
}

// NewResult creates a successful Result for the given task.
func NewResult(taskID, workerID, output string) Result {
	return Result{
		TaskID:    taskID,
		WorkerID:  workerID,
		Success:   true,
		Output:    output,
		Timestamp: time.Now(),
	}
}

// NewFailedResult creates a failed Result carrying the error description.
func NewFailedResult(taskID, workerID string, err error) Result {
	r := Result{
		TaskID:    taskID,
		WorkerID:  workerID,
		Success:   false,
		Timestamp: time.Now(),
	}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}
