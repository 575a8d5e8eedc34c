package coordinator

import "time"

// WorkerState describes a registered worker's availability.
type WorkerState string

const (
	// WorkerIdle means the worker is registered and accepting assignments.
	WorkerIdle WorkerState = "idle"

	// WorkerBusy means the worker is executing exactly one task.
	WorkerBusy WorkerState = "busy"

	// WorkerOffline means the worker deregistered or its heartbeat lapsed.
	// An offline worker receives no assignments until it re-registers.
	WorkerOffline WorkerState = "offline"

	// WorkerError means the worker violated the protocol, for example by
	// reporting a result for a task it was never assigned.
	WorkerError WorkerState = "error"
)

// WorkerInfo is the coordinator's view of a registered worker.
type WorkerInfo struct {
	ID           string
	State        WorkerState
	SuccessRate  float64
	TaskCount    int
	RegisteredAt time.Time
	LastSeen     time.Time

	// CurrentTask is the id of the task the worker is executing, empty
	// when idle.
	CurrentTask string
}

// Available returns true when the worker can accept an assignment.
func (w WorkerInfo) Available() bool {
	return w.State == WorkerIdle
}
