// Package event provides a pub-sub event bus for decoupled inter-component
// communication in colony.
//
// The queue and coordinator publish task and worker lifecycle events without
// knowing who observes them; the CLI status stream and tests subscribe without
// knowing who produces them.
//
// # Main Types
//
//   - [Event]: Interface that all events must implement, providing EventType() and Timestamp()
//   - [Bus]: Synchronous pub-sub event dispatcher with thread-safe operations
//   - [Handler]: Function type for event handlers (func(Event))
//
// # Thread Safety
//
// The [Bus] type is safe for concurrent use. Handlers are called synchronously
// and protected against panics - a panicking handler will not prevent other
// handlers from being called.
//
// # Event Type Naming Convention
//
// Event types follow the pattern "category.action":
//   - task.enqueued, task.ready, task.started, task.completed, task.failed, task.retrying
//   - worker.registered, worker.deregistered, worker.busy, worker.idle
//   - result.recorded
package event
