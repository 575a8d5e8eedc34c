// Package transport moves task and result envelopes between the coordinator
// and workers. Delivery is at-least-once and FIFO per destination inbox.
// Two implementations are provided: FileTransport persists inboxes as JSONL
// files under a session directory so workers in separate processes can share
// them, and ChanTransport keeps everything in process for tests and
// single-binary setups.
package transport

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/colonycore/colony/internal/task"
)

// BroadcastRecipient is the special "to" value for envelopes intended for
// every subscriber.
const BroadcastRecipient = "broadcast"

// Kind identifies the payload carried by an Envelope.
type Kind string

const (
	// KindTask carries a task assignment from the coordinator to a worker.
	KindTask Kind = "task"

	// KindResult carries an execution result from a worker back to the
	// coordinator.
	KindResult Kind = "result"
)

// Envelope is the unit of exchange. Exactly one of Task and Result is set,
// matching Kind.
type Envelope struct {
	ID        string       `json:"id"`
	From      string       `json:"from"`
	To        string       `json:"to"`
	Kind      Kind         `json:"kind"`
	Task      *task.Task   `json:"task,omitempty"`
	Result    *task.Result `json:"result,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// IsBroadcast returns true when the envelope is addressed to all subscribers.
func (e Envelope) IsBroadcast() bool {
	return e.To == BroadcastRecipient
}

// Validate checks that the envelope is routable and its payload matches Kind.
func (e Envelope) Validate() error {
	if e.From == "" {
		return fmt.Errorf("transport: envelope From field is required")
	}
	if e.To == "" {
		return fmt.Errorf("transport: envelope To field is required")
	}
	switch e.Kind {
	case KindTask:
		if e.Task == nil {
			return fmt.Errorf("transport: task envelope has no task")
		}
	case KindResult:
		if e.Result == nil {
			return fmt.Errorf("transport: result envelope has no result")
		}
	default:
		return fmt.Errorf("transport: unknown envelope kind %q", e.Kind)
	}
	return nil
}

// NewTaskEnvelope wraps a task assignment for delivery to a worker.
func NewTaskEnvelope(from, to string, t task.Task) Envelope {
	return Envelope{
		From:      from,
		To:        to,
		Kind:      KindTask,
		Task:      &t,
		Timestamp: time.Now(),
	}
}

// NewResultEnvelope wraps an execution result for delivery to a coordinator.
func NewResultEnvelope(from, to string, r task.Result) Envelope {
	return Envelope{
		From:      from,
		To:        to,
		Kind:      KindResult,
		Result:    &r,
		Timestamp: time.Now(),
	}
}

// Transport delivers envelopes between named participants.
type Transport interface {
	// Send delivers the envelope to its destination inbox. ID and
	// Timestamp are populated when empty.
	Send(env Envelope) error

	// Broadcast delivers the envelope to every participant.
	Broadcast(env Envelope) error

	// Receive drains and returns the envelopes pending for the given
	// participant, including broadcasts, in delivery order. A second call
	// returns only envelopes that arrived since the first.
	Receive(id string) ([]Envelope, error)

	// Subscribe invokes fn for each envelope delivered to the participant
	// after the subscription is established. The returned cancel function
	// stops delivery and waits for in-flight handler calls.
	Subscribe(id string, fn func(Envelope)) (cancel func(), err error)

	// Close releases transport resources. Subscriptions must be canceled
	// first.
	Close() error
}

// envelopeCounter provides per-process uniqueness for envelope IDs.
var envelopeCounter atomic.Uint64

// generateEnvelopeID produces a unique envelope ID using timestamp, PID, and
// an atomic counter.
func generateEnvelopeID() string {
	return fmt.Sprintf("env-%d-%d-%d", time.Now().UnixNano(), os.Getpid(), envelopeCounter.Add(1))
}

// stamp fills in generated fields on an outgoing envelope.
func stamp(env Envelope) Envelope {
	if env.ID == "" {
		env.ID = generateEnvelopeID()
	}
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now()
	}
	return env
}
