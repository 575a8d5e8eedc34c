// Package worker implements the task-executing side of the system. A Runner
// subscribes to its transport inbox, matches each incoming task against an
// ordered list of (predicate, handler) pairs, executes the first match under
// the shared retry policy, and reports a Result back to the sender.
package worker

import (
	"context"
	"strings"
	"sync"

	"github.com/colonycore/colony/internal/errors"
	"github.com/colonycore/colony/internal/logging"
	"github.com/colonycore/colony/internal/retry"
	"github.com/colonycore/colony/internal/task"
	"github.com/colonycore/colony/internal/transport"
)

// Handler executes one task and returns its output.
type Handler func(ctx context.Context, t task.Task) (string, error)

// Predicate reports whether a handler applies to a task.
type Predicate func(t task.Task) bool

// PayloadContains returns a Predicate matching tasks whose payload contains
// the given substring, case-sensitively.
func PayloadContains(substr string) Predicate {
	return func(t task.Task) bool {
		return strings.Contains(t.Payload, substr)
	}
}

// DomainIs returns a Predicate matching tasks tagged with the given domain.
func DomainIs(domain string) Predicate {
	return func(t task.Task) bool { return t.Domain == domain }
}

// Any matches every task. Registered last it acts as a catch-all.
func Any() Predicate {
	return func(task.Task) bool { return true }
}

type handlerEntry struct {
	name      string
	predicate Predicate
	handler   Handler
}

// Runner executes tasks delivered over a transport. It runs one task at a
// time; the coordinator enforces the same by holding the worker Busy for the
// duration of each assignment.
type Runner struct {
	id     string
	tr     transport.Transport
	policy retry.Policy
	log    *logging.Logger

	mu       sync.Mutex
	handlers []handlerEntry
	cancel   func()
}

// Option configures a Runner.
type Option func(*Runner)

// WithPolicy sets the retry policy wrapped around handler execution.
func WithPolicy(p retry.Policy) Option {
	return func(r *Runner) { r.policy = p }
}

// WithLogger sets the runner's logger.
func WithLogger(log *logging.Logger) Option {
	return func(r *Runner) { r.log = log }
}

// New creates a Runner with the given transport identity.
func New(id string, tr transport.Transport, opts ...Option) *Runner {
	r := &Runner{
		id:     id,
		tr:     tr,
		policy: retry.NewExponentialBackoff(),
		log:    logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.WithWorker(id)
	return r
}

// ID returns the runner's transport identity.
func (r *Runner) ID() string { return r.id }

// Register appends a (predicate, handler) pair. Pairs are evaluated in
// registration order and the first matching predicate wins; later
// registrations never override an earlier match.
func (r *Runner) Register(name string, predicate Predicate, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, handlerEntry{name: name, predicate: predicate, handler: handler})
}

// Start subscribes the runner to its inbox. Each task envelope is handled
// synchronously in delivery order, so the runner never executes two tasks
// concurrently.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.cancel != nil {
		r.mu.Unlock()
		return errors.NewValidationError("runner already started").WithField("id").WithValue(r.id)
	}
	r.mu.Unlock()

	cancel, err := r.tr.Subscribe(r.id, func(env transport.Envelope) {
		r.HandleMessage(ctx, env)
	})
	if err != nil {
		return errors.Wrapf(err, "subscribing worker %s", r.id)
	}

	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	r.log.Info("worker started")
	return nil
}

// Stop cancels the transport subscription. A task already executing runs to
// completion.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		r.log.Info("worker stopped")
	}
}

// HandleMessage processes one envelope: task envelopes are executed and
// answered with a Result addressed to the sender; everything else is
// ignored with a log line.
func (r *Runner) HandleMessage(ctx context.Context, env transport.Envelope) {
	if env.Kind != transport.KindTask || env.Task == nil {
		r.log.Warn("ignoring non-task envelope", "kind", string(env.Kind), "from", env.From)
		return
	}

	t := *env.Task
	res := r.execute(ctx, t)

	if err := r.tr.Send(transport.NewResultEnvelope(r.id, env.From, res)); err != nil {
		r.log.Error("sending result", "task_id", t.ID, "error", err.Error())
	}
}

// execute runs the first matching handler under the retry policy and folds
// the outcome into a Result.
func (r *Runner) execute(ctx context.Context, t task.Task) task.Result {
	entry, ok := r.match(t)
	if !ok {
		r.log.Warn("no handler matches task", "task_id", t.ID)
		return task.NewFailedResult(t.ID, r.id,
			errors.Wrapf(errors.ErrNoMatch, "no handler for task %s", t.ID))
	}

	log := r.log.WithTask(t.ID)
	log.Debug("executing task", "handler", entry.name)

	var output string
	err := retry.Do(ctx, r.policy, func() error {
		var handlerErr error
		output, handlerErr = entry.handler(ctx, t)
		return handlerErr
	})
	if err != nil {
		log.Warn("task failed", "handler", entry.name, "error", err.Error())
		return task.NewFailedResult(t.ID, r.id, err)
	}

	log.Debug("task succeeded", "handler", entry.name)
	return task.NewResult(t.ID, r.id, output)
}

// match returns the first registered handler whose predicate accepts the
// task.
func (r *Runner) match(t task.Task) (handlerEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, entry := range r.handlers {
		if entry.predicate(t) {
			return entry, true
		}
	}
	return handlerEntry{}, false
}
