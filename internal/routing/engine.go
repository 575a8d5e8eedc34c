// Package routing implements strategy-based worker selection. An Engine runs
// an ordered chain of pluggable strategies over the candidates eligible for a
// task's domain; the first strategy to produce a match wins, and a default-role
// fallback covers tasks no strategy claims.
package routing

import (
	"sync"

	"github.com/colonycore/colony/internal/domain"
	"github.com/colonycore/colony/internal/errors"
	"github.com/colonycore/colony/internal/logging"
	"github.com/colonycore/colony/internal/task"
)

// Strategy maps a task and candidate pool to zero-or-one selected member.
// Strategies must not mutate the candidates or the domain configuration.
type Strategy interface {
	// Name identifies the strategy for registration and removal.
	Name() string

	// Select returns the chosen member and true, or false when the strategy
	// has no opinion on this task.
	Select(t task.Task, cfg *domain.Config, candidates []domain.Member) (domain.Member, bool)
}

// Engine runs strategies in registration order - the first non-none match
// wins and later strategies never override it.
type Engine struct {
	mu         sync.RWMutex
	registry   *domain.Registry
	strategies []Strategy
	log        *logging.Logger
}

// NewEngine creates an Engine over the given domain registry with the
// supplied strategies, in order.
func NewEngine(registry *domain.Registry, logger *logging.Logger, strategies ...Strategy) *Engine {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Engine{
		registry:   registry,
		strategies: strategies,
		log:        logger,
	}
}

// AddStrategy appends a strategy to the end of the chain.
func (e *Engine) AddStrategy(s Strategy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.strategies = append(e.strategies, s)
}

// RemoveStrategy removes the first strategy with the given name.
// Returns true if a strategy was removed.
func (e *Engine) RemoveStrategy(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, s := range e.strategies {
		if s.Name() == name {
			e.strategies = append(e.strategies[:i], e.strategies[i+1:]...)
			return true
		}
	}
	return false
}

// Strategies returns the names of the registered strategies, in order.
func (e *Engine) Strategies() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, len(e.strategies))
	for i, s := range e.strategies {
		names[i] = s.Name()
	}
	return names
}

// FindBestMember selects a member for the task. Candidates are first filtered
// to the task's domain, then each strategy runs in order. If none match, the
// fallback picks any candidate holding the domain's default role with nonzero
// availability, then any candidate with nonzero availability. Returns
// ErrNoMatch when nothing qualifies.
func (e *Engine) FindBestMember(t task.Task, candidates []domain.Member) (domain.Member, error) {
	cfg, err := e.registry.Lookup(t.Domain)
	if err != nil {
		return domain.Member{}, errors.NewRoutingError("unknown task domain", err).
			WithTaskID(t.ID).WithDomain(t.Domain)
	}

	eligible := make([]domain.Member, 0, len(candidates))
	for _, c := range candidates {
		if c.Domain == t.Domain {
			eligible = append(eligible, c)
		}
	}
	if len(eligible) == 0 {
		return domain.Member{}, errors.NewRoutingError("no candidates in domain", errors.ErrNoMatch).
			WithTaskID(t.ID).WithDomain(t.Domain)
	}

	e.mu.RLock()
	strategies := make([]Strategy, len(e.strategies))
	copy(strategies, e.strategies)
	e.mu.RUnlock()

	for _, s := range strategies {
		if m, ok := s.Select(t, cfg, eligible); ok {
			e.log.Debug("strategy matched",
				"strategy", s.Name(), "task_id", t.ID, "member_id", m.ID)
			return m, nil
		}
	}

	if m, ok := fallback(cfg, eligible); ok {
		e.log.Debug("fallback matched", "task_id", t.ID, "member_id", m.ID)
		return m, nil
	}

	return domain.Member{}, errors.NewRoutingError("all strategies declined", errors.ErrNoMatch).
		WithTaskID(t.ID).WithDomain(t.Domain)
}

// fallback returns a default-role candidate with nonzero availability, else
// any candidate with nonzero availability.
func fallback(cfg *domain.Config, candidates []domain.Member) (domain.Member, bool) {
	for _, c := range candidates {
		if c.Role == cfg.DefaultRole && c.Availability > 0 {
			return c, true
		}
	}
	for _, c := range candidates {
		if c.Availability > 0 {
			return c, true
		}
	}
	return domain.Member{}, false
}
