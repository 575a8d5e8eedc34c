// Package domain holds the read-only routing configuration: the roles,
// keyword rules, and default role of each named domain, plus the member
// descriptors strategies choose between. The core never mutates a Config;
// callers construct a Registry and pass it in explicitly.
package domain

import (
	"sync"

	"github.com/colonycore/colony/internal/errors"
)

// Role describes a capability profile a member can hold within a domain.
type Role struct {
	// ID names the role (e.g. "writer", "reviewer").
	ID string `json:"id"`

	// Skills lists skills the role implies for every holder.
	Skills []string `json:"skills,omitempty"`

	// CanLead marks roles eligible to lead multi-member work.
	CanLead bool `json:"can_lead,omitempty"`
}

// RoutingRule maps payload keywords to target roles with a priority.
// Higher-priority rules are evaluated first by the keyword strategy.
type RoutingRule struct {
	// Keywords trigger the rule when any is a case-insensitive substring
	// of the task payload.
	Keywords []string `json:"keywords"`

	// TargetRoles restricts the rule to members holding one of these roles.
	TargetRoles []string `json:"target_roles"`

	// Priority orders rule evaluation; higher values win.
	Priority int `json:"priority"`
}

// Config is the immutable routing configuration for one domain.
type Config struct {
	// ID names the domain.
	ID string `json:"id"`

	// Roles is the ordered set of roles defined for the domain.
	Roles []Role `json:"roles"`

	// Rules is the domain's keyword routing rules.
	Rules []RoutingRule `json:"rules,omitempty"`

	// DefaultRole is the fallback role when no strategy matches.
	DefaultRole string `json:"default_role"`
}

// Role returns the role with the given id, or false if the domain does not
// define it.
func (c *Config) Role(id string) (Role, bool) {
	for _, r := range c.Roles {
		if r.ID == id {
			return r, true
		}
	}
	return Role{}, false
}

// Member describes a routable worker from the routing engine's point of view.
type Member struct {
	// ID is the worker id the coordinator dispatches to.
	ID string `json:"id"`

	// Domain is the domain the member belongs to.
	Domain string `json:"domain"`

	// Role is the member's role id within its domain.
	Role string `json:"role"`

	// Skills lists the member's personal skills, beyond those implied
	// by its role.
	Skills []string `json:"skills,omitempty"`

	// Availability is the member's capacity in [0, 1]; zero means the
	// member cannot take work.
	Availability float64 `json:"availability"`
}

// Registry is a read-only lookup of domain configurations by id.
// It is safe for concurrent use. Construct one and pass it to the routing
// engine; the core holds no global registry.
type Registry struct {
	mu      sync.RWMutex
	domains map[string]*Config
}

// NewRegistry creates a Registry preloaded with the given configurations.
func NewRegistry(configs ...*Config) *Registry {
	r := &Registry{domains: make(map[string]*Config, len(configs))}
	for _, c := range configs {
		r.domains[c.ID] = c
	}
	return r
}

// Register adds or replaces a domain configuration.
func (r *Registry) Register(c *Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.domains[c.ID] = c
}

// Lookup returns the configuration for the given domain id.
func (r *Registry) Lookup(id string) (*Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.domains[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrDomainNotFound, "domain %q", id)
	}
	return c, nil
}

// IDs returns the registered domain ids.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.domains))
	for id := range r.domains {
		ids = append(ids, id)
	}
	return ids
}
