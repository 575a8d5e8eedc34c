package domain

import (
	"testing"

	"github.com/colonycore/colony/internal/errors"
)

func contentDomain() *Config {
	return &Config{
		ID: "content",
		Roles: []Role{
			{ID: "writer", Skills: []string{"drafting", "editing"}, CanLead: true},
			{ID: "reviewer", Skills: []string{"review"}},
		},
		Rules: []RoutingRule{
			{Keywords: []string{"draft"}, TargetRoles: []string{"writer"}, Priority: 10},
		},
		DefaultRole: "writer",
	}
}

func TestConfig_Role(t *testing.T) {
	c := contentDomain()

	r, ok := c.Role("reviewer")
	if !ok {
		t.Fatal("Role(reviewer) not found")
	}
	if len(r.Skills) != 1 || r.Skills[0] != "review" {
		t.Errorf("reviewer skills = %v", r.Skills)
	}

	if _, ok := c.Role("missing"); ok {
		t.Error("Role(missing) reported found")
	}
}

func TestRegistry_Lookup(t *testing.T) {
	reg := NewRegistry(contentDomain())

	c, err := reg.Lookup("content")
	if err != nil {
		t.Fatalf("Lookup(content) error = %v", err)
	}
	if c.DefaultRole != "writer" {
		t.Errorf("DefaultRole = %q, want writer", c.DefaultRole)
	}

	_, err = reg.Lookup("ops")
	if !errors.Is(err, errors.ErrDomainNotFound) {
		t.Errorf("Lookup(ops) error = %v, want ErrDomainNotFound", err)
	}
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	reg := NewRegistry(contentDomain())

	updated := contentDomain()
	updated.DefaultRole = "reviewer"
	reg.Register(updated)

	c, err := reg.Lookup("content")
	if err != nil {
		t.Fatalf("Lookup error = %v", err)
	}
	if c.DefaultRole != "reviewer" {
		t.Errorf("DefaultRole = %q, want reviewer after replace", c.DefaultRole)
	}

	if got := len(reg.IDs()); got != 1 {
		t.Errorf("IDs() length = %d, want 1", got)
	}
}
