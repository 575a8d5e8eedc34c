package routing

import (
	"testing"

	"github.com/colonycore/colony/internal/domain"
	"github.com/colonycore/colony/internal/errors"
	"github.com/colonycore/colony/internal/logging"
	"github.com/colonycore/colony/internal/task"
)

func contentDomain() *domain.Config {
	return &domain.Config{
		ID: "content",
		Roles: []domain.Role{
			{ID: "writer", Skills: []string{"draft", "edit"}, CanLead: true},
			{ID: "reviewer", Skills: []string{"review"}},
			{ID: "analyst", Skills: []string{"metrics"}},
		},
		Rules: []domain.RoutingRule{
			{Keywords: []string{"review", "feedback"}, TargetRoles: []string{"reviewer"}, Priority: 20},
			{Keywords: []string{"draft"}, TargetRoles: []string{"writer"}, Priority: 10},
		},
		DefaultRole: "writer",
	}
}

func members() []domain.Member {
	return []domain.Member{
		{ID: "alice", Domain: "content", Role: "writer", Skills: []string{"headline"}, Availability: 0.8},
		{ID: "bob", Domain: "content", Role: "reviewer", Skills: []string{"grammar"}, Availability: 0.5},
		{ID: "carol", Domain: "content", Role: "analyst", Skills: []string{"engagement"}, Availability: 1.0},
		{ID: "dave", Domain: "ops", Role: "sre", Skills: []string{"deploy"}, Availability: 1.0},
	}
}

func newTask(payload string) task.Task {
	t := task.New("caller", "", payload, 0)
	t.Domain = "content"
	return t
}

func newEngine(t *testing.T, strategies ...Strategy) *Engine {
	t.Helper()
	reg := domain.NewRegistry(contentDomain())
	return NewEngine(reg, logging.NopLogger(), strategies...)
}

// -----------------------------------------------------------------------------
// Engine Tests
// -----------------------------------------------------------------------------

func TestEngine_FiltersToTaskDomain(t *testing.T) {
	e := newEngine(t, NewRoundRobinStrategy())

	// Only dave is in ops, and ops is not registered.
	tk := newTask("anything")
	tk.Domain = "ops"
	_, err := e.FindBestMember(tk, members())
	if !errors.Is(err, errors.ErrDomainNotFound) {
		t.Errorf("error = %v, want ErrDomainNotFound", err)
	}

	// A content task must never select dave.
	for i := 0; i < 10; i++ {
		m, err := e.FindBestMember(newTask("anything"), members())
		if err != nil {
			t.Fatalf("FindBestMember error = %v", err)
		}
		if m.ID == "dave" {
			t.Fatal("selected member from another domain")
		}
	}
}

func TestEngine_FirstMatchWins(t *testing.T) {
	// Keyword matches bob; round-robin would pick someone else. Keyword is
	// registered first, so its match must stand.
	e := newEngine(t, KeywordStrategy{}, NewRoundRobinStrategy())

	m, err := e.FindBestMember(newTask("please review this post"), members())
	if err != nil {
		t.Fatalf("FindBestMember error = %v", err)
	}
	if m.ID != "bob" {
		t.Errorf("selected %q, want bob (first strategy match must win)", m.ID)
	}
}

func TestEngine_FallbackDefaultRole(t *testing.T) {
	// No strategies at all: fall back to the default role with availability.
	e := newEngine(t)

	m, err := e.FindBestMember(newTask("no keywords here"), members())
	if err != nil {
		t.Fatalf("FindBestMember error = %v", err)
	}
	if m.ID != "alice" {
		t.Errorf("selected %q, want alice (default role fallback)", m.ID)
	}
}

func TestEngine_FallbackAnyAvailable(t *testing.T) {
	e := newEngine(t)

	// Default-role holder has zero availability; any available member wins.
	pool := []domain.Member{
		{ID: "alice", Domain: "content", Role: "writer", Availability: 0},
		{ID: "carol", Domain: "content", Role: "analyst", Availability: 0.3},
	}
	m, err := e.FindBestMember(newTask("x"), pool)
	if err != nil {
		t.Fatalf("FindBestMember error = %v", err)
	}
	if m.ID != "carol" {
		t.Errorf("selected %q, want carol", m.ID)
	}
}

func TestEngine_NoMatch(t *testing.T) {
	e := newEngine(t)

	pool := []domain.Member{
		{ID: "alice", Domain: "content", Role: "writer", Availability: 0},
	}
	_, err := e.FindBestMember(newTask("x"), pool)
	if !errors.Is(err, errors.ErrNoMatch) {
		t.Errorf("error = %v, want ErrNoMatch", err)
	}
}

func TestEngine_AddRemoveStrategies(t *testing.T) {
	e := newEngine(t, KeywordStrategy{})
	e.AddStrategy(SkillStrategy{})
	e.AddStrategy(NewRoundRobinStrategy())

	want := []string{"keyword", "skill", "round_robin"}
	got := e.Strategies()
	if len(got) != len(want) {
		t.Fatalf("Strategies() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Strategies()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if !e.RemoveStrategy("skill") {
		t.Fatal("RemoveStrategy(skill) = false")
	}
	if e.RemoveStrategy("skill") {
		t.Error("RemoveStrategy(skill) removed twice")
	}
	if got := e.Strategies(); len(got) != 2 {
		t.Errorf("Strategies() after removal = %v", got)
	}
}

// -----------------------------------------------------------------------------
// KeywordStrategy Tests
// -----------------------------------------------------------------------------

func TestKeywordStrategy_PriorityOrder(t *testing.T) {
	cfg := contentDomain()
	s := KeywordStrategy{}

	// Payload matches both the review rule (priority 20) and the draft rule
	// (priority 10). The higher-priority rule must win.
	m, ok := s.Select(newTask("review the draft"), cfg, members())
	if !ok {
		t.Fatal("Select returned no match")
	}
	if m.ID != "bob" {
		t.Errorf("selected %q, want bob (reviewer rule has higher priority)", m.ID)
	}
}

func TestKeywordStrategy_CaseInsensitive(t *testing.T) {
	cfg := contentDomain()
	s := KeywordStrategy{}

	m, ok := s.Select(newTask("REVIEW This Immediately"), cfg, members())
	if !ok {
		t.Fatal("Select returned no match for mixed-case payload")
	}
	if m.ID != "bob" {
		t.Errorf("selected %q, want bob", m.ID)
	}
}

func TestKeywordStrategy_HighestAvailabilityAmongTargetRole(t *testing.T) {
	cfg := contentDomain()
	s := KeywordStrategy{}

	pool := []domain.Member{
		{ID: "r1", Domain: "content", Role: "reviewer", Availability: 0.2},
		{ID: "r2", Domain: "content", Role: "reviewer", Availability: 0.9},
		{ID: "r3", Domain: "content", Role: "reviewer", Availability: 0.4},
	}
	m, ok := s.Select(newTask("needs feedback"), cfg, pool)
	if !ok {
		t.Fatal("Select returned no match")
	}
	if m.ID != "r2" {
		t.Errorf("selected %q, want r2 (highest availability)", m.ID)
	}
}

func TestKeywordStrategy_NoKeywordMatch(t *testing.T) {
	cfg := contentDomain()
	s := KeywordStrategy{}

	if _, ok := s.Select(newTask("unrelated payload"), cfg, members()); ok {
		t.Error("Select matched a payload with no rule keywords")
	}
}

func TestKeywordStrategy_SkipsUnavailableTargets(t *testing.T) {
	cfg := contentDomain()
	s := KeywordStrategy{}

	pool := []domain.Member{
		{ID: "r1", Domain: "content", Role: "reviewer", Availability: 0},
	}
	if _, ok := s.Select(newTask("review this"), cfg, pool); ok {
		t.Error("Select matched a rule whose only target has zero availability")
	}
}

// -----------------------------------------------------------------------------
// SkillStrategy Tests
// -----------------------------------------------------------------------------

func TestSkillStrategy_ScoresPersonalAndRoleSkills(t *testing.T) {
	cfg := contentDomain()
	s := SkillStrategy{}

	// "draft a headline" matches alice's personal skill "headline" plus her
	// writer role skill "draft": score 2. bob scores 0 and is excluded.
	m, ok := s.Select(newTask("draft a headline for launch"), cfg, members())
	if !ok {
		t.Fatal("Select returned no match")
	}
	if m.ID != "alice" {
		t.Errorf("selected %q, want alice", m.ID)
	}
}

func TestSkillStrategy_ExcludesZeroScores(t *testing.T) {
	cfg := contentDomain()
	s := SkillStrategy{}

	if _, ok := s.Select(newTask("nothing relevant"), cfg, members()); ok {
		t.Error("Select matched with all candidates scoring zero")
	}
}

func TestSkillStrategy_TieBrokenByAvailability(t *testing.T) {
	cfg := contentDomain()
	s := SkillStrategy{}

	pool := []domain.Member{
		{ID: "w1", Domain: "content", Role: "writer", Availability: 0.3},
		{ID: "w2", Domain: "content", Role: "writer", Availability: 0.9},
	}
	// Both score 1 through the shared role skill "draft".
	m, ok := s.Select(newTask("draft the notes"), cfg, pool)
	if !ok {
		t.Fatal("Select returned no match")
	}
	if m.ID != "w2" {
		t.Errorf("selected %q, want w2 (higher availability on tie)", m.ID)
	}
}

// -----------------------------------------------------------------------------
// RoundRobinStrategy Tests
// -----------------------------------------------------------------------------

func TestRoundRobin_CyclesThroughCandidates(t *testing.T) {
	cfg := contentDomain()
	s := NewRoundRobinStrategy()

	pool := []domain.Member{
		{ID: "a", Domain: "content", Role: "writer", Availability: 1},
		{ID: "b", Domain: "content", Role: "writer", Availability: 1},
		{ID: "c", Domain: "content", Role: "writer", Availability: 1},
	}

	seen := make(map[string]int)
	var order []string
	for i := 0; i < len(pool)+1; i++ {
		m, ok := s.Select(newTask("x"), cfg, pool)
		if !ok {
			t.Fatal("Select returned no match")
		}
		seen[m.ID]++
		order = append(order, m.ID)
	}

	// K+1 calls over K candidates: everyone assigned at least once and the
	// (K+1)-th call repeats the first candidate.
	for _, p := range pool {
		if seen[p.ID] == 0 {
			t.Errorf("candidate %q never assigned", p.ID)
		}
	}
	if order[len(order)-1] != order[0] {
		t.Errorf("call %d selected %q, want %q (wrap around)", len(pool)+1, order[len(order)-1], order[0])
	}
}

func TestRoundRobin_IndexOverAvailableList(t *testing.T) {
	cfg := contentDomain()
	s := NewRoundRobinStrategy()

	pool := []domain.Member{
		{ID: "a", Domain: "content", Role: "writer", Availability: 1},
		{ID: "b", Domain: "content", Role: "writer", Availability: 0},
		{ID: "c", Domain: "content", Role: "writer", Availability: 1},
	}

	// Only a and c are available, so two calls cycle between them.
	first, _ := s.Select(newTask("x"), cfg, pool)
	second, _ := s.Select(newTask("x"), cfg, pool)
	if first.ID == second.ID {
		t.Errorf("round robin repeated %q with two available candidates", first.ID)
	}
	if first.ID == "b" || second.ID == "b" {
		t.Error("round robin selected an unavailable candidate")
	}
}

func TestRoundRobin_PerDomainIndex(t *testing.T) {
	content := contentDomain()
	ops := &domain.Config{ID: "ops", DefaultRole: "sre"}
	s := NewRoundRobinStrategy()

	pool := []domain.Member{
		{ID: "a", Domain: "content", Role: "writer", Availability: 1},
		{ID: "b", Domain: "content", Role: "writer", Availability: 1},
	}

	c1, _ := s.Select(newTask("x"), content, pool)
	// A call against another domain must not advance content's index.
	s.Select(newTask("x"), ops, pool)
	c2, _ := s.Select(newTask("x"), content, pool)

	if c1.ID == c2.ID {
		t.Errorf("content index did not advance: got %q twice", c1.ID)
	}
}

func TestRoundRobin_NoAvailableCandidates(t *testing.T) {
	cfg := contentDomain()
	s := NewRoundRobinStrategy()

	pool := []domain.Member{
		{ID: "a", Domain: "content", Role: "writer", Availability: 0},
	}
	if _, ok := s.Select(newTask("x"), cfg, pool); ok {
		t.Error("Select matched with no available candidates")
	}
}
