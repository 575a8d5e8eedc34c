package routing

import (
	"sort"
	"strings"
	"sync"

	"github.com/colonycore/colony/internal/domain"
	"github.com/colonycore/colony/internal/task"
)

// KeywordStrategy routes tasks by the domain's keyword rules. Rules are
// evaluated in descending declared priority; a rule matches when any of its
// keywords is a case-insensitive substring of the task payload. Among
// candidates holding one of the rule's target roles, the highest availability
// wins.
type KeywordStrategy struct{}

// Name implements Strategy.
func (KeywordStrategy) Name() string { return "keyword" }

// Select implements Strategy.
func (KeywordStrategy) Select(t task.Task, cfg *domain.Config, candidates []domain.Member) (domain.Member, bool) {
	payload := strings.ToLower(t.Payload)

	rules := make([]domain.RoutingRule, len(cfg.Rules))
	copy(rules, cfg.Rules)
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority > rules[j].Priority
	})

	for _, rule := range rules {
		if !matchesKeyword(payload, rule.Keywords) {
			continue
		}

		var best domain.Member
		found := false
		for _, c := range candidates {
			if c.Availability <= 0 || !holdsRole(c, rule.TargetRoles) {
				continue
			}
			if !found || c.Availability > best.Availability {
				best = c
				found = true
			}
		}
		if found {
			return best, true
		}
	}
	return domain.Member{}, false
}

func matchesKeyword(payload string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(payload, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func holdsRole(m domain.Member, roles []string) bool {
	for _, r := range roles {
		if m.Role == r {
			return true
		}
	}
	return false
}

// SkillStrategy scores each candidate by how many of its personal skills and
// role-declared skills appear as substrings of the task payload. Candidates
// scoring zero are excluded; the rest sort by score descending, then
// availability descending.
type SkillStrategy struct{}

// Name implements Strategy.
func (SkillStrategy) Name() string { return "skill" }

// Select implements Strategy.
func (SkillStrategy) Select(t task.Task, cfg *domain.Config, candidates []domain.Member) (domain.Member, bool) {
	payload := strings.ToLower(t.Payload)

	type scored struct {
		member domain.Member
		score  int
	}

	var ranked []scored
	for _, c := range candidates {
		score := countSkillMatches(payload, c.Skills)
		if role, ok := cfg.Role(c.Role); ok {
			score += countSkillMatches(payload, role.Skills)
		}
		if score > 0 {
			ranked = append(ranked, scored{member: c, score: score})
		}
	}
	if len(ranked) == 0 {
		return domain.Member{}, false
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].member.Availability > ranked[j].member.Availability
	})

	return ranked[0].member, true
}

func countSkillMatches(payload string, skills []string) int {
	count := 0
	for _, s := range skills {
		if s != "" && strings.Contains(payload, strings.ToLower(s)) {
			count++
		}
	}
	return count
}

// RoundRobinStrategy cycles through the currently-available candidates of
// each domain. The per-domain index advances as (last + 1) mod availableCount
// over the available list at call time, so membership changes shift which
// member the index lands on - this matches the documented assignment order
// and is deliberately not a stable global ring.
type RoundRobinStrategy struct {
	mu   sync.Mutex
	last map[string]int // domain id -> last assigned index
}

// NewRoundRobinStrategy creates a RoundRobinStrategy with empty state.
func NewRoundRobinStrategy() *RoundRobinStrategy {
	return &RoundRobinStrategy{last: make(map[string]int)}
}

// Name implements Strategy.
func (*RoundRobinStrategy) Name() string { return "round_robin" }

// Select implements Strategy.
func (s *RoundRobinStrategy) Select(t task.Task, cfg *domain.Config, candidates []domain.Member) (domain.Member, bool) {
	available := make([]domain.Member, 0, len(candidates))
	for _, c := range candidates {
		if c.Availability > 0 {
			available = append(available, c)
		}
	}
	if len(available) == 0 {
		return domain.Member{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.last[cfg.ID]
	if !ok {
		idx = -1
	}
	idx = (idx + 1) % len(available)
	s.last[cfg.ID] = idx

	return available[idx], true
}
