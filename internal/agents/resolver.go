package agents

import "sort"

// Resolver matches new tasks to agents by declared role.
type Resolver struct {
	reg Registry
}

func NewResolver(reg Registry) *Resolver {
	return &Resolver{reg: reg}
}

// Resolve picks an agent for a role hint: online agents win over offline
// ones, ties break on id for determinism. Empty result means no match.
func (r *Resolver) Resolve(roleHint string) (Agent, bool) {
	if roleHint == "" {
		return Agent{}, false
	}
	candidates := r.reg.FindByRole(roleHint)
	if len(candidates) == 0 {
		return Agent{}, false
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Online != candidates[j].Online {
			return candidates[i].Online
		}
		return candidates[i].ID < candidates[j].ID
	})
	return candidates[0], true
}
