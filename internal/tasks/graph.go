package tasks

// wouldCycle checks whether replacing id's dependency set with proposed would
// close a cycle in the dependsOn graph. It walks the graph with an explicit
// stack (deep dependency chains must not risk stack exhaustion) and treats
// id's edges as already replaced, so multi-hop cycles (A->B->C->A) are caught
// against the proposed edge set, not just the persisted one.
//
// Callers hold s.mu.
func (s *Store) wouldCycle(id string, proposed []string) *CircularDependencyError {
	depsOf := func(tid string) []string {
		if tid == id {
			return proposed
		}
		if t, ok := s.index[tid]; ok {
			return t.DependsOn
		}
		// Dangling reference: nothing to follow.
		return nil
	}

	// Direct self-reference.
	for _, d := range proposed {
		if d == id {
			return &CircularDependencyError{TaskID: id, Path: []string{id, id}}
		}
	}

	visited := map[string]bool{}
	parent := map[string]string{}
	stack := make([]string, 0, len(proposed))
	for _, d := range proposed {
		parent[d] = id
		stack = append(stack, d)
	}

	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[n] {
			continue
		}
		visited[n] = true

		for _, next := range depsOf(n) {
			if next == id {
				return &CircularDependencyError{TaskID: id, Path: cyclePath(parent, n, id)}
			}
			if visited[next] {
				continue
			}
			if _, seen := parent[next]; !seen {
				parent[next] = n
			}
			stack = append(stack, next)
		}
	}
	return nil
}

// cyclePath rebuilds id -> ... -> last -> id from the DFS parent links.
func cyclePath(parent map[string]string, last, id string) []string {
	rev := []string{id, last}
	cur := last
	for {
		p, ok := parent[cur]
		if !ok || p == id {
			break
		}
		rev = append(rev, p)
		cur = p
	}
	rev = append(rev, id)
	// reverse into id -> ... -> id order
	out := make([]string, len(rev))
	for i, v := range rev {
		out[len(rev)-1-i] = v
	}
	return out
}
