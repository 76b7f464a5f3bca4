package schedule

import "time"

// scanBound caps the minute scan in Next. Any satisfiable 5-field expression
// matches well within 4 years (Feb 29 is the worst case).
const scanBound = 4 * 366 * 24 * time.Hour

// Next returns the first timestamp strictly after from (at minute
// granularity) whose components are contained in all five match sets.
//
// Deterministic: depends only on the spec and from, never on the wall clock.
func (s *Spec) Next(from time.Time) (time.Time, error) {
	t := from.Truncate(time.Minute).Add(time.Minute)
	limit := from.Add(scanBound)
	for !t.After(limit) {
		if s.matches(t) {
			return t, nil
		}
		t = t.Add(time.Minute)
	}
	return time.Time{}, ErrNoMatch
}

// Matches reports whether t (truncated to the minute) satisfies the spec.
func (s *Spec) Matches(t time.Time) bool {
	return s.matches(t)
}

// NextRun parses expr and computes the next run after from.
func NextRun(expr string, from time.Time) (time.Time, error) {
	s, err := Parse(expr)
	if err != nil {
		return time.Time{}, err
	}
	return s.Next(from)
}

// Matches parses expr and checks t against it.
func Matches(expr string, t time.Time) (bool, error) {
	s, err := Parse(expr)
	if err != nil {
		return false, err
	}
	return s.Matches(t), nil
}
