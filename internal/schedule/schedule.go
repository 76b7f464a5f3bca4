// Package schedule implements the 5-field schedule expression engine used by
// routines: minute, hour, day-of-month, month, day-of-week (0 = Sunday).
//
// The grammar is deliberately strict: no names, no @descriptors, no seconds.
// Unlike robfig/cron this engine exposes per-field membership (Matches) and a
// diagnostic Describe, and rejects everything outside the documented grammar.
package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrNoMatch is returned by Next when no matching minute exists within the
// 4-year scan bound. That bound is a sanity limit, not a grammar constraint.
var ErrNoMatch = errors.New("schedule: no matching time within 4 years")

// FieldError reports which field of an expression failed validation and why.
type FieldError struct {
	Field  string // "minute", "hour", "day-of-month", "month", "day-of-week"
	Value  string // the raw field text as written
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("schedule: field %s: invalid value %q: %s", e.Field, e.Value, e.Reason)
}

type fieldDef struct {
	name string
	min  int
	max  int
}

var fieldDefs = [5]fieldDef{
	{name: "minute", min: 0, max: 59},
	{name: "hour", min: 0, max: 23},
	{name: "day-of-month", min: 1, max: 31},
	{name: "month", min: 1, max: 12},
	{name: "day-of-week", min: 0, max: 6},
}

// Spec is a parsed expression: one match set per field.
type Spec struct {
	raw  string
	part [5]string
	sets [5]map[int]bool
}

// Expression returns the original expression text.
func (s *Spec) Expression() string { return s.raw }

// Parse splits expr on whitespace and parses each of the exactly 5 fields
// into its match set. Field grammar, first matching case wins:
//
//	*        full range
//	a/b      step: start a (or range min for "*"), stride b
//	a-b      inclusive range, a <= b
//	a,b,c    list of bare integers
//	n        single value
func Parse(expr string) (*Spec, error) {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return nil, fmt.Errorf("schedule: expected 5 fields, got %d in %q", len(parts), expr)
	}
	s := &Spec{raw: expr}
	for i, raw := range parts {
		set, err := parseField(fieldDefs[i], raw)
		if err != nil {
			return nil, err
		}
		s.part[i] = raw
		s.sets[i] = set
	}
	return s, nil
}

func parseField(def fieldDef, raw string) (map[int]bool, error) {
	set := map[int]bool{}

	switch {
	case raw == "*":
		for v := def.min; v <= def.max; v++ {
			set[v] = true
		}

	case strings.Contains(raw, "/"):
		parts := strings.SplitN(raw, "/", 2)
		start := def.min
		if parts[0] != "*" {
			v, err := strconv.Atoi(parts[0])
			if err != nil {
				return nil, &FieldError{Field: def.name, Value: raw, Reason: "step start is not a number"}
			}
			if v < def.min || v > def.max {
				return nil, &FieldError{Field: def.name, Value: raw, Reason: fmt.Sprintf("step start out of range %d-%d", def.min, def.max)}
			}
			start = v
		}
		step, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, &FieldError{Field: def.name, Value: raw, Reason: "step is not a number"}
		}
		if step <= 0 {
			return nil, &FieldError{Field: def.name, Value: raw, Reason: "step must be positive"}
		}
		for v := start; v <= def.max; v += step {
			set[v] = true
		}

	case strings.Contains(raw, "-"):
		parts := strings.SplitN(raw, "-", 2)
		lo, err1 := strconv.Atoi(parts[0])
		hi, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil {
			return nil, &FieldError{Field: def.name, Value: raw, Reason: "range bounds are not numbers"}
		}
		if lo > hi {
			return nil, &FieldError{Field: def.name, Value: raw, Reason: "range start exceeds range end"}
		}
		if lo < def.min || hi > def.max {
			return nil, &FieldError{Field: def.name, Value: raw, Reason: fmt.Sprintf("range out of bounds %d-%d", def.min, def.max)}
		}
		for v := lo; v <= hi; v++ {
			set[v] = true
		}

	case strings.Contains(raw, ","):
		for _, item := range strings.Split(raw, ",") {
			v, err := strconv.Atoi(item)
			if err != nil {
				return nil, &FieldError{Field: def.name, Value: raw, Reason: fmt.Sprintf("list item %q is not a number", item)}
			}
			if v < def.min || v > def.max {
				return nil, &FieldError{Field: def.name, Value: raw, Reason: fmt.Sprintf("list item %d out of range %d-%d", v, def.min, def.max)}
			}
			set[v] = true
		}

	default:
		v, err := strconv.Atoi(raw)
		if err != nil {
			return nil, &FieldError{Field: def.name, Value: raw, Reason: "not a number"}
		}
		if v < def.min || v > def.max {
			return nil, &FieldError{Field: def.name, Value: raw, Reason: fmt.Sprintf("out of range %d-%d", def.min, def.max)}
		}
		set[v] = true
	}

	return set, nil
}

// Minutes exposes the minute match set (primarily for tests/diagnostics).
func (s *Spec) Minutes() map[int]bool { return s.sets[0] }

func (s *Spec) matches(t time.Time) bool {
	return s.sets[0][t.Minute()] &&
		s.sets[1][t.Hour()] &&
		s.sets[2][t.Day()] &&
		s.sets[3][int(t.Month())] &&
		s.sets[4][int(t.Weekday())]
}
