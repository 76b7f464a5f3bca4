package schedule

import (
	"fmt"
	"sort"
	"strings"
)

var weekdayNames = [7]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// Describe renders a diagnostic summary of the parsed expression.
// It is never used for scheduling decisions.
func (s *Spec) Describe() string {
	segs := make([]string, 0, 5)
	for i, def := range fieldDefs {
		segs = append(segs, describeField(def, s.sets[i]))
	}
	return strings.Join(segs, ", ")
}

// Describe parses expr and summarizes it.
func Describe(expr string) (string, error) {
	s, err := Parse(expr)
	if err != nil {
		return "", err
	}
	return s.Describe(), nil
}

func describeField(def fieldDef, set map[int]bool) string {
	full := len(set) == def.max-def.min+1
	if full {
		return "every " + def.name
	}

	vals := make([]int, 0, len(set))
	for v := range set {
		vals = append(vals, v)
	}
	sort.Ints(vals)

	if len(vals) == 1 {
		return fmt.Sprintf("%s %s", def.name, fieldValue(def, vals[0]))
	}

	names := make([]string, 0, len(vals))
	for _, v := range vals {
		names = append(names, fieldValue(def, v))
	}
	return fmt.Sprintf("%ss %s", def.name, strings.Join(names, "/"))
}

func fieldValue(def fieldDef, v int) string {
	if def.name == "day-of-week" && v >= 0 && v <= 6 {
		return weekdayNames[v]
	}
	return fmt.Sprintf("%d", v)
}
