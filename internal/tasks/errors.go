package tasks

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound signals a mutation against an unknown task id.
// Read-like lookups return (Task, false) instead.
var ErrNotFound = errors.New("task not found")

// ErrTitleRequired rejects task creation without a title.
var ErrTitleRequired = errors.New("task title is required")

// CircularDependencyError rejects a dependency edge that would close a cycle.
// Path lists the task ids along the offending chain, ending back at TaskID.
type CircularDependencyError struct {
	TaskID string
	Path   []string
}

func (e *CircularDependencyError) Error() string {
	if len(e.Path) > 0 {
		return fmt.Sprintf("circular dependency on task %s: %s", e.TaskID, strings.Join(e.Path, " -> "))
	}
	return fmt.Sprintf("circular dependency on task %s", e.TaskID)
}
