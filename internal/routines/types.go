// Package routines holds recurring task templates bound to 5-field schedule
// expressions, and the tick service that materializes due routines into
// tasks.
package routines

import "errors"

// ErrNotFound signals a mutation against an unknown routine id.
var ErrNotFound = errors.New("routine not found")

// ErrNameRequired rejects routine creation without a name.
var ErrNameRequired = errors.New("routine name is required")

// TaskTemplate is the task blueprint a routine stamps out on each run.
// AssignedTo may be a concrete agent id or a role hint; the tick service
// decides which by asking the registry.
type TaskTemplate struct {
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	AssignedTo     string   `json:"assignedTo,omitempty"`
	ProjectID      string   `json:"projectId,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	Priority       string   `json:"priority,omitempty"`
	EstimatedHours float64  `json:"estimatedHours,omitempty"`
}

// Routine is a recurring task definition.
//
// NextRun is always recomputed from "now" (at creation and after each
// execution), never from the previous NextRun: a delayed scheduler therefore
// never fires a catch-up storm, at the cost of drifting later than the
// nominal slot when ticks are delayed.
type Routine struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Schedule string       `json:"schedule"`
	Template TaskTemplate `json:"taskTemplate"`
	Enabled  bool         `json:"enabled"`
	LastRun  int64        `json:"lastRun,omitempty"` // unix seconds
	NextRun  int64        `json:"nextRun"`           // unix seconds
}

// clone returns a copy safe to hand out across the store boundary.
func (r *Routine) clone() Routine {
	cp := *r
	cp.Template.Tags = append([]string(nil), r.Template.Tags...)
	return cp
}

// CreateInput carries the fields for a new routine. Disabled is inverted so
// the zero value creates an enabled routine.
type CreateInput struct {
	Name     string
	Schedule string
	Template TaskTemplate
	Disabled bool
}

// Patch holds optional routine updates; nil means "leave unchanged".
type Patch struct {
	Name     *string
	Schedule *string
	Template *TaskTemplate
	Enabled  *bool
}
