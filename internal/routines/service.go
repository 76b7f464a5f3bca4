package routines

import (
	"context"
	"fmt"
	"time"

	"taskherd/internal/agents"
	"taskherd/internal/tasks"
	"taskherd/pkg/logx"
)

// Service materializes due routines into tasks. It is driven externally on a
// fixed tick (the runner registers Tick at 60s by default); it owns no timer
// of its own.
type Service struct {
	store    *Store
	tasks    *tasks.Store
	registry agents.Registry
	resolver *agents.Resolver
	log      logx.Logger

	now func() time.Time
}

func NewService(store *Store, taskStore *tasks.Store, registry agents.Registry, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		store:    store,
		tasks:    taskStore,
		registry: registry,
		resolver: agents.NewResolver(registry),
		log:      log,
		now:      time.Now,
	}
}

// Store exposes the routine store for the embedding API layer.
func (s *Service) Store() *Store { return s.store }

// Tick executes every due routine once. A failure in one routine is logged
// and skipped without touching its NextRun (so it stays due and retries next
// tick) and without aborting the remaining due routines.
func (s *Service) Tick(ctx context.Context) error {
	now := s.now()
	due := s.store.Due(now)
	if len(due) == 0 {
		return nil
	}
	s.log.Debug("routine tick", logx.Int("due", len(due)))

	failed := 0
	for _, r := range due {
		if err := s.runOne(ctx, r, now); err != nil {
			failed++
			s.log.Warn("routine execution failed", logx.String("routine", r.ID), logx.String("name", r.Name), logx.Err(err))
			continue
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d due routines failed", failed, len(due))
	}
	return nil
}

func (s *Service) runOne(ctx context.Context, r Routine, now time.Time) error {
	tpl := r.Template
	in := tasks.CreateInput{
		Title:          tpl.Title,
		Description:    tpl.Description,
		ProjectID:      tpl.ProjectID,
		Tags:           append([]string(nil), tpl.Tags...),
		Priority:       tpl.Priority,
		EstimatedHours: tpl.EstimatedHours,
	}
	if in.Title == "" {
		in.Title = r.Name
	}

	// A template assignee naming a registered agent is a direct assignment;
	// anything else is a role hint for the resolver.
	if tpl.AssignedTo != "" {
		if _, ok := s.registry.Get(tpl.AssignedTo); ok {
			in.AssignedTo = tpl.AssignedTo
		} else if agent, ok := s.resolver.Resolve(tpl.AssignedTo); ok {
			in.AssignedTo = agent.ID
		} else {
			s.log.Debug("no agent for routine assignee hint", logx.String("routine", r.ID), logx.String("hint", tpl.AssignedTo))
		}
	}

	task, err := s.tasks.Create(ctx, in, "routine:"+r.ID)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}

	if _, err := s.store.RecordExecution(r.ID, now); err != nil {
		// Task exists but the routine stays due; next tick will create a
		// duplicate. Surface loudly rather than hiding it.
		return fmt.Errorf("record execution (task %s created): %w", task.ID, err)
	}

	s.log.Info("routine executed", logx.String("routine", r.ID), logx.String("name", r.Name), logx.String("task", task.ID))
	return nil
}
