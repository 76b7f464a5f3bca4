package tasks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskherd/internal/eventbus"
	"taskherd/internal/storage"
	"taskherd/pkg/logx"
)

// Config configures a task store.
type Config struct {
	Path string
	// MaxRecords caps the persisted collection (default 1000). When the cap
	// is exceeded, the oldest done tasks are evicted first; live work is
	// never evicted.
	MaxRecords int
}

// Store owns the persisted task collection.
//
// Single-writer model: the store serializes its own mutations behind a mutex
// and assumes exclusive process ownership of the backing file. Every mutation
// rewrites the collection whole via temp-file + atomic rename.
type Store struct {
	mu sync.Mutex

	cfg   Config
	log   logx.Logger
	bus   eventbus.Bus
	audit storage.Store

	items []*Task
	index map[string]*Task
	// saved mirrors the last successfully persisted state; a failed save
	// restores from it so a rejected mutation never reaches a later save.
	saved []*Task

	now func() time.Time
}

// New loads the collection at cfg.Path. A missing or corrupt file degrades to
// an empty collection. bus and audit may be nil.
func New(cfg Config, bus eventbus.Bus, audit storage.Store, log logx.Logger) (*Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = 1000
	}
	s := &Store{
		cfg:   cfg,
		log:   log,
		bus:   bus,
		audit: audit,
		index: map[string]*Task{},
		now:   time.Now,
	}
	var recs []*Task
	if err := storage.LoadCollection(cfg.Path, &recs, log); err != nil {
		return nil, err
	}
	s.items = recs
	for _, t := range recs {
		s.index[t.ID] = t
	}
	s.saved = s.snapshotLocked()
	s.log.Debug("task store loaded", logx.String("path", cfg.Path), logx.Int("tasks", len(recs)))
	return s, nil
}

// saveLocked persists the collection. On failure the in-memory state is
// rolled back to the last persisted snapshot and the error is returned, so a
// mutation either lands on disk or leaves no trace in memory.
func (s *Store) saveLocked() error {
	if err := storage.SaveCollection(s.cfg.Path, s.items); err != nil {
		s.items = s.saved
		s.index = make(map[string]*Task, len(s.items))
		for _, t := range s.items {
			s.index[t.ID] = t
		}
		s.saved = s.snapshotLocked()
		return err
	}
	s.saved = s.snapshotLocked()
	return nil
}

func (s *Store) snapshotLocked() []*Task {
	cp := make([]*Task, len(s.items))
	for i, t := range s.items {
		c := t.clone()
		cp[i] = &c
	}
	return cp
}

func (s *Store) publish(topic string, ev eventbus.TaskEvent) {
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Topic: topic, Task: ev})
	}
}

func (s *Store) auditEntry(ctx context.Context, actor, id, action, detail string) {
	if s.audit == nil {
		return
	}
	e := storage.AuditEntry{At: s.now(), Actor: actor, Entity: "task", EntityID: id, Action: action, Detail: detail}
	if err := s.audit.AppendAudit(ctx, e); err != nil {
		s.log.Warn("audit append failed", logx.String("task", id), logx.String("action", action), logx.Err(err))
	}
}

// Create validates and persists a new task. The dependency set (if supplied)
// is cycle-checked against the existing graph before anything is stored; on
// rejection nothing is persisted.
func (s *Store) Create(ctx context.Context, in CreateInput, actor string) (Task, error) {
	if in.Title == "" {
		return Task{}, ErrTitleRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	deps := dedupe(in.DependsOn)
	if cerr := s.wouldCycle(id, deps); cerr != nil {
		return Task{}, cerr
	}

	now := s.now()
	lane := NormalizeLane(in.Lane)
	t := &Task{
		ID:             id,
		Title:          in.Title,
		Description:    in.Description,
		ProjectID:      in.ProjectID,
		AssignedTo:     in.AssignedTo,
		Lane:           lane,
		Priority:       NormalizePriority(in.Priority),
		Tags:           append([]string(nil), in.Tags...),
		EstimatedHours: in.EstimatedHours,
		DependsOn:      deps,
		StatusHistory:  []StatusChange{{At: now, To: lane, Note: "created", By: actor}},
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	s.items = append(s.items, t)
	s.index[id] = t
	// Maintain the inverse view on dependees. Dangling ids are tolerated.
	for _, d := range deps {
		if dep, ok := s.index[d]; ok {
			dep.Blocks = addID(dep.Blocks, id)
		}
	}
	s.evictLocked()

	if err := s.saveLocked(); err != nil {
		return Task{}, err
	}

	s.auditEntry(ctx, actor, id, "create", string(t.Lane))
	s.publish(eventbus.TopicTaskCreated, eventbus.TaskEvent{TaskID: id, Title: t.Title, ProjectID: t.ProjectID, AgentID: t.AssignedTo, Actor: actor})
	if t.AssignedTo != "" {
		s.publish(eventbus.TopicTaskAssigned, eventbus.TaskEvent{TaskID: id, Title: t.Title, ProjectID: t.ProjectID, AgentID: t.AssignedTo, Actor: actor})
	}
	return t.clone(), nil
}

// Get returns a copy of the task, or ok=false when the id is unknown.
func (s *Store) Get(id string) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.index[id]
	if !ok {
		return Task{}, false
	}
	return t.clone(), true
}

// List returns copies of all tasks matching the filter, oldest first.
func (s *Store) List(f Filter) []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, 0, len(s.items))
	for _, t := range s.items {
		if f.match(t) {
			out = append(out, t.clone())
		}
	}
	return out
}

// Update applies field changes. A lane change appends a history entry
// attributed to actor. Lane and priority inputs are re-normalized.
func (s *Store) Update(ctx context.Context, id string, p Patch, actor string) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.index[id]
	if !ok {
		return Task{}, ErrNotFound
	}

	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.ProjectID != nil {
		t.ProjectID = *p.ProjectID
	}
	if p.AssignedTo != nil {
		t.AssignedTo = *p.AssignedTo
	}
	if p.Priority != nil {
		t.Priority = NormalizePriority(*p.Priority)
	}
	if p.Tags != nil {
		t.Tags = append([]string(nil), (*p.Tags)...)
	}
	if p.EstimatedHours != nil {
		t.EstimatedHours = *p.EstimatedHours
	}
	if p.Lane != nil {
		newLane := NormalizeLane(*p.Lane)
		if newLane != t.Lane {
			t.StatusHistory = append(t.StatusHistory, StatusChange{
				At: s.now(), From: t.Lane, To: newLane, Note: p.Note, By: actor,
			})
			t.Lane = newLane
		}
	}
	t.UpdatedAt = s.now()

	if err := s.saveLocked(); err != nil {
		return Task{}, err
	}
	s.auditEntry(ctx, actor, id, "update", string(t.Lane))
	return t.clone(), nil
}

// Assign sets the assignee and emits an assignment event.
func (s *Store) Assign(ctx context.Context, id, agentID, actor string) (Task, error) {
	s.mu.Lock()
	t, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return Task{}, ErrNotFound
	}
	t.AssignedTo = agentID
	t.UpdatedAt = s.now()
	err := s.saveLocked()
	cp := t.clone()
	s.mu.Unlock()
	if err != nil {
		return Task{}, err
	}
	s.auditEntry(ctx, actor, id, "assign", agentID)
	s.publish(eventbus.TopicTaskAssigned, eventbus.TaskEvent{TaskID: id, Title: cp.Title, ProjectID: cp.ProjectID, AgentID: agentID, Actor: actor})
	return cp, nil
}

// AddComment appends to the comment log and emits a comment event.
func (s *Store) AddComment(ctx context.Context, id, by, text string) (Task, error) {
	s.mu.Lock()
	t, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return Task{}, ErrNotFound
	}
	t.Comments = append(t.Comments, Comment{At: s.now(), By: by, Text: text})
	t.UpdatedAt = s.now()
	err := s.saveLocked()
	cp := t.clone()
	s.mu.Unlock()
	if err != nil {
		return Task{}, err
	}
	s.auditEntry(ctx, by, id, "comment", "")
	s.publish(eventbus.TopicTaskCommented, eventbus.TaskEvent{TaskID: id, Title: cp.Title, ProjectID: cp.ProjectID, AgentID: cp.AssignedTo, Actor: by, Note: text})
	return cp, nil
}

// LogTime appends a time entry and advances the running actualHours sum.
func (s *Store) LogTime(ctx context.Context, id string, entry TimeEntry) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.index[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	t.TimeEntries = append(t.TimeEntries, entry)
	t.ActualHours += entry.Hours
	t.UpdatedAt = s.now()
	if err := s.saveLocked(); err != nil {
		return Task{}, err
	}
	s.auditEntry(ctx, entry.AgentID, id, "log-time", fmt.Sprintf("%.2fh", entry.Hours))
	return t.clone(), nil
}

// UpdateDependencies replaces id's dependency set after re-validating
// acyclicity against the proposed edge set. On rejection the graph is left
// untouched. Inverse Blocks views on old and new dependees are rewritten.
func (s *Store) UpdateDependencies(ctx context.Context, id string, newDeps []string, actor string) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.index[id]
	if !ok {
		return Task{}, ErrNotFound
	}

	deps := dedupe(newDeps)
	if cerr := s.wouldCycle(id, deps); cerr != nil {
		return Task{}, cerr
	}

	for _, old := range t.DependsOn {
		if dep, ok := s.index[old]; ok {
			dep.Blocks = removeID(dep.Blocks, id)
		}
	}
	t.DependsOn = deps
	for _, d := range deps {
		if dep, ok := s.index[d]; ok {
			dep.Blocks = addID(dep.Blocks, id)
		}
	}
	t.UpdatedAt = s.now()

	if err := s.saveLocked(); err != nil {
		return Task{}, err
	}
	s.auditEntry(ctx, actor, id, "update-dependencies", fmt.Sprintf("%d deps", len(deps)))
	return t.clone(), nil
}

// Complete marks the task done (with a history entry) and cascades through
// its successors. It returns the successors touched by the cascade.
func (s *Store) Complete(ctx context.Context, id, actor string) (Task, []Task, error) {
	s.mu.Lock()
	t, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return Task{}, nil, ErrNotFound
	}
	if t.Lane != LaneDone {
		t.StatusHistory = append(t.StatusHistory, StatusChange{
			At: s.now(), From: t.Lane, To: LaneDone, Note: "completed", By: actor,
		})
		t.Lane = LaneDone
	}
	t.UpdatedAt = s.now()
	touched := s.cascadeLocked(t)
	err := s.saveLocked()
	cp := t.clone()
	s.mu.Unlock()
	if err != nil {
		return Task{}, nil, err
	}

	s.auditEntry(ctx, actor, id, "complete", "")
	s.publish(eventbus.TopicTaskCompleted, eventbus.TaskEvent{TaskID: id, Title: cp.Title, ProjectID: cp.ProjectID, AgentID: cp.AssignedTo, Actor: actor})
	for _, succ := range touched {
		if succ.Lane == LaneQueued && len(succ.DependsOn) == 0 {
			s.publish(eventbus.TopicTaskUnblocked, eventbus.TaskEvent{TaskID: succ.ID, Title: succ.Title, ProjectID: succ.ProjectID, AgentID: succ.AssignedTo, Note: "auto-unblocked"})
		}
	}
	return cp, touched, nil
}

// HandleCompletion runs the unblock cascade for id without changing id's own
// lane. It returns every successor touched, whether or not its lane changed.
func (s *Store) HandleCompletion(ctx context.Context, id string) ([]Task, error) {
	s.mu.Lock()
	t, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	touched := s.cascadeLocked(t)
	err := s.saveLocked()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s.auditEntry(ctx, "system", id, "cascade", fmt.Sprintf("%d successors", len(touched)))
	return touched, nil
}

// cascadeLocked removes t from every successor's dependency set. A successor
// left with no dependencies while in the blocked lane moves to queued with a
// system-authored auto-unblocked note. Successors with remaining dependencies
// stay blocked. Returns copies of every successor touched.
func (s *Store) cascadeLocked(t *Task) []Task {
	touched := make([]Task, 0, len(t.Blocks))
	for _, succID := range t.Blocks {
		succ, ok := s.index[succID]
		if !ok {
			continue
		}
		succ.DependsOn = removeID(succ.DependsOn, t.ID)
		if len(succ.DependsOn) == 0 && succ.Lane == LaneBlocked {
			succ.StatusHistory = append(succ.StatusHistory, StatusChange{
				At: s.now(), From: LaneBlocked, To: LaneQueued, Note: "auto-unblocked", By: "system",
			})
			succ.Lane = LaneQueued
		}
		succ.UpdatedAt = s.now()
		touched = append(touched, succ.clone())
	}
	t.Blocks = nil
	return touched
}

// Delete removes the task and scrubs it from other tasks' edge sets,
// auto-unblocking dependents the same way completion does.
func (s *Store) Delete(ctx context.Context, id, actor string) error {
	s.mu.Lock()
	t, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	s.removeLocked(t)
	err := s.saveLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.auditEntry(ctx, actor, id, "delete", "")
	s.publish(eventbus.TopicTaskDeleted, eventbus.TaskEvent{TaskID: id, Title: t.Title, ProjectID: t.ProjectID, Actor: actor})
	return nil
}

func (s *Store) removeLocked(t *Task) {
	// Unlink from dependees.
	for _, d := range t.DependsOn {
		if dep, ok := s.index[d]; ok {
			dep.Blocks = removeID(dep.Blocks, t.ID)
		}
	}
	// Release successors as if t completed (no notification for deletes).
	for _, succID := range t.Blocks {
		succ, ok := s.index[succID]
		if !ok {
			continue
		}
		succ.DependsOn = removeID(succ.DependsOn, t.ID)
		if len(succ.DependsOn) == 0 && succ.Lane == LaneBlocked {
			succ.StatusHistory = append(succ.StatusHistory, StatusChange{
				At: s.now(), From: LaneBlocked, To: LaneQueued, Note: "auto-unblocked", By: "system",
			})
			succ.Lane = LaneQueued
		}
	}

	delete(s.index, t.ID)
	for i, it := range s.items {
		if it.ID == t.ID {
			s.items = append(s.items[:i], s.items[i+1:]...)
			break
		}
	}
}

// evictLocked enforces the collection cap by dropping the oldest done tasks.
// Live work is never evicted, so the collection can exceed the cap when
// everything in it is still open.
func (s *Store) evictLocked() {
	if len(s.items) <= s.cfg.MaxRecords {
		return
	}
	done := make([]*Task, 0)
	for _, t := range s.items {
		if t.Lane == LaneDone {
			done = append(done, t)
		}
	}
	sort.Slice(done, func(i, j int) bool { return done[i].UpdatedAt.Before(done[j].UpdatedAt) })
	for _, t := range done {
		if len(s.items) <= s.cfg.MaxRecords {
			break
		}
		s.removeLocked(t)
		s.log.Debug("evicted done task over cap", logx.String("task", t.ID))
	}
}

func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := map[string]bool{}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func addID(ids []string, id string) []string {
	for _, v := range ids {
		if v == id {
			return ids
		}
	}
	return append(ids, id)
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
