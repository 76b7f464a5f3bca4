package routines

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"taskherd/internal/agents"
	"taskherd/internal/tasks"
	"taskherd/pkg/logx"
)

func newTestService(t *testing.T, reg agents.Registry) (*Service, *Store, *tasks.Store) {
	t.Helper()
	dir := t.TempDir()
	st, err := NewStore(Config{Path: filepath.Join(dir, "routines.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	ts, err := tasks.New(tasks.Config{Path: filepath.Join(dir, "tasks.json")}, nil, nil, logx.Nop())
	if err != nil {
		t.Fatalf("tasks.New: %v", err)
	}
	if reg == nil {
		reg = agents.NewMemory(nil)
	}
	return NewService(st, ts, reg, logx.Nop()), st, ts
}

func TestTickMaterializesDueRoutines(t *testing.T) {
	t.Parallel()
	reg := agents.NewMemory([]agents.Agent{{ID: "agent-1", Role: "dev", Online: true}})
	svc, st, ts := newTestService(t, reg)

	base := time.Date(2026, 2, 14, 10, 5, 0, 0, time.UTC)
	fixedNow(st, base)
	r, err := st.Create(CreateInput{
		Name:     "standup",
		Schedule: "*/15 * * * *",
		Template: TaskTemplate{Title: "daily standup", AssignedTo: "agent-1", Priority: "P1", Tags: []string{"ritual"}},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Not due yet: nothing happens.
	svc.now = func() time.Time { return base.Add(5 * time.Minute) }
	if err := svc.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if got := ts.List(tasks.Filter{}); len(got) != 0 {
		t.Fatalf("task created before due: %+v", got)
	}

	ranAt := base.Add(20 * time.Minute)
	svc.now = func() time.Time { return ranAt }
	if err := svc.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	created := ts.List(tasks.Filter{})
	if len(created) != 1 {
		t.Fatalf("created %d tasks, want 1", len(created))
	}
	task := created[0]
	if task.Title != "daily standup" || task.AssignedTo != "agent-1" || task.Priority != tasks.PriorityP1 {
		t.Fatalf("unexpected task: %+v", task)
	}
	if !strings.HasPrefix(task.StatusHistory[0].By, "routine:") {
		t.Fatalf("task not attributed to the routine: %+v", task.StatusHistory[0])
	}

	// Execution advanced nextRun, so an immediate re-tick is a no-op.
	if err := svc.Tick(context.Background()); err != nil {
		t.Fatalf("re-tick: %v", err)
	}
	if got := ts.List(tasks.Filter{}); len(got) != 1 {
		t.Fatalf("duplicate task after re-tick: %d", len(got))
	}
	got, _ := st.Get(r.ID)
	if got.LastRun != ranAt.Unix() {
		t.Fatalf("lastRun = %d, want %d", got.LastRun, ranAt.Unix())
	}
}

func TestTickResolvesRoleHint(t *testing.T) {
	t.Parallel()
	reg := agents.NewMemory([]agents.Agent{
		{ID: "agent-b", Role: "dev", Online: false},
		{ID: "agent-a", Role: "dev", Online: true},
	})
	svc, st, ts := newTestService(t, reg)

	base := time.Date(2026, 2, 14, 10, 0, 0, 0, time.UTC)
	fixedNow(st, base)
	if _, err := st.Create(CreateInput{
		Name:     "triage",
		Schedule: "* * * * *",
		Template: TaskTemplate{Title: "triage queue", AssignedTo: "dev"},
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	svc.now = func() time.Time { return base.Add(2 * time.Minute) }
	if err := svc.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	created := ts.List(tasks.Filter{})
	if len(created) != 1 || created[0].AssignedTo != "agent-a" {
		t.Fatalf("role hint resolution: %+v", created)
	}
}

func TestTickUnresolvableHintLeavesUnassigned(t *testing.T) {
	t.Parallel()
	svc, st, ts := newTestService(t, nil)

	base := time.Date(2026, 2, 14, 10, 0, 0, 0, time.UTC)
	fixedNow(st, base)
	if _, err := st.Create(CreateInput{
		Name:     "triage",
		Schedule: "* * * * *",
		Template: TaskTemplate{AssignedTo: "ops"}, // empty title falls back to the name
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	svc.now = func() time.Time { return base.Add(2 * time.Minute) }
	if err := svc.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	created := ts.List(tasks.Filter{})
	if len(created) != 1 {
		t.Fatalf("created %d tasks, want 1", len(created))
	}
	if created[0].AssignedTo != "" {
		t.Fatalf("assignedTo = %q, want unassigned", created[0].AssignedTo)
	}
	if created[0].Title != "triage" {
		t.Fatalf("title = %q, want routine name fallback", created[0].Title)
	}
}

func TestTickIsolatesFailures(t *testing.T) {
	t.Parallel()
	svc, st, ts := newTestService(t, nil)

	base := time.Date(2026, 2, 14, 10, 0, 0, 0, time.UTC)
	fixedNow(st, base)
	bad, err := st.Create(CreateInput{Name: "bad", Schedule: "* * * * *"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	good, err := st.Create(CreateInput{Name: "good", Schedule: "* * * * *"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Corrupt the stored schedule underneath the service so RecordExecution
	// fails for this routine only.
	st.mu.Lock()
	st.index[bad.ID].Schedule = "not a schedule"
	st.mu.Unlock()

	svc.now = func() time.Time { return base.Add(2 * time.Minute) }
	err = svc.Tick(context.Background())
	if err == nil || !strings.Contains(err.Error(), "1 of 2") {
		t.Fatalf("Tick err = %v, want aggregate failure count", err)
	}

	// The healthy routine still executed and advanced.
	g, _ := st.Get(good.ID)
	if g.LastRun == 0 {
		t.Fatal("healthy routine did not run")
	}
	// The failing routine keeps its nextRun, staying due for a retry.
	b, _ := st.Get(bad.ID)
	if b.NextRun != bad.NextRun || b.LastRun != 0 {
		t.Fatalf("failed routine advanced: %+v", b)
	}
	// Both routines created their task before the failure point.
	if got := ts.List(tasks.Filter{}); len(got) != 2 {
		t.Fatalf("tasks created = %d, want 2", len(got))
	}
}
