package notify

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"taskherd/pkg/logx"
)

func newTestNotifyStore(t *testing.T, max int) *Store {
	t.Helper()
	s, err := NewStore(StoreConfig{Path: filepath.Join(t.TempDir(), "notifications.json"), MaxRecords: max}, logx.Nop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestNotificationLifecycle(t *testing.T) {
	t.Parallel()
	s := newTestNotifyStore(t, 0)

	n, err := s.Create(CreateInput{AgentID: "agent-1", Type: TypeTaskAssigned, Title: "Task assigned: x"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if n.Delivered || n.Read || n.DeliveredAt != nil {
		t.Fatalf("new notification not pristine: %+v", n)
	}

	if got := s.Undelivered(); len(got) != 1 {
		t.Fatalf("undelivered = %d, want 1", len(got))
	}

	if err := s.MarkDelivered(n.ID); err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}
	got, _ := s.Get(n.ID)
	if !got.Delivered || got.DeliveredAt == nil {
		t.Fatalf("not delivered: %+v", got)
	}
	firstAt := *got.DeliveredAt

	// Idempotent: a second mark keeps the original timestamp.
	if err := s.MarkDelivered(n.ID); err != nil {
		t.Fatalf("second MarkDelivered: %v", err)
	}
	got, _ = s.Get(n.ID)
	if !got.DeliveredAt.Equal(firstAt) {
		t.Fatalf("deliveredAt moved: %v -> %v", firstAt, got.DeliveredAt)
	}

	if got := s.Undelivered(); len(got) != 0 {
		t.Fatalf("delivered notification still pending: %+v", got)
	}

	if err := s.MarkRead(n.ID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if got := s.List(Filter{UnreadOnly: true}); len(got) != 0 {
		t.Fatalf("read notification still unread: %+v", got)
	}
}

func TestMarkUnknown(t *testing.T) {
	t.Parallel()
	s := newTestNotifyStore(t, 0)
	if err := s.MarkDelivered("nope"); err != ErrNotFound {
		t.Fatalf("MarkDelivered = %v, want ErrNotFound", err)
	}
	if err := s.MarkRead("nope"); err != ErrNotFound {
		t.Fatalf("MarkRead = %v, want ErrNotFound", err)
	}
}

func TestPruneKeepsUndelivered(t *testing.T) {
	t.Parallel()
	s := newTestNotifyStore(t, 0)
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	old, _ := s.Create(CreateInput{AgentID: "a", Type: TypeTaskAssigned, Title: "old"})
	stuck, _ := s.Create(CreateInput{AgentID: "a", Type: TypeTaskAssigned, Title: "stuck"})
	if err := s.MarkDelivered(old.ID); err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}

	// A week later, with 24h retention: the old delivered record goes, the
	// undelivered one stays no matter its age.
	s.now = func() time.Time { return base.Add(7 * 24 * time.Hour) }
	fresh, _ := s.Create(CreateInput{AgentID: "a", Type: TypeTaskAssigned, Title: "fresh"})
	if err := s.MarkDelivered(fresh.ID); err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}

	removed, err := s.PruneDelivered(24 * time.Hour)
	if err != nil {
		t.Fatalf("PruneDelivered: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, ok := s.Get(old.ID); ok {
		t.Fatal("old delivered notification survived prune")
	}
	if _, ok := s.Get(stuck.ID); !ok {
		t.Fatal("undelivered notification was pruned")
	}
	if _, ok := s.Get(fresh.ID); !ok {
		t.Fatal("recently delivered notification was pruned")
	}
}

func TestEvictionPrefersDelivered(t *testing.T) {
	t.Parallel()
	s := newTestNotifyStore(t, 2)

	a, _ := s.Create(CreateInput{AgentID: "a", Type: TypeTaskAssigned, Title: "a"})
	b, _ := s.Create(CreateInput{AgentID: "a", Type: TypeTaskAssigned, Title: "b"})
	if err := s.MarkDelivered(b.ID); err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}

	c, _ := s.Create(CreateInput{AgentID: "a", Type: TypeTaskAssigned, Title: "c"})
	if _, ok := s.Get(b.ID); ok {
		t.Fatal("delivered notification survived eviction over undelivered ones")
	}
	for _, id := range []string{a.ID, c.ID} {
		if _, ok := s.Get(id); !ok {
			t.Fatalf("undelivered notification %s was evicted", id)
		}
	}
}

func TestFailedSaveKeepsUndelivered(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "notifications.json")
	s, err := NewStore(StoreConfig{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	n, err := s.Create(CreateInput{AgentID: "agent-1", Type: TypeTaskAssigned, Title: "x"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Point the store at an existing directory so the atomic rename fails.
	blocked := filepath.Join(dir, "blocked")
	if err := os.Mkdir(blocked, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	s.mu.Lock()
	s.cfg.Path = blocked
	s.mu.Unlock()

	if err := s.MarkDelivered(n.ID); err == nil {
		t.Fatal("MarkDelivered succeeded against an unwritable path")
	}

	// The failed mark must not stick, or the record would never be retried.
	got, ok := s.Get(n.ID)
	if !ok {
		t.Fatal("notification vanished after failed save")
	}
	if got.Delivered || got.DeliveredAt != nil {
		t.Fatalf("notification marked delivered despite failed save: %+v", got)
	}
	if pending := s.Undelivered(); len(pending) != 1 {
		t.Fatalf("undelivered = %d, want 1", len(pending))
	}

	s.mu.Lock()
	s.cfg.Path = path
	s.mu.Unlock()
	if err := s.MarkDelivered(n.ID); err != nil {
		t.Fatalf("MarkDelivered after recovery: %v", err)
	}
	if pending := s.Undelivered(); len(pending) != 0 {
		t.Fatalf("undelivered = %d after successful mark, want 0", len(pending))
	}
}
