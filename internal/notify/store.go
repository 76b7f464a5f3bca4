package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"taskherd/internal/storage"
	"taskherd/pkg/logx"
)

// StoreConfig configures a notification store.
type StoreConfig struct {
	Path       string
	MaxRecords int // collection cap, default 500
}

// Store owns the persisted notification collection. Same single-writer,
// whole-collection atomic-rewrite model as the task store.
type Store struct {
	mu sync.Mutex

	cfg StoreConfig
	log logx.Logger

	items []*Notification
	index map[string]*Notification
	// saved mirrors the last successfully persisted state; a failed save
	// restores from it so a rejected mutation never reaches a later save.
	// In particular a MarkDelivered that fails to persist must keep the
	// record visible to Undelivered() for the next dispatch poll.
	saved []*Notification

	now func() time.Time
}

func NewStore(cfg StoreConfig, log logx.Logger) (*Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = 500
	}
	s := &Store{cfg: cfg, log: log, index: map[string]*Notification{}, now: time.Now}
	var recs []*Notification
	if err := storage.LoadCollection(cfg.Path, &recs, log); err != nil {
		return nil, err
	}
	s.items = recs
	for _, n := range recs {
		s.index[n.ID] = n
	}
	s.saved = s.snapshotLocked()
	return s, nil
}

// saveLocked persists the collection, rolling the in-memory state back to the
// last persisted snapshot when the write fails.
func (s *Store) saveLocked() error {
	if err := storage.SaveCollection(s.cfg.Path, s.items); err != nil {
		s.items = s.saved
		s.index = make(map[string]*Notification, len(s.items))
		for _, n := range s.items {
			s.index[n.ID] = n
		}
		s.saved = s.snapshotLocked()
		return err
	}
	s.saved = s.snapshotLocked()
	return nil
}

func (s *Store) snapshotLocked() []*Notification {
	cp := make([]*Notification, len(s.items))
	for i, n := range s.items {
		c := *n
		cp[i] = &c
	}
	return cp
}

// Create persists a new undelivered, unread notification. Delivery outcomes
// never surface here; an undeliverable record simply stays undelivered.
func (s *Store) Create(in CreateInput) (Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := &Notification{
		ID:        uuid.NewString(),
		AgentID:   in.AgentID,
		Type:      in.Type,
		Title:     in.Title,
		Text:      in.Text,
		TaskID:    in.TaskID,
		ProjectID: in.ProjectID,
		CreatedAt: s.now(),
	}
	s.items = append(s.items, n)
	s.index[n.ID] = n
	s.evictLocked()
	if err := s.saveLocked(); err != nil {
		return Notification{}, err
	}
	return *n, nil
}

func (s *Store) Get(id string) (Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.index[id]
	if !ok {
		return Notification{}, false
	}
	return *n, true
}

// List returns copies of all notifications matching the filter, oldest first.
func (s *Store) List(f Filter) []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Notification, 0, len(s.items))
	for _, n := range s.items {
		if f.match(n) {
			out = append(out, *n)
		}
	}
	return out
}

// Undelivered returns every notification still awaiting delivery.
func (s *Store) Undelivered() []Notification {
	return s.List(Filter{UndeliveredOnly: true})
}

func (s *Store) MarkRead(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.index[id]
	if !ok {
		return ErrNotFound
	}
	if n.Read {
		return nil
	}
	n.Read = true
	return s.saveLocked()
}

// MarkDelivered flips delivered exactly once; marking an already-delivered
// notification is a no-op.
func (s *Store) MarkDelivered(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.index[id]
	if !ok {
		return ErrNotFound
	}
	if n.Delivered {
		return nil
	}
	at := s.now()
	n.Delivered = true
	n.DeliveredAt = &at
	return s.saveLocked()
}

func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[id]; !ok {
		return ErrNotFound
	}
	delete(s.index, id)
	for i, n := range s.items {
		if n.ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			break
		}
	}
	return s.saveLocked()
}

// PruneDelivered removes delivered notifications older than the retention
// window. Undelivered notifications are retained regardless of age.
func (s *Store) PruneDelivered(retention time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-retention)
	kept := s.items[:0]
	removed := 0
	for _, n := range s.items {
		old := n.Delivered && n.DeliveredAt != nil && n.DeliveredAt.Before(cutoff)
		if old {
			delete(s.index, n.ID)
			removed++
			continue
		}
		kept = append(kept, n)
	}
	s.items = kept
	if removed == 0 {
		return 0, nil
	}
	return removed, s.saveLocked()
}

// evictLocked enforces the collection cap: delivered records go first
// (oldest first), then oldest overall. Callers hold s.mu.
func (s *Store) evictLocked() {
	for len(s.items) > s.cfg.MaxRecords {
		victim := -1
		for i, n := range s.items {
			if n.Delivered {
				victim = i
				break
			}
		}
		if victim < 0 {
			victim = 0
		}
		delete(s.index, s.items[victim].ID)
		s.items = append(s.items[:victim], s.items[victim+1:]...)
	}
}
