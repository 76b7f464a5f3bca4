package routines

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskherd/internal/schedule"
	"taskherd/internal/storage"
	"taskherd/pkg/logx"
)

// Config configures a routine store.
type Config struct {
	Path       string
	MaxRecords int // collection cap, default 500
}

// Store owns the persisted routine collection. Same single-writer,
// whole-collection atomic-rewrite model as the task store.
type Store struct {
	mu sync.Mutex

	cfg Config
	log logx.Logger

	items []*Routine
	index map[string]*Routine
	// saved mirrors the last successfully persisted state; a failed save
	// restores from it so a rejected mutation never reaches a later save.
	saved []*Routine

	now func() time.Time
}

func NewStore(cfg Config, log logx.Logger) (*Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = 500
	}
	s := &Store{cfg: cfg, log: log, index: map[string]*Routine{}, now: time.Now}
	var recs []*Routine
	if err := storage.LoadCollection(cfg.Path, &recs, log); err != nil {
		return nil, err
	}
	s.items = recs
	for _, r := range recs {
		s.index[r.ID] = r
	}
	s.saved = s.snapshotLocked()
	s.log.Debug("routine store loaded", logx.String("path", cfg.Path), logx.Int("routines", len(recs)))
	return s, nil
}

// saveLocked persists the collection, rolling the in-memory state back to the
// last persisted snapshot when the write fails.
func (s *Store) saveLocked() error {
	if err := storage.SaveCollection(s.cfg.Path, s.items); err != nil {
		s.items = s.saved
		s.index = make(map[string]*Routine, len(s.items))
		for _, r := range s.items {
			s.index[r.ID] = r
		}
		s.saved = s.snapshotLocked()
		return err
	}
	s.saved = s.snapshotLocked()
	return nil
}

func (s *Store) snapshotLocked() []*Routine {
	cp := make([]*Routine, len(s.items))
	for i, r := range s.items {
		c := r.clone()
		cp[i] = &c
	}
	return cp
}

// Create validates the schedule expression before persisting anything and
// seeds NextRun relative to now.
func (s *Store) Create(in CreateInput) (Routine, error) {
	if in.Name == "" {
		return Routine{}, ErrNameRequired
	}
	spec, err := schedule.Parse(in.Schedule)
	if err != nil {
		return Routine{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	next, err := spec.Next(now)
	if err != nil {
		return Routine{}, fmt.Errorf("routine %q: %w", in.Name, err)
	}
	tpl := in.Template
	tpl.Tags = append([]string(nil), in.Template.Tags...)
	r := &Routine{
		ID:       uuid.NewString(),
		Name:     in.Name,
		Schedule: in.Schedule,
		Template: tpl,
		Enabled:  !in.Disabled,
		NextRun:  next.Unix(),
	}
	s.items = append(s.items, r)
	s.index[r.ID] = r
	if len(s.items) > s.cfg.MaxRecords {
		drop := s.items[0]
		delete(s.index, drop.ID)
		s.items = s.items[1:]
		s.log.Warn("routine collection over cap, dropped oldest", logx.String("routine", drop.ID))
	}
	if err := s.saveLocked(); err != nil {
		return Routine{}, err
	}
	return r.clone(), nil
}

func (s *Store) Get(id string) (Routine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.index[id]
	if !ok {
		return Routine{}, false
	}
	return r.clone(), true
}

// List returns copies of all routines, optionally only enabled ones.
func (s *Store) List(enabledOnly bool) []Routine {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Routine, 0, len(s.items))
	for _, r := range s.items {
		if enabledOnly && !r.Enabled {
			continue
		}
		out = append(out, r.clone())
	}
	return out
}

// Update applies routine changes. A changed schedule is re-validated and
// NextRun recomputed from now.
func (s *Store) Update(id string, p Patch) (Routine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.index[id]
	if !ok {
		return Routine{}, ErrNotFound
	}

	if p.Schedule != nil && *p.Schedule != r.Schedule {
		spec, err := schedule.Parse(*p.Schedule)
		if err != nil {
			return Routine{}, err
		}
		next, err := spec.Next(s.now())
		if err != nil {
			return Routine{}, err
		}
		r.Schedule = *p.Schedule
		r.NextRun = next.Unix()
	}
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.Template != nil {
		r.Template = *p.Template
	}
	if p.Enabled != nil {
		r.Enabled = *p.Enabled
	}

	if err := s.saveLocked(); err != nil {
		return Routine{}, err
	}
	return r.clone(), nil
}

func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[id]; !ok {
		return ErrNotFound
	}
	delete(s.index, id)
	for i, r := range s.items {
		if r.ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			break
		}
	}
	return s.saveLocked()
}

// Due returns enabled routines whose NextRun is at or before now.
// Reads never advance NextRun.
func (s *Store) Due(now time.Time) []Routine {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Routine
	for _, r := range s.items {
		if r.Enabled && r.NextRun > 0 && r.NextRun <= now.Unix() {
			out = append(out, r.clone())
		}
	}
	return out
}

// RecordExecution marks the routine as run at now and recomputes NextRun
// relative to now (not the previous NextRun; see the Routine doc).
func (s *Store) RecordExecution(id string, now time.Time) (Routine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.index[id]
	if !ok {
		return Routine{}, ErrNotFound
	}
	spec, err := schedule.Parse(r.Schedule)
	if err != nil {
		return Routine{}, fmt.Errorf("routine %s has an unparseable schedule: %w", id, err)
	}
	next, err := spec.Next(now)
	if err != nil {
		return Routine{}, err
	}
	r.LastRun = now.Unix()
	r.NextRun = next.Unix()
	if err := s.saveLocked(); err != nil {
		return Routine{}, err
	}
	return r.clone(), nil
}
