// Package runner is the process-internal periodic job machinery: services
// register jobs ("routines.tick", "notify.dispatch", ...) with cron or
// @every specs and the runner drives them through a bounded queue and a small
// worker pool. Persisted routine scheduling lives in internal/schedule and
// internal/routines; this package only times in-process work.
package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"taskherd/pkg/logx"
)

// Config controls the runner.
type Config struct {
	Workers        int
	QueueSize      int
	DefaultTimeout time.Duration
	HistorySize    int
}

// HistoryItem records one job execution for diagnostics.
type HistoryItem struct {
	Name     string
	Started  time.Time
	Duration time.Duration
	Error    string
}

type job struct {
	name    string
	timeout time.Duration
	run     func(ctx context.Context) error
	state   *runState
}

// runState implements skip-if-running overlap control shared across cron
// invocations of the same definition.
type runState struct {
	mu      sync.Mutex
	running bool
}

type jobDef struct {
	name    string
	spec    string // cron spec or @every
	timeout time.Duration
	fn      func(ctx context.Context) error
	state   *runState
}

// Runner executes registered jobs on their schedules.
type Runner struct {
	mu sync.Mutex

	cfg Config
	log logx.Logger

	parser cron.Parser
	c      *cron.Cron
	defs   []jobDef

	queue  chan job
	stopCh chan struct{}
	// stopDone is non-nil while a Stop() is in progress; it is closed when
	// workers fully exit.
	stopDone chan struct{}

	runCtx    context.Context
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, log logx.Logger) *Runner {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Runner{
		cfg:    cfg,
		log:    log,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// AddCron registers fn under a 5-field cron spec.
func (r *Runner) AddCron(name, spec string, timeout time.Duration, fn func(ctx context.Context) error) error {
	return r.add(name, spec, timeout, fn)
}

// AddInterval registers fn to run every d.
func (r *Runner) AddInterval(name string, d time.Duration, timeout time.Duration, fn func(ctx context.Context) error) error {
	return r.add(name, fmt.Sprintf("@every %s", d.String()), timeout, fn)
}

func (r *Runner) add(name, spec string, timeout time.Duration, fn func(ctx context.Context) error) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("job name required")
	}
	if _, err := r.parser.Parse(spec); err != nil {
		return fmt.Errorf("job %s: bad spec %q: %w", name, spec, err)
	}
	if timeout <= 0 {
		timeout = r.cfg.DefaultTimeout
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Upsert by name to prevent duplicates across restarts.
	for i := range r.defs {
		if r.defs[i].name == name {
			r.defs = append(r.defs[:i], r.defs[i+1:]...)
			break
		}
	}
	d := jobDef{name: name, spec: spec, timeout: timeout, fn: fn, state: &runState{}}
	r.defs = append(r.defs, d)
	if r.c != nil {
		return r.registerLocked(&r.defs[len(r.defs)-1])
	}
	return nil
}

func (r *Runner) registerLocked(d *jobDef) error {
	def := *d
	_, err := r.c.AddFunc(def.spec, func() {
		r.enqueue(job{name: def.name, timeout: def.timeout, run: def.fn, state: def.state})
	})
	return err
}

func (r *Runner) Start(ctx context.Context) {
	// If a Stop() is in progress, wait for it (prevents double worker pools).
	for {
		r.mu.Lock()
		if r.stopCh == nil {
			break
		}
		done := r.stopDone
		if done == nil {
			// already running
			r.mu.Unlock()
			return
		}
		r.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
	}
	defer r.mu.Unlock()

	r.stopCh = make(chan struct{})
	r.runCtx, r.runCancel = context.WithCancel(ctx)

	workers := r.cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	qs := r.cfg.QueueSize
	if qs <= 0 {
		qs = 64
	}
	// Fresh queue per run so a stop/start toggle never replays stale jobs.
	r.queue = make(chan job, qs)

	r.c = cron.New(cron.WithParser(r.parser))
	for i := range r.defs {
		if err := r.registerLocked(&r.defs[i]); err != nil {
			r.log.Error("job register failed", logx.String("job", r.defs[i].name), logx.Err(err))
		}
	}

	runCtx := r.runCtx
	stopCh := r.stopCh
	queue := r.queue

	r.workerWG.Add(workers)
	for i := 0; i < workers; i++ {
		idx := i
		go func() {
			defer r.workerWG.Done()
			defer func() {
				if rec := recover(); rec != nil {
					r.log.Error("panic in runner worker", logx.Int("worker", idx), logx.Any("panic", rec), logx.String("stack", string(debug.Stack())))
				}
			}()
			r.worker(runCtx, stopCh, queue)
		}()
	}
	r.c.Start()
	r.log.Info("runner started", logx.Int("workers", workers), logx.Int("jobs", len(r.defs)))
}

func (r *Runner) Stop(ctx context.Context) {
	start := time.Now()
	r.mu.Lock()
	if r.stopCh == nil {
		r.mu.Unlock()
		return
	}
	if r.stopDone != nil {
		done := r.stopDone
		r.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}

	done := make(chan struct{})
	r.stopDone = done
	stopCh := r.stopCh
	cancel := r.runCancel
	r.runCancel = nil
	c := r.c
	r.c = nil
	r.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
	close(stopCh)
	if cancel != nil {
		cancel()
	}

	go func() {
		r.workerWG.Wait()
		r.mu.Lock()
		r.stopCh = nil
		r.runCtx = nil
		r.stopDone = nil
		r.mu.Unlock()
		close(done)
		r.log.Info("runner stopped", logx.Duration("took", time.Since(start)))
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// stop continues in background
	}
}

// History returns a copy of the recent execution log, oldest first.
func (r *Runner) History() []HistoryItem {
	r.hmu.Lock()
	defer r.hmu.Unlock()
	return append([]HistoryItem(nil), r.history...)
}
