package runner

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"taskherd/pkg/logx"
)

func TestAddValidatesSpec(t *testing.T) {
	t.Parallel()
	r := New(Config{}, logx.Nop())

	if err := r.AddCron("ok", "0 3 * * *", 0, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("valid spec rejected: %v", err)
	}
	if err := r.AddCron("bad", "61 * * * *", 0, func(context.Context) error { return nil }); err == nil {
		t.Fatal("invalid spec accepted")
	}
	if err := r.AddCron("  ", "* * * * *", 0, func(context.Context) error { return nil }); err == nil {
		t.Fatal("blank name accepted")
	}
}

func TestAddUpsertsByName(t *testing.T) {
	t.Parallel()
	r := New(Config{}, logx.Nop())

	if err := r.AddCron("job", "0 3 * * *", 0, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("AddCron: %v", err)
	}
	if err := r.AddInterval("job", time.Minute, 0, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("AddInterval: %v", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.defs) != 1 {
		t.Fatalf("defs = %d, want 1 after re-registering the same name", len(r.defs))
	}
	if !strings.HasPrefix(r.defs[0].spec, "@every") {
		t.Fatalf("spec = %q, want the later registration to win", r.defs[0].spec)
	}
}

func TestExecOneRecordsHistory(t *testing.T) {
	t.Parallel()
	r := New(Config{HistorySize: 2}, logx.Nop())

	run := func(err error) {
		r.execOne(context.Background(), job{name: "j", run: func(context.Context) error { return err }})
	}
	run(nil)
	run(errors.New("boom"))
	run(nil)

	h := r.History()
	if len(h) != 2 {
		t.Fatalf("history = %d entries, want trimmed to 2", len(h))
	}
	if h[0].Error != "boom" {
		t.Fatalf("h[0].Error = %q, want boom", h[0].Error)
	}
	if h[1].Error != "" {
		t.Fatalf("h[1].Error = %q, want success", h[1].Error)
	}
}

func TestExecOneSkipsOverlap(t *testing.T) {
	t.Parallel()
	r := New(Config{}, logx.Nop())

	var runs atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{})
	state := &runState{}
	blocker := job{name: "j", state: state, run: func(context.Context) error {
		runs.Add(1)
		close(started)
		<-release
		return nil
	}}

	go r.execOne(context.Background(), blocker)
	<-started

	// Same state, previous invocation still running: this slot is skipped.
	r.execOne(context.Background(), job{name: "j", state: state, run: func(context.Context) error {
		runs.Add(1)
		return nil
	}})
	if runs.Load() != 1 {
		t.Fatalf("overlapping run executed; runs = %d", runs.Load())
	}
	close(release)
}

func TestExecOneTimeout(t *testing.T) {
	t.Parallel()
	r := New(Config{}, logx.Nop())

	r.execOne(context.Background(), job{name: "slow", timeout: 20 * time.Millisecond, run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	h := r.History()
	if len(h) != 1 {
		t.Fatalf("history = %d, want 1", len(h))
	}
	if !strings.Contains(h[0].Error, "deadline") {
		t.Fatalf("error = %q, want deadline exceeded", h[0].Error)
	}
}

func TestStartStopLifecycle(t *testing.T) {
	t.Parallel()
	r := New(Config{Workers: 1, QueueSize: 8}, logx.Nop())

	var beats atomic.Int32
	if err := r.AddInterval("beat", 50*time.Millisecond, 0, func(context.Context) error {
		beats.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("AddInterval: %v", err)
	}

	ctx := context.Background()
	r.Start(ctx)

	deadline := time.Now().Add(3 * time.Second)
	for beats.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if beats.Load() == 0 {
		t.Fatal("interval job never ran")
	}

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	r.Stop(stopCtx)
	r.Stop(stopCtx) // idempotent

	// Jobs fired after stop are never executed.
	after := beats.Load()
	r.enqueue(job{name: "beat", run: func(context.Context) error {
		beats.Add(1)
		return nil
	}})
	time.Sleep(50 * time.Millisecond)
	if beats.Load() != after {
		t.Fatalf("job executed after stop: %d -> %d", after, beats.Load())
	}
}
