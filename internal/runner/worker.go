package runner

import (
	"context"
	"time"

	"taskherd/pkg/logx"
)

func (r *Runner) enqueue(j job) {
	r.mu.Lock()
	q := r.queue
	r.mu.Unlock()
	if q == nil {
		r.log.Debug("runner not running; dropping job", logx.String("job", j.name))
		return
	}
	select {
	case q <- j:
	default:
		r.log.Warn("runner queue full; dropping job", logx.String("job", j.name), logx.Int("queue_len", len(q)), logx.Int("queue_cap", cap(q)))
	}
}

func (r *Runner) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan job) {
	for {
		// Fast-exit check so a closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case j := <-queue:
			r.execOne(ctx, j)
		}
	}
}

func (r *Runner) execOne(ctx context.Context, j job) {
	// Overlap control: if the previous invocation of this job is still
	// running, skip this slot.
	if j.state != nil {
		j.state.mu.Lock()
		if j.state.running {
			j.state.mu.Unlock()
			r.log.Debug("job still running; skipping slot", logx.String("job", j.name))
			return
		}
		j.state.running = true
		j.state.mu.Unlock()
		defer func() {
			j.state.mu.Lock()
			j.state.running = false
			j.state.mu.Unlock()
		}()
	}

	start := time.Now()
	runCtx := ctx
	var cancel context.CancelFunc
	if j.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, j.timeout)
	}
	err := j.run(runCtx)
	if cancel != nil {
		cancel()
	}

	item := HistoryItem{Name: j.name, Started: start, Duration: time.Since(start)}
	if err != nil {
		item.Error = err.Error()
		r.log.Warn("job failed", logx.String("job", j.name), logx.Duration("dur", item.Duration), logx.Err(err))
	} else {
		r.log.Debug("job ok", logx.String("job", j.name), logx.Duration("dur", item.Duration))
	}

	r.hmu.Lock()
	r.history = append(r.history, item)
	if max := r.cfg.HistorySize; max > 0 && len(r.history) > max {
		r.history = r.history[len(r.history)-max:]
	}
	r.hmu.Unlock()
}
