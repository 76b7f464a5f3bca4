package notify

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"taskherd/internal/agents"
	"taskherd/pkg/logx"
)

// DispatcherConfig controls delivery behavior.
//
// Retries are implicit: an undelivered notification is simply picked up again
// on the next poll. There is no retry counter, no backoff and no dead-letter
// queue; the poll interval is the backoff.
type DispatcherConfig struct {
	SendTimeout time.Duration // per-notification bound, default 10s
	RatePerSec  int           // delivery rate limit, default 10
}

// Dispatcher drains undelivered notifications toward online agents.
// It is driven externally on a fixed poll (the runner registers
// DispatchPending at 5s by default).
type Dispatcher struct {
	cfg     DispatcherConfig
	store   *Store
	reg     agents.Registry
	sender  Sender
	limiter *rate.Limiter
	log     logx.Logger
}

func NewDispatcher(cfg DispatcherConfig, store *Store, reg agents.Registry, sender Sender, log logx.Logger) *Dispatcher {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 10
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		cfg:     cfg,
		store:   store,
		reg:     reg,
		sender:  sender,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		log:     log,
	}
}

// Store exposes the notification store for the embedding API layer.
func (d *Dispatcher) Store() *Store { return d.store }

// DispatchPending attempts delivery for every undelivered notification.
// Per-notification outcomes are independent: one failure never blocks the
// rest of the batch.
//
//   - unknown recipient: marked delivered anyway (nothing meaningful to
//     retry) with a warning
//   - recipient offline: skipped, retried next poll
//   - send failure: left undelivered, retried next poll
func (d *Dispatcher) DispatchPending(ctx context.Context) error {
	pending := d.store.Undelivered()
	if len(pending) == 0 {
		return nil
	}
	d.log.Debug("dispatch poll", logx.Int("pending", len(pending)))

	for _, n := range pending {
		if ctx.Err() != nil {
			// Shutdown: leave the remainder for the next process.
			return ctx.Err()
		}
		d.dispatchOne(ctx, n)
	}
	return nil
}

func (d *Dispatcher) dispatchOne(ctx context.Context, n Notification) {
	agent, ok := d.reg.Get(n.AgentID)
	if !ok {
		d.log.Warn("notification for unknown agent, dropping", logx.String("notification", n.ID), logx.String("agent", n.AgentID))
		if err := d.store.MarkDelivered(n.ID); err != nil {
			d.log.Warn("mark delivered failed", logx.String("notification", n.ID), logx.Err(err))
		}
		return
	}
	if !agent.Online {
		return // retried next poll
	}
	if agent.Endpoint == "" {
		d.log.Warn("agent has no delivery endpoint", logx.String("agent", agent.ID))
		return
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	err := d.sender.Send(sendCtx, agent.Endpoint, n)
	cancel()
	if err != nil {
		d.log.Warn("delivery failed, will retry", logx.String("notification", n.ID), logx.String("agent", agent.ID), logx.Err(err))
		return
	}

	if err := d.store.MarkDelivered(n.ID); err != nil {
		// The send succeeded but the flag didn't persist; the next poll will
		// re-deliver. At-least-once, not exactly-once.
		d.log.Warn("mark delivered failed after send", logx.String("notification", n.ID), logx.Err(err))
		return
	}
	d.log.Debug("notification delivered", logx.String("notification", n.ID), logx.String("agent", agent.ID))
}
