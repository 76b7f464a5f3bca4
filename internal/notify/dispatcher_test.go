package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"taskherd/internal/agents"
	"taskherd/pkg/logx"
)

// fakeSender records sends and fails on demand per endpoint.
type fakeSender struct {
	mu    sync.Mutex
	sent  []string // notification ids in send order
	fail  map[string]bool
	calls int
}

func (f *fakeSender) Send(_ context.Context, endpoint string, n Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail[endpoint] {
		return errors.New("endpoint down")
	}
	f.sent = append(f.sent, n.ID)
	return nil
}

func (f *fakeSender) sentIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func newTestDispatcher(t *testing.T, reg agents.Registry, sender Sender) (*Dispatcher, *Store) {
	t.Helper()
	st := newTestNotifyStore(t, 0)
	d := NewDispatcher(DispatcherConfig{RatePerSec: 1000}, st, reg, sender, logx.Nop())
	return d, st
}

func TestDispatchToOnlineAgent(t *testing.T) {
	t.Parallel()
	reg := agents.NewMemory([]agents.Agent{{ID: "agent-1", Endpoint: "http://a1", Online: true}})
	sender := &fakeSender{}
	d, st := newTestDispatcher(t, reg, sender)

	n, _ := st.Create(CreateInput{AgentID: "agent-1", Type: TypeTaskAssigned, Title: "x"})

	if err := d.DispatchPending(context.Background()); err != nil {
		t.Fatalf("DispatchPending: %v", err)
	}
	got, _ := st.Get(n.ID)
	if !got.Delivered {
		t.Fatal("notification not delivered")
	}

	// Delivered once: further polls never resend.
	for i := 0; i < 3; i++ {
		if err := d.DispatchPending(context.Background()); err != nil {
			t.Fatalf("poll %d: %v", i, err)
		}
	}
	if ids := sender.sentIDs(); len(ids) != 1 {
		t.Fatalf("sent %d times, want exactly 1: %v", len(ids), ids)
	}
}

func TestOfflineAgentRetriedUntilOnline(t *testing.T) {
	t.Parallel()
	reg := agents.NewMemory([]agents.Agent{{ID: "agent-1", Endpoint: "http://a1", Online: false}})
	sender := &fakeSender{}
	d, st := newTestDispatcher(t, reg, sender)

	n, _ := st.Create(CreateInput{AgentID: "agent-1", Type: TypeTaskAssigned, Title: "x"})

	for i := 0; i < 3; i++ {
		if err := d.DispatchPending(context.Background()); err != nil {
			t.Fatalf("poll %d: %v", i, err)
		}
		got, _ := st.Get(n.ID)
		if got.Delivered {
			t.Fatalf("delivered to an offline agent on poll %d", i)
		}
	}
	if sender.calls != 0 {
		t.Fatalf("sender called %d times for an offline agent", sender.calls)
	}

	reg.SetOnline("agent-1", true)
	if err := d.DispatchPending(context.Background()); err != nil {
		t.Fatalf("DispatchPending: %v", err)
	}
	got, _ := st.Get(n.ID)
	if !got.Delivered {
		t.Fatal("not delivered after the agent came online")
	}
}

func TestUnknownAgentDropped(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	d, st := newTestDispatcher(t, agents.NewMemory(nil), sender)

	n, _ := st.Create(CreateInput{AgentID: "ghost", Type: TypeTaskAssigned, Title: "x"})

	if err := d.DispatchPending(context.Background()); err != nil {
		t.Fatalf("DispatchPending: %v", err)
	}
	got, _ := st.Get(n.ID)
	if !got.Delivered {
		t.Fatal("unknown-agent notification should be marked delivered to stop retries")
	}
	if sender.calls != 0 {
		t.Fatalf("sender called %d times for an unknown agent", sender.calls)
	}
}

func TestSendFailureIsolated(t *testing.T) {
	t.Parallel()
	reg := agents.NewMemory([]agents.Agent{
		{ID: "agent-bad", Endpoint: "http://bad", Online: true},
		{ID: "agent-good", Endpoint: "http://good", Online: true},
	})
	sender := &fakeSender{fail: map[string]bool{"http://bad": true}}
	d, st := newTestDispatcher(t, reg, sender)

	bad, _ := st.Create(CreateInput{AgentID: "agent-bad", Type: TypeTaskAssigned, Title: "x"})
	good, _ := st.Create(CreateInput{AgentID: "agent-good", Type: TypeTaskAssigned, Title: "y"})

	if err := d.DispatchPending(context.Background()); err != nil {
		t.Fatalf("DispatchPending: %v", err)
	}

	g, _ := st.Get(good.ID)
	if !g.Delivered {
		t.Fatal("healthy delivery blocked by a failing one")
	}
	b, _ := st.Get(bad.ID)
	if b.Delivered {
		t.Fatal("failed send marked delivered")
	}

	// Endpoint recovers; the stuck notification drains.
	sender.mu.Lock()
	sender.fail["http://bad"] = false
	sender.mu.Unlock()
	if err := d.DispatchPending(context.Background()); err != nil {
		t.Fatalf("DispatchPending: %v", err)
	}
	b, _ = st.Get(bad.ID)
	if !b.Delivered {
		t.Fatal("recovered endpoint did not receive the retry")
	}
}

func TestMissingEndpointSkipped(t *testing.T) {
	t.Parallel()
	reg := agents.NewMemory([]agents.Agent{{ID: "agent-1", Online: true}})
	sender := &fakeSender{}
	d, st := newTestDispatcher(t, reg, sender)

	n, _ := st.Create(CreateInput{AgentID: "agent-1", Type: TypeTaskAssigned, Title: "x"})
	if err := d.DispatchPending(context.Background()); err != nil {
		t.Fatalf("DispatchPending: %v", err)
	}
	got, _ := st.Get(n.ID)
	if got.Delivered || sender.calls != 0 {
		t.Fatalf("endpoint-less agent: delivered=%v calls=%d", got.Delivered, sender.calls)
	}
}

func TestDispatchStopsOnCancel(t *testing.T) {
	t.Parallel()
	reg := agents.NewMemory([]agents.Agent{{ID: "agent-1", Endpoint: "http://a1", Online: true}})
	d, st := newTestDispatcher(t, reg, &fakeSender{})

	if _, err := st.Create(CreateInput{AgentID: "agent-1", Type: TypeTaskAssigned, Title: "x"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.DispatchPending(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
