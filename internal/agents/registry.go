// Package agents defines the registry of work recipients. The registry
// itself is an external collaborator; this package carries the interface the
// core consumes plus an in-memory implementation used for wiring and tests.
package agents

import (
	"strings"
	"sync"
)

// Agent is a work recipient: a human or an automated worker.
type Agent struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Role     string `json:"role,omitempty"`
	Endpoint string `json:"endpoint,omitempty"` // notification delivery URL
	Online   bool   `json:"online"`
}

// Registry resolves agents by id or role.
type Registry interface {
	Get(id string) (Agent, bool)
	List() []Agent
	FindByRole(role string) []Agent
}

// Memory is a mutable in-process registry, seeded from config.
// Online state is expected to be flipped by whatever presence mechanism the
// embedding process has (heartbeats, websocket sessions, ...).
type Memory struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

func NewMemory(seed []Agent) *Memory {
	m := &Memory{agents: map[string]Agent{}}
	for _, a := range seed {
		if a.ID == "" {
			continue
		}
		m.agents[a.ID] = a
	}
	return m
}

func (m *Memory) Get(id string) (Agent, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[id]
	return a, ok
}

func (m *Memory) List() []Agent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Agent, 0, len(m.agents))
	for _, a := range m.agents {
		out = append(out, a)
	}
	return out
}

func (m *Memory) FindByRole(role string) []Agent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Agent
	for _, a := range m.agents {
		if strings.EqualFold(a.Role, role) {
			out = append(out, a)
		}
	}
	return out
}

// Upsert adds or replaces an agent record.
func (m *Memory) Upsert(a Agent) {
	if a.ID == "" {
		return
	}
	m.mu.Lock()
	m.agents[a.ID] = a
	m.mu.Unlock()
}

// SetOnline flips the presence flag; unknown ids are ignored.
func (m *Memory) SetOnline(id string, online bool) {
	m.mu.Lock()
	if a, ok := m.agents[id]; ok {
		a.Online = online
		m.agents[id] = a
	}
	m.mu.Unlock()
}
