package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures the audit store.
//
// Driver values:
//   - "file": dependency-free jsonl append log
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", auditing is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditEntry records one mutation against a persisted entity.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At       time.Time `json:"at"`
	Actor    string    `json:"actor,omitempty"`
	Entity   string    `json:"entity"` // "task", "routine", "notification"
	EntityID string    `json:"entity_id"`
	Action   string    `json:"action"` // "create", "update", "complete", ...
	Detail   string    `json:"detail,omitempty"`
	Error    string    `json:"error,omitempty"`
}
