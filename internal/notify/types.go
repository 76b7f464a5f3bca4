// Package notify owns notification records and their best-effort,
// at-least-once delivery to intermittently-online agents.
package notify

import (
	"errors"
	"time"
)

// ErrNotFound signals a mutation against an unknown notification id.
var ErrNotFound = errors.New("notification not found")

// Notification types emitted by the event bridge.
const (
	TypeTaskAssigned  = "task_assigned"
	TypeTaskCompleted = "task_completed"
	TypeTaskUnblocked = "task_unblocked"
	TypeTaskComment   = "task_comment"
)

// Notification is a delivery intent for one recipient.
//
// Delivered transitions false -> true exactly once, by the dispatcher, after
// a confirmed send; a delivered notification is never retried.
type Notification struct {
	ID        string `json:"id"`
	AgentID   string `json:"agentId"`
	Type      string `json:"type"`
	Title     string `json:"title"`
	Text      string `json:"text,omitempty"`
	TaskID    string `json:"taskId,omitempty"`
	ProjectID string `json:"projectId,omitempty"`

	Delivered   bool       `json:"delivered"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
	Read        bool       `json:"read"`

	CreatedAt time.Time `json:"createdAt"`
}

// CreateInput carries the fields for a new notification.
type CreateInput struct {
	AgentID   string
	Type      string
	Title     string
	Text      string
	TaskID    string
	ProjectID string
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	AgentID         string
	Type            string
	UnreadOnly      bool
	UndeliveredOnly bool
}

func (f Filter) match(n *Notification) bool {
	if f.AgentID != "" && n.AgentID != f.AgentID {
		return false
	}
	if f.Type != "" && n.Type != f.Type {
		return false
	}
	if f.UnreadOnly && n.Read {
		return false
	}
	if f.UndeliveredOnly && n.Delivered {
		return false
	}
	return true
}
