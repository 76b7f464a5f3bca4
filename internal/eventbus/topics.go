package eventbus

// Task lifecycle event topics published by the task store.
const (
	TopicTaskCreated   = "task.created"
	TopicTaskAssigned  = "task.assigned"
	TopicTaskCompleted = "task.completed"
	TopicTaskUnblocked = "task.unblocked"
	TopicTaskCommented = "task.commented"
	TopicTaskDeleted   = "task.deleted"
)

// TaskEvent is the payload for all task.* topics.
type TaskEvent struct {
	TaskID    string
	Title     string
	ProjectID string
	// AgentID is the affected recipient, the task's assignee. For comment
	// events the author is Actor, never AgentID.
	AgentID string
	Actor   string
	Note    string
}
