package domain

import "time"

// EventType names a lifecycle event published after a commit.
type EventType string

const (
	EventTaskCreated       EventType = "task.created"
	EventTaskUpdated       EventType = "task.updated"
	EventTaskStatusChanged EventType = "task.status_changed"
)

// TaskEvent describes a committed change to a task.
type TaskEvent struct {
	ID             string    `json:"id"`
	Type           EventType `json:"type"`
	TaskID         string    `json:"task_id"`
	ProjectID      string    `json:"project_id"`
	ActorID        string    `json:"actor_id"`
	PreviousStatus *Status   `json:"previous_status,omitempty"`
	Status         Status    `json:"status"`
	OccurredAt     time.Time `json:"occurred_at"`
}
