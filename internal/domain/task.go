package domain

import "time"

// Project groups tasks. Names are unique across the system.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Task is the core domain entity: a unit of work moving through the status workflow.
type Task struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Status       Status    `json:"status"`
	ProjectID    string    `json:"project_id"`
	CreatedByID  string    `json:"created_by_id"`
	UpdatedByID  *string   `json:"updated_by_id,omitempty"`
	AssignedToID *string   `json:"assigned_to_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TaskHistory is one append-only audit record of a status change.
// PreviousStatus is nil only for the entry written when the task is created.
type TaskHistory struct {
	ID             string    `json:"id"`
	TaskID         string    `json:"task_id"`
	PreviousStatus *Status   `json:"previous_status"`
	CurrentStatus  Status    `json:"current_status"`
	ChangedByID    string    `json:"changed_by_id"`
	ChangedAt      time.Time `json:"changed_at"`
}

// NewTask carries the caller-supplied fields of a task being created.
type NewTask struct {
	Title       string
	Description string
	ProjectID   string
}

// TaskPatch is a partial update. Nil fields are left unchanged.
// ProjectID is the project the task is asserted to belong to.
type TaskPatch struct {
	ProjectID    string
	Status       *Status
	Title        *string
	Description  *string
	AssignedToID *string
}

// HasStatus reports whether the patch requests a status change.
func (p TaskPatch) HasStatus() bool { return p.Status != nil }

// TaskChanges is the set of columns written by a merge update.
type TaskChanges struct {
	Status       *Status
	Title        *string
	Description  *string
	AssignedToID *string
	UpdatedByID  string
	UpdatedAt    time.Time
}

// TaskFilter narrows task listings.
type TaskFilter struct {
	ProjectID string
	Status    *Status
}

// Page is a skip/take window over an ordered listing.
type Page struct {
	Skip int
	Take int
}
