package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ramiqadoumi/go-task-tracker/internal/domain"
)

type historyRepository struct {
	db dbtx
}

// Append inserts one audit row, filling ID when it is unset. ChangedAt is
// always taken from the database clock and written back to entry, so entries
// from instances with skewed clocks still line up.
func (r *historyRepository) Append(ctx context.Context, entry *domain.TaskHistory) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	var previous *string
	if entry.PreviousStatus != nil {
		s := string(*entry.PreviousStatus)
		previous = &s
	}
	var changedAt time.Time
	err := r.db.QueryRow(ctx, `
		INSERT INTO task_history
			(id, task_id, previous_status, current_status, changed_by_id, changed_at)
		VALUES
			($1, $2, $3, $4, $5, clock_timestamp())
		RETURNING changed_at
	`,
		entry.ID, entry.TaskID, previous, string(entry.CurrentStatus), entry.ChangedByID,
	).Scan(&changedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return &domain.NotFoundError{Entity: domain.EntityTask, ID: entry.TaskID}
		}
		return fmt.Errorf("append history for task %s: %w", entry.TaskID, err)
	}
	entry.ChangedAt = changedAt.UTC()
	return nil
}

// ListByTask returns the task's history in the order it was written.
func (r *historyRepository) ListByTask(ctx context.Context, taskID string) ([]*domain.TaskHistory, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, task_id, previous_status, current_status, changed_by_id, changed_at
		FROM task_history
		WHERE task_id = $1
		ORDER BY seq
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list history for task %s: %w", taskID, err)
	}
	defer rows.Close()

	var entries []*domain.TaskHistory
	for rows.Next() {
		var h domain.TaskHistory
		var previous *string
		var current string
		if err := rows.Scan(&h.ID, &h.TaskID, &previous, &current, &h.ChangedByID, &h.ChangedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		h.ChangedAt = h.ChangedAt.UTC()
		if previous != nil {
			p := domain.Status(*previous)
			h.PreviousStatus = &p
		}
		h.CurrentStatus = domain.Status(current)
		entries = append(entries, &h)
	}
	return entries, rows.Err()
}
