package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ramiqadoumi/go-task-tracker/internal/domain"
)

const taskColumns = `id, title, description, status, project_id, created_by_id,
		       updated_by_id, assigned_to_id, created_at, updated_at`

type taskRepository struct {
	db dbtx
}

func (r *taskRepository) Create(ctx context.Context, task *domain.Task) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO tasks
			(id, title, description, status, project_id, created_by_id,
			 updated_by_id, assigned_to_id, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		task.ID, task.Title, task.Description, string(task.Status), task.ProjectID,
		task.CreatedByID, task.UpdatedByID, task.AssignedToID, task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return &domain.NotFoundError{Entity: domain.EntityProject, ID: task.ProjectID}
		}
		return fmt.Errorf("create task %s: %w", task.ID, err)
	}
	return nil
}

func (r *taskRepository) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	row := r.db.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	return scanTask(row, id)
}

func (r *taskRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Task, error) {
	row := r.db.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1 FOR UPDATE`, id)
	return scanTask(row, id)
}

// Update merges changes into the stored row. Nil fields keep their column value.
func (r *taskRepository) Update(ctx context.Context, id string, changes domain.TaskChanges) (*domain.Task, error) {
	var status *string
	if changes.Status != nil {
		s := string(*changes.Status)
		status = &s
	}
	// Nil changes keep the stored value, so an assignee can be replaced but
	// not cleared.
	row := r.db.QueryRow(ctx, `
		UPDATE tasks
		SET status         = COALESCE($2, status),
		    title          = COALESCE($3, title),
		    description    = COALESCE($4, description),
		    assigned_to_id = COALESCE($5, assigned_to_id),
		    updated_by_id  = $6,
		    updated_at     = $7
		WHERE id = $1
		RETURNING `+taskColumns,
		id, status, changes.Title, changes.Description, changes.AssignedToID,
		changes.UpdatedByID, changes.UpdatedAt,
	)
	task, err := scanTask(row, id)
	if err != nil {
		var notFound *domain.NotFoundError
		if errors.As(err, &notFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update task %s: %w", id, err)
	}
	return task, nil
}

func (r *taskRepository) List(ctx context.Context, filter domain.TaskFilter, page domain.Page) ([]*domain.Task, int, error) {
	var status *string
	if filter.Status != nil {
		s := string(*filter.Status)
		status = &s
	}

	var total int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM tasks
		WHERE project_id = $1 AND ($2::text IS NULL OR status = $2)
	`, filter.ProjectID, status).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count tasks for project %s: %w", filter.ProjectID, err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE project_id = $1 AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at, id
		OFFSET $3 LIMIT $4
	`, filter.ProjectID, status, page.Skip, page.Take)
	if err != nil {
		return nil, 0, fmt.Errorf("list tasks for project %s: %w", filter.ProjectID, err)
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows, "")
		if err != nil {
			return nil, 0, err
		}
		tasks = append(tasks, task)
	}
	return tasks, total, rows.Err()
}

func (r *taskRepository) CountByStatus(ctx context.Context) (map[domain.Status]int, error) {
	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count tasks by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.Status]int, len(domain.Statuses()))
	for _, s := range domain.Statuses() {
		counts[s] = 0
	}
	for rows.Next() {
		var statusStr string
		var n int
		if err := rows.Scan(&statusStr, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[domain.Status(statusStr)] = n
	}
	return counts, rows.Err()
}

// scanTask reads a task row from any pgx row type.
func scanTask(row pgx.Row, id string) (*domain.Task, error) {
	var task domain.Task
	var statusStr string
	err := row.Scan(
		&task.ID, &task.Title, &task.Description, &statusStr, &task.ProjectID,
		&task.CreatedByID, &task.UpdatedByID, &task.AssignedToID,
		&task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.NotFoundError{Entity: domain.EntityTask, ID: id}
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}
	task.Status = domain.Status(statusStr)
	return &task, nil
}
