package lifecycle

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ramiqadoumi/go-task-tracker/internal/domain"
	"github.com/ramiqadoumi/go-task-tracker/pkg/telemetry"
)

// TaskDetail is a task together with its full status trajectory.
type TaskDetail struct {
	Task    *domain.Task          `json:"task"`
	History []*domain.TaskHistory `json:"history"`
}

// GetTask returns a task, consulting the cache first when one is configured.
func (s *Service) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	if !isID(taskID) {
		return nil, &domain.NotFoundError{Entity: domain.EntityTask, ID: taskID}
	}
	if s.cache != nil {
		task, err := s.cache.GetTask(ctx, taskID)
		switch {
		case err == nil:
			telemetry.APICacheLookups.WithLabelValues("hit").Inc()
			return task, nil
		case isNotFound(err):
			telemetry.APICacheLookups.WithLabelValues("miss").Inc()
		default:
			telemetry.APICacheLookups.WithLabelValues("error").Inc()
			s.logger.Warn("task cache read failed", slog.String("task_id", taskID), slog.String("error", err.Error()))
		}
	}

	task, err := s.repos.Tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, s.readError("get task "+taskID, err)
	}
	if s.cache != nil {
		if err := s.cache.SetTask(ctx, task); err != nil {
			s.logger.Warn("task cache write failed", slog.String("task_id", taskID), slog.String("error", err.Error()))
		}
	}
	return task, nil
}

// GetTaskDetail returns a task and its history ordered oldest first.
func (s *Service) GetTaskDetail(ctx context.Context, taskID string) (*TaskDetail, error) {
	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	history, err := s.TaskHistory(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return &TaskDetail{Task: task, History: history}, nil
}

// TaskHistory returns the audit trail of a task ordered oldest first.
func (s *Service) TaskHistory(ctx context.Context, taskID string) ([]*domain.TaskHistory, error) {
	if !isID(taskID) {
		return nil, &domain.NotFoundError{Entity: domain.EntityTask, ID: taskID}
	}
	entries, err := s.repos.History.ListByTask(ctx, taskID)
	if err != nil {
		return nil, s.readError("list history of "+taskID, err)
	}
	if len(entries) == 0 {
		// Every task has its creation entry, so an empty trail means no task.
		return nil, &domain.NotFoundError{Entity: domain.EntityTask, ID: taskID}
	}
	return entries, nil
}

// ListTasks returns one page of a project's tasks and the total match count.
// page is 1-based; limit falls back to the configured page size.
func (s *Service) ListTasks(ctx context.Context, filter domain.TaskFilter, page, limit int) ([]*domain.Task, int, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, 0, &domain.ValidationError{Field: "status", Reason: "unknown status " + string(*filter.Status)}
	}
	if _, err := s.validator.EnsureProjectExists(ctx, filter.ProjectID); err != nil {
		return nil, 0, err
	}
	tasks, total, err := s.repos.Tasks.List(ctx, filter, s.page(page, limit))
	if err != nil {
		return nil, 0, &domain.InternalError{Op: "list tasks", Err: err}
	}
	return tasks, total, nil
}

// CountByStatus returns the number of tasks in each status.
func (s *Service) CountByStatus(ctx context.Context) (map[domain.Status]int, error) {
	counts, err := s.repos.Tasks.CountByStatus(ctx)
	if err != nil {
		return nil, &domain.InternalError{Op: "count tasks by status", Err: err}
	}
	return counts, nil
}

// readError passes NotFound through and wraps everything else.
func (s *Service) readError(op string, err error) error {
	if isNotFound(err) {
		return err
	}
	return &domain.InternalError{Op: op, Err: err}
}

func isNotFound(err error) bool {
	var notFound *domain.NotFoundError
	return errors.As(err, &notFound)
}
