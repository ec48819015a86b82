package lifecycle

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ramiqadoumi/go-task-tracker/internal/domain"
	"github.com/ramiqadoumi/go-task-tracker/internal/postgres"
	"github.com/ramiqadoumi/go-task-tracker/pkg/telemetry"
)

// CreateTask validates the project, then inserts the task in its initial
// status together with its creation history entry as one atomic unit.
func (s *Service) CreateTask(ctx context.Context, input domain.NewTask, creatorID string) (*domain.Task, error) {
	ctx, span := tracer.Start(ctx, "lifecycle.create_task")
	defer span.End()
	span.SetAttributes(attribute.String("project.id", input.ProjectID))

	if err := validateNewTask(input, creatorID); err != nil {
		return nil, err
	}
	if _, err := s.validator.EnsureProjectExists(ctx, input.ProjectID); err != nil {
		return nil, err
	}
	if !domain.IsAllowed(nil, domain.InitialStatus) {
		return nil, &domain.InvalidTransitionError{To: domain.InitialStatus}
	}

	now := s.now()
	task := &domain.Task{
		ID:          s.newID(),
		Title:       strings.TrimSpace(input.Title),
		Description: input.Description,
		Status:      domain.InitialStatus,
		ProjectID:   input.ProjectID,
		CreatedByID: creatorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	span.SetAttributes(attribute.String("task.id", task.ID))
	log := s.logger.With(slog.String("task_id", task.ID), slog.String("project_id", task.ProjectID))

	start := time.Now()
	result, err := s.tx.RunInTransaction(ctx, s.txOpts, func(ctx context.Context, repos postgres.Repositories) (postgres.TxResult, error) {
		if err := repos.Tasks.Create(ctx, task); err != nil {
			return postgres.TxResult{}, err
		}
		entry, err := s.audit.RecordCreation(ctx, repos.History, task)
		if err != nil {
			return postgres.TxResult{}, err
		}
		return postgres.TxResult{Task: task, Entry: entry}, nil
	})
	telemetry.LifecycleTxDurationSeconds.WithLabelValues("create").Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create transaction failed")
		logFailure(log, "task creation failed", err)
		return nil, &domain.TransactionError{Op: "create", TaskID: task.ID, Err: err}
	}

	telemetry.LifecycleTasksCreated.Inc()
	log.Info("task created", slog.String("created_by", creatorID))

	s.emit(ctx, domain.TaskEvent{
		Type:      domain.EventTaskCreated,
		TaskID:    result.Task.ID,
		ProjectID: result.Task.ProjectID,
		ActorID:   creatorID,
		Status:    result.Entry.CurrentStatus,
	})
	return result.Task, nil
}

func validateNewTask(input domain.NewTask, creatorID string) error {
	if strings.TrimSpace(input.ProjectID) == "" {
		return &domain.ValidationError{Field: "project_id", Reason: "is required"}
	}
	if strings.TrimSpace(creatorID) == "" {
		return &domain.ValidationError{Field: "created_by_id", Reason: "is required"}
	}
	if strings.TrimSpace(input.Title) == "" {
		return &domain.ValidationError{Field: "title", Reason: "is required"}
	}
	return nil
}

// logFailure logs client-correctable failures at info and everything else,
// with its full cause chain, at error.
func logFailure(log *slog.Logger, msg string, err error) {
	if domain.IsClientError(err) {
		log.Info(msg, slog.String("error", err.Error()))
		return
	}
	log.Error(msg, slog.String("error", err.Error()))
}
