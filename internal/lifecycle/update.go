package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ramiqadoumi/go-task-tracker/internal/domain"
	"github.com/ramiqadoumi/go-task-tracker/internal/postgres"
	"github.com/ramiqadoumi/go-task-tracker/pkg/telemetry"
)

// UpdateTask applies patch to the task as one atomic unit. The task is
// re-read and locked inside the transaction, so the transition check always
// runs against the latest committed status. A history entry is written only
// when the status actually changes.
//
// Failures detected before the transaction (validation, missing project) are
// returned verbatim. Failures inside it come back as *domain.TransactionError
// with the cause preserved.
func (s *Service) UpdateTask(ctx context.Context, taskID string, patch domain.TaskPatch, actorID string) (*domain.Task, error) {
	ctx, span := tracer.Start(ctx, "lifecycle.update_task")
	defer span.End()
	span.SetAttributes(
		attribute.String("task.id", taskID),
		attribute.String("project.id", patch.ProjectID),
	)

	if err := validatePatch(patch, actorID); err != nil {
		telemetry.LifecycleUpdates.WithLabelValues("invalid").Inc()
		return nil, err
	}
	if _, err := s.validator.EnsureProjectExists(ctx, patch.ProjectID); err != nil {
		telemetry.LifecycleUpdates.WithLabelValues("not_found").Inc()
		return nil, err
	}
	if !isID(taskID) {
		telemetry.LifecycleUpdates.WithLabelValues("not_found").Inc()
		return nil, &domain.NotFoundError{Entity: domain.EntityTask, ID: taskID}
	}

	log := s.logger.With(slog.String("task_id", taskID), slog.String("actor_id", actorID))

	start := time.Now()
	result, err := s.tx.RunInTransaction(ctx, s.txOpts, func(ctx context.Context, repos postgres.Repositories) (postgres.TxResult, error) {
		return s.applyPatch(ctx, repos, taskID, patch, actorID)
	})
	telemetry.LifecycleTxDurationSeconds.WithLabelValues("update").Observe(time.Since(start).Seconds())
	if err != nil {
		telemetry.LifecycleUpdates.WithLabelValues(outcome(err)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "update transaction failed")
		logFailure(log, "task update failed", err)
		return nil, &domain.TransactionError{Op: "update", TaskID: taskID, Err: err}
	}

	telemetry.LifecycleUpdates.WithLabelValues("ok").Inc()
	s.invalidate(ctx, taskID)

	event := domain.TaskEvent{
		Type:      domain.EventTaskUpdated,
		TaskID:    result.Task.ID,
		ProjectID: result.Task.ProjectID,
		ActorID:   actorID,
		Status:    result.Task.Status,
	}
	if entry := result.Entry; entry != nil {
		telemetry.LifecycleTransitions.WithLabelValues(string(*entry.PreviousStatus), string(entry.CurrentStatus)).Inc()
		log.Info("task status changed",
			slog.String("from", string(*entry.PreviousStatus)),
			slog.String("to", string(entry.CurrentStatus)),
		)
		event.Type = domain.EventTaskStatusChanged
		event.PreviousStatus = entry.PreviousStatus
	} else {
		log.Info("task updated")
	}
	s.emit(ctx, event)
	return result.Task, nil
}

// applyPatch is the transaction body of UpdateTask.
func (s *Service) applyPatch(
	ctx context.Context,
	repos postgres.Repositories,
	taskID string,
	patch domain.TaskPatch,
	actorID string,
) (postgres.TxResult, error) {
	current, err := repos.Tasks.GetByIDForUpdate(ctx, taskID)
	if err != nil {
		return postgres.TxResult{}, err
	}
	// A task asserted to live in another project is treated as absent there.
	if current.ProjectID != patch.ProjectID {
		return postgres.TxResult{}, &domain.NotFoundError{Entity: domain.EntityTask, ID: taskID}
	}

	prior := current.Status
	changed := patch.HasStatus() && *patch.Status != prior
	if changed && !domain.IsAllowed(&prior, *patch.Status) {
		return postgres.TxResult{}, &domain.InvalidTransitionError{TaskID: taskID, From: prior, To: *patch.Status}
	}

	updated, err := repos.Tasks.Update(ctx, taskID, domain.TaskChanges{
		Status:       patch.Status,
		Title:        patch.Title,
		Description:  patch.Description,
		AssignedToID: patch.AssignedToID,
		UpdatedByID:  actorID,
		UpdatedAt:    s.now(),
	})
	if err != nil {
		return postgres.TxResult{}, err
	}
	if !changed {
		return postgres.TxResult{Task: updated}, nil
	}

	entry, err := s.audit.RecordTransition(ctx, repos.History, taskID, prior, *patch.Status, actorID)
	if err != nil {
		return postgres.TxResult{}, err
	}
	return postgres.TxResult{Task: updated, Entry: entry}, nil
}

func validatePatch(patch domain.TaskPatch, actorID string) error {
	if strings.TrimSpace(patch.ProjectID) == "" {
		return &domain.ValidationError{Field: "project_id", Reason: "is required"}
	}
	if strings.TrimSpace(actorID) == "" {
		return &domain.ValidationError{Field: "updated_by_id", Reason: "is required"}
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return &domain.ValidationError{Field: "status", Reason: "unknown status " + string(*patch.Status)}
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return &domain.ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if patch.AssignedToID != nil && strings.TrimSpace(*patch.AssignedToID) == "" {
		return &domain.ValidationError{Field: "assigned_to_id", Reason: "must not be empty"}
	}
	return nil
}

// outcome labels a failed update for the updates_total counter.
func outcome(err error) string {
	var (
		notFound   *domain.NotFoundError
		transition *domain.InvalidTransitionError
	)
	switch {
	case errors.As(err, &transition):
		return "invalid_transition"
	case errors.As(err, &notFound):
		return "not_found"
	case errors.Is(err, postgres.ErrTxTimeout):
		return "timeout"
	case errors.Is(err, postgres.ErrTxAborted):
		return "aborted"
	}
	return "error"
}
