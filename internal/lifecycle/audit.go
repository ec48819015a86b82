package lifecycle

import (
	"context"

	"github.com/google/uuid"

	"github.com/ramiqadoumi/go-task-tracker/internal/domain"
	"github.com/ramiqadoumi/go-task-tracker/internal/postgres"
)

// AuditWriter appends history entries. It always writes through the
// repository it is handed, which inside the coordinator is the one bound to
// the running transaction. ChangedAt is stamped by the store, never by the
// calling process.
type AuditWriter struct {
	newID func() string
}

func NewAuditWriter() *AuditWriter {
	return &AuditWriter{newID: uuid.NewString}
}

// RecordCreation writes the first entry of a task's trail.
func (a *AuditWriter) RecordCreation(ctx context.Context, history postgres.HistoryRepository, task *domain.Task) (*domain.TaskHistory, error) {
	entry := &domain.TaskHistory{
		ID:            a.newID(),
		TaskID:        task.ID,
		CurrentStatus: task.Status,
		ChangedByID:   task.CreatedByID,
	}
	if err := history.Append(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// RecordTransition writes one entry for an accepted status change.
func (a *AuditWriter) RecordTransition(
	ctx context.Context,
	history postgres.HistoryRepository,
	taskID string,
	from, to domain.Status,
	actorID string,
) (*domain.TaskHistory, error) {
	entry := &domain.TaskHistory{
		ID:             a.newID(),
		TaskID:         taskID,
		PreviousStatus: &from,
		CurrentStatus:  to,
		ChangedByID:    actorID,
	}
	if err := history.Append(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}
