package lifecycle

import (
	"context"
	"log/slog"

	"github.com/ramiqadoumi/go-task-tracker/internal/domain"
	"github.com/ramiqadoumi/go-task-tracker/pkg/telemetry"
)

// emit publishes event in the background once its transaction has committed.
// A publish failure is logged and counted; it never undoes the commit.
func (s *Service) emit(ctx context.Context, event domain.TaskEvent) {
	if s.publisher == nil {
		return
	}
	event.ID = s.newID()
	event.OccurredAt = s.now()

	// The request context may end before the publish does.
	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, s.publishTO)
		defer cancel()

		if err := s.publisher.Publish(ctx, event); err != nil {
			telemetry.LifecycleEventsPublished.WithLabelValues(string(event.Type), "error").Inc()
			s.logger.Error("publish task event",
				slog.String("event_type", string(event.Type)),
				slog.String("task_id", event.TaskID),
				slog.String("error", err.Error()),
			)
			return
		}
		telemetry.LifecycleEventsPublished.WithLabelValues(string(event.Type), "ok").Inc()
	}()
}

// invalidate drops a cached task snapshot after a committed change.
func (s *Service) invalidate(ctx context.Context, taskID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, taskID); err != nil {
		s.logger.Warn("task cache invalidation failed", slog.String("task_id", taskID), slog.String("error", err.Error()))
	}
}
