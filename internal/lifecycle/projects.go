package lifecycle

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ramiqadoumi/go-task-tracker/internal/domain"
)

// CreateProject registers a project under a unique name. The name lookup is
// a fast path for the common duplicate; the store's unique constraint is the
// authoritative guard and also surfaces as *domain.ConflictError.
func (s *Service) CreateProject(ctx context.Context, name, ownerID string) (*domain.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &domain.ValidationError{Field: "name", Reason: "is required"}
	}
	if strings.TrimSpace(ownerID) == "" {
		return nil, &domain.ValidationError{Field: "owner_id", Reason: "is required"}
	}

	existing, err := s.repos.Projects.GetByName(ctx, name)
	switch {
	case err == nil && existing != nil:
		return nil, &domain.ConflictError{Entity: domain.EntityProject, Field: "name", Value: name}
	case err != nil && !isNotFound(err):
		return nil, &domain.InternalError{Op: "lookup project by name", Err: err}
	}

	project := &domain.Project{
		ID:        s.newID(),
		Name:      name,
		OwnerID:   ownerID,
		CreatedAt: s.now(),
	}
	if err := s.repos.Projects.Create(ctx, project); err != nil {
		if domain.IsClientError(err) {
			return nil, err
		}
		return nil, &domain.InternalError{Op: "create project", Err: err}
	}
	s.logger.Info("project created", slog.String("project_id", project.ID), slog.String("owner_id", ownerID))
	return project, nil
}

// GetProject returns a project or *domain.NotFoundError.
func (s *Service) GetProject(ctx context.Context, projectID string) (*domain.Project, error) {
	return s.validator.EnsureProjectExists(ctx, projectID)
}

// ListProjects returns one page of projects ordered by creation time.
func (s *Service) ListProjects(ctx context.Context, page, limit int) ([]*domain.Project, int, error) {
	projects, total, err := s.repos.Projects.List(ctx, s.page(page, limit))
	if err != nil {
		return nil, 0, &domain.InternalError{Op: "list projects", Err: err}
	}
	return projects, total, nil
}
