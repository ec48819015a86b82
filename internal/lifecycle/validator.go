package lifecycle

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/ramiqadoumi/go-task-tracker/internal/domain"
	"github.com/ramiqadoumi/go-task-tracker/internal/postgres"
)

// ProjectValidator confirms that a project identifier resolves to a live project.
type ProjectValidator struct {
	projects postgres.ProjectRepository
}

// NewProjectValidator returns a validator backed by projects.
func NewProjectValidator(projects postgres.ProjectRepository) *ProjectValidator {
	return &ProjectValidator{projects: projects}
}

// EnsureProjectExists returns the project or a *domain.NotFoundError.
// Any other lookup failure is reported as *domain.InternalError.
func (v *ProjectValidator) EnsureProjectExists(ctx context.Context, projectID string) (*domain.Project, error) {
	if !isID(projectID) {
		return nil, &domain.NotFoundError{Entity: domain.EntityProject, ID: projectID}
	}
	project, err := v.projects.GetByID(ctx, projectID)
	if err != nil {
		var notFound *domain.NotFoundError
		if errors.As(err, &notFound) {
			return nil, &domain.NotFoundError{Entity: domain.EntityProject, ID: projectID}
		}
		return nil, &domain.InternalError{Op: "lookup project " + projectID, Err: err}
	}
	return project, nil
}

// isID reports whether id is a well-formed identifier. Malformed identifiers
// can never resolve, so callers treat them as not found.
func isID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
