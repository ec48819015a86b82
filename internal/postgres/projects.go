package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ramiqadoumi/go-task-tracker/internal/domain"
)

type projectRepository struct {
	db dbtx
}

func (r *projectRepository) Create(ctx context.Context, project *domain.Project) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO projects (id, name, owner_id, created_at)
		VALUES ($1, $2, $3, $4)
	`, project.ID, project.Name, project.OwnerID, project.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return &domain.ConflictError{Entity: domain.EntityProject, Field: "name", Value: project.Name}
		}
		return fmt.Errorf("create project %s: %w", project.ID, err)
	}
	return nil
}

func (r *projectRepository) GetByID(ctx context.Context, id string) (*domain.Project, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, owner_id, created_at
		FROM projects
		WHERE id = $1
	`, id)
	return scanProject(row, id)
}

func (r *projectRepository) GetByName(ctx context.Context, name string) (*domain.Project, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, owner_id, created_at
		FROM projects
		WHERE name = $1
	`, name)
	return scanProject(row, name)
}

func (r *projectRepository) List(ctx context.Context, page domain.Page) ([]*domain.Project, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM projects`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count projects: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, name, owner_id, created_at
		FROM projects
		ORDER BY created_at, id
		OFFSET $1 LIMIT $2
	`, page.Skip, page.Take)
	if err != nil {
		return nil, 0, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []*domain.Project
	for rows.Next() {
		p, err := scanProject(rows, "")
		if err != nil {
			return nil, 0, err
		}
		projects = append(projects, p)
	}
	return projects, total, rows.Err()
}

// scanProject reads a project row from any pgx row type.
// key identifies the lookup in the NotFoundError.
func scanProject(row pgx.Row, key string) (*domain.Project, error) {
	var p domain.Project
	if err := row.Scan(&p.ID, &p.Name, &p.OwnerID, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.NotFoundError{Entity: domain.EntityProject, ID: key}
		}
		return nil, fmt.Errorf("scan project: %w", err)
	}
	return &p, nil
}
