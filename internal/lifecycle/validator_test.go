package lifecycle

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramiqadoumi/go-task-tracker/internal/domain"
	"github.com/ramiqadoumi/go-task-tracker/internal/postgres"
)

type brokenProjects struct{ postgres.ProjectRepository }

func (brokenProjects) GetByID(context.Context, string) (*domain.Project, error) { return nil, errBoom }

func TestEnsureProjectExists(t *testing.T) {
	db := newMemDB()
	project := domain.Project{ID: uuid.NewString(), Name: "apollo"}
	db.addProject(project)
	v := NewProjectValidator(db.Repositories().Projects)

	got, err := v.EnsureProjectExists(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Equal(t, "apollo", got.Name)

	missing := uuid.NewString()
	_, err = v.EnsureProjectExists(context.Background(), missing)
	var notFound *domain.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, domain.EntityProject, notFound.Entity)
	assert.Equal(t, missing, notFound.ID)
}

func TestEnsureProjectExists_StoreFailureIsInternal(t *testing.T) {
	v := NewProjectValidator(brokenProjects{})
	_, err := v.EnsureProjectExists(context.Background(), uuid.NewString())

	var internal *domain.InternalError
	require.ErrorAs(t, err, &internal)
	assert.ErrorIs(t, err, errBoom)
	assert.False(t, domain.IsClientError(err))
}

func TestAuditWriter(t *testing.T) {
	db := newMemDB()
	project := domain.Project{ID: uuid.NewString(), Name: "apollo"}
	db.addProject(project)
	repos := db.Repositories()
	task := &domain.Task{ID: uuid.NewString(), ProjectID: project.ID, Status: domain.StatusToDo, CreatedByID: "c1"}
	require.NoError(t, repos.Tasks.Create(context.Background(), task))

	w := NewAuditWriter()

	created, err := w.RecordCreation(context.Background(), repos.History, task)
	require.NoError(t, err)
	assert.Nil(t, created.PreviousStatus)
	assert.Equal(t, "c1", created.ChangedByID)
	assert.False(t, created.ChangedAt.IsZero(), "the store stamps ChangedAt")

	moved, err := w.RecordTransition(context.Background(), repos.History, task.ID, domain.StatusToDo, domain.StatusInProgress, "a1")
	require.NoError(t, err)
	require.NotNil(t, moved.PreviousStatus)
	assert.Equal(t, domain.StatusToDo, *moved.PreviousStatus)
	assert.Equal(t, domain.StatusInProgress, moved.CurrentStatus)
	assert.NotEqual(t, created.ID, moved.ID)
	assert.True(t, moved.ChangedAt.After(created.ChangedAt))

	assert.Len(t, db.historyOf(task.ID), 2)
}
