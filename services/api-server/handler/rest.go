// Package handler is the HTTP surface of the api-server.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ramiqadoumi/go-task-tracker/internal/domain"
	"github.com/ramiqadoumi/go-task-tracker/internal/lifecycle"
	"github.com/ramiqadoumi/go-task-tracker/services/api-server/middleware"
)

var tracer = otel.Tracer("api-server")

// TaskService is the part of lifecycle.Service the HTTP layer drives.
type TaskService interface {
	CreateProject(ctx context.Context, name, ownerID string) (*domain.Project, error)
	GetProject(ctx context.Context, projectID string) (*domain.Project, error)
	ListProjects(ctx context.Context, page, limit int) ([]*domain.Project, int, error)
	CreateTask(ctx context.Context, input domain.NewTask, creatorID string) (*domain.Task, error)
	UpdateTask(ctx context.Context, taskID string, patch domain.TaskPatch, actorID string) (*domain.Task, error)
	GetTaskDetail(ctx context.Context, taskID string) (*lifecycle.TaskDetail, error)
	ListTasks(ctx context.Context, filter domain.TaskFilter, page, limit int) ([]*domain.Task, int, error)
}

// ReadyFunc reports whether the server's dependencies are reachable.
type ReadyFunc func(ctx context.Context) error

// REST handles HTTP requests for projects and tasks.
type REST struct {
	svc    TaskService
	ready  ReadyFunc
	logger *slog.Logger
}

// NewREST creates a new REST handler. ready may be nil.
func NewREST(svc TaskService, ready ReadyFunc, logger *slog.Logger) *REST {
	return &REST{svc: svc, ready: ready, logger: logger}
}

// Routes mounts the /api/v1 resource routes on r. The caller installs the
// identity and rate limiting middleware.
func (h *REST) Routes(r chi.Router) {
	r.Route("/projects", func(r chi.Router) {
		r.Post("/", h.CreateProject)
		r.Get("/", h.ListProjects)
		r.Route("/{projectID}", func(r chi.Router) {
			r.Get("/", h.GetProject)
			r.Post("/tasks", h.CreateTask)
			r.Get("/tasks", h.ListTasks)
			r.Get("/tasks/{taskID}", h.GetTask)
			r.Put("/tasks/{taskID}", h.UpdateTask)
			r.Patch("/tasks/{taskID}", h.UpdateTask)
		})
	})
}

// CreateProjectRequest is the JSON body for POST /api/v1/projects.
type CreateProjectRequest struct {
	Name string `json:"name"`
}

// CreateTaskRequest is the JSON body for POST /api/v1/projects/{id}/tasks.
type CreateTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// UpdateTaskRequest is the JSON body for PUT /api/v1/projects/{id}/tasks/{taskID}.
// Omitted fields are left unchanged.
type UpdateTaskRequest struct {
	Status       *domain.Status `json:"status,omitempty"`
	Title        *string        `json:"title,omitempty"`
	Description  *string        `json:"description,omitempty"`
	AssignedToID *string        `json:"assigned_to_id,omitempty"`
}

// ListResponse is the envelope of every paginated listing.
type ListResponse[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// CreateProject handles POST /api/v1/projects.
func (h *REST) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if !h.decode(w, r, &req) {
		return
	}
	project, err := h.svc.CreateProject(r.Context(), req.Name, middleware.ActorFrom(r.Context()))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

// ListProjects handles GET /api/v1/projects.
func (h *REST) ListProjects(w http.ResponseWriter, r *http.Request) {
	page, limit, ok := pagination(w, r)
	if !ok {
		return
	}
	projects, total, err := h.svc.ListProjects(r.Context(), page, limit)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ListResponse[*domain.Project]{Items: nonNil(projects), Total: total, Page: page, Limit: limit})
}

// GetProject handles GET /api/v1/projects/{projectID}.
func (h *REST) GetProject(w http.ResponseWriter, r *http.Request) {
	project, err := h.svc.GetProject(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

// CreateTask handles POST /api/v1/projects/{projectID}/tasks.
func (h *REST) CreateTask(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "api_server.create_task")
	defer span.End()

	var req CreateTaskRequest
	if !h.decode(w, r, &req) {
		return
	}
	projectID := chi.URLParam(r, "projectID")
	span.SetAttributes(attribute.String("project.id", projectID))

	task, err := h.svc.CreateTask(ctx, domain.NewTask{
		Title:       req.Title,
		Description: req.Description,
		ProjectID:   projectID,
	}, middleware.ActorFrom(ctx))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// ListTasks handles GET /api/v1/projects/{projectID}/tasks?status=&page=&limit=.
func (h *REST) ListTasks(w http.ResponseWriter, r *http.Request) {
	page, limit, ok := pagination(w, r)
	if !ok {
		return
	}
	filter := domain.TaskFilter{ProjectID: chi.URLParam(r, "projectID")}
	if s := r.URL.Query().Get("status"); s != "" {
		status := domain.Status(s)
		filter.Status = &status
	}
	tasks, total, err := h.svc.ListTasks(r.Context(), filter, page, limit)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ListResponse[*domain.Task]{Items: nonNil(tasks), Total: total, Page: page, Limit: limit})
}

// GetTask handles GET /api/v1/projects/{projectID}/tasks/{taskID}. The
// response includes the task's status history.
func (h *REST) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	detail, err := h.svc.GetTaskDetail(r.Context(), taskID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if detail.Task.ProjectID != chi.URLParam(r, "projectID") {
		h.writeDomainError(w, r, &domain.NotFoundError{Entity: domain.EntityTask, ID: taskID})
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// UpdateTask handles PUT and PATCH /api/v1/projects/{projectID}/tasks/{taskID}.
func (h *REST) UpdateTask(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "api_server.update_task")
	defer span.End()

	var req UpdateTaskRequest
	if !h.decode(w, r, &req) {
		return
	}
	taskID := chi.URLParam(r, "taskID")
	span.SetAttributes(attribute.String("task.id", taskID))

	task, err := h.svc.UpdateTask(ctx, taskID, domain.TaskPatch{
		ProjectID:    chi.URLParam(r, "projectID"),
		Status:       req.Status,
		Title:        req.Title,
		Description:  req.Description,
		AssignedToID: req.AssignedToID,
	}, middleware.ActorFrom(ctx))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// Healthz handles GET /healthz.
func (h *REST) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz handles GET /readyz.
func (h *REST) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.ready(ctx); err != nil {
			h.logger.Warn("readiness check failed", slog.String("error", err.Error()))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *REST) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// writeDomainError maps the engine's error taxonomy onto HTTP. Client errors
// are reported verbatim; anything else gets a generic message and is logged
// with its full cause.
func (h *REST) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *domain.ValidationError
		notFound   *domain.NotFoundError
		conflict   *domain.ConflictError
		transition *domain.InvalidTransitionError
		limited    *domain.RateLimitExceededError
	)
	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, validation.Error())
	case errors.As(err, &transition):
		writeError(w, http.StatusUnprocessableEntity, transition.Error())
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, notFound.Error())
	case errors.As(err, &conflict):
		writeError(w, http.StatusConflict, conflict.Error())
	case errors.As(err, &limited):
		writeError(w, http.StatusTooManyRequests, limited.Error())
	default:
		h.logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// pagination reads 1-based ?page= and ?limit=. Zero means "use the default".
func pagination(w http.ResponseWriter, r *http.Request) (page, limit int, ok bool) {
	q := r.URL.Query()
	for _, p := range []struct {
		name string
		dst  *int
	}{{"page", &page}, {"limit", &limit}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "query parameter '"+p.name+"' must be a positive integer")
			return 0, 0, false
		}
		*p.dst = n
	}
	return page, limit, true
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
