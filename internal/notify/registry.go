// Package notify delivers committed lifecycle events to external systems.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ramiqadoumi/go-task-tracker/internal/domain"
)

// Handler reacts to one kind of lifecycle event.
type Handler interface {
	Handle(ctx context.Context, event domain.TaskEvent) error
	EventType() domain.EventType
}

// ErrNoHandler is returned by Registry.Get for an event type nobody handles.
var ErrNoHandler = errors.New("no handler registered")

// PermanentError marks a failure that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// IsPermanent reports whether err (or anything it wraps) is a PermanentError.
func IsPermanent(err error) bool {
	var permanent *PermanentError
	return errors.As(err, &permanent)
}

// Registry maps event types to their handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[domain.EventType]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[domain.EventType]Handler)}
}

// Register adds a handler, replacing any previous one for the same type.
// Safe to call concurrently.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.EventType()] = h
}

// Get returns the handler for the given event type, or an error wrapping
// ErrNoHandler.
func (r *Registry) Get(eventType domain.EventType) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[eventType]
	if !ok {
		return nil, fmt.Errorf("%w for %q", ErrNoHandler, eventType)
	}
	return h, nil
}
