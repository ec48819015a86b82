package notify_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramiqadoumi/go-task-tracker/internal/domain"
	"github.com/ramiqadoumi/go-task-tracker/internal/notify"
)

// stub is a minimal Handler implementation for registry tests.
type stub struct{ eventType domain.EventType }

func (s *stub) EventType() domain.EventType                    { return s.eventType }
func (s *stub) Handle(context.Context, domain.TaskEvent) error { return nil }

func TestRegistry_Get_KnownType(t *testing.T) {
	reg := notify.NewRegistry()
	reg.Register(&stub{eventType: domain.EventTaskStatusChanged})

	h, err := reg.Get(domain.EventTaskStatusChanged)
	require.NoError(t, err)
	assert.Equal(t, domain.EventTaskStatusChanged, h.EventType())
}

func TestRegistry_Get_UnknownType(t *testing.T) {
	reg := notify.NewRegistry()

	_, err := reg.Get(domain.EventTaskCreated)
	require.Error(t, err)
	assert.True(t, errors.Is(err, notify.ErrNoHandler))
	assert.Contains(t, err.Error(), "task.created")
}

func TestRegistry_Register_Overwrites(t *testing.T) {
	reg := notify.NewRegistry()
	first := &stub{eventType: domain.EventTaskCreated}
	second := &stub{eventType: domain.EventTaskCreated}
	reg.Register(first)
	reg.Register(second)

	h, err := reg.Get(domain.EventTaskCreated)
	require.NoError(t, err)
	assert.Same(t, second, h)
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	reg := notify.NewRegistry()
	reg.Register(&stub{eventType: domain.EventTaskCreated})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); reg.Register(&stub{eventType: domain.EventTaskUpdated}) }()
		go func() { defer wg.Done(); _, _ = reg.Get(domain.EventTaskCreated) }()
	}
	wg.Wait()
}

func TestIsPermanent(t *testing.T) {
	inner := errors.New("400")
	err := errors.Join(errors.New("ctx"), &notify.PermanentError{Err: inner})
	assert.True(t, notify.IsPermanent(err))
	assert.ErrorIs(t, err, inner)
	assert.False(t, notify.IsPermanent(inner))
}
