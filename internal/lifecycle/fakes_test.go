package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ramiqadoumi/go-task-tracker/internal/domain"
	"github.com/ramiqadoumi/go-task-tracker/internal/postgres"
)

// ── in-memory store ──────────────────────────────────────────────────────────

type memState struct {
	projects map[string]domain.Project
	tasks    map[string]domain.Task
	history  []domain.TaskHistory
	seq      int64 // database clock ticks, one per history row
}

func (s *memState) clone() *memState {
	c := &memState{
		projects: make(map[string]domain.Project, len(s.projects)),
		tasks:    make(map[string]domain.Task, len(s.tasks)),
		history:  append([]domain.TaskHistory(nil), s.history...),
		seq:      s.seq,
	}
	for k, v := range s.projects {
		c.projects[k] = v
	}
	for k, v := range s.tasks {
		c.tasks[k] = v
	}
	return c
}

// dbEpoch is the start of the fake database clock that stamps history rows.
var dbEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// memDB is a Transactor whose transactions work on a private copy of the
// state and swap it in on commit. Transactions are serialized, which gives
// the same outcome as row locks on a single task.
type memDB struct {
	mu    sync.Mutex // guards state
	txMu  sync.Mutex // one transaction at a time
	state *memState

	appendErr error  // returned by History.Append
	afterRead func() // run once after the next non-transactional task read
	txErr     error // returned by RunInTransaction before the body runs
	txCount   int
}

func newMemDB() *memDB {
	return &memDB{state: &memState{
		projects: make(map[string]domain.Project),
		tasks:    make(map[string]domain.Task),
	}}
}

func (db *memDB) Repositories() postgres.Repositories { return db.bind(nil) }

func (db *memDB) bind(tx *memState) postgres.Repositories {
	base := memRepo{db: db, tx: tx}
	return postgres.Repositories{
		Projects: &memProjects{base},
		Tasks:    &memTasks{base},
		History:  &memHistory{base},
	}
}

func (db *memDB) RunInTransaction(ctx context.Context, _ postgres.TxOptions, fn postgres.TxFunc) (postgres.TxResult, error) {
	db.txMu.Lock()
	defer db.txMu.Unlock()
	db.txCount++
	if db.txErr != nil {
		return postgres.TxResult{}, db.txErr
	}

	db.mu.Lock()
	work := db.state.clone()
	db.mu.Unlock()

	result, err := fn(ctx, db.bind(work))
	if err != nil {
		return postgres.TxResult{}, err
	}
	db.mu.Lock()
	db.state = work
	db.mu.Unlock()
	return result, nil
}

func (db *memDB) taskCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.state.tasks)
}

func (db *memDB) historyOf(taskID string) []domain.TaskHistory {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []domain.TaskHistory
	for _, h := range db.state.history {
		if h.TaskID == taskID {
			out = append(out, h)
		}
	}
	return out
}

func (db *memDB) addProject(p domain.Project) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.state.projects[p.ID] = p
}

type memRepo struct {
	db *memDB
	tx *memState
}

func (r memRepo) with(fn func(st *memState) error) error {
	if r.tx != nil {
		return fn(r.tx)
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return fn(r.db.state)
}

type memProjects struct{ memRepo }

func (r *memProjects) Create(_ context.Context, p *domain.Project) error {
	return r.with(func(st *memState) error {
		for _, existing := range st.projects {
			if existing.Name == p.Name {
				return &domain.ConflictError{Entity: domain.EntityProject, Field: "name", Value: p.Name}
			}
		}
		st.projects[p.ID] = *p
		return nil
	})
}

func (r *memProjects) GetByID(_ context.Context, id string) (*domain.Project, error) {
	var out *domain.Project
	err := r.with(func(st *memState) error {
		p, ok := st.projects[id]
		if !ok {
			return &domain.NotFoundError{Entity: domain.EntityProject, ID: id}
		}
		out = &p
		return nil
	})
	return out, err
}

func (r *memProjects) GetByName(_ context.Context, name string) (*domain.Project, error) {
	var out *domain.Project
	err := r.with(func(st *memState) error {
		for _, p := range st.projects {
			if p.Name == name {
				out = &p
				return nil
			}
		}
		return &domain.NotFoundError{Entity: domain.EntityProject, ID: name}
	})
	return out, err
}

func (r *memProjects) List(_ context.Context, page domain.Page) ([]*domain.Project, int, error) {
	var all []*domain.Project
	_ = r.with(func(st *memState) error {
		for _, p := range st.projects {
			all = append(all, &p)
		}
		return nil
	})
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	return window(all, page), len(all), nil
}

type memTasks struct{ memRepo }

func (r *memTasks) Create(_ context.Context, t *domain.Task) error {
	return r.with(func(st *memState) error {
		if _, ok := st.projects[t.ProjectID]; !ok {
			return &domain.NotFoundError{Entity: domain.EntityProject, ID: t.ProjectID}
		}
		st.tasks[t.ID] = *t
		return nil
	})
}

func (r *memTasks) GetByID(_ context.Context, id string) (*domain.Task, error) {
	var out *domain.Task
	err := r.with(func(st *memState) error {
		t, ok := st.tasks[id]
		if !ok {
			return &domain.NotFoundError{Entity: domain.EntityTask, ID: id}
		}
		out = &t
		return nil
	})
	if r.tx == nil {
		r.db.mu.Lock()
		hook := r.db.afterRead
		r.db.afterRead = nil
		r.db.mu.Unlock()
		if hook != nil {
			hook()
		}
	}
	return out, err
}

func (r *memTasks) GetByIDForUpdate(ctx context.Context, id string) (*domain.Task, error) {
	return r.GetByID(ctx, id)
}

func (r *memTasks) Update(_ context.Context, id string, c domain.TaskChanges) (*domain.Task, error) {
	var out *domain.Task
	err := r.with(func(st *memState) error {
		t, ok := st.tasks[id]
		if !ok {
			return &domain.NotFoundError{Entity: domain.EntityTask, ID: id}
		}
		if c.Status != nil {
			t.Status = *c.Status
		}
		if c.Title != nil {
			t.Title = *c.Title
		}
		if c.Description != nil {
			t.Description = *c.Description
		}
		if c.AssignedToID != nil {
			t.AssignedToID = c.AssignedToID
		}
		updatedBy := c.UpdatedByID
		t.UpdatedByID = &updatedBy
		t.UpdatedAt = c.UpdatedAt
		st.tasks[id] = t
		out = &t
		return nil
	})
	if r.tx == nil {
		r.db.mu.Lock()
		hook := r.db.afterRead
		r.db.afterRead = nil
		r.db.mu.Unlock()
		if hook != nil {
			hook()
		}
	}
	return out, err
}

func (r *memTasks) List(_ context.Context, f domain.TaskFilter, page domain.Page) ([]*domain.Task, int, error) {
	var all []*domain.Task
	_ = r.with(func(st *memState) error {
		for _, t := range st.tasks {
			if t.ProjectID != f.ProjectID {
				continue
			}
			if f.Status != nil && t.Status != *f.Status {
				continue
			}
			all = append(all, &t)
		}
		return nil
	})
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	return window(all, page), len(all), nil
}

func (r *memTasks) CountByStatus(_ context.Context) (map[domain.Status]int, error) {
	counts := make(map[domain.Status]int)
	_ = r.with(func(st *memState) error {
		for _, t := range st.tasks {
			counts[t.Status]++
		}
		return nil
	})
	return counts, nil
}

type memHistory struct{ memRepo }

func (r *memHistory) Append(_ context.Context, e *domain.TaskHistory) error {
	if r.db.appendErr != nil {
		return r.db.appendErr
	}
	return r.with(func(st *memState) error {
		if _, ok := st.tasks[e.TaskID]; !ok {
			return &domain.NotFoundError{Entity: domain.EntityTask, ID: e.TaskID}
		}
		st.seq++
		e.ChangedAt = dbEpoch.Add(time.Duration(st.seq) * time.Millisecond)
		st.history = append(st.history, *e)
		return nil
	})
}

func (r *memHistory) ListByTask(_ context.Context, taskID string) ([]*domain.TaskHistory, error) {
	var out []*domain.TaskHistory
	_ = r.with(func(st *memState) error {
		for _, h := range st.history {
			if h.TaskID == taskID {
				out = append(out, &h)
			}
		}
		return nil
	})
	return out, nil
}

func window[T any](items []T, page domain.Page) []T {
	if page.Skip >= len(items) {
		return nil
	}
	end := min(page.Skip+page.Take, len(items))
	return items[page.Skip:end]
}

var (
	_ postgres.Transactor        = (*memDB)(nil)
	_ postgres.ProjectRepository = (*memProjects)(nil)
	_ postgres.TaskRepository    = (*memTasks)(nil)
	_ postgres.HistoryRepository = (*memHistory)(nil)
)

// ── publisher and cache ──────────────────────────────────────────────────────

type fakePublisher struct {
	mu     sync.Mutex
	events []domain.TaskEvent
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, e domain.TaskEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *fakePublisher) types() []domain.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// fakeCache mirrors the Redis cache, including the tombstone that keeps a
// stale SetTask from landing after an Invalidate. Tombstones never expire here.
type fakeCache struct {
	mu          sync.Mutex
	tasks       map[string]domain.Task
	held        map[string]bool
	invalidated []string
	getErr      error
}

func newFakeCache() *fakeCache {
	return &fakeCache{tasks: make(map[string]domain.Task), held: make(map[string]bool)}
}

func (c *fakeCache) GetTask(_ context.Context, id string) (*domain.Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	t, ok := c.tasks[id]
	if !ok {
		return nil, &domain.NotFoundError{Entity: domain.EntityTask, ID: id}
	}
	return &t, nil
}

func (c *fakeCache) SetTask(_ context.Context, t *domain.Task) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.held[t.ID] {
		return nil
	}
	c.tasks[t.ID] = *t
	return nil
}

func (c *fakeCache) Invalidate(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tasks, id)
	c.held[id] = true
	c.invalidated = append(c.invalidated, id)
	return nil
}

var errBoom = errors.New("boom")

func wrapAborted(err error) error { return fmt.Errorf("%w: %w", postgres.ErrTxAborted, err) }
