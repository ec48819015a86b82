package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ramiqadoumi/go-task-tracker/internal/domain"
)

// ProjectRepository abstracts database access for projects.
type ProjectRepository interface {
	Create(ctx context.Context, project *domain.Project) error
	GetByID(ctx context.Context, id string) (*domain.Project, error)
	GetByName(ctx context.Context, name string) (*domain.Project, error)
	List(ctx context.Context, page domain.Page) ([]*domain.Project, int, error)
}

// TaskRepository abstracts database access for tasks.
type TaskRepository interface {
	Create(ctx context.Context, task *domain.Task) error
	GetByID(ctx context.Context, id string) (*domain.Task, error)
	// GetByIDForUpdate reads the task and locks its row until the enclosing
	// transaction ends. Outside a transaction it behaves like GetByID.
	GetByIDForUpdate(ctx context.Context, id string) (*domain.Task, error)
	Update(ctx context.Context, id string, changes domain.TaskChanges) (*domain.Task, error)
	List(ctx context.Context, filter domain.TaskFilter, page domain.Page) ([]*domain.Task, int, error)
	CountByStatus(ctx context.Context) (map[domain.Status]int, error)
}

// HistoryRepository appends and reads the task audit trail.
type HistoryRepository interface {
	Append(ctx context.Context, entry *domain.TaskHistory) error
	ListByTask(ctx context.Context, taskID string) ([]*domain.TaskHistory, error)
}

// Repositories bundles the repositories bound to one connection or transaction.
type Repositories struct {
	Projects ProjectRepository
	Tasks    TaskRepository
	History  HistoryRepository
}

// TxOptions bounds a transaction.
type TxOptions struct {
	// MaxWait is the longest the caller waits for a pooled connection.
	MaxWait time.Duration
	// Timeout caps the whole unit, from acquiring the connection to commit.
	Timeout time.Duration
	// IsoLevel defaults to the server default (read committed) when empty.
	IsoLevel pgx.TxIsoLevel
}

// TxResult is what a transaction body hands back to its caller once committed.
type TxResult struct {
	Task *domain.Task
	// Entry is the history row written by the body, or nil if none was.
	Entry *domain.TaskHistory
}

// TxFunc is the body of a transaction. The repositories it receives are scoped
// to the transaction and must not be retained after it returns.
type TxFunc func(ctx context.Context, repos Repositories) (TxResult, error)

// Transactor runs a TxFunc as one atomic unit.
type Transactor interface {
	RunInTransaction(ctx context.Context, opts TxOptions, fn TxFunc) (TxResult, error)
}

var (
	// ErrTxTimeout marks a transaction that exceeded its wait or total budget.
	ErrTxTimeout = errors.New("transaction exceeded its time budget")
	// ErrTxAborted marks a transaction the database refused to complete.
	ErrTxAborted = errors.New("transaction aborted")
)

// dbtx is the query surface shared by *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store owns the connection pool and hands out repositories.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps a pgxpool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewPool creates a pgxpool and verifies connectivity.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Repositories returns repositories that run each statement on its own pooled connection.
func (s *Store) Repositories() Repositories {
	return bind(s.pool)
}

func bind(db dbtx) Repositories {
	return Repositories{
		Projects: &projectRepository{db: db},
		Tasks:    &taskRepository{db: db},
		History:  &historyRepository{db: db},
	}
}

// RunInTransaction acquires a connection within opts.MaxWait, runs fn inside a
// transaction and commits. Any error from fn, or a blown budget, rolls the
// whole unit back. The transaction is never retried.
func (s *Store) RunInTransaction(ctx context.Context, opts TxOptions, fn TxFunc) (TxResult, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	conn, err := s.acquire(ctx, opts.MaxWait)
	if err != nil {
		return TxResult{}, err
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{IsoLevel: opts.IsoLevel})
	if err != nil {
		return TxResult{}, classifyTxError(ctx, fmt.Errorf("begin: %w", err))
	}
	defer func() {
		// No-op after a successful commit.
		rbCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tx.Rollback(rbCtx)
	}()

	result, err := fn(ctx, bind(tx))
	if err != nil {
		return TxResult{}, classifyTxError(ctx, err)
	}
	if err := tx.Commit(ctx); err != nil {
		err = classifyTxError(ctx, fmt.Errorf("commit: %w", err))
		if !errors.Is(err, ErrTxTimeout) && !errors.Is(err, ErrTxAborted) {
			err = fmt.Errorf("%w: %w", ErrTxAborted, err)
		}
		return TxResult{}, err
	}
	return result, nil
}

func (s *Store) acquire(ctx context.Context, maxWait time.Duration) (*pgxpool.Conn, error) {
	acquireCtx := ctx
	if maxWait > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, maxWait)
		defer cancel()
	}
	conn, err := s.pool.Acquire(acquireCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: waited %s for a connection: %w", ErrTxTimeout, maxWait, err)
		}
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return conn, nil
}

// classifyTxError tags budget overruns and serialization failures while
// leaving domain errors from the body untouched.
func classifyTxError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrTxTimeout, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %w", ErrTxAborted, err)
	case isSerializationFailure(err):
		return fmt.Errorf("%w: %w", ErrTxAborted, err)
	}
	return err
}
