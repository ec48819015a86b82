package lifecycle

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/ramiqadoumi/go-task-tracker/internal/domain"
	"github.com/ramiqadoumi/go-task-tracker/internal/postgres"
)

// Transaction budget used when none is configured.
const (
	DefaultTxMaxWait = 9 * time.Second
	DefaultTxTimeout = 10 * time.Second
)

// Page sizes used when none are configured.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

var tracer = otel.Tracer("lifecycle")

// Publisher hands committed lifecycle events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, event domain.TaskEvent) error
}

// TaskCache holds task snapshots for the read path.
// GetTask returns *domain.NotFoundError on a miss.
type TaskCache interface {
	GetTask(ctx context.Context, id string) (*domain.Task, error)
	SetTask(ctx context.Context, task *domain.Task) error
	Invalidate(ctx context.Context, id string) error
}

// Service is the task lifecycle engine.
type Service struct {
	repos     postgres.Repositories
	tx        postgres.Transactor
	validator *ProjectValidator
	audit     *AuditWriter
	publisher Publisher
	cache     TaskCache
	txOpts    postgres.TxOptions
	pageSize  int
	maxPage   int
	publishTO time.Duration
	now       func() time.Time
	newID     func() string
	logger    *slog.Logger

	wg sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithPublisher sets where committed lifecycle events are sent.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithCache enables the task read cache.
func WithCache(c TaskCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithTxOptions overrides the transaction budget and isolation level.
func WithTxOptions(o postgres.TxOptions) Option {
	return func(s *Service) { s.txOpts = o }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithPublishTimeout(d time.Duration) Option {
	return func(s *Service) { s.publishTO = d }
}

// WithPageSize sets the default and maximum number of items per listing page.
func WithPageSize(def, max int) Option {
	return func(s *Service) {
		if def > 0 {
			s.pageSize = def
		}
		if max > 0 {
			s.maxPage = max
		}
	}
}

// NewService wires the engine. repos serves reads and validation outside any
// transaction; tx runs every mutation.
func NewService(repos postgres.Repositories, tx postgres.Transactor, opts ...Option) *Service {
	s := &Service{
		repos: repos,
		tx:    tx,
		txOpts: postgres.TxOptions{
			MaxWait: DefaultTxMaxWait,
			Timeout: DefaultTxTimeout,
		},
		pageSize:  DefaultPageSize,
		maxPage:   MaxPageSize,
		publishTO: 30 * time.Second,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.validator = NewProjectValidator(repos.Projects)
	s.audit = NewAuditWriter()
	return s
}

// Wait blocks until every in-flight event publication has finished.
func (s *Service) Wait() { s.wg.Wait() }

// page converts 1-based page/limit query values into a skip/take window.
func (s *Service) page(page, limit int) domain.Page {
	if limit <= 0 {
		limit = s.pageSize
	}
	if limit > s.maxPage {
		limit = s.maxPage
	}
	skip := 0
	switch {
	case page > 0 && page-1 > math.MaxInt/limit:
		// Past any real listing; keeps the offset from wrapping negative.
		skip = math.MaxInt
	case page > 0:
		skip = (page - 1) * limit
	}
	return domain.Page{Skip: skip, Take: limit}
}
