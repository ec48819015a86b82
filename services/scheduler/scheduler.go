// Package scheduler periodically publishes a per-status task count. Several
// instances may run; a Redis lease makes sure only one of them takes snapshots.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ramiqadoumi/go-task-tracker/internal/domain"
	"github.com/ramiqadoumi/go-task-tracker/pkg/telemetry"
)

const (
	// DefaultSchedule takes a snapshot every minute.
	DefaultSchedule = "* * * * *"
	// LeaderKey is the Redis key contended for by scheduler instances.
	LeaderKey = "scheduler:leader"
	// LeaderTTL bounds how long a crashed leader blocks the others.
	LeaderTTL = 30 * time.Second

	renewInterval = LeaderTTL / 2
)

// Leader is a renewable single-holder lease.
type Leader interface {
	AcquireOrRenew(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
	Holder() string
}

// StatusCounter reports how many tasks sit in each status.
type StatusCounter interface {
	CountByStatus(ctx context.Context) (map[domain.Status]int, error)
}

// Scheduler renews its lease on a fixed interval and, while it holds the lease,
// refreshes the tasks_by_status gauge on a cron schedule.
type Scheduler struct {
	lease    Leader
	counter  StatusCounter
	schedule string
	renew    time.Duration
	leader   atomic.Bool
	logger   *slog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithSchedule overrides DefaultSchedule. Standard five-field expressions and
// descriptors such as "@every 30s" are accepted.
func WithSchedule(expr string) Option { return func(s *Scheduler) { s.schedule = expr } }

// WithRenewInterval sets how often leadership is renewed.
func WithRenewInterval(d time.Duration) Option { return func(s *Scheduler) { s.renew = d } }

func WithLogger(l *slog.Logger) Option { return func(s *Scheduler) { s.logger = l } }

// NewScheduler validates the schedule and returns a Scheduler.
func NewScheduler(lease Leader, counter StatusCounter, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		lease:    lease,
		counter:  counter,
		schedule: DefaultSchedule,
		renew:    renewInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", s.schedule, err)
	}
	if s.renew <= 0 {
		return nil, fmt.Errorf("renew interval must be positive, got %s", s.renew)
	}
	return s, nil
}

// IsLeader reports whether the last renewal succeeded.
func (s *Scheduler) IsLeader() bool { return s.leader.Load() }

// Run blocks until ctx is cancelled. Leadership is claimed and, if won, a
// snapshot taken immediately before the first scheduled run.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() { s.tick(ctx) }); err != nil {
		return fmt.Errorf("schedule snapshot: %w", err)
	}

	if s.renewLeadership(ctx) {
		s.tick(ctx)
	}
	c.Start()

	ticker := time.NewTicker(s.renew)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			<-c.Stop().Done()
			s.resign()
			return nil
		case <-ticker.C:
			s.renewLeadership(ctx)
		}
	}
}

func (s *Scheduler) renewLeadership(ctx context.Context) bool {
	ok, err := s.lease.AcquireOrRenew(ctx)
	if err != nil {
		s.logger.Error("leader election", slog.String("error", err.Error()))
		ok = false
	}
	if was := s.leader.Swap(ok); was != ok {
		if ok {
			s.logger.Info("acquired scheduler leadership", slog.String("instance_id", s.lease.Holder()))
		} else {
			s.logger.Warn("lost scheduler leadership", slog.String("instance_id", s.lease.Holder()))
		}
	}
	return ok
}

func (s *Scheduler) resign() {
	if !s.leader.Swap(false) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.lease.Release(ctx); err != nil {
		s.logger.Warn("release leadership", slog.String("error", err.Error()))
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if !s.IsLeader() {
		return
	}
	if _, err := s.Snapshot(ctx); err != nil {
		s.logger.Error("status snapshot", slog.String("error", err.Error()))
	}
}

// Snapshot counts tasks per status and publishes the counts to the gauge.
// Every known status is set, including those with no tasks.
func (s *Scheduler) Snapshot(ctx context.Context) (map[domain.Status]int, error) {
	counts, err := s.counter.CountByStatus(ctx)
	if err != nil {
		telemetry.SchedulerSnapshotsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("count tasks by status: %w", err)
	}
	for _, st := range domain.Statuses() {
		telemetry.SchedulerTasksByStatus.WithLabelValues(string(st)).Set(float64(counts[st]))
	}
	telemetry.SchedulerSnapshotsTotal.WithLabelValues("ok").Inc()
	s.logger.Debug("status snapshot taken", slog.Any("counts", counts))
	return counts, nil
}
