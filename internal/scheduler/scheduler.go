// Package scheduler runs the periodic booking and installment jobs on asynq.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
	"go.uber.org/zap"

	"rental/internal/redis"
)

// Task types.
const (
	TypeActivateDueBookings     = "bookings:activate_due"
	TypeMarkOverdueInstallments = "installments:mark_overdue"
)

// MonitoringPath is where the asynq dashboard is mounted.
const MonitoringPath = "/monitoring"

const jobLockTTL = time.Minute

// BookingActivator moves due bookings to active.
type BookingActivator interface {
	ActivateDueBookings(ctx context.Context, asOf time.Time) (int, error)
}

// OverdueMarker flags unpaid installments past their due date.
type OverdueMarker interface {
	MarkOverdue(ctx context.Context, asOf time.Time) (int64, error)
}

// Locker keeps one instance at a time running a job.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl, wait time.Duration) (func(), error)
}

// Config holds scheduler settings.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Concurrency   int
	ActivateSpec  string // Cron spec, e.g. "@every 5m".
	OverdueSpec   string
}

// Scheduler enqueues the periodic jobs and processes them.
type Scheduler struct {
	cfg          Config
	redisOpt     asynq.RedisClientOpt
	bookings     BookingActivator
	installments OverdueMarker
	locker       Locker
	logger       *zap.Logger
	now          func() time.Time

	server    *asynq.Server
	scheduler *asynq.Scheduler
}

// New creates a new Scheduler. locker may be nil.
func New(cfg Config, bookings BookingActivator, installments OverdueMarker, locker Locker, logger *zap.Logger) *Scheduler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.ActivateSpec == "" {
		cfg.ActivateSpec = "@every 5m"
	}
	if cfg.OverdueSpec == "" {
		cfg.OverdueSpec = "@every 1h"
	}

	return &Scheduler{
		cfg: cfg,
		redisOpt: asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
		bookings:     bookings,
		installments: installments,
		locker:       locker,
		logger:       logger,
		now:          time.Now,
	}
}

// Mux maps task types to their handlers.
func (s *Scheduler) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeActivateDueBookings, s.HandleActivateDueBookings)
	mux.HandleFunc(TypeMarkOverdueInstallments, s.HandleMarkOverdueInstallments)
	return mux
}

// Start registers the periodic tasks and starts processing them.
func (s *Scheduler) Start() error {
	sugar := s.logger.Sugar()

	s.scheduler = asynq.NewScheduler(s.redisOpt, &asynq.SchedulerOpts{
		Logger:   sugar,
		Location: time.UTC,
	})
	if _, err := s.scheduler.Register(s.cfg.ActivateSpec, asynq.NewTask(TypeActivateDueBookings, nil)); err != nil {
		return fmt.Errorf("register %s: %w", TypeActivateDueBookings, err)
	}
	if _, err := s.scheduler.Register(s.cfg.OverdueSpec, asynq.NewTask(TypeMarkOverdueInstallments, nil)); err != nil {
		return fmt.Errorf("register %s: %w", TypeMarkOverdueInstallments, err)
	}

	s.server = asynq.NewServer(s.redisOpt, asynq.Config{
		Concurrency: s.cfg.Concurrency,
		Queues: map[string]int{
			"default": 10,
		},
		Logger: sugar,
	})

	if err := s.scheduler.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	if err := s.server.Start(s.Mux()); err != nil {
		s.scheduler.Shutdown()
		return fmt.Errorf("start task server: %w", err)
	}

	s.logger.Info("scheduler started",
		zap.String("activate_spec", s.cfg.ActivateSpec),
		zap.String("overdue_spec", s.cfg.OverdueSpec))
	return nil
}

// Shutdown stops enqueuing and waits for running tasks.
func (s *Scheduler) Shutdown() {
	if s.scheduler != nil {
		s.scheduler.Shutdown()
	}
	if s.server != nil {
		s.server.Shutdown()
	}
}

// Monitor returns the asynq dashboard, to be mounted at MonitoringPath.
func (s *Scheduler) Monitor() http.Handler {
	return asynqmon.New(asynqmon.Options{
		RootPath:     MonitoringPath,
		RedisConnOpt: s.redisOpt,
	})
}

// HandleActivateDueBookings activates bookings whose rental period has begun.
func (s *Scheduler) HandleActivateDueBookings(ctx context.Context, t *asynq.Task) error {
	return s.exclusive(ctx, t.Type(), func(ctx context.Context) error {
		n, err := s.bookings.ActivateDueBookings(ctx, s.now())
		if err != nil {
			return err
		}
		s.logger.Debug("activation pass finished", zap.Int("activated", n))
		return nil
	})
}

// HandleMarkOverdueInstallments flags installments past their due date.
func (s *Scheduler) HandleMarkOverdueInstallments(ctx context.Context, t *asynq.Task) error {
	return s.exclusive(ctx, t.Type(), func(ctx context.Context) error {
		n, err := s.installments.MarkOverdue(ctx, s.now())
		if err != nil {
			return err
		}
		s.logger.Debug("overdue pass finished", zap.Int64("marked", n))
		return nil
	})
}

// exclusive runs fn unless another instance holds the job lock, in which case the
// run is skipped.
func (s *Scheduler) exclusive(ctx context.Context, job string, fn func(ctx context.Context) error) error {
	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, "job:"+job, jobLockTTL, 0)
		if errors.Is(err, redis.ErrLockNotAcquired) {
			s.logger.Debug("job already running elsewhere", zap.String("job", job))
			return nil
		}
		if err != nil {
			return err
		}
		defer release()
	}

	if err := fn(ctx); err != nil {
		s.logger.Error("scheduled job failed", zap.String("job", job), zap.Error(err))
		return err
	}
	return nil
}
