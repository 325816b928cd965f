package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/portal-reports/internal/models"
	"github.com/noah-isme/portal-reports/pkg/jobs"
)

const triggerJobType = "report_trigger"

type scheduleSource interface {
	UpcomingReminders(ctx context.Context, now time.Time, lead time.Duration) ([]*models.Schedule, error)
	MarkReminded(ctx context.Context, id string, runAt time.Time) error
	DueSchedules(ctx context.Context, now time.Time) ([]*models.Schedule, error)
	Claim(ctx context.Context, id string, now time.Time) (*models.Schedule, bool, error)
	DueRetries(ctx context.Context, now time.Time) ([]*models.Schedule, error)
	ScheduleRetry(ctx context.Context, id string, at *time.Time) error
}

type triggerRunner interface {
	Run(ctx context.Context, t Trigger) (*RunReport, error)
}

type reminderSender interface {
	SendReminder(ctx context.Context, schedule *models.Schedule) *models.DeliveryAttempt
}

type artifactCleaner interface {
	Cleanup(now time.Time) ([]string, error)
}

type triggerDispatcher interface {
	TryEnqueue(ctx context.Context, job jobs.Job) error
}

type schedulerMetrics interface {
	SetDueSchedules(n int)
	SetQueueDepth(n int)
}

// SchedulerConfig tunes the background loop.
type SchedulerConfig struct {
	PollInterval    time.Duration
	CleanupInterval time.Duration
	ReminderLead    time.Duration
	RetryDelay      time.Duration
	Workers         int
	QueueSize       int
	DrainTimeout    time.Duration
	Location        *time.Location
}

// TickResult counts what one tick did.
type TickResult struct {
	Reminded   int
	Dispatched int
	Retried    int
}

// Scheduler polls the registry on a cron cadence and hands due triggers to a worker pool, so
// a slow report never delays detection of the others.
type Scheduler struct {
	schedules scheduleSource
	runner    triggerRunner
	reminders reminderSender
	cleaner   artifactCleaner
	metrics   schedulerMetrics
	cfg       SchedulerConfig
	logger    *zap.Logger
	now       func() time.Time

	queue    *jobs.Queue
	dispatch triggerDispatcher

	mu   sync.Mutex
	cron *cron.Cron
}

// NewScheduler constructs the loop. cleaner and metrics may be nil.
func NewScheduler(schedules scheduleSource, runner triggerRunner, reminders reminderSender, cleaner artifactCleaner, metrics schedulerMetrics, cfg SchedulerConfig, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Hour
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	s := &Scheduler{
		schedules: schedules,
		runner:    runner,
		reminders: reminders,
		cleaner:   cleaner,
		metrics:   metrics,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
	s.queue = jobs.NewQueue("report-triggers", s.handleJob, jobs.QueueConfig{
		Workers:      cfg.Workers,
		BufferSize:   cfg.QueueSize,
		DrainTimeout: cfg.DrainTimeout,
		OnDrop:       s.rearm,
		Logger:       logger,
	})
	s.dispatch = s.queue
	return s
}

// Start launches the worker pool and the cron entries. It returns once they are registered.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}
	s.queue.Start(ctx)

	c := cron.New(
		cron.WithLocation(s.cfg.Location),
		cron.WithChain(cron.Recover(cronLogger{s.logger}), cron.SkipIfStillRunning(cronLogger{s.logger})),
	)
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.cfg.PollInterval), func() {
		s.Tick(ctx, s.now())
	}); err != nil {
		s.queue.Stop()
		return fmt.Errorf("register scheduler tick: %w", err)
	}
	if s.cleaner != nil && s.cfg.CleanupInterval > 0 {
		if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.cfg.CleanupInterval), func() {
			if _, err := s.cleaner.Cleanup(s.now()); err != nil {
				s.logger.Sugar().Warnw("artifact cleanup failed", "error", err)
			}
		}); err != nil {
			s.queue.Stop()
			return fmt.Errorf("register artifact cleanup: %w", err)
		}
	}
	c.Start()
	s.cron = c
	s.logger.Sugar().Infow("report scheduler started", "poll_interval", s.cfg.PollInterval, "workers", s.cfg.Workers)
	return nil
}

// Stop halts the cron entries, waits for a running tick, then drains the worker pool.
// Triggers the pool could not run in time are re-armed as immediate retries.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	s.queue.Stop()
	s.logger.Sugar().Infow("report scheduler stopped")
}

// Tick sends due reminders, claims and dispatches due triggers in ascending order, then dispatches due retries.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) TickResult {
	var result TickResult
	log := s.logger.Sugar()

	if s.cfg.ReminderLead > 0 && s.reminders != nil {
		upcoming, err := s.schedules.UpcomingReminders(ctx, now, s.cfg.ReminderLead)
		if err != nil {
			log.Warnw("failed to list upcoming reminders", "error", err)
		}
		for _, schedule := range upcoming {
			s.reminders.SendReminder(ctx, schedule)
			if err := s.schedules.MarkReminded(ctx, schedule.ID, schedule.NextRunAt); err != nil {
				log.Warnw("failed to mark reminder sent", "schedule_id", schedule.ID, "error", err)
			}
			result.Reminded++
		}
	}

	due, err := s.schedules.DueSchedules(ctx, now)
	if err != nil {
		log.Errorw("failed to list due schedules", "error", err)
	}
	if s.metrics != nil {
		s.metrics.SetDueSchedules(len(due))
	}
	for _, schedule := range due {
		trigger, ok, err := s.schedules.Claim(ctx, schedule.ID, now)
		if err != nil {
			log.Warnw("failed to claim due schedule", "schedule_id", schedule.ID, "error", err)
			continue
		}
		if !ok {
			continue
		}
		if err := s.enqueue(ctx, TriggerFor(trigger, false)); err != nil {
			log.Errorw("failed to dispatch trigger", "schedule_id", schedule.ID, "error", err)
			s.deferRetry(ctx, schedule.ID, now)
			continue
		}
		result.Dispatched++
	}

	retries, err := s.schedules.DueRetries(ctx, now)
	if err != nil {
		log.Errorw("failed to list due retries", "error", err)
	}
	for _, schedule := range retries {
		if err := s.schedules.ScheduleRetry(ctx, schedule.ID, nil); err != nil {
			log.Warnw("failed to clear pending retry", "schedule_id", schedule.ID, "error", err)
			continue
		}
		if err := s.enqueue(ctx, TriggerFor(schedule, true)); err != nil {
			log.Errorw("failed to dispatch retry", "schedule_id", schedule.ID, "error", err)
			s.deferRetry(ctx, schedule.ID, now)
			continue
		}
		result.Retried++
	}

	if s.metrics != nil {
		s.metrics.SetQueueDepth(s.queue.Pending())
	}
	if result.Dispatched > 0 || result.Retried > 0 || result.Reminded > 0 {
		log.Infow("scheduler tick", "dispatched", result.Dispatched, "retried", result.Retried, "reminded", result.Reminded)
	}
	return result
}

// enqueue never waits for buffer space; a full pool is handled like any other dispatch failure.
func (s *Scheduler) enqueue(ctx context.Context, t Trigger) error {
	return s.dispatch.TryEnqueue(ctx, jobs.Job{
		ID:      fmt.Sprintf("%s@%d", t.ScheduleID, t.ScheduledFor.Unix()),
		Type:    triggerJobType,
		Payload: t,
	})
}

// deferRetry keeps an undispatched trigger from being lost.
func (s *Scheduler) deferRetry(ctx context.Context, id string, now time.Time) {
	at := now.Add(s.cfg.RetryDelay)
	if err := s.schedules.ScheduleRetry(ctx, id, &at); err != nil {
		s.logger.Sugar().Warnw("failed to defer undispatched trigger", "schedule_id", id, "error", err)
	}
}

// rearm persists a claimed trigger the pool dropped at shutdown so the next process runs it.
func (s *Scheduler) rearm(job jobs.Job) {
	trigger, ok := job.Payload.(Trigger)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	at := s.now()
	if err := s.schedules.ScheduleRetry(ctx, trigger.ScheduleID, &at); err != nil {
		s.logger.Sugar().Errorw("failed to re-arm dropped trigger", "schedule_id", trigger.ScheduleID, "error", err)
		return
	}
	s.logger.Sugar().Warnw("re-armed trigger dropped at shutdown", "schedule_id", trigger.ScheduleID, "scheduled_for", trigger.ScheduledFor)
}

func (s *Scheduler) handleJob(ctx context.Context, job jobs.Job) error {
	trigger, ok := job.Payload.(Trigger)
	if !ok {
		return fmt.Errorf("unexpected payload %T for job %s", job.Payload, job.ID)
	}
	_, err := s.runner.Run(ctx, trigger)
	return err
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
