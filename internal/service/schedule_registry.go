package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/portal-reports/internal/models"
	appErrors "github.com/noah-isme/portal-reports/pkg/errors"
)

// ScheduleStore is the persistence seam of the registry. Get returns ErrScheduleNotFound for
// unknown ids and Delete of an unknown id is a no-op.
type ScheduleStore interface {
	Get(ctx context.Context, id string) (*models.Schedule, error)
	Put(ctx context.Context, schedule *models.Schedule) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*models.Schedule, error)
}

const lockStripes = 64

// keyedMutex serialises writers per schedule id.
type keyedMutex struct {
	stripes [lockStripes]sync.Mutex
}

func (k *keyedMutex) lock(id string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	m := &k.stripes[h.Sum32()%lockStripes]
	m.Lock()
	return m.Unlock
}

// ScheduleRegistry owns schedule state: creation, the active/paused lifecycle and cadence math.
type ScheduleRegistry struct {
	store  ScheduleStore
	locks  keyedMutex
	now    func() time.Time
	logger *zap.Logger
}

// NewScheduleRegistry constructs a registry over store.
func NewScheduleRegistry(store ScheduleStore, logger *zap.Logger) *ScheduleRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleRegistry{store: store, now: time.Now, logger: logger}
}

// Create validates cfg and stores a new active schedule. A nextRunAt that is not in the future
// is moved forward by whole periods until it is strictly after now.
func (r *ScheduleRegistry) Create(ctx context.Context, cfg models.ScheduleConfig) (*models.Schedule, error) {
	now := r.now()
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "schedule name is required")
	}
	if !cfg.Frequency.Valid() {
		return nil, appErrors.Clone(appErrors.ErrInvalidFrequency, fmt.Sprintf("unsupported frequency %q", cfg.Frequency))
	}
	if cfg.NextRunAt.IsZero() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "nextRunAt is required")
	}
	if _, _, err := ValidateDefinition(cfg.Definition, now); err != nil {
		return nil, err
	}
	recipients := NormalizeRecipients(cfg.Recipients)
	if len(recipients) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one recipient is required")
	}

	zone := strings.TrimSpace(cfg.Timezone)
	if zone == "" {
		zone = models.ZoneName(cfg.NextRunAt)
	}
	loc, err := models.LoadZone(zone)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timezone")
	}
	start := cfg.NextRunAt.In(loc)
	anchor := start.Day()
	schedule := &models.Schedule{
		ID:         uuid.NewString(),
		Name:       name,
		Definition: cfg.Definition.Clone(),
		Frequency:  cfg.Frequency,
		NextRunAt:  firstRunAfter(cfg.Frequency, start, anchor, now),
		AnchorDay:  anchor,
		Timezone:   zone,
		Recipients: recipients,
		Status:     models.ScheduleStatusActive,
		CreatedBy:  cfg.CreatedBy,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := r.store.Put(ctx, schedule); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store schedule")
	}
	r.logger.Sugar().Infow("schedule created", "schedule_id", schedule.ID, "frequency", schedule.Frequency, "next_run_at", schedule.NextRunAt)
	return schedule.Clone(), nil
}

// firstRunAfter returns start advanced by whole periods (computed from start, not chained) until after now.
func firstRunAfter(freq models.Frequency, start time.Time, anchor int, now time.Time) time.Time {
	next := start
	for n := 1; !next.After(now); n++ {
		next = freq.AddPeriods(start, n, anchor)
	}
	return next
}

// Get returns a snapshot of the schedule.
func (r *ScheduleRegistry) Get(ctx context.Context, id string) (*models.Schedule, error) {
	schedule, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, r.storeError(err, "failed to load schedule")
	}
	return schedule, nil
}

// List returns a snapshot of every schedule ordered by nextRunAt.
func (r *ScheduleRegistry) List(ctx context.Context) ([]*models.Schedule, error) {
	schedules, err := r.store.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedules")
	}
	sortByTime(schedules, func(s *models.Schedule) time.Time { return s.NextRunAt })
	return schedules, nil
}

// Pause stops future triggers. nextRunAt is frozen.
func (r *ScheduleRegistry) Pause(ctx context.Context, id string) (*models.Schedule, error) {
	return r.update(ctx, id, func(s *models.Schedule) error {
		s.Status = models.ScheduleStatusPaused
		return nil
	})
}

// Resume reactivates a schedule at whatever nextRunAt was pending.
func (r *ScheduleRegistry) Resume(ctx context.Context, id string) (*models.Schedule, error) {
	return r.update(ctx, id, func(s *models.Schedule) error {
		s.Status = models.ScheduleStatusActive
		return nil
	})
}

// Delete removes the schedule permanently. Unknown ids are not an error.
func (r *ScheduleRegistry) Delete(ctx context.Context, id string) error {
	unlock := r.locks.lock(id)
	defer unlock()
	if err := r.store.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete schedule")
	}
	r.logger.Sugar().Infow("schedule deleted", "schedule_id", id)
	return nil
}

// Advance moves nextRunAt forward by one period from its previous value.
func (r *ScheduleRegistry) Advance(ctx context.Context, id string) (*models.Schedule, error) {
	return r.update(ctx, id, func(s *models.Schedule) error {
		s.NextRunAt = s.Following(s.NextRunAt)
		return nil
	})
}

// Claim takes the pending trigger of an active, due schedule: it returns the pre-advance snapshot
// and advances nextRunAt by whole periods until it is after now. ok is false when the schedule
// is no longer active or due.
func (r *ScheduleRegistry) Claim(ctx context.Context, id string, now time.Time) (trigger *models.Schedule, ok bool, err error) {
	_, err = r.update(ctx, id, func(s *models.Schedule) error {
		if !s.IsActive() || s.NextRunAt.After(now) {
			return errNotClaimable
		}
		trigger = s.Clone()
		next := s.Following(s.NextRunAt)
		for !next.After(now) {
			next = s.Following(next)
		}
		s.NextRunAt = next
		return nil
	})
	if errors.Is(err, errNotClaimable) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return trigger, true, nil
}

var errNotClaimable = errors.New("schedule not claimable")

// DueSchedules returns active schedules with nextRunAt <= now, earliest first.
func (r *ScheduleRegistry) DueSchedules(ctx context.Context, now time.Time) ([]*models.Schedule, error) {
	return r.filter(ctx, func(s *models.Schedule) bool {
		return s.IsActive() && !s.NextRunAt.After(now)
	}, func(s *models.Schedule) time.Time { return s.NextRunAt })
}

// DueRetries returns active schedules whose pending retry is due, earliest first.
func (r *ScheduleRegistry) DueRetries(ctx context.Context, now time.Time) ([]*models.Schedule, error) {
	return r.filter(ctx, func(s *models.Schedule) bool {
		return s.IsActive() && s.RetryAt != nil && !s.RetryAt.After(now)
	}, func(s *models.Schedule) time.Time { return *s.RetryAt })
}

// UpcomingReminders returns active schedules running within lead of now that were not yet
// reminded about their pending nextRunAt.
func (r *ScheduleRegistry) UpcomingReminders(ctx context.Context, now time.Time, lead time.Duration) ([]*models.Schedule, error) {
	horizon := now.Add(lead)
	return r.filter(ctx, func(s *models.Schedule) bool {
		if !s.IsActive() || !s.NextRunAt.After(now) || s.NextRunAt.After(horizon) {
			return false
		}
		return s.RemindedFor == nil || !s.RemindedFor.Equal(s.NextRunAt)
	}, func(s *models.Schedule) time.Time { return s.NextRunAt })
}

// MarkReminded records that recipients were reminded about the run at runAt.
func (r *ScheduleRegistry) MarkReminded(ctx context.Context, id string, runAt time.Time) error {
	_, err := r.update(ctx, id, func(s *models.Schedule) error {
		at := runAt
		s.RemindedFor = &at
		return nil
	})
	return err
}

// ScheduleRetry sets the single pending retry of a schedule, replacing any earlier one.
// A nil at clears it.
func (r *ScheduleRegistry) ScheduleRetry(ctx context.Context, id string, at *time.Time) error {
	_, err := r.update(ctx, id, func(s *models.Schedule) error {
		if at == nil {
			s.RetryAt = nil
			return nil
		}
		v := *at
		s.RetryAt = &v
		return nil
	})
	return err
}

// RecordResult stores the outcome of a trigger. A run that generated its report clears any pending retry.
func (r *ScheduleRegistry) RecordResult(ctx context.Context, id string, result models.RunResult) error {
	_, err := r.update(ctx, id, func(s *models.Schedule) error {
		at := result.At
		s.LastRunAt = &at
		res := result
		s.LastResult = &res
		if result.Outcome != models.RunOutcomeFailed {
			s.RetryAt = nil
		}
		return nil
	})
	return err
}

func (r *ScheduleRegistry) update(ctx context.Context, id string, mutate func(*models.Schedule) error) (*models.Schedule, error) {
	unlock := r.locks.lock(id)
	defer unlock()

	schedule, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, r.storeError(err, "failed to load schedule")
	}
	if err := mutate(schedule); err != nil {
		return nil, err
	}
	schedule.UpdatedAt = r.now()
	if err := r.store.Put(ctx, schedule); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store schedule")
	}
	return schedule.Clone(), nil
}

func (r *ScheduleRegistry) filter(ctx context.Context, keep func(*models.Schedule) bool, key func(*models.Schedule) time.Time) ([]*models.Schedule, error) {
	schedules, err := r.store.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedules")
	}
	out := make([]*models.Schedule, 0, len(schedules))
	for _, s := range schedules {
		if keep(s) {
			out = append(out, s)
		}
	}
	sortByTime(out, key)
	return out, nil
}

func (r *ScheduleRegistry) storeError(err error, message string) error {
	if errors.Is(err, appErrors.ErrScheduleNotFound) {
		return err
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func sortByTime(list []*models.Schedule, key func(*models.Schedule) time.Time) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := key(list[i]), key(list[j])
		if !a.Equal(b) {
			return a.Before(b)
		}
		return list[i].ID < list[j].ID
	})
}
