package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/portal-reports/internal/models"
	"github.com/noah-isme/portal-reports/internal/repository"
	appErrors "github.com/noah-isme/portal-reports/pkg/errors"
)

var registryNow = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func newTestRegistry() *ScheduleRegistry {
	registry := NewScheduleRegistry(repository.NewMemoryScheduleStore(), nil)
	registry.now = func() time.Time { return registryNow }
	return registry
}

func scheduleConfig(freq models.Frequency, next time.Time) models.ScheduleConfig {
	return models.ScheduleConfig{
		Name:       "Weekly submissions",
		Definition: definition(models.ReportTypeSubmissions, models.DateRangeLast7Days),
		Frequency:  freq,
		NextRunAt:  next,
		Recipients: []string{"dean@example.edu", "dean@example.edu", " registrar@example.edu "},
		CreatedBy:  "admin-1",
	}
}

func TestRegistryCreate(t *testing.T) {
	registry := newTestRegistry()
	next := registryNow.Add(24 * time.Hour)

	schedule, err := registry.Create(context.Background(), scheduleConfig(models.FrequencyWeekly, next))
	require.NoError(t, err)
	assert.NotEmpty(t, schedule.ID)
	assert.Equal(t, models.ScheduleStatusActive, schedule.Status)
	assert.True(t, schedule.NextRunAt.Equal(next))
	assert.Equal(t, []string{"dean@example.edu", "registrar@example.edu"}, schedule.Recipients)

	stored, err := registry.Get(context.Background(), schedule.ID)
	require.NoError(t, err)
	assert.Equal(t, schedule, stored)
}

func TestRegistryCreateNormalisesPastStart(t *testing.T) {
	registry := newTestRegistry()
	yesterday := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

	schedule, err := registry.Create(context.Background(), scheduleConfig(models.FrequencyDaily, yesterday))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC), schedule.NextRunAt)
	assert.True(t, schedule.NextRunAt.After(registryNow))
}

func TestRegistryCreateValidation(t *testing.T) {
	registry := newTestRegistry()
	next := registryNow.Add(time.Hour)

	cfg := scheduleConfig("hourly", next)
	_, err := registry.Create(context.Background(), cfg)
	assert.ErrorIs(t, err, appErrors.ErrInvalidFrequency)

	cfg = scheduleConfig(models.FrequencyDaily, next)
	cfg.Definition.Type = "grades"
	_, err = registry.Create(context.Background(), cfg)
	assert.ErrorIs(t, err, appErrors.ErrUnknownReportType)

	cfg = scheduleConfig(models.FrequencyDaily, next)
	cfg.Recipients = []string{" "}
	_, err = registry.Create(context.Background(), cfg)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	cfg = scheduleConfig(models.FrequencyDaily, time.Time{})
	_, err = registry.Create(context.Background(), cfg)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	cfg = scheduleConfig(models.FrequencyDaily, next)
	cfg.Name = "  "
	_, err = registry.Create(context.Background(), cfg)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	list, err := registry.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRegistryPausedScheduleIsNeverDue(t *testing.T) {
	registry := newTestRegistry()
	schedule, err := registry.Create(context.Background(), scheduleConfig(models.FrequencyDaily, registryNow.Add(time.Hour)))
	require.NoError(t, err)

	paused, err := registry.Pause(context.Background(), schedule.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleStatusPaused, paused.Status)

	later := registryNow.Add(72 * time.Hour)
	due, err := registry.DueSchedules(context.Background(), later)
	require.NoError(t, err)
	assert.Empty(t, due)

	_, ok, err := registry.Claim(context.Background(), schedule.ID, later)
	require.NoError(t, err)
	assert.False(t, ok)

	resumed, err := registry.Resume(context.Background(), schedule.ID)
	require.NoError(t, err)
	assert.True(t, resumed.NextRunAt.Equal(schedule.NextRunAt))
	due, err = registry.DueSchedules(context.Background(), later)
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestRegistryAdvanceKeepsCadenceWithoutDrift(t *testing.T) {
	registry := newTestRegistry()
	anchor := time.Date(2027, 1, 31, 9, 0, 0, 0, time.UTC)
	schedule, err := registry.Create(context.Background(), scheduleConfig(models.FrequencyMonthly, anchor))
	require.NoError(t, err)

	expected := []time.Time{
		time.Date(2027, 2, 28, 9, 0, 0, 0, time.UTC),
		time.Date(2027, 3, 31, 9, 0, 0, 0, time.UTC),
		time.Date(2027, 4, 30, 9, 0, 0, 0, time.UTC),
	}
	prev := schedule.NextRunAt
	for _, want := range expected {
		advanced, err := registry.Advance(context.Background(), schedule.ID)
		require.NoError(t, err)
		assert.True(t, advanced.NextRunAt.After(prev))
		assert.Equal(t, want, advanced.NextRunAt)
		prev = advanced.NextRunAt
	}
}

func TestRegistryClaimCatchesUpWholePeriods(t *testing.T) {
	registry := newTestRegistry()
	schedule, err := registry.Create(context.Background(), scheduleConfig(models.FrequencyDaily, registryNow.Add(time.Hour)))
	require.NoError(t, err)

	now := schedule.NextRunAt.Add(50 * time.Hour)
	trigger, ok, err := registry.Claim(context.Background(), schedule.ID, now)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, trigger.NextRunAt.Equal(schedule.NextRunAt))

	stored, err := registry.Get(context.Background(), schedule.ID)
	require.NoError(t, err)
	assert.Equal(t, schedule.NextRunAt.AddDate(0, 0, 3), stored.NextRunAt)

	_, ok, err = registry.Claim(context.Background(), schedule.ID, now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegistryConcurrentClaimsYieldOneTrigger(t *testing.T) {
	registry := newTestRegistry()
	schedule, err := registry.Create(context.Background(), scheduleConfig(models.FrequencyDaily, registryNow.Add(time.Hour)))
	require.NoError(t, err)
	now := schedule.NextRunAt

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := registry.Claim(context.Background(), schedule.ID, now)
			if err == nil && ok {
				mu.Lock()
				claimed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, claimed)
}

func TestRegistryUnknownIDs(t *testing.T) {
	registry := newTestRegistry()

	_, err := registry.Pause(context.Background(), "missing")
	assert.ErrorIs(t, err, appErrors.ErrScheduleNotFound)
	_, err = registry.Resume(context.Background(), "missing")
	assert.ErrorIs(t, err, appErrors.ErrScheduleNotFound)
	_, err = registry.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, appErrors.ErrScheduleNotFound)
	assert.NoError(t, registry.Delete(context.Background(), "missing"))
}

func TestRegistryDeleteIsIdempotent(t *testing.T) {
	registry := newTestRegistry()
	schedule, err := registry.Create(context.Background(), scheduleConfig(models.FrequencyDaily, registryNow.Add(time.Hour)))
	require.NoError(t, err)

	require.NoError(t, registry.Delete(context.Background(), schedule.ID))
	require.NoError(t, registry.Delete(context.Background(), schedule.ID))
	_, err = registry.Get(context.Background(), schedule.ID)
	assert.ErrorIs(t, err, appErrors.ErrScheduleNotFound)
}

func TestRegistryRemindersAndRetries(t *testing.T) {
	registry := newTestRegistry()
	schedule, err := registry.Create(context.Background(), scheduleConfig(models.FrequencyDaily, registryNow.Add(2*time.Hour)))
	require.NoError(t, err)

	upcoming, err := registry.UpcomingReminders(context.Background(), registryNow, 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	require.NoError(t, registry.MarkReminded(context.Background(), schedule.ID, schedule.NextRunAt))
	upcoming, err = registry.UpcomingReminders(context.Background(), registryNow, 24*time.Hour)
	require.NoError(t, err)
	assert.Empty(t, upcoming)

	retryAt := registryNow.Add(time.Hour)
	require.NoError(t, registry.ScheduleRetry(context.Background(), schedule.ID, &retryAt))
	retries, err := registry.DueRetries(context.Background(), retryAt)
	require.NoError(t, err)
	require.Len(t, retries, 1)

	require.NoError(t, registry.RecordResult(context.Background(), schedule.ID, models.RunResult{At: retryAt, Outcome: models.RunOutcomePartial}))
	stored, err := registry.Get(context.Background(), schedule.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.RetryAt)
	assert.Equal(t, models.RunOutcomePartial, stored.LastResult.Outcome)
}

// utcStore hands times back in UTC the way timestamptz columns do.
type utcStore struct {
	*repository.MemoryScheduleStore
}

func (s utcStore) Put(ctx context.Context, schedule *models.Schedule) error {
	copied := schedule.Clone()
	copied.NextRunAt = copied.NextRunAt.UTC()
	return s.MemoryScheduleStore.Put(ctx, copied)
}

func TestRegistryMonthlyAnchorSurvivesUTCStore(t *testing.T) {
	registry := NewScheduleRegistry(utcStore{repository.NewMemoryScheduleStore()}, nil)
	registry.now = func() time.Time { return time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC) }
	jakarta := time.FixedZone("", 7*3600)
	start := time.Date(2027, 1, 31, 0, 30, 0, 0, jakarta)

	schedule, err := registry.Create(context.Background(), scheduleConfig(models.FrequencyMonthly, start))
	require.NoError(t, err)
	assert.Equal(t, "+07:00", schedule.Timezone)
	assert.Equal(t, 31, schedule.AnchorDay)

	want := []time.Time{
		time.Date(2027, 2, 28, 0, 30, 0, 0, jakarta),
		time.Date(2027, 3, 31, 0, 30, 0, 0, jakarta),
		time.Date(2027, 4, 30, 0, 30, 0, 0, jakarta),
	}
	for _, expected := range want {
		advanced, err := registry.Advance(context.Background(), schedule.ID)
		require.NoError(t, err)
		assert.True(t, advanced.NextRunAt.Equal(expected), "got %s want %s", advanced.NextRunAt, expected)
	}
	assert.True(t, models.FrequencyMonthly.AddPeriods(start, 3, 31).Equal(want[2]))
}

func TestRegistryCreateWithExplicitTimezone(t *testing.T) {
	registry := NewScheduleRegistry(utcStore{repository.NewMemoryScheduleStore()}, nil)
	registry.now = func() time.Time { return time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC) }

	cfg := scheduleConfig(models.FrequencyMonthly, time.Date(2027, 1, 30, 17, 30, 0, 0, time.UTC))
	cfg.Timezone = "+07:00"
	schedule, err := registry.Create(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 31, schedule.AnchorDay)

	claimAt := time.Date(2027, 1, 31, 0, 0, 0, 0, time.UTC)
	trigger, ok, err := registry.Claim(context.Background(), schedule.ID, claimAt)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, trigger.NextRunAt.Equal(schedule.NextRunAt))

	stored, err := registry.Get(context.Background(), schedule.ID)
	require.NoError(t, err)
	assert.True(t, stored.NextRunAt.Equal(time.Date(2027, 2, 27, 17, 30, 0, 0, time.UTC)))

	cfg.Timezone = "Mars/Olympus"
	_, err = registry.Create(context.Background(), cfg)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
