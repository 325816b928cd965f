package repository

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/portal-reports/internal/models"
	appErrors "github.com/noah-isme/portal-reports/pkg/errors"
)

func newScheduleRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "postgres"), mock, func() { db.Close() }
}

func sampleSchedule(id string, next time.Time) *models.Schedule {
	return &models.Schedule{
		ID:   id,
		Name: "Weekly submissions",
		Definition: models.ReportDefinition{
			Type: models.ReportTypeSubmissions,
			Parameters: models.ReportParameters{
				DateRange: models.DateRange{Preset: models.DateRangeLast7Days},
				Format:    models.ReportFormatCSV,
			},
		},
		Frequency:  models.FrequencyWeekly,
		NextRunAt:  next,
		AnchorDay:  next.Day(),
		Recipients: []string{"dean@portal.test"},
		Status:     models.ScheduleStatusActive,
		CreatedAt:  next.Add(-time.Hour),
		UpdatedAt:  next.Add(-time.Hour),
	}
}

func TestMemoryScheduleStoreCopiesValues(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryScheduleStore()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	schedule := sampleSchedule("b", now)
	require.NoError(t, store.Put(ctx, schedule))
	require.NoError(t, store.Put(ctx, sampleSchedule("a", now.Add(-time.Hour))))

	schedule.Recipients[0] = "mutated@portal.test"
	fetched, err := store.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "dean@portal.test", fetched.Recipients[0])

	fetched.Name = "changed"
	again, err := store.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "Weekly submissions", again.Name)

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)

	require.NoError(t, store.Delete(ctx, "b"))
	require.NoError(t, store.Delete(ctx, "b"))
	_, err = store.Get(ctx, "b")
	assert.True(t, errors.Is(err, appErrors.ErrScheduleNotFound))
}

func TestScheduleRepositoryPutAndGet(t *testing.T) {
	db, mock, cleanup := newScheduleRepoMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)

	next := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	schedule := sampleSchedule("sched-1", next)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO report_schedules")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Put(context.Background(), schedule))

	columns := []string{"id", "name", "definition", "frequency", "next_run_at", "anchor_day", "timezone", "recipients", "status", "last_run_at", "last_result", "retry_at", "reminded_for", "created_by", "created_at", "updated_at"}
	rows := sqlmock.NewRows(columns).AddRow(
		"sched-1", "Weekly submissions",
		`{"type":"submissions","parameters":{"dateRange":{"preset":"last_7_days"},"includeCharts":false,"format":"csv"}}`,
		"weekly", next, 2, "Asia/Jakarta", "{dean@portal.test,slack:#reports}", "active",
		nil, `{"at":"2026-02-23T09:00:00Z","outcome":"partial","retry":false,"delivered":1,"failed":1}`, nil, nil,
		"admin-1", next, next,
	)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, definition")).
		WithArgs("sched-1").
		WillReturnRows(rows)

	fetched, err := repo.Get(context.Background(), "sched-1")
	require.NoError(t, err)
	assert.Equal(t, models.ReportTypeSubmissions, fetched.Definition.Type)
	assert.Equal(t, models.DateRangeLast7Days, fetched.Definition.Parameters.DateRange.Preset)
	assert.Equal(t, []string{"dean@portal.test", "slack:#reports"}, fetched.Recipients)
	assert.Equal(t, "Asia/Jakarta", fetched.Timezone)
	require.NotNil(t, fetched.LastResult)
	assert.Equal(t, models.RunOutcomePartial, fetched.LastResult.Outcome)
	assert.Equal(t, 1, fetched.LastResult.Failed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRepositoryGetMissing(t *testing.T) {
	db, mock, cleanup := newScheduleRepoMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM report_schedules WHERE id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, appErrors.ErrScheduleNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRepositoryDeleteAndList(t *testing.T) {
	db, mock, cleanup := newScheduleRepoMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM report_schedules WHERE id = $1")).
		WithArgs("gone").
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, repo.Delete(context.Background(), "gone"))

	next := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	columns := []string{"id", "name", "definition", "frequency", "next_run_at", "anchor_day", "timezone", "recipients", "status", "last_run_at", "last_result", "retry_at", "reminded_for", "created_by", "created_at", "updated_at"}
	rows := sqlmock.NewRows(columns).
		AddRow("a", "A", `{"type":"system","parameters":{"dateRange":{"preset":"this_month"},"includeCharts":true,"format":"pdf"}}`, "monthly", next, 31, "+07:00", "{}", "paused", nil, nil, nil, nil, "", next, next)
	mock.ExpectQuery(regexp.QuoteMeta("FROM report_schedules ORDER BY next_run_at ASC")).
		WillReturnRows(rows)

	list, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.ScheduleStatusPaused, list[0].Status)
	assert.Equal(t, 31, list[0].AnchorDay)
	assert.Equal(t, "+07:00", list[0].Timezone)
	assert.Empty(t, list[0].Recipients)
	assert.Nil(t, list[0].LastResult)
	require.NoError(t, mock.ExpectationsWereMet())
}

type fakeRedisHash struct {
	mu     sync.Mutex
	fields map[string]map[string]string
}

func newFakeRedisHash() *fakeRedisHash {
	return &fakeRedisHash{fields: make(map[string]map[string]string)}
}

func (f *fakeRedisHash) HGet(ctx context.Context, key, field string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	value, ok := f.fields[key][field]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(value, nil)
}

func (f *fakeRedisHash) HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fields[key] == nil {
		f.fields[key] = make(map[string]string)
	}
	for i := 0; i+1 < len(values); i += 2 {
		f.fields[key][values[i].(string)] = values[i+1].(string)
	}
	return redis.NewIntResult(int64(len(values)/2), nil)
}

func (f *fakeRedisHash) HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var removed int64
	for _, field := range fields {
		if _, ok := f.fields[key][field]; ok {
			delete(f.fields[key], field)
			removed++
		}
	}
	return redis.NewIntResult(removed, nil)
}

func (f *fakeRedisHash) HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.fields[key]))
	for k, v := range f.fields[key] {
		out[k] = v
	}
	return redis.NewMapStringStringResult(out, nil)
}

func TestRedisScheduleStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	client := newFakeRedisHash()
	store := NewRedisScheduleStore(client, "portal:report_schedules")

	now := time.Date(2026, 5, 31, 9, 0, 0, 0, time.UTC)
	retry := now.Add(time.Hour)
	schedule := sampleSchedule("late", now)
	schedule.RetryAt = &retry
	schedule.LastResult = &models.RunResult{At: now, Outcome: models.RunOutcomeFailed, Retry: true, Error: "boom"}
	require.NoError(t, store.Put(ctx, schedule))
	require.NoError(t, store.Put(ctx, sampleSchedule("early", now.Add(-24*time.Hour))))

	fetched, err := store.Get(ctx, "late")
	require.NoError(t, err)
	assert.True(t, fetched.NextRunAt.Equal(now))
	require.NotNil(t, fetched.RetryAt)
	assert.True(t, fetched.RetryAt.Equal(retry))
	assert.Equal(t, "boom", fetched.LastResult.Error)

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "early", list[0].ID)

	require.NoError(t, store.Delete(ctx, "late"))
	require.NoError(t, store.Delete(ctx, "late"))
	_, err = store.Get(ctx, "late")
	assert.True(t, errors.Is(err, appErrors.ErrScheduleNotFound))
}
