package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/portal-reports/internal/models"
	appErrors "github.com/noah-isme/portal-reports/pkg/errors"
)

type redisHashClient interface {
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

// RedisScheduleStore keeps each schedule as a JSON document in one redis hash.
type RedisScheduleStore struct {
	client redisHashClient
	key    string
}

// NewRedisScheduleStore constructs the store. key is the hash holding all schedules.
func NewRedisScheduleStore(client redisHashClient, key string) *RedisScheduleStore {
	if key == "" {
		key = "report_schedules"
	}
	return &RedisScheduleStore{client: client, key: key}
}

// Get returns the schedule or ErrScheduleNotFound.
func (s *RedisScheduleStore) Get(ctx context.Context, id string) (*models.Schedule, error) {
	raw, err := s.client.HGet(ctx, s.key, id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, appErrors.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("redis get schedule: %w", err)
	}
	return decodeSchedule(raw)
}

// Put writes the schedule document.
func (s *RedisScheduleStore) Put(ctx context.Context, schedule *models.Schedule) error {
	data, err := json.Marshal(schedule)
	if err != nil {
		return fmt.Errorf("marshal schedule: %w", err)
	}
	if err := s.client.HSet(ctx, s.key, schedule.ID, string(data)).Err(); err != nil {
		return fmt.Errorf("redis put schedule: %w", err)
	}
	return nil
}

// Delete removes the schedule; absent ids are ignored.
func (s *RedisScheduleStore) Delete(ctx context.Context, id string) error {
	if err := s.client.HDel(ctx, s.key, id).Err(); err != nil {
		return fmt.Errorf("redis delete schedule: %w", err)
	}
	return nil
}

// List returns every schedule ordered by next run.
func (s *RedisScheduleStore) List(ctx context.Context) ([]*models.Schedule, error) {
	values, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list schedules: %w", err)
	}
	out := make([]*models.Schedule, 0, len(values))
	for id, raw := range values {
		schedule, err := decodeSchedule(raw)
		if err != nil {
			return nil, fmt.Errorf("schedule %s: %w", id, err)
		}
		out = append(out, schedule)
	}
	sortSchedules(out)
	return out, nil
}

func decodeSchedule(raw string) (*models.Schedule, error) {
	var schedule models.Schedule
	if err := json.Unmarshal([]byte(raw), &schedule); err != nil {
		return nil, fmt.Errorf("unmarshal schedule: %w", err)
	}
	if schedule.Recipients == nil {
		schedule.Recipients = []string{}
	}
	return &schedule, nil
}
