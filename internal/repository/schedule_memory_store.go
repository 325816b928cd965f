package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/noah-isme/portal-reports/internal/models"
	appErrors "github.com/noah-isme/portal-reports/pkg/errors"
)

// MemoryScheduleStore keeps schedules in process memory. Values are copied on the way in and out.
type MemoryScheduleStore struct {
	mu        sync.RWMutex
	schedules map[string]*models.Schedule
}

// NewMemoryScheduleStore constructs an empty store.
func NewMemoryScheduleStore() *MemoryScheduleStore {
	return &MemoryScheduleStore{schedules: make(map[string]*models.Schedule)}
}

// Get returns a copy of the schedule or ErrScheduleNotFound.
func (s *MemoryScheduleStore) Get(ctx context.Context, id string) (*models.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	schedule, ok := s.schedules[id]
	if !ok {
		return nil, appErrors.ErrScheduleNotFound
	}
	return schedule.Clone(), nil
}

// Put inserts or replaces the schedule.
func (s *MemoryScheduleStore) Put(ctx context.Context, schedule *models.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[schedule.ID] = schedule.Clone()
	return nil
}

// Delete removes the schedule; absent ids are ignored.
func (s *MemoryScheduleStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.schedules, id)
	return nil
}

// List returns copies of every schedule ordered by next run then id.
func (s *MemoryScheduleStore) List(ctx context.Context) ([]*models.Schedule, error) {
	s.mu.RLock()
	out := make([]*models.Schedule, 0, len(s.schedules))
	for _, schedule := range s.schedules {
		out = append(out, schedule.Clone())
	}
	s.mu.RUnlock()
	sortSchedules(out)
	return out, nil
}

func sortSchedules(list []*models.Schedule) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].NextRunAt.Equal(list[j].NextRunAt) {
			return list[i].NextRunAt.Before(list[j].NextRunAt)
		}
		return list[i].ID < list[j].ID
	})
}
