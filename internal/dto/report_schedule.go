package dto

import (
	"time"

	"github.com/noah-isme/portal-reports/internal/models"
)

// CreateScheduleRequest captures POST /schedules.
type CreateScheduleRequest struct {
	ReportDefinitionRequest
	Name       string    `json:"name" validate:"required,max=200"`
	Frequency  string    `json:"frequency" validate:"required,frequency"`
	NextRunAt  time.Time `json:"nextRunAt" validate:"required"`
	Timezone   string    `json:"timezone" validate:"omitempty,max=64"`
	Recipients []string  `json:"recipients" validate:"required,min=1,max=200,dive,required,max=320"`
}

// ScheduleResponse exposes a schedule.
type ScheduleResponse struct {
	ID         string                  `json:"id"`
	Name       string                  `json:"name"`
	Definition models.ReportDefinition `json:"definition"`
	Frequency  models.Frequency        `json:"frequency"`
	NextRunAt  time.Time               `json:"nextRunAt"`
	Timezone   string                  `json:"timezone"`
	Recipients []string                `json:"recipients"`
	Status     models.ScheduleStatus   `json:"status"`
	LastRunAt  *time.Time              `json:"lastRunAt,omitempty"`
	LastResult *models.RunResult       `json:"lastResult,omitempty"`
	RetryAt    *time.Time              `json:"retryAt,omitempty"`
	CreatedBy  string                  `json:"createdBy,omitempty"`
	CreatedAt  time.Time               `json:"createdAt"`
	UpdatedAt  time.Time               `json:"updatedAt"`
}

// NewScheduleResponse maps a schedule to its response. Times of the next run are shown on the
// schedule's own wall clock.
func NewScheduleResponse(s *models.Schedule) ScheduleResponse {
	return ScheduleResponse{
		ID:         s.ID,
		Name:       s.Name,
		Definition: s.Definition,
		Frequency:  s.Frequency,
		NextRunAt:  s.NextRunAt.In(s.Location()),
		Timezone:   s.Timezone,
		Recipients: s.Recipients,
		Status:     s.Status,
		LastRunAt:  s.LastRunAt,
		LastResult: s.LastResult,
		RetryAt:    s.RetryAt,
		CreatedBy:  s.CreatedBy,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
}
