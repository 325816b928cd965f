package service

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/portal-reports/internal/dto"
	"github.com/noah-isme/portal-reports/internal/models"
	appErrors "github.com/noah-isme/portal-reports/pkg/errors"
)

func createRequest() dto.CreateScheduleRequest {
	return dto.CreateScheduleRequest{
		ReportDefinitionRequest: dto.ReportDefinitionRequest{
			ReportType: "departments",
			Parameters: dto.ReportParametersRequest{
				DateRange: dto.DateRangeRequest{Preset: "this_month"},
				Format:    "pdf",
			},
		},
		Name:       "Monthly departments",
		Frequency:  "monthly",
		NextRunAt:  registryNow.Add(24 * time.Hour),
		Recipients: []string{"dean@example.edu", "slack:#reports"},
	}
}

func TestScheduleServiceCreateAndManage(t *testing.T) {
	svc := NewScheduleService(newTestRegistry(), nil, nil)
	ctx := context.Background()

	created, err := svc.Create(ctx, createRequest(), "admin-1")
	require.NoError(t, err)
	assert.Equal(t, "admin-1", created.CreatedBy)
	assert.Equal(t, models.ReportTypeDepartments, created.Definition.Type)
	assert.Equal(t, models.ReportFormatPDF, created.Definition.Parameters.Format)
	assert.Equal(t, models.FrequencyMonthly, created.Frequency)

	paused, err := svc.Pause(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleStatusPaused, paused.Status)

	resumed, err := svc.Resume(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleStatusActive, resumed.Status)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, svc.Delete(ctx, created.ID))
	require.NoError(t, svc.Delete(ctx, created.ID))
	_, err = svc.Get(ctx, created.ID)
	assert.ErrorIs(t, err, appErrors.ErrScheduleNotFound)
}

func TestScheduleServiceValidation(t *testing.T) {
	svc := NewScheduleService(newTestRegistry(), nil, nil)
	ctx := context.Background()

	req := createRequest()
	req.Frequency = "hourly"
	_, err := svc.Create(ctx, req, "admin-1")
	assert.ErrorIs(t, err, appErrors.ErrInvalidFrequency)

	req = createRequest()
	req.ReportType = "grades"
	_, err = svc.Create(ctx, req, "admin-1")
	assert.ErrorIs(t, err, appErrors.ErrUnknownReportType)

	req = createRequest()
	req.Parameters.Format = "xlsx"
	_, err = svc.Create(ctx, req, "admin-1")
	assert.ErrorIs(t, err, appErrors.ErrInvalidParameters)

	req = createRequest()
	req.Parameters.DateRange.Preset = "last_decade"
	_, err = svc.Create(ctx, req, "admin-1")
	assert.ErrorIs(t, err, appErrors.ErrInvalidParameters)

	req = createRequest()
	req.Recipients = nil
	_, err = svc.Create(ctx, req, "admin-1")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestReportValidationRegistration(t *testing.T) {
	validate := validator.New()
	require.NoError(t, registerReportValidations(validate))
	assert.NotPanics(t, func() { NewScheduleService(newTestRegistry(), validate, nil) })

	always := func(validator.FieldLevel) bool { return true }
	err := registerValidations(validator.New(), []validationRule{{"frequency", always}, {"", always}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `register "" validation`)

	err = registerValidations(validator.New(), []validationRule{{"report_type", nil}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "report_type")
}
