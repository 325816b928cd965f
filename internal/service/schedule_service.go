package service

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/portal-reports/internal/dto"
	"github.com/noah-isme/portal-reports/internal/models"
	appErrors "github.com/noah-isme/portal-reports/pkg/errors"
)

type scheduleManager interface {
	Create(ctx context.Context, cfg models.ScheduleConfig) (*models.Schedule, error)
	Get(ctx context.Context, id string) (*models.Schedule, error)
	List(ctx context.Context) ([]*models.Schedule, error)
	Pause(ctx context.Context, id string) (*models.Schedule, error)
	Resume(ctx context.Context, id string) (*models.Schedule, error)
	Delete(ctx context.Context, id string) error
}

type validationRule struct {
	tag string
	fn  validator.Func
}

var reportValidations = []validationRule{
	{"frequency", func(fl validator.FieldLevel) bool { return models.Frequency(fl.Field().String()).Valid() }},
	{"report_type", func(fl validator.FieldLevel) bool { return models.ReportType(fl.Field().String()).Valid() }},
	{"report_format", func(fl validator.FieldLevel) bool { return models.ReportFormat(fl.Field().String()).Valid() }},
	{"date_preset", func(fl validator.FieldLevel) bool { return models.DateRangePreset(fl.Field().String()).Valid() }},
}

// registerReportValidations adds the report enum rules to validate.
func registerReportValidations(validate *validator.Validate) error {
	return registerValidations(validate, reportValidations)
}

func registerValidations(validate *validator.Validate, rules []validationRule) error {
	for _, rule := range rules {
		if err := validate.RegisterValidation(rule.tag, rule.fn); err != nil {
			return fmt.Errorf("register %q validation: %w", rule.tag, err)
		}
	}
	return nil
}

// mustRegisterReportValidations panics if a rule cannot be registered.
func mustRegisterReportValidations(validate *validator.Validate) {
	if err := registerReportValidations(validate); err != nil {
		panic(err)
	}
}

// validationError maps validator failures on the enum fields onto the report error taxonomy.
func validationError(err error) error {
	if fieldErrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range fieldErrs {
			switch fe.Tag() {
			case "report_type":
				return appErrors.Wrap(err, appErrors.ErrUnknownReportType.Code, appErrors.ErrUnknownReportType.Status, "unknown report type")
			case "report_format", "date_preset":
				return appErrors.Wrap(err, appErrors.ErrInvalidParameters.Code, appErrors.ErrInvalidParameters.Status, "invalid report parameters")
			case "frequency":
				return appErrors.Wrap(err, appErrors.ErrInvalidFrequency.Code, appErrors.ErrInvalidFrequency.Status, "frequency must be daily, weekly, monthly or quarterly")
			}
		}
	}
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
}

// ScheduleService exposes the registry to HTTP callers.
type ScheduleService struct {
	registry  scheduleManager
	validator *validator.Validate
	logger    *zap.Logger
}

// NewScheduleService constructs the service.
func NewScheduleService(registry scheduleManager, validate *validator.Validate, logger *zap.Logger) *ScheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	mustRegisterReportValidations(validate)
	return &ScheduleService{registry: registry, validator: validate, logger: logger}
}

// Create validates the payload and registers a schedule owned by actorID.
func (s *ScheduleService) Create(ctx context.Context, req dto.CreateScheduleRequest, actorID string) (*dto.ScheduleResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	schedule, err := s.registry.Create(ctx, models.ScheduleConfig{
		Name:       req.Name,
		Definition: req.ReportDefinitionRequest.ToModel(),
		Frequency:  models.Frequency(req.Frequency),
		NextRunAt:  req.NextRunAt,
		Timezone:   req.Timezone,
		Recipients: req.Recipients,
		CreatedBy:  actorID,
	})
	if err != nil {
		return nil, err
	}
	resp := dto.NewScheduleResponse(schedule)
	return &resp, nil
}

// Get returns one schedule.
func (s *ScheduleService) Get(ctx context.Context, id string) (*dto.ScheduleResponse, error) {
	schedule, err := s.registry.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := dto.NewScheduleResponse(schedule)
	return &resp, nil
}

// List returns all schedules ordered by next run.
func (s *ScheduleService) List(ctx context.Context) ([]dto.ScheduleResponse, error) {
	schedules, err := s.registry.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]dto.ScheduleResponse, 0, len(schedules))
	for _, schedule := range schedules {
		out = append(out, dto.NewScheduleResponse(schedule))
	}
	return out, nil
}

// Pause stops future triggers of a schedule.
func (s *ScheduleService) Pause(ctx context.Context, id string) (*dto.ScheduleResponse, error) {
	schedule, err := s.registry.Pause(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := dto.NewScheduleResponse(schedule)
	return &resp, nil
}

// Resume reactivates a paused schedule.
func (s *ScheduleService) Resume(ctx context.Context, id string) (*dto.ScheduleResponse, error) {
	schedule, err := s.registry.Resume(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := dto.NewScheduleResponse(schedule)
	return &resp, nil
}

// Delete removes a schedule; absent ids succeed.
func (s *ScheduleService) Delete(ctx context.Context, id string) error {
	return s.registry.Delete(ctx, id)
}
