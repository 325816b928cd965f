package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/portal-reports/internal/models"
	appErrors "github.com/noah-isme/portal-reports/pkg/errors"
)

type rowAggregator interface {
	Aggregate(ctx context.Context, def models.ReportDefinition) (*models.RowSet, error)
}

type artifactRenderer interface {
	Render(rows *models.RowSet, format models.ReportFormat) (*models.ReportArtifact, error)
}

type artifactSaver interface {
	Save(ctx context.Context, artifact *models.ReportArtifact) (*StoredArtifact, error)
}

type reportDeliverer interface {
	Deliver(ctx context.Context, artifact *models.ReportArtifact, msg models.Message, recipients []string, scheduleID string) *models.DeliveryAttempt
	SendFailureAlert(ctx context.Context, target AlertTarget, runErr error, willRetry bool) *models.DeliveryAttempt
}

type scheduleRecorder interface {
	ScheduleRetry(ctx context.Context, id string, at *time.Time) error
	RecordResult(ctx context.Context, id string, result models.RunResult) error
}

type runMetrics interface {
	RecordRun(reportType models.ReportType, outcome models.RunOutcome, duration time.Duration)
	RecordRetryScheduled()
}

// Trigger is one firing of a schedule, or an ad-hoc request when ScheduleID is empty.
type Trigger struct {
	ScheduleID   string
	Name         string
	Definition   models.ReportDefinition
	Recipients   []string
	ScheduledFor time.Time
	Retry        bool
}

// TriggerFor snapshots the fields of s needed to run it.
func TriggerFor(s *models.Schedule, retry bool) Trigger {
	scheduledFor := s.NextRunAt
	if retry && s.RetryAt != nil {
		scheduledFor = *s.RetryAt
	}
	return Trigger{
		ScheduleID:   s.ID,
		Name:         s.Name,
		Definition:   s.Definition.Clone(),
		Recipients:   append([]string(nil), s.Recipients...),
		ScheduledFor: scheduledFor,
		Retry:        retry,
	}
}

// RunReport is what a successful run produced.
type RunReport struct {
	Artifact *models.ReportArtifact
	Stored   *StoredArtifact
	Message  models.Message
	Delivery *models.DeliveryAttempt
}

// PipelineConfig tunes failure handling.
type PipelineConfig struct {
	RetryDelay time.Duration
}

// ReportPipeline runs aggregate, render, store and deliver for one trigger. Generation always
// finishes before any delivery starts.
type ReportPipeline struct {
	aggregator rowAggregator
	renderer   artifactRenderer
	artifacts  artifactSaver
	composer   *NotificationComposer
	delivery   reportDeliverer
	schedules  scheduleRecorder
	metrics    runMetrics
	cfg        PipelineConfig
	now        func() time.Time
	logger     *zap.Logger
}

// NewReportPipeline wires the pipeline stages.
func NewReportPipeline(aggregator rowAggregator, renderer artifactRenderer, artifacts artifactSaver, composer *NotificationComposer, delivery reportDeliverer, schedules scheduleRecorder, metrics runMetrics, cfg PipelineConfig, logger *zap.Logger) *ReportPipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Hour
	}
	if composer == nil {
		composer = NewNotificationComposer(time.UTC)
	}
	return &ReportPipeline{
		aggregator: aggregator,
		renderer:   renderer,
		artifacts:  artifacts,
		composer:   composer,
		delivery:   delivery,
		schedules:  schedules,
		metrics:    metrics,
		cfg:        cfg,
		now:        time.Now,
		logger:     logger,
	}
}

// Run executes one trigger. Generation errors send a failure alert and are returned; a failed
// scheduled run that was not itself a retry gets the single retry. Partial delivery is not an error.
func (p *ReportPipeline) Run(ctx context.Context, t Trigger) (*RunReport, error) {
	started := p.now()
	log := p.logger.Sugar().With("schedule_id", t.ScheduleID, "report_type", t.Definition.Type, "retry", t.Retry)

	rows, err := p.aggregator.Aggregate(ctx, t.Definition)
	if err != nil {
		return nil, p.fail(ctx, t, err, started)
	}
	artifact, err := p.renderer.Render(rows, t.Definition.Parameters.Format)
	if err != nil {
		return nil, p.fail(ctx, t, err, started)
	}
	stored, err := p.artifacts.Save(ctx, artifact)
	if err != nil {
		return nil, p.fail(ctx, t, err, started)
	}

	name := t.Name
	if name == "" {
		name = rows.Title
	}
	msg := p.composer.DeliveryReady(ReadyData{
		ReportName:  name,
		Type:        t.Definition.Type,
		Format:      artifact.Format,
		GeneratedAt: artifact.GeneratedAt,
		RangeLabel:  rows.RangeLabel,
		DownloadURL: stored.URL,
		ExpiresAt:   stored.ExpiresAt,
		Summary:     artifact.Summary,
	})
	attempt := p.delivery.Deliver(ctx, artifact, msg, t.Recipients, t.ScheduleID)

	result := models.RunResult{
		At:          p.now(),
		Outcome:     models.RunOutcomeSucceeded,
		ArtifactID:  artifact.ID,
		DownloadURL: stored.URL,
		Delivered:   attempt.DeliveredCount,
		Failed:      attempt.FailedCount,
	}
	if err := DeliveryError(attempt); err != nil {
		result.Outcome = models.RunOutcomePartial
		result.Error = err.Error()
	}
	outcome := result.Outcome
	p.record(ctx, t, result)
	if p.metrics != nil {
		p.metrics.RecordRun(t.Definition.Type, outcome, p.now().Sub(started))
	}
	log.Infow("report run finished", "artifact_id", artifact.ID, "rows", artifact.RowCount, "outcome", outcome,
		"delivered", attempt.DeliveredCount, "failed", attempt.FailedCount)
	return &RunReport{Artifact: artifact, Stored: stored, Message: msg, Delivery: attempt}, nil
}

func (p *ReportPipeline) fail(ctx context.Context, t Trigger, runErr error, started time.Time) error {
	now := p.now()
	willRetry := t.ScheduleID != "" && !t.Retry && Retryable(runErr)
	if willRetry {
		at := now.Add(p.cfg.RetryDelay)
		if err := p.schedules.ScheduleRetry(ctx, t.ScheduleID, &at); err != nil {
			willRetry = false
			if !errors.Is(err, appErrors.ErrScheduleNotFound) {
				p.logger.Sugar().Errorw("failed to schedule retry", "schedule_id", t.ScheduleID, "error", err)
			}
		} else if p.metrics != nil {
			p.metrics.RecordRetryScheduled()
		}
	}

	p.delivery.SendFailureAlert(ctx, AlertTarget{
		ScheduleID: t.ScheduleID,
		Name:       t.Name,
		Type:       t.Definition.Type,
		Recipients: t.Recipients,
		Retry:      t.Retry,
		RetryIn:    p.cfg.RetryDelay,
	}, runErr, willRetry)

	p.record(ctx, t, models.RunResult{
		At:      now,
		Outcome: models.RunOutcomeFailed,
		Retry:   willRetry,
		Error:   runErr.Error(),
	})
	if p.metrics != nil {
		p.metrics.RecordRun(t.Definition.Type, models.RunOutcomeFailed, now.Sub(started))
	}
	return runErr
}

func (p *ReportPipeline) record(ctx context.Context, t Trigger, result models.RunResult) {
	if t.ScheduleID == "" {
		return
	}
	if err := p.schedules.RecordResult(ctx, t.ScheduleID, result); err != nil {
		if errors.Is(err, appErrors.ErrScheduleNotFound) {
			p.logger.Sugar().Debugw("schedule deleted during run", "schedule_id", t.ScheduleID)
			return
		}
		p.logger.Sugar().Errorw("failed to record run result", "schedule_id", t.ScheduleID, "error", err)
	}
}

// Retryable reports whether a generation error may succeed on a later attempt. Errors in the
// report definition itself are not retried.
func Retryable(err error) bool {
	return !errors.Is(err, appErrors.ErrUnknownReportType) && !errors.Is(err, appErrors.ErrInvalidParameters)
}
