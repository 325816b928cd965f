package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/portal-reports/internal/dto"
)

type adHocRunner interface {
	Run(ctx context.Context, t Trigger) (*RunReport, error)
}

type downloadResolver interface {
	Resolve(ctx context.Context, token string) (*ArtifactDownload, error)
}

// ReportService serves ad-hoc generation and artifact downloads.
type ReportService struct {
	runner    adHocRunner
	downloads downloadResolver
	validator *validator.Validate
	logger    *zap.Logger
}

// NewReportService constructs the report service.
func NewReportService(runner adHocRunner, downloads downloadResolver, validate *validator.Validate, logger *zap.Logger) *ReportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	mustRegisterReportValidations(validate)
	return &ReportService{runner: runner, downloads: downloads, validator: validate, logger: logger}
}

// Generate runs the pipeline once without a schedule and optionally delivers the result.
func (s *ReportService) Generate(ctx context.Context, req dto.GenerateReportRequest, actorID string) (*dto.GenerateReportResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	report, err := s.runner.Run(ctx, Trigger{
		Name:       req.Name,
		Definition: req.ReportDefinitionRequest.ToModel(),
		Recipients: req.Recipients,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Sugar().Infow("ad-hoc report generated", "artifact_id", report.Artifact.ID, "actor_id", actorID)

	artifact := report.Artifact
	resp := &dto.GenerateReportResponse{
		Artifact: dto.ArtifactResponse{
			ID:          artifact.ID,
			Title:       artifact.Title,
			Format:      artifact.Format,
			ContentType: artifact.ContentType,
			Filename:    artifact.Filename,
			Size:        artifact.Size(),
			Checksum:    artifact.Checksum,
			Headers:     artifact.Headers,
			RowCount:    artifact.RowCount,
			Summary:     artifact.Summary,
			GeneratedAt: artifact.GeneratedAt,
			DownloadURL: report.Stored.URL,
			ExpiresAt:   report.Stored.ExpiresAt,
		},
	}
	if len(report.Delivery.Recipients) > 0 {
		resp.Delivery = report.Delivery
	}
	return resp, nil
}

// ResolveDownload validates the token and loads the artifact.
func (s *ReportService) ResolveDownload(ctx context.Context, token string) (*ArtifactDownload, error) {
	return s.downloads.Resolve(ctx, token)
}
