package dto

import (
	"time"

	"github.com/noah-isme/portal-reports/internal/models"
)

// DateRangeRequest selects the reporting window.
type DateRangeRequest struct {
	Preset string     `json:"preset" validate:"omitempty,date_preset"`
	From   *time.Time `json:"from,omitempty"`
	To     *time.Time `json:"to,omitempty"`
}

// ReportParametersRequest carries the tunable report inputs.
type ReportParametersRequest struct {
	DateRange     DateRangeRequest `json:"dateRange"`
	Departments   []string         `json:"departments,omitempty" validate:"omitempty,dive,required,max=120"`
	IncludeCharts bool             `json:"includeCharts"`
	Format        string           `json:"format" validate:"required,report_format"`
}

// ReportDefinitionRequest is the (type, parameters) pair of a report.
type ReportDefinitionRequest struct {
	ReportType string                  `json:"reportType" validate:"required,report_type"`
	Parameters ReportParametersRequest `json:"parameters"`
}

// ToModel converts the request into a report definition.
func (r ReportDefinitionRequest) ToModel() models.ReportDefinition {
	return models.ReportDefinition{
		Type: models.ReportType(r.ReportType),
		Parameters: models.ReportParameters{
			DateRange: models.DateRange{
				Preset: models.DateRangePreset(r.Parameters.DateRange.Preset),
				From:   r.Parameters.DateRange.From,
				To:     r.Parameters.DateRange.To,
			},
			Departments:   r.Parameters.Departments,
			IncludeCharts: r.Parameters.IncludeCharts,
			Format:        models.ReportFormat(r.Parameters.Format),
		},
	}
}

// GenerateReportRequest captures POST /reports/generate. Recipients are optional.
type GenerateReportRequest struct {
	ReportDefinitionRequest
	Name       string   `json:"name,omitempty" validate:"omitempty,max=200"`
	Recipients []string `json:"recipients,omitempty" validate:"omitempty,max=200,dive,required,max=320"`
}

// ArtifactResponse describes a rendered artifact.
type ArtifactResponse struct {
	ID          string                 `json:"id"`
	Title       string                 `json:"title"`
	Format      models.ReportFormat    `json:"format"`
	ContentType string                 `json:"contentType"`
	Filename    string                 `json:"filename"`
	Size        int                    `json:"size"`
	Checksum    string                 `json:"checksum"`
	Headers     []string               `json:"headers"`
	RowCount    int                    `json:"rowCount"`
	Summary     []models.SummaryMetric `json:"summary"`
	GeneratedAt time.Time              `json:"generatedAt"`
	DownloadURL string                 `json:"downloadUrl"`
	ExpiresAt   time.Time              `json:"expiresAt"`
}

// GenerateReportResponse is returned by ad-hoc generation.
type GenerateReportResponse struct {
	Artifact ArtifactResponse        `json:"artifact"`
	Delivery *models.DeliveryAttempt `json:"delivery,omitempty"`
}
