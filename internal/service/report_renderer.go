package service

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/portal-reports/internal/models"
	appErrors "github.com/noah-isme/portal-reports/pkg/errors"
	"github.com/noah-isme/portal-reports/pkg/export"
)

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type documentRenderer interface {
	RenderDocument(doc export.Document) ([]byte, error)
}

// ReportRenderer turns row-sets into downloadable artifacts.
type ReportRenderer struct {
	csv    csvRenderer
	pdf    documentRenderer
	logger *zap.Logger
}

// NewReportRenderer constructs a renderer. Nil renderers fall back to the pkg/export defaults.
func NewReportRenderer(csv csvRenderer, pdf documentRenderer, logger *zap.Logger) *ReportRenderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ReportRenderer{csv: csv, pdf: pdf, logger: logger}
}

// Render produces an artifact in format. Both formats read the same header and row data.
func (r *ReportRenderer) Render(rows *models.RowSet, format models.ReportFormat) (*models.ReportArtifact, error) {
	if err := checkRowSet(rows); err != nil {
		r.logger.Sugar().Errorw("report row-set violates its declared shape", "error", err)
		return nil, err
	}
	dataset := datasetOf(rows)

	var (
		payload []byte
		err     error
	)
	switch format {
	case models.ReportFormatCSV:
		payload, err = r.csv.Render(dataset)
	case models.ReportFormatPDF:
		payload, err = r.pdf.RenderDocument(documentOf(rows, dataset))
	default:
		return nil, appErrors.Clone(appErrors.ErrInvalidParameters, fmt.Sprintf("unsupported format %q", format))
	}
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrRender, err, fmt.Sprintf("render %s report", format))
	}

	sum := sha256.Sum256(payload)
	id := uuid.NewString()
	return &models.ReportArtifact{
		ID:          id,
		Format:      format,
		Content:     payload,
		ContentType: format.ContentType(),
		Filename:    artifactFilename(rows, format),
		Checksum:    hex.EncodeToString(sum[:]),
		Title:       rows.Title,
		Headers:     append([]string(nil), rows.Headers...),
		RowCount:    len(rows.Rows),
		Summary:     append([]models.SummaryMetric(nil), rows.Summary...),
		GeneratedAt: rows.GeneratedAt,
		Definition:  rows.Definition.Clone(),
	}, nil
}

// checkRowSet verifies the headers match the report type and every row carries every header.
func checkRowSet(rows *models.RowSet) error {
	if rows == nil {
		return appErrors.Clone(appErrors.ErrRender, "row-set missing")
	}
	expected, ok := HeadersFor(rows.Definition.Type)
	if !ok {
		return appErrors.Clone(appErrors.ErrRender, fmt.Sprintf("row-set declares unknown report type %q", rows.Definition.Type))
	}
	if strings.Join(expected, "\x00") != strings.Join(rows.Headers, "\x00") {
		return appErrors.Clone(appErrors.ErrRender, fmt.Sprintf("headers %v do not match %s report", rows.Headers, rows.Definition.Type))
	}
	for i, row := range rows.Rows {
		for _, header := range expected {
			if _, ok := row[header]; !ok {
				return appErrors.Clone(appErrors.ErrRender, fmt.Sprintf("row %d missing field %q", i, header))
			}
		}
	}
	return nil
}

func datasetOf(rows *models.RowSet) export.Dataset {
	data := export.Dataset{
		Headers: append([]string(nil), rows.Headers...),
		Rows:    make([]map[string]string, 0, len(rows.Rows)),
	}
	for _, row := range rows.Rows {
		data.Rows = append(data.Rows, map[string]string(row))
	}
	return data
}

func documentOf(rows *models.RowSet, data export.Dataset) export.Document {
	return export.Document{
		Title: rows.Title,
		Metadata: []export.MetaEntry{
			{Label: "Report type", Value: rows.Definition.Type.Label()},
			{Label: "Generated at", Value: rows.GeneratedAt.Format("2006-01-02 15:04 MST")},
			{Label: "Date range", Value: rows.RangeLabel},
			{Label: "Rows", Value: strconv.Itoa(len(rows.Rows))},
		},
		Dataset:      data,
		ChartSlot:    rows.Definition.Parameters.IncludeCharts,
		ChartCaption: fmt.Sprintf("Charts for %s are rendered separately", rows.Definition.Type.Label()),
	}
}

func artifactFilename(rows *models.RowSet, format models.ReportFormat) string {
	return fmt.Sprintf("%s_report_%s.%s", rows.Definition.Type, rows.GeneratedAt.UTC().Format("20060102_150405"), format)
}
