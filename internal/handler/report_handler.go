package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/portal-reports/internal/dto"
	"github.com/noah-isme/portal-reports/internal/middleware"
	"github.com/noah-isme/portal-reports/internal/service"
	appErrors "github.com/noah-isme/portal-reports/pkg/errors"
	"github.com/noah-isme/portal-reports/pkg/response"
)

type reportService interface {
	Generate(ctx context.Context, req dto.GenerateReportRequest, actorID string) (*dto.GenerateReportResponse, error)
	ResolveDownload(ctx context.Context, token string) (*service.ArtifactDownload, error)
}

// ReportHandler exposes ad-hoc generation and artifact downloads.
type ReportHandler struct {
	service reportService
}

// NewReportHandler constructs handler.
func NewReportHandler(service reportService) *ReportHandler {
	return &ReportHandler{service: service}
}

// Generate godoc
// @Summary Generate a report now
// @Tags Reports
// @Accept json
// @Produce json
// @Param payload body dto.GenerateReportRequest true "Report definition"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /reports/generate [post]
func (h *ReportHandler) Generate(c *gin.Context) {
	var req dto.GenerateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload"))
		return
	}
	result, err := h.service.Generate(c.Request.Context(), req, middleware.ActorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Download godoc
// @Summary Download a report artifact
// @Tags Reports
// @Produce octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /export/{token} [get]
func (h *ReportHandler) Download(c *gin.Context) {
	download, err := h.service.ResolveDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("X-Artifact-ID", download.ArtifactID)
	response.Attachment(c, download.Filename, download.ContentType, download.Content)
}
