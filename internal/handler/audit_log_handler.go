package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/trial-subjects-api/internal/dto"
	"github.com/noah-isme/trial-subjects-api/internal/models"
	"github.com/noah-isme/trial-subjects-api/pkg/response"
)

type auditLogService interface {
	FindAuditLogs(ctx context.Context, key dto.AuditLookupKey, userID string) ([]models.AuditLog, error)
	ExportAuditLogs(ctx context.Context, key dto.AuditLookupKey, userID string, format dto.AuditExportFormat) (*dto.AuditExport, error)
}

// AuditLogHandler exposes subject audit history.
type AuditLogHandler struct {
	service auditLogService
}

// NewAuditLogHandler constructs the handler.
func NewAuditLogHandler(svc auditLogService) *AuditLogHandler {
	return &AuditLogHandler{service: svc}
}

// List godoc
// @Summary Subject audit history
// @Description Accepts a subject UUID or a subject number. Deleted subjects are still resolved by number.
// @Tags Audit
// @Produce json
// @Security BearerAuth
// @Param key path string true "Subject ID or number"
// @Success 200 {object} response.Envelope{data=[]models.AuditLog}
// @Failure 403 {object} response.Envelope
// @Router /audit-logs/{key} [get]
func (h *AuditLogHandler) List(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	key := dto.ParseAuditLookupKey(c.Param("key"))
	entries, err := h.service.FindAuditLogs(c.Request.Context(), key, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, map[string]interface{}{"count": len(entries)})
}

// Export godoc
// @Summary Export subject audit history
// @Tags Audit
// @Produce text/csv
// @Produce application/pdf
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security BearerAuth
// @Param key path string true "Subject ID or number"
// @Param format query string false "csv, pdf or xlsx" default(csv)
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /audit-logs/{key}/export [get]
func (h *AuditLogHandler) Export(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	key := dto.ParseAuditLookupKey(c.Param("key"))
	format := dto.AuditExportFormat(c.DefaultQuery("format", string(dto.AuditExportCSV)))
	file, err := h.service.ExportAuditLogs(c.Request.Context(), key, userID, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}
