package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/trial-subjects-api/internal/models"
	"github.com/noah-isme/trial-subjects-api/pkg/response"
)

type centerService interface {
	List(ctx context.Context, userID string) ([]models.Center, error)
	Get(ctx context.Context, centerID, userID string) (*models.Center, error)
}

// CenterHandler exposes the centers a caller belongs to.
type CenterHandler struct {
	service centerService
}

// NewCenterHandler constructs the handler.
func NewCenterHandler(svc centerService) *CenterHandler {
	return &CenterHandler{service: svc}
}

// List godoc
// @Summary List centers in scope
// @Tags Centers
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope{data=[]models.Center}
// @Router /centers [get]
func (h *CenterHandler) List(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	centers, err := h.service.List(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, centers)
}

// Get godoc
// @Summary Get center
// @Tags Centers
// @Produce json
// @Security BearerAuth
// @Param id path string true "Center ID"
// @Success 200 {object} response.Envelope{data=models.Center}
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /centers/{id} [get]
func (h *CenterHandler) Get(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	center, err := h.service.Get(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, center)
}
