package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/trial-subjects-api/internal/dto"
	"github.com/noah-isme/trial-subjects-api/internal/models"
	appErrors "github.com/noah-isme/trial-subjects-api/pkg/errors"
	"github.com/noah-isme/trial-subjects-api/pkg/response"
)

type subjectService interface {
	List(ctx context.Context, userID string) ([]models.Subject, error)
	Get(ctx context.Context, id, userID string) (*models.Subject, error)
	Create(ctx context.Context, req dto.CreateSubjectRequest, userID string) (*models.Subject, error)
	Update(ctx context.Context, id string, req dto.UpdateSubjectRequest, userID string) (*models.Subject, error)
	Delete(ctx context.Context, id, userID string) error
}

// SubjectHandler handles subject endpoints.
type SubjectHandler struct {
	service subjectService
}

// NewSubjectHandler constructs a subject handler.
func NewSubjectHandler(svc subjectService) *SubjectHandler {
	return &SubjectHandler{service: svc}
}

// List godoc
// @Summary List subjects in the caller's centers
// @Tags Subjects
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope{data=[]models.Subject}
// @Failure 401 {object} response.Envelope
// @Router /subjects [get]
func (h *SubjectHandler) List(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	subjects, err := h.service.List(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subjects, map[string]interface{}{"count": len(subjects)})
}

// Get godoc
// @Summary Get subject by id
// @Tags Subjects
// @Produce json
// @Security BearerAuth
// @Param id path string true "Subject ID"
// @Success 200 {object} response.Envelope{data=models.Subject}
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /subjects/{id} [get]
func (h *SubjectHandler) Get(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	subject, err := h.service.Get(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subject)
}

// Create godoc
// @Summary Create subject
// @Tags Subjects
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreateSubjectRequest true "Subject payload"
// @Success 201 {object} response.Envelope{data=models.Subject}
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /subjects [post]
func (h *SubjectHandler) Create(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	var req dto.CreateSubjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	subject, err := h.service.Create(c.Request.Context(), req, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, subject)
}

// Update godoc
// @Summary Partially update subject
// @Description Only the fields present in the payload are changed. An audit entry is written when a value actually changes.
// @Tags Subjects
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Subject ID"
// @Param payload body dto.UpdateSubjectRequest true "Subject fields"
// @Success 200 {object} response.Envelope{data=models.Subject}
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /subjects/{id} [patch]
func (h *SubjectHandler) Update(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	var req dto.UpdateSubjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	subject, err := h.service.Update(c.Request.Context(), c.Param("id"), req, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subject)
}

// Delete godoc
// @Summary Delete subject
// @Tags Subjects
// @Security BearerAuth
// @Param id path string true "Subject ID"
// @Success 204
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /subjects/{id} [delete]
func (h *SubjectHandler) Delete(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), userID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
