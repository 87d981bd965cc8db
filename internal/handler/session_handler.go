package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/dojo-admin-api/internal/dto"
	"github.com/noah-isme/dojo-admin-api/internal/models"
	appErrors "github.com/noah-isme/dojo-admin-api/pkg/errors"
	"github.com/noah-isme/dojo-admin-api/pkg/response"
)

type sessionManager interface {
	Assign(ctx context.Context, req dto.AssignSessionRequest) (*dto.SessionAssignments, error)
	SetCancelled(ctx context.Context, id string, cancelled bool) (*models.ClassSession, error)
}

// SessionHandler records which instructors taught each class session.
type SessionHandler struct {
	service sessionManager
}

// NewSessionHandler constructs the handler.
func NewSessionHandler(svc sessionManager) *SessionHandler {
	return &SessionHandler{service: svc}
}

// Assign godoc
// @Summary Assign instructors to a class session
// @Description Creates the session when missing and replaces its assignments. The lead defaults to the category's default instructor.
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body dto.AssignSessionRequest true "Assignment"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /sessions/assignments [post]
func (h *SessionHandler) Assign(c *gin.Context) {
	var req dto.AssignSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid assignment payload"))
		return
	}

	result, err := h.service.Assign(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Cancel godoc
// @Summary Cancel a class session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/cancel [post]
func (h *SessionHandler) Cancel(c *gin.Context) {
	h.setCancelled(c, true)
}

// Reinstate godoc
// @Summary Reinstate a cancelled class session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/cancel [delete]
func (h *SessionHandler) Reinstate(c *gin.Context) {
	h.setCancelled(c, false)
}

func (h *SessionHandler) setCancelled(c *gin.Context, cancelled bool) {
	session, err := h.service.SetCancelled(c.Request.Context(), c.Param("id"), cancelled)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}
