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

type collectionManager interface {
	Create(ctx context.Context, req dto.CreateCollectedPaymentRequest) (*models.CollectedPayment, error)
	ListByMonth(ctx context.Context, month string) ([]models.CollectedPayment, error)
	Delete(ctx context.Context, id, actorID string) error
}

// CollectionHandler records tuition collected from students.
type CollectionHandler struct {
	service collectionManager
}

// NewCollectionHandler constructs the handler.
func NewCollectionHandler(svc collectionManager) *CollectionHandler {
	return &CollectionHandler{service: svc}
}

// Create godoc
// @Summary Record a collected tuition payment
// @Tags Collected Payments
// @Accept json
// @Produce json
// @Param payload body dto.CreateCollectedPaymentRequest true "Collected payment"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /collected-payments [post]
func (h *CollectionHandler) Create(c *gin.Context) {
	var req dto.CreateCollectedPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid collected payment payload"))
		return
	}

	payment, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, payment)
}

// List godoc
// @Summary List collected payments of a month
// @Tags Collected Payments
// @Produce json
// @Param month query string true "Month (YYYY-MM)"
// @Success 200 {object} response.Envelope
// @Router /collected-payments [get]
func (h *CollectionHandler) List(c *gin.Context) {
	items, err := h.service.ListByMonth(c.Request.Context(), c.Query("month"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, map[string]interface{}{"count": len(items)})
}

// Delete godoc
// @Summary Delete a collected payment
// @Tags Collected Payments
// @Param id path string true "Collected payment ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /collected-payments/{id} [delete]
func (h *CollectionHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), actorID(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
