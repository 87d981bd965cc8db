package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/dojo-admin-api/internal/dto"
	appErrors "github.com/noah-isme/dojo-admin-api/pkg/errors"
	"github.com/noah-isme/dojo-admin-api/pkg/response"
)

type reconciler interface {
	InstructorPaymentStatus(ctx context.Context, paymentID string) (*dto.InstructorPaymentStatus, error)
	AllocateInstructorPayment(ctx context.Context, paymentID string, req dto.AllocationRequest) (*dto.AllocationResult, error)
	DeleteInstructorAllocation(ctx context.Context, allocationID, actorID string) (*dto.AllocationResult, error)
	LinkFederationPayment(ctx context.Context, paymentID string, req dto.LinkFederationRequest) (*dto.FederationLinkResult, error)
	UnlinkFederationPayment(ctx context.Context, paymentID, actorID string) (*dto.FederationLinkResult, error)
}

// ReconciliationHandler matches payment records against bank transactions.
type ReconciliationHandler struct {
	service reconciler
}

// NewReconciliationHandler constructs a reconciliation handler.
func NewReconciliationHandler(svc reconciler) *ReconciliationHandler {
	return &ReconciliationHandler{service: svc}
}

// InstructorPaymentStatus godoc
// @Summary Instructor payment status
// @Description Share, paid amount, remaining balance and allocations of an instructor payment
// @Tags Reconciliation
// @Produce json
// @Param id path string true "Instructor payment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /instructor-payments/{id}/status [get]
func (h *ReconciliationHandler) InstructorPaymentStatus(c *gin.Context) {
	status, err := h.service.InstructorPaymentStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// AllocateInstructorPayment godoc
// @Summary Allocate a bank transaction to an instructor payment
// @Tags Reconciliation
// @Accept json
// @Produce json
// @Param id path string true "Instructor payment ID"
// @Param payload body dto.AllocationRequest true "Allocation payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /instructor-payments/{id}/allocations [post]
func (h *ReconciliationHandler) AllocateInstructorPayment(c *gin.Context) {
	var req dto.AllocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid allocation payload"))
		return
	}
	req.ActorID = actorID(c)

	result, err := h.service.AllocateInstructorPayment(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// DeleteInstructorAllocation godoc
// @Summary Remove an instructor payment allocation
// @Tags Reconciliation
// @Produce json
// @Param id path string true "Allocation ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /instructor-allocations/{id} [delete]
func (h *ReconciliationHandler) DeleteInstructorAllocation(c *gin.Context) {
	result, err := h.service.DeleteInstructorAllocation(c.Request.Context(), c.Param("id"), actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// LinkFederationPayment godoc
// @Summary Link a federation payment to a bank transaction
// @Tags Reconciliation
// @Accept json
// @Produce json
// @Param id path string true "Federation payment ID"
// @Param payload body dto.LinkFederationRequest true "Link payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /federation-payments/{id}/link [post]
func (h *ReconciliationHandler) LinkFederationPayment(c *gin.Context) {
	var req dto.LinkFederationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid link payload"))
		return
	}
	req.ActorID = actorID(c)

	result, err := h.service.LinkFederationPayment(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// UnlinkFederationPayment godoc
// @Summary Unlink a federation payment
// @Tags Reconciliation
// @Produce json
// @Param id path string true "Federation payment ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /federation-payments/{id}/link [delete]
func (h *ReconciliationHandler) UnlinkFederationPayment(c *gin.Context) {
	result, err := h.service.UnlinkFederationPayment(c.Request.Context(), c.Param("id"), actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
