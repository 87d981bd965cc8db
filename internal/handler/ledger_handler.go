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

type ledgerAllocator interface {
	AllocateLedger(ctx context.Context, bankTransactionID string, req dto.LedgerAllocationRequest) (*dto.LedgerAllocationResult, error)
	DeleteLedgerAllocation(ctx context.Context, allocationID, actorID string) (*dto.LedgerAllocationResult, error)
	LedgerAllocations(ctx context.Context, bankTransactionID string) ([]models.LedgerAllocation, error)
}

// LedgerHandler assigns bank transactions to income and expenses outside tuition and payroll.
type LedgerHandler struct {
	service ledgerAllocator
}

// NewLedgerHandler constructs the handler.
func NewLedgerHandler(svc ledgerAllocator) *LedgerHandler {
	return &LedgerHandler{service: svc}
}

// Create godoc
// @Summary Allocate a bank transaction to income or an expense
// @Description Income settles against credit lines, expenses against debit lines
// @Tags Bank Transactions
// @Accept json
// @Produce json
// @Param id path string true "Bank transaction ID"
// @Param payload body dto.LedgerAllocationRequest true "Ledger allocation"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /bank-transactions/{id}/ledger-allocations [post]
func (h *LedgerHandler) Create(c *gin.Context) {
	var req dto.LedgerAllocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid ledger allocation payload"))
		return
	}
	req.ActorID = actorID(c)

	result, err := h.service.AllocateLedger(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// List godoc
// @Summary List the ledger allocations of a bank transaction
// @Tags Bank Transactions
// @Produce json
// @Param id path string true "Bank transaction ID"
// @Success 200 {object} response.Envelope
// @Router /bank-transactions/{id}/ledger-allocations [get]
func (h *LedgerHandler) List(c *gin.Context) {
	items, err := h.service.LedgerAllocations(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, map[string]interface{}{"count": len(items)})
}

// Delete godoc
// @Summary Remove a ledger allocation
// @Tags Bank Transactions
// @Produce json
// @Param id path string true "Ledger allocation ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /ledger-allocations/{id} [delete]
func (h *LedgerHandler) Delete(c *gin.Context) {
	result, err := h.service.DeleteLedgerAllocation(c.Request.Context(), c.Param("id"), actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
