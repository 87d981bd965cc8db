package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/dojo-admin-api/internal/dto"
	"github.com/noah-isme/dojo-admin-api/internal/models"
	appErrors "github.com/noah-isme/dojo-admin-api/pkg/errors"
	"github.com/noah-isme/dojo-admin-api/pkg/response"
)

type bankTransactionManager interface {
	Create(ctx context.Context, req dto.CreateBankTransactionRequest) (*dto.BankTransactionView, error)
	Get(ctx context.Context, id string) (*dto.BankTransactionView, error)
	List(ctx context.Context, month string, status models.BankTransactionStatus) ([]models.BankTransaction, error)
	SetIgnored(ctx context.Context, id string, ignored bool) (*dto.BankTransactionView, error)
}

// BankTransactionHandler manages imported bank statement lines.
type BankTransactionHandler struct {
	service bankTransactionManager
}

// NewBankTransactionHandler constructs the handler.
func NewBankTransactionHandler(svc bankTransactionManager) *BankTransactionHandler {
	return &BankTransactionHandler{service: svc}
}

// Create godoc
// @Summary Register a bank transaction
// @Tags Bank Transactions
// @Accept json
// @Produce json
// @Param payload body dto.CreateBankTransactionRequest true "Bank transaction"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /bank-transactions [post]
func (h *BankTransactionHandler) Create(c *gin.Context) {
	var req dto.CreateBankTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid bank transaction payload"))
		return
	}
	req.ActorID = actorID(c)

	view, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, view)
}

// Get godoc
// @Summary Get a bank transaction with its matched balance
// @Tags Bank Transactions
// @Produce json
// @Param id path string true "Bank transaction ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /bank-transactions/{id} [get]
func (h *BankTransactionHandler) Get(c *gin.Context) {
	view, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// List godoc
// @Summary List bank transactions of a month
// @Tags Bank Transactions
// @Produce json
// @Param month query string true "Month (YYYY-MM)"
// @Param status query string false "PENDING, MATCHED, PARTIALLY_MATCHED or IGNORED"
// @Success 200 {object} response.Envelope
// @Router /bank-transactions [get]
func (h *BankTransactionHandler) List(c *gin.Context) {
	status := models.BankTransactionStatus(strings.ToUpper(c.Query("status")))
	items, err := h.service.List(c.Request.Context(), c.Query("month"), status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, map[string]interface{}{"count": len(items)})
}

// Ignore godoc
// @Summary Mark a bank transaction as ignored
// @Tags Bank Transactions
// @Produce json
// @Param id path string true "Bank transaction ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /bank-transactions/{id}/ignore [post]
func (h *BankTransactionHandler) Ignore(c *gin.Context) {
	h.setIgnored(c, true)
}

// Restore godoc
// @Summary Clear the ignored flag of a bank transaction
// @Tags Bank Transactions
// @Produce json
// @Param id path string true "Bank transaction ID"
// @Success 200 {object} response.Envelope
// @Router /bank-transactions/{id}/ignore [delete]
func (h *BankTransactionHandler) Restore(c *gin.Context) {
	h.setIgnored(c, false)
}

func (h *BankTransactionHandler) setIgnored(c *gin.Context, ignored bool) {
	view, err := h.service.SetIgnored(c.Request.Context(), c.Param("id"), ignored)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}
