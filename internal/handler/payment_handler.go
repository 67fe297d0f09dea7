package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skumar2006/x402-payments-router/internal/ledger"
	"github.com/skumar2006/x402-payments-router/internal/models"
	"github.com/skumar2006/x402-payments-router/utils"
)

// GetPaymentHandler returns the committed record for an order. Absent
// records read back as zero-value on the ledger; surface those as 404.
func (h *Handler) GetPaymentHandler(c *gin.Context) {
	orderID := c.Param("orderId")

	rec := h.Client.Get(orderID)
	if rec.Amount == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order_id":   rec.OrderID,
		"payer":      rec.Payer,
		"amount":     rec.Amount,
		"status":     rec.Status.String(),
		"created_at": rec.CreatedAt,
		"expired":    h.Client.IsExpired(orderID),
	})
}

// CreatePaymentHandler locks funds in escrow. This is the
// purchase-initiation surface: the order id is derived from the payment
// reference so the same reference can never fund two records.
func (h *Handler) CreatePaymentHandler(c *gin.Context) {
	var req models.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	orderID := utils.OrderIDFromRef(req.PaymentRef)
	res, err := h.Client.SubmitCreate(c.Request.Context(), orderID, ledger.Identity(req.Payer), req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrDuplicateOrder):
			c.JSON(http.StatusConflict, gin.H{"error": "order already exists", "order_id": orderID})
		case errors.Is(err, ledger.ErrZeroAmount):
			c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be positive"})
		case errors.Is(err, ledger.ErrInsufficientFunds):
			c.JSON(http.StatusPaymentRequired, gin.H{"error": "insufficient funds"})
		default:
			c.JSON(http.StatusBadGateway, gin.H{"error": "submission failed"})
		}
		return
	}

	c.JSON(http.StatusOK, models.CreatePaymentResponse{
		OrderID:     orderID,
		BlockHeight: res.Height,
	})
}
