package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skumar2006/x402-payments-router/internal/models"
	"github.com/skumar2006/x402-payments-router/internal/services"
)

// ConfirmHandler is the purchase workflow's entry point: after the
// purchase itself succeeded it posts the order id plus its success
// evidence, and receives settled / already-settled / failed. A failure
// here does not undo the purchase; the record stays Open and the scanner
// sweeps it once expired.
func (h *Handler) ConfirmHandler(c *gin.Context) {
	var req models.ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	settlement, err := h.Coordinator.Settle(c.Request.Context(), req.OrderID, req.Evidence)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrOrderNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
		case errors.Is(err, services.ErrNotAuthorized):
			c.JSON(http.StatusForbidden, gin.H{"error": "confirmation rejected"})
		default:
			c.JSON(http.StatusBadGateway, gin.H{"error": "confirmation submission failed, escrow pending"})
		}
		return
	}

	if settlement.AlreadySettled {
		c.JSON(http.StatusOK, models.ConfirmResponse{AlreadySettled: true})
		return
	}
	c.JSON(http.StatusOK, models.ConfirmResponse{
		Settled:      true,
		InclusionRef: settlement.Ref,
		BlockHeight:  settlement.Height,
	})
}
