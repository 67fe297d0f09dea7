package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/skumar2006/x402-payments-router/internal/middleware"
	"github.com/skumar2006/x402-payments-router/internal/scanner"
	"github.com/skumar2006/x402-payments-router/internal/services"
)

// Handler bundles the dependencies the HTTP surface needs.
type Handler struct {
	Client      *services.Client
	Coordinator *services.Coordinator
	Scanner     *scanner.Scanner
	// ConfirmToken is the shared secret the purchase backend presents on
	// /confirm. Empty means loopback-only.
	ConfirmToken string
}

func RegisterRoutes(r *gin.Engine, h *Handler) {
	r.GET("/healthz", HealthzHandler)
	r.GET("/readyz", h.ReadyzHandler)
	r.GET("/payment/:orderId", h.GetPaymentHandler)
	r.POST("/payment", h.CreatePaymentHandler)
	r.POST("/confirm", middleware.TrustedCaller(h.ConfirmToken), h.ConfirmHandler)
}
