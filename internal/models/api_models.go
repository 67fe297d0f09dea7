package models

// CreatePaymentRequest locks funds in escrow for a purchase. The order
// id is derived from PaymentRef server-side (keccak-256), the caller
// never picks it directly.
type CreatePaymentRequest struct {
	PaymentRef string `json:"paymentRef" binding:"required"`
	Payer      string `json:"payer" binding:"required"`
	Amount     uint64 `json:"amount" binding:"required"`
}

type CreatePaymentResponse struct {
	OrderID     string `json:"orderId"`
	BlockHeight uint64 `json:"blockHeight"`
}

// ConfirmRequest is sent by the purchase workflow after the purchase
// itself succeeded. Evidence is opaque proof of that success.
type ConfirmRequest struct {
	OrderID  string `json:"orderId" binding:"required"`
	Evidence string `json:"evidence" binding:"required"`
}

type ConfirmResponse struct {
	Settled        bool   `json:"settled"`
	AlreadySettled bool   `json:"alreadySettled"`
	InclusionRef   string `json:"inclusionRef,omitempty"`
	BlockHeight    uint64 `json:"blockHeight,omitempty"`
}
