package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"

	"github.com/skumar2006/x402-payments-router/internal/db"
	"github.com/skumar2006/x402-payments-router/internal/ledger"
	"github.com/skumar2006/x402-payments-router/internal/models"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrNotAuthorized = errors.New("confirmation rejected: not the confirmer")
)

// Settlement is the coordinator's answer to the purchase workflow.
// AlreadySettled means somebody else (a prior confirm, or the expiration
// sweeper) finalized the record first; the purchase side-effect must not
// be re-attempted.
type Settlement struct {
	AlreadySettled bool
	Ref            string
	Height         uint64
}

// Coordinator releases escrowed funds to the merchant after the purchase
// workflow has verified that the purchase itself succeeded. It is called
// synchronously from the request flow and never retries on its own:
// transport failures are surfaced to the caller and the record stays
// Open for the scanner to sweep once expired.
type Coordinator struct {
	client    *Client
	confirmer ledger.Identity
	db        *gorm.DB
}

func NewCoordinator(client *Client, confirmer ledger.Identity, dbConn *gorm.DB) *Coordinator {
	return &Coordinator{client: client, confirmer: confirmer, db: dbConn}
}

// Settle attempts the Open -> Confirmed transition for orderID. evidence
// is the purchase workflow's proof that the purchase succeeded; it is
// opaque here and only recorded for the audit trail.
func (co *Coordinator) Settle(ctx context.Context, orderID, evidence string) (*Settlement, error) {
	res, err := co.client.SubmitConfirm(ctx, orderID, co.confirmer)
	if err != nil {
		// The purchase side-effect already happened but funds were not
		// released. The record stays Open and the scanner resolves it
		// after expiry; retry policy belongs to the caller.
		log.Printf("[WARN] confirm submission failed: order=%s err=%v", orderID, err)
		return nil, fmt.Errorf("confirm %s: %w", orderID, err)
	}

	switch res.Outcome {
	case OutcomeSettled:
		log.Printf("[INFO] payment confirmed: order=%s merchant=%s ref=%s height=%d",
			orderID, co.client.Merchant(), res.Ref, res.Height)
		co.audit(orderID, evidence, res)
		return &Settlement{Ref: res.Ref, Height: res.Height}, nil
	case OutcomeAlreadyCompleted:
		// The sweeper (or an earlier confirm) won the race. Resolved,
		// not an error.
		log.Printf("[INFO] payment already settled: order=%s", orderID)
		return &Settlement{AlreadySettled: true}, nil
	case OutcomeNotFound:
		return nil, fmt.Errorf("confirm %s: %w", orderID, ErrOrderNotFound)
	case OutcomeUnauthorized:
		return nil, fmt.Errorf("confirm %s: %w", orderID, ErrNotAuthorized)
	default:
		return nil, fmt.Errorf("confirm %s: unexpected outcome %s", orderID, res.Outcome)
	}
}

// audit persists the settlement row. Best effort: the ledger is the
// authority, a failed audit write must not fail the settlement.
func (co *Coordinator) audit(orderID, evidence string, res SubmitResult) {
	if co.db == nil {
		return
	}
	rec := co.client.Get(orderID)
	row := &models.SettlementRecord{
		OrderID:      orderID,
		Confirmer:    string(co.confirmer),
		Payer:        string(rec.Payer),
		Amount:       rec.Amount,
		Evidence:     evidence,
		InclusionRef: res.Ref,
		BlockHeight:  res.Height,
		Status:       "confirmed",
	}
	if err := db.SaveSettlement(co.db, row); err != nil {
		log.Printf("[ERROR] failed to save settlement record: order=%s err=%v", orderID, err)
	}
}
