package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/skumar2006/x402-payments-router/internal/ledger"
)

// Outcome classifies the result of a submitted mutation. Ledger-level
// outcomes are deterministic: retrying them cannot change the answer, so
// callers must treat them as terminal.
type Outcome int

const (
	// OutcomeSettled: the mutation was included and this caller won.
	OutcomeSettled Outcome = iota + 1
	// OutcomeAlreadyCompleted: some other caller finalized the record
	// first. A success from the system's point of view.
	OutcomeAlreadyCompleted
	// OutcomeNotFound: no record exists under this order id.
	OutcomeNotFound
	// OutcomeNotExpired: refund attempted before the deadline.
	OutcomeNotExpired
	// OutcomeUnauthorized: confirm attempted by a non-confirmer identity.
	OutcomeUnauthorized
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSettled:
		return "settled"
	case OutcomeAlreadyCompleted:
		return "already-completed"
	case OutcomeNotFound:
		return "not-found"
	case OutcomeNotExpired:
		return "not-expired"
	case OutcomeUnauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

// SubmitResult is the confirmed result of a mutating submission. Ref is
// the inclusion reference (operation id @ commit height) for settled
// operations.
type SubmitResult struct {
	Outcome Outcome
	Ref     string
	Height  uint64
}

// Creation is one PaymentCreated event discovered by a scan.
type Creation struct {
	OrderID string
	Payer   ledger.Identity
	Amount  uint64
	Height  uint64
}

// Client wraps the ledger's operation surface with submission plus
// confirmation semantics: a mutation only returns once it is included in
// the committed history, and every wait carries a per-operation timeout
// so one slow submission cannot stall a caller indefinitely.
type Client struct {
	ledger    *ledger.Ledger
	opTimeout time.Duration
}

func NewClient(l *ledger.Ledger, opTimeout time.Duration) *Client {
	if opTimeout <= 0 {
		opTimeout = 30 * time.Second
	}
	return &Client{ledger: l, opTimeout: opTimeout}
}

// SubmitCreate escrows amount from payer under orderID.
func (c *Client) SubmitCreate(ctx context.Context, orderID string, payer ledger.Identity, amount uint64) (SubmitResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	height, err := c.ledger.SubmitCreate(ctx, orderID, payer, amount)
	return c.classify(height, err)
}

// SubmitConfirm submits a confirmation on behalf of caller and waits for
// inclusion.
func (c *Client) SubmitConfirm(ctx context.Context, orderID string, caller ledger.Identity) (SubmitResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	height, err := c.ledger.SubmitConfirm(ctx, orderID, caller)
	return c.classify(height, err)
}

// SubmitRefund submits a refund and waits for inclusion.
func (c *Client) SubmitRefund(ctx context.Context, orderID string) (SubmitResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	height, err := c.ledger.SubmitRefund(ctx, orderID)
	return c.classify(height, err)
}

// classify maps deterministic ledger errors to terminal outcomes.
// Anything else (timeout, closed ledger) stays an error and is the
// caller's retry decision.
func (c *Client) classify(height uint64, err error) (SubmitResult, error) {
	switch {
	case err == nil:
		ref := fmt.Sprintf("%s@%d", uuid.NewString(), height)
		return SubmitResult{Outcome: OutcomeSettled, Ref: ref, Height: height}, nil
	case errors.Is(err, ledger.ErrAlreadyCompleted):
		return SubmitResult{Outcome: OutcomeAlreadyCompleted}, nil
	case errors.Is(err, ledger.ErrNotFound):
		return SubmitResult{Outcome: OutcomeNotFound}, nil
	case errors.Is(err, ledger.ErrNotExpired):
		return SubmitResult{Outcome: OutcomeNotExpired}, nil
	case errors.Is(err, ledger.ErrUnauthorized):
		return SubmitResult{Outcome: OutcomeUnauthorized}, nil
	default:
		return SubmitResult{}, err
	}
}

// Get returns the committed record for orderID (zero-value when absent).
func (c *Client) Get(orderID string) ledger.PaymentRecord {
	return c.ledger.Get(orderID)
}

// IsExpired reports whether orderID is Open and past its deadline.
func (c *Client) IsExpired(orderID string) bool {
	return c.ledger.IsExpired(orderID)
}

// Head returns the latest committed height.
func (c *Client) Head() uint64 {
	return c.ledger.Head()
}

// Timeout returns the ledger's provisioning-time expiration duration.
func (c *Client) Timeout() time.Duration {
	return c.ledger.Timeout()
}

// Merchant returns the ledger's fixed merchant identity.
func (c *Client) Merchant() ledger.Identity {
	return c.ledger.Merchant()
}

// CreationsSince returns every PaymentCreated event at or above the
// given height, oldest first.
func (c *Client) CreationsSince(from uint64) []Creation {
	events := c.ledger.EventsSince(from)
	var out []Creation
	for _, ev := range events {
		if ev.Kind != ledger.EventCreated {
			continue
		}
		out = append(out, Creation{
			OrderID: ev.OrderID,
			Payer:   ev.Payer,
			Amount:  ev.Amount,
			Height:  ev.Height,
		})
	}
	return out
}

// RecentCreations is a bounded backward scan over the last window
// heights. Creations older than the window are intentionally not
// returned; callers that must not miss old records should track their
// own scan floor and use CreationsSince.
func (c *Client) RecentCreations(window uint64) []Creation {
	head := c.ledger.Head()
	var from uint64 = 1
	if head > window {
		from = head - window + 1
	}
	return c.CreationsSince(from)
}
