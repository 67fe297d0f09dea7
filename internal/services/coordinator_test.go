package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skumar2006/x402-payments-router/internal/ledger"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *Client, *fakeClock) {
	t.Helper()
	client, clk := newTestClient(t)
	return NewCoordinator(client, "backend", nil), client, clk
}

func TestSettleReleasesFunds(t *testing.T) {
	co, client, _ := newTestCoordinator(t)
	ctx := context.Background()

	_, err := client.SubmitCreate(ctx, "order-1", "alice", 10)
	require.NoError(t, err)

	s, err := co.Settle(ctx, "order-1", "purchase-receipt-123")
	require.NoError(t, err)
	assert.False(t, s.AlreadySettled)
	assert.NotEmpty(t, s.Ref)

	assert.Equal(t, ledger.StatusConfirmed, client.Get("order-1").Status)
}

// Losing the race to the sweeper is a resolved outcome, not an error,
// and must not look like a fresh settlement either.
func TestSettleAlreadySettled(t *testing.T) {
	co, client, clk := newTestCoordinator(t)
	ctx := context.Background()

	_, err := client.SubmitCreate(ctx, "order-1", "alice", 10)
	require.NoError(t, err)
	clk.Advance(testTimeout)
	res, err := client.SubmitRefund(ctx, "order-1")
	require.NoError(t, err)
	require.Equal(t, OutcomeSettled, res.Outcome)

	s, err := co.Settle(ctx, "order-1", "purchase-receipt-123")
	require.NoError(t, err)
	assert.True(t, s.AlreadySettled)
	assert.Empty(t, s.Ref)

	// the refund stands; the late confirm must not have flipped it
	assert.Equal(t, ledger.StatusRefunded, client.Get("order-1").Status)
}

func TestSettleUnknownOrder(t *testing.T) {
	co, _, _ := newTestCoordinator(t)
	_, err := co.Settle(context.Background(), "ghost", "receipt")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestSettleSurfacesTransportFailure(t *testing.T) {
	clk := newFakeClock()
	l := ledger.New(ledger.Config{Merchant: "m", Confirmer: "backend", Timeout: testTimeout, Now: clk.Now})
	l.Fund("alice", 100)
	_, err := l.SubmitCreate(context.Background(), "order-1", "alice", 10)
	require.NoError(t, err)
	client := NewClient(l, time.Second)
	co := NewCoordinator(client, "backend", nil)

	l.Close() // submissions now fail like a dead transport

	_, err = co.Settle(context.Background(), "order-1", "receipt")
	require.Error(t, err)
	// the record is still Open for the sweeper to pick up later
	assert.Equal(t, ledger.StatusOpen, client.Get("order-1").Status)
}
