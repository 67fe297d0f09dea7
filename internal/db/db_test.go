package db

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/skumar2006/x402-payments-router/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&models.SettlementRecord{}, &models.RefundRecord{}, &models.ScanCheckpoint{}))
	return conn
}

func TestCheckpointRoundTrip(t *testing.T) {
	conn := openTestDB(t)

	h, err := GetCheckpoint(conn)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), h)

	require.NoError(t, SetCheckpoint(conn, 42))
	h, err = GetCheckpoint(conn)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), h)

	// upsert, not append
	require.NoError(t, SetCheckpoint(conn, 99))
	h, err = GetCheckpoint(conn)
	require.NoError(t, err)
	assert.Equal(t, uint64(99), h)

	var count int64
	require.NoError(t, conn.Model(&models.ScanCheckpoint{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSettlementRoundTrip(t *testing.T) {
	conn := openTestDB(t)

	row := &models.SettlementRecord{
		OrderID:      "0xabc",
		Payer:        "alice",
		Confirmer:    "backend",
		Amount:       10,
		Evidence:     "receipt-1",
		InclusionRef: "op@4",
		BlockHeight:  4,
		Status:       "confirmed",
	}
	require.NoError(t, SaveSettlement(conn, row))

	got, err := GetSettlementByOrderID(conn, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, uint64(10), got.Amount)
	assert.Equal(t, "backend", got.Confirmer)
	assert.Equal(t, "receipt-1", got.Evidence)

	_, err = GetSettlementByOrderID(conn, "0xmissing")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRefundRoundTripAndStore(t *testing.T) {
	conn := openTestDB(t)
	store := NewStore(conn)

	require.NoError(t, store.RecordRefund(&models.RefundRecord{
		OrderID:      "0xdef",
		RefundTo:     "bob",
		Amount:       5,
		InclusionRef: "op@7",
		BlockHeight:  7,
		Attempts:     2,
		Status:       "refunded",
	}))

	got, err := GetRefundByOrderID(conn, "0xdef")
	require.NoError(t, err)
	assert.Equal(t, "bob", got.RefundTo)
	assert.Equal(t, 2, got.Attempts)

	require.NoError(t, store.SetCheckpoint(7))
	h, err := store.Checkpoint()
	require.NoError(t, err)
	assert.Equal(t, uint64(7), h)
}
