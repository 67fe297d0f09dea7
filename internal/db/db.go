package db

import (
	"errors"

	"gorm.io/gorm"

	"github.com/skumar2006/x402-payments-router/internal/models"
)

var DB *gorm.DB // assigned in main

// SaveSettlement persists one settlement audit row.
func SaveSettlement(db *gorm.DB, row *models.SettlementRecord) error {
	return db.Save(row).Error
}

// SaveRefund persists one refund audit row.
func SaveRefund(db *gorm.DB, row *models.RefundRecord) error {
	return db.Save(row).Error
}

// GetSettlementByOrderID looks up the settlement row for an order.
func GetSettlementByOrderID(db *gorm.DB, orderID string) (*models.SettlementRecord, error) {
	var row models.SettlementRecord
	err := db.Where("order_id = ?", orderID).First(&row).Error
	return &row, err
}

// GetRefundByOrderID looks up the refund row for an order.
func GetRefundByOrderID(db *gorm.DB, orderID string) (*models.RefundRecord, error) {
	var row models.RefundRecord
	err := db.Where("order_id = ?", orderID).First(&row).Error
	return &row, err
}

// GetCheckpoint returns the scanner's persisted high-water mark, or 0 if
// none has been written yet.
func GetCheckpoint(db *gorm.DB) (uint64, error) {
	var cp models.ScanCheckpoint
	err := db.Order("id").First(&cp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return cp.Height, nil
}

// SetCheckpoint upserts the single checkpoint row.
func SetCheckpoint(db *gorm.DB, height uint64) error {
	var cp models.ScanCheckpoint
	err := db.Order("id").First(&cp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return db.Create(&models.ScanCheckpoint{Height: height}).Error
	}
	if err != nil {
		return err
	}
	return db.Model(&cp).Update("height", height).Error
}

// Store adapts the package helpers to the scanner's persistence
// interface.
type Store struct {
	DB *gorm.DB
}

func NewStore(dbConn *gorm.DB) *Store {
	return &Store{DB: dbConn}
}

func (s *Store) Checkpoint() (uint64, error) {
	return GetCheckpoint(s.DB)
}

func (s *Store) SetCheckpoint(height uint64) error {
	return SetCheckpoint(s.DB, height)
}

func (s *Store) RecordRefund(row *models.RefundRecord) error {
	return SaveRefund(s.DB, row)
}
