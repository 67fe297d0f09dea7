package models

import "gorm.io/gorm"

// SettlementRecord is the audit row written when a confirmation wins the
// race and funds are released to the merchant. The ledger stays the
// authority; these rows exist for lookups and operator visibility.
type SettlementRecord struct {
	gorm.Model
	OrderID      string `gorm:"uniqueIndex;size:66"` // 0x + keccak-256 hex
	Payer        string `gorm:"size:64"`
	Confirmer    string `gorm:"size:64"`
	Amount       uint64
	Evidence     string `gorm:"size:255"` // opaque purchase-success proof
	InclusionRef string `gorm:"size:64"`
	BlockHeight  uint64
	Status       string `gorm:"size:20;default:'confirmed'"`
}

// RefundRecord is the audit row written when the expiration sweeper wins
// and funds go back to the payer.
type RefundRecord struct {
	gorm.Model
	OrderID      string `gorm:"uniqueIndex;size:66"`
	RefundTo     string `gorm:"size:64"` // payer identity
	Amount       uint64
	InclusionRef string `gorm:"size:64"`
	BlockHeight  uint64
	Attempts     int
	Status       string `gorm:"size:20;default:'refunded'"`
}

// ScanCheckpoint is the scanner's persisted high-water mark: every
// creation at or below Height has reached a terminal state. Single row.
type ScanCheckpoint struct {
	gorm.Model
	Height uint64
}
