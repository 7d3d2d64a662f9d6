package models

import (
	"time"

	"gorm.io/datatypes"
)

// Payment records a user-submitted payment proof and its review outcome.
type Payment struct {
	PaymentID uint64 `gorm:"column:payment_id;primaryKey;autoIncrement"` // Primary key.

	UserID int64 `gorm:"column:user_id;not null;index"` // Owning user.

	Amount       float64        `gorm:"column:amount;type:decimal(10,2);not null;default:0"` // Paid amount.
	PaymentDate  time.Time      `gorm:"column:payment_date;not null"`                        // Submission timestamp.
	PaymentProof string         `gorm:"column:payment_proof;type:text"`                      // Opaque proof reference.
	ProofMeta    datatypes.JSON `gorm:"column:proof_meta"`                                   // Proof content type, size and backend.

	Status        PaymentStatus `gorm:"column:status;type:varchar(16);not null;default:'pending'"` // Review state.
	AdminNote     string        `gorm:"column:admin_note;type:text"`                               // Operator note.
	ProcessedDate *time.Time    `gorm:"column:processed_date"`                                     // Set on leaving pending.
}

// TableName pins the table name.
func (Payment) TableName() string { return "payments" }

// ProofMeta describes a stored proof blob.
type ProofMeta struct {
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	Backend     string `json:"backend"`
}
