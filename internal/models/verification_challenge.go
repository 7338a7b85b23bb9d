package models

import (
	"time"

	"github.com/google/uuid"
)

// VerificationChallenge is a hashed email/SMS code awaiting entry.
type VerificationChallenge struct {
	BaseModel
	UserID    uuid.UUID    `json:"-" gorm:"type:uuid;not null;index"`
	CodeHash  string       `json:"-" gorm:"type:varchar(64);not null"`
	Method    FactorMethod `json:"method" gorm:"type:varchar(16);not null"`
	ExpiresAt time.Time    `json:"expiresAt" gorm:"not null;index"`
	Attempts  int          `json:"attempts" gorm:"not null;default:0"`
}

func (VerificationChallenge) TableName() string {
	return "twofactor_challenges"
}
