package models

import (
	"time"

	"github.com/google/uuid"
)

type FactorMethod string

const (
	FactorTOTP  FactorMethod = "totp"
	FactorEmail FactorMethod = "email"
	FactorSMS   FactorMethod = "sms"
)

// FactorBackupCode is never stored on a registration; it only labels
// which verifier accepted a login.
const FactorBackupCode FactorMethod = "backup_code"

func (m FactorMethod) Valid() bool {
	switch m {
	case FactorTOTP, FactorEmail, FactorSMS:
		return true
	default:
		return false
	}
}

// UsesChannel reports whether codes for this method are delivered out of band.
func (m FactorMethod) UsesChannel() bool {
	return m == FactorEmail || m == FactorSMS
}

// FactorRegistration is the per-user second factor. Enabled implies
// Confirmed; an unconfirmed row never gates login.
type FactorRegistration struct {
	BaseModel
	UserID      uuid.UUID    `json:"userID" gorm:"type:uuid;uniqueIndex;not null"`
	Method      FactorMethod `json:"method" gorm:"type:varchar(16);not null"`
	Secret      string       `json:"-" gorm:"type:text"`
	PhoneNumber string       `json:"phoneNumber,omitempty" gorm:"type:varchar(32)"`
	Enabled     bool         `json:"enabled" gorm:"not null;default:false"`
	Confirmed   bool         `json:"confirmed" gorm:"not null;default:false"`
	EnabledAt   *time.Time   `json:"enabledAt,omitempty"`
	LastUsedAt  *time.Time   `json:"lastUsedAt,omitempty"`
	User        User         `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

func (FactorRegistration) TableName() string {
	return "twofactor_registrations"
}
