package models

import (
	"time"

	"github.com/google/uuid"
)

type TrustedDevice struct {
	BaseModel
	UserID       uuid.UUID  `json:"-" gorm:"type:uuid;not null;index"`
	TokenHash    string     `json:"-" gorm:"type:varchar(64);not null;uniqueIndex"`
	Name         string     `json:"name" gorm:"type:varchar(255)"`
	Browser      string     `json:"browser" gorm:"type:varchar(100)"`
	OS           string     `json:"os" gorm:"type:varchar(100)"`
	IPAddress    string     `json:"ipAddress" gorm:"type:varchar(45)"`
	TrustedUntil time.Time  `json:"trustedUntil" gorm:"not null;index"`
	LastUsedAt   *time.Time `json:"lastUsedAt,omitempty"`
}

func (TrustedDevice) TableName() string {
	return "twofactor_trusted_devices"
}
