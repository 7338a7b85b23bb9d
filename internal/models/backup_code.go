package models

import (
	"time"

	"github.com/google/uuid"
)

type BackupCode struct {
	BaseModel
	UserID   uuid.UUID  `json:"-" gorm:"type:uuid;not null;index"`
	CodeHash string     `json:"-" gorm:"type:varchar(64);not null"`
	Used     bool       `json:"used" gorm:"not null;default:false;index"`
	UsedAt   *time.Time `json:"usedAt,omitempty"`
}

func (BackupCode) TableName() string {
	return "twofactor_backup_codes"
}
