package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditLog is an append-only record of security-relevant two-factor events.
// Rows are never updated, so it does not embed BaseModel.
type AuditLog struct {
	ID         uuid.UUID              `json:"id" gorm:"type:uuid;primaryKey"`
	UserID     uuid.UUID              `json:"userID" gorm:"type:uuid;not null;index"`
	Action     string                 `json:"action" gorm:"type:varchar(50);not null;index"`
	Method     string                 `json:"method,omitempty" gorm:"type:varchar(16)"`
	ResourceID *uuid.UUID             `json:"resourceID,omitempty" gorm:"type:uuid"`
	Details    map[string]interface{} `json:"details,omitempty" gorm:"type:text;serializer:json"`
	IPAddress  string                 `json:"ipAddress" gorm:"type:varchar(45)"`
	RequestID  string                 `json:"requestID,omitempty" gorm:"type:varchar(36)"`
	CreatedAt  time.Time              `json:"createdAt" gorm:"not null;index"`
}

func (a *AuditLog) BeforeCreate(_ *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	return nil
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

// AuditExportCursor remembers the newest row already shipped to object
// storage so each export run only uploads fresh entries.
type AuditExportCursor struct {
	ID            uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	LastExportAt  time.Time `json:"lastExportAt" gorm:"not null"`
	ExportedCount int64     `json:"exportedCount" gorm:"not null;default:0"`
}

func (a *AuditExportCursor) BeforeCreate(_ *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

func (AuditExportCursor) TableName() string {
	return "audit_export_cursors"
}
