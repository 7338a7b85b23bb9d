package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/backoffice/server/internal/models"
	"github.com/backoffice/server/internal/storage"
	"github.com/backoffice/server/internal/twofactor"
	"github.com/backoffice/server/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const exportBatchSize = 10000

// AuditService persists two-factor events off the request path and ships
// them to object storage.
type AuditService struct {
	DB      *gorm.DB
	Storage storage.Uploader
	queue   chan models.AuditLog
	pending sync.WaitGroup
}

func NewAuditService(db *gorm.DB, uploader storage.Uploader) *AuditService {
	s := &AuditService{
		DB:      db,
		Storage: uploader,
		queue:   make(chan models.AuditLog, 1000),
	}
	go s.processQueue()
	return s
}

// Subscribe records every event published on bus.
func (s *AuditService) Subscribe(bus *twofactor.Bus) {
	bus.Subscribe(func(_ context.Context, event twofactor.Event) {
		s.Record(event)
	})
}

func (s *AuditService) Record(event twofactor.Event) {
	row := models.AuditLog{
		UserID:     event.UserID,
		Action:     string(event.Type),
		Method:     string(event.Method),
		ResourceID: event.ResourceID,
		Details:    event.Details,
		IPAddress:  event.IPAddress,
		RequestID:  event.RequestID,
		CreatedAt:  event.OccurredAt.UTC(),
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}

	s.pending.Add(1)
	select {
	case s.queue <- row:
	default:
		s.pending.Done()
		logger.Warn("audit_queue_full", map[string]interface{}{
			"action":  row.Action,
			"dropped": true,
		})
	}
}

// Flush waits until every queued row has been written.
func (s *AuditService) Flush() {
	s.pending.Wait()
}

func (s *AuditService) processQueue() {
	for row := range s.queue {
		if err := s.DB.Create(&row).Error; err != nil {
			logger.Error("audit_log_insert_failed", err, map[string]interface{}{
				"action": row.Action,
			})
		}
		s.pending.Done()
	}
}

// ListForUser returns the newest entries of one user.
func (s *AuditService) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.AuditLog, error) {
	var logs []models.AuditLog
	err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

// StartExporter periodically uploads new audit rows as NDJSON until ctx ends.
func (s *AuditService) StartExporter(ctx context.Context, interval time.Duration) {
	if s.Storage == nil {
		logger.Info("audit_exporter_disabled", map[string]interface{}{
			"reason": "no storage client configured",
		})
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Export(ctx); err != nil {
					logger.Error("audit_export_failed", err, nil)
				}
			}
		}
	}()

	logger.Info("audit_exporter_started", map[string]interface{}{
		"interval": interval.String(),
	})
}

// Export uploads the rows created since the last run and advances the
// cursor. It returns how many rows were shipped.
func (s *AuditService) Export(ctx context.Context) (int, error) {
	db := s.DB.WithContext(ctx)

	var cursor models.AuditExportCursor
	err := db.First(&cursor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cursor = models.AuditExportCursor{
			LastExportAt: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
		}
		if err := db.Create(&cursor).Error; err != nil {
			return 0, fmt.Errorf("create export cursor: %w", err)
		}
	} else if err != nil {
		return 0, fmt.Errorf("load export cursor: %w", err)
	}

	var logs []models.AuditLog
	if err := db.Where("created_at > ?", cursor.LastExportAt).
		Order("created_at ASC").
		Limit(exportBatchSize).
		Find(&logs).Error; err != nil {
		return 0, fmt.Errorf("query audit logs: %w", err)
	}
	if len(logs) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, log := range logs {
		if err := enc.Encode(log); err != nil {
			return 0, fmt.Errorf("encode audit log %s: %w", log.ID, err)
		}
	}

	now := time.Now().UTC()
	objectName := fmt.Sprintf("audit-logs/%s/%s.ndjson",
		now.Format("2006/01/02"),
		now.Format("15-04-05"),
	)
	if err := s.Storage.Upload(ctx, objectName, &buf, int64(buf.Len()), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("upload %s: %w", objectName, err)
	}

	if err := db.Model(&cursor).Updates(map[string]interface{}{
		"last_export_at": logs[len(logs)-1].CreatedAt,
		"exported_count": gorm.Expr("exported_count + ?", len(logs)),
	}).Error; err != nil {
		return 0, fmt.Errorf("advance export cursor: %w", err)
	}

	logger.Info("audit_export_success", map[string]interface{}{
		"object_name": objectName,
		"count":       len(logs),
	})
	return len(logs), nil
}
