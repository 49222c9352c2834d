// Package history persists fired alerts for auditing.
package history

import (
	"log"
	"time"

	"gorm.io/gorm"

	"twse_alert_backend/models"
)

// RetentionDays is how long alert history rows are kept.
const RetentionDays = 30

// Service records fired alerts in the history table. Writes are
// best-effort and never block notification delivery.
type Service struct {
	db *gorm.DB
}

// NewService wires the service against an initialized database.
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Record inserts one history row.
func (s *Service) Record(entry models.AlertHistory) {
	if err := s.db.Create(&entry).Error; err != nil {
		log.Printf("Failed to record alert history for %s: %v", entry.Code, err)
	}
}

// Recent returns the newest history rows, optionally filtered by code.
func (s *Service) Recent(code string, limit int) ([]models.AlertHistory, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := s.db.Model(&models.AlertHistory{})
	if code != "" {
		query = query.Where("code = ?", code)
	}
	var entries []models.AlertHistory
	err := query.Order("created_at DESC").Limit(limit).Find(&entries).Error
	return entries, err
}

// Cleanup removes rows older than the retention window.
func (s *Service) Cleanup() {
	cutoff := time.Now().AddDate(0, 0, -RetentionDays)
	if err := s.db.Where("created_at < ?", cutoff).Delete(&models.AlertHistory{}).Error; err != nil {
		log.Printf("Error cleaning up old alert history: %v", err)
	}
}
