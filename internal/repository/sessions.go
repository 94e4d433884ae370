package repository

import (
	"context"
	"time"

	"eyetrack-go/internal/database"
	"eyetrack-go/internal/models"
)

func CreateSession(ctx context.Context, s *models.Session) error {
	return database.DB.WithContext(ctx).Create(s).Error
}

// FinishSession stores the final status of a session.
func FinishSession(ctx context.Context, id, status, message string, trialsRun, skipped int, at time.Time) error {
	return database.DB.WithContext(ctx).Model(&models.Session{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":         status,
		"end_message":    message,
		"trials_run":     trialsRun,
		"trials_skipped": skipped,
		"finished_at":    at,
	}).Error
}

func GetSession(ctx context.Context, id string) (*models.Session, error) {
	var s models.Session
	result := database.DB.WithContext(ctx).First(&s, "id = ?", id)
	return &s, result.Error
}

// ListSessions returns the most recent sessions first.
func ListSessions(ctx context.Context, limit int) ([]models.Session, error) {
	var sessions []models.Session
	err := database.DB.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&sessions).Error
	return sessions, err
}
