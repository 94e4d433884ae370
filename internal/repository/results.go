package repository

import (
	"context"

	"eyetrack-go/internal/database"
	"eyetrack-go/internal/models"

	"gorm.io/gorm"
)

func SaveStepResult(ctx context.Context, r *models.StepResult) error {
	return database.DB.WithContext(ctx).Create(r).Error
}

func SaveValidationAttempt(ctx context.Context, a *models.ValidationAttempt) error {
	return database.DB.WithContext(ctx).Create(a).Error
}

// SaveStepTx saves a step record and, for validation steps, its attempt
// summary in a single transaction.
func SaveStepTx(ctx context.Context, r *models.StepResult, attempt *models.ValidationAttempt) error {
	return database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(r).Error; err != nil {
			return err
		}
		if attempt == nil {
			return nil
		}
		return tx.Create(attempt).Error
	})
}

// GetSessionResults returns every step record of a session in the order the
// steps ran.
func GetSessionResults(ctx context.Context, sessionID string) ([]models.StepResult, error) {
	var results []models.StepResult
	err := database.DB.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id").
		Find(&results).Error
	return results, err
}

func GetValidationAttempts(ctx context.Context, sessionID string) ([]models.ValidationAttempt, error) {
	var attempts []models.ValidationAttempt
	err := database.DB.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id").
		Find(&attempts).Error
	return attempts, err
}
