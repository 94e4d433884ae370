package database

import (
	"fmt"

	"eyetrack-go/internal/config"
	logging "eyetrack-go/internal/logging"
	"eyetrack-go/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

func Init(log *zap.Logger) error {
	var err error
	dbConf := config.Conf.Database

	DB, err = gorm.Open(postgres.Open(dbConf.DSN()), &gorm.Config{
		Logger: logging.NewGormZapLogger(log, logging.ParseGormLevel(dbConf.LogLevel)),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Info("Database connection established successfully.")
	return runMigrations(log)
}

func runMigrations(log *zap.Logger) error {
	// GORM's AutoMigrate will create tables, columns, and foreign keys.
	// It will NOT create custom indexes, so we handle that separately.
	err := DB.AutoMigrate(
		&models.Session{},
		&models.StepResult{},
		&models.ValidationAttempt{},
	)
	if err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	log.Info("Database migrations completed successfully.")

	stepsIndex := `CREATE INDEX IF NOT EXISTS idx_step_results_order ON step_results (session_id, block, trial_index, attempt, id);`
	if err := DB.Exec(stepsIndex).Error; err != nil {
		return fmt.Errorf("failed to create custom index on step results: %w", err)
	}
	log.Info("Custom indexes ensured successfully.")
	return nil
}
