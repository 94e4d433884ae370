package repository

import (
	"context"
	"time"

	"eyetrack-go/internal/database"
)

type PrecisionDataPoint struct {
	Attempt   int       `json:"attempt"`
	Block     string    `json:"block"`
	Precision float64   `json:"precision"`
	Passed    bool      `json:"passed"`
	CreatedAt time.Time `json:"createdAt"`
}

type TrialOutcomeDataPoint struct {
	Block  string `json:"block"`
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// GetPrecisionTimeline lists the validation precision of every attempt of a
// session in order.
func GetPrecisionTimeline(ctx context.Context, sessionID string) ([]PrecisionDataPoint, error) {
	var data []PrecisionDataPoint
	query := `
		SELECT
			ROW_NUMBER() OVER (ORDER BY id) AS attempt,
			block,
			precision,
			passed,
			created_at
		FROM validation_attempts
		WHERE session_id = ?
		ORDER BY id;
	`
	err := database.DB.WithContext(ctx).Raw(query, sessionID).Scan(&data).Error
	return data, err
}

// GetTrialOutcomes counts the trial steps of a session by block and status.
func GetTrialOutcomes(ctx context.Context, sessionID string) ([]TrialOutcomeDataPoint, error) {
	var data []TrialOutcomeDataPoint
	query := `
		SELECT block, status, COUNT(*) AS count
		FROM step_results
		WHERE session_id = ? AND step = 'trial'
		GROUP BY block, status
		ORDER BY block, status;
	`
	err := database.DB.WithContext(ctx).Raw(query, sessionID).Scan(&data).Error
	return data, err
}
