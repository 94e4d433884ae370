package models

import (
	"time"

	"github.com/lib/pq"
)

// Session statuses.
const (
	SessionRunning = "running"
	SessionExpired = "expired"
	SessionAborted = "aborted"
	// SessionError means the session goroutine stopped on an unexpected error.
	SessionError = "error"
)

// Session is one participant's run through the experiment. TrialOrder and
// PracticeOrder hold the row indices of the loaded trial lists in the order
// they were presented.
type Session struct {
	ID            string `gorm:"primaryKey;type:uuid"`
	ParticipantID string `gorm:"index"`
	Group         string
	TrialOrder    pq.Int64Array `gorm:"type:integer[]"`
	PracticeOrder pq.Int64Array `gorm:"type:integer[]"`
	Status        string        `gorm:"index"`
	EndMessage    string
	TrialsRun     int
	TrialsSkipped int
	CreatedAt     time.Time
	UpdatedAt     time.Time
	FinishedAt    *time.Time
}
