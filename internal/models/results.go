package models

import (
	"encoding/json"
	"time"
)

// StepResult is the data record of one experiment step.
type StepResult struct {
	ID         int
	SessionID  string  `gorm:"type:uuid;index"`
	Session    Session `gorm:"foreignKey:SessionID"`
	Block      string
	TrialIndex int
	Attempt    int
	Step       string
	Status     string
	Data       json.RawMessage `gorm:"type:jsonb"`
	CreatedAt  time.Time
}

// ValidationAttempt keeps the aggregate of one validation run; the raw gaze
// samples are not stored.
type ValidationAttempt struct {
	ID         int
	SessionID  string `gorm:"type:uuid;index"`
	Block      string
	TrialIndex int
	Attempt    int
	Precision  float64
	Samples    int
	MeanOffset float64
	Passed     bool
	CreatedAt  time.Time
}
