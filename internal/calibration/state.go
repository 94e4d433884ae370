// Package calibration decides when the gaze tracker must be (re)calibrated,
// runs the calibration and validation steps, and keeps the per-session state
// they share.
package calibration

import (
	"sync"
	"time"
)

// State is the calibration state of one participant session. It is mutated by
// the session goroutine only; the lock lets status readers take snapshots.
type State struct {
	mu                     sync.Mutex
	calibrated             bool
	needsValidation        bool
	lastCalibration        time.Time
	trialsSinceCalibration int
	validationFailures     int
}

// Snapshot is a copy of State at one instant.
type Snapshot struct {
	Calibrated             bool      `json:"calibrated"`
	NeedsValidation        bool      `json:"needs_validation"`
	LastCalibration        time.Time `json:"last_calibration"`
	TrialsSinceCalibration int       `json:"trials_since_calibration"`
	ValidationFailures     int       `json:"validation_failures"`
}

func NewState() *State {
	return &State{}
}

func (s *State) IsCalibrated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calibrated
}

func (s *State) NeedsValidation() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.needsValidation
}

// MarkCalibrated records a successful calibration: a validation is due, the
// trial counter restarts at one and the calibration time is stamped.
func (s *State) MarkCalibrated(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calibrated = true
	s.needsValidation = true
	s.trialsSinceCalibration = 1
	s.lastCalibration = now
}

// ConsumeValidation clears the pending validation flag and reports whether a
// validation was due.
func (s *State) ConsumeValidation() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	due := s.needsValidation
	s.needsValidation = false
	return due
}

// Invalidate marks the tracker as not calibrated. Any pending validation is
// dropped since a new calibration must precede it.
func (s *State) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calibrated = false
	s.needsValidation = false
}

func (s *State) RecordValidationPass() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validationFailures = 0
}

// RecordValidationFailure invalidates the calibration and returns the number
// of consecutive failed validations.
func (s *State) RecordValidationFailure() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validationFailures++
	s.calibrated = false
	s.needsValidation = false
	return s.validationFailures
}

func (s *State) IncrementTrials() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trialsSinceCalibration++
}

func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Calibrated:             s.calibrated,
		NeedsValidation:        s.needsValidation,
		LastCalibration:        s.lastCalibration,
		TrialsSinceCalibration: s.trialsSinceCalibration,
		ValidationFailures:     s.validationFailures,
	}
}
