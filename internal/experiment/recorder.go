// Package experiment runs a participant session: the per-trial calibration
// loop and the timeline of practice and main trials around it.
package experiment

import (
	"context"
	"time"

	"eyetrack-go/internal/phase"
)

// Step names the stages of the per-trial loop.
type Step string

const (
	StepHeadPositioning        Step = "head_positioning"
	StepCalibration            Step = "calibration"
	StepValidationInstructions Step = "validation_instructions"
	StepValidation             Step = "validation"
	StepTrial                  Step = "trial"
)

// Block names group trials in the stored results.
const (
	BlockCalibration = "calibration"
	BlockPractice    = "practice"
	BlockMain        = "main"
)

// Record is the result of one step as handed to the Recorder.
type Record struct {
	Block      string
	TrialIndex int
	Attempt    int
	Step       Step
	Status     phase.Status
	Data       map[string]any
	At         time.Time
}

// Recorder persists step records. Errors are logged by the orchestrator and
// never stop the session.
type Recorder interface {
	Record(ctx context.Context, r Record) error
}

// RecorderFunc adapts a plain func to Recorder.
type RecorderFunc func(ctx context.Context, r Record) error

func (f RecorderFunc) Record(ctx context.Context, r Record) error { return f(ctx, r) }

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, Record) error { return nil }
