package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"eyetrack-go/internal/experiment"
	"eyetrack-go/internal/models"
	"eyetrack-go/internal/phase"
)

// Recorder stores the step records of one session.
type Recorder struct {
	SessionID string
	// Save defaults to SaveStepTx.
	Save func(ctx context.Context, r *models.StepResult, attempt *models.ValidationAttempt) error
}

func NewRecorder(sessionID string) *Recorder {
	return &Recorder{SessionID: sessionID, Save: SaveStepTx}
}

func (rec *Recorder) Record(ctx context.Context, r experiment.Record) error {
	step, attempt, err := NewStepResult(rec.SessionID, r)
	if err != nil {
		return err
	}
	return rec.Save(ctx, step, attempt)
}

// NewStepResult converts a step record into its stored form. Validation steps
// that produced a precision also yield an attempt summary.
func NewStepResult(sessionID string, r experiment.Record) (*models.StepResult, *models.ValidationAttempt, error) {
	data := r.Data
	if data == nil {
		data = map[string]any{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode %s record: %w", r.Step, err)
	}
	step := &models.StepResult{
		SessionID:  sessionID,
		Block:      r.Block,
		TrialIndex: r.TrialIndex,
		Attempt:    r.Attempt,
		Step:       string(r.Step),
		Status:     r.Status.String(),
		Data:       raw,
		CreatedAt:  r.At,
	}

	if r.Step != experiment.StepValidation {
		return step, nil, nil
	}
	precision, ok := data["calibration_precision"].(float64)
	if !ok {
		return step, nil, nil
	}
	samples, _ := data["validation_samples"].(int)
	offset, _ := data["mean_offset"].(float64)
	attempt := &models.ValidationAttempt{
		SessionID:  sessionID,
		Block:      r.Block,
		TrialIndex: r.TrialIndex,
		Attempt:    r.Attempt,
		Precision:  precision,
		Samples:    samples,
		MeanOffset: offset,
		Passed:     r.Status == phase.Completed,
		CreatedAt:  r.At,
	}
	return step, attempt, nil
}
