package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"eyetrack-go/internal/experiment"
	"eyetrack-go/internal/models"
	"eyetrack-go/internal/phase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStepResultTrial(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	step, attempt, err := NewStepResult("s-1", experiment.Record{
		Block:      experiment.BlockMain,
		TrialIndex: 4,
		Attempt:    2,
		Step:       experiment.StepTrial,
		Status:     phase.Completed,
		Data:       map[string]any{"audio": "b.mp3", "start_time": 12.5},
		At:         at,
	})
	require.NoError(t, err)
	assert.Nil(t, attempt)

	assert.Equal(t, "s-1", step.SessionID)
	assert.Equal(t, "main", step.Block)
	assert.Equal(t, 4, step.TrialIndex)
	assert.Equal(t, 2, step.Attempt)
	assert.Equal(t, "trial", step.Step)
	assert.Equal(t, "completed", step.Status)
	assert.Equal(t, at, step.CreatedAt)

	var data map[string]any
	require.NoError(t, json.Unmarshal(step.Data, &data))
	assert.Equal(t, "b.mp3", data["audio"])
	assert.Equal(t, 12.5, data["start_time"])
}

func TestNewStepResultValidation(t *testing.T) {
	_, attempt, err := NewStepResult("s-1", experiment.Record{
		Step:   experiment.StepValidation,
		Status: phase.Failed,
		Data: map[string]any{
			"calibration_precision": 42.0,
			"validation_samples":    17,
			"mean_offset":           231.5,
			"validation_failures":   1,
		},
	})
	require.NoError(t, err)
	require.NotNil(t, attempt)
	assert.Equal(t, 42.0, attempt.Precision)
	assert.Equal(t, 17, attempt.Samples)
	assert.Equal(t, 231.5, attempt.MeanOffset)
	assert.False(t, attempt.Passed)

	step, attempt, err := NewStepResult("s-1", experiment.Record{Step: experiment.StepValidation, Status: phase.Skipped})
	require.NoError(t, err)
	assert.Nil(t, attempt)
	assert.JSONEq(t, `{}`, string(step.Data))
}

func TestRecorderSaves(t *testing.T) {
	var saved []*models.StepResult
	var attempts []*models.ValidationAttempt
	rec := NewRecorder("s-2")
	rec.Save = func(_ context.Context, r *models.StepResult, a *models.ValidationAttempt) error {
		saved = append(saved, r)
		if a != nil {
			attempts = append(attempts, a)
		}
		return nil
	}

	ctx := context.Background()
	require.NoError(t, rec.Record(ctx, experiment.Record{Step: experiment.StepHeadPositioning, Status: phase.Completed}))
	require.NoError(t, rec.Record(ctx, experiment.Record{
		Step:   experiment.StepValidation,
		Status: phase.Completed,
		Data:   map[string]any{"calibration_precision": 88.0},
	}))

	require.Len(t, saved, 2)
	require.Len(t, attempts, 1)
	assert.True(t, attempts[0].Passed)
	assert.Equal(t, "s-2", attempts[0].SessionID)
}

func TestRecorderRejectsUnencodableData(t *testing.T) {
	rec := NewRecorder("s-3")
	err := rec.Record(context.Background(), experiment.Record{
		Step: experiment.StepTrial,
		Data: map[string]any{"bad": make(chan int)},
	})
	assert.Error(t, err)
}
