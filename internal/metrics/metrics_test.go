package metrics

import (
	"testing"

	"eyetrack-go/internal/models"
	"eyetrack-go/internal/phase"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSummarize(t *testing.T) {
	steps := []models.StepResult{
		{Step: "head_positioning", Status: "completed", Data: []byte(`{"load_time": 12}`)},
		{Step: "calibration", Status: "interrupted", Data: []byte(`{"calibration_lost": true}`)},
		{Step: "trial", Status: "completed", Data: []byte(`{"responses": [{"response": "picture1", "time": 1.5, "is_correct": true}]}`)},
		{Step: "trial", Status: "completed", Data: []byte(`{"responses": [{"response": "picture2", "time": 2.5, "is_correct": false}, {"response": "picture1", "time": 3.0, "is_correct": true}]}`)},
		{Step: "trial", Status: "completed", Data: []byte(`{"responses": [{"response": "f", "time": 0.5}]}`)},
		{Step: "trial", Status: "interrupted", Data: []byte(`{"calibration_lost": true, "trial_id": 3}`)},
		{Step: "trial", Status: "completed", Data: []byte(`not json`)},
	}
	attempts := []models.ValidationAttempt{{Precision: 40}, {Precision: 80}}

	s := Summarize(models.Session{ID: "s", ParticipantID: "p01", Status: "completed"}, steps, attempts)

	assert.Equal(t, "p01", s.ParticipantID)
	assert.True(t, s.Accuracy.Calculated)
	assert.Equal(t, 0.5, s.Accuracy.Value)
	assert.Equal(t, 2, s.Accuracy.SampleSize)
	assert.InDelta(t, 1.5, s.MeanResponseTime.Value, 1e-9)
	assert.Equal(t, 3, s.MeanResponseTime.SampleSize)
	assert.Equal(t, 60.0, s.MeanPrecision.Value)
	assert.Equal(t, 2.0, s.CalibrationLost.Value)
	assert.Equal(t, 2, s.ValidationAttempts)
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(models.Session{ID: "s"}, nil, nil)
	assert.False(t, s.Accuracy.Calculated)
	assert.False(t, s.MeanResponseTime.Calculated)
	assert.False(t, s.MeanPrecision.Calculated)
	assert.Equal(t, 0.0, s.CalibrationLost.Value)
}

func TestCollectors(t *testing.T) {
	c := NewCollectors()
	assert.Same(t, c, NewCollectors())

	before := testutil.ToFloat64(c.FaceLostTotal.WithLabelValues("trial"))
	c.RecordStep("trial", phase.Interrupted)
	c.RecordStep("trial", phase.Completed)
	assert.Equal(t, before+1, testutil.ToFloat64(c.FaceLostTotal.WithLabelValues("trial")))

	active := testutil.ToFloat64(c.SessionsActive)
	c.SessionStarted()
	c.SessionFinished("completed")
	assert.Equal(t, active, testutil.ToFloat64(c.SessionsActive))

	var nilCollectors *Collectors
	nilCollectors.RecordStep("trial", phase.Completed)
	nilCollectors.ObservePrecision(50)
	nilCollectors.CountCommand("render")
}
