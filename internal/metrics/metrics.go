package metrics

import (
	"encoding/json"

	"eyetrack-go/internal/models"
)

type trialResponse struct {
	Response  string  `json:"response"`
	Time      float64 `json:"time"`
	IsCorrect *bool   `json:"is_correct"`
}

type stepData struct {
	CalibrationLost bool            `json:"calibration_lost"`
	Responses       []trialResponse `json:"responses"`
}

// Summarize calculates the overview metrics of one session from its stored
// step records and validation attempts.
func Summarize(s models.Session, steps []models.StepResult, attempts []models.ValidationAttempt) models.SessionSummary {
	var trials []stepData
	lost := 0
	for _, st := range steps {
		var d stepData
		if len(st.Data) > 0 {
			if err := json.Unmarshal(st.Data, &d); err != nil {
				continue
			}
		}
		if d.CalibrationLost {
			lost++
		}
		if st.Step == "trial" && st.Status == "completed" {
			trials = append(trials, d)
		}
	}

	return models.SessionSummary{
		SessionID:          s.ID,
		ParticipantID:      s.ParticipantID,
		Status:             s.Status,
		Accuracy:           calculateAccuracy(trials),
		MeanResponseTime:   calculateMeanResponseTime(trials),
		MeanPrecision:      calculateMeanPrecision(attempts),
		CalibrationLost:    models.MetricResult{Value: float64(lost), Calculated: true, SampleSize: len(steps)},
		ValidationAttempts: len(attempts),
	}
}

// calculateAccuracy is the share of first responses marked correct, over the
// trials that have a correct answer.
func calculateAccuracy(trials []stepData) models.MetricResult {
	scored, correct := 0, 0
	for _, t := range trials {
		if len(t.Responses) == 0 || t.Responses[0].IsCorrect == nil {
			continue
		}
		scored++
		if *t.Responses[0].IsCorrect {
			correct++
		}
	}
	if scored == 0 {
		return models.MetricResult{Calculated: false}
	}
	return models.MetricResult{
		Value:      float64(correct) / float64(scored),
		Calculated: true,
		SampleSize: scored,
	}
}

// calculateMeanResponseTime averages the first response time of each trial.
func calculateMeanResponseTime(trials []stepData) models.MetricResult {
	var sum float64
	n := 0
	for _, t := range trials {
		if len(t.Responses) == 0 {
			continue
		}
		sum += t.Responses[0].Time
		n++
	}
	if n == 0 {
		return models.MetricResult{Calculated: false}
	}
	return models.MetricResult{Value: sum / float64(n), Calculated: true, SampleSize: n}
}

func calculateMeanPrecision(attempts []models.ValidationAttempt) models.MetricResult {
	if len(attempts) == 0 {
		return models.MetricResult{Calculated: false}
	}
	var sum float64
	for _, a := range attempts {
		sum += a.Precision
	}
	return models.MetricResult{
		Value:      sum / float64(len(attempts)),
		Calculated: true,
		SampleSize: len(attempts),
	}
}
