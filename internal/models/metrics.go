package models

type MetricResult struct {
	Value      float64 `json:"value"`
	Calculated bool    `json:"calculated"`
	SampleSize int     `json:"sampleSize,omitempty"`
}

// SessionSummary is the admin overview of one session.
type SessionSummary struct {
	SessionID          string       `json:"sessionId"`
	ParticipantID      string       `json:"participantId"`
	Status             string       `json:"status"`
	Accuracy           MetricResult `json:"accuracy"`
	MeanResponseTime   MetricResult `json:"meanResponseTime"`
	MeanPrecision      MetricResult `json:"meanPrecision"`
	CalibrationLost    MetricResult `json:"calibrationLost"`
	ValidationAttempts int          `json:"validationAttempts"`
}
