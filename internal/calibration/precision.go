package calibration

import (
	"math"

	"eyetrack-go/internal/tracker"
)

// Offset is one gaze sample's distance from the validation target in pixels.
type Offset struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

// ValidationRecord collects the samples of one validation attempt.
type ValidationRecord struct {
	TargetX, TargetY float64
	Samples          []tracker.Sample
	Offsets          []Offset
}

func NewValidationRecord(targetX, targetY float64) *ValidationRecord {
	return &ValidationRecord{TargetX: targetX, TargetY: targetY}
}

func (r *ValidationRecord) Add(s tracker.Sample) {
	r.Samples = append(r.Samples, s)
	r.Offsets = append(r.Offsets, Offset{DX: s.X - r.TargetX, DY: s.Y - r.TargetY})
}

// MeanOffset is the mean distance of the samples from the target, 0 when
// there are none.
func (r *ValidationRecord) MeanOffset() float64 {
	if len(r.Offsets) == 0 {
		return 0
	}
	var sum float64
	for _, o := range r.Offsets {
		sum += math.Hypot(o.DX, o.DY)
	}
	return sum / float64(len(r.Offsets))
}

// Precision scores the record against half the viewport height.
func (r *ValidationRecord) Precision(halfHeight float64) float64 {
	return Precision(r.Offsets, halfHeight)
}

// Precision is the rounded mean over all offsets of
// clamp(100 - 100*d/halfHeight, 0, 100), where d is the offset's length.
// Without offsets the precision is 0.
func Precision(offsets []Offset, halfHeight float64) float64 {
	if len(offsets) == 0 || halfHeight <= 0 {
		return 0
	}
	var sum float64
	for _, o := range offsets {
		d := math.Hypot(o.DX, o.DY)
		sum += math.Max(0, math.Min(100, 100-100*d/halfHeight))
	}
	return math.Round(sum / float64(len(offsets)))
}
