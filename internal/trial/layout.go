// Package trial presents one stimulus trial: pictures, an audio clip, and the
// participant's responses to them.
package trial

import (
	"errors"
	"fmt"

	"eyetrack-go/internal/display"
)

// ErrInvalidPictureCount is returned for trials without a 1-4 picture layout.
var ErrInvalidPictureCount = errors.New("trial must have between 1 and 4 pictures")

// SelectLayout returns the arrangement for n pictures on a 12-column grid.
func SelectLayout(n int) (display.Layout, error) {
	switch n {
	case 1:
		return display.Layout{
			Name: "single",
			Rows: 1,
			Slots: []display.Slot{
				{Field: "picture1", Row: 0, Columns: 12},
			},
		}, nil
	case 2:
		return display.Layout{
			Name: "side_by_side",
			Rows: 1,
			Slots: []display.Slot{
				{Field: "picture1", Row: 0, Offset: 1, Columns: 4},
				{Field: "picture2", Row: 0, Offset: 2, Columns: 4},
			},
		}, nil
	case 3:
		return display.Layout{
			Name:      "triangle",
			Rows:      2,
			Separator: 6,
			Bordered:  true,
			Slots: []display.Slot{
				{Field: "picture1", Row: 0, Columns: 4, HeightPct: 100},
				{Field: "picture2", Row: 0, Offset: 4, Columns: 4, HeightPct: 100},
				{Field: "picture3", Row: 1, Offset: 4, Columns: 4, HeightPct: 100},
			},
		}, nil
	case 4:
		return display.Layout{
			Name:      "corners",
			Rows:      2,
			Separator: 6,
			Bordered:  true,
			Slots: []display.Slot{
				{Field: "picture1", Row: 0, Columns: 4, HeightPct: 100},
				{Field: "picture2", Row: 0, Offset: 4, Columns: 4, HeightPct: 100},
				{Field: "picture3", Row: 1, Columns: 4, HeightPct: 100},
				{Field: "picture4", Row: 1, Offset: 4, Columns: 4, HeightPct: 100},
			},
		}, nil
	default:
		return display.Layout{}, fmt.Errorf("%w: got %d", ErrInvalidPictureCount, n)
	}
}

// EndPolicy holds the flags that decide when a trial is over.
type EndPolicy struct {
	TrialEndsAfterAudio bool
	ResponseEndsTrial   bool
}

// ShouldEnd reports whether the trial is over: the audio ended and the trial
// ends with it, or a response was given and responses end the trial, or both
// the audio ended and a response was given.
func (p EndPolicy) ShouldEnd(audioEnded bool, responses int) bool {
	switch {
	case p.TrialEndsAfterAudio && audioEnded:
		return true
	case p.ResponseEndsTrial && responses > 0:
		return true
	default:
		return audioEnded && responses > 0
	}
}
