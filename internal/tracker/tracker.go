// Package tracker describes the gaze-estimation engine as seen by the experiment.
// The engine itself (face detection, gaze prediction) lives in the participant's
// browser; this package only fixes the surface the experiment drives.
package tracker

import (
	"context"
	"errors"
	"time"
)

// ErrTrackerUnavailable is returned by Start when the engine could not be started,
// typically because camera permission was denied.
var ErrTrackerUnavailable = errors.New("eye tracker failed to start")

// Mode tells the engine how a calibration point should be treated.
type Mode string

const (
	ModeClick Mode = "click"
	ModeView  Mode = "view"
)

// Sample is one gaze prediction in absolute screen pixels. T is milliseconds
// relative to the start of the current trial.
type Sample struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	T float64 `json:"t"`
}

// Tracker is the gaze tracker adapter consumed by every gaze-dependent component.
type Tracker interface {
	// Start initializes the engine and blocks until it is running or has failed.
	Start(ctx context.Context) error
	IsInitialized() bool
	Pause() error
	Resume() error

	// SetFaceLostListener replaces the face-lost callback. The callback may be
	// invoked from any goroutine.
	SetFaceLostListener(fn func())
	ClearFaceLostListener()

	// OnGazeUpdate registers a per-sample callback and returns its cancel func.
	OnGazeUpdate(fn func(Sample)) (cancel func())
	StartSampleInterval() error
	StopSampleInterval() error

	// CalibratePoint has the engine take (x, y) as the gaze position on every
	// animation frame, starting delay after the call and lasting duration.
	CalibratePoint(x, y float64, delay, duration time.Duration) error
	StartMouseCalibration() error
	StopMouseCalibration() error

	ShowVideo() error
	HideVideo() error
	HidePredictions() error
}
