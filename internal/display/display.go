// Package display describes what the participant sees and how their input comes
// back. Screens are plain descriptors; rendering them is the browser's job.
package display

import (
	"context"
	"errors"
)

// ErrClosed is returned when the input stream ends before the awaited input.
var ErrClosed = errors.New("display input stream closed")

type Kind string

const (
	KindMessage          Kind = "message"
	KindHeadPositioning  Kind = "head_positioning"
	KindCalibrationPoint Kind = "calibration_point"
	KindValidationPoint  Kind = "validation_point"
	KindStimulus         Kind = "stimulus"
	KindFixation         Kind = "fixation"
	KindModal            Kind = "modal"
	KindBlank            Kind = "blank"
	KindFinished         Kind = "finished"
)

// Click targets reported back by the renderer.
const (
	TargetContinue         = "continue"
	TargetCalibrationPoint = "calibration-point"
	TargetFixation         = "fixation-point"
)

// Point is a screen position in percent of the viewport.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Viewport is the participant's window size in CSS pixels.
type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the pixel coordinates of the viewport centre.
func (v Viewport) Center() (float64, float64) {
	return v.Width / 2, v.Height / 2
}

// Pixels converts a percent position to absolute pixels.
func (v Viewport) Pixels(p Point) (float64, float64) {
	return v.Width * p.X / 100, v.Height * p.Y / 100
}

// BBox is a picture's on-screen rectangle in pixels.
type BBox struct {
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
}

// Slot places one picture on a 12-column grid.
type Slot struct {
	Field     string  `json:"field"`
	Row       int     `json:"row"`
	Offset    int     `json:"offset"`
	Columns   int     `json:"columns"`
	HeightPct float64 `json:"height_pct"`
}

// Layout is the arrangement of the pictures of one stimulus screen.
type Layout struct {
	Name      string  `json:"name"`
	Rows      int     `json:"rows"`
	Separator float64 `json:"separator_pct,omitempty"`
	Bordered  bool    `json:"bordered,omitempty"`
	Slots     []Slot  `json:"slots"`
}

// Screen replaces whatever is currently displayed.
type Screen struct {
	Kind   Kind   `json:"kind"`
	Title  string `json:"title,omitempty"`
	HTML   string `json:"html,omitempty"`
	Button string `json:"button,omitempty"`

	Point       *Point  `json:"point,omitempty"`
	Opacity     float64 `json:"opacity,omitempty"`
	Clickable   bool    `json:"clickable,omitempty"`
	TargetImage string  `json:"target_image,omitempty"`
	ShowVideo   bool    `json:"show_video,omitempty"`
	// RequireFace keeps the continue button disabled until the tracker sees
	// the face inside its feedback box.
	RequireFace bool `json:"require_face,omitempty"`

	Layout           *Layout           `json:"layout,omitempty"`
	Pictures         map[string]string `json:"pictures,omitempty"`
	CustomHTML       string            `json:"custom_html,omitempty"`
	ResponseSelector string            `json:"response_selector,omitempty"`
	Audio            string            `json:"audio,omitempty"`
	Assets           []string          `json:"assets,omitempty"`
}

// Patch amends the current screen without replacing it, so inputs raised on the
// screen stay valid.
type Patch struct {
	Opacity          *float64 `json:"opacity,omitempty"`
	ShowPictures     bool     `json:"show_pictures,omitempty"`
	ResponsesEnabled *bool    `json:"responses_enabled,omitempty"`
	Selected         string   `json:"selected,omitempty"`
	ContinueEnabled  *bool    `json:"continue_enabled,omitempty"`
}

type InputKind string

const (
	InputClick       InputKind = "click"
	InputKey         InputKind = "key"
	InputAck         InputKind = "ack"
	InputAudioLoaded InputKind = "audio_loaded"
	InputAudioFailed InputKind = "audio_failed"
	InputAudioEnded  InputKind = "audio_ended"
	// InputFaceDetected and InputFaceMissing report the face feedback box
	// turning green or leaving green.
	InputFaceDetected InputKind = "face_detected"
	InputFaceMissing  InputKind = "face_missing"
)

// Input is one participant or renderer event bound to the current screen.
type Input struct {
	Kind   InputKind       `json:"kind"`
	Target string          `json:"target,omitempty"`
	Key    string          `json:"key,omitempty"`
	URL    string          `json:"url,omitempty"`
	Error  string          `json:"error,omitempty"`
	Boxes  map[string]BBox `json:"boxes,omitempty"`
}

// Display renders screens and yields the inputs raised on them.
type Display interface {
	Render(s Screen) error
	Update(p Patch) error
	Inputs() <-chan Input
	Viewport() Viewport
}

// Audio controls the single audio stimulus of a trial. Load completion is
// reported through InputAudioLoaded or InputAudioFailed.
type Audio interface {
	Load(url string) error
	Play() error
	Stop() error
}

// Await blocks until an input satisfying match arrives, discarding the others.
func Await(ctx context.Context, d Display, match func(Input) bool) (Input, error) {
	for {
		select {
		case <-ctx.Done():
			return Input{}, ctx.Err()
		case in, ok := <-d.Inputs():
			if !ok {
				return Input{}, ErrClosed
			}
			if match(in) {
				return in, nil
			}
		}
	}
}

// Alert shows a blocking modal and waits for the participant to acknowledge it.
func Alert(ctx context.Context, d Display, title, text, button string) error {
	err := d.Render(Screen{Kind: KindModal, Title: title, HTML: text, Button: button})
	if err != nil {
		return err
	}
	_, err = Await(ctx, d, func(in Input) bool { return in.Kind == InputAck })
	return err
}

// ClickOn matches clicks on the given target.
func ClickOn(target string) func(Input) bool {
	return func(in Input) bool {
		return in.Kind == InputClick && in.Target == target
	}
}
