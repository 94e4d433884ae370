// Package options holds the experiment options: calibration geometry, validation
// thresholds, recalibration triggers and response policy flags.
package options

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"eyetrack-go/internal/display"
	"eyetrack-go/internal/tracker"

	"gopkg.in/yaml.v3"
)

// Options is read-only once the experiment is set up. Durations are milliseconds,
// matching the option files researchers already write.
type Options struct {
	// Calibration
	CalibrationPoints         Points       `yaml:"calibration_points"`
	CalibrationMode           tracker.Mode `yaml:"calibration_mode"`
	ClicksPerPoint            int          `yaml:"clicks_per_point"`
	TimeToSaccade             int          `yaml:"time_to_saccade"`
	TimePerPoint              int          `yaml:"time_per_point"`
	RepetitionsPerPoint       int          `yaml:"repetitions_per_point"`
	RandomizeCalibrationOrder bool         `yaml:"randomize_calibration_order"`
	CustomCalibrationTarget   string       `yaml:"custom_calibration_target"`
	SkipIfCalibrated          bool         `yaml:"skip_if_calibrated"`

	// Validation
	ValidationDuration          int     `yaml:"validation_duration"`
	MinimumCalibrationPrecision float64 `yaml:"minimum_calibration_precision"`
	MaximumTries                int     `yaml:"maximum_tries"`

	// Recalibration, nil disables the trigger
	RecalibrateAfterNSeconds *float64 `yaml:"recalibrate_after_n_seconds"`
	RecalibrateAfterNTrials  *int     `yaml:"recalibrate_after_n_trials"`

	// Trial design
	CustomHTML          string   `yaml:"custom_html"`
	ResponseCSSSelector string   `yaml:"response_css_selector"`
	ResponseKeys        []string `yaml:"response_keys"`

	// Trial flow
	CenterGazeAfterTrial        bool `yaml:"center_gaze_after_trial"`
	SingleResponse              bool `yaml:"single_response"`
	ResponseEndsTrial           bool `yaml:"response_ends_trial"`
	TrialEndsAfterAudio         bool `yaml:"trial_ends_after_audio"`
	ResponseAllowedWhilePlaying bool `yaml:"response_allowed_while_playing"`
	PicturesDelay               int  `yaml:"pictures_delay"`
	AudioDelay                  int  `yaml:"audio_delay"`
}

// Points decodes either `[x, y]` pairs or `{x, y}` mappings.
type Points []display.Point

func (p *Points) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.SequenceNode {
		return fmt.Errorf("calibration_points: expected a list, got line %d", node.Line)
	}
	points := make(Points, 0, len(node.Content))
	for _, item := range node.Content {
		switch item.Kind {
		case yaml.SequenceNode:
			var pair []float64
			if err := item.Decode(&pair); err != nil {
				return fmt.Errorf("calibration_points: %w", err)
			}
			if len(pair) != 2 {
				return fmt.Errorf("calibration_points: line %d: want [x, y], got %d values", item.Line, len(pair))
			}
			points = append(points, display.Point{X: pair[0], Y: pair[1]})
		case yaml.MappingNode:
			var pt struct {
				X float64 `yaml:"x"`
				Y float64 `yaml:"y"`
			}
			if err := item.Decode(&pt); err != nil {
				return fmt.Errorf("calibration_points: %w", err)
			}
			points = append(points, display.Point{X: pt.X, Y: pt.Y})
		default:
			return fmt.Errorf("calibration_points: line %d: unexpected value", item.Line)
		}
	}
	*p = points
	return nil
}

func intPtr(v int) *int { return &v }
func floatPtr(v float64) *float64 { return &v }
func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// Defaults returns the default options table. Review these before changing any
// experiment behaviour; overrides are applied on top by Merge.
func Defaults() Options {
	return Options{
		CalibrationPoints: Points{
			{X: 5, Y: 5}, {X: 30, Y: 5}, {X: 50, Y: 5}, {X: 70, Y: 5}, {X: 95, Y: 5},
			{X: 5, Y: 50}, {X: 30, Y: 50}, {X: 50, Y: 50}, {X: 70, Y: 50}, {X: 95, Y: 50},
			{X: 5, Y: 95}, {X: 30, Y: 95}, {X: 50, Y: 95}, {X: 70, Y: 95}, {X: 95, Y: 95},
		},
		CalibrationMode:           tracker.ModeClick,
		ClicksPerPoint:            5,
		TimeToSaccade:             1000,
		TimePerPoint:              1000,
		RepetitionsPerPoint:       1,
		RandomizeCalibrationOrder: false,
		SkipIfCalibrated:          true,

		ValidationDuration:          5000,
		MinimumCalibrationPrecision: 60,
		MaximumTries:                3,

		RecalibrateAfterNSeconds: floatPtr(5 * 60),
		RecalibrateAfterNTrials:  intPtr(10),

		ResponseCSSSelector: ".response",

		CenterGazeAfterTrial:        true,
		SingleResponse:              true,
		ResponseEndsTrial:           true,
		TrialEndsAfterAudio:         false,
		ResponseAllowedWhilePlaying: true,
		PicturesDelay:               0,
		AudioDelay:                  0,
	}
}

// Merge applies overrides key by key on top of base. Keys present in overrides
// win, including an explicit null on a nullable threshold. Unknown keys are an
// error. base is not modified.
func Merge(base Options, overrides map[string]any) (Options, error) {
	merged := base.clone()
	if len(overrides) == 0 {
		return merged, nil
	}
	raw, err := yaml.Marshal(overrides)
	if err != nil {
		return base, fmt.Errorf("failed to encode option overrides: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&merged); err != nil {
		return base, fmt.Errorf("invalid experiment options: %w", err)
	}
	return merged, merged.Validate()
}

func (o Options) clone() Options {
	c := o
	if o.RecalibrateAfterNSeconds != nil {
		c.RecalibrateAfterNSeconds = floatPtr(*o.RecalibrateAfterNSeconds)
	}
	if o.RecalibrateAfterNTrials != nil {
		c.RecalibrateAfterNTrials = intPtr(*o.RecalibrateAfterNTrials)
	}
	c.CalibrationPoints = append(Points(nil), o.CalibrationPoints...)
	c.ResponseKeys = append([]string(nil), o.ResponseKeys...)
	return c
}

// Validate rejects option sets the lifecycle cannot run with.
func (o Options) Validate() error {
	var errs []error
	if len(o.CalibrationPoints) == 0 {
		errs = append(errs, errors.New("calibration_points must not be empty"))
	}
	if o.CalibrationMode != tracker.ModeClick && o.CalibrationMode != tracker.ModeView {
		errs = append(errs, fmt.Errorf("calibration_mode must be %q or %q, got %q", tracker.ModeClick, tracker.ModeView, o.CalibrationMode))
	}
	if o.ClicksPerPoint < 1 {
		errs = append(errs, errors.New("clicks_per_point must be at least 1"))
	}
	if o.RepetitionsPerPoint < 1 {
		errs = append(errs, errors.New("repetitions_per_point must be at least 1"))
	}
	if o.MaximumTries < 1 {
		errs = append(errs, errors.New("maximum_tries must be at least 1"))
	}
	if o.MinimumCalibrationPrecision < 0 || o.MinimumCalibrationPrecision > 100 {
		errs = append(errs, errors.New("minimum_calibration_precision must be within 0-100"))
	}
	if o.TimeToSaccade < 0 || o.TimePerPoint < 0 || o.ValidationDuration < 0 || o.PicturesDelay < 0 || o.AudioDelay < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	return errors.Join(errs...)
}

func (o Options) SaccadeDelay() time.Duration { return ms(o.TimeToSaccade) }
func (o Options) PointDuration() time.Duration { return ms(o.TimePerPoint) }
func (o Options) ValidationWindow() time.Duration { return ms(o.ValidationDuration) }
func (o Options) PicturesDelayDuration() time.Duration { return ms(o.PicturesDelay) }
func (o Options) AudioDelayDuration() time.Duration { return ms(o.AudioDelay) }
