package calibration

import (
	"context"
	"sync"
	"time"

	"eyetrack-go/internal/display"
	"eyetrack-go/internal/options"
	"eyetrack-go/internal/phase"
	"eyetrack-go/internal/tracker"
	"eyetrack-go/internal/translate"

	"go.uber.org/zap"
)

// Terminator ends the whole experiment with a message for the participant.
type Terminator interface {
	EndExperiment(message string)
}

// TerminatorFunc adapts a func to Terminator.
type TerminatorFunc func(message string)

func (f TerminatorFunc) EndExperiment(message string) { f(message) }

// ValidationParams configures one validation attempt.
type ValidationParams struct {
	SaccadeDelay     time.Duration
	Duration         time.Duration
	MinimumPrecision float64
	MaximumTries     int
	TargetImage      string
}

func NewValidationParams(o options.Options, target string) ValidationParams {
	return ValidationParams{
		SaccadeDelay:     o.SaccadeDelay(),
		Duration:         o.ValidationWindow(),
		MinimumPrecision: o.MinimumCalibrationPrecision,
		MaximumTries:     o.MaximumTries,
		TargetImage:      target,
	}
}

// Validator measures how precisely the tracker follows a single fixation
// target in the middle of the screen.
type Validator struct {
	tracker    tracker.Tracker
	display    display.Display
	state      *State
	tr         *translate.Translator
	terminator Terminator
	log        *zap.Logger

	Now func() time.Time
}

func NewValidator(tr tracker.Tracker, d display.Display, st *State, t *translate.Translator, term Terminator, log *zap.Logger) *Validator {
	return &Validator{
		tracker:    tr,
		display:    d,
		state:      st,
		tr:         t,
		terminator: term,
		log:        log,
		Now:        time.Now,
	}
}

// Run validates a fresh calibration. It does nothing unless a calibration has
// completed since the last attempt. Failing MaximumTries attempts in a row
// terminates the experiment.
func (v *Validator) Run(ctx context.Context, p ValidationParams) (phase.Result, error) {
	if !v.state.ConsumeValidation() {
		return phase.Skip(nil), nil
	}

	watch := tracker.WatchFaceLost(v.tracker)
	defer watch.Stop()

	center := display.Point{X: 50, Y: 50}
	err := v.display.Render(display.Screen{
		Kind:        display.KindValidationPoint,
		Point:       &center,
		TargetImage: p.TargetImage,
	})
	if err != nil {
		return phase.Result{}, err
	}

	vp := v.display.Viewport()
	cx, cy := vp.Center()
	record := NewValidationRecord(cx, cy)

	collectFrom := v.Now().Add(p.SaccadeDelay)
	var mu sync.Mutex
	cancelGaze := v.tracker.OnGazeUpdate(func(s tracker.Sample) {
		if v.Now().Before(collectFrom) {
			return
		}
		mu.Lock()
		record.Add(s)
		mu.Unlock()
	})
	if err := v.tracker.StartSampleInterval(); err != nil {
		v.log.Warn("Failed to start gaze sampling", zap.Error(err))
	}
	stopSampling := func() {
		cancelGaze()
		if err := v.tracker.StopSampleInterval(); err != nil {
			v.log.Warn("Failed to stop gaze sampling", zap.Error(err))
		}
	}

	lost, err := v.wait(ctx, p.SaccadeDelay+p.Duration, watch)
	stopSampling()
	if err != nil {
		return phase.Result{}, err
	}
	if lost {
		v.log.Info("Face lost during validation")
		if err := RecoverFaceLost(ctx, v.display, v.state, v.tr, watch); err != nil {
			return phase.Result{}, err
		}
		return phase.Lost(nil), nil
	}
	watch.Stop()

	mu.Lock()
	precision := record.Precision(vp.Height / 2)
	data := map[string]any{
		"calibration_precision": precision,
		"validation_samples":    len(record.Samples),
		"mean_offset":           record.MeanOffset(),
	}
	mu.Unlock()

	if precision >= p.MinimumPrecision {
		v.state.RecordValidationPass()
		v.log.Info("Calibration validated", zap.Float64("precision", precision))
		return phase.Done(data), nil
	}

	failures := v.state.RecordValidationFailure()
	data["validation_failures"] = failures
	v.log.Info("Calibration not precise enough",
		zap.Float64("precision", precision),
		zap.Float64("minimum", p.MinimumPrecision),
		zap.Int("failures", failures),
	)

	if failures >= p.MaximumTries {
		message := v.tr.T(translate.MaxRetriesText, p.MaximumTries)
		err := display.Alert(ctx, v.display, v.tr.T(translate.MaxRetriesTitle), message, v.tr.T(translate.OKButton))
		if err != nil {
			return phase.Result{}, err
		}
		v.terminator.EndExperiment(message)
		return phase.Result{Status: phase.Terminated, Data: data}, nil
	}

	err = display.Alert(ctx, v.display, v.tr.T(translate.NotValidatedTitle), v.tr.T(translate.NotValidatedText), v.tr.T(translate.OKButton))
	if err != nil {
		return phase.Result{}, err
	}
	return phase.Result{Status: phase.Failed, Data: data}, nil
}

// wait blocks for the sampling window. Inputs raised meanwhile are dropped.
func (v *Validator) wait(ctx context.Context, d time.Duration, watch *tracker.FaceLostWatch) (bool, error) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		if watch.Fired() {
			return true, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-watch.C():
			return true, nil
		case <-timer.C:
			return watch.Fired(), nil
		case _, ok := <-v.display.Inputs():
			if !ok {
				return false, display.ErrClosed
			}
		}
	}
}
