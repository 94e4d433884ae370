package experiment

import (
	"context"
	"time"

	"eyetrack-go/internal/calibration"
	"eyetrack-go/internal/display"
	"eyetrack-go/internal/metrics"
	"eyetrack-go/internal/options"
	"eyetrack-go/internal/phase"
	"eyetrack-go/internal/stimuli"
	"eyetrack-go/internal/tracker"
	"eyetrack-go/internal/translate"
	"eyetrack-go/internal/trial"

	"go.uber.org/zap"
)

// Deps is everything a session needs to run its steps.
type Deps struct {
	Tracker    tracker.Tracker
	Display    display.Display
	Audio      display.Audio
	State      *calibration.State
	Translator *translate.Translator
	Options    options.Options
	// TargetImage is the resolved custom calibration target, or "".
	TargetImage string
	Recorder    Recorder
	Metrics     *metrics.Collectors
	Log         *zap.Logger
}

// Orchestrator runs the per-trial loop
//
//	head positioning -> calibration -> validation instructions -> validation -> trial
//
// until the trial completes with a valid calibration.
type Orchestrator struct {
	tracker  tracker.Tracker
	display  display.Display
	state    *calibration.State
	tr       *translate.Translator
	opts     options.Options
	target   string
	recorder Recorder
	metrics  *metrics.Collectors
	log      *zap.Logger

	Policy     calibration.Policy
	Controller *calibration.Controller
	Validator  *calibration.Validator
	Runner     *trial.Runner
	Now        func() time.Time
}

// NewOrchestrator wires the step components around one calibration state.
// term is told when validation gives up for good.
func NewOrchestrator(deps Deps, term calibration.Terminator) *Orchestrator {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	rec := deps.Recorder
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Orchestrator{
		tracker:  deps.Tracker,
		display:  deps.Display,
		state:    deps.State,
		tr:       deps.Translator,
		opts:     deps.Options,
		target:   deps.TargetImage,
		recorder: rec,
		metrics:  deps.Metrics,
		log:      log,

		Policy:     calibration.NewPolicy(deps.Options),
		Controller: calibration.NewController(deps.Tracker, deps.Display, deps.State, deps.Translator, log),
		Validator:  calibration.NewValidator(deps.Tracker, deps.Display, deps.State, deps.Translator, term, log),
		Runner:     trial.NewRunner(deps.Tracker, deps.Display, deps.Audio, deps.State, deps.Translator, log),
		Now:        time.Now,
	}
}

// RunTrial runs the loop for one trial row. A nil row runs the calibration
// steps only. The returned status is Completed once the row has been
// presented with a valid calibration; Terminated, TrackerFailed and
// StimulusFailed end the loop early.
func (o *Orchestrator) RunTrial(ctx context.Context, block string, index int, row stimuli.Row) (phase.Status, error) {
	for attempt := 1; ; attempt++ {
		status, err := o.attempt(ctx, block, index, attempt, row)
		if err != nil {
			return status, err
		}
		switch status {
		case phase.Terminated, phase.TrackerFailed, phase.StimulusFailed:
			return status, nil
		}
		if o.state.IsCalibrated() {
			return phase.Completed, nil
		}
		o.log.Debug("Calibration lost, repeating trial loop",
			zap.String("block", block),
			zap.Int("trial", index),
			zap.Int("attempt", attempt),
			zap.Stringer("status", status),
		)
	}
}

// attempt is one pass through the loop. It returns the status of the step
// that ended the pass.
func (o *Orchestrator) attempt(ctx context.Context, block string, index, attempt int, row stimuli.Row) (phase.Status, error) {
	rec := func(step Step, res phase.Result) {
		o.record(ctx, Record{
			Block:      block,
			TrialIndex: index,
			Attempt:    attempt,
			Step:       step,
			Status:     res.Status,
			Data:       res.Data,
			At:         o.Now(),
		})
	}

	res, err := o.headPositioning(ctx)
	if err != nil {
		return res.Status, err
	}
	rec(StepHeadPositioning, res)
	if res.Status == phase.TrackerFailed {
		return res.Status, nil
	}

	res, err = o.Controller.Run(ctx, calibration.NewParams(o.opts, o.target))
	if err != nil {
		return res.Status, err
	}
	rec(StepCalibration, res)
	if !o.state.IsCalibrated() {
		return res.Status, nil
	}

	if o.state.NeedsValidation() {
		res, err = o.validationInstructions(ctx)
		if err != nil {
			return res.Status, err
		}
		rec(StepValidationInstructions, res)
		if !o.state.IsCalibrated() {
			return res.Status, nil
		}
	}

	res, err = o.Validator.Run(ctx, calibration.NewValidationParams(o.opts, o.target))
	if err != nil {
		return res.Status, err
	}
	rec(StepValidation, res)
	if p, ok := res.Data["calibration_precision"].(float64); ok {
		o.metrics.ObservePrecision(p)
	}
	if res.Status == phase.Terminated || !o.state.IsCalibrated() {
		return res.Status, nil
	}

	if row == nil {
		return phase.Completed, nil
	}

	res, err = o.Runner.Run(ctx, trial.NewParams(o.opts, trialID(row, index), row, o.target))
	if err != nil {
		return res.Status, err
	}
	rec(StepTrial, res)
	if res.Status == phase.StimulusFailed {
		o.log.Warn("Trial skipped, stimulus failed to load",
			zap.String("block", block),
			zap.Int("trial", index),
		)
	}
	return res.Status, nil
}

// headPositioning lets the participant settle in front of the camera. The
// policy decides first whether the current calibration can be kept.
func (o *Orchestrator) headPositioning(ctx context.Context) (phase.Result, error) {
	start := o.Now()
	if o.Policy.Decide(o.state) == calibration.Skip {
		return phase.Skip(map[string]any{"already_calibrated": true}), nil
	}

	if !o.tracker.IsInitialized() {
		if err := o.tracker.Start(ctx); err != nil {
			if ctx.Err() != nil {
				return phase.Result{}, ctx.Err()
			}
			o.log.Error("Eye tracker failed to start", zap.Error(err))
			// The notice has no button; the experiment cannot go on.
			rerr := o.display.Render(display.Screen{
				Kind: display.KindMessage,
				HTML: o.tr.T(translate.TrackerFailedText),
			})
			if rerr != nil {
				return phase.Result{}, rerr
			}
			return phase.Result{
				Status: phase.TrackerFailed,
				Data:   map[string]any{"tracker_error": err.Error()},
			}, nil
		}
	}
	loadTime := o.Now().Sub(start).Milliseconds()

	o.do("show video", o.tracker.ShowVideo)
	o.do("resume tracker", o.tracker.Resume)
	err := o.display.Render(display.Screen{
		Kind:        display.KindHeadPositioning,
		HTML:        o.tr.T(translate.InitCameraInstructions),
		Button:      o.tr.T(translate.ContinueButton),
		ShowVideo:   true,
		RequireFace: true,
	})
	if err != nil {
		return phase.Result{}, err
	}
	if err := o.awaitFace(ctx); err != nil {
		return phase.Result{}, err
	}
	o.do("pause tracker", o.tracker.Pause)
	o.do("hide video", o.tracker.HideVideo)

	return phase.Done(map[string]any{"load_time": loadTime}), nil
}

// awaitFace waits for a continue click made while the face is inside the
// feedback box. The button follows the face in and out of the box.
func (o *Orchestrator) awaitFace(ctx context.Context) error {
	detected := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case in, ok := <-o.display.Inputs():
			if !ok {
				return display.ErrClosed
			}
			switch in.Kind {
			case display.InputFaceDetected, display.InputFaceMissing:
				now := in.Kind == display.InputFaceDetected
				if now == detected {
					continue
				}
				detected = now
				enabled := now
				if err := o.display.Update(display.Patch{ContinueEnabled: &enabled}); err != nil {
					return err
				}
			case display.InputClick:
				if in.Target == display.TargetContinue && detected {
					return nil
				}
			}
		}
	}
}

// validationInstructions asks the participant to fixate the coming target.
func (o *Orchestrator) validationInstructions(ctx context.Context) (phase.Result, error) {
	watch := tracker.WatchFaceLost(o.tracker)
	defer watch.Stop()

	err := o.display.Render(display.Screen{
		Kind:   display.KindMessage,
		HTML:   o.tr.T(translate.ValidationInstructions),
		Button: o.tr.T(translate.StartValidationButton),
	})
	if err != nil {
		return phase.Result{}, err
	}

	for {
		if watch.Fired() {
			return o.faceLost(ctx, watch)
		}
		select {
		case <-ctx.Done():
			return phase.Result{}, ctx.Err()
		case <-watch.C():
			return o.faceLost(ctx, watch)
		case in, ok := <-o.display.Inputs():
			if !ok {
				return phase.Result{}, display.ErrClosed
			}
			if in.Kind == display.InputClick && in.Target == display.TargetContinue {
				return phase.Done(nil), nil
			}
		}
	}
}

func (o *Orchestrator) faceLost(ctx context.Context, watch *tracker.FaceLostWatch) (phase.Result, error) {
	if err := calibration.RecoverFaceLost(ctx, o.display, o.state, o.tr, watch); err != nil {
		return phase.Result{}, err
	}
	return phase.Lost(nil), nil
}

func (o *Orchestrator) record(ctx context.Context, r Record) {
	o.metrics.RecordStep(string(r.Step), r.Status)
	if err := o.recorder.Record(ctx, r); err != nil {
		o.log.Error("Failed to record step",
			zap.String("step", string(r.Step)),
			zap.String("block", r.Block),
			zap.Int("trial", r.TrialIndex),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) do(what string, fn func() error) {
	if err := fn(); err != nil {
		o.log.Warn("Tracker call failed", zap.String("call", what), zap.Error(err))
	}
}

// trialID prefers an integer id column of the row over its position.
func trialID(row stimuli.Row, index int) int {
	if id, ok := row["id"].(int); ok {
		return id
	}
	return index
}
