package trial

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"eyetrack-go/internal/calibration"
	"eyetrack-go/internal/display"
	"eyetrack-go/internal/options"
	"eyetrack-go/internal/phase"
	"eyetrack-go/internal/stimuli"
	"eyetrack-go/internal/tracker"
	"eyetrack-go/internal/translate"

	"go.uber.org/zap"
)

// Response is one answer given during a trial. Time is in seconds since the
// trial started.
type Response struct {
	Response  string  `json:"response"`
	Time      float64 `json:"time"`
	IsCorrect *bool   `json:"is_correct,omitempty"`
}

// Params configures one trial.
type Params struct {
	ID  int
	Row stimuli.Row

	CustomHTML       string
	ResponseSelector string
	ResponseKeys     []string
	TargetImage      string

	CenterGazeAfterTrial        bool
	SingleResponse              bool
	ResponseAllowedWhilePlaying bool
	End                         EndPolicy

	PicturesDelay time.Duration
	AudioDelay    time.Duration
}

func NewParams(o options.Options, id int, row stimuli.Row, target string) Params {
	return Params{
		ID:                          id,
		Row:                         row,
		CustomHTML:                  o.CustomHTML,
		ResponseSelector:            o.ResponseCSSSelector,
		ResponseKeys:                o.ResponseKeys,
		TargetImage:                 target,
		CenterGazeAfterTrial:        o.CenterGazeAfterTrial,
		SingleResponse:              o.SingleResponse,
		ResponseAllowedWhilePlaying: o.ResponseAllowedWhilePlaying,
		End: EndPolicy{
			TrialEndsAfterAudio: o.TrialEndsAfterAudio,
			ResponseEndsTrial:   o.ResponseEndsTrial,
		},
		PicturesDelay: o.PicturesDelayDuration(),
		AudioDelay:    o.AudioDelayDuration(),
	}
}

// Runner presents stimulus trials.
type Runner struct {
	tracker tracker.Tracker
	display display.Display
	audio   display.Audio
	state   *calibration.State
	tr      *translate.Translator
	log     *zap.Logger

	// Epoch is the reference for start_time, normally the session start.
	Epoch time.Time
	Now   func() time.Time
}

func NewRunner(tr tracker.Tracker, d display.Display, a display.Audio, st *calibration.State, t *translate.Translator, log *zap.Logger) *Runner {
	now := time.Now()
	return &Runner{
		tracker: tr,
		display: d,
		audio:   a,
		state:   st,
		tr:      t,
		log:     log,
		Epoch:   now,
		Now:     time.Now,
	}
}

// trialRun is the mutable state of one Run.
type trialRun struct {
	p          Params
	fields     []string
	started    bool
	start      time.Time
	enabled    bool
	playing    bool
	audioEnded bool
	responses  []Response
	boxes      map[string]any
}

// Run presents one trial. A trial entered without a valid calibration ends at
// once with a calibration_lost marker, as does a face-lost event at any point.
func (r *Runner) Run(ctx context.Context, p Params) (phase.Result, error) {
	if !r.state.IsCalibrated() {
		return phase.Lost(nil), nil
	}

	run := &trialRun{p: p, fields: p.Row.PictureFields(), boxes: make(map[string]any)}
	screen := display.Screen{
		Kind:             display.KindStimulus,
		CustomHTML:       p.CustomHTML,
		ResponseSelector: p.ResponseSelector,
		Audio:            p.Row.String("audio"),
		Pictures:         make(map[string]string, len(run.fields)),
	}
	if p.CustomHTML == "" {
		layout, err := SelectLayout(len(run.fields))
		if err != nil {
			return phase.Result{}, fmt.Errorf("trial %d: %w", p.ID, err)
		}
		screen.Layout = &layout
	}
	for _, field := range run.fields {
		screen.Pictures[field] = p.Row.String(field)
	}

	watch := tracker.WatchFaceLost(r.tracker)
	defer watch.Stop()

	if err := r.display.Render(screen); err != nil {
		return phase.Result{}, err
	}

	lost, failed, err := r.loadAudio(ctx, run, watch)
	if err != nil {
		return phase.Result{}, err
	}
	if failed != nil {
		return *failed, nil
	}
	if lost {
		return r.faceLost(ctx, run, watch)
	}

	run.started = true
	run.start = r.Now()
	if p.ResponseAllowedWhilePlaying {
		if err := r.enableResponses(run); err != nil {
			return phase.Result{}, err
		}
	}

	lost, err = r.collect(ctx, run, watch)
	if err != nil {
		r.stopAudio()
		return phase.Result{}, err
	}
	if lost {
		return r.faceLost(ctx, run, watch)
	}
	r.stopAudio()

	if p.CenterGazeAfterTrial {
		lost, err := r.centerGaze(ctx, p, watch)
		if err != nil {
			return phase.Result{}, err
		}
		if lost {
			return r.faceLost(ctx, run, watch)
		}
	}
	watch.Stop()

	if err := r.display.Render(display.Screen{Kind: display.KindBlank}); err != nil {
		return phase.Result{}, err
	}
	return phase.Done(r.record(run)), nil
}

// loadAudio loads the trial's audio and waits until it is ready. A load
// failure is reported to the participant and the trial is skipped.
func (r *Runner) loadAudio(ctx context.Context, run *trialRun, watch *tracker.FaceLostWatch) (bool, *phase.Result, error) {
	url := run.p.Row.String("audio")
	if err := r.audio.Load(url); err != nil {
		return false, nil, err
	}
	for {
		if watch.Fired() {
			return true, nil, nil
		}
		select {
		case <-ctx.Done():
			return false, nil, ctx.Err()
		case <-watch.C():
			return true, nil, nil
		case in, ok := <-r.display.Inputs():
			if !ok {
				return false, nil, display.ErrClosed
			}
			switch in.Kind {
			case display.InputAudioLoaded:
				return false, nil, nil
			case display.InputAudioFailed:
				r.log.Error("Audio file failed to load",
					zap.Int("trial_id", run.p.ID),
					zap.String("url", url),
					zap.String("error", in.Error),
				)
				watch.Stop()
				err := display.Alert(ctx, r.display,
					r.tr.T(translate.StimulusFailedTitle),
					r.tr.T(translate.StimulusFailedText),
					r.tr.T(translate.OKButton),
				)
				if err != nil {
					return false, nil, err
				}
				res := phase.Result{Status: phase.StimulusFailed, Data: map[string]any{
					"trial_id":       run.p.ID,
					"audio":          stimuli.StimulusName(url),
					"stimulus_error": in.Error,
				}}
				return false, &res, nil
			}
		}
	}
}

// collect runs the response window until the end predicate holds.
func (r *Runner) collect(ctx context.Context, run *trialRun, watch *tracker.FaceLostWatch) (bool, error) {
	pictures := time.NewTimer(run.p.PicturesDelay)
	defer pictures.Stop()
	audio := time.NewTimer(run.p.AudioDelay)
	defer audio.Stop()

	for {
		if watch.Fired() {
			return true, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-watch.C():
			return true, nil
		case <-pictures.C:
			if err := r.display.Update(display.Patch{ShowPictures: true}); err != nil {
				return false, err
			}
		case <-audio.C:
			if err := r.audio.Play(); err != nil {
				return false, err
			}
			run.playing = true
		case in, ok := <-r.display.Inputs():
			if !ok {
				return false, display.ErrClosed
			}
			done, err := r.handle(run, in)
			if err != nil {
				return false, err
			}
			if done {
				return watch.Fired(), nil
			}
		}
	}
}

func (r *Runner) handle(run *trialRun, in display.Input) (bool, error) {
	switch in.Kind {
	case display.InputAudioEnded:
		if !run.playing || run.audioEnded {
			return false, nil
		}
		run.audioEnded = true
		if !run.p.ResponseAllowedWhilePlaying && !run.enabled {
			if err := r.enableResponses(run); err != nil {
				return false, err
			}
		}
	case display.InputClick:
		if !run.enabled || isReserved(in.Target) {
			return false, nil
		}
		if err := r.respond(run, in.Target, in); err != nil {
			return false, err
		}
	case display.InputKey:
		if !run.enabled || !allowedKey(run.p.ResponseKeys, in.Key) {
			return false, nil
		}
		if err := r.respond(run, in.Key, in); err != nil {
			return false, err
		}
	default:
		return false, nil
	}
	return run.p.End.ShouldEnd(run.audioEnded, len(run.responses)), nil
}

func isReserved(target string) bool {
	return target == "" || target == display.TargetContinue ||
		target == display.TargetFixation || target == display.TargetCalibrationPoint
}

func allowedKey(keys []string, key string) bool {
	for _, k := range keys {
		if strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}

func (r *Runner) respond(run *trialRun, choice string, in display.Input) error {
	resp := Response{
		Response: choice,
		Time:     round(r.Now().Sub(run.start).Seconds(), 3),
	}
	if correct := run.p.Row.String("correct_answer"); correct != "" {
		ok := choice == correct
		resp.IsCorrect = &ok
	}
	run.responses = append(run.responses, resp)

	for _, field := range run.fields {
		run.boxes[field+"_name"] = stimuli.StimulusName(run.p.Row.String(field))
		if box, ok := in.Boxes[field]; ok {
			run.boxes[field+"_bbox"] = display.BBox{
				Top:    round(box.Top, 2),
				Right:  round(box.Right, 2),
				Bottom: round(box.Bottom, 2),
				Left:   round(box.Left, 2),
			}
		}
	}

	patch := display.Patch{}
	if in.Kind == display.InputClick {
		patch.Selected = choice
	}
	if run.p.SingleResponse {
		run.enabled = false
		disabled := false
		patch.ResponsesEnabled = &disabled
	}
	if patch.Selected == "" && patch.ResponsesEnabled == nil {
		return nil
	}
	return r.display.Update(patch)
}

func (r *Runner) enableResponses(run *trialRun) error {
	run.enabled = true
	on := true
	return r.display.Update(display.Patch{ResponsesEnabled: &on})
}

// centerGaze shows a fixation target in the middle of the screen and waits
// for the participant to click it.
func (r *Runner) centerGaze(ctx context.Context, p Params, watch *tracker.FaceLostWatch) (bool, error) {
	center := display.Point{X: 50, Y: 50}
	err := r.display.Render(display.Screen{
		Kind:        display.KindFixation,
		Point:       &center,
		Clickable:   true,
		TargetImage: p.TargetImage,
	})
	if err != nil {
		return false, err
	}
	for {
		if watch.Fired() {
			return true, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-watch.C():
			return true, nil
		case in, ok := <-r.display.Inputs():
			if !ok {
				return false, display.ErrClosed
			}
			if in.Kind == display.InputClick && in.Target == display.TargetFixation {
				return false, nil
			}
		}
	}
}

func (r *Runner) faceLost(ctx context.Context, run *trialRun, watch *tracker.FaceLostWatch) (phase.Result, error) {
	r.log.Info("Face lost during trial", zap.Int("trial_id", run.p.ID))
	r.stopAudio()
	if err := calibration.RecoverFaceLost(ctx, r.display, r.state, r.tr, watch); err != nil {
		return phase.Result{}, err
	}
	data := map[string]any{"trial_id": run.p.ID}
	if run.started {
		data["start_time"] = r.startTime(run)
	}
	return phase.Lost(data), nil
}

func (r *Runner) stopAudio() {
	if err := r.audio.Stop(); err != nil {
		r.log.Warn("Failed to stop audio", zap.Error(err))
	}
}

func (r *Runner) startTime(run *trialRun) float64 {
	return round(run.start.Sub(r.Epoch).Seconds(), 3)
}

// record merges the row, the picture data and the computed fields. Computed
// fields win over row columns of the same name.
func (r *Runner) record(run *trialRun) map[string]any {
	data := make(map[string]any, len(run.p.Row)+len(run.boxes)+3)
	for k, v := range run.p.Row {
		data[k] = v
	}
	for k, v := range run.boxes {
		data[k] = v
	}
	responses := run.responses
	if responses == nil {
		responses = []Response{}
	}
	data["start_time"] = r.startTime(run)
	data["audio"] = stimuli.StimulusName(run.p.Row.String("audio"))
	data["responses"] = responses
	return data
}

func round(v float64, decimals int) float64 {
	coeff := math.Pow(10, float64(decimals))
	return math.Round(v*coeff) / coeff
}
