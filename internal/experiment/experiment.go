package experiment

import (
	"context"
	"sync"

	"eyetrack-go/internal/display"
	"eyetrack-go/internal/phase"
	"eyetrack-go/internal/stimuli"
	"eyetrack-go/internal/translate"

	"go.uber.org/zap"
)

// Timeline is the ordered trial rows of one session.
type Timeline struct {
	// InitialCalibration runs the calibration loop once before any block.
	InitialCalibration bool
	Practice           []stimuli.Row
	Trials             []stimuli.Row
	// Assets are preloaded by the browser before the first screen.
	Assets []string
}

// Outcome summarises a finished session.
type Outcome struct {
	Status    phase.Status
	Message   string
	TrialsRun int
	Skipped   int
}

// Experiment runs a whole session timeline on one Orchestrator.
type Experiment struct {
	orch     *Orchestrator
	display  display.Display
	tr       *translate.Translator
	timeline Timeline
	log      *zap.Logger

	mu         sync.Mutex
	endMessage string
	ended      bool
}

// New builds the session runner. The experiment itself is the terminator its
// validator reports to.
func New(deps Deps, timeline Timeline) *Experiment {
	e := &Experiment{
		display:  deps.Display,
		tr:       deps.Translator,
		timeline: timeline,
		log:      deps.Log,
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	e.orch = NewOrchestrator(deps, e)
	return e
}

// Orchestrator exposes the per-trial loop, mostly for tests.
func (e *Experiment) Orchestrator() *Orchestrator { return e.orch }

// EndExperiment stops the timeline after the current step. Only the first
// message is kept.
func (e *Experiment) EndExperiment(message string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ended {
		return
	}
	e.ended = true
	e.endMessage = message
}

// Ended reports whether the experiment was ended early, and why.
func (e *Experiment) Ended() (bool, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ended, e.endMessage
}

// Run presents the timeline: optional initial calibration, practice intro and
// trials, experiment intro and trials, then the closing message.
func (e *Experiment) Run(ctx context.Context) (Outcome, error) {
	var out Outcome

	if len(e.timeline.Assets) > 0 {
		err := e.display.Render(display.Screen{Kind: display.KindBlank, Assets: e.timeline.Assets})
		if err != nil {
			return out, err
		}
	}

	if e.timeline.InitialCalibration {
		status, err := e.orch.RunTrial(ctx, BlockCalibration, 0, nil)
		if err != nil {
			return out, err
		}
		if stop, done, err := e.stopped(status, out); stop {
			return done, err
		}
	}

	blocks := []struct {
		name  string
		intro string
		rows  []stimuli.Row
	}{
		{BlockPractice, translate.PracticeIntro, e.timeline.Practice},
		{BlockMain, translate.ExperimentIntro, e.timeline.Trials},
	}
	for _, b := range blocks {
		if len(b.rows) == 0 {
			continue
		}
		if err := e.intro(ctx, b.intro); err != nil {
			return out, err
		}
		for i, row := range b.rows {
			status, err := e.orch.RunTrial(ctx, b.name, i, row)
			if err != nil {
				return out, err
			}
			if stop, done, err := e.stopped(status, out); stop {
				return done, err
			}
			if status == phase.StimulusFailed {
				out.Skipped++
				continue
			}
			out.TrialsRun++
		}
		e.log.Info("Block finished", zap.String("block", b.name), zap.Int("trials", len(b.rows)))
	}

	if err := e.finish(e.tr.T(translate.FinishedText)); err != nil {
		return out, err
	}
	out.Status = phase.Completed
	return out, nil
}

func (e *Experiment) finish(text string) error {
	return e.display.Render(display.Screen{
		Kind:   display.KindFinished,
		Title:  e.tr.T(translate.FinishedTitle),
		HTML:   text,
		Button: e.tr.T(translate.OKButton),
	})
}

// stopped reports whether status ends the session, with the final outcome. A
// terminated experiment leaves the participant on its end message.
func (e *Experiment) stopped(status phase.Status, out Outcome) (bool, Outcome, error) {
	switch status {
	case phase.Terminated:
		_, msg := e.Ended()
		out.Status = phase.Terminated
		out.Message = msg
		return true, out, e.finish(msg)
	case phase.TrackerFailed:
		out.Status = phase.TrackerFailed
		out.Message = e.tr.T(translate.TrackerFailedText)
		return true, out, nil
	}
	return false, out, nil
}

func (e *Experiment) intro(ctx context.Context, key string) error {
	err := e.display.Render(display.Screen{
		Kind:   display.KindMessage,
		HTML:   e.tr.T(key),
		Button: e.tr.T(translate.StartButton),
	})
	if err != nil {
		return err
	}
	_, err = display.Await(ctx, e.display, display.ClickOn(display.TargetContinue))
	return err
}
