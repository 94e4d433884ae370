package calibration

import (
	"context"
	"math/rand"
	"time"

	"eyetrack-go/internal/display"
	"eyetrack-go/internal/options"
	"eyetrack-go/internal/phase"
	"eyetrack-go/internal/tracker"
	"eyetrack-go/internal/translate"

	"go.uber.org/zap"
)

// Params configures one calibration run.
type Params struct {
	Points           []display.Point
	Mode             tracker.Mode
	ClicksPerPoint   int
	SaccadeDelay     time.Duration
	PointDuration    time.Duration
	Repetitions      int
	Randomize        bool
	SkipIfCalibrated bool
	// TargetImage replaces the default dot when set.
	TargetImage string
}

// NewParams derives calibration parameters from the experiment options.
// target is the already resolved custom target URL, or "".
func NewParams(o options.Options, target string) Params {
	return Params{
		Points:           o.CalibrationPoints,
		Mode:             o.CalibrationMode,
		ClicksPerPoint:   o.ClicksPerPoint,
		SaccadeDelay:     o.SaccadeDelay(),
		PointDuration:    o.PointDuration(),
		Repetitions:      o.RepetitionsPerPoint,
		Randomize:        o.RandomizeCalibrationOrder,
		SkipIfCalibrated: o.SkipIfCalibrated,
		TargetImage:      target,
	}
}

// Controller walks the participant through the calibration points.
type Controller struct {
	tracker tracker.Tracker
	display display.Display
	state   *State
	tr      *translate.Translator
	log     *zap.Logger

	// Now stamps the calibration time.
	Now func() time.Time
	// Shuffle reorders the points of one round when randomization is on.
	Shuffle func([]display.Point) []display.Point
}

func NewController(tr tracker.Tracker, d display.Display, st *State, t *translate.Translator, log *zap.Logger) *Controller {
	return &Controller{
		tracker: tr,
		display: d,
		state:   st,
		tr:      t,
		log:     log,
		Now:     time.Now,
		Shuffle: ShufflePoints(rand.New(rand.NewSource(time.Now().UnixNano()))),
	}
}

// ShufflePoints returns a shuffle func drawing from rng. The input slice is
// never modified.
func ShufflePoints(rng *rand.Rand) func([]display.Point) []display.Point {
	return func(points []display.Point) []display.Point {
		out := append([]display.Point(nil), points...)
		rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
		return out
	}
}

// Run calibrates the tracker. A face-lost event at any point aborts the run;
// the caller starts over from head positioning.
func (c *Controller) Run(ctx context.Context, p Params) (phase.Result, error) {
	if p.SkipIfCalibrated && c.state.IsCalibrated() {
		return phase.Skip(map[string]any{"already_calibrated": true}), nil
	}

	watch := tracker.WatchFaceLost(c.tracker)
	defer watch.Stop()

	c.do("hide video", c.tracker.HideVideo)
	c.do("resume tracker", c.tracker.Resume)
	if p.Mode == tracker.ModeClick {
		c.do("start mouse calibration", c.tracker.StartMouseCalibration)
	}

	for round := 0; round < p.Repetitions; round++ {
		points := p.Points
		if p.Randomize && c.Shuffle != nil {
			points = c.Shuffle(points)
		}
		for i, pt := range points {
			lost, err := c.present(ctx, p, pt, watch)
			if err != nil {
				c.stopMouse(p)
				return phase.Result{}, err
			}
			if lost {
				c.log.Info("Face lost during calibration",
					zap.Int("round", round),
					zap.Int("point", i),
				)
				c.stopMouse(p)
				if err := RecoverFaceLost(ctx, c.display, c.state, c.tr, watch); err != nil {
					return phase.Result{}, err
				}
				return phase.Lost(nil), nil
			}
		}
	}

	c.stopMouse(p)
	c.state.MarkCalibrated(c.Now())
	c.do("pause tracker", c.tracker.Pause)
	c.do("hide predictions", c.tracker.HidePredictions)
	c.do("hide video", c.tracker.HideVideo)
	if err := c.display.Render(display.Screen{Kind: display.KindBlank}); err != nil {
		return phase.Result{}, err
	}
	c.log.Debug("Calibration completed", zap.Int("points", len(p.Points)), zap.Int("rounds", p.Repetitions))
	return phase.Done(nil), nil
}

func (c *Controller) stopMouse(p Params) {
	if p.Mode == tracker.ModeClick {
		c.do("stop mouse calibration", c.tracker.StopMouseCalibration)
	}
}

// present shows one point until it is done. It reports true when the face was
// lost first.
func (c *Controller) present(ctx context.Context, p Params, pt display.Point, watch *tracker.FaceLostWatch) (bool, error) {
	point := pt
	err := c.display.Render(display.Screen{
		Kind:        display.KindCalibrationPoint,
		Point:       &point,
		Opacity:     0.5,
		Clickable:   p.Mode == tracker.ModeClick,
		TargetImage: p.TargetImage,
	})
	if err != nil {
		return false, err
	}
	if p.Mode == tracker.ModeView {
		return c.watchPoint(ctx, p, pt, watch)
	}
	return c.clickPoint(ctx, p, watch)
}

// clickPoint waits for ClicksPerPoint clicks on the target. Each click raises
// the target's confidence, shown as opacity from 0.5 to 1.
func (c *Controller) clickPoint(ctx context.Context, p Params, watch *tracker.FaceLostWatch) (bool, error) {
	clicks := 0
	for clicks < p.ClicksPerPoint {
		if watch.Fired() {
			return true, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-watch.C():
			return true, nil
		case in, ok := <-c.display.Inputs():
			if !ok {
				return false, display.ErrClosed
			}
			if in.Kind != display.InputClick || in.Target != display.TargetCalibrationPoint {
				continue
			}
			clicks++
			opacity := 0.5 + 0.5*min(1, float64(clicks)/float64(p.ClicksPerPoint))
			if err := c.display.Update(display.Patch{Opacity: &opacity}); err != nil {
				return false, err
			}
		}
	}
	return false, nil
}

// watchPoint gives the participant SaccadeDelay to look at the target, then
// has the tracker take the point as the gaze on every frame for PointDuration.
func (c *Controller) watchPoint(ctx context.Context, p Params, pt display.Point, watch *tracker.FaceLostWatch) (bool, error) {
	x, y := c.display.Viewport().Pixels(pt)
	c.do("calibrate point", func() error { return c.tracker.CalibratePoint(x, y, p.SaccadeDelay, p.PointDuration) })

	finish := time.NewTimer(p.SaccadeDelay + p.PointDuration)
	defer finish.Stop()

	for {
		if watch.Fired() {
			return true, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-watch.C():
			return true, nil
		case <-finish.C:
			return false, nil
		case _, ok := <-c.display.Inputs():
			if !ok {
				return false, display.ErrClosed
			}
		}
	}
}

func (c *Controller) do(what string, fn func() error) {
	if err := fn(); err != nil {
		c.log.Warn("Tracker call failed", zap.String("call", what), zap.Error(err))
	}
}
