// Package testutil provides in-memory stand-ins for the browser-side tracker,
// display and audio, so experiment phases can be driven from tests.
package testutil

import (
	"context"
	"sync"
	"time"

	"eyetrack-go/internal/display"
	"eyetrack-go/internal/tracker"
)

// CalibrateCall is one recorded CalibratePoint invocation.
type CalibrateCall struct {
	X, Y            float64
	Delay, Duration time.Duration
}

// FakeTracker implements tracker.Tracker. Hooks run on the caller's goroutine
// without the fake's lock held, so they may call back into the fake.
type FakeTracker struct {
	mu          sync.Mutex
	StartErr    error
	initialized bool
	faceLost    func()
	gaze        map[int]func(tracker.Sample)
	nextGazeID  int
	sampling    bool
	calls       []string
	calibrated  []CalibrateCall

	// OnStartSampling runs after StartSampleInterval is recorded.
	OnStartSampling func()
	// OnCalibratePoint runs after every CalibratePoint.
	OnCalibratePoint func(CalibrateCall)
}

func NewFakeTracker() *FakeTracker {
	return &FakeTracker{gaze: make(map[int]func(tracker.Sample))}
}

func (f *FakeTracker) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *FakeTracker) Start(ctx context.Context) error {
	f.record("start")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StartErr != nil {
		return f.StartErr
	}
	f.initialized = true
	return nil
}

func (f *FakeTracker) IsInitialized() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initialized
}

// SetInitialized marks the engine as already running.
func (f *FakeTracker) SetInitialized(v bool) {
	f.mu.Lock()
	f.initialized = v
	f.mu.Unlock()
}

func (f *FakeTracker) Pause() error { f.record("pause"); return nil }
func (f *FakeTracker) Resume() error { f.record("resume"); return nil }

func (f *FakeTracker) SetFaceLostListener(fn func()) {
	f.record("set_face_lost")
	f.mu.Lock()
	f.faceLost = fn
	f.mu.Unlock()
}

func (f *FakeTracker) ClearFaceLostListener() {
	f.record("clear_face_lost")
	f.mu.Lock()
	f.faceLost = nil
	f.mu.Unlock()
}

// HasFaceLostListener reports whether a face-lost listener is registered.
func (f *FakeTracker) HasFaceLostListener() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.faceLost != nil
}

// LoseFace invokes the registered face-lost listener, if any, and reports
// whether one was registered.
func (f *FakeTracker) LoseFace() bool {
	f.mu.Lock()
	fn := f.faceLost
	f.mu.Unlock()
	if fn == nil {
		return false
	}
	fn()
	return true
}

func (f *FakeTracker) OnGazeUpdate(fn func(tracker.Sample)) func() {
	f.mu.Lock()
	id := f.nextGazeID
	f.nextGazeID++
	f.gaze[id] = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.gaze, id)
		f.mu.Unlock()
	}
}

// GazeSubscribers returns the number of active gaze callbacks.
func (f *FakeTracker) GazeSubscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.gaze)
}

// Emit delivers samples to every gaze callback.
func (f *FakeTracker) Emit(samples ...tracker.Sample) {
	f.mu.Lock()
	fns := make([]func(tracker.Sample), 0, len(f.gaze))
	for _, fn := range f.gaze {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, s := range samples {
		for _, fn := range fns {
			fn(s)
		}
	}
}

func (f *FakeTracker) StartSampleInterval() error {
	f.record("start_sampling")
	f.mu.Lock()
	f.sampling = true
	hook := f.OnStartSampling
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (f *FakeTracker) StopSampleInterval() error {
	f.record("stop_sampling")
	f.mu.Lock()
	f.sampling = false
	f.mu.Unlock()
	return nil
}

// Sampling reports whether the sample interval is running.
func (f *FakeTracker) Sampling() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sampling
}

func (f *FakeTracker) CalibratePoint(x, y float64, delay, duration time.Duration) error {
	call := CalibrateCall{X: x, Y: y, Delay: delay, Duration: duration}
	f.mu.Lock()
	f.calibrated = append(f.calibrated, call)
	hook := f.OnCalibratePoint
	f.mu.Unlock()
	if hook != nil {
		hook(call)
	}
	return nil
}

// CalibratedPoints returns every CalibratePoint call so far.
func (f *FakeTracker) CalibratedPoints() []CalibrateCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]CalibrateCall(nil), f.calibrated...)
}

func (f *FakeTracker) StartMouseCalibration() error { f.record("start_mouse_calibration"); return nil }
func (f *FakeTracker) StopMouseCalibration() error { f.record("stop_mouse_calibration"); return nil }
func (f *FakeTracker) ShowVideo() error { f.record("show_video"); return nil }
func (f *FakeTracker) HideVideo() error { f.record("hide_video"); return nil }
func (f *FakeTracker) HidePredictions() error { f.record("hide_predictions"); return nil }

// Calls returns the names of the recorded calls in order.
func (f *FakeTracker) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// FakeDisplay implements display.Display and records what was rendered.
type FakeDisplay struct {
	mu       sync.Mutex
	screens  []display.Screen
	patches  []display.Patch
	onRender []func(display.Screen)
	onUpdate []func(display.Patch)
	inputs   chan display.Input
	viewport display.Viewport
}

func NewFakeDisplay(vp display.Viewport) *FakeDisplay {
	return &FakeDisplay{
		inputs:   make(chan display.Input, 1024),
		viewport: vp,
	}
}

func (d *FakeDisplay) Render(s display.Screen) error {
	d.mu.Lock()
	d.screens = append(d.screens, s)
	hooks := append([]func(display.Screen){}, d.onRender...)
	d.mu.Unlock()
	for _, h := range hooks {
		h(s)
	}
	return nil
}

func (d *FakeDisplay) Update(p display.Patch) error {
	d.mu.Lock()
	d.patches = append(d.patches, p)
	hooks := append([]func(display.Patch){}, d.onUpdate...)
	d.mu.Unlock()
	for _, h := range hooks {
		h(p)
	}
	return nil
}

func (d *FakeDisplay) Inputs() <-chan display.Input { return d.inputs }

func (d *FakeDisplay) Viewport() display.Viewport { return d.viewport }

// Send queues an input as if the participant raised it.
func (d *FakeDisplay) Send(in ...display.Input) {
	for _, i := range in {
		d.inputs <- i
	}
}

// OnRender registers a hook run after every Render.
func (d *FakeDisplay) OnRender(fn func(display.Screen)) {
	d.mu.Lock()
	d.onRender = append(d.onRender, fn)
	d.mu.Unlock()
}

// OnUpdate registers a hook run after every Update.
func (d *FakeDisplay) OnUpdate(fn func(display.Patch)) {
	d.mu.Lock()
	d.onUpdate = append(d.onUpdate, fn)
	d.mu.Unlock()
}

// AckModals acknowledges every modal as soon as it is shown.
func (d *FakeDisplay) AckModals() {
	d.OnRender(func(s display.Screen) {
		if s.Kind == display.KindModal {
			d.Send(display.Input{Kind: display.InputAck})
		}
	})
}

// ClickContinue clicks the continue button of every message and head
// positioning screen. Screens requiring a face first see it detected.
func (d *FakeDisplay) ClickContinue() {
	d.OnRender(func(s display.Screen) {
		if s.Kind != display.KindMessage && s.Kind != display.KindHeadPositioning {
			return
		}
		if s.RequireFace {
			d.Send(display.Input{Kind: display.InputFaceDetected})
		}
		d.Send(display.Input{Kind: display.InputClick, Target: display.TargetContinue})
	})
}

// Screens returns every rendered screen in order.
func (d *FakeDisplay) Screens() []display.Screen {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]display.Screen(nil), d.screens...)
}

// Patches returns every applied patch in order.
func (d *FakeDisplay) Patches() []display.Patch {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]display.Patch(nil), d.patches...)
}

// Kinds returns the kinds of the rendered screens in order.
func (d *FakeDisplay) Kinds() []display.Kind {
	d.mu.Lock()
	defer d.mu.Unlock()
	kinds := make([]display.Kind, len(d.screens))
	for i, s := range d.screens {
		kinds[i] = s.Kind
	}
	return kinds
}

// Count returns how many screens of kind k were rendered.
func (d *FakeDisplay) Count(k display.Kind) int {
	n := 0
	for _, kind := range d.Kinds() {
		if kind == k {
			n++
		}
	}
	return n
}

// FakeAudio implements display.Audio on top of a FakeDisplay, reporting load
// and playback events through the display's input stream.
type FakeAudio struct {
	mu        sync.Mutex
	d         *FakeDisplay
	calls     []string
	playing   bool
	LoadError string

	// EndOnPlay reports audio_ended as soon as playback starts.
	EndOnPlay bool
	// OnPlay runs after Play is recorded.
	OnPlay func()
}

func NewFakeAudio(d *FakeDisplay) *FakeAudio {
	return &FakeAudio{d: d}
}

func (a *FakeAudio) Load(url string) error {
	a.mu.Lock()
	a.calls = append(a.calls, "load:"+url)
	failure := a.LoadError
	a.mu.Unlock()
	if failure != "" {
		a.d.Send(display.Input{Kind: display.InputAudioFailed, URL: url, Error: failure})
		return nil
	}
	a.d.Send(display.Input{Kind: display.InputAudioLoaded, URL: url})
	return nil
}

func (a *FakeAudio) Play() error {
	a.mu.Lock()
	a.calls = append(a.calls, "play")
	a.playing = true
	end := a.EndOnPlay
	hook := a.OnPlay
	a.mu.Unlock()
	if hook != nil {
		hook()
	}
	if end {
		a.d.Send(display.Input{Kind: display.InputAudioEnded})
	}
	return nil
}

func (a *FakeAudio) Stop() error {
	a.mu.Lock()
	a.calls = append(a.calls, "stop")
	a.playing = false
	a.mu.Unlock()
	return nil
}

// Calls returns the recorded audio calls in order.
func (a *FakeAudio) Calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}
