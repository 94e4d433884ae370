// Package bridge presents the participant's browser to a session as its
// tracker, display and audio player. Calls become queued commands the browser
// long-polls for. Events the browser posts are routed back to the session.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"eyetrack-go/internal/display"
	"eyetrack-go/internal/metrics"
	"eyetrack-go/internal/tracker"

	"go.uber.org/zap"
)

// ErrClosed is returned by every call once the session is gone.
var ErrClosed = errors.New("bridge closed")

// DefaultViewport is assumed until the browser reports its window size.
var DefaultViewport = display.Viewport{Width: 1280, Height: 720}

const (
	// MaxQueuedCommands bounds the replay queue; older commands are dropped.
	MaxQueuedCommands = 1024
	inputBuffer       = 256
)

// Command ops understood by the browser renderer.
const (
	OpRender               = "render"
	OpUpdate               = "update"
	OpTrackerStart         = "tracker.start"
	OpTrackerPause         = "tracker.pause"
	OpTrackerResume        = "tracker.resume"
	OpTrackerFaceLost      = "tracker.face_lost"
	OpTrackerSampling      = "tracker.sampling"
	OpTrackerCalibrate     = "tracker.calibrate_point"
	OpTrackerMouse         = "tracker.mouse_calibration"
	OpTrackerVideo         = "tracker.video"
	OpTrackerHidePredicted = "tracker.hide_predictions"
	OpAudioLoad            = "audio.load"
	OpAudioPlay            = "audio.play"
	OpAudioStop            = "audio.stop"
)

// Command is one instruction for the browser. Seq increases by one per
// command; a render's Seq also identifies the screen it shows.
type Command struct {
	Seq    int64           `json:"seq"`
	Op     string          `json:"op"`
	Screen *display.Screen `json:"screen,omitempty"`
	Patch  *display.Patch  `json:"patch,omitempty"`
	Args   map[string]any  `json:"args,omitempty"`
}

// Bridge implements tracker.Tracker, display.Display and display.Audio for
// one remote browser.
//
// Lock ordering: callbacks (gaze, face lost) are always invoked with mu
// released.
type Bridge struct {
	log     *zap.Logger
	metrics *metrics.Collectors

	mu       sync.Mutex
	seq      int64
	commands []Command
	notify   chan struct{} // closed on every enqueue, then recreated
	screen   int64
	viewport display.Viewport
	lastSeen time.Time
	closed   bool

	initialized bool
	starting    chan error
	faceLost    func()
	gaze        map[int]func(tracker.Sample)
	nextGaze    int

	inputs chan display.Input

	Now func() time.Time
}

func New(log *zap.Logger, m *metrics.Collectors) *Bridge {
	return &Bridge{
		log:      log,
		metrics:  m,
		notify:   make(chan struct{}),
		viewport: DefaultViewport,
		lastSeen: time.Now(),
		gaze:     make(map[int]func(tracker.Sample)),
		inputs:   make(chan display.Input, inputBuffer),
		Now:      time.Now,
	}
}

// enqueue appends a command and wakes the pollers. MUST be called with mu held.
func (b *Bridge) enqueue(cmd Command) (int64, error) {
	if b.closed {
		return 0, ErrClosed
	}
	b.seq++
	cmd.Seq = b.seq
	b.commands = append(b.commands, cmd)
	if len(b.commands) > MaxQueuedCommands {
		b.commands = b.commands[len(b.commands)-MaxQueuedCommands:]
	}
	close(b.notify)
	b.notify = make(chan struct{})
	b.metrics.CountCommand(cmd.Op)
	return cmd.Seq, nil
}

func (b *Bridge) send(op string, args map[string]any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := b.enqueue(Command{Op: op, Args: args})
	return err
}

// Poll returns the commands queued after seq after, waiting up to wait for
// the first one. An empty result means the wait expired.
func (b *Bridge) Poll(ctx context.Context, after int64, wait time.Duration) ([]Command, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		b.mu.Lock()
		b.lastSeen = b.Now()
		cmds := b.since(after)
		notify := b.notify
		closed := b.closed
		b.mu.Unlock()

		if len(cmds) > 0 {
			return cmds, nil
		}
		if closed {
			return nil, ErrClosed
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, nil
		case <-notify:
		}
	}
}

// since MUST be called with mu held.
func (b *Bridge) since(after int64) []Command {
	var out []Command
	for _, cmd := range b.commands {
		if cmd.Seq > after {
			out = append(out, cmd)
		}
	}
	return out
}

// LastSeen is the last time the browser polled or posted events.
func (b *Bridge) LastSeen() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastSeen
}

// Close fails pending and future calls and ends the input stream. Safe to call
// multiple times.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.notify)
	close(b.inputs)
	if b.starting != nil {
		b.starting <- ErrClosed
		b.starting = nil
	}
}

// Display

// Render replaces the screen. Inputs still buffered from the previous screen
// are discarded so they cannot answer the new one.
func (b *Bridge) Render(s display.Screen) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	seq, err := b.enqueue(Command{Op: OpRender, Screen: &s})
	if err != nil {
		return err
	}
	b.screen = seq
	b.drainInputs()
	return nil
}

// drainInputs empties the input buffer without blocking. mu must be held.
func (b *Bridge) drainInputs() {
	for {
		select {
		case in, ok := <-b.inputs:
			if !ok {
				return
			}
			b.log.Debug("Discarding input from previous screen", zap.String("type", string(in.Kind)))
		default:
			return
		}
	}
}

// Update patches the current screen; inputs raised on it stay valid.
func (b *Bridge) Update(p display.Patch) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := b.enqueue(Command{Op: OpUpdate, Patch: &p})
	return err
}

func (b *Bridge) Inputs() <-chan display.Input { return b.inputs }

func (b *Bridge) Viewport() display.Viewport {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.viewport
}

// Audio

func (b *Bridge) Load(url string) error {
	return b.send(OpAudioLoad, map[string]any{"url": url})
}

func (b *Bridge) Play() error { return b.send(OpAudioPlay, nil) }
func (b *Bridge) Stop() error { return b.send(OpAudioStop, nil) }

// Tracker

// Start asks the browser to start the gaze engine and waits for it to report
// success or failure.
func (b *Bridge) Start(ctx context.Context) error {
	ch := make(chan error, 1)
	b.mu.Lock()
	if b.initialized {
		b.mu.Unlock()
		return nil
	}
	if _, err := b.enqueue(Command{Op: OpTrackerStart}); err != nil {
		b.mu.Unlock()
		return err
	}
	b.starting = ch
	b.mu.Unlock()

	select {
	case <-ctx.Done():
		b.mu.Lock()
		if b.starting == ch {
			b.starting = nil
		}
		b.mu.Unlock()
		return ctx.Err()
	case err := <-ch:
		return err
	}
}

func (b *Bridge) IsInitialized() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initialized
}

func (b *Bridge) Pause() error  { return b.send(OpTrackerPause, nil) }
func (b *Bridge) Resume() error { return b.send(OpTrackerResume, nil) }

func (b *Bridge) SetFaceLostListener(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.faceLost = fn
	if _, err := b.enqueue(Command{Op: OpTrackerFaceLost, Args: map[string]any{"enabled": true}}); err != nil {
		b.log.Debug("Face-lost listener set on closed bridge")
	}
}

func (b *Bridge) ClearFaceLostListener() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.faceLost = nil
	if _, err := b.enqueue(Command{Op: OpTrackerFaceLost, Args: map[string]any{"enabled": false}}); err != nil {
		b.log.Debug("Face-lost listener cleared on closed bridge")
	}
}

func (b *Bridge) OnGazeUpdate(fn func(tracker.Sample)) func() {
	b.mu.Lock()
	id := b.nextGaze
	b.nextGaze++
	b.gaze[id] = fn
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.gaze, id)
		b.mu.Unlock()
	}
}

func (b *Bridge) StartSampleInterval() error {
	return b.send(OpTrackerSampling, map[string]any{"enabled": true})
}

func (b *Bridge) StopSampleInterval() error {
	return b.send(OpTrackerSampling, map[string]any{"enabled": false})
}

// CalibratePoint leaves the per-frame loop to the browser; a command per
// frame would arrive in poll-sized bursts.
func (b *Bridge) CalibratePoint(x, y float64, delay, duration time.Duration) error {
	return b.send(OpTrackerCalibrate, map[string]any{
		"x":           x,
		"y":           y,
		"delay_ms":    delay.Milliseconds(),
		"duration_ms": duration.Milliseconds(),
	})
}

func (b *Bridge) StartMouseCalibration() error {
	return b.send(OpTrackerMouse, map[string]any{"enabled": true})
}

func (b *Bridge) StopMouseCalibration() error {
	return b.send(OpTrackerMouse, map[string]any{"enabled": false})
}

func (b *Bridge) ShowVideo() error {
	return b.send(OpTrackerVideo, map[string]any{"visible": true})
}

func (b *Bridge) HideVideo() error {
	return b.send(OpTrackerVideo, map[string]any{"visible": false})
}

func (b *Bridge) HidePredictions() error { return b.send(OpTrackerHidePredicted, nil) }

func (b *Bridge) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return fmt.Sprintf("bridge(seq=%d, screen=%d)", b.seq, b.screen)
}
