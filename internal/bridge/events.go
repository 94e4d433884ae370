package bridge

import (
	"eyetrack-go/internal/display"
	"eyetrack-go/internal/tracker"

	"go.uber.org/zap"
)

// Event types posted by the browser besides the display input kinds.
const (
	EventGaze           = "gaze"
	EventFaceLost       = "face_lost"
	EventTrackerStarted = "tracker_started"
	EventTrackerFailed  = "tracker_failed"
	EventViewport       = "viewport"
)

// Event is one notification from the browser. Screen is the seq of the render
// command the event was raised on; inputs from an older screen are dropped.
type Event struct {
	Type   string                  `json:"type" binding:"required"`
	Screen int64                   `json:"screen,omitempty"`
	Target string                  `json:"target,omitempty"`
	Key    string                  `json:"key,omitempty"`
	URL    string                  `json:"url,omitempty"`
	Error  string                  `json:"error,omitempty"`
	Boxes  map[string]display.BBox `json:"boxes,omitempty"`

	Samples  []tracker.Sample  `json:"samples,omitempty"`
	Viewport *display.Viewport `json:"viewport,omitempty"`
}

// DispatchResult counts what happened to a batch of events.
type DispatchResult struct {
	Accepted int `json:"accepted"`
	Dropped  int `json:"dropped"`
}

func isInput(kind string) bool {
	switch display.InputKind(kind) {
	case display.InputClick, display.InputKey, display.InputAck,
		display.InputAudioLoaded, display.InputAudioFailed, display.InputAudioEnded,
		display.InputFaceDetected, display.InputFaceMissing:
		return true
	}
	return false
}

// Dispatch routes a batch of browser events in order.
func (b *Bridge) Dispatch(events []Event) DispatchResult {
	var res DispatchResult
	for _, ev := range events {
		if b.dispatch(ev) {
			res.Accepted++
		} else {
			res.Dropped++
		}
	}
	return res
}

func (b *Bridge) dispatch(ev Event) bool {
	b.mu.Lock()
	b.lastSeen = b.Now()
	if b.closed {
		b.mu.Unlock()
		return false
	}
	b.metrics.CountEvent(ev.Type)

	switch {
	case ev.Type == EventGaze:
		subs := make([]func(tracker.Sample), 0, len(b.gaze))
		for _, fn := range b.gaze {
			subs = append(subs, fn)
		}
		b.mu.Unlock()
		for _, s := range ev.Samples {
			for _, fn := range subs {
				fn(s)
			}
		}
		return true

	case ev.Type == EventFaceLost:
		fn := b.faceLost
		b.mu.Unlock()
		if fn == nil {
			return false
		}
		fn()
		return true

	case ev.Type == EventTrackerStarted || ev.Type == EventTrackerFailed:
		defer b.mu.Unlock()
		var err error
		if ev.Type == EventTrackerStarted {
			b.initialized = true
		} else {
			err = tracker.ErrTrackerUnavailable
			b.log.Warn("Browser reported tracker failure", zap.String("error", ev.Error))
		}
		if b.starting == nil {
			return false
		}
		b.starting <- err
		b.starting = nil
		return true

	case ev.Type == EventViewport:
		defer b.mu.Unlock()
		if ev.Viewport == nil || ev.Viewport.Width <= 0 || ev.Viewport.Height <= 0 {
			return false
		}
		b.viewport = *ev.Viewport
		return true

	case isInput(ev.Type):
		defer b.mu.Unlock()
		if ev.Screen != 0 && ev.Screen != b.screen {
			b.log.Debug("Dropping input from stale screen",
				zap.String("type", ev.Type),
				zap.Int64("screen", ev.Screen),
				zap.Int64("current", b.screen),
			)
			return false
		}
		in := display.Input{
			Kind:   display.InputKind(ev.Type),
			Target: ev.Target,
			Key:    ev.Key,
			URL:    ev.URL,
			Error:  ev.Error,
			Boxes:  ev.Boxes,
		}
		select {
		case b.inputs <- in:
			return true
		default:
			b.log.Warn("Input buffer full, dropping input", zap.String("type", ev.Type))
			return false
		}

	default:
		b.mu.Unlock()
		b.log.Debug("Unknown browser event", zap.String("type", ev.Type))
		return false
	}
}
