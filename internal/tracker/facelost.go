package tracker

import "sync"

// FaceLostWatch turns the tracker's face-lost callback into a channel so that a
// phase can select on it alongside its own timers and inputs.
type FaceLostWatch struct {
	tr   Tracker
	ch   chan struct{}
	once sync.Once
}

// WatchFaceLost registers a face-lost listener on tr. Callers must Stop the watch
// before leaving their phase.
func WatchFaceLost(tr Tracker) *FaceLostWatch {
	w := &FaceLostWatch{tr: tr, ch: make(chan struct{}, 1)}
	tr.SetFaceLostListener(func() {
		select {
		case w.ch <- struct{}{}:
		default:
		}
	})
	return w
}

// C fires at most once per pending face-lost event.
func (w *FaceLostWatch) C() <-chan struct{} {
	return w.ch
}

// Fired reports, without blocking, whether a face-lost event is pending.
func (w *FaceLostWatch) Fired() bool {
	select {
	case <-w.ch:
		return true
	default:
		return false
	}
}

// Stop clears the listener. It is safe to call more than once.
func (w *FaceLostWatch) Stop() {
	w.once.Do(w.tr.ClearFaceLostListener)
}
