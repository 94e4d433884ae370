package calibration

import (
	"context"

	"eyetrack-go/internal/display"
	"eyetrack-go/internal/tracker"
	"eyetrack-go/internal/translate"
)

// RecoverFaceLost is the shared face-lost path: the listener is cleared so it
// cannot fire twice, the calibration is invalidated, and the participant has
// to acknowledge a notice before the caller returns.
func RecoverFaceLost(ctx context.Context, d display.Display, st *State, t *translate.Translator, watch *tracker.FaceLostWatch) error {
	watch.Stop()
	st.Invalidate()
	return display.Alert(ctx, d,
		t.T(translate.CalibrationLostTitle),
		t.T(translate.CalibrationLostText),
		t.T(translate.OKButton),
	)
}
