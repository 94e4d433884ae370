package options

import (
	"testing"

	"eyetrack-go/internal/display"
	"eyetrack-go/internal/tracker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	opts := Defaults()
	require.NoError(t, opts.Validate())

	assert.Len(t, opts.CalibrationPoints, 15)
	assert.Equal(t, tracker.ModeClick, opts.CalibrationMode)
	assert.Equal(t, 5, opts.ClicksPerPoint)
	assert.Equal(t, 3, opts.MaximumTries)
	assert.Equal(t, float64(60), opts.MinimumCalibrationPrecision)
	require.NotNil(t, opts.RecalibrateAfterNSeconds)
	assert.Equal(t, float64(300), *opts.RecalibrateAfterNSeconds)
	require.NotNil(t, opts.RecalibrateAfterNTrials)
	assert.Equal(t, 10, *opts.RecalibrateAfterNTrials)
	assert.True(t, opts.CenterGazeAfterTrial)
	assert.True(t, opts.ResponseAllowedWhilePlaying)
	assert.Empty(t, opts.ResponseKeys)
}

func TestMerge(t *testing.T) {
	t.Run("explicit keys win", func(t *testing.T) {
		merged, err := Merge(Defaults(), map[string]any{
			"calibration_mode":      "view",
			"repetitions_per_point": 2,
			"response_keys":         []string{"f", "j"},
		})
		require.NoError(t, err)
		assert.Equal(t, tracker.ModeView, merged.CalibrationMode)
		assert.Equal(t, 2, merged.RepetitionsPerPoint)
		assert.Equal(t, []string{"f", "j"}, merged.ResponseKeys)
		// untouched keys keep their defaults
		assert.Equal(t, 5, merged.ClicksPerPoint)
		assert.Equal(t, 5000, merged.ValidationDuration)
	})

	t.Run("null disables a threshold", func(t *testing.T) {
		merged, err := Merge(Defaults(), map[string]any{
			"recalibrate_after_n_trials": nil,
		})
		require.NoError(t, err)
		assert.Nil(t, merged.RecalibrateAfterNTrials)
		assert.NotNil(t, merged.RecalibrateAfterNSeconds)
	})

	t.Run("base is not modified", func(t *testing.T) {
		base := Defaults()
		_, err := Merge(base, map[string]any{"recalibrate_after_n_seconds": 30})
		require.NoError(t, err)
		assert.Equal(t, float64(300), *base.RecalibrateAfterNSeconds)
	})

	t.Run("calibration points as pairs and mappings", func(t *testing.T) {
		merged, err := Merge(Defaults(), map[string]any{
			"calibration_points": []any{
				[]any{10, 20},
				map[string]any{"x": 50, "y": 50},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, Points{{X: 10, Y: 20}, {X: 50, Y: 50}}, merged.CalibrationPoints)
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := Merge(Defaults(), map[string]any{"calibration_mood": "click"})
		assert.Error(t, err)
	})

	t.Run("invalid value", func(t *testing.T) {
		_, err := Merge(Defaults(), map[string]any{"calibration_mode": "stare"})
		assert.Error(t, err)
	})

	t.Run("empty overrides", func(t *testing.T) {
		merged, err := Merge(Defaults(), nil)
		require.NoError(t, err)
		assert.Equal(t, Defaults(), merged)
	})
}

func TestPointsRejectsBadPairs(t *testing.T) {
	_, err := Merge(Defaults(), map[string]any{
		"calibration_points": []any{[]any{1, 2, 3}},
	})
	assert.Error(t, err)
}

func TestDurations(t *testing.T) {
	opts := Defaults()
	opts.TimeToSaccade = 250
	assert.Equal(t, "250ms", opts.SaccadeDelay().String())
	assert.Equal(t, display.Point{X: 5, Y: 5}, opts.CalibrationPoints[0])
}
