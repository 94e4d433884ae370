package trial

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"eyetrack-go/internal/calibration"
	"eyetrack-go/internal/display"
	"eyetrack-go/internal/options"
	"eyetrack-go/internal/phase"
	"eyetrack-go/internal/stimuli"
	"eyetrack-go/internal/testutil"
	"eyetrack-go/internal/translate"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSelectLayout(t *testing.T) {
	for n := 1; n <= 4; n++ {
		layout, err := SelectLayout(n)
		require.NoError(t, err)
		require.Len(t, layout.Slots, n)
		for i, slot := range layout.Slots {
			assert.Equal(t, "picture"+string(rune('1'+i)), slot.Field)
			assert.LessOrEqual(t, slot.Offset+slot.Columns, 12)
		}
	}

	three, _ := SelectLayout(3)
	assert.True(t, three.Bordered)
	assert.Equal(t, 2, three.Rows)

	for _, n := range []int{0, 5} {
		_, err := SelectLayout(n)
		assert.ErrorIs(t, err, ErrInvalidPictureCount)
	}
}

func TestShouldEnd(t *testing.T) {
	tests := []struct {
		name      string
		policy    EndPolicy
		ended     bool
		responses int
		want      bool
	}{
		{name: "nothing happened", policy: EndPolicy{TrialEndsAfterAudio: true, ResponseEndsTrial: true}},
		{name: "audio ended, trial ends with audio", policy: EndPolicy{TrialEndsAfterAudio: true}, ended: true, want: true},
		{name: "audio ended, no response", policy: EndPolicy{ResponseEndsTrial: true}, ended: true},
		{name: "response ends trial", policy: EndPolicy{ResponseEndsTrial: true}, responses: 1, want: true},
		{name: "response while playing", policy: EndPolicy{}, responses: 2},
		{name: "response and audio ended", policy: EndPolicy{}, ended: true, responses: 1, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.ShouldEnd(tt.ended, tt.responses))
		})
	}
}

type fixture struct {
	tracker *testutil.FakeTracker
	display *testutil.FakeDisplay
	audio   *testutil.FakeAudio
	state   *calibration.State
	runner  *Runner
	epoch   time.Time
}

func newFixture() *fixture {
	f := &fixture{
		tracker: testutil.NewFakeTracker(),
		display: testutil.NewFakeDisplay(display.Viewport{Width: 1200, Height: 800}),
		state:   calibration.NewState(),
		epoch:   time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	f.audio = testutil.NewFakeAudio(f.display)
	f.state.MarkCalibrated(f.epoch)
	f.runner = NewRunner(f.tracker, f.display, f.audio, f.state, translate.Default(), zap.NewNop())
	f.runner.Epoch = f.epoch

	// start at 10s after the epoch, every later reading 1.5s after that
	calls := 0
	f.runner.Now = func() time.Time {
		calls++
		if calls == 1 {
			return f.epoch.Add(10 * time.Second)
		}
		return f.epoch.Add(11500 * time.Millisecond)
	}
	return f
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func parseRow(t *testing.T, data string) stimuli.Row {
	t.Helper()
	rows, err := stimuli.Parse(strings.NewReader(data), nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	return rows[0]
}

func defaultParams(row stimuli.Row) Params {
	return NewParams(options.Defaults(), 7, row, "")
}

func click(target string) display.Input {
	return display.Input{Kind: display.InputClick, Target: target}
}

func (f *fixture) clickFixation() {
	f.display.OnRender(func(s display.Screen) {
		if s.Kind == display.KindFixation {
			f.display.Send(click(display.TargetFixation))
		}
	})
}

func TestRunResponseEndsTrialBeforeAudioEnds(t *testing.T) {
	f := newFixture()
	f.clickFixation()
	f.audio.OnPlay = func() {
		f.display.Send(display.Input{
			Kind:   display.InputClick,
			Target: "picture2",
			Boxes: map[string]display.BBox{
				"picture1": {Top: 10.126, Right: 410, Bottom: 310, Left: 10},
				"picture2": {Top: 10, Right: 1190, Bottom: 310, Left: 790.004},
			},
		})
	}

	row := parseRow(t, "picture1,picture2,audio,correct_answer,block\nfoo.jpg,baz.jpg,bar.mp3,picture1,2\n")
	res, err := f.runner.Run(testContext(t), defaultParams(row))
	require.NoError(t, err)
	require.Equal(t, phase.Completed, res.Status)

	data := res.Data
	assert.Equal(t, 10.0, data["start_time"])
	assert.Equal(t, "bar.mp3", data["audio"])
	assert.Equal(t, "foo.jpg", data["picture1_name"])
	assert.Equal(t, "baz.jpg", data["picture2_name"])
	assert.Equal(t, display.BBox{Top: 10.13, Right: 410, Bottom: 310, Left: 10}, data["picture1_bbox"])
	assert.Equal(t, display.BBox{Top: 10, Right: 1190, Bottom: 310, Left: 790}, data["picture2_bbox"])

	responses := data["responses"].([]Response)
	require.Len(t, responses, 1)
	assert.Equal(t, "picture2", responses[0].Response)
	assert.Equal(t, 1.5, responses[0].Time)
	require.NotNil(t, responses[0].IsCorrect)
	assert.False(t, *responses[0].IsCorrect)

	assert.Equal(t, []string{"load:./stimuli/bar.mp3", "play", "stop"}, f.audio.Calls())
	assert.Equal(t, []display.Kind{display.KindStimulus, display.KindFixation, display.KindBlank}, f.display.Kinds())
	assert.False(t, f.tracker.HasFaceLostListener())

	stim := f.display.Screens()[0]
	require.NotNil(t, stim.Layout)
	assert.Equal(t, "side_by_side", stim.Layout.Name)
	assert.Equal(t, "./stimuli/foo.jpg", stim.Pictures["picture1"])
	assert.Equal(t, ".response", stim.ResponseSelector)
}

func TestRunRecordKeepsSourceFields(t *testing.T) {
	f := newFixture()
	f.clickFixation()
	f.audio.OnPlay = func() { f.display.Send(click("picture1")) }

	row := parseRow(t, "picture1,audio,correct_answer\nfoo.jpg,bar.mp3,picture1\n")
	res, err := f.runner.Run(testContext(t), defaultParams(row))
	require.NoError(t, err)

	raw, err := json.Marshal(res.Data)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, "./stimuli/foo.jpg", decoded["picture1"])
	assert.Equal(t, "picture1", decoded["correct_answer"])
	assert.Equal(t, "foo.jpg", decoded["picture1_name"])
	assert.Equal(t, "bar.mp3", decoded["audio"])

	responses := decoded["responses"].([]any)
	require.Len(t, responses, 1)
	first := responses[0].(map[string]any)
	assert.Equal(t, "picture1", first["response"])
	assert.Equal(t, true, first["is_correct"])
}

func TestRunEndsWhenAudioEndsAfterResponse(t *testing.T) {
	f := newFixture()
	f.clickFixation()
	f.audio.OnPlay = func() {
		f.display.Send(click("picture1"), click("picture2"), display.Input{Kind: display.InputAudioEnded})
	}

	p := defaultParams(twoPictureRow())
	p.End = EndPolicy{}
	res, err := f.runner.Run(testContext(t), p)
	require.NoError(t, err)
	require.Equal(t, phase.Completed, res.Status)

	responses := res.Data["responses"].([]Response)
	require.Len(t, responses, 1, "single response ignores the second click")
	assert.Equal(t, "picture1", responses[0].Response)
	assert.Nil(t, responses[0].IsCorrect)
}

func TestRunMultipleResponses(t *testing.T) {
	f := newFixture()
	f.clickFixation()
	f.audio.OnPlay = func() {
		f.display.Send(click("picture1"), click("picture2"), display.Input{Kind: display.InputAudioEnded})
	}

	p := defaultParams(twoPictureRow())
	p.End = EndPolicy{}
	p.SingleResponse = false
	res, err := f.runner.Run(testContext(t), p)
	require.NoError(t, err)
	assert.Len(t, res.Data["responses"].([]Response), 2)
}

func TestRunResponsesWaitForAudio(t *testing.T) {
	f := newFixture()
	f.clickFixation()
	f.audio.OnPlay = func() {
		f.display.Send(click("picture1"), display.Input{Kind: display.InputAudioEnded})
	}
	f.display.OnUpdate(func(p display.Patch) {
		if p.ResponsesEnabled != nil && *p.ResponsesEnabled {
			f.display.Send(click("picture2"))
		}
	})

	p := defaultParams(twoPictureRow())
	p.ResponseAllowedWhilePlaying = false
	res, err := f.runner.Run(testContext(t), p)
	require.NoError(t, err)

	responses := res.Data["responses"].([]Response)
	require.Len(t, responses, 1)
	assert.Equal(t, "picture2", responses[0].Response)
}

func TestRunTrialEndsAfterAudio(t *testing.T) {
	f := newFixture()
	f.audio.EndOnPlay = true

	p := defaultParams(twoPictureRow())
	p.End = EndPolicy{TrialEndsAfterAudio: true}
	p.CenterGazeAfterTrial = false
	res, err := f.runner.Run(testContext(t), p)
	require.NoError(t, err)
	require.Equal(t, phase.Completed, res.Status)
	assert.Empty(t, res.Data["responses"])
	assert.Equal(t, []display.Kind{display.KindStimulus, display.KindBlank}, f.display.Kinds())
}

func TestRunKeyboardResponses(t *testing.T) {
	f := newFixture()
	f.clickFixation()
	f.audio.OnPlay = func() {
		f.display.Send(
			display.Input{Kind: display.InputKey, Key: "x"},
			display.Input{Kind: display.InputKey, Key: "j"},
		)
	}

	p := defaultParams(twoPictureRow())
	p.ResponseKeys = []string{"f", "j"}
	res, err := f.runner.Run(testContext(t), p)
	require.NoError(t, err)

	responses := res.Data["responses"].([]Response)
	require.Len(t, responses, 1)
	assert.Equal(t, "j", responses[0].Response)
}

func TestRunPicturesRevealed(t *testing.T) {
	f := newFixture()
	f.clickFixation()
	f.audio.OnPlay = func() { f.display.Send(click("picture1")) }

	p := defaultParams(twoPictureRow())
	p.PicturesDelay = 10 * time.Millisecond
	p.AudioDelay = 30 * time.Millisecond
	_, err := f.runner.Run(testContext(t), p)
	require.NoError(t, err)

	var shown bool
	for _, patch := range f.display.Patches() {
		shown = shown || patch.ShowPictures
	}
	assert.True(t, shown)
}

func TestRunFaceLostCancelsTrial(t *testing.T) {
	f := newFixture()
	f.display.AckModals()
	f.audio.OnPlay = func() { f.tracker.LoseFace() }

	res, err := f.runner.Run(testContext(t), defaultParams(twoPictureRow()))
	require.NoError(t, err)
	require.Equal(t, phase.Interrupted, res.Status)
	assert.Equal(t, map[string]any{
		"calibration_lost": true,
		"trial_id":         7,
		"start_time":       10.0,
	}, res.Data)

	assert.False(t, f.state.IsCalibrated())
	assert.False(t, f.tracker.HasFaceLostListener())
	assert.Equal(t, []string{"load:./stimuli/b.mp3", "play", "stop"}, f.audio.Calls())
	assert.Equal(t, []display.Kind{display.KindStimulus, display.KindModal}, f.display.Kinds())
}

func TestRunFaceLostDuringFixation(t *testing.T) {
	f := newFixture()
	f.display.AckModals()
	f.audio.OnPlay = func() { f.display.Send(click("picture1")) }
	f.display.OnRender(func(s display.Screen) {
		if s.Kind == display.KindFixation {
			f.tracker.LoseFace()
		}
	})

	res, err := f.runner.Run(testContext(t), defaultParams(twoPictureRow()))
	require.NoError(t, err)
	assert.Equal(t, phase.Interrupted, res.Status)
	assert.False(t, f.state.IsCalibrated())
}

func TestRunWithoutCalibration(t *testing.T) {
	f := newFixture()
	f.state.Invalidate()

	res, err := f.runner.Run(testContext(t), defaultParams(twoPictureRow()))
	require.NoError(t, err)
	assert.Equal(t, phase.Interrupted, res.Status)
	assert.Equal(t, true, res.Data["calibration_lost"])
	assert.Empty(t, f.display.Screens())
	assert.Empty(t, f.audio.Calls())
}

func TestRunAudioLoadFailure(t *testing.T) {
	f := newFixture()
	f.display.AckModals()
	f.audio.LoadError = "decode error"

	res, err := f.runner.Run(testContext(t), defaultParams(twoPictureRow()))
	require.NoError(t, err)
	assert.Equal(t, phase.StimulusFailed, res.Status)
	assert.Equal(t, "decode error", res.Data["stimulus_error"])
	assert.Equal(t, "b.mp3", res.Data["audio"])
	assert.True(t, f.state.IsCalibrated())
	assert.Equal(t, []display.Kind{display.KindStimulus, display.KindModal}, f.display.Kinds())
}

func TestRunInvalidPictureCount(t *testing.T) {
	f := newFixture()
	row := stimuli.Row{"audio": "./stimuli/a.mp3"}
	_, err := f.runner.Run(testContext(t), defaultParams(row))
	assert.ErrorIs(t, err, ErrInvalidPictureCount)
}

func TestRunCustomHTML(t *testing.T) {
	f := newFixture()
	f.clickFixation()
	f.audio.OnPlay = func() { f.display.Send(click("left")) }

	p := defaultParams(stimuli.Row{"audio": "./stimuli/a.mp3"})
	p.CustomHTML = `<div class="response" data-response="left"></div>`
	res, err := f.runner.Run(testContext(t), p)
	require.NoError(t, err)

	stim := f.display.Screens()[0]
	assert.Nil(t, stim.Layout)
	assert.Equal(t, p.CustomHTML, stim.CustomHTML)
	assert.Equal(t, "left", res.Data["responses"].([]Response)[0].Response)
}

// twoPictureRow is a two-picture row without a correct answer.
func twoPictureRow() stimuli.Row {
	return stimuli.Row{
		"picture1": "./stimuli/a.jpg",
		"picture2": "./stimuli/c.jpg",
		"audio":    "./stimuli/b.mp3",
	}
}
