package translate

// Message keys used by the experiment screens.
const (
	InitCameraInstructions = "init_camera_instructions"
	ContinueButton         = "continue_button_label"
	ValidationInstructions = "validation_instructions"
	StartValidationButton  = "start_validation_button_label"
	CalibrationLostTitle   = "calibration_lost_dialog_title"
	CalibrationLostText    = "calibration_lost_dialog_text"
	OKButton               = "ok_button_label"
	MaxRetriesTitle        = "calibration_max_retries_reached_title"
	MaxRetriesText         = "calibration_max_retries_reached_text"
	NotValidatedTitle      = "calibration_not_validated_title"
	NotValidatedText       = "calibration_not_validated_text"
	TrackerFailedText      = "tracker_failed_text"
	StimulusFailedTitle    = "stimulus_failed_title"
	StimulusFailedText     = "stimulus_failed_text"
	PracticeIntro          = "practice_intro"
	ExperimentIntro        = "experiment_intro"
	StartButton            = "start_button_label"
	FinishedTitle          = "experiment_finished_title"
	FinishedText           = "experiment_finished_text"
)

// English is the fallback table; translation files only need to override keys.
var English = map[string]any{
	InitCameraInstructions: `<p>Position your head so that the webcam has a good view of your eyes.</p>
<p>Center your face in the box and look directly towards the camera.</p>
<p>It is important that you try and keep your head reasonably still throughout the experiment, so please take a moment to adjust your setup to be comfortable.</p>
<p>When your face is centered in the box and the box is green, you can click to continue.</p>`,
	ContinueButton:         "Continue",
	ValidationInstructions: "<p>Please look at the dot in the middle of the screen until it disappears. Do not move your head.</p>",
	StartValidationButton:  "Start",
	CalibrationLostTitle:   "Calibration lost",
	CalibrationLostText:    "The eye tracker lost track of your face. Please position your head again; the calibration will be repeated.",
	OKButton:               "OK",
	MaxRetriesTitle:        "Calibration failed",
	MaxRetriesText:         "The calibration could not be validated after {} attempts. The experiment will end now.",
	NotValidatedTitle:      "Calibration not precise enough",
	NotValidatedText:       "The calibration was not precise enough. Please try again.",
	TrackerFailedText: `<p>The experiment cannot continue because the eye tracker failed to start.</p>
<p>This may be because of a technical problem or because you did not grant permission for the page to use your camera.</p>`,
	StimulusFailedTitle: "Stimulus failed to load",
	StimulusFailedText:  "A stimulus file could not be loaded. This trial will be skipped.",
	PracticeIntro:       "<h2>PRACTICE</h2><p>Click the button below to start the practice session.</p>",
	ExperimentIntro:     "<h2>EXPERIMENT</h2><p>Click the button below to start the experiment session.</p>",
	StartButton:         "START",
	FinishedTitle:       "Experiment has finished",
	FinishedText:        "Thanks for your participation. You can now close this window.",
}
