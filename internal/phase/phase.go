// Package phase defines the outcome every experiment step reports when it
// hands control back to the orchestrator.
package phase

type Status int

const (
	// Completed means the step ran to its normal end.
	Completed Status = iota
	// Skipped means the step decided it had nothing to do.
	Skipped
	// Interrupted means the tracker lost the participant's face.
	Interrupted
	// Failed is a recoverable failure such as an imprecise validation.
	Failed
	// Terminated ends the whole experiment.
	Terminated
	// TrackerFailed means the tracker could not be started.
	TrackerFailed
	// StimulusFailed means a stimulus file could not be loaded.
	StimulusFailed
)

func (s Status) String() string {
	switch s {
	case Completed:
		return "completed"
	case Skipped:
		return "skipped"
	case Interrupted:
		return "interrupted"
	case Failed:
		return "failed"
	case Terminated:
		return "terminated"
	case TrackerFailed:
		return "tracker_failed"
	case StimulusFailed:
		return "stimulus_failed"
	default:
		return "unknown"
	}
}

// Result is what a step reports upward. Data is the step's result record and
// may be nil.
type Result struct {
	Status Status
	Data   map[string]any
}

func Done(data map[string]any) Result {
	return Result{Status: Completed, Data: data}
}

func Skip(data map[string]any) Result {
	return Result{Status: Skipped, Data: data}
}

// Lost is the result of a step cut short by a face-lost event.
func Lost(data map[string]any) Result {
	if data == nil {
		data = make(map[string]any, 1)
	}
	data["calibration_lost"] = true
	return Result{Status: Interrupted, Data: data}
}
