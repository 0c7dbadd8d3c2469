package domain

import (
	"fmt"
	"strings"
)

// FailurePolicy decides what a macro does after a failed step.
type FailurePolicy string

const (
	PolicyAbort    FailurePolicy = "abort"
	PolicyContinue FailurePolicy = "continue"
)

// Macro is a named, ordered sequence of intents run as one logical operation.
type Macro struct {
	Name        string        `json:"name" yaml:"name"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	OnError     FailurePolicy `json:"on_error,omitempty" yaml:"on_error,omitempty"`
	Steps       []Intent      `json:"steps" yaml:"steps"`
}

// StepState is the per-step outcome recorded in a Report.
type StepState string

const (
	StepOK           StepState = "ok"
	StepFailed       StepState = "failed"
	StepNotAttempted StepState = "not_attempted"
)

// StepOutcome records what happened to one macro step.
type StepOutcome struct {
	Index      int       `json:"index"` // 1-based
	Capability string    `json:"capability"`
	State      StepState `json:"state"`
	Result     *Result   `json:"result,omitempty"`
}

// Report is the aggregated outcome of one macro run.
type Report struct {
	Macro        string        `json:"macro"`
	Steps        []StepOutcome `json:"steps"`
	Completed    int           `json:"completed"`
	FailedStep   int           `json:"failed_step,omitempty"` // 1-based index of the first failure, 0 if none
	NotAttempted int           `json:"not_attempted"`
	Cancelled    bool          `json:"cancelled,omitempty"`
}

func (r *Report) OK() bool {
	return r.FailedStep == 0 && !r.Cancelled && r.NotAttempted == 0
}

// Summary renders the report as one sentence suitable for speech.
func (r *Report) Summary() string {
	total := len(r.Steps)
	if r.FailedStep > 0 {
		step := r.Steps[r.FailedStep-1]
		reason := "it failed"
		if step.Result != nil && step.Result.Message != "" {
			reason = strings.TrimSuffix(step.Result.Message, ".")
		}
		if r.NotAttempted > 0 {
			return fmt.Sprintf("Macro %q stopped at step %d (%s): %s. %s completed, %s not attempted.",
				r.Macro, r.FailedStep, step.Capability, reason,
				plural(r.Completed, "step"), plural(r.NotAttempted, "step"))
		}
		return fmt.Sprintf("Macro %q finished with errors. Step %d (%s) failed first: %s. %d of %d steps completed.",
			r.Macro, r.FailedStep, step.Capability, reason, r.Completed, total)
	}
	if r.Cancelled {
		return fmt.Sprintf("Macro %q was cancelled. %s completed, %s not attempted.",
			r.Macro, plural(r.Completed, "step"), plural(r.NotAttempted, "step"))
	}
	return fmt.Sprintf("Macro %q finished: all %s completed.", r.Macro, plural(total, "step"))
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
