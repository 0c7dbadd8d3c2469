package macro

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"jarvis/internal/domain"
	"jarvis/internal/history"
	"jarvis/internal/metrics"
	"jarvis/internal/tool"
)

// ErrNestedMacro is returned when a macro step tries to run another macro.
var ErrNestedMacro = errors.New("macros cannot run other macros")

// Dispatcher runs one intent to a terminal result.
type Dispatcher interface {
	Dispatch(ctx context.Context, in domain.Intent) domain.Result
}

// Recorder journals macro reports.
type Recorder interface {
	RecordMacro(ctx context.Context, r *domain.Report) error
}

type SequencerConfig struct {
	Book       *Book
	Dispatcher Dispatcher
	Recorder   Recorder
	Metrics    *metrics.MetricsCollector
	Logger     *slog.Logger
}

// Sequencer runs macros step by step through the dispatcher.
type Sequencer struct {
	book       *Book
	dispatcher Dispatcher
	recorder   Recorder
	metrics    *metrics.MetricsCollector
	logger     *slog.Logger
}

func NewSequencer(cfg SequencerConfig) *Sequencer {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Collector
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	book := cfg.Book
	if book == nil {
		book = NewBook()
	}
	return &Sequencer{
		book:       book,
		dispatcher: cfg.Dispatcher,
		recorder:   cfg.Recorder,
		metrics:    m,
		logger:     logger,
	}
}

func (s *Sequencer) Book() *Book { return s.book }

type runKey struct{}

// Run executes the macro called name. Steps run strictly in order; a failed
// step stops the run unless the macro's policy is continue. Once ctx is
// cancelled the step in flight finishes and no further step starts.
func (s *Sequencer) Run(ctx context.Context, name string) (*domain.Report, error) {
	if outer, ok := ctx.Value(runKey{}).(string); ok {
		return nil, fmt.Errorf("%w: %s was started from %s", ErrNestedMacro, NormalizeName(name), outer)
	}
	m, err := s.book.Get(name)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	runCtx := context.WithValue(ctx, runKey{}, m.Name)
	runCtx = history.WithMacroRun(runCtx, runID)
	s.logger.Info("running macro", "macro", m.Name, "run", runID, "steps", len(m.Steps), "on_error", m.OnError)

	report := &domain.Report{
		Macro: m.Name,
		Steps: make([]domain.StepOutcome, len(m.Steps)),
	}
	for i, step := range m.Steps {
		report.Steps[i] = domain.StepOutcome{
			Index:      i + 1,
			Capability: tool.NormalizeName(step.Capability),
			State:      domain.StepNotAttempted,
		}
	}

	stopped := false
	for i, step := range m.Steps {
		if stopped {
			break
		}
		if ctx.Err() != nil {
			report.Cancelled = true
			break
		}

		res := s.dispatcher.Dispatch(context.WithoutCancel(runCtx), step)
		outcome := &report.Steps[i]
		outcome.Result = &res
		if res.OK() {
			outcome.State = domain.StepOK
			report.Completed++
			continue
		}

		outcome.State = domain.StepFailed
		if report.FailedStep == 0 {
			report.FailedStep = i + 1
		}
		s.logger.Warn("macro step failed", "macro", m.Name, "step", i+1,
			"capability", res.Capability, "status", res.Status, "message", res.Message)
		if m.OnError != domain.PolicyContinue {
			stopped = true
		}
	}
	for _, o := range report.Steps {
		if o.State == domain.StepNotAttempted {
			report.NotAttempted++
		}
	}

	outcome := "ok"
	switch {
	case report.Cancelled:
		outcome = "cancelled"
	case report.FailedStep > 0:
		outcome = "failed"
	}
	s.metrics.MacroRuns(outcome).Inc()
	s.logger.Info("macro finished", "macro", m.Name, "run", runID, "outcome", outcome,
		"completed", report.Completed, "failed_step", report.FailedStep, "not_attempted", report.NotAttempted)

	if s.recorder != nil {
		if err := s.recorder.RecordMacro(context.WithoutCancel(ctx), report); err != nil {
			s.logger.Warn("journal write failed", "macro", m.Name, "error", err)
		}
	}
	return report, nil
}

// ReportError carries an unsuccessful report through the run_macro handler.
type ReportError struct {
	Report *domain.Report
}

func (e *ReportError) Error() string {
	return e.Report.Summary()
}

// Handler exposes the sequencer as the run_macro capability.
func (s *Sequencer) Handler() domain.Handler {
	return func(ctx context.Context, args domain.Args) (domain.Payload, error) {
		report, err := s.Run(ctx, args.String("macro_name"))
		if err != nil {
			return domain.Payload{}, err
		}
		if !report.OK() {
			return domain.Payload{}, &ReportError{Report: report}
		}
		return domain.Payload{
			Message: report.Summary(),
			Data:    map[string]any{"macro": report.Macro, "completed": report.Completed},
		}, nil
	}
}
