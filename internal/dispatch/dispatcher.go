// Package dispatch turns intents into results: it resolves the capability,
// validates the arguments, runs the handler and normalizes whatever happens
// into a domain.Result.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"jarvis/internal/domain"
	"jarvis/internal/metrics"
	"jarvis/internal/tool"
)

// Recorder journals results. Failures are logged and never change a result.
type Recorder interface {
	Record(ctx context.Context, r domain.Result) error
}

type Config struct {
	Registry *tool.Registry
	Recorder Recorder
	Metrics  *metrics.MetricsCollector
	Logger   *slog.Logger
}

type Dispatcher struct {
	registry *tool.Registry
	recorder Recorder
	metrics  *metrics.MetricsCollector
	logger   *slog.Logger
	now      func() time.Time
}

func New(cfg Config) *Dispatcher {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Collector
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry: cfg.Registry,
		recorder: cfg.Recorder,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// Dispatch runs one intent. It always returns a result; handler errors and
// panics become StatusHandlerError.
func (d *Dispatcher) Dispatch(ctx context.Context, in domain.Intent) domain.Result {
	started := d.now()
	res := domain.Result{
		ID:         uuid.NewString(),
		Capability: tool.NormalizeName(in.Capability),
		StartedAt:  started,
	}

	desc, err := d.registry.Resolve(in.Capability)
	if err != nil {
		res.Status = domain.StatusUnknownCapability
		res.Message = fmt.Sprintf("Unknown capability: %s", strings.TrimSpace(in.Capability))
		res.Err = err
		return d.finish(ctx, res)
	}
	res.Capability = desc.Name

	args, err := tool.Validate(desc.Args, in.Args)
	if err != nil {
		res.Status = domain.StatusValidationError
		res.Message = validationMessage(err)
		res.Err = err
		return d.finish(ctx, res)
	}

	if err := ctx.Err(); err != nil {
		res.Status = domain.StatusHandlerError
		res.Message = fmt.Sprintf("%s was cancelled before it started.", desc.Name)
		res.Err = context.Cause(ctx)
		return d.finish(ctx, res)
	}

	payload, err := d.invoke(ctx, desc, args)
	if err != nil {
		res.Status = domain.StatusHandlerError
		res.Message = handlerMessage(desc.Name, err)
		res.Err = err
		return d.finish(ctx, res)
	}

	res.Status = domain.StatusOK
	res.Message = payload.Message
	if res.Message == "" {
		res.Message = "Done."
	}
	res.Data = payload.Data
	return d.finish(ctx, res)
}

// PanicError is the cause recorded when a handler panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("internal error: %v", e.Value)
}

func (d *Dispatcher) invoke(ctx context.Context, desc *domain.Descriptor, args domain.Args) (p domain.Payload, err error) {
	defer func() {
		if v := recover(); v != nil {
			pe := &PanicError{Value: v, Stack: debug.Stack()}
			d.logger.Error("capability panicked", "capability", desc.Name, "panic", v, "stack", string(pe.Stack))
			p, err = domain.Payload{}, pe
		}
	}()
	return desc.Handler(ctx, args)
}

func (d *Dispatcher) finish(ctx context.Context, res domain.Result) domain.Result {
	elapsed := d.now().Sub(res.StartedAt)
	res.DurationMs = elapsed.Milliseconds()

	d.metrics.DispatchTotal(string(res.Status)).Inc()
	if res.Status == domain.StatusOK || res.Status == domain.StatusHandlerError {
		d.metrics.DispatchLatency(res.Capability).Observe(elapsed.Seconds())
	}

	attrs := []any{
		"id", res.ID,
		"capability", res.Capability,
		"status", res.Status,
		"duration_ms", res.DurationMs,
	}
	if res.Err != nil {
		attrs = append(attrs, "error", res.Err)
	}
	switch res.Status {
	case domain.StatusOK:
		d.logger.Info("dispatch", attrs...)
	case domain.StatusHandlerError:
		d.logger.Warn("dispatch", attrs...)
	default:
		d.logger.Info("dispatch rejected", attrs...)
	}

	if d.recorder != nil {
		if err := d.recorder.Record(context.WithoutCancel(ctx), res); err != nil {
			d.logger.Warn("journal write failed", "id", res.ID, "error", err)
		}
	}
	return res
}

func validationMessage(err error) string {
	var ve *tool.ValidationError
	if errors.As(err, &ve) {
		return fmt.Sprintf("Invalid argument '%s': %s.", ve.Arg, ve.Reason)
	}
	return fmt.Sprintf("Invalid arguments: %v.", err)
}

func handlerMessage(capability string, err error) string {
	cause := strings.TrimSuffix(strings.TrimSpace(err.Error()), ".")
	if cause == "" {
		cause = "unknown error"
	}
	return fmt.Sprintf("%s failed: %s.", capability, cause)
}
