// Package channel connects text front-ends (the terminal, Telegram) to the
// dispatcher. Each line of text becomes one or more intents; every intent is
// dispatched in order and its result rendered back to the sender.
package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"jarvis/internal/domain"
	"jarvis/internal/history"
	"jarvis/internal/intent"
	"jarvis/internal/metrics"
)

type Parser interface {
	Parse(text string) ([]domain.Intent, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, in domain.Intent) domain.Result
}

// Responder is shared by every channel.
type Responder struct {
	parser       Parser
	dispatcher   Dispatcher
	capabilities func() []string
	logger       *slog.Logger
}

type ResponderConfig struct {
	Parser     Parser
	Dispatcher Dispatcher
	// Capabilities lists capability names for the help text. May be nil.
	Capabilities func() []string
	Logger       *slog.Logger
}

func NewResponder(cfg ResponderConfig) *Responder {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Responder{
		parser:       cfg.Parser,
		dispatcher:   cfg.Dispatcher,
		capabilities: cfg.Capabilities,
		logger:       logger,
	}
}

// Handle parses text and dispatches the intents it holds, stopping early if
// ctx is cancelled. Parse failures are returned as errors; empty input gives
// no results and no error.
func (r *Responder) Handle(ctx context.Context, source, text string) ([]domain.Result, error) {
	intents, err := r.parser.Parse(text)
	if errors.Is(err, intent.ErrEmpty) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	metrics.ChannelMessages.Inc()

	ctx = history.WithSource(ctx, source)
	results := make([]domain.Result, 0, len(intents))
	for _, in := range intents {
		if ctx.Err() != nil {
			break
		}
		res := r.dispatcher.Dispatch(ctx, in)
		r.logger.Debug("channel intent handled",
			"source", source, "capability", res.Capability, "status", res.Status)
		results = append(results, res)
	}
	return results, nil
}

// Help renders the list of capabilities a user can call.
func (r *Responder) Help() string {
	var b strings.Builder
	b.WriteString("Type a capability name followed by its arguments, for example:\n")
	b.WriteString("  set_volume 40\n  get_weather city=London\n  macro morning\n")
	if r.capabilities == nil {
		return b.String()
	}
	names := r.capabilities()
	if len(names) == 0 {
		return b.String()
	}
	b.WriteString("\nAvailable capabilities:\n")
	for _, n := range names {
		fmt.Fprintf(&b, "  %s\n", n)
	}
	return b.String()
}

// ParseErrorMessage is the reply sent for text that could not be decoded.
func ParseErrorMessage(err error) string {
	return fmt.Sprintf("I couldn't understand that: %v.", strings.TrimSuffix(err.Error(), "."))
}
