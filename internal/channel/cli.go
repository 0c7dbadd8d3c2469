package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"jarvis/internal/domain"
	"jarvis/internal/metrics"
)

// CLI is the interactive terminal channel.
type CLI struct {
	responder *Responder
	logger    *slog.Logger
	in        io.Reader
	out       io.Writer
	color     bool
	spinner   bool

	outMu     sync.Mutex
	thinkStop chan struct{}
	thinkDone chan struct{}
}

type CLIConfig struct {
	Responder *Responder
	Logger    *slog.Logger
	In        io.Reader
	Out       io.Writer
	Color     bool
	// Spinner shows a progress indicator while an intent runs. Only useful
	// when Out is a terminal.
	Spinner bool
}

func NewCLI(cfg CLIConfig) *CLI {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &CLI{
		responder: cfg.Responder,
		logger:    cfg.Logger,
		in:        cfg.In,
		out:       cfg.Out,
		color:     cfg.Color,
		spinner:   cfg.Spinner,
	}
}

func (c *CLI) Name() string { return "cli" }

// Start runs the REPL until EOF, /quit or ctx is cancelled.
func (c *CLI) Start(ctx context.Context) error {
	metrics.ActiveChannels.Inc()
	defer metrics.ActiveChannels.Dec()

	c.printf("Jarvis. Type a command and press Enter. /help lists capabilities, /quit exits.\n")
	c.prompt()

	scanner := bufio.NewScanner(c.in)
	for {
		if ctx.Err() != nil {
			return nil
		}
		if !scanner.Scan() {
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
		case "/quit", "/exit", "/q":
			c.logger.Info("user requested quit")
			return nil
		case "/help":
			c.printf("%s", c.responder.Help())
		default:
			c.handle(ctx, line)
		}
		c.prompt()
	}
}

func (c *CLI) handle(ctx context.Context, line string) {
	c.startThinking()
	results, err := c.responder.Handle(ctx, c.Name(), line)
	c.stopThinking()

	if err != nil {
		c.paint(color.FgYellow).Fprintln(c.out, ParseErrorMessage(err))
		return
	}
	for _, res := range results {
		c.render(res)
	}
}

func (c *CLI) render(res domain.Result) {
	c.outMu.Lock()
	defer c.outMu.Unlock()

	var attr color.Attribute
	switch res.Status {
	case domain.StatusOK:
		attr = color.FgGreen
	case domain.StatusValidationError:
		attr = color.FgYellow
	case domain.StatusUnknownCapability:
		attr = color.FgMagenta
	default:
		attr = color.FgRed
	}
	label := c.paint(attr, color.Bold)
	label.Fprintf(c.out, "[%s] ", res.Status)
	fmt.Fprintln(c.out, res.Message)
}

func (c *CLI) paint(attrs ...color.Attribute) *color.Color {
	col := color.New(attrs...)
	if !c.color {
		col.DisableColor()
	}
	return col
}

func (c *CLI) prompt() { c.printf("You> ") }

func (c *CLI) printf(format string, args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *CLI) startThinking() {
	if !c.spinner {
		return
	}
	c.thinkStop = make(chan struct{})
	c.thinkDone = make(chan struct{})
	go func(stop, done chan struct{}) {
		defer close(done)
		frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for i := 0; ; i++ {
			select {
			case <-stop:
				c.printf("\r\033[K")
				return
			case <-ticker.C:
				c.printf("\r%s Working...", frames[i%len(frames)])
			}
		}
	}(c.thinkStop, c.thinkDone)
}

func (c *CLI) stopThinking() {
	if c.thinkStop == nil {
		return
	}
	close(c.thinkStop)
	<-c.thinkDone
	c.thinkStop, c.thinkDone = nil, nil
}
