package tool

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	defaultCommandTimeout = 30 * time.Second
	maxCommandOutput      = 64 * 1024
)

// ErrUnsupportedPlatform is returned by OS capabilities that have no command
// for the running operating system.
var ErrUnsupportedPlatform = errors.New("not supported on this platform")

// Runner executes operating-system commands for the OS capabilities.
type Runner interface {
	// Run executes name with args, waits for it and returns trimmed stdout.
	Run(ctx context.Context, name string, args ...string) (string, error)
	// Start launches name with args and returns without waiting for it.
	Start(ctx context.Context, name string, args ...string) error
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	Timeout time.Duration
}

func (r ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%s timed out or was cancelled", name)
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%s: %s", name, truncate(msg, 512))
		}
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return truncate(strings.TrimSpace(stdout.String()), maxCommandOutput), nil
}

func (r ExecRunner) Start(_ context.Context, name string, args ...string) error {
	// Launched programs outlive the dispatch, so they get no context.
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", name, err)
	}
	go cmd.Wait() //nolint:errcheck
	return nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "... (truncated)"
}

// command is one argv per GOOS.
type command map[string][]string

func (c command) pick(goos string) ([]string, error) {
	argv, ok := c[goos]
	if !ok || len(argv) == 0 {
		return nil, fmt.Errorf("%w (%s)", ErrUnsupportedPlatform, goos)
	}
	return argv, nil
}

// run picks the argv for goos and runs it.
func (c command) run(ctx context.Context, r Runner, goos string, extra ...string) (string, error) {
	argv, err := c.pick(goos)
	if err != nil {
		return "", err
	}
	args := append(append([]string(nil), argv[1:]...), extra...)
	return r.Run(ctx, argv[0], args...)
}

// openCommand opens a URL or document with the desktop's default handler.
var openCommand = command{
	"darwin":  {"open"},
	"linux":   {"xdg-open"},
	"windows": {"rundll32", "url.dll,FileProtocolHandler"},
}

// OpenURL opens target in the default browser.
func OpenURL(ctx context.Context, r Runner, goos, target string) error {
	argv, err := openCommand.pick(goos)
	if err != nil {
		return err
	}
	return r.Start(ctx, argv[0], append(argv[1:len(argv):len(argv)], target)...)
}
