package tool

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"
)

// fakeRunner records commands instead of executing them.
type fakeRunner struct {
	mu      sync.Mutex
	runs    []string
	starts  []string
	outputs map[string]string // keyed by program name
	err     error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, strings.Join(append([]string{name}, args...), " "))
	if f.err != nil {
		return "", f.err
	}
	return f.outputs[name], nil
}

func (f *fakeRunner) Start(_ context.Context, name string, args ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, strings.Join(append([]string{name}, args...), " "))
	return f.err
}

func (f *fakeRunner) lastRun() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.runs) == 0 {
		return ""
	}
	return f.runs[len(f.runs)-1]
}

func TestExecRunner_Run(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX tools")
	}
	out, err := ExecRunner{}.Run(context.Background(), "echo", "hello")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out != "hello" {
		t.Fatalf("expected trimmed output, got %q", out)
	}
}

func TestExecRunner_RunFailureIncludesStderr(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX tools")
	}
	_, err := ExecRunner{}.Run(context.Background(), "sh", "-c", "echo boom >&2; exit 3")
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
}

func TestExecRunner_Timeout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX tools")
	}
	_, err := ExecRunner{Timeout: 50 * time.Millisecond}.Run(context.Background(), "sleep", "5")
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestCommand_UnsupportedPlatform(t *testing.T) {
	r := &fakeRunner{}
	_, err := lockCommand.run(context.Background(), r, "plan9")
	if !errors.Is(err, ErrUnsupportedPlatform) {
		t.Fatalf("expected ErrUnsupportedPlatform, got %v", err)
	}
	if len(r.runs) != 0 {
		t.Fatalf("nothing should run, got %v", r.runs)
	}
}

func TestOpenURL(t *testing.T) {
	tests := map[string]string{
		"darwin":  "open https://example.com",
		"linux":   "xdg-open https://example.com",
		"windows": "rundll32 url.dll,FileProtocolHandler https://example.com",
	}
	for goos, want := range tests {
		r := &fakeRunner{}
		if err := OpenURL(context.Background(), r, goos, "https://example.com"); err != nil {
			t.Fatalf("%s: %v", goos, err)
		}
		if len(r.starts) != 1 || r.starts[0] != want {
			t.Fatalf("%s: expected %q, got %v", goos, want, r.starts)
		}
	}
	// The shared argv table must not be mutated by appends.
	if len(openCommand["windows"]) != 2 {
		t.Fatalf("openCommand mutated: %v", openCommand["windows"])
	}
}

func TestTruncate_KeepsRunesWhole(t *testing.T) {
	s := "a" + strings.Repeat("é", 10) // 21 bytes
	got := truncate(s, 4)
	if got != "aé... (truncated)" {
		t.Fatalf("unexpected %q", got)
	}
	if !utf8.ValidString(got) {
		t.Fatalf("invalid UTF-8 %q", got)
	}
	if truncate("short", 10) != "short" {
		t.Fatal("short strings must be unchanged")
	}
}
