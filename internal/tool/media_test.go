package tool

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestSetVolume(t *testing.T) {
	r := &fakeRunner{}
	p, err := invoke(t, Deps{GOOS: "linux", Runner: r}, "set_volume", map[string]any{"value": "40"})
	if err != nil {
		t.Fatal(err)
	}
	if r.lastRun() != "pactl set-sink-volume @DEFAULT_SINK@ 40%" {
		t.Fatalf("unexpected command %q", r.lastRun())
	}
	if p.Message != "Volume set to 40%." {
		t.Fatalf("unexpected message %q", p.Message)
	}

	_, err = invoke(t, Deps{GOOS: "windows", Runner: r}, "set_volume", map[string]any{"value": 10})
	if !errors.Is(err, ErrUnsupportedPlatform) {
		t.Fatalf("expected ErrUnsupportedPlatform, got %v", err)
	}
}

func TestMuteVolume_Darwin(t *testing.T) {
	r := &fakeRunner{}
	p, err := invoke(t, Deps{GOOS: "darwin", Runner: r}, "mute_volume", map[string]any{"state": "mute"})
	if err != nil {
		t.Fatal(err)
	}
	if r.lastRun() != "osascript -e set volume output muted true" {
		t.Fatalf("unexpected command %q", r.lastRun())
	}
	if p.Message != "Volume has been muted." {
		t.Fatalf("unexpected message %q", p.Message)
	}
}

func TestSetBrightness_Linux(t *testing.T) {
	r := &fakeRunner{}
	if _, err := invoke(t, Deps{GOOS: "linux", Runner: r}, "set_brightness", map[string]any{"value": 70}); err != nil {
		t.Fatal(err)
	}
	if r.lastRun() != "brightnessctl set 70%" {
		t.Fatalf("unexpected command %q", r.lastRun())
	}
}

func TestScreenshot_DefaultFilename(t *testing.T) {
	dir := t.TempDir()
	r := &fakeRunner{}
	p, err := invoke(t, Deps{GOOS: "linux", Runner: r, ScreenshotDir: dir}, "take_screenshot", nil)
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(dir, "screenshot.png")
	if r.lastRun() != "gnome-screenshot -f "+want {
		t.Fatalf("unexpected command %q", r.lastRun())
	}
	if p.Data["path"] != want {
		t.Fatalf("unexpected path %v", p.Data["path"])
	}
}
