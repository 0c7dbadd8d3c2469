package tool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"jarvis/internal/domain"
)

func mediaCapabilities(d Deps) []domain.Descriptor {
	percent := func(what string) []domain.ArgSpec {
		return []domain.ArgSpec{
			{Name: "value", Kind: domain.KindInteger, Required: true,
				Description: what + " level from 0 to 100", Constraint: Range{Min: 0, Max: 100}},
		}
	}
	return []domain.Descriptor{
		{
			Name:        "take_screenshot",
			Description: "Take a screenshot of the entire screen and save it to a file.",
			Args: []domain.ArgSpec{
				{Name: "filename", Kind: domain.KindString, Default: "screenshot.png",
					Description: "File to save the screenshot to", Constraint: MaxLength(255)},
			},
			Handler: d.screenshot,
		},
		{
			Name:        "set_volume",
			Description: "Set the system volume to a percentage.",
			Args:        percent("Volume"),
			Handler:     d.setVolume,
		},
		{
			Name:        "mute_volume",
			Description: "Mute or unmute the system volume.",
			Args: []domain.ArgSpec{
				{Name: "state", Kind: domain.KindString, Required: true, Description: "mute or unmute",
					Constraint: OneOf{"mute", "unmute"}},
			},
			Handler: d.muteVolume,
		},
		{
			Name:        "set_brightness",
			Description: "Set the screen brightness to a percentage.",
			Args:        percent("Brightness"),
			Handler:     d.setBrightness,
		},
		{
			Name:        "open_desktop",
			Description: "Minimize all windows to show the desktop.",
			Handler:     d.simple("Showing the desktop.", desktopCommand),
		},
	}
}

var desktopCommand = command{
	"darwin":  {"osascript", "-e", `tell application "System Events" to key code 103`},
	"linux":   {"wmctrl", "-k", "on"},
	"windows": {"powershell", "-NoProfile", "-Command", "(New-Object -ComObject Shell.Application).ToggleDesktop()"},
}

var screenshotCommand = command{
	"darwin":  {"screencapture", "-x"},
	"linux":   {"gnome-screenshot", "-f"},
	"windows": {"powershell", "-NoProfile", "-File"},
}

const windowsScreenshotScript = `param($p)
Add-Type -AssemblyName System.Windows.Forms,System.Drawing
$b=[System.Windows.Forms.SystemInformation]::VirtualScreen
$bmp=New-Object System.Drawing.Bitmap $b.Width,$b.Height
$g=[System.Drawing.Graphics]::FromImage($bmp)
$g.CopyFromScreen($b.Left,$b.Top,0,0,$bmp.Size)
$bmp.Save($p)
`

func (d Deps) screenshot(ctx context.Context, args domain.Args) (domain.Payload, error) {
	path := args.String("filename")
	if !filepath.IsAbs(path) && d.ScreenshotDir != "" {
		path = filepath.Join(d.ScreenshotDir, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return domain.Payload{}, fmt.Errorf("create screenshot dir: %w", err)
	}

	extra := []string{path}
	if d.GOOS == "windows" {
		script, err := os.CreateTemp("", "jarvis-screenshot-*.ps1")
		if err != nil {
			return domain.Payload{}, err
		}
		defer os.Remove(script.Name())
		if _, err := script.WriteString(windowsScreenshotScript); err != nil {
			script.Close()
			return domain.Payload{}, err
		}
		script.Close()
		extra = []string{script.Name(), path}
	}
	if _, err := screenshotCommand.run(ctx, d.Runner, d.GOOS, extra...); err != nil {
		return domain.Payload{}, err
	}
	return domain.Payload{
		Message: "Screenshot saved as " + path,
		Data:    map[string]any{"path": path},
	}, nil
}

func (d Deps) setVolume(ctx context.Context, args domain.Args) (domain.Payload, error) {
	v := args.Int("value")
	var err error
	switch d.GOOS {
	case "darwin":
		_, err = d.Runner.Run(ctx, "osascript", "-e", "set volume output volume "+strconv.Itoa(v))
	case "linux":
		_, err = d.Runner.Run(ctx, "pactl", "set-sink-volume", "@DEFAULT_SINK@", strconv.Itoa(v)+"%")
	default:
		err = fmt.Errorf("%w (%s)", ErrUnsupportedPlatform, d.GOOS)
	}
	if err != nil {
		return domain.Payload{}, err
	}
	return domain.Payload{Message: fmt.Sprintf("Volume set to %d%%.", v), Data: map[string]any{"value": v}}, nil
}

func (d Deps) muteVolume(ctx context.Context, args domain.Args) (domain.Payload, error) {
	mute := args.String("state") == "mute"
	var err error
	switch d.GOOS {
	case "darwin":
		_, err = d.Runner.Run(ctx, "osascript", "-e", "set volume output muted "+strconv.FormatBool(mute))
	case "linux":
		flag := "0"
		if mute {
			flag = "1"
		}
		_, err = d.Runner.Run(ctx, "pactl", "set-sink-mute", "@DEFAULT_SINK@", flag)
	default:
		err = fmt.Errorf("%w (%s)", ErrUnsupportedPlatform, d.GOOS)
	}
	if err != nil {
		return domain.Payload{}, err
	}
	if mute {
		return domain.Payload{Message: "Volume has been muted."}, nil
	}
	return domain.Payload{Message: "Volume has been unmuted."}, nil
}

func (d Deps) setBrightness(ctx context.Context, args domain.Args) (domain.Payload, error) {
	v := args.Int("value")
	var err error
	switch d.GOOS {
	case "linux":
		_, err = d.Runner.Run(ctx, "brightnessctl", "set", strconv.Itoa(v)+"%")
	case "windows":
		_, err = d.Runner.Run(ctx, "powershell", "-NoProfile", "-Command",
			fmt.Sprintf("(Get-WmiObject -Namespace root/WMI -Class WmiMonitorBrightnessMethods).WmiSetBrightness(1,%d)", v))
	default:
		err = fmt.Errorf("%w (%s)", ErrUnsupportedPlatform, d.GOOS)
	}
	if err != nil {
		return domain.Payload{}, err
	}
	return domain.Payload{Message: fmt.Sprintf("Brightness set to %d%%.", v), Data: map[string]any{"value": v}}, nil
}
