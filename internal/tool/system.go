package tool

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"jarvis/internal/domain"
)

type application struct {
	darwin, linux, windows string
}

// applications maps spoken names to the per-OS program that opens them. An
// empty entry means the application does not exist on that platform.
var applications = map[string]application{
	"calculator":    {"Calculator", "gnome-calculator", "calc"},
	"notepad":       {"TextEdit", "gedit", "notepad"},
	"vscode":        {"Visual Studio Code", "code", "code"},
	"files":         {"Finder", "nautilus", "explorer"},
	"terminal":      {"Terminal", "gnome-terminal", "cmd"},
	"chrome":        {"Google Chrome", "google-chrome", "chrome"},
	"firefox":       {"Firefox", "firefox", "firefox"},
	"word":          {"Microsoft Word", "libreoffice --writer", "winword"},
	"excel":         {"Microsoft Excel", "libreoffice --calc", "excel"},
	"powerpoint":    {"Microsoft PowerPoint", "libreoffice --impress", "powerpnt"},
	"onenote":       {"Microsoft OneNote", "", "onenote"},
	"settings":      {"System Settings", "gnome-control-center", "ms-settings:"},
	"telegram":      {"Telegram", "telegram-desktop", "telegram"},
	"whatsapp":      {"WhatsApp", "", "whatsapp:"},
	"phonelink":     {"", "", "ms-phonelink:"},
	"photos":        {"Photos", "eog", "ms-photos:"},
	"spotify":       {"Spotify", "spotify", "spotify:"},
	"photoshop":     {"Adobe Photoshop", "", "Photoshop.exe"},
	"premiere pro":  {"Adobe Premiere Pro", "", "Premiere Pro.exe"},
	"after effects": {"Adobe After Effects", "", "AfterFX.exe"},
	"bluestacks":    {"BlueStacks", "", "HD-Player.exe"},
}

func (a application) forOS(goos string) (string, bool) {
	var prog string
	switch goos {
	case "darwin":
		prog = a.darwin
	case "linux":
		prog = a.linux
	case "windows":
		prog = a.windows
	}
	return prog, prog != ""
}

func systemCapabilities(d Deps) []domain.Descriptor {
	return []domain.Descriptor{
		{
			Name:        "launch_application",
			Description: "Launch a desktop application by its common name, e.g. calculator or chrome.",
			Args: []domain.ArgSpec{
				{Name: "app_name", Kind: domain.KindString, Required: true, Description: "Common name of the application"},
			},
			Handler: d.launchApplication,
		},
		{
			Name:        "get_system_status",
			Description: "Report current CPU and RAM usage.",
			Handler:     d.systemStatus,
		},
		{
			Name:        "get_date_and_time",
			Description: "Get the current date and time.",
			Handler:     d.dateAndTime,
		},
		{
			Name:        "lock_computer",
			Description: "Lock the workstation.",
			Handler:     d.simple("Computer is now locked.", lockCommand),
		},
		{
			Name:        "empty_recycle_bin",
			Description: "Empty the recycle bin.",
			Handler:     d.emptyRecycleBin,
		},
		{
			Name:        "get_battery_status",
			Description: "Get the battery percentage and whether the computer is plugged in.",
			Handler:     d.batteryStatus,
		},
		{
			Name:        "system_power_control",
			Description: "Shut down, restart or put the computer to sleep.",
			Args: []domain.ArgSpec{
				{Name: "action", Kind: domain.KindString, Required: true, Description: "Power action",
					Constraint: OneOf{"shutdown", "restart", "sleep"}},
			},
			Handler: d.powerControl,
		},
	}
}

// simple returns a handler that runs cmd and answers with msg.
func (d Deps) simple(msg string, cmd command) domain.Handler {
	return func(ctx context.Context, _ domain.Args) (domain.Payload, error) {
		if _, err := cmd.run(ctx, d.Runner, d.GOOS); err != nil {
			return domain.Payload{}, err
		}
		return domain.Payload{Message: msg}, nil
	}
}

var lockCommand = command{
	"darwin":  {"pmset", "displaysleepnow"},
	"linux":   {"loginctl", "lock-session"},
	"windows": {"rundll32.exe", "user32.dll,LockWorkStation"},
}

func (d Deps) launchApplication(ctx context.Context, args domain.Args) (domain.Payload, error) {
	name := args.String("app_name")
	app, ok := applications[strings.ToLower(name)]
	if !ok {
		return domain.Payload{}, fmt.Errorf("application %q is not recognized", name)
	}

	prog, ok := app.forOS(d.GOOS)
	if !ok {
		return domain.Payload{}, fmt.Errorf("%s on %s: %w", name, d.GOOS, ErrUnsupportedPlatform)
	}
	var err error
	switch d.GOOS {
	case "darwin":
		err = d.Runner.Start(ctx, "open", "-a", prog)
	case "linux":
		argv := strings.Fields(prog)
		err = d.Runner.Start(ctx, argv[0], argv[1:]...)
	case "windows":
		err = d.Runner.Start(ctx, "cmd", "/c", "start", "", prog)
	}
	if err != nil {
		return domain.Payload{}, err
	}
	return domain.Payload{Message: fmt.Sprintf("Launched %s.", name)}, nil
}

func (d Deps) dateAndTime(_ context.Context, _ domain.Args) (domain.Payload, error) {
	now := d.Now()
	return domain.Payload{
		Message: "It is " + now.Format("03:04 PM on Monday, January 02, 2006") + ".",
		Data:    map[string]any{"time": now.Format(time.RFC3339)},
	}, nil
}

func (d Deps) systemStatus(ctx context.Context, _ domain.Args) (domain.Payload, error) {
	cpu, ram, err := d.Sensors.Usage(ctx)
	if err != nil {
		return domain.Payload{}, fmt.Errorf("read system usage: %w", err)
	}
	return domain.Payload{
		Message: fmt.Sprintf("System Status - CPU: %.1f%%, RAM: %.1f%%.", cpu, ram),
		Data:    map[string]any{"cpu_percent": cpu, "ram_percent": ram},
	}, nil
}

func (d Deps) emptyRecycleBin(ctx context.Context, _ domain.Args) (domain.Payload, error) {
	const (
		empty   = "Recycle Bin is already empty."
		emptied = "Recycle Bin has been emptied."
	)
	switch d.GOOS {
	case "linux":
		dir := d.TrashDir
		if dir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return domain.Payload{}, err
			}
			dir = filepath.Join(home, ".local", "share", "Trash")
		}
		n, err := clearTrash(dir)
		if err != nil {
			return domain.Payload{}, err
		}
		if n == 0 {
			return domain.Payload{Message: empty}, nil
		}
		return domain.Payload{Message: emptied, Data: map[string]any{"removed": n}}, nil
	case "darwin":
		count, err := d.Runner.Run(ctx, "osascript", "-e", `tell application "Finder" to count items of trash`)
		if err != nil {
			return domain.Payload{}, err
		}
		if strings.TrimSpace(count) == "0" {
			return domain.Payload{Message: empty}, nil
		}
		if _, err := d.Runner.Run(ctx, "osascript", "-e", `tell application "Finder" to empty trash`); err != nil {
			return domain.Payload{}, err
		}
		return domain.Payload{Message: emptied}, nil
	case "windows":
		count, err := d.Runner.Run(ctx, "powershell", "-NoProfile", "-Command",
			"(New-Object -ComObject Shell.Application).NameSpace(10).Items().Count")
		if err != nil {
			return domain.Payload{}, err
		}
		if strings.TrimSpace(count) == "0" {
			return domain.Payload{Message: empty}, nil
		}
		if _, err := d.Runner.Run(ctx, "powershell", "-NoProfile", "-Command", "Clear-RecycleBin -Force"); err != nil {
			return domain.Payload{}, err
		}
		return domain.Payload{Message: emptied}, nil
	}
	return domain.Payload{}, fmt.Errorf("%w (%s)", ErrUnsupportedPlatform, d.GOOS)
}

// clearTrash empties a freedesktop trash directory and returns how many
// trashed items it removed.
func clearTrash(dir string) (int, error) {
	files := filepath.Join(dir, "files")
	entries, err := os.ReadDir(files)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read trash: %w", err)
	}
	for _, sub := range []string{"files", "info"} {
		items, err := os.ReadDir(filepath.Join(dir, sub))
		if err != nil {
			continue
		}
		for _, item := range items {
			if err := os.RemoveAll(filepath.Join(dir, sub, item.Name())); err != nil {
				return 0, fmt.Errorf("empty trash: %w", err)
			}
		}
	}
	return len(entries), nil
}

func (d Deps) batteryStatus(ctx context.Context, _ domain.Args) (domain.Payload, error) {
	bats, err := d.Sensors.Batteries(ctx)
	if err != nil {
		return domain.Payload{}, fmt.Errorf("read battery: %w", err)
	}
	if len(bats) == 0 {
		return domain.Payload{Message: "No battery detected."}, nil
	}
	b := bats[0]
	percent := int(math.Round(b.Percent))
	status := "Not plugged in"
	if b.PluggedIn() {
		status = "Plugged in"
	}
	return domain.Payload{
		Message: fmt.Sprintf("Battery is at %d%%. Status: %s.", percent, status),
		Data:    map[string]any{"percent": percent, "plugged_in": b.PluggedIn(), "state": b.State},
	}, nil
}

var powerCommands = map[string]command{
	"shutdown": {
		"darwin":  {"osascript", "-e", `tell application "System Events" to shut down`},
		"linux":   {"systemctl", "poweroff"},
		"windows": {"shutdown", "/s", "/t", "1"},
	},
	"restart": {
		"darwin":  {"osascript", "-e", `tell application "System Events" to restart`},
		"linux":   {"systemctl", "reboot"},
		"windows": {"shutdown", "/r", "/t", "1"},
	},
	"sleep": {
		"darwin":  {"pmset", "sleepnow"},
		"linux":   {"systemctl", "suspend"},
		"windows": {"rundll32.exe", "powrprof.dll,SetSuspendState", "0,1,0"},
	},
}

func (d Deps) powerControl(ctx context.Context, args domain.Args) (domain.Payload, error) {
	action := args.String("action")
	if _, err := powerCommands[action].run(ctx, d.Runner, d.GOOS); err != nil {
		return domain.Payload{}, err
	}
	return domain.Payload{Message: fmt.Sprintf("Executing %s now.", action)}, nil
}
