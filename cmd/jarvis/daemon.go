package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"jarvis/internal/config"
)

const (
	launchdLabel = "dev.jarvis.serve"
	systemdUnit  = "jarvis.service"
)

func installDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install 'jarvis serve' as a user service (launchd/systemd)",
		Long:  "Generates and installs a service file that runs the remote channels and metrics endpoint on login.",
		RunE: func(cmd *cobra.Command, args []string) error {
			execPath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("cannot determine executable path: %w", err)
			}
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			switch runtime.GOOS {
			case "darwin":
				return installLaunchd(home, execPath, resolveConfigPath())
			case "linux":
				return installSystemd(home, execPath, resolveConfigPath())
			default:
				return fmt.Errorf("unsupported OS: %s (supported: darwin, linux)", runtime.GOOS)
			}
		},
	}
}

func uninstallDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the 'jarvis serve' user service",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			path, ok := servicePath(home, runtime.GOOS)
			if !ok {
				return fmt.Errorf("unsupported OS: %s", runtime.GOOS)
			}
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("remove service file: %w", err)
			}
			fmt.Printf("Service uninstalled: %s\n", path)
			return nil
		},
	}
}

func servicePath(home, goos string) (string, bool) {
	switch goos {
	case "darwin":
		return filepath.Join(home, "Library", "LaunchAgents", launchdLabel+".plist"), true
	case "linux":
		return filepath.Join(home, ".config", "systemd", "user", systemdUnit), true
	default:
		return "", false
	}
}

func renderService(tmpl, execPath, cfgPath string) string {
	logDir := filepath.Join(config.DefaultConfigDir(), "logs")
	return strings.NewReplacer(
		"{{EXEC}}", execPath,
		"{{CONFIG}}", cfgPath,
		"{{LABEL}}", launchdLabel,
		"{{LOG}}", filepath.Join(logDir, "jarvis.log"),
		"{{ERR_LOG}}", filepath.Join(logDir, "jarvis-error.log"),
	).Replace(tmpl)
}

func installLaunchd(home, execPath, cfgPath string) error {
	path, _ := servicePath(home, "darwin")
	if err := os.MkdirAll(filepath.Join(config.DefaultConfigDir(), "logs"), 0o755); err != nil {
		return err
	}
	if err := writeService(path, renderService(launchdTemplate, execPath, cfgPath)); err != nil {
		return err
	}
	fmt.Printf("Service installed: %s\n", path)
	fmt.Printf("To start: launchctl load %s\n", path)
	fmt.Printf("To stop:  launchctl unload %s\n", path)
	return nil
}

func installSystemd(home, execPath, cfgPath string) error {
	path, _ := servicePath(home, "linux")
	if err := writeService(path, renderService(systemdTemplate, execPath, cfgPath)); err != nil {
		return err
	}
	name := strings.TrimSuffix(systemdUnit, ".service")
	fmt.Printf("Service installed: %s\n", path)
	fmt.Printf("To start:  systemctl --user start %s\n", name)
	fmt.Printf("To enable: systemctl --user enable %s\n", name)
	fmt.Printf("To stop:   systemctl --user stop %s\n", name)
	return nil
}

func writeService(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

const launchdTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{LABEL}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{EXEC}}</string>
        <string>serve</string>
        <string>--config</string>
        <string>{{CONFIG}}</string>
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <true/>
    <key>StandardOutPath</key>
    <string>{{LOG}}</string>
    <key>StandardErrorPath</key>
    <string>{{ERR_LOG}}</string>
</dict>
</plist>`

const systemdTemplate = `[Unit]
Description=Jarvis assistant (remote channels and metrics)
After=network-online.target

[Service]
Type=simple
ExecStart={{EXEC}} serve --config {{CONFIG}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target`
