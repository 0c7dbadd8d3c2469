package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"jarvis/internal/config"
	"jarvis/internal/contacts"
	"jarvis/internal/credential"
	"jarvis/internal/macro"
)

type doctorReport struct {
	passed, warned, failed int
}

func (r *doctorReport) pass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
	r.passed++
}

func (r *doctorReport) fail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
	r.failed++
}

func (r *doctorReport) warn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
	r.warned++
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your Jarvis installation",
		Long: `Verifies that Jarvis's configuration, data files, credentials and the
platform tools capabilities depend on are set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("Jarvis Doctor v%s (%s/%s)\n", version, runtime.GOOS, runtime.GOARCH)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			var r doctorReport

			if _, err := os.Stat(cfgPath); err != nil {
				r.warn("Config file", fmt.Sprintf("not found at %s, using defaults", cfgPath))
			} else {
				r.pass("Config file", cfgPath)
			}

			cfg, err := config.LoadOrDefault(cfgPath)
			if err != nil {
				r.fail("Config validation", err.Error())
				fmt.Printf("\n%d passed, %d failed\n", r.passed, r.failed)
				return fmt.Errorf("config is invalid")
			}
			r.pass("Config validation", "valid")

			if _, err := contacts.Open(cfg.Paths.Contacts, logger); err != nil {
				r.fail("Contacts", err.Error())
			} else {
				r.pass("Contacts", cfg.Paths.Contacts)
			}

			book := macro.NewBook()
			if err := book.LoadDirectory(cfg.Paths.Macros, logger); err != nil {
				r.fail("Macros", err.Error())
			} else {
				r.pass("Macros", fmt.Sprintf("%d loaded from %s", book.Len(), cfg.Paths.Macros))
			}

			if cfg.History.Enabled {
				if err := checkDatabase(cfg.Paths.HistoryDB); err != nil {
					r.fail("History database", err.Error())
				} else {
					r.pass("History database", cfg.Paths.HistoryDB)
				}
			}

			if _, err := credential.LoadClientConfig(cfg.Google.ClientSecrets, nil); err != nil {
				r.warn("Google client", "mail capabilities unavailable: "+err.Error())
			} else {
				r.pass("Google client", cfg.Google.ClientSecrets)
			}
			if tok, err := credential.NewFileStore(cfg.Paths.Token).Load(); err != nil {
				r.fail("Google token", err.Error())
			} else if tok == nil {
				r.warn("Google token", "not authorized yet (jarvis auth login)")
			} else {
				r.pass("Google token", fmt.Sprintf("expires %s", tok.Expiry.Format(time.DateTime)))
			}

			checkKey := func(name, value, env string) {
				if value == "" {
					r.warn(name, "not configured ("+env+")")
					return
				}
				r.pass(name, "configured")
			}
			checkKey("Weather API", cfg.Services.WeatherAPIKey, "WEATHER_API_KEY")
			checkKey("News API", cfg.Services.NewsAPIKey, "NEWS_API_KEY")
			checkKey("WhatsApp token", cfg.Services.WhatsApp.AccessToken, "WHATSAPP_ACCESS_TOKEN")
			checkKey("WhatsApp phone", cfg.Services.WhatsApp.PhoneNumberID, "WHATSAPP_PHONE_NUMBER_ID")

			for _, bin := range platformTools() {
				if path, err := exec.LookPath(bin); err != nil {
					r.warn("Tool: "+bin, "not found in PATH")
				} else {
					r.pass("Tool: "+bin, path)
				}
			}

			if cfg.Metrics.Enabled {
				if err := checkPort(cfg.Metrics.Host, cfg.Metrics.Port); err != nil {
					r.warn("Metrics port", fmt.Sprintf("port %d may be in use: %v", cfg.Metrics.Port, err))
				} else {
					r.pass("Metrics port", fmt.Sprintf(":%d available", cfg.Metrics.Port))
				}
			}

			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					r.warn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
				} else {
					r.pass("Log file", cfg.General.LogFile)
				}
			}

			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
			if r.failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running Jarvis.\n")
				return fmt.Errorf("%d check(s) failed", r.failed)
			}
			if r.warned > 0 {
				fmt.Printf("\nJarvis will run; capabilities behind the warnings will report errors.\n")
			} else {
				fmt.Printf("\nAll checks passed! Jarvis is ready to run.\n")
			}
			return nil
		},
	}
}

// platformTools are the external programs the system and media capabilities
// shell out to on this OS.
func platformTools() []string {
	switch runtime.GOOS {
	case "linux":
		return []string{"xdg-open", "pactl", "nmcli", "gnome-screenshot", "brightnessctl", "loginctl", "systemctl"}
	case "darwin":
		return []string{"open", "osascript", "screencapture", "pmset", "networksetup"}
	case "windows":
		return []string{"powershell", "rundll32", "netsh"}
	default:
		return nil
	}
}

func checkDatabase(dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("cannot create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return fmt.Errorf("cannot open: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_test (id INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_test")
	return nil
}

func checkPort(host string, port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	return ln.Close()
}
