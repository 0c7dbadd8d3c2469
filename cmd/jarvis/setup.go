package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"jarvis/internal/config"
	"jarvis/internal/fileutil"
)

// exampleMacro is written to the macros directory by init.
const exampleMacro = `# Macros run their steps in order. on_error: abort (default) or continue.
name: morning
description: Weather, headlines and the time
on_error: continue
steps:
  - capability: get_date_and_time
  - capability: get_weather
    args:
      city: London
  - capability: get_news_headlines
    args:
      topic: technology
`

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the config file, data directory and an example macro",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", cfgPath)
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			macros := config.ExpandPath(cfg.Paths.Macros)
			if err := os.MkdirAll(macros, 0o755); err != nil {
				return err
			}
			example := filepath.Join(macros, "morning.yaml")
			if _, err := os.Stat(example); os.IsNotExist(err) {
				if err := fileutil.WriteFileAtomic(example, []byte(exampleMacro), 0o644); err != nil {
					return err
				}
			}
			logger.Info("initialized", "config", cfgPath, "macros", macros)
			fmt.Println("Next: run 'jarvis setup' to add API keys, then 'jarvis chat'.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func setupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactive setup: service keys, Google client, Telegram",
		Long:  "Prompts for the API keys and channel settings capabilities need and writes them to the config. Values may be ${ENV_VAR} references.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetup(os.Stdin, os.Stdout, resolveConfigPath())
		},
	}
}

func runSetup(in io.Reader, out io.Writer, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		cfg = config.Defaults()
	}

	reader := bufio.NewReader(in)
	prompt := func(label, def string) (string, error) {
		if def != "" {
			fmt.Fprintf(out, "%s [%s]: ", label, def)
		} else {
			fmt.Fprintf(out, "%s: ", label)
		}
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return "", err
		}
		if s := strings.TrimSpace(line); s != "" {
			return s, nil
		}
		return def, nil
	}
	ask := func(dst *string, label string) error {
		v, err := prompt(label, *dst)
		if err != nil {
			return err
		}
		*dst = v
		return nil
	}

	fmt.Fprintln(out, "\n--- Step 1: Information services ---")
	if err := ask(&cfg.Services.WeatherAPIKey, "OpenWeatherMap API key (or ${WEATHER_API_KEY})"); err != nil {
		return err
	}
	if err := ask(&cfg.Services.NewsAPIKey, "NewsAPI key (or ${NEWS_API_KEY})"); err != nil {
		return err
	}

	fmt.Fprintln(out, "\n--- Step 2: Messaging ---")
	if err := ask(&cfg.Services.WhatsApp.AccessToken, "WhatsApp Cloud API access token"); err != nil {
		return err
	}
	if err := ask(&cfg.Services.WhatsApp.PhoneNumberID, "WhatsApp phone number ID"); err != nil {
		return err
	}
	if err := ask(&cfg.Google.ClientSecrets, "Google OAuth client file (for Gmail)"); err != nil {
		return err
	}

	fmt.Fprintln(out, "\n--- Step 3: Telegram ---")
	enable, err := prompt("Enable the Telegram channel? (y/n)", yesNo(cfg.Channels.Telegram.Enabled))
	if err != nil {
		return err
	}
	cfg.Channels.Telegram.Enabled = strings.HasPrefix(strings.ToLower(enable), "y")
	if cfg.Channels.Telegram.Enabled {
		if err := ask(&cfg.Channels.Telegram.Token, "Telegram bot token (from @BotFather)"); err != nil {
			return err
		}
		allow, err := prompt("Allowed Telegram user IDs, comma separated (at least one)", strings.Join(cfg.Channels.Telegram.AllowFrom, ","))
		if err != nil {
			return err
		}
		cfg.Channels.Telegram.AllowFrom = nil
		for _, id := range strings.Split(allow, ",") {
			if id = strings.TrimSpace(id); id != "" {
				cfg.Channels.Telegram.AllowFrom = append(cfg.Channels.Telegram.AllowFrom, id)
			}
		}
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	if err := config.Save(cfgPath, cfg); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nConfig saved to %s\n", cfgPath)
	fmt.Fprintln(out, "Next: 'jarvis auth login' for Gmail, 'jarvis chat' for the terminal, or 'jarvis serve' for Telegram.")
	return nil
}

func yesNo(b bool) string {
	if b {
		return "y"
	}
	return "n"
}
