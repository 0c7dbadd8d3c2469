package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Paths: PathsConfig{
			Contacts:  "~/.jarvis/contacts.json",
			Token:     "~/.jarvis/token.json",
			Macros:    "~/.jarvis/macros",
			HistoryDB: "~/.jarvis/history.db",
		},
		Google: GoogleConfig{
			ClientSecrets:      "~/.jarvis/credentials.json",
			AuthTimeoutSeconds: 300,
		},
		Channels: ChannelsConfig{
			Telegram:  TelegramConfig{Burst: 5, RatePerMinute: 20},
			Discord:   DiscordConfig{Burst: 5, RatePerMinute: 20},
			Slack:     SlackConfig{Burst: 5, RatePerMinute: 20},
			WebSocket: WebSocketConfig{Host: "127.0.0.1", Port: 8765, Path: "/ws"},
			CLI:       CLIConfig{Color: true},
		},
		Tools: ToolsConfig{
			CommandTimeoutSeconds: 30,
			HTTPTimeoutSeconds:    20,
			ScreenshotDir:         "~/Pictures",
			Browser: BrowserConfig{
				Enabled:              true,
				Headless:             true,
				SearchTimeoutSeconds: 30,
			},
		},
		History: HistoryConfig{
			Enabled:       true,
			RetentionDays: 90,
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Host:     "127.0.0.1",
			Port:     9464,
			Endpoint: "/metrics",
		},
	}
}
