package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"jarvis/internal/fileutil"
)

// Config is the root configuration for Jarvis.
type Config struct {
	General  GeneralConfig  `json:"general"`
	Paths    PathsConfig    `json:"paths"`
	Google   GoogleConfig   `json:"google"`
	Services ServicesConfig `json:"services"`
	Channels ChannelsConfig `json:"channels"`
	Tools    ToolsConfig    `json:"tools"`
	History  HistoryConfig  `json:"history"`
	Metrics  MetricsConfig  `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel"`
	LogFile  string `json:"logFile,omitempty"`
}

// PathsConfig locates the files Jarvis owns.
type PathsConfig struct {
	Contacts  string `json:"contacts"`
	Token     string `json:"token"`
	Macros    string `json:"macros"`
	HistoryDB string `json:"historyDb"`
}

type GoogleConfig struct {
	// ClientSecrets is the OAuth client file downloaded from the Google console.
	ClientSecrets      string `json:"clientSecrets"`
	AuthTimeoutSeconds int    `json:"authTimeoutSeconds"`
}

// ServicesConfig holds third-party API credentials.
type ServicesConfig struct {
	WeatherAPIKey string         `json:"weatherApiKey,omitempty"`
	NewsAPIKey    string         `json:"newsApiKey,omitempty"`
	WhatsApp      WhatsAppConfig `json:"whatsapp"`
}

type WhatsAppConfig struct {
	AccessToken   string `json:"accessToken,omitempty"`
	PhoneNumberID string `json:"phoneNumberId,omitempty"`
}

type ChannelsConfig struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Discord   DiscordConfig   `json:"discord"`
	Slack     SlackConfig     `json:"slack"`
	WebSocket WebSocketConfig `json:"websocket"`
	CLI       CLIConfig       `json:"cli"`
}

type TelegramConfig struct {
	Enabled   bool           `json:"enabled"`
	Token     string         `json:"token"`
	AllowFrom FlexStringList `json:"allowFrom"`
	// Burst and RatePerMinute throttle intents per Telegram user.
	Burst         int `json:"burst"`
	RatePerMinute int `json:"ratePerMinute"`
}

type DiscordConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	// GuildID restricts the bot to one server. Empty accepts every server.
	GuildID       string         `json:"guildId,omitempty"`
	AllowFrom     FlexStringList `json:"allowFrom"`
	Burst         int            `json:"burst"`
	RatePerMinute int            `json:"ratePerMinute"`
}

// SlackConfig configures the Socket Mode app. BotToken is the xoxb- token and
// AppToken the xapp- token with connections:write.
type SlackConfig struct {
	Enabled       bool           `json:"enabled"`
	BotToken      string         `json:"botToken"`
	AppToken      string         `json:"appToken"`
	AllowFrom     FlexStringList `json:"allowFrom"`
	Burst         int            `json:"burst"`
	RatePerMinute int            `json:"ratePerMinute"`
}

// WebSocketConfig configures the structured intent endpoint for the upstream
// engine.
type WebSocketConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
	Path    string `json:"path"`
	Token   string `json:"token"`
}

// FlexStringList is a []string that can unmarshal from JSON arrays containing
// both strings and numbers (e.g. ["123", 456] both become "123", "456").
type FlexStringList []string

func (f *FlexStringList) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			result = append(result, s)
			continue
		}
		var n float64
		if err := json.Unmarshal(item, &n); err == nil {
			result = append(result, strconv.FormatInt(int64(n), 10))
			continue
		}
		result = append(result, string(item))
	}
	*f = result
	return nil
}

type CLIConfig struct {
	// Color enables coloured status output in the REPL.
	Color bool `json:"color"`
}

type ToolsConfig struct {
	CommandTimeoutSeconds int           `json:"commandTimeoutSeconds"`
	HTTPTimeoutSeconds    int           `json:"httpTimeoutSeconds"`
	ScreenshotDir         string        `json:"screenshotDir"`
	Browser               BrowserConfig `json:"browser"`
}

type BrowserConfig struct {
	Enabled              bool   `json:"enabled"`
	Headless             bool   `json:"headless"`
	ProfileDir           string `json:"profileDir,omitempty"`
	SearchTimeoutSeconds int    `json:"searchTimeoutSeconds"`
}

// HistoryConfig configures the dispatch journal.
type HistoryConfig struct {
	Enabled       bool `json:"enabled"`
	RetentionDays int  `json:"retentionDays"`
}

// MetricsConfig configures the Prometheus endpoint served by "jarvis serve".
type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Endpoint string `json:"endpoint"`
}

// DefaultConfigDir returns the default config directory (~/.jarvis).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".jarvis"
	}
	return filepath.Join(home, ".jarvis")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads path, expands ${VAR} references, overlays secrets from the
// environment and validates the result.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.expandPaths()

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields the defaults with
// the environment applied.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(ExpandPath(path)); os.IsNotExist(err) {
		cfg := Defaults()
		if err := ApplyEnv(cfg); err != nil {
			return nil, err
		}
		cfg.expandPaths()
		return cfg, Validate(cfg)
	}
	return Load(path)
}

func (cfg *Config) expandPaths() {
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Paths.Contacts = ExpandPath(cfg.Paths.Contacts)
	cfg.Paths.Token = ExpandPath(cfg.Paths.Token)
	cfg.Paths.Macros = ExpandPath(cfg.Paths.Macros)
	cfg.Paths.HistoryDB = ExpandPath(cfg.Paths.HistoryDB)
	cfg.Google.ClientSecrets = ExpandPath(cfg.Google.ClientSecrets)
	cfg.Tools.ScreenshotDir = ExpandPath(cfg.Tools.ScreenshotDir)
	cfg.Tools.Browser.ProfileDir = ExpandPath(cfg.Tools.Browser.ProfileDir)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		hasDefault := len(groups) >= 3 && groups[2] != ""
		val, exists := os.LookupEnv(groups[1])
		if !exists || val == "" {
			if hasDefault {
				return groups[2]
			}
			return match
		}
		return val
	})
}

// Save writes cfg atomically. The file holds secrets and is private to the
// user.
func Save(path string, cfg *Config) error {
	if err := fileutil.WriteJSONAtomic(ExpandPath(path), cfg, 0o600); err != nil {
		return fmt.Errorf("cannot save config: %w", err)
	}
	return nil
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	for name, p := range map[string]string{
		"paths.contacts":  cfg.Paths.Contacts,
		"paths.token":     cfg.Paths.Token,
		"paths.historyDb": cfg.Paths.HistoryDB,
	} {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, name+" must not be empty")
		}
	}
	if cfg.Google.AuthTimeoutSeconds < 10 {
		errs = append(errs, "google.authTimeoutSeconds must be >= 10")
	}
	if cfg.Tools.CommandTimeoutSeconds < 1 {
		errs = append(errs, "tools.commandTimeoutSeconds must be >= 1")
	}
	if cfg.Tools.HTTPTimeoutSeconds < 1 {
		errs = append(errs, "tools.httpTimeoutSeconds must be >= 1")
	}
	if cfg.Tools.Browser.SearchTimeoutSeconds < 1 {
		errs = append(errs, "tools.browser.searchTimeoutSeconds must be >= 1")
	}
	if cfg.History.RetentionDays < 0 {
		errs = append(errs, "history.retentionDays must be >= 0")
	}
	if cfg.Metrics.Port < 0 || cfg.Metrics.Port > 65535 {
		errs = append(errs, "metrics.port must be between 0 and 65535")
	}
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Endpoint, "/") {
		errs = append(errs, "metrics.endpoint must start with /")
	}
	if cfg.Channels.Telegram.Burst < 1 || cfg.Channels.Telegram.RatePerMinute < 1 {
		errs = append(errs, "channels.telegram.burst and ratePerMinute must be >= 1")
	}
	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token == "" {
		errs = append(errs, "channels.telegram.token is required when telegram is enabled")
	}
	if cfg.Channels.Telegram.Enabled && len(cfg.Channels.Telegram.AllowFrom) == 0 {
		errs = append(errs, "channels.telegram.allowFrom must list at least one user ID when telegram is enabled")
	}
	if d := cfg.Channels.Discord; d.Enabled {
		if d.Token == "" {
			errs = append(errs, "channels.discord.token is required when discord is enabled")
		}
		if len(d.AllowFrom) == 0 {
			errs = append(errs, "channels.discord.allowFrom must list at least one user ID when discord is enabled")
		}
		if d.Burst < 1 || d.RatePerMinute < 1 {
			errs = append(errs, "channels.discord.burst and ratePerMinute must be >= 1")
		}
	}
	if sl := cfg.Channels.Slack; sl.Enabled {
		if sl.BotToken == "" || sl.AppToken == "" {
			errs = append(errs, "channels.slack.botToken and appToken are required when slack is enabled")
		}
		if len(sl.AllowFrom) == 0 {
			errs = append(errs, "channels.slack.allowFrom must list at least one member ID when slack is enabled")
		}
		if sl.Burst < 1 || sl.RatePerMinute < 1 {
			errs = append(errs, "channels.slack.burst and ratePerMinute must be >= 1")
		}
	}
	if ws := cfg.Channels.WebSocket; ws.Enabled {
		if ws.Token == "" {
			errs = append(errs, "channels.websocket.token is required when websocket is enabled")
		}
		if ws.Port < 1 || ws.Port > 65535 {
			errs = append(errs, "channels.websocket.port must be between 1 and 65535")
		}
		if !strings.HasPrefix(ws.Path, "/") {
			errs = append(errs, "channels.websocket.path must start with /")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
