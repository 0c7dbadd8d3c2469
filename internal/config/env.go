package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// envOverlay lists the settings that may come from the environment. Set
// variables win over the config file.
type envOverlay struct {
	LogLevel        string `envconfig:"JARVIS_LOG_LEVEL"`
	WeatherAPIKey   string `envconfig:"WEATHER_API_KEY"`
	NewsAPIKey      string `envconfig:"NEWS_API_KEY"`
	WhatsAppToken   string `envconfig:"WHATSAPP_ACCESS_TOKEN"`
	WhatsAppPhoneID string `envconfig:"WHATSAPP_PHONE_NUMBER_ID"`
	TelegramToken   string `envconfig:"TELEGRAM_BOT_TOKEN"`
	DiscordToken    string `envconfig:"DISCORD_BOT_TOKEN"`
	SlackBotToken   string `envconfig:"SLACK_BOT_TOKEN"`
	SlackAppToken   string `envconfig:"SLACK_APP_TOKEN"`
	WebSocketToken  string `envconfig:"JARVIS_WS_TOKEN"`
	ClientSecrets   string `envconfig:"GOOGLE_CLIENT_SECRETS"`
}

// ApplyEnv overlays environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	var env envOverlay
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.General.LogLevel, env.LogLevel)
	set(&cfg.Services.WeatherAPIKey, env.WeatherAPIKey)
	set(&cfg.Services.NewsAPIKey, env.NewsAPIKey)
	set(&cfg.Services.WhatsApp.AccessToken, env.WhatsAppToken)
	set(&cfg.Services.WhatsApp.PhoneNumberID, env.WhatsAppPhoneID)
	set(&cfg.Channels.Telegram.Token, env.TelegramToken)
	set(&cfg.Channels.Discord.Token, env.DiscordToken)
	set(&cfg.Channels.Slack.BotToken, env.SlackBotToken)
	set(&cfg.Channels.Slack.AppToken, env.SlackAppToken)
	set(&cfg.Channels.WebSocket.Token, env.WebSocketToken)
	set(&cfg.Google.ClientSecrets, env.ClientSecrets)
	return nil
}
