package channel

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"jarvis/internal/metrics"
)

const discordMaxMsgLen = 2000

// Discord accepts text intents from Discord messages.
type Discord struct {
	token   string
	guildID string // empty accepts every guild and direct messages

	responder *Responder
	gate      *gate
	send      func(channelID, text string) error
	logger    *slog.Logger
}

type DiscordConfig struct {
	Token   string
	GuildID string
	// AllowFrom lists the Discord user IDs that may send intents.
	AllowFrom     []string
	Burst         int
	RatePerMinute int
	Responder     *Responder
	Logger        *slog.Logger
}

func NewDiscord(cfg DiscordConfig) *Discord {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Discord{
		token:     cfg.Token,
		guildID:   cfg.GuildID,
		responder: cfg.Responder,
		gate:      newGate(cfg.AllowFrom, cfg.Burst, cfg.RatePerMinute),
		logger:    logger,
	}
}

func (d *Discord) Name() string { return "discord" }

// Start connects with the bot token and handles messages until ctx is
// cancelled.
func (d *Discord) Start(ctx context.Context) error {
	session, err := discordgo.New("Bot " + d.token)
	if err != nil {
		return fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent

	d.send = func(channelID, text string) error {
		_, err := session.ChannelMessageSend(channelID, text)
		return err
	}
	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		var self string
		if s.State != nil && s.State.User != nil {
			self = s.State.User.ID
		}
		d.handleMessage(ctx, self, m)
	})

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}
	d.logger.Info("discord bot connected")

	metrics.ActiveChannels.Inc()
	defer metrics.ActiveChannels.Dec()

	<-ctx.Done()
	d.logger.Info("discord bot disconnecting")
	return session.Close()
}

func (d *Discord) handleMessage(ctx context.Context, selfID string, m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil || m.Author == nil {
		return
	}
	if m.Author.ID == selfID || m.Author.Bot {
		return
	}
	if d.guildID != "" && m.GuildID != d.guildID {
		return
	}
	reply := relay(ctx, d.responder, d.gate, d.Name(), m.Author.ID, m.Content, d.logger)
	if reply != "" {
		d.sendMessage(m.ChannelID, reply)
	}
}

func (d *Discord) sendMessage(channelID, text string) {
	for _, chunk := range splitMessage(text, discordMaxMsgLen) {
		if err := d.send(channelID, chunk); err != nil {
			d.logger.Error("discord send failed", "channel", channelID, "err", err)
		}
	}
}
