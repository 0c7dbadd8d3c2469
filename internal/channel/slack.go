package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"jarvis/internal/metrics"
)

const slackMaxMsgLen = 4000

// Slack accepts text intents over Slack Socket Mode: direct messages,
// mentions and slash commands.
type Slack struct {
	botToken string
	appToken string
	botUID   string

	responder *Responder
	gate      *gate
	post      func(ctx context.Context, channelID, text string) error
	logger    *slog.Logger
}

type SlackConfig struct {
	BotToken string
	AppToken string
	// AllowFrom lists the Slack member IDs that may send intents.
	AllowFrom     []string
	Burst         int
	RatePerMinute int
	Responder     *Responder
	Logger        *slog.Logger
}

func NewSlack(cfg SlackConfig) *Slack {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Slack{
		botToken:  cfg.BotToken,
		appToken:  cfg.AppToken,
		responder: cfg.Responder,
		gate:      newGate(cfg.AllowFrom, cfg.Burst, cfg.RatePerMinute),
		logger:    logger,
	}
}

func (s *Slack) Name() string { return "slack" }

// Start connects through Socket Mode and handles events until ctx is
// cancelled.
func (s *Slack) Start(ctx context.Context) error {
	api := slack.New(s.botToken, slack.OptionAppLevelToken(s.appToken))
	auth, err := api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth: %w", err)
	}
	s.botUID = auth.UserID
	s.post = func(ctx context.Context, channelID, text string) error {
		_, _, err := api.PostMessageContext(ctx, channelID, slack.MsgOptionText(text, false))
		return err
	}
	s.logger.Info("slack bot connected", "user", auth.User, "user_id", auth.UserID)

	metrics.ActiveChannels.Inc()
	defer metrics.ActiveChannels.Dec()

	sock := socketmode.New(api)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-sock.Events:
				if !ok {
					return
				}
				s.handleSocketEvent(ctx, sock, evt)
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- sock.RunContext(ctx)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("slack bot disconnecting")
		return nil
	case err := <-errCh:
		return fmt.Errorf("slack socket mode: %w", err)
	}
}

func (s *Slack) handleSocketEvent(ctx context.Context, sock *socketmode.Client, evt socketmode.Event) {
	// Unacknowledged envelopes are redelivered.
	if evt.Request != nil {
		sock.Ack(*evt.Request)
	}
	switch evt.Type {
	case socketmode.EventTypeEventsAPI:
		if ev, ok := evt.Data.(slackevents.EventsAPIEvent); ok {
			s.handleEventsAPI(ctx, ev)
		}
	case socketmode.EventTypeSlashCommand:
		if cmd, ok := evt.Data.(slack.SlashCommand); ok {
			s.respond(ctx, cmd.ChannelID, cmd.UserID, cmd.Text)
		}
	}
}

func (s *Slack) handleEventsAPI(ctx context.Context, event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}
	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		if ev.User == "" || ev.User == s.botUID || ev.SubType != "" || ev.BotID != "" {
			return
		}
		s.respond(ctx, ev.Channel, ev.User, ev.Text)
	case *slackevents.AppMentionEvent:
		if ev.User == s.botUID {
			return
		}
		text := ev.Text
		if _, rest, ok := strings.Cut(text, ">"); ok {
			text = rest
		}
		s.respond(ctx, ev.Channel, ev.User, text)
	}
}

func (s *Slack) respond(ctx context.Context, channelID, user, text string) {
	reply := relay(ctx, s.responder, s.gate, s.Name(), user, text, s.logger)
	if reply == "" {
		return
	}
	for _, chunk := range splitMessage(reply, slackMaxMsgLen) {
		if err := s.post(ctx, channelID, chunk); err != nil {
			s.logger.Error("slack send failed", "channel", channelID, "err", err)
		}
	}
}
