package channel

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
)

type sentMessage struct {
	channel, text string
}

func newTestDiscord(d *fakeDispatcher, sent *[]sentMessage) *Discord {
	dc := NewDiscord(DiscordConfig{
		Token:     "test",
		AllowFrom: []string{"u1"},
		Responder: newResponder(d),
		Logger:    testLogger(),
	})
	dc.send = func(channelID, text string) error {
		*sent = append(*sent, sentMessage{channelID, text})
		return nil
	}
	return dc
}

func discordMessage(author, content string) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{Message: &discordgo.Message{
		ChannelID: "c1",
		GuildID:   "g1",
		Content:   content,
		Author:    &discordgo.User{ID: author},
	}}
}

func TestDiscord_DispatchesText(t *testing.T) {
	d := &fakeDispatcher{known: map[string]string{"get_joke": "A joke."}}
	var sent []sentMessage
	dc := newTestDiscord(d, &sent)

	dc.handleMessage(context.Background(), "bot", discordMessage("u1", "get_joke"))

	if len(sent) != 1 || sent[0] != (sentMessage{"c1", "A joke."}) {
		t.Fatalf("unexpected replies: %+v", sent)
	}
	if d.sources[0] != "discord" {
		t.Errorf("source = %q", d.sources[0])
	}
}

func TestDiscord_IgnoresSelfAndBots(t *testing.T) {
	d := &fakeDispatcher{known: map[string]string{"get_joke": "A joke."}}
	var sent []sentMessage
	dc := newTestDiscord(d, &sent)

	dc.handleMessage(context.Background(), "u1", discordMessage("u1", "get_joke"))
	bot := discordMessage("u2", "get_joke")
	bot.Author.Bot = true
	dc.handleMessage(context.Background(), "self", bot)

	if len(d.seen) != 0 || len(sent) != 0 {
		t.Fatalf("expected silence, got %+v", sent)
	}
}

func TestDiscord_AllowListAndGuild(t *testing.T) {
	d := &fakeDispatcher{known: map[string]string{"get_joke": "A joke."}}
	var sent []sentMessage
	dc := newTestDiscord(d, &sent)
	dc.guildID = "g2"

	dc.handleMessage(context.Background(), "bot", discordMessage("u1", "get_joke"))
	if len(sent) != 0 {
		t.Fatal("messages from other guilds must be ignored")
	}

	dc.guildID = ""
	dc.handleMessage(context.Background(), "bot", discordMessage("intruder", "get_joke"))
	if len(d.seen) != 0 {
		t.Fatal("unlisted user must not dispatch")
	}
	if len(sent) != 1 || !strings.Contains(sent[0].text, "Unauthorized") {
		t.Fatalf("unexpected replies: %+v", sent)
	}
}

func TestDiscord_EmptyAllowListDeniesEveryone(t *testing.T) {
	d := &fakeDispatcher{known: map[string]string{"get_joke": "A joke."}}
	var sent []sentMessage
	dc := newTestDiscord(d, &sent)
	dc.gate = newGate(nil, 5, 20)

	dc.handleMessage(context.Background(), "bot", discordMessage("u1", "get_joke"))
	if len(d.seen) != 0 {
		t.Fatal("no user may dispatch without an allow list")
	}
}

func TestDiscord_Help(t *testing.T) {
	var sent []sentMessage
	dc := newTestDiscord(&fakeDispatcher{}, &sent)

	dc.handleMessage(context.Background(), "bot", discordMessage("u1", "!help"))
	if len(sent) != 1 || !strings.Contains(sent[0].text, "set_volume") {
		t.Fatalf("unexpected replies: %+v", sent)
	}
}

func TestSplitMessage(t *testing.T) {
	lines := strings.Repeat("x", 1500) + "\n" + strings.Repeat("y", 1500)
	chunks := splitMessage(lines, discordMaxMsgLen)
	if len(chunks) != 2 || !strings.HasSuffix(chunks[0], "\n") {
		t.Fatalf("expected a newline cut, got %d chunks", len(chunks))
	}

	runes := "a" + strings.Repeat("ü", 3000)
	chunks = splitMessage(runes, discordMaxMsgLen)
	for i, c := range chunks {
		if !utf8.ValidString(c) || len(c) > discordMaxMsgLen {
			t.Errorf("chunk %d: %d bytes, valid=%v", i, len(c), utf8.ValidString(c))
		}
	}
	if strings.Join(chunks, "") != runes {
		t.Error("chunks do not reassemble to the original")
	}
}
