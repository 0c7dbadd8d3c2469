package channel

import (
	"context"
	"strings"
	"testing"

	"github.com/slack-go/slack/slackevents"
)

func newTestSlack(d *fakeDispatcher, sent *[]sentMessage) *Slack {
	s := NewSlack(SlackConfig{
		BotToken:  "xoxb-test",
		AppToken:  "xapp-test",
		AllowFrom: []string{"U1"},
		Responder: newResponder(d),
		Logger:    testLogger(),
	})
	s.botUID = "UBOT"
	s.post = func(_ context.Context, channelID, text string) error {
		*sent = append(*sent, sentMessage{channelID, text})
		return nil
	}
	return s
}

func callback(data any) slackevents.EventsAPIEvent {
	return slackevents.EventsAPIEvent{
		Type:       slackevents.CallbackEvent,
		InnerEvent: slackevents.EventsAPIInnerEvent{Data: data},
	}
}

func TestSlack_DirectMessage(t *testing.T) {
	d := &fakeDispatcher{known: map[string]string{"get_joke": "A joke."}}
	var sent []sentMessage
	s := newTestSlack(d, &sent)

	s.handleEventsAPI(context.Background(), callback(&slackevents.MessageEvent{User: "U1", Channel: "D1", Text: "get_joke"}))

	if len(sent) != 1 || sent[0] != (sentMessage{"D1", "A joke."}) {
		t.Fatalf("unexpected replies: %+v", sent)
	}
	if d.sources[0] != "slack" {
		t.Errorf("source = %q", d.sources[0])
	}
}

func TestSlack_MentionStripsBotName(t *testing.T) {
	d := &fakeDispatcher{known: map[string]string{"set_volume": "Volume set to 40%."}}
	var sent []sentMessage
	s := newTestSlack(d, &sent)

	s.handleEventsAPI(context.Background(), callback(&slackevents.AppMentionEvent{User: "U1", Channel: "C1", Text: "<@UBOT> set_volume 40"}))

	if len(d.seen) != 1 || d.seen[0].Capability != "set_volume" || d.seen[0].Args["value"] != "40" {
		t.Fatalf("dispatched %+v", d.seen)
	}
}

func TestSlack_IgnoresBotsAndEdits(t *testing.T) {
	d := &fakeDispatcher{known: map[string]string{"get_joke": "A joke."}}
	var sent []sentMessage
	s := newTestSlack(d, &sent)

	for _, ev := range []*slackevents.MessageEvent{
		{User: "UBOT", Channel: "D1", Text: "get_joke"},
		{User: "U1", Channel: "D1", Text: "get_joke", SubType: "message_changed"},
		{User: "U1", Channel: "D1", Text: "get_joke", BotID: "B1"},
		{Channel: "D1", Text: "get_joke"},
	} {
		s.handleEventsAPI(context.Background(), callback(ev))
	}
	if len(d.seen) != 0 || len(sent) != 0 {
		t.Fatalf("expected silence, got %+v", sent)
	}
}

func TestSlack_UnlistedUser(t *testing.T) {
	d := &fakeDispatcher{known: map[string]string{"get_joke": "A joke."}}
	var sent []sentMessage
	s := newTestSlack(d, &sent)

	s.respond(context.Background(), "C1", "U9", "get_joke")

	if len(d.seen) != 0 {
		t.Fatal("unlisted user must not dispatch")
	}
	if len(sent) != 1 || !strings.Contains(sent[0].text, "Unauthorized") {
		t.Fatalf("unexpected replies: %+v", sent)
	}
}

func TestSlack_RateLimitsSender(t *testing.T) {
	d := &fakeDispatcher{known: map[string]string{"get_joke": "A joke."}}
	var sent []sentMessage
	s := newTestSlack(d, &sent)
	s.gate = newGate([]string{"U1"}, 1, 1)

	s.respond(context.Background(), "C1", "U1", "get_joke")
	s.respond(context.Background(), "C1", "U1", "get_joke")

	if len(d.seen) != 1 {
		t.Fatalf("expected one dispatch, got %d", len(d.seen))
	}
	if len(sent) != 2 || !strings.Contains(sent[1].text, "Slow down") {
		t.Fatalf("unexpected replies: %+v", sent)
	}
}
