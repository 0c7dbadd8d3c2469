package channel

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"
)

// gate admits text from chat-platform senders: only listed IDs get through,
// each under its own rate limit. An empty list admits nobody.
type gate struct {
	allow   map[string]struct{}
	limiter *senderLimiter
}

func newGate(allowFrom []string, burst, ratePerMinute int) *gate {
	allow := make(map[string]struct{}, len(allowFrom))
	for _, id := range allowFrom {
		if id = strings.TrimSpace(id); id != "" {
			allow[id] = struct{}{}
		}
	}
	return &gate{allow: allow, limiter: newSenderLimiter(burst, float64(ratePerMinute))}
}

func (g *gate) allowed(sender string) bool {
	_, ok := g.allow[sender]
	return ok
}

// relay runs text from sender through r and returns the reply to post. An
// empty reply means stay silent.
func relay(ctx context.Context, r *Responder, g *gate, source, sender, text string, logger *slog.Logger) string {
	if !g.allowed(sender) {
		logger.Warn("unauthorized sender", "channel", source, "sender", sender)
		return "Unauthorized. Your user ID is not in the allow list."
	}
	text = strings.TrimSpace(text)
	switch strings.ToLower(text) {
	case "":
		return ""
	case "help", "!help":
		return r.Help()
	}
	if !g.limiter.Allow(sender) {
		logger.Warn("sender rate limited", "channel", source, "sender", sender)
		return "Slow down, I'm still working on your earlier requests."
	}

	logger.Info("message received", "channel", source, "sender", sender, "text_len", len(text))
	results, err := r.Handle(ctx, source, text)
	if err != nil {
		return ParseErrorMessage(err)
	}
	if len(results) == 0 {
		return ""
	}
	return renderPlain(results)
}

// splitMessage cuts msg into chunks of at most maxLen bytes, preferring to
// end a chunk after a newline and never splitting a rune.
func splitMessage(msg string, maxLen int) []string {
	if len(msg) <= maxLen {
		return []string{msg}
	}

	var chunks []string
	for len(msg) > 0 {
		if len(msg) <= maxLen {
			chunks = append(chunks, msg)
			break
		}
		cut := maxLen
		if idx := strings.LastIndex(msg[:maxLen], "\n"); idx > maxLen/2 {
			cut = idx + 1
		} else {
			for cut > 0 && !utf8.RuneStart(msg[cut]) {
				cut--
			}
		}
		chunks = append(chunks, msg[:cut])
		msg = msg[cut:]
	}
	return chunks
}
