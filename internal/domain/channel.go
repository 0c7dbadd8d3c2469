package domain

import "context"

// Channel is a text front-end (terminal, Telegram) that turns user input into
// intents. Start blocks until ctx is cancelled or the channel closes.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
}
