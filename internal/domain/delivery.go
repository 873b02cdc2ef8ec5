package domain

import "context"

// DeliveryTarget routes an archive to an operator through a Telegram bot.
type DeliveryTarget struct {
	BotToken string
	ChatID   string
}

// Deliverer makes a single best-effort attempt to hand a file to a remote operator.
type Deliverer interface {
	Deliver(ctx context.Context, filePath string, caption string) error
	Name() string
}
