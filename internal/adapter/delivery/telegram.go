package delivery

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/semmidev/dumpgram/internal/domain"
)

// TelegramUploadLimit is the largest document the public Bot API accepts.
const TelegramUploadLimit = 50 * 1024 * 1024

// TelegramDeliverer sends a file as a document to one chat via sendDocument.
type TelegramDeliverer struct {
	target    domain.DeliveryTarget
	endpoint  string
	timeout   time.Duration
	transport http.RoundTripper
}

// NewTelegram builds a deliverer for target. apiEndpoint may be empty for the
// public Bot API, a base URL of a self-hosted Bot API server, or a full
// ".../bot%s/%s" format string.
func NewTelegram(target domain.DeliveryTarget, apiEndpoint string, timeout time.Duration) *TelegramDeliverer {
	return &TelegramDeliverer{
		target:    target,
		endpoint:  endpointFormat(apiEndpoint),
		timeout:   timeout,
		transport: http.DefaultTransport,
	}
}

func endpointFormat(apiEndpoint string) string {
	switch {
	case apiEndpoint == "":
		return tgbotapi.APIEndpoint
	case strings.Contains(apiEndpoint, "%s"):
		return apiEndpoint
	default:
		return strings.TrimRight(apiEndpoint, "/") + "/bot%s/%s"
	}
}

func (t *TelegramDeliverer) Name() string {
	return "telegram"
}

func (t *TelegramDeliverer) SizeLimit() int64 {
	return TelegramUploadLimit
}

// Deliver uploads filePath with caption. The bot client is created here so a
// bad token or unreachable API is reported as a delivery failure.
func (t *TelegramDeliverer) Deliver(ctx context.Context, filePath string, caption string) error {
	chatID, err := strconv.ParseInt(t.target.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w: %w", t.target.ChatID, domain.ErrDelivery, err)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w: %w", domain.ErrDelivery, err)
	}
	defer file.Close()

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	client := &http.Client{
		Transport: contextTransport{ctx: ctx, base: t.transport},
	}

	bot, err := tgbotapi.NewBotAPIWithClient(t.target.BotToken, t.endpoint, client)
	if err != nil {
		return fmt.Errorf("failed to create telegram bot: %w: %w", domain.ErrDelivery, err)
	}

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileReader{
		Name:   filepath.Base(filePath),
		Reader: file,
	})
	doc.Caption = caption

	if _, err := bot.Send(doc); err != nil {
		return fmt.Errorf("failed to send telegram document: %w: %w", domain.ErrDelivery, err)
	}

	return nil
}

// contextTransport binds outgoing requests to ctx, since the bot client does
// not take a context itself. The delivery timeout lives on ctx.
type contextTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (c contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return c.base.RoundTrip(req.WithContext(c.ctx))
}
