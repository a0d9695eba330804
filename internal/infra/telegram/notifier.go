package telegram

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"linkhub-membership/internal/config"
	"linkhub-membership/internal/domain/ports/adapter"
	"linkhub-membership/internal/infra/worker"
)

var _ adapter.AdminNotifier = (*AdminNotifier)(nil)

// sender is the part of tgbotapi.BotAPI the notifier needs.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// AdminNotifier posts payment alerts to the operator chats. Delivery runs on
// the worker pool so a slow Telegram API never holds a webhook response.
type AdminNotifier struct {
	bot     sender
	chatIDs []int64
	pool    *worker.Pool
	log     *zerolog.Logger
}

func NewAdminNotifier(cfg config.TelegramConfig, pool *worker.Pool, logger *zerolog.Logger) (*AdminNotifier, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram token is empty")
	}
	if len(cfg.AdminChatIDs) == 0 {
		return nil, errors.New("no admin chat ids configured")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return newAdminNotifier(bot, cfg.AdminChatIDs, pool, logger), nil
}

func newAdminNotifier(bot sender, chatIDs []int64, pool *worker.Pool, logger *zerolog.Logger) *AdminNotifier {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "AdminNotifier").Logger()
	return &AdminNotifier{bot: bot, chatIDs: chatIDs, pool: pool, log: &l}
}

// NotifyAdmins queues the text for every admin chat. It only fails when the
// queue is full; send errors are logged by the worker.
func (n *AdminNotifier) NotifyAdmins(ctx context.Context, text string) error {
	if n.pool == nil {
		return n.send(ctx, text)
	}
	return n.pool.Submit(func(ctx context.Context) error { return n.send(ctx, text) })
}

func (n *AdminNotifier) send(ctx context.Context, text string) error {
	var errs []error
	for _, id := range n.chatIDs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msg := tgbotapi.NewMessage(id, text)
		msg.DisableWebPagePreview = true
		if _, err := n.bot.Send(msg); err != nil {
			n.log.Warn().Err(err).Int64("chat_id", id).Msg("send admin alert failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NoopNotifier logs alerts instead of sending them. Used when no bot token is
// configured.
type NoopNotifier struct {
	log *zerolog.Logger
}

func NewNoopNotifier(logger *zerolog.Logger) *NoopNotifier {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &NoopNotifier{log: logger}
}

func (n *NoopNotifier) NotifyAdmins(ctx context.Context, text string) error {
	n.log.Info().Str("text", text).Msg("admin alert (telegram disabled)")
	return nil
}
