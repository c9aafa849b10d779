// Package alerting notifies operators about failures that need a human.
package alerting

import (
	"context"

	"github.com/adiga-code/numerology/internal/domain"
	"github.com/adiga-code/numerology/internal/logging"

	"github.com/rs/zerolog"
)

// TelegramAlerter sends alerts to the operator chat. Without a chat it only
// logs.
type TelegramAlerter struct {
	telegram domain.TelegramService
	chatID   int64
	logger   *zerolog.Logger
}

func NewTelegramAlerter(telegram domain.TelegramService, chatID int64, logger *zerolog.Logger) *TelegramAlerter {
	return &TelegramAlerter{telegram: telegram, chatID: chatID, logger: logger}
}

func (a *TelegramAlerter) Alert(ctx context.Context, text string) {
	log := logging.Ctx(ctx, a.logger)
	log.Error().Str("alert", text).Msg("Operator alert")

	if a.telegram == nil || a.chatID == 0 {
		return
	}
	if _, err := a.telegram.SendMessage(a.chatID, "⚠️ "+text); err != nil {
		log.Error().Err(err).Int64("chat_id", a.chatID).Msg("failed to deliver operator alert")
	}
}
