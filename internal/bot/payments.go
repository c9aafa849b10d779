package bot

import (
	"context"
	"errors"

	"github.com/adiga-code/numerology/internal/database"
	"github.com/adiga-code/numerology/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

func (b *Bot) handlePayStars(ctx context.Context, chatID int64, externalID string) {
	if b.services.Payments == nil || !b.config.Payments.StarsEnabled {
		b.sendMessage(chatID, "⚠️ Оплата через Telegram Stars сейчас недоступна.")
		return
	}
	if b.metrics != nil {
		b.metrics.PaymentsStarted.WithLabelValues(string(models.PaymentTelegramStars)).Inc()
	}
	if err := b.services.Payments.SendStarsInvoice(ctx, chatID, externalID); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("external_id", externalID).Msg("Failed to send Stars invoice")
		b.sendError(chatID, err)
	}
}

func (b *Bot) handlePayGateway(ctx context.Context, chatID, userID int64, externalID string) {
	if b.services.Payments == nil {
		b.sendMessage(chatID, "⚠️ Оплата картой сейчас недоступна.")
		return
	}
	if b.metrics != nil {
		b.metrics.PaymentsStarted.WithLabelValues(string(models.PaymentGateway)).Inc()
	}
	url, err := b.services.Payments.CreateGatewayPayment(ctx, userID, externalID)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("external_id", externalID).Msg("Failed to create gateway payment")
		b.sendError(chatID, err)
		return
	}
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("💳 Перейти к оплате", url)),
	)
	b.sendWithKeyboard(chatID, "Ссылка на оплату готова. После оплаты отчёт начнёт готовиться автоматически.", keyboard)
}

func (b *Bot) handlePreCheckout(ctx context.Context, q *tgbotapi.PreCheckoutQuery) {
	if b.services.Payments == nil {
		return
	}
	if err := b.services.Payments.AnswerPreCheckout(ctx, q); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("payload", q.InvoicePayload).Msg("Pre-checkout declined")
	}
}

func (b *Bot) handleSuccessfulPayment(ctx context.Context, msg *tgbotapi.Message) {
	if b.services.Payments == nil {
		return
	}
	order, err := b.services.Payments.HandleSuccessfulPayment(ctx, msg.SuccessfulPayment)
	switch {
	case err == nil:
		b.sendMessage(msg.Chat.ID, "✅ Оплата получена! Заказ "+order.ShortID()+" готовится, отчёт придёт в этот чат.")
	case errors.Is(err, database.ErrConcurrentModification):
		// повторное уведомление об оплате
		zerolog.Ctx(ctx).Info().Str("charge_id", msg.SuccessfulPayment.TelegramPaymentChargeID).Msg("Payment already applied")
	default:
		zerolog.Ctx(ctx).Error().Err(err).
			Str("charge_id", msg.SuccessfulPayment.TelegramPaymentChargeID).
			Msg("Failed to apply successful payment")
		b.sendMessage(msg.Chat.ID, "⚠️ Оплата получена, но при обработке возникла ошибка. Напишите в поддержку: "+b.supportContact())
	}
}
