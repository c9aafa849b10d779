package bot

import (
	"context"
	"strconv"
	"strings"

	"github.com/adiga-code/numerology/internal/flow"
	"github.com/adiga-code/numerology/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

func (b *Bot) handleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	data := callback.Data
	userID := callback.From.ID

	// Отвечаем на callback сразу, чтобы убрать "часики"
	if err := b.tgService.AnswerCallback(callback.ID, ""); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Msg("Failed to answer callback")
	}

	if callback.Message == nil {
		return
	}
	chatID := callback.Message.Chat.ID

	switch {
	case data == cbNew:
		b.startOrder(ctx, chatID, userID)

	case data == cbCancel:
		b.handleCancel(ctx, chatID, userID)

	case data == cbSkip:
		b.applyInput(ctx, chatID, userID, flow.Skip())

	case strings.HasPrefix(data, cbTariff):
		b.applyInput(ctx, chatID, userID, flow.Tariff(models.Tariff(strings.TrimPrefix(data, cbTariff))))

	case strings.HasPrefix(data, cbStyle):
		b.applyInput(ctx, chatID, userID, flow.Style(models.Style(strings.TrimPrefix(data, cbStyle))))

	case strings.HasPrefix(data, cbPayStars):
		b.handlePayStars(ctx, chatID, strings.TrimPrefix(data, cbPayStars))

	case strings.HasPrefix(data, cbPayGateway):
		b.handlePayGateway(ctx, chatID, userID, strings.TrimPrefix(data, cbPayGateway))

	case strings.HasPrefix(data, cbReview):
		b.handleReviewRating(ctx, callback, strings.TrimPrefix(data, cbReview))

	default:
		zerolog.Ctx(ctx).Debug().Str("data", data).Msg("Unknown callback")
	}
}

// handleReviewRating parses "<order_id>:<rating>".
func (b *Bot) handleReviewRating(ctx context.Context, callback *tgbotapi.CallbackQuery, payload string) {
	chatID := callback.Message.Chat.ID
	if b.services.Reviews == nil {
		return
	}

	idStr, ratingStr, ok := strings.Cut(payload, ":")
	orderID, err1 := strconv.ParseInt(idStr, 10, 64)
	rating, err2 := strconv.Atoi(ratingStr)
	if !ok || err1 != nil || err2 != nil {
		zerolog.Ctx(ctx).Warn().Str("payload", payload).Msg("Malformed review callback")
		return
	}

	commentOpen, err := b.services.Reviews.SubmitRating(ctx, callback.From.ID, orderID, rating)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Int64("order_id", orderID).Msg("Review rating rejected")
		b.sendError(chatID, err)
		return
	}

	// убираем кнопки, чтобы не оценивали повторно
	if _, err := b.tgService.EditMessage(chatID, callback.Message.MessageID,
		"Ваша оценка: "+strings.Repeat("⭐", rating), nil); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Msg("Failed to edit review message")
	}
	if !commentOpen {
		b.sendMessage(chatID, "🙏 Спасибо за оценку!")
		return
	}
	b.sendMessage(chatID, "Спасибо! Если хотите, напишите пару слов об отчёте или нажмите /skip.")
}
