package bot

import (
	"fmt"
	"strings"

	"github.com/adiga-code/numerology/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	cbNew        = "new"
	cbSkip       = "skip"
	cbCancel     = "cancel"
	cbTariff     = "tariff:"
	cbStyle      = "style:"
	cbPayStars   = "pay:stars:"
	cbPayGateway = "pay:gateway:"
	cbReview     = "review:"
)

func (b *Bot) tariffKeyboard() tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, t := range b.catalog.All() {
		label := fmt.Sprintf("%s · %s", t.Title, models.FormatAmount(t.Price, models.CurrencyRUB))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, cbTariff+string(t.Code)),
		))
	}
	rows = append(rows, cancelRow())
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func styleKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📊 "+models.StyleAnalytical.Title(), cbStyle+string(models.StyleAnalytical)),
			tgbotapi.NewInlineKeyboardButtonData("🔮 "+models.StyleShamanic.Title(), cbStyle+string(models.StyleShamanic)),
		),
		cancelRow(),
	)
}

func skipKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("⏭ Пропустить", cbSkip)),
		cancelRow(),
	)
}

func cancelKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(cancelRow())
}

func cancelRow() []tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("✖️ Отменить", cbCancel))
}

func (b *Bot) paymentKeyboard(order *models.Order) (tgbotapi.InlineKeyboardMarkup, bool) {
	var row []tgbotapi.InlineKeyboardButton
	if b.config.Payments.StarsEnabled {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("⭐ Telegram Stars", cbPayStars+order.ExternalID))
	}
	if b.config.Payments.Gateway.Enabled {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("💳 Картой", cbPayGateway+order.ExternalID))
	}
	if len(row) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	return tgbotapi.NewInlineKeyboardMarkup(row), true
}

// keyboardFor returns the buttons that accompany the prompt of a step.
func (b *Bot) keyboardFor(step models.SessionStep) tgbotapi.InlineKeyboardMarkup {
	switch step {
	case models.StepCollectingTariff:
		return b.tariffKeyboard()
	case models.StepBirthTime, models.StepBirthPlace:
		return skipKeyboard()
	case models.StepCollectingStyle:
		return styleKeyboard()
	default:
		return cancelKeyboard()
	}
}

func (b *Bot) tariffTitle(t models.Tariff) string {
	if info, ok := b.catalog.Lookup(t); ok {
		return info.Title
	}
	return string(t)
}

func (b *Bot) orderSummary(order *models.Order, participants int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📝 Заказ %s оформлен\n\n", order.ShortID())
	fmt.Fprintf(&sb, "Тариф: %s\n", b.tariffTitle(order.Tariff))
	fmt.Fprintf(&sb, "Стиль: %s\n", order.Style.Title())
	if participants > 0 {
		fmt.Fprintf(&sb, "Участников: %d\n", participants)
	}
	fmt.Fprintf(&sb, "К оплате: %s\n", models.FormatAmount(order.Amount, order.Currency))
	return sb.String()
}

func (b *Bot) formatHistory(orders []*models.Order) string {
	if len(orders) == 0 {
		return "У вас пока нет заказов. Оформить: /new"
	}
	var sb strings.Builder
	sb.WriteString("📜 Ваши заказы:\n\n")
	for _, o := range orders {
		fmt.Fprintf(&sb, "%s %s · %s · %s · %s\n",
			o.Status.Emoji(), o.ShortID(), b.tariffTitle(o.Tariff),
			o.CreatedAt.Format("02.01.2006"), models.FormatAmount(o.Amount, o.Currency))
	}
	sb.WriteString("\nПовторно получить отчёт: /download <номер>")
	return sb.String()
}

func (b *Bot) sendMessage(chatID int64, text string) {
	if _, err := b.tgService.SendMessage(chatID, text); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send message")
	}
}

func (b *Bot) sendWithKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) {
	if _, err := b.tgService.SendWithInlineKeyboard(chatID, text, keyboard); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send message")
	}
}

func (b *Bot) sendError(chatID int64, err error) {
	if b.metrics != nil {
		b.metrics.ErrorsTotal.Inc()
	}
	b.sendMessage(chatID, b.getErrorMessage(err))
}
