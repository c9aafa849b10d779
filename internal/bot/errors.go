package bot

import (
	"errors"
	"fmt"

	"github.com/adiga-code/numerology/internal/database"
	"github.com/adiga-code/numerology/internal/flow"
	"github.com/adiga-code/numerology/internal/service"
)

func (b *Bot) getErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var verr *flow.ValidationError
	if errors.As(err, &verr) {
		return "⚠️ " + verr.Message
	}

	var cerr *service.ConfigurationError
	if errors.As(err, &cerr) {
		return "⚠️ Этот способ оплаты сейчас недоступен. Попробуйте другой или обратитесь в поддержку."
	}

	var derr *service.DeliveryError
	if errors.As(err, &derr) {
		return fmt.Sprintf("❌ Не удалось отправить отчёт. Напишите в поддержку: %s", b.supportContact())
	}

	switch {
	case errors.Is(err, service.ErrNoSession), errors.Is(err, flow.ErrSessionClosed):
		return "Начните новый заказ командой /new."
	case errors.Is(err, flow.ErrNotCancellable):
		return "Этот заказ уже нельзя отменить."
	case errors.Is(err, service.ErrNotCompleted):
		return "⏳ Отчёт по этому заказу ещё не готов."
	case errors.Is(err, service.ErrNotOwner):
		return "⚠️ Этот заказ оформлен другим пользователем."
	case errors.Is(err, service.ErrInvalidRating):
		return "⚠️ Оценка должна быть от 1 до 5."
	case errors.Is(err, database.ErrDuplicate):
		return "Вы уже оценили этот заказ. Спасибо!"
	case errors.Is(err, database.ErrNotFound):
		return "⚠️ Заказ не найден. Проверьте номер в /history."
	case errors.Is(err, database.ErrConcurrentModification):
		return "ℹ️ Заказ уже оплачен или закрыт."
	}

	// Default error message
	return fmt.Sprintf("❌ Произошла ошибка при обработке запроса. Попробуйте позже или напишите в поддержку: %s", b.supportContact())
}

func (b *Bot) supportContact() string {
	if b.config != nil && b.config.Bot.SupportContact != "" {
		return b.config.Bot.SupportContact
	}
	return "поддержка"
}
