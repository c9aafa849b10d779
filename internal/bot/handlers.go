package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/adiga-code/numerology/internal/flow"
	"github.com/adiga-code/numerology/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const historyLimit = 10

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	l := zerolog.Ctx(ctx)

	if b.metrics != nil {
		b.metrics.MessagesProcessed.Inc()
	}

	l.Debug().
		Int64("user_id", userID).
		Str("username", msg.From.UserName).
		Bool("command", msg.IsCommand()).
		Msg("Handling message")

	if msg.IsCommand() {
		if b.metrics != nil {
			b.metrics.CommandsProcessed.WithLabelValues(msg.Command()).Inc()
		}
		b.handleCommand(ctx, msg)
		return
	}

	b.handleText(ctx, msg)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	userID := msg.From.ID

	switch msg.Command() {
	case "start":
		b.handleStart(ctx, msg)
	case "new":
		b.startOrder(ctx, chatID, userID)
	case "help":
		b.sendMessage(chatID, helpText)
	case "support":
		b.sendMessage(chatID, fmt.Sprintf("🆘 Поддержка: %s\nУкажите номер заказа из /history.", b.supportContact()))
	case "cancel":
		b.handleCancel(ctx, chatID, userID)
	case "skip":
		b.handleSkip(ctx, chatID, userID)
	case "history":
		b.handleHistory(ctx, chatID, userID)
	case "download":
		b.handleDownload(ctx, chatID, userID, msg.CommandArguments())
	case "export":
		if !b.services.Users.IsManager(userID) {
			b.sendMessage(chatID, "Команда доступна только менеджерам.")
			return
		}
		b.handleExport(ctx, chatID)
	default:
		b.sendMessage(chatID, "Неизвестная команда. Список команд: /help")
	}
}

const helpText = `🔢 Я готовлю персональные нумерологические отчёты.

/new - новый заказ
/history - мои заказы
/download <номер> - получить отчёт ещё раз
/cancel - отменить оформление
/support - связаться с поддержкой`

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	user := &models.User{
		TelegramID:   msg.From.ID,
		Username:     msg.From.UserName,
		FirstName:    msg.From.FirstName,
		LastName:     msg.From.LastName,
		LanguageCode: msg.From.LanguageCode,
	}
	if err := b.services.Users.SaveUser(ctx, user); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("user_id", msg.From.ID).Msg("Failed to save user")
	}

	name := msg.From.FirstName
	if name == "" {
		name = msg.From.UserName
	}
	text := fmt.Sprintf("Здравствуйте, %s!\n\n%s", name, helpText)

	if active, err := b.services.Orders.ActiveOrder(ctx, msg.From.ID); err == nil && active != nil {
		text += fmt.Sprintf("\n\nТекущий заказ %s: %s %s", active.ShortID(), active.Status.Emoji(), statusTitle(active.Status))
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔮 Новый заказ", cbNew)),
	)
	b.sendWithKeyboard(msg.Chat.ID, text, keyboard)
}

func (b *Bot) startOrder(ctx context.Context, chatID, userID int64) {
	session, err := b.services.Orders.Start(ctx, userID)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("user_id", userID).Msg("Failed to start order")
		b.sendError(chatID, err)
		return
	}
	b.sendWithKeyboard(chatID, b.services.Orders.Machine().Prompt(session), b.keyboardFor(session.Step))
}

// handleText routes free text: review comment, order data or a hint.
func (b *Bot) handleText(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	userID := msg.From.ID

	session, err := b.services.Orders.Session(ctx, userID)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("user_id", userID).Msg("Failed to load session")
		b.sendError(chatID, err)
		return
	}
	if session == nil {
		b.sendMessage(chatID, "Чтобы заказать отчёт, нажмите /new. Список команд: /help")
		return
	}

	if session.Step == models.StepReviewComment {
		b.handleReviewComment(ctx, chatID, session, msg.Text)
		return
	}

	b.applyInput(ctx, chatID, userID, flow.Text(msg.Text))
}

// applyInput feeds one input to the order flow and answers with the next
// prompt, a validation message or the payment offer.
func (b *Bot) applyInput(ctx context.Context, chatID, userID int64, in flow.Input) {
	next, order, err := b.services.Orders.Apply(ctx, userID, in)
	if err != nil {
		var verr *flow.ValidationError
		if errors.As(err, &verr) {
			b.sendWithKeyboard(chatID, "⚠️ "+verr.Message, b.keyboardFor(next.Step))
			return
		}
		zerolog.Ctx(ctx).Warn().Err(err).Int64("user_id", userID).Msg("Order input rejected")
		b.sendError(chatID, err)
		return
	}

	switch {
	case order != nil:
		b.offerPayment(ctx, chatID, order, next.ParticipantCount)
	case next.Step == models.StepCancelled:
		b.sendMessage(chatID, "Оформление отменено. Новый заказ: /new")
	default:
		b.sendWithKeyboard(chatID, b.services.Orders.Machine().Prompt(next), b.keyboardFor(next.Step))
	}
}

func (b *Bot) offerPayment(ctx context.Context, chatID int64, order *models.Order, participants int) {
	if b.metrics != nil {
		b.metrics.OrdersCreated.WithLabelValues(string(order.Tariff)).Inc()
	}
	zerolog.Ctx(ctx).Info().Int64("order_id", order.ID).Str("external_id", order.ExternalID).Msg("Order awaiting payment")

	text := b.orderSummary(order, participants)
	keyboard, ok := b.paymentKeyboard(order)
	if !ok {
		b.sendMessage(chatID, text+fmt.Sprintf("\nОнлайн-оплата временно недоступна. Напишите в поддержку: %s", b.supportContact()))
		return
	}
	b.sendWithKeyboard(chatID, text+"\nВыберите способ оплаты:", keyboard)
}

func (b *Bot) handleCancel(ctx context.Context, chatID, userID int64) {
	session, err := b.services.Orders.Session(ctx, userID)
	if err == nil && session != nil && session.Step == models.StepReviewComment {
		_ = b.services.Orders.ClearSession(ctx, userID)
		b.sendMessage(chatID, "Хорошо, без комментария. Спасибо за оценку!")
		return
	}

	cancelled, err := b.services.Orders.Cancel(ctx, userID)
	if err != nil {
		b.sendError(chatID, err)
		return
	}
	if !cancelled {
		b.sendMessage(chatID, "Нечего отменять. Оплаченные заказы отменяются через поддержку: "+b.supportContact())
		return
	}
	b.sendMessage(chatID, "Оформление отменено. Новый заказ: /new")
}

func (b *Bot) handleSkip(ctx context.Context, chatID, userID int64) {
	session, err := b.services.Orders.Session(ctx, userID)
	if err != nil {
		b.sendError(chatID, err)
		return
	}
	if session != nil && session.Step == models.StepReviewComment {
		b.handleReviewComment(ctx, chatID, session, "")
		return
	}
	b.applyInput(ctx, chatID, userID, flow.Skip())
}

func (b *Bot) handleHistory(ctx context.Context, chatID, userID int64) {
	limit := b.config.Bot.HistoryLimit
	if limit <= 0 {
		limit = historyLimit
	}
	orders, err := b.services.Orders.History(ctx, userID, limit)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("user_id", userID).Msg("Failed to load history")
		b.sendError(chatID, err)
		return
	}
	b.sendMessage(chatID, b.formatHistory(orders))
}

func (b *Bot) handleDownload(ctx context.Context, chatID, userID int64, args string) {
	prefix := strings.TrimSpace(args)
	if prefix == "" {
		b.sendMessage(chatID, "Укажите номер заказа: /download <номер>. Номера есть в /history.")
		return
	}
	if b.services.Delivery == nil {
		b.sendMessage(chatID, b.getErrorMessage(errors.New("delivery is not configured")))
		return
	}
	if _, err := b.services.Delivery.Redeliver(ctx, userID, prefix); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Int64("user_id", userID).Str("prefix", prefix).Msg("Redelivery failed")
		b.sendError(chatID, err)
	}
}

func (b *Bot) handleReviewComment(ctx context.Context, chatID int64, session *models.Session, text string) {
	if b.services.Reviews == nil {
		return
	}
	if err := b.services.Reviews.AddComment(ctx, session, text); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("order_id", session.ReviewOrderID).Msg("Failed to save review comment")
		b.sendError(chatID, err)
		return
	}
	b.sendMessage(chatID, "🙏 Спасибо за отзыв!")
}

func statusTitle(s models.OrderStatus) string {
	switch s {
	case models.OrderPending:
		return "ожидает оплаты"
	case models.OrderPaid:
		return "оплачен"
	case models.OrderProcessing:
		return "готовится"
	case models.OrderCompleted:
		return "готов"
	case models.OrderFailed:
		return "не удалось подготовить"
	case models.OrderRefunded:
		return "возвращён"
	default:
		return string(s)
	}
}
