package bot

import (
	"context"
	"errors"
	"time"

	"github.com/adiga-code/numerology/internal/config"
	"github.com/adiga-code/numerology/internal/domain"
	"github.com/adiga-code/numerology/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Services are the application services the bot talks to.
type Services struct {
	Orders   domain.OrderFlow
	Payments domain.PaymentFlow
	Delivery domain.Redeliverer
	Reviews  domain.ReviewFlow
	Users    domain.UserService
	Limiter  domain.RateLimiter
}

type Bot struct {
	tgService domain.TelegramService
	config    *config.Config
	catalog   *models.Catalog
	services  Services
	metrics   *Metrics
	logger    *zerolog.Logger
	now       func() time.Time
}

func NewBot(
	tgService domain.TelegramService,
	config *config.Config,
	catalog *models.Catalog,
	services Services,
	metrics *Metrics,
	logger *zerolog.Logger,
) (*Bot, error) {
	if tgService == nil {
		return nil, errors.New("telegram service is required")
	}
	if services.Orders == nil || services.Users == nil {
		return nil, errors.New("order and user services are required")
	}
	if catalog == nil {
		catalog = models.DefaultCatalog()
	}
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}

	return &Bot{
		tgService: tgService,
		config:    config,
		catalog:   catalog,
		services:  services,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}, nil
}

func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	u.AllowedUpdates = []string{"message", "callback_query", "pre_checkout_query"}

	updates := b.tgService.GetUpdatesChan(u)

	b.logger.Info().Str("username", b.tgService.GetSelf().UserName).Msg("Authorized on account")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("Bot stopping...")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.processUpdate(ctx, update)
		}
	}
}

func (b *Bot) processUpdate(ctx context.Context, update tgbotapi.Update) {
	start := time.Now()
	defer func() {
		if b.metrics != nil {
			b.metrics.UpdateProcessingTime.Observe(time.Since(start).Seconds())
		}
	}()

	// Создаем контекст для обработки каждого обновления
	updateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	requestID := uuid.New().String()
	l := b.logger.With().Str("request_id", requestID).Logger()
	updateCtx = l.WithContext(updateCtx)

	b.withRecovery(func() {
		// pre-checkout отвечаем всегда: у Telegram на это 10 секунд
		if update.PreCheckoutQuery != nil {
			b.handlePreCheckout(updateCtx, update.PreCheckoutQuery)
			return
		}

		userID := updateUserID(update)
		if userID == 0 || b.services.Users.IsBlacklisted(userID) {
			return
		}

		b.trackActivity(userID)

		if !b.allow(updateCtx, userID) {
			if update.Message != nil {
				b.sendMessage(update.Message.Chat.ID, "⚠️ Вы отправляете сообщения слишком часто. Пожалуйста, подождите немного.")
			}
			return
		}

		switch {
		case update.CallbackQuery != nil:
			b.handleCallbackQuery(updateCtx, update.CallbackQuery)
		case update.Message != nil && update.Message.SuccessfulPayment != nil:
			b.handleSuccessfulPayment(updateCtx, update.Message)
		case update.Message != nil:
			b.handleMessage(updateCtx, update.Message)
		}
	})
}

func updateUserID(update tgbotapi.Update) int64 {
	switch {
	case update.Message != nil && update.Message.From != nil:
		return update.Message.From.ID
	case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
		return update.CallbackQuery.From.ID
	default:
		return 0
	}
}
