package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/adiga-code/numerology/internal/database"
	"github.com/adiga-code/numerology/internal/domain"
	"github.com/adiga-code/numerology/internal/events"
	"github.com/adiga-code/numerology/internal/metrics"
	"github.com/adiga-code/numerology/internal/models"
	"github.com/adiga-code/numerology/internal/payment"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const invoicePayloadPrefix = "order_"

// Gateway creates payments in the external payment gateway.
type Gateway interface {
	CreatePayment(ctx context.Context, order *models.Order, description string) (*payment.Payment, error)
}

// PaymentService normalises Telegram Stars and gateway payments into a
// single confirmation step.
type PaymentService struct {
	orders   domain.OrderRepository
	telegram domain.TelegramService
	gateway  Gateway
	catalog  *models.Catalog
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func NewPaymentService(
	orders domain.OrderRepository,
	telegram domain.TelegramService,
	gateway Gateway,
	catalog *models.Catalog,
	eventBus domain.EventPublisher,
	logger *zerolog.Logger,
) *PaymentService {
	return &PaymentService{
		orders:   orders,
		telegram: telegram,
		gateway:  gateway,
		catalog:  catalog,
		eventBus: eventBus,
		logger:   logger,
	}
}

func InvoicePayload(externalID string) string {
	return invoicePayloadPrefix + externalID
}

func ParseInvoicePayload(payload string) (string, error) {
	ext, ok := strings.CutPrefix(payload, invoicePayloadPrefix)
	if !ok || ext == "" {
		return "", ErrInvalidPayload
	}
	return ext, nil
}

// ConfirmPayment marks a pending order as paid. Only the first confirmation
// wins; later ones get database.ErrConcurrentModification.
func (s *PaymentService) ConfirmPayment(ctx context.Context, externalID string, method models.PaymentMethod, paymentRef string) (*models.Order, error) {
	order, err := s.orders.MarkPaid(ctx, externalID, method, paymentRef)
	if err != nil {
		if errors.Is(err, database.ErrConcurrentModification) {
			s.logger.Warn().
				Str("external_id", externalID).
				Str("payment_ref", paymentRef).
				Msg("Duplicate payment confirmation ignored")
		}
		return nil, err
	}

	metrics.IncOrderTransition(string(models.OrderPaid))
	publishOrder(s.eventBus, s.logger, events.EventOrderPaid, order, "")

	s.logger.Info().
		Int64("order_id", order.ID).
		Str("external_id", order.ExternalID).
		Str("method", string(method)).
		Msg("Order paid")
	return order, nil
}

func (s *PaymentService) starsPrice(order *models.Order) int {
	if info, ok := s.catalog.Lookup(order.Tariff); ok && info.Price == order.Amount {
		return info.StarsPrice()
	}
	return int(order.Amount / 100)
}

// SendStarsInvoice sends a Telegram Stars invoice for a pending order.
func (s *PaymentService) SendStarsInvoice(ctx context.Context, chatID int64, externalID string) error {
	order, err := s.ownedPending(ctx, chatID, externalID)
	if err != nil {
		return err
	}

	title := string(order.Tariff)
	if info, ok := s.catalog.Lookup(order.Tariff); ok {
		title = info.Title
	}
	stars := s.starsPrice(order)

	invoice := tgbotapi.NewInvoice(chatID, title,
		fmt.Sprintf("Нумерологический отчёт, заказ %s", order.ShortID()),
		InvoicePayload(order.ExternalID), "", "", models.CurrencyStars,
		[]tgbotapi.LabeledPrice{{Label: title, Amount: stars}})
	invoice.SuggestedTipAmounts = []int{}

	if _, err := s.telegram.Send(invoice); err != nil {
		return fmt.Errorf("send invoice: %w", err)
	}
	return nil
}

// ValidatePreCheckout checks a pre-checkout query against the stored order.
// The returned message is shown to the user when the check fails.
func (s *PaymentService) ValidatePreCheckout(ctx context.Context, q *tgbotapi.PreCheckoutQuery) (string, error) {
	ext, err := ParseInvoicePayload(q.InvoicePayload)
	if err != nil {
		return "Неизвестный счёт.", err
	}
	order, err := s.orders.GetOrderByExternalID(ctx, ext)
	if err != nil {
		return "Заказ не найден.", err
	}
	if q.From == nil || order.TelegramID != q.From.ID {
		return "Этот счёт выставлен другому пользователю.", ErrNotOwner
	}
	if order.Status != models.OrderPending {
		return "Заказ уже оплачен или закрыт.", database.ErrConcurrentModification
	}
	if q.Currency != models.CurrencyStars || q.TotalAmount != s.starsPrice(order) {
		return "Сумма счёта не совпадает с заказом.", ErrAmountMismatch
	}
	return "", nil
}

// AnswerPreCheckout validates the query and answers Telegram.
func (s *PaymentService) AnswerPreCheckout(ctx context.Context, q *tgbotapi.PreCheckoutQuery) error {
	msg, verr := s.ValidatePreCheckout(ctx, q)
	answer := tgbotapi.PreCheckoutConfig{PreCheckoutQueryID: q.ID, OK: verr == nil, ErrorMessage: msg}
	if verr != nil {
		s.logger.Warn().Err(verr).Str("payload", q.InvoicePayload).Msg("Pre-checkout rejected")
	}
	if _, err := s.telegram.Request(answer); err != nil {
		return fmt.Errorf("answer pre-checkout: %w", err)
	}
	return verr
}

// HandleSuccessfulPayment confirms a Stars payment reported by Telegram.
func (s *PaymentService) HandleSuccessfulPayment(ctx context.Context, sp *tgbotapi.SuccessfulPayment) (*models.Order, error) {
	ext, err := ParseInvoicePayload(sp.InvoicePayload)
	if err != nil {
		return nil, err
	}
	return s.ConfirmPayment(ctx, ext, models.PaymentTelegramStars, sp.TelegramPaymentChargeID)
}

// CreateGatewayPayment returns the gateway confirmation URL for the order.
func (s *PaymentService) CreateGatewayPayment(ctx context.Context, telegramID int64, externalID string) (string, error) {
	if s.gateway == nil {
		return "", &ConfigurationError{Reason: "payment gateway is not configured"}
	}
	order, err := s.ownedPending(ctx, telegramID, externalID)
	if err != nil {
		return "", err
	}
	p, err := s.gateway.CreatePayment(ctx, order, fmt.Sprintf("Нумерологический отчёт, заказ %s", order.ShortID()))
	if err != nil {
		return "", err
	}
	return p.Confirmation.ConfirmationURL, nil
}

// HandleGatewayNotification applies a verified gateway notification.
func (s *PaymentService) HandleGatewayNotification(ctx context.Context, n *payment.Notification) error {
	ext := n.Object.ExternalID()
	log := s.logger.With().Str("event", n.Event).Str("payment_id", n.Object.ID).Str("external_id", ext).Logger()

	switch n.Event {
	case payment.EventSucceeded:
		order, err := s.orders.GetOrderByExternalID(ctx, ext)
		if err != nil {
			return err
		}
		amount, err := n.Object.AmountMinor()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		if amount != order.Amount || n.Object.Amount.Currency != order.Currency {
			log.Error().Int64("amount", amount).Int64("expected", order.Amount).Msg("Gateway amount mismatch")
			return ErrAmountMismatch
		}
		_, err = s.ConfirmPayment(ctx, ext, models.PaymentGateway, n.Object.ID)
		return err
	case payment.EventCanceled:
		log.Info().Msg("Gateway payment canceled, order stays pending")
		return nil
	default:
		log.Debug().Msg("Gateway notification ignored")
		return nil
	}
}

func (s *PaymentService) ownedPending(ctx context.Context, telegramID int64, externalID string) (*models.Order, error) {
	order, err := s.orders.GetOrderByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if order.TelegramID != telegramID {
		return nil, ErrNotOwner
	}
	if order.Status != models.OrderPending {
		return nil, fmt.Errorf("order %s is %s: %w", order.ShortID(), order.Status, database.ErrConcurrentModification)
	}
	return order, nil
}
