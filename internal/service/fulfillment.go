package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adiga-code/numerology/internal/config"
	"github.com/adiga-code/numerology/internal/database"
	"github.com/adiga-code/numerology/internal/domain"
	"github.com/adiga-code/numerology/internal/events"
	"github.com/adiga-code/numerology/internal/logging"
	"github.com/adiga-code/numerology/internal/metrics"
	"github.com/adiga-code/numerology/internal/models"
	"github.com/adiga-code/numerology/internal/provider"

	"github.com/rs/zerolog"
)

const staleBatch = 100

// Deliverer completes an order once the report text exists.
type Deliverer interface {
	Deliver(ctx context.Context, order *models.Order, text string) error
}

// FulfillmentService moves paid orders through generation. Every status
// change is a compare-and-swap, so concurrent dispatches and late callbacks
// cannot run the pipeline twice.
type FulfillmentService struct {
	orders         domain.OrderRepository
	attempts       domain.AttemptLog
	provider       provider.ReportProvider
	delivery       Deliverer
	telegram       domain.TelegramService
	alerter        domain.Alerter
	eventBus       domain.EventPublisher
	callbackURL    string
	syncTimeout    time.Duration
	supportContact string
	logger         *zerolog.Logger
}

type FulfillmentDeps struct {
	Orders         domain.OrderRepository
	Attempts       domain.AttemptLog
	Provider       provider.ReportProvider
	Delivery       Deliverer
	Telegram       domain.TelegramService
	Alerter        domain.Alerter
	EventBus       domain.EventPublisher
	SupportContact string
}

func NewFulfillmentService(deps FulfillmentDeps, cfg config.GenerationConfig, logger *zerolog.Logger) *FulfillmentService {
	timeout := cfg.SyncTimeout
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	return &FulfillmentService{
		orders:         deps.Orders,
		attempts:       deps.Attempts,
		provider:       deps.Provider,
		delivery:       deps.Delivery,
		telegram:       deps.Telegram,
		alerter:        deps.Alerter,
		eventBus:       deps.EventBus,
		callbackURL:    cfg.CallbackURL,
		syncTimeout:    timeout,
		supportContact: deps.SupportContact,
		logger:         logging.Component(logger, "fulfillment"),
	}
}

// Dispatch submits a paid order to the report provider.
func (s *FulfillmentService) Dispatch(ctx context.Context, orderID int64) error {
	log := logging.Ctx(ctx, s.logger).With().Int64("order_id", orderID).Logger()

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status != models.OrderPaid || order.PaymentRef == "" {
		log.Info().Str("status", string(order.Status)).Msg("Dispatch skipped, order is not awaiting generation")
		return fmt.Errorf("dispatch order in status %s: %w", order.Status, database.ErrConcurrentModification)
	}

	if s.provider == nil {
		cerr := &ConfigurationError{Reason: "no report provider configured"}
		log.Error().Err(cerr).Msg("Cannot dispatch order")
		s.alert(ctx, fmt.Sprintf("⚠️ Заказ %s оплачен, но генерация не настроена: %s", order.ExternalID, cerr.Reason))
		return cerr
	}

	if err := s.orders.StartProcessing(ctx, orderID); err != nil {
		if errors.Is(err, database.ErrConcurrentModification) {
			log.Info().Msg("Order already claimed by another dispatcher")
		}
		return err
	}
	order.Status = models.OrderProcessing
	metrics.IncOrderTransition(string(models.OrderProcessing))

	// после CAS любая ошибка переводит заказ в failed
	attempt, err := s.attempts.CreateAttempt(ctx, orderID, s.provider.Name())
	if err != nil {
		s.fail(ctx, order, 0, "attempt log unavailable")
		return err
	}
	participants, err := s.orders.GetParticipants(ctx, orderID)
	if err != nil {
		s.fail(ctx, order, attempt.ID, "participants unavailable")
		return err
	}

	subCtx, cancel := context.WithTimeout(ctx, s.syncTimeout)
	sub, err := s.provider.Submit(subCtx, provider.NewRequest(order, participants, s.callbackURL))
	cancel()
	attemptID := s.recordFailures(ctx, orderID, attempt.ID, provider.Failures(sub, err), err == nil, sub.Provider)
	if err != nil {
		perr := &ProviderError{Provider: s.provider.Name(), Err: err}
		log.Error().Err(perr).Msg("Report generation failed")
		s.fail(ctx, order, attemptID, perr.Error())
		return perr
	}

	if attemptID != 0 {
		if err := s.attempts.SetAttemptTaskRef(ctx, attemptID, sub.Provider, sub.TaskRef); err != nil {
			log.Error().Err(err).Msg("failed to record attempt task ref")
		}
	}

	if sub.Async {
		if err := s.orders.SetGenerationTaskRef(ctx, orderID, sub.TaskRef); err != nil {
			// заказ мог быть уже завершён колбэком
			if !errors.Is(err, database.ErrConcurrentModification) {
				log.Error().Err(err).Msg("failed to store generation task ref")
			}
		}
		log.Info().Str("provider", sub.Provider).Str("task_ref", sub.TaskRef).Msg("Generation submitted")
		return nil
	}

	return s.deliver(ctx, order, attemptID, sub.Text)
}

// recordFailures writes one failed attempt per provider that gave up during a
// fallback chain. The first failure reuses the attempt opened before Submit.
// It returns the attempt that tracks the rest of the pipeline, or 0 when
// nothing is left open.
func (s *FulfillmentService) recordFailures(
	ctx context.Context, orderID, attemptID int64, failures []provider.Failure, succeeded bool, winner string,
) int64 {
	if len(failures) == 0 {
		return attemptID
	}
	for i, f := range failures {
		id := attemptID
		if i > 0 {
			a, err := s.attempts.CreateAttempt(ctx, orderID, f.Provider)
			if err != nil {
				s.logger.Error().Err(err).Int64("order_id", orderID).Msg("failed to record provider attempt")
				continue
			}
			id = a.ID
		} else if err := s.attempts.SetAttemptTaskRef(ctx, id, f.Provider, ""); err != nil {
			s.logger.Error().Err(err).Int64("attempt_id", id).Msg("failed to relabel attempt")
		}
		if err := s.attempts.FinishAttempt(ctx, id, models.AttemptFailed, f.Err.Error()); err != nil {
			s.logger.Error().Err(err).Int64("attempt_id", id).Msg("failed to finish attempt")
		}
	}
	if !succeeded {
		return 0
	}
	a, err := s.attempts.CreateAttempt(ctx, orderID, winner)
	if err != nil {
		s.logger.Error().Err(err).Int64("order_id", orderID).Msg("failed to record provider attempt")
		return 0
	}
	return a.ID
}

// OnCallback applies an asynchronous generation result.
func (s *FulfillmentService) OnCallback(ctx context.Context, result provider.Result) error {
	log := logging.Ctx(ctx, s.logger).With().Int64("order_id", result.OrderID).Str("status", result.Status).Logger()

	order, err := s.orders.GetOrder(ctx, result.OrderID)
	if err != nil {
		return err
	}
	if order.Status != models.OrderProcessing {
		log.Info().Str("order_status", string(order.Status)).Msg("Callback ignored, order is not processing")
		return fmt.Errorf("callback for order in status %s: %w", order.Status, database.ErrConcurrentModification)
	}

	switch result.Status {
	case provider.ResultSuccess:
		if strings.TrimSpace(result.Text) == "" {
			return fmt.Errorf("%w: %w", ErrInvalidResult, provider.ErrEmptyText)
		}
		return s.deliver(ctx, order, s.latestAttemptID(ctx, order.ID), result.Text)
	case provider.ResultFailed:
		reason := result.Error
		if reason == "" {
			reason = "provider reported failure"
		}
		log.Warn().Str("error", reason).Msg("Provider reported generation failure")
		s.failWithNotice(ctx, order, s.latestAttemptID(ctx, order.ID), reason, reason)
		return nil
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidResult, result.Status)
	}
}

// ExpireStale fails orders that stayed in processing longer than olderThan.
func (s *FulfillmentService) ExpireStale(ctx context.Context, olderThan time.Duration) (int, error) {
	orders, err := s.orders.ListStaleProcessing(ctx, time.Now().Add(-olderThan), staleBatch)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, order := range orders {
		if s.fail(ctx, order, s.latestAttemptID(ctx, order.ID), fmt.Sprintf("generation timed out after %s", olderThan)) {
			expired++
		}
	}
	if expired > 0 {
		s.logger.Warn().Int("count", expired).Msg("Expired stale orders")
	}
	return expired, nil
}

func (s *FulfillmentService) deliver(ctx context.Context, order *models.Order, attemptID int64, text string) error {
	err := s.delivery.Deliver(ctx, order, text)
	var de *DeliveryError
	switch {
	case err == nil, errors.As(err, &de), errors.Is(err, database.ErrConcurrentModification):
		return err
	default:
		s.logger.Error().Err(err).Int64("order_id", order.ID).Msg("Report could not be prepared")
		s.fail(ctx, order, attemptID, "delivery: "+err.Error())
		return err
	}
}

// fail moves a processing order to failed and tells the user. It reports
// whether this call made the transition.
func (s *FulfillmentService) fail(ctx context.Context, order *models.Order, attemptID int64, reason string) bool {
	return s.failWithNotice(ctx, order, attemptID, reason, "")
}

// failWithNotice is fail with the provider's own error shown to the user.
func (s *FulfillmentService) failWithNotice(ctx context.Context, order *models.Order, attemptID int64, reason, notice string) bool {
	if attemptID != 0 {
		if err := s.attempts.FinishAttempt(ctx, attemptID, models.AttemptFailed, reason); err != nil &&
			!errors.Is(err, database.ErrConcurrentModification) {
			s.logger.Error().Err(err).Int64("attempt_id", attemptID).Msg("failed to finish attempt")
		}
	}

	if err := s.orders.FailOrder(ctx, order.ID, models.OrderProcessing, reason); err != nil {
		if !errors.Is(err, database.ErrConcurrentModification) {
			s.logger.Error().Err(err).Int64("order_id", order.ID).Msg("failed to mark order failed")
		}
		return false
	}
	order.Status = models.OrderFailed
	order.FailureReason = reason
	metrics.IncOrderTransition(string(models.OrderFailed))
	publishOrder(s.eventBus, s.logger, events.EventOrderFailed, order, reason)

	if s.telegram != nil {
		text := fmt.Sprintf("К сожалению, не удалось подготовить отчёт по заказу %s.", order.ExternalID)
		if notice != "" {
			text += "\nПроизошла ошибка: " + notice
		}
		text += fmt.Sprintf("\nНапишите в поддержку %s и укажите номер заказа.", s.supportContact)
		if _, err := s.telegram.SendMessage(order.TelegramID, text); err != nil {
			s.logger.Error().Err(err).Int64("order_id", order.ID).Msg("failed to notify user about failure")
		}
	}
	return true
}

func (s *FulfillmentService) latestAttemptID(ctx context.Context, orderID int64) int64 {
	attempt, err := s.attempts.LatestAttempt(ctx, orderID)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			s.logger.Error().Err(err).Int64("order_id", orderID).Msg("failed to load latest attempt")
		}
		return 0
	}
	return attempt.ID
}

func (s *FulfillmentService) alert(ctx context.Context, text string) {
	if s.alerter != nil {
		s.alerter.Alert(ctx, text)
	}
}
