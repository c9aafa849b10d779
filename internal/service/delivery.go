package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adiga-code/numerology/internal/database"
	"github.com/adiga-code/numerology/internal/domain"
	"github.com/adiga-code/numerology/internal/events"
	"github.com/adiga-code/numerology/internal/logging"
	"github.com/adiga-code/numerology/internal/metrics"
	"github.com/adiga-code/numerology/internal/models"
	"github.com/adiga-code/numerology/internal/storage"

	"github.com/rs/zerolog"
)

const reportContentType = "application/pdf"

// Renderer turns report text into a document. It must not touch order state.
type Renderer interface {
	Render(order *models.Order, participants []*models.Participant, text string) ([]byte, error)
}

// DeliveryService renders finished reports, completes orders, sends the
// document and schedules the review request.
type DeliveryService struct {
	orders         domain.OrderRepository
	attempts       domain.AttemptLog
	renderer       Renderer
	store          domain.ArtifactStore
	telegram       domain.TelegramService
	reviews        domain.ReviewScheduler
	eventBus       domain.EventPublisher
	catalog        *models.Catalog
	reviewDelay    time.Duration
	supportContact string
	logger         *zerolog.Logger
}

type DeliveryDeps struct {
	Orders         domain.OrderRepository
	Attempts       domain.AttemptLog
	Renderer       Renderer
	Store          domain.ArtifactStore
	Telegram       domain.TelegramService
	Reviews        domain.ReviewScheduler
	EventBus       domain.EventPublisher
	Catalog        *models.Catalog
	ReviewDelay    time.Duration
	SupportContact string
}

func NewDeliveryService(deps DeliveryDeps, logger *zerolog.Logger) *DeliveryService {
	if deps.ReviewDelay <= 0 {
		deps.ReviewDelay = time.Hour
	}
	return &DeliveryService{
		orders:         deps.Orders,
		attempts:       deps.Attempts,
		renderer:       deps.Renderer,
		store:          deps.Store,
		telegram:       deps.Telegram,
		reviews:        deps.Reviews,
		eventBus:       deps.EventBus,
		catalog:        deps.Catalog,
		reviewDelay:    deps.ReviewDelay,
		supportContact: deps.SupportContact,
		logger:         logging.Component(logger, "delivery"),
	}
}

func (s *DeliveryService) SetReviewScheduler(r domain.ReviewScheduler) {
	s.reviews = r
}

// Deliver renders and stores the report, then completes the order.
// Errors before the status change leave the order in processing.
func (s *DeliveryService) Deliver(ctx context.Context, order *models.Order, text string) error {
	participants, err := s.orders.GetParticipants(ctx, order.ID)
	if err != nil {
		return err
	}
	data, err := s.renderer.Render(order, participants, text)
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	location, err := s.store.Put(ctx, storage.ReportKey(order.ExternalID), data, reportContentType)
	if err != nil {
		return fmt.Errorf("store report: %w", err)
	}
	return s.complete(ctx, order, location, data)
}

// Complete finishes a processing order whose report is already stored.
func (s *DeliveryService) Complete(ctx context.Context, order *models.Order, artifactPath string) error {
	data, err := s.store.Get(ctx, artifactPath)
	if err != nil {
		return fmt.Errorf("load report: %w", err)
	}
	return s.complete(ctx, order, artifactPath, data)
}

func (s *DeliveryService) complete(ctx context.Context, order *models.Order, artifactPath string, data []byte) error {
	if err := s.orders.CompleteOrder(ctx, order.ID, artifactPath); err != nil {
		if errors.Is(err, database.ErrConcurrentModification) {
			s.logger.Warn().Int64("order_id", order.ID).Msg("Order left processing before completion, skipping")
		}
		return err
	}
	order.Status = models.OrderCompleted
	order.ArtifactPath = artifactPath
	metrics.IncOrderTransition(string(models.OrderCompleted))

	if attempt, err := s.attempts.LatestAttempt(ctx, order.ID); err == nil {
		if err := s.attempts.FinishAttempt(ctx, attempt.ID, models.AttemptSuccess, ""); err != nil &&
			!errors.Is(err, database.ErrConcurrentModification) {
			s.logger.Error().Err(err).Int64("attempt_id", attempt.ID).Msg("failed to finish attempt")
		}
	} else if !errors.Is(err, database.ErrNotFound) {
		s.logger.Error().Err(err).Int64("order_id", order.ID).Msg("failed to load latest attempt")
	}

	publishOrder(s.eventBus, s.logger, events.EventOrderCompleted, order, "")

	if err := s.send(order, data); err != nil {
		metrics.IncDelivery("failed")
		s.logger.Error().Err(err).Int64("order_id", order.ID).Msg("Report delivery failed")
		if _, nerr := s.telegram.SendMessage(order.TelegramID, fmt.Sprintf(
			"Ваш отчёт по заказу %s готов, но отправить его не получилось. Напишите в поддержку %s, мы пришлём файл вручную.",
			order.ExternalID, s.supportContact)); nerr != nil {
			s.logger.Error().Err(nerr).Int64("order_id", order.ID).Msg("failed to notify user about delivery failure")
		}
		return &DeliveryError{OrderID: order.ID, Err: err}
	}
	metrics.IncDelivery("sent")

	if s.reviews != nil {
		s.reviews.Schedule(order.ID, s.reviewDelay)
	}
	s.logger.Info().Int64("order_id", order.ID).Str("artifact", artifactPath).Msg("Report delivered")
	return nil
}

// Redeliver sends the stored report again. It never changes order state.
func (s *DeliveryService) Redeliver(ctx context.Context, telegramID int64, externalIDPrefix string) (*models.Order, error) {
	order, err := s.orders.FindUserOrderByPrefix(ctx, telegramID, externalIDPrefix)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderCompleted {
		return order, ErrNotCompleted
	}
	if order.ArtifactPath == "" {
		return order, &DeliveryError{OrderID: order.ID, Err: ErrArtifactMissing}
	}

	data, err := s.store.Get(ctx, order.ArtifactPath)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			err = ErrArtifactMissing
		}
		return order, &DeliveryError{OrderID: order.ID, Err: err}
	}
	if err := s.send(order, data); err != nil {
		metrics.IncDelivery("failed")
		return order, &DeliveryError{OrderID: order.ID, Err: err}
	}
	metrics.IncDelivery("resent")
	return order, nil
}

func (s *DeliveryService) send(order *models.Order, data []byte) error {
	_, err := s.telegram.SendDocument(order.TelegramID, fmt.Sprintf("report_%s.pdf", order.ShortID()), data, s.caption(order))
	return err
}

func (s *DeliveryService) caption(order *models.Order) string {
	title := string(order.Tariff)
	if info, ok := s.catalog.Lookup(order.Tariff); ok {
		title = info.Title
	}
	return fmt.Sprintf("📄 Ваш отчёт готов\nЗаказ: %s\nТариф: %s\nСтиль: %s", order.ExternalID, title, order.Style.Title())
}
