package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adiga-code/numerology/internal/domain"
	"github.com/adiga-code/numerology/internal/events"
	"github.com/adiga-code/numerology/internal/flow"
	"github.com/adiga-code/numerology/internal/metrics"
	"github.com/adiga-code/numerology/internal/models"

	"github.com/rs/zerolog"
)

// OrderService drives the collection conversation and turns a finished
// session into a persisted order.
type OrderService struct {
	machine  *flow.Machine
	sessions domain.SessionRepository
	orders   domain.OrderRepository
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func NewOrderService(
	machine *flow.Machine,
	sessions domain.SessionRepository,
	orders domain.OrderRepository,
	eventBus domain.EventPublisher,
	logger *zerolog.Logger,
) *OrderService {
	return &OrderService{
		machine:  machine,
		sessions: sessions,
		orders:   orders,
		eventBus: eventBus,
		logger:   logger,
	}
}

func (s *OrderService) Machine() *flow.Machine { return s.machine }

// Start begins a new order, replacing any session the user had.
func (s *OrderService) Start(ctx context.Context, userID int64) (models.Session, error) {
	session := s.machine.New(userID)
	if err := s.sessions.SaveSession(ctx, &session); err != nil {
		return session, fmt.Errorf("save session: %w", err)
	}
	return session, nil
}

// Session returns the active session or nil.
func (s *OrderService) Session(ctx context.Context, userID int64) (*models.Session, error) {
	return s.sessions.GetSession(ctx, userID)
}

func (s *OrderService) SaveSession(ctx context.Context, session *models.Session) error {
	return s.sessions.SaveSession(ctx, session)
}

func (s *OrderService) ClearSession(ctx context.Context, userID int64) error {
	return s.sessions.ClearSession(ctx, userID)
}

// Apply feeds one input into the user's session. On a validation error the
// stored session is unchanged and the error carries the re-prompt. When the
// session reaches awaiting_payment the order is created and returned.
func (s *OrderService) Apply(ctx context.Context, userID int64, in flow.Input) (models.Session, *models.Order, error) {
	current, err := s.sessions.GetSession(ctx, userID)
	if err != nil {
		return models.Session{}, nil, fmt.Errorf("load session: %w", err)
	}
	if current == nil {
		return models.Session{}, nil, ErrNoSession
	}

	next, err := s.machine.Apply(*current, in)
	if err != nil {
		return *current, nil, err
	}

	switch next.Step {
	case models.StepCancelled:
		if err := s.sessions.ClearSession(ctx, userID); err != nil {
			return next, nil, fmt.Errorf("clear session: %w", err)
		}
		return next, nil, nil
	case models.StepAwaitingPayment:
		order, err := s.createOrder(ctx, next)
		return next, order, err
	default:
		if err := s.sessions.SaveSession(ctx, &next); err != nil {
			return *current, nil, fmt.Errorf("save session: %w", err)
		}
		return next, nil, nil
	}
}

// Cancel drops a session that is still collecting data. It reports false
// when there was nothing to cancel.
func (s *OrderService) Cancel(ctx context.Context, userID int64) (bool, error) {
	_, _, err := s.Apply(ctx, userID, flow.Cancel())
	switch {
	case errors.Is(err, ErrNoSession), errors.Is(err, flow.ErrNotCancellable):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

func (s *OrderService) createOrder(ctx context.Context, session models.Session) (*models.Order, error) {
	draft, err := s.machine.Finalize(session)
	if err != nil {
		return nil, err
	}
	order, err := s.orders.CreateOrder(ctx, draft)
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	// сессия больше не нужна, источник правды теперь заказ
	if err := s.sessions.ClearSession(ctx, session.UserID); err != nil {
		s.logger.Warn().Err(err).Int64("user_id", session.UserID).Msg("failed to clear session after order")
	}

	metrics.IncOrderTransition(string(models.OrderPending))
	publishOrder(s.eventBus, s.logger, events.EventOrderCreated, order, "")

	s.logger.Info().
		Int64("order_id", order.ID).
		Str("external_id", order.ExternalID).
		Str("tariff", string(order.Tariff)).
		Int("participants", len(draft.Participants)).
		Msg("Order created")
	return order, nil
}

func (s *OrderService) GetOrderByExternalID(ctx context.Context, externalID string) (*models.Order, error) {
	return s.orders.GetOrderByExternalID(ctx, externalID)
}

func (s *OrderService) GetOrderDetails(ctx context.Context, id int64) (*models.OrderDetails, error) {
	return s.orders.GetOrderDetails(ctx, id)
}

func (s *OrderService) History(ctx context.Context, telegramID int64, limit int) ([]*models.Order, error) {
	return s.orders.ListUserOrders(ctx, telegramID, limit)
}

// ActiveOrder returns the newest order of the user that is not terminal.
func (s *OrderService) ActiveOrder(ctx context.Context, telegramID int64) (*models.Order, error) {
	orders, err := s.orders.ListUserOrders(ctx, telegramID, 5)
	if err != nil {
		return nil, err
	}
	for _, o := range orders {
		if !o.Status.Terminal() {
			return o, nil
		}
	}
	return nil, nil
}

func (s *OrderService) OrdersBetween(ctx context.Context, from, to time.Time) ([]*models.Order, error) {
	return s.orders.ListOrdersBetween(ctx, from, to)
}

func publishOrder(bus domain.EventPublisher, logger *zerolog.Logger, eventType string, order *models.Order, reason string) {
	if bus == nil {
		return
	}
	payload := events.OrderEventPayload{
		OrderID:       order.ID,
		ExternalID:    order.ExternalID,
		TelegramID:    order.TelegramID,
		Tariff:        string(order.Tariff),
		Status:        string(order.Status),
		Amount:        order.Amount,
		PaymentMethod: string(order.PaymentMethod),
		Reason:        reason,
		At:            time.Now(),
	}
	if err := bus.PublishJSON(eventType, payload); err != nil {
		logger.Error().Err(err).Str("event_type", eventType).Int64("order_id", order.ID).Msg("publish event error")
	}
}
