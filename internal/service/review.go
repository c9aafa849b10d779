package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/adiga-code/numerology/internal/database"
	"github.com/adiga-code/numerology/internal/domain"
	"github.com/adiga-code/numerology/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const maxCommentLength = 1000

// ReviewCallback builds the callback data of a rating button.
func ReviewCallback(orderID int64, rating int) string {
	return fmt.Sprintf("review:%d:%d", orderID, rating)
}

// ReviewService asks for and stores the single review of a completed order.
type ReviewService struct {
	orders   domain.OrderRepository
	reviews  domain.ReviewRepository
	sessions domain.SessionRepository
	telegram domain.TelegramService
	logger   *zerolog.Logger
}

func NewReviewService(
	orders domain.OrderRepository,
	reviews domain.ReviewRepository,
	sessions domain.SessionRepository,
	telegram domain.TelegramService,
	logger *zerolog.Logger,
) *ReviewService {
	return &ReviewService{
		orders:   orders,
		reviews:  reviews,
		sessions: sessions,
		telegram: telegram,
		logger:   logger,
	}
}

// RequestReview sends the rating keyboard. It is the review timer's callback.
func (s *ReviewService) RequestReview(ctx context.Context, orderID int64) error {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status != models.OrderCompleted {
		return nil
	}
	if _, err := s.reviews.GetReviewByOrder(ctx, orderID); err == nil {
		return nil
	} else if !errors.Is(err, database.ErrNotFound) {
		return err
	}

	row := make([]tgbotapi.InlineKeyboardButton, 0, models.MaxRating)
	for r := models.MinRating; r <= models.MaxRating; r++ {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("%d ⭐", r), ReviewCallback(orderID, r)))
	}
	text := fmt.Sprintf("Как вам отчёт по заказу %s? Оцените его от 1 до 5.", order.ShortID())
	if _, err := s.telegram.SendWithInlineKeyboard(order.TelegramID, text, tgbotapi.NewInlineKeyboardMarkup(row)); err != nil {
		return fmt.Errorf("send review request: %w", err)
	}
	s.logger.Info().Int64("order_id", orderID).Msg("Review requested")
	return nil
}

// SubmitRating stores the rating and opens the optional comment step. The
// comment step is skipped while the user is filling in a new order, so the
// collection in progress is kept. It reports whether the step was opened.
// A second rating for the same order returns database.ErrDuplicate.
func (s *ReviewService) SubmitRating(ctx context.Context, telegramID, orderID int64, rating int) (bool, error) {
	if rating < models.MinRating || rating > models.MaxRating {
		return false, ErrInvalidRating
	}
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	if order.TelegramID != telegramID {
		return false, ErrNotOwner
	}
	if order.Status != models.OrderCompleted {
		return false, ErrNotCompleted
	}

	if err := s.reviews.CreateReview(ctx, &models.Review{OrderID: orderID, UserID: order.UserID, Rating: rating}); err != nil {
		return false, err
	}

	current, err := s.sessions.GetSession(ctx, telegramID)
	if err != nil {
		s.logger.Warn().Err(err).Int64("order_id", orderID).Msg("failed to load session before review comment")
		return false, nil
	}
	if current != nil && current.Step.Collecting() {
		s.logger.Info().Int64("order_id", orderID).Str("step", string(current.Step)).
			Msg("Review comment skipped, order collection in progress")
		return false, nil
	}

	session := models.Session{UserID: telegramID, Step: models.StepReviewComment, ReviewOrderID: orderID}
	if err := s.sessions.SaveSession(ctx, &session); err != nil {
		s.logger.Warn().Err(err).Int64("order_id", orderID).Msg("failed to open review comment step")
		return false, nil
	}
	return true, nil
}

// AddComment attaches the comment to the review the session points at and
// closes the step. An empty comment just closes it.
func (s *ReviewService) AddComment(ctx context.Context, session *models.Session, comment string) error {
	defer func() {
		if err := s.sessions.ClearSession(ctx, session.UserID); err != nil {
			s.logger.Warn().Err(err).Int64("user_id", session.UserID).Msg("failed to clear review session")
		}
	}()

	comment = strings.TrimSpace(comment)
	if comment == "" {
		return nil
	}
	if utf8.RuneCountInString(comment) > maxCommentLength {
		comment = string([]rune(comment)[:maxCommentLength])
	}
	return s.reviews.SetReviewComment(ctx, session.ReviewOrderID, comment)
}
