package domain

import (
	"context"
	"time"

	"github.com/adiga-code/numerology/internal/flow"
	"github.com/adiga-code/numerology/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// OrderFlow is the collection conversation and the user's order list.
type OrderFlow interface {
	Machine() *flow.Machine
	Start(ctx context.Context, userID int64) (models.Session, error)
	Session(ctx context.Context, userID int64) (*models.Session, error)
	ClearSession(ctx context.Context, userID int64) error
	Apply(ctx context.Context, userID int64, in flow.Input) (models.Session, *models.Order, error)
	Cancel(ctx context.Context, userID int64) (bool, error)
	History(ctx context.Context, telegramID int64, limit int) ([]*models.Order, error)
	ActiveOrder(ctx context.Context, telegramID int64) (*models.Order, error)
	OrdersBetween(ctx context.Context, from, to time.Time) ([]*models.Order, error)
}

type PaymentFlow interface {
	SendStarsInvoice(ctx context.Context, chatID int64, externalID string) error
	AnswerPreCheckout(ctx context.Context, q *tgbotapi.PreCheckoutQuery) error
	HandleSuccessfulPayment(ctx context.Context, sp *tgbotapi.SuccessfulPayment) (*models.Order, error)
	CreateGatewayPayment(ctx context.Context, telegramID int64, externalID string) (string, error)
}

type Redeliverer interface {
	Redeliver(ctx context.Context, telegramID int64, externalIDPrefix string) (*models.Order, error)
}

type ReviewFlow interface {
	SubmitRating(ctx context.Context, telegramID, orderID int64, rating int) (bool, error)
	AddComment(ctx context.Context, session *models.Session, comment string) error
}

type UserService interface {
	IsManager(userID int64) bool
	IsBlacklisted(userID int64) bool
	SaveUser(ctx context.Context, user *models.User) error
	UpdateUserActivity(ctx context.Context, telegramID int64) error
}

type RateLimiter interface {
	CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error)
}
