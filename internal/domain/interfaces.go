package domain

import (
	"context"
	"time"

	"github.com/adiga-code/numerology/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// OrderRepository is the durable order store. Status changes are
// compare-and-swap updates and return database.ErrConcurrentModification
// when the expected status no longer holds.
type OrderRepository interface {
	CreateOrder(ctx context.Context, draft models.OrderDraft) (*models.Order, error)
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	GetOrderByExternalID(ctx context.Context, externalID string) (*models.Order, error)
	FindUserOrderByPrefix(ctx context.Context, telegramID int64, prefix string) (*models.Order, error)
	ListUserOrders(ctx context.Context, telegramID int64, limit int) ([]*models.Order, error)
	ListOrdersByStatus(ctx context.Context, status models.OrderStatus, limit int) ([]*models.Order, error)
	ListStaleProcessing(ctx context.Context, before time.Time, limit int) ([]*models.Order, error)
	ListOrdersBetween(ctx context.Context, from, to time.Time) ([]*models.Order, error)
	GetParticipants(ctx context.Context, orderID int64) ([]*models.Participant, error)
	GetOrderDetails(ctx context.Context, id int64) (*models.OrderDetails, error)

	MarkPaid(ctx context.Context, externalID string, method models.PaymentMethod, paymentRef string) (*models.Order, error)
	StartProcessing(ctx context.Context, id int64) error
	SetGenerationTaskRef(ctx context.Context, id int64, taskRef string) error
	CompleteOrder(ctx context.Context, id int64, artifactPath string) error
	FailOrder(ctx context.Context, id int64, from models.OrderStatus, reason string) error
}

// AttemptLog is the append-only generation attempt history.
type AttemptLog interface {
	CreateAttempt(ctx context.Context, orderID int64, provider string) (*models.GenerationAttempt, error)
	SetAttemptTaskRef(ctx context.Context, id int64, provider, taskRef string) error
	FinishAttempt(ctx context.Context, id int64, status models.AttemptStatus, errText string) error
	LatestAttempt(ctx context.Context, orderID int64) (*models.GenerationAttempt, error)
}

type ReviewRepository interface {
	CreateReview(ctx context.Context, review *models.Review) error
	SetReviewComment(ctx context.Context, orderID int64, comment string) error
	GetReviewByOrder(ctx context.Context, orderID int64) (*models.Review, error)
}

type UserRepository interface {
	CreateOrUpdateUser(ctx context.Context, user *models.User) error
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	UpdateUserActivity(ctx context.Context, telegramID int64) error
	GetAllUsers(ctx context.Context) ([]*models.User, error)
}

type JobRepository interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id int64) (*models.Job, error)
	GetPendingJobs(ctx context.Context, limit int) ([]models.Job, error)
	ClaimJob(ctx context.Context, id int64) error
	UpdateJobStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
	RequeueProcessingJobs(ctx context.Context) (int64, error)
}

// SessionRepository stores conversational sessions. A missing session is
// returned as nil, nil.
type SessionRepository interface {
	GetSession(ctx context.Context, userID int64) (*models.Session, error)
	SaveSession(ctx context.Context, session *models.Session) error
	ClearSession(ctx context.Context, userID int64) error
	CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	GetSelf() tgbotapi.User
	StopReceivingUpdates()
}

type TelegramService interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	SendMessage(chatID int64, text string) (tgbotapi.Message, error)
	SendMarkdown(chatID int64, text string) (tgbotapi.Message, error)
	SendWithInlineKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) (tgbotapi.Message, error)
	SendDocument(chatID int64, fileName string, data []byte, caption string) (tgbotapi.Message, error)
	EditMessage(chatID int64, messageID int, text string, keyboard *tgbotapi.InlineKeyboardMarkup) (tgbotapi.Message, error)
	AnswerCallback(callbackID string, text string) error
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	GetSelf() tgbotapi.User
	StopReceivingUpdates()
}

// ArtifactStore keeps rendered reports. Put returns the location that Get
// and Exists accept.
type ArtifactStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, location string) ([]byte, error)
	Exists(ctx context.Context, location string) (bool, error)
}

type Alerter interface {
	Alert(ctx context.Context, text string)
}

// ReviewScheduler fires one review request per order after a delay.
type ReviewScheduler interface {
	Schedule(orderID int64, delay time.Duration)
	Cancel(orderID int64) bool
}

type DispatchQueue interface {
	EnqueueDispatch(ctx context.Context, orderID int64) error
}
