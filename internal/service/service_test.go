package service

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/adiga-code/numerology/internal/config"
	"github.com/adiga-code/numerology/internal/database"
	"github.com/adiga-code/numerology/internal/models"
	"github.com/adiga-code/numerology/internal/provider"
	"github.com/adiga-code/numerology/internal/storage"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func testLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func setupDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "service.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func pairDraft(t *testing.T, telegramID int64) models.OrderDraft {
	t.Helper()
	born1, err := time.Parse(models.BirthDateLayout, "01.02.1990")
	require.NoError(t, err)
	born2, err := time.Parse(models.BirthDateLayout, "15.07.1988")
	require.NoError(t, err)
	place := "Казань"
	return models.OrderDraft{
		TelegramID: telegramID,
		Tariff:     models.TariffPair,
		Style:      models.StyleShamanic,
		Amount:     200000,
		Currency:   models.CurrencyRUB,
		Participants: []models.Participant{
			{Position: 0, Role: models.RoleMain, FullName: "Анна", BirthDate: born1, BirthPlace: &place},
			{Position: 1, Role: models.RolePartner, FullName: "Иван", BirthDate: born2},
		},
	}
}

func createOrder(t *testing.T, db *database.DB, telegramID int64) *models.Order {
	t.Helper()
	order, err := db.CreateOrder(context.Background(), pairDraft(t, telegramID))
	require.NoError(t, err)
	return order
}

func createPaidOrder(t *testing.T, db *database.DB, telegramID int64) *models.Order {
	t.Helper()
	order := createOrder(t, db, telegramID)
	paid, err := db.MarkPaid(context.Background(), order.ExternalID, models.PaymentTelegramStars, "charge-"+order.ExternalID[:8])
	require.NoError(t, err)
	return paid
}

type sentMessage struct {
	ChatID int64
	Text   string
}

type sentDocument struct {
	ChatID   int64
	FileName string
	Data     []byte
	Caption  string
}

// fakeTelegram records everything the services send.
type fakeTelegram struct {
	mu        sync.Mutex
	messages  []sentMessage
	documents []sentDocument
	chattable []tgbotapi.Chattable
	docErr    error
}

func (f *fakeTelegram) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chattable = append(f.chattable, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeTelegram) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chattable = append(f.chattable, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeTelegram) SendMessage(chatID int64, text string) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, sentMessage{ChatID: chatID, Text: text})
	return tgbotapi.Message{}, nil
}

func (f *fakeTelegram) SendMarkdown(chatID int64, text string) (tgbotapi.Message, error) {
	return f.SendMessage(chatID, text)
}

func (f *fakeTelegram) SendWithInlineKeyboard(chatID int64, text string, _ tgbotapi.InlineKeyboardMarkup) (tgbotapi.Message, error) {
	return f.SendMessage(chatID, text)
}

func (f *fakeTelegram) SendDocument(chatID int64, fileName string, data []byte, caption string) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.docErr != nil {
		return tgbotapi.Message{}, f.docErr
	}
	f.documents = append(f.documents, sentDocument{ChatID: chatID, FileName: fileName, Data: data, Caption: caption})
	return tgbotapi.Message{}, nil
}

func (f *fakeTelegram) EditMessage(chatID int64, _ int, text string, _ *tgbotapi.InlineKeyboardMarkup) (tgbotapi.Message, error) {
	return f.SendMessage(chatID, text)
}

func (f *fakeTelegram) AnswerCallback(string, string) error { return nil }

func (f *fakeTelegram) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel { return nil }

func (f *fakeTelegram) GetSelf() tgbotapi.User { return tgbotapi.User{UserName: "test_bot"} }

func (f *fakeTelegram) StopReceivingUpdates() {}

func (f *fakeTelegram) Messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.messages...)
}

func (f *fakeTelegram) Documents() []sentDocument {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentDocument(nil), f.documents...)
}

func (f *fakeTelegram) Chattables() []tgbotapi.Chattable {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tgbotapi.Chattable(nil), f.chattable...)
}

type stubProvider struct {
	mu     sync.Mutex
	name   string
	calls  int
	submit func(ctx context.Context, req provider.Request) (provider.Submission, error)
}

func (p *stubProvider) Name() string {
	if p.name == "" {
		return "stub"
	}
	return p.name
}

func (p *stubProvider) Submit(ctx context.Context, req provider.Request) (provider.Submission, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return p.submit(ctx, req)
}

func (p *stubProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func syncProvider(text string) *stubProvider {
	return &stubProvider{submit: func(_ context.Context, _ provider.Request) (provider.Submission, error) {
		return provider.Submission{Provider: "stub", TaskRef: "resp-1", Text: text}, nil
	}}
}

func asyncProvider() *stubProvider {
	return &stubProvider{submit: func(_ context.Context, req provider.Request) (provider.Submission, error) {
		return provider.Submission{Provider: "stub", TaskRef: "task-" + req.ExternalID[:8], Async: true}, nil
	}}
}

type fakeRenderer struct{}

func (fakeRenderer) Render(order *models.Order, participants []*models.Participant, text string) ([]byte, error) {
	if text == "" {
		return nil, errors.New("empty")
	}
	return []byte("%PDF-" + order.ExternalID + ":" + text), nil
}

type scheduled struct {
	OrderID int64
	Delay   time.Duration
}

type fakeScheduler struct {
	mu    sync.Mutex
	items []scheduled
}

func (s *fakeScheduler) Schedule(orderID int64, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, scheduled{OrderID: orderID, Delay: delay})
}

func (s *fakeScheduler) Cancel(int64) bool { return false }

func (s *fakeScheduler) Scheduled() []scheduled {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]scheduled(nil), s.items...)
}

type fakeAlerter struct {
	mu     sync.Mutex
	alerts []string
}

func (a *fakeAlerter) Alert(_ context.Context, text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, text)
}

// pipeline wires fulfillment and delivery over a real database and a
// local artifact store.
type pipeline struct {
	db          *database.DB
	store       *storage.LocalStore
	telegram    *fakeTelegram
	scheduler   *fakeScheduler
	alerter     *fakeAlerter
	delivery    *DeliveryService
	fulfillment *FulfillmentService
}

func newPipeline(t *testing.T, p provider.ReportProvider, syncTimeout time.Duration) *pipeline {
	t.Helper()
	db := setupDB(t)
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	pl := &pipeline{db: db, store: store, telegram: &fakeTelegram{}, scheduler: &fakeScheduler{}, alerter: &fakeAlerter{}}
	pl.delivery = NewDeliveryService(DeliveryDeps{
		Orders:         db,
		Attempts:       db,
		Renderer:       fakeRenderer{},
		Store:          store,
		Telegram:       pl.telegram,
		Reviews:        pl.scheduler,
		Catalog:        models.DefaultCatalog(),
		ReviewDelay:    time.Hour,
		SupportContact: "@support",
	}, testLogger())
	pl.fulfillment = NewFulfillmentService(FulfillmentDeps{
		Orders:         db,
		Attempts:       db,
		Provider:       p,
		Delivery:       pl.delivery,
		Telegram:       pl.telegram,
		Alerter:        pl.alerter,
		SupportContact: "@support",
	}, config.GenerationConfig{CallbackURL: "https://bot.example/webhook/generation/result", SyncTimeout: syncTimeout}, testLogger())
	return pl
}
