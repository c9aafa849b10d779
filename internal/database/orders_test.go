package database

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/adiga-code/numerology/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOrder(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	order, err := db.CreateOrder(ctx, pairDraft(t, 42))
	require.NoError(t, err)
	assert.NotZero(t, order.ID)
	assert.Len(t, order.ExternalID, 36)
	assert.Equal(t, models.OrderPending, order.Status)

	loaded, err := db.GetOrderByExternalID(ctx, order.ExternalID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, loaded.ID)
	assert.Equal(t, int64(42), loaded.TelegramID)
	assert.Equal(t, int64(200000), loaded.Amount)
	assert.Empty(t, loaded.PaymentRef)
	assert.Nil(t, loaded.PaidAt)

	participants, err := db.GetParticipants(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, participants, 2)
	assert.Equal(t, models.RoleMain, participants[0].Role)
	assert.Equal(t, "Анна Петрова", participants[0].FullName)
	assert.Equal(t, "1990-02-01", participants[0].BirthDate.Format("2006-01-02"))
	require.NotNil(t, participants[0].BirthPlace)
	assert.Equal(t, "Казань", *participants[0].BirthPlace)
	assert.Nil(t, participants[0].BirthTime)
	assert.Equal(t, models.RolePartner, participants[1].Role)
	assert.Equal(t, 1, participants[1].Position)
}

func TestCreateOrder_NoPartialPersistence(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	draft := pairDraft(t, 42)
	// одинаковая позиция нарушает UNIQUE(order_id, position)
	draft.Participants[1].Position = 0

	_, err := db.CreateOrder(ctx, draft)
	require.Error(t, err)

	orders, err := db.ListUserOrders(ctx, 42, 10)
	require.NoError(t, err)
	assert.Empty(t, orders)

	var participants int
	require.NoError(t, db.GetContext(ctx, &participants, `SELECT COUNT(*) FROM order_participants`))
	assert.Zero(t, participants)
}

func TestCreateOrder_RequiresParticipants(t *testing.T) {
	db := setupTestDB(t)
	draft := pairDraft(t, 1)
	draft.Participants = nil
	_, err := db.CreateOrder(context.Background(), draft)
	assert.Error(t, err)
}

func TestOrderLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	order, err := db.CreateOrder(ctx, pairDraft(t, 42))
	require.NoError(t, err)

	// без оплаты генерация не стартует
	assert.ErrorIs(t, db.StartProcessing(ctx, order.ID), ErrConcurrentModification)

	paid, err := db.MarkPaid(ctx, order.ExternalID, models.PaymentTelegramStars, "charge-1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderPaid, paid.Status)
	assert.Equal(t, "charge-1", paid.PaymentRef)
	assert.NotNil(t, paid.PaidAt)

	_, err = db.MarkPaid(ctx, order.ExternalID, models.PaymentTelegramStars, "charge-2")
	assert.ErrorIs(t, err, ErrConcurrentModification)

	require.NoError(t, db.StartProcessing(ctx, order.ID))
	require.NoError(t, db.SetGenerationTaskRef(ctx, order.ID, "task-1"))
	require.NoError(t, db.CompleteOrder(ctx, order.ID, "reports/1.pdf"))

	done, err := db.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, done.Status)
	assert.Equal(t, "task-1", done.GenerationTaskRef)
	assert.Equal(t, "reports/1.pdf", done.ArtifactPath)
	assert.NotNil(t, done.CompletedAt)

	assert.ErrorIs(t, db.CompleteOrder(ctx, order.ID, "other.pdf"), ErrConcurrentModification)
	assert.ErrorIs(t, db.FailOrder(ctx, order.ID, models.OrderProcessing, "late"), ErrConcurrentModification)
}

func TestMarkPaid_RequiresReference(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	order, err := db.CreateOrder(ctx, pairDraft(t, 1))
	require.NoError(t, err)

	_, err = db.MarkPaid(ctx, order.ExternalID, models.PaymentGateway, "")
	assert.Error(t, err)
}

func TestFailOrder(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	order, err := db.CreateOrder(ctx, pairDraft(t, 1))
	require.NoError(t, err)
	_, err = db.MarkPaid(ctx, order.ExternalID, models.PaymentGateway, "pay-1")
	require.NoError(t, err)
	require.NoError(t, db.StartProcessing(ctx, order.ID))

	require.NoError(t, db.FailOrder(ctx, order.ID, models.OrderProcessing, "provider down"))
	failed, err := db.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderFailed, failed.Status)
	assert.Equal(t, "provider down", failed.FailureReason)

	// задача не пишется после перехода в терминальный статус
	assert.ErrorIs(t, db.SetGenerationTaskRef(ctx, order.ID, "late"), ErrConcurrentModification)
}

func TestConcurrentStartProcessing(t *testing.T) {
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "concurrency.db"), &logger)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	order, err := db.CreateOrder(ctx, pairDraft(t, 7))
	require.NoError(t, err)
	_, err = db.MarkPaid(ctx, order.ExternalID, models.PaymentTelegramStars, "charge")
	require.NoError(t, err)

	const numGoroutines = 10
	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	results := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			results <- db.StartProcessing(ctx, order.ID)
		}()
	}
	wg.Wait()
	close(results)

	successCount := 0
	for err := range results {
		if err == nil {
			successCount++
		} else {
			assert.ErrorIs(t, err, ErrConcurrentModification)
		}
	}
	assert.Equal(t, 1, successCount, "only one claimant may start generation")
}

func TestFindUserOrderByPrefix(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	order, err := db.CreateOrder(ctx, pairDraft(t, 42))
	require.NoError(t, err)
	_, err = db.CreateOrder(ctx, pairDraft(t, 43))
	require.NoError(t, err)

	found, err := db.FindUserOrderByPrefix(ctx, 42, order.ShortID())
	require.NoError(t, err)
	assert.Equal(t, order.ID, found.ID)

	// чужой заказ не находится
	_, err = db.FindUserOrderByPrefix(ctx, 43, order.ShortID())
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = db.FindUserOrderByPrefix(ctx, 42, "%")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = db.FindUserOrderByPrefix(ctx, 42, "  ")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListStaleProcessing(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	order, err := db.CreateOrder(ctx, pairDraft(t, 1))
	require.NoError(t, err)
	_, err = db.MarkPaid(ctx, order.ExternalID, models.PaymentGateway, "pay")
	require.NoError(t, err)
	require.NoError(t, db.StartProcessing(ctx, order.ID))

	stale, err := db.ListStaleProcessing(ctx, time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, stale)

	stale, err = db.ListStaleProcessing(ctx, time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, order.ID, stale[0].ID)
}

func TestListOrders(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := db.CreateOrder(ctx, pairDraft(t, 5))
		require.NoError(t, err)
	}

	orders, err := db.ListUserOrders(ctx, 5, 2)
	require.NoError(t, err)
	assert.Len(t, orders, 2)

	pending, err := db.ListOrdersByStatus(ctx, models.OrderPending, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 3)

	between, err := db.ListOrdersBetween(ctx, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, between, 3)
}

func TestGetOrderDetails(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	order, err := db.CreateOrder(ctx, pairDraft(t, 9))
	require.NoError(t, err)
	_, err = db.CreateAttempt(ctx, order.ID, "workflow")
	require.NoError(t, err)

	details, err := db.GetOrderDetails(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, details.Order.ID)
	assert.Len(t, details.Participants, 2)
	assert.Len(t, details.Attempts, 1)
	assert.Nil(t, details.Review)

	_, err = db.GetOrderDetails(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}
