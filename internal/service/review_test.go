package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/adiga-code/numerology/internal/database"
	"github.com/adiga-code/numerology/internal/models"
	"github.com/adiga-code/numerology/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReviewFlow(t *testing.T) {
	pl := newPipeline(t, syncProvider("Отчёт"), time.Second)
	ctx := context.Background()
	sessions := repository.NewMemorySessionRepository(time.Hour)
	svc := NewReviewService(pl.db, pl.db, sessions, pl.telegram, testLogger())

	order := createPaidOrder(t, pl.db, 700)
	pending := createOrder(t, pl.db, 700)

	// незавершённый заказ не получает запрос отзыва
	require.NoError(t, svc.RequestReview(ctx, pending.ID))
	assert.Empty(t, pl.telegram.Messages())

	require.NoError(t, pl.fulfillment.Dispatch(ctx, order.ID))
	require.NoError(t, svc.RequestReview(ctx, order.ID))
	msgs := pl.telegram.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(700), msgs[0].ChatID)
	assert.Contains(t, msgs[0].Text, order.ShortID())

	_, err := svc.SubmitRating(ctx, 700, order.ID, 6)
	assert.ErrorIs(t, err, ErrInvalidRating)
	_, err = svc.SubmitRating(ctx, 701, order.ID, 5)
	assert.ErrorIs(t, err, ErrNotOwner)
	_, err = svc.SubmitRating(ctx, 700, pending.ID, 5)
	assert.ErrorIs(t, err, ErrNotCompleted)

	commentOpen, err := svc.SubmitRating(ctx, 700, order.ID, 5)
	require.NoError(t, err)
	assert.True(t, commentOpen)
	_, err = svc.SubmitRating(ctx, 700, order.ID, 4)
	assert.ErrorIs(t, err, database.ErrDuplicate)

	session, err := sessions.GetSession(ctx, 700)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, models.StepReviewComment, session.Step)
	assert.Equal(t, order.ID, session.ReviewOrderID)

	require.NoError(t, svc.AddComment(ctx, session, "  "+strings.Repeat("я", 1200)+"  "))
	review, err := pl.db.GetReviewByOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, review.Rating)
	require.NotNil(t, review.Comment)
	assert.Equal(t, maxCommentLength, len([]rune(*review.Comment)))

	session, err = sessions.GetSession(ctx, 700)
	require.NoError(t, err)
	assert.Nil(t, session)

	// отзыв уже есть, повторный запрос не отправляется
	require.NoError(t, svc.RequestReview(ctx, order.ID))
	assert.Len(t, pl.telegram.Messages(), 1)
}

func TestSubmitRating_KeepsOrderInProgress(t *testing.T) {
	pl := newPipeline(t, syncProvider("Отчёт"), time.Second)
	ctx := context.Background()
	sessions := repository.NewMemorySessionRepository(time.Hour)
	svc := NewReviewService(pl.db, pl.db, sessions, pl.telegram, testLogger())

	order := createPaidOrder(t, pl.db, 710)
	require.NoError(t, pl.fulfillment.Dispatch(ctx, order.ID))

	draft := models.Session{UserID: 710, Step: models.StepBirthDate, Tariff: models.TariffDeep}
	require.NoError(t, sessions.SaveSession(ctx, &draft))

	commentOpen, err := svc.SubmitRating(ctx, 710, order.ID, 5)
	require.NoError(t, err)
	assert.False(t, commentOpen)

	review, err := pl.db.GetReviewByOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, review.Rating)

	session, err := sessions.GetSession(ctx, 710)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, models.StepBirthDate, session.Step)
	assert.Equal(t, models.TariffDeep, session.Tariff)
}

func TestReviewCallback(t *testing.T) {
	assert.Equal(t, "review:12:4", ReviewCallback(12, 4))
}
