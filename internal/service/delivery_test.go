package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/adiga-code/numerology/internal/database"
	"github.com/adiga-code/numerology/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliver_SendFailureKeepsOrderCompleted(t *testing.T) {
	pl := newPipeline(t, syncProvider("Текст отчёта"), time.Second)
	pl.telegram.docErr = errors.New("Forbidden: bot was blocked by the user")
	ctx := context.Background()
	order := createPaidOrder(t, pl.db, 200)

	err := pl.fulfillment.Dispatch(ctx, order.ID)
	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, order.ID, de.OrderID)

	stored, err := pl.db.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, stored.Status)
	assert.Empty(t, pl.scheduler.Scheduled())

	msgs := pl.telegram.Messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "@support")
	assert.Contains(t, msgs[0].Text, order.ExternalID)
}

func TestDeliver_RenderFailureFailsOrder(t *testing.T) {
	pl := newPipeline(t, asyncProvider(), time.Second)
	ctx := context.Background()
	order := createPaidOrder(t, pl.db, 201)
	require.NoError(t, pl.fulfillment.Dispatch(ctx, order.ID))

	stored, err := pl.db.GetOrder(ctx, order.ID)
	require.NoError(t, err)

	// fakeRenderer отказывает на пустом тексте
	err = pl.delivery.Deliver(ctx, stored, "")
	require.Error(t, err)
	stored, err = pl.db.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderProcessing, stored.Status)

	err = pl.fulfillment.deliver(ctx, stored, pl.fulfillment.latestAttemptID(ctx, order.ID), "")
	require.Error(t, err)
	stored, err = pl.db.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderFailed, stored.Status)
}

func TestComplete_FromStoredArtifact(t *testing.T) {
	pl := newPipeline(t, asyncProvider(), time.Second)
	ctx := context.Background()
	order := createPaidOrder(t, pl.db, 202)
	require.NoError(t, pl.fulfillment.Dispatch(ctx, order.ID))

	location, err := pl.store.Put(ctx, "reports/report_"+order.ExternalID+".pdf", []byte("%PDF-stored"), reportContentType)
	require.NoError(t, err)

	stored, err := pl.db.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.NoError(t, pl.delivery.Complete(ctx, stored, location))

	docs := pl.telegram.Documents()
	require.Len(t, docs, 1)
	assert.Equal(t, "%PDF-stored", string(docs[0].Data))
	assert.Equal(t, "report_"+order.ShortID()+".pdf", docs[0].FileName)

	// второй Complete проигрывает CAS
	err = pl.delivery.Complete(ctx, stored, location)
	assert.ErrorIs(t, err, database.ErrConcurrentModification)
	assert.Len(t, pl.telegram.Documents(), 1)
}

func TestRedeliver(t *testing.T) {
	pl := newPipeline(t, syncProvider("Отчёт"), time.Second)
	ctx := context.Background()
	order := createPaidOrder(t, pl.db, 300)
	require.NoError(t, pl.fulfillment.Dispatch(ctx, order.ID))
	pending := createOrder(t, pl.db, 300)

	t.Run("Success", func(t *testing.T) {
		got, err := pl.delivery.Redeliver(ctx, 300, order.ShortID())
		require.NoError(t, err)
		assert.Equal(t, order.ID, got.ID)
		assert.Len(t, pl.telegram.Documents(), 2)

		stored, err := pl.db.GetOrder(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, models.OrderCompleted, stored.Status)
	})

	t.Run("OtherUser", func(t *testing.T) {
		_, err := pl.delivery.Redeliver(ctx, 301, order.ShortID())
		assert.ErrorIs(t, err, database.ErrNotFound)
	})

	t.Run("NotCompleted", func(t *testing.T) {
		_, err := pl.delivery.Redeliver(ctx, 300, pending.ExternalID)
		assert.ErrorIs(t, err, ErrNotCompleted)
	})

	t.Run("ArtifactMissing", func(t *testing.T) {
		stored, err := pl.db.GetOrder(ctx, order.ID)
		require.NoError(t, err)
		require.NoError(t, os.Remove(filepath.Join(pl.store.BaseDir(), filepath.FromSlash(stored.ArtifactPath))))

		_, err = pl.delivery.Redeliver(ctx, 300, order.ExternalID)
		var de *DeliveryError
		require.ErrorAs(t, err, &de)
		assert.ErrorIs(t, err, ErrArtifactMissing)
	})
}
