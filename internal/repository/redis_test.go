package repository

import (
	"context"
	"testing"
	"time"

	"github.com/adiga-code/numerology/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisSessionRepository(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	repo := NewRedisSessionRepository(client, time.Hour)
	ctx := context.Background()

	t.Run("SaveAndGetSession", func(t *testing.T) {
		session := &models.Session{
			UserID:           123,
			Step:             models.StepBirthTime,
			Tariff:           models.TariffPair,
			ParticipantCount: 2,
			Participants: []models.ParticipantDraft{
				{FullName: "Анна", BirthTime: models.Skipped()},
				{},
			},
		}

		require.NoError(t, repo.SaveSession(ctx, session))
		assert.True(t, s.Exists("session:123"))
		assert.Equal(t, time.Hour, s.TTL("session:123"))

		got, err := repo.GetSession(ctx, 123)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, models.StepBirthTime, got.Step)
		assert.Equal(t, models.TariffPair, got.Tariff)
		require.Len(t, got.Participants, 2)
		// явный пропуск переживает сериализацию
		assert.True(t, got.Participants[0].BirthTime.Entered)
		assert.Nil(t, got.Participants[0].BirthTime.Value)
		assert.False(t, got.Participants[1].BirthTime.Entered)
	})

	t.Run("GetNonExistentSession", func(t *testing.T) {
		got, err := repo.GetSession(ctx, 999)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("SessionExpires", func(t *testing.T) {
		require.NoError(t, repo.SaveSession(ctx, &models.Session{UserID: 321, Step: models.StepFullName}))
		s.FastForward(time.Hour + time.Second)
		got, err := repo.GetSession(ctx, 321)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("ClearSession", func(t *testing.T) {
		require.NoError(t, repo.SaveSession(ctx, &models.Session{UserID: 456, Step: models.StepFullName}))
		require.NoError(t, repo.ClearSession(ctx, 456))

		got, err := repo.GetSession(ctx, 456)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("CorruptedSession", func(t *testing.T) {
		require.NoError(t, s.Set("session:654", "{not json"))
		_, err := repo.GetSession(ctx, 654)
		assert.Error(t, err)
	})

	t.Run("RateLimit", func(t *testing.T) {
		userID := int64(789)
		limit := 2
		window := time.Second

		allowed, err := repo.CheckRateLimit(ctx, userID, limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)

		allowed, err = repo.CheckRateLimit(ctx, userID, limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)

		allowed, err = repo.CheckRateLimit(ctx, userID, limit, window)
		require.NoError(t, err)
		assert.False(t, allowed)

		s.FastForward(window + time.Millisecond)

		allowed, err = repo.CheckRateLimit(ctx, userID, limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("NilClient", func(t *testing.T) {
		repo := NewRedisSessionRepository(nil, time.Hour)
		_, err := repo.GetSession(ctx, 123)
		assert.ErrorContains(t, err, "redis client is nil")
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, Ping(ctx, client))
	})
}

func TestRedisSessionRepository_Down(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: s.Addr(), MaxRetries: -1})
	defer client.Close()
	s.Close()

	repo := NewRedisSessionRepository(client, time.Hour)
	err = repo.SaveSession(context.Background(), &models.Session{UserID: 1})
	assert.Error(t, err)
	assert.Error(t, Ping(context.Background(), client))
}

func TestCloseClient(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	assert.NoError(t, Close(client))
	assert.NoError(t, Close(nil))
}
