package service

import (
	"context"
	"testing"

	"github.com/adiga-code/numerology/internal/config"
	"github.com/adiga-code/numerology/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockUserRepo struct {
	mock.Mock
}

func (m *mockUserRepo) CreateOrUpdateUser(ctx context.Context, user *models.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *mockUserRepo) GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	args := m.Called(ctx, telegramID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockUserRepo) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockUserRepo) UpdateUserActivity(ctx context.Context, telegramID int64) error {
	return m.Called(ctx, telegramID).Error(0)
}

func (m *mockUserRepo) GetAllUsers(ctx context.Context) ([]*models.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.User), args.Error(1)
}

func TestUserService(t *testing.T) {
	repo := new(mockUserRepo)
	logger := zerolog.Nop()
	svc := NewUserService(repo, config.BotConfig{Managers: []int64{1}, Blacklist: []int64{2}}, &logger)
	ctx := context.Background()

	t.Run("Flags", func(t *testing.T) {
		assert.True(t, svc.IsManager(1))
		assert.False(t, svc.IsManager(2))
		assert.True(t, svc.IsBlacklisted(2))
		assert.False(t, svc.IsBlacklisted(1))
	})

	t.Run("SaveUser", func(t *testing.T) {
		user := &models.User{TelegramID: 1, FirstName: "Anna"}
		repo.On("CreateOrUpdateUser", ctx, mock.MatchedBy(func(u *models.User) bool {
			return u.TelegramID == 1 && u.IsManager && !u.IsBlacklisted
		})).Return(nil).Once()

		assert.NoError(t, svc.SaveUser(ctx, user))
		repo.AssertExpectations(t)
	})

	t.Run("UpdateUserActivity", func(t *testing.T) {
		repo.On("UpdateUserActivity", ctx, int64(5)).Return(nil).Once()
		assert.NoError(t, svc.UpdateUserActivity(ctx, 5))
	})

	t.Run("Lookups", func(t *testing.T) {
		repo.On("GetUserByID", ctx, int64(7)).Return(&models.User{ID: 7}, nil).Once()
		repo.On("GetUserByTelegramID", ctx, int64(70)).Return(&models.User{TelegramID: 70}, nil).Once()
		repo.On("GetAllUsers", ctx).Return([]*models.User{{ID: 1}, {ID: 2}}, nil).Once()

		u, err := svc.GetUserByID(ctx, 7)
		assert.NoError(t, err)
		assert.Equal(t, int64(7), u.ID)

		u, err = svc.GetUserByTelegramID(ctx, 70)
		assert.NoError(t, err)
		assert.Equal(t, int64(70), u.TelegramID)

		users, err := svc.GetAllUsers(ctx)
		assert.NoError(t, err)
		assert.Len(t, users, 2)
		repo.AssertExpectations(t)
	})
}
