package service

import (
	"context"

	"github.com/adiga-code/numerology/internal/config"
	"github.com/adiga-code/numerology/internal/domain"
	"github.com/adiga-code/numerology/internal/models"

	"github.com/rs/zerolog"
)

type UserService struct {
	repo         domain.UserRepository
	logger       *zerolog.Logger
	managersMap  map[int64]bool
	blacklistMap map[int64]bool
}

func NewUserService(repo domain.UserRepository, cfg config.BotConfig, logger *zerolog.Logger) *UserService {
	managersMap := make(map[int64]bool)
	for _, id := range cfg.Managers {
		managersMap[id] = true
	}

	blacklistMap := make(map[int64]bool)
	for _, id := range cfg.Blacklist {
		blacklistMap[id] = true
	}

	return &UserService{
		repo:         repo,
		logger:       logger,
		managersMap:  managersMap,
		blacklistMap: blacklistMap,
	}
}

func (s *UserService) IsManager(userID int64) bool {
	return s.managersMap[userID]
}

func (s *UserService) IsBlacklisted(userID int64) bool {
	return s.blacklistMap[userID]
}

// SaveUser upserts the user, taking manager and blacklist flags from config.
func (s *UserService) SaveUser(ctx context.Context, user *models.User) error {
	user.IsManager = s.IsManager(user.TelegramID)
	user.IsBlacklisted = s.IsBlacklisted(user.TelegramID)
	return s.repo.CreateOrUpdateUser(ctx, user)
}

func (s *UserService) UpdateUserActivity(ctx context.Context, telegramID int64) error {
	return s.repo.UpdateUserActivity(ctx, telegramID)
}

func (s *UserService) GetAllUsers(ctx context.Context) ([]*models.User, error) {
	return s.repo.GetAllUsers(ctx)
}

func (s *UserService) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return s.repo.GetUserByID(ctx, id)
}

func (s *UserService) GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	return s.repo.GetUserByTelegramID(ctx, telegramID)
}
