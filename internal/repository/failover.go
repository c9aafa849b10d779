package repository

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/adiga-code/numerology/internal/domain"
	"github.com/adiga-code/numerology/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverSessionRepository serves from primary until it errors, then from
// fallback, probing primary again once a minute.
type FailoverSessionRepository struct {
	primary   domain.SessionRepository
	fallback  domain.SessionRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverSessionRepository(primary, fallback domain.SessionRepository, logger *zerolog.Logger) *FailoverSessionRepository {
	return &FailoverSessionRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverSessionRepository) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary session repository failed, falling back to memory")
	}
	r.lastCheck.Store(time.Now().UnixNano())
}

// usePrimary reports whether primary should be tried for this call.
func (r *FailoverSessionRepository) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	return time.Since(time.Unix(0, r.lastCheck.Load())) > recoveryInterval
}

func (r *FailoverSessionRepository) call(op func(domain.SessionRepository) error) error {
	if r.usePrimary() {
		err := op(r.primary)
		if err == nil {
			if r.isDown.Swap(false) {
				r.logger.Info().Msg("Primary session repository recovered")
			}
			return nil
		}
		r.markDown(err)
	}
	return op(r.fallback)
}

func (r *FailoverSessionRepository) GetSession(ctx context.Context, userID int64) (*models.Session, error) {
	var session *models.Session
	err := r.call(func(repo domain.SessionRepository) error {
		var err error
		session, err = repo.GetSession(ctx, userID)
		return err
	})
	return session, err
}

func (r *FailoverSessionRepository) SaveSession(ctx context.Context, session *models.Session) error {
	return r.call(func(repo domain.SessionRepository) error {
		return repo.SaveSession(ctx, session)
	})
}

func (r *FailoverSessionRepository) ClearSession(ctx context.Context, userID int64) error {
	return r.call(func(repo domain.SessionRepository) error {
		return repo.ClearSession(ctx, userID)
	})
}

func (r *FailoverSessionRepository) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	var allowed bool
	err := r.call(func(repo domain.SessionRepository) error {
		var err error
		allowed, err = repo.CheckRateLimit(ctx, userID, limit, window)
		return err
	})
	return allowed, err
}
