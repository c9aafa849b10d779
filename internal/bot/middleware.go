package bot

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

func (b *Bot) withRecovery(handler func()) {
	defer func() {
		if r := recover(); r != nil {
			if b.metrics != nil {
				b.metrics.ErrorsTotal.Inc()
			}
			b.logger.Error().Interface("panic", r).Msg("Recovered from panic in update handler")
		}
	}()
	handler()
}

func (b *Bot) trackActivity(userID int64) {
	if userID == 0 {
		return
	}
	// в фоне, чтобы не тормозить основной цикл
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := b.services.Users.UpdateUserActivity(ctx, userID); err != nil {
			b.logger.Debug().Err(err).Int64("user_id", userID).Msg("Failed to update user activity")
		}
	}()
}

// allow applies the per-user message rate limit. Managers are not limited.
func (b *Bot) allow(ctx context.Context, userID int64) bool {
	if b.services.Limiter == nil || b.config.Bot.RateLimitMessages <= 0 || b.services.Users.IsManager(userID) {
		return true
	}
	window := time.Duration(b.config.Bot.RateLimitWindow) * time.Second
	allowed, err := b.services.Limiter.CheckRateLimit(ctx, userID, b.config.Bot.RateLimitMessages, window)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("user_id", userID).Msg("Rate limit check failed")
		return true
	}
	if !allowed {
		zerolog.Ctx(ctx).Warn().Int64("user_id", userID).Msg("Rate limit exceeded")
	}
	return allowed
}
