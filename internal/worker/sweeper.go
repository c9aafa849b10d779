package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Expirer fails orders stuck in generation.
type Expirer interface {
	ExpireStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// Sweeper periodically expires stale processing orders.
type Sweeper struct {
	expirer    Expirer
	staleAfter time.Duration
	interval   time.Duration
	logger     *zerolog.Logger
}

func NewSweeper(expirer Expirer, staleAfter, interval time.Duration, logger *zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{expirer: expirer, staleAfter: staleAfter, interval: interval, logger: logger}
}

func (s *Sweeper) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	n, err := s.expirer.ExpireStale(ctx, s.staleAfter)
	if err != nil {
		s.logger.Error().Err(err).Msg("stale sweep failed")
		return
	}
	if n > 0 {
		s.logger.Info().Int("expired", n).Msg("stale sweep")
	}
}
