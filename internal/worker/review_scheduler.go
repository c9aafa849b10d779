package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const mirrorTimeout = 2 * time.Second

// ReviewFunc is called once when an order's review timer fires.
type ReviewFunc func(ctx context.Context, orderID int64) error

// ScheduleMirror keeps due times outside the process so timers survive a
// restart on a best-effort basis.
type ScheduleMirror interface {
	Add(ctx context.Context, orderID int64, due time.Time) error
	Remove(ctx context.Context, orderID int64) error
	All(ctx context.Context) (map[int64]time.Time, error)
}

// ReviewScheduler keeps at most one pending review timer per order.
type ReviewScheduler struct {
	mu      sync.Mutex
	timers  map[int64]*time.Timer
	stopped bool
	fire    ReviewFunc
	mirror  ScheduleMirror
	logger  *zerolog.Logger
}

func NewReviewScheduler(fire ReviewFunc, mirror ScheduleMirror, logger *zerolog.Logger) *ReviewScheduler {
	return &ReviewScheduler{
		timers: make(map[int64]*time.Timer),
		fire:   fire,
		mirror: mirror,
		logger: logger,
	}
}

// Schedule replaces any pending timer for the order.
func (s *ReviewScheduler) Schedule(orderID int64, delay time.Duration) {
	if delay < 0 {
		delay = 0
	}
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return
	}
	// зеркало пишем до запуска таймера, иначе run может удалить запись раньше
	s.mirrorAdd(orderID, time.Now().Add(delay))

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if old, ok := s.timers[orderID]; ok {
		old.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		s.mu.Lock()
		cur, ok := s.timers[orderID]
		if !ok || cur != t {
			s.mu.Unlock()
			return
		}
		delete(s.timers, orderID)
		s.mu.Unlock()
		s.run(orderID)
	})
	s.timers[orderID] = t
	s.mu.Unlock()
}

// Cancel stops the order's timer. It reports whether one was pending.
func (s *ReviewScheduler) Cancel(orderID int64) bool {
	s.mu.Lock()
	t, ok := s.timers[orderID]
	if ok {
		t.Stop()
		delete(s.timers, orderID)
	}
	s.mu.Unlock()

	if ok {
		s.mirrorRemove(orderID)
	}
	return ok
}

// Stop drops all timers. Mirrored entries stay for Restore.
func (s *ReviewScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

// Restore re-arms timers from the mirror. Overdue ones fire right away.
func (s *ReviewScheduler) Restore(ctx context.Context) (int, error) {
	if s.mirror == nil {
		return 0, nil
	}
	entries, err := s.mirror.All(ctx)
	if err != nil {
		return 0, err
	}
	for orderID, due := range entries {
		s.Schedule(orderID, time.Until(due))
	}
	return len(entries), nil
}

func (s *ReviewScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *ReviewScheduler) run(orderID int64) {
	s.mirrorRemove(orderID)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.fire(ctx, orderID); err != nil {
		s.logger.Error().Err(err).Int64("order_id", orderID).Msg("review request failed")
	}
}

func (s *ReviewScheduler) mirrorAdd(orderID int64, due time.Time) {
	if s.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	if err := s.mirror.Add(ctx, orderID, due); err != nil {
		s.logger.Warn().Err(err).Int64("order_id", orderID).Msg("review schedule mirror add failed")
	}
}

func (s *ReviewScheduler) mirrorRemove(orderID int64) {
	if s.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	if err := s.mirror.Remove(ctx, orderID); err != nil {
		s.logger.Warn().Err(err).Int64("order_id", orderID).Msg("review schedule mirror remove failed")
	}
}
