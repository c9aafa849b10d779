package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const reviewScheduleKey = "review:schedule"

// RedisReviewSchedule mirrors pending review requests in a sorted set scored
// by due time, so they can be restored after a restart.
type RedisReviewSchedule struct {
	client *redis.Client
}

func NewRedisReviewSchedule(client *redis.Client) *RedisReviewSchedule {
	return &RedisReviewSchedule{client: client}
}

func (r *RedisReviewSchedule) Add(ctx context.Context, orderID int64, due time.Time) error {
	if r.client == nil {
		return errNilClient
	}
	err := r.client.ZAdd(ctx, reviewScheduleKey, redis.Z{
		Score:  float64(due.Unix()),
		Member: strconv.FormatInt(orderID, 10),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to add review schedule: %w", err)
	}
	return nil
}

func (r *RedisReviewSchedule) Remove(ctx context.Context, orderID int64) error {
	if r.client == nil {
		return errNilClient
	}
	if err := r.client.ZRem(ctx, reviewScheduleKey, strconv.FormatInt(orderID, 10)).Err(); err != nil {
		return fmt.Errorf("failed to remove review schedule: %w", err)
	}
	return nil
}

// All returns every mirrored order with its due time.
func (r *RedisReviewSchedule) All(ctx context.Context) (map[int64]time.Time, error) {
	if r.client == nil {
		return nil, errNilClient
	}
	items, err := r.client.ZRangeWithScores(ctx, reviewScheduleKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load review schedule: %w", err)
	}
	out := make(map[int64]time.Time, len(items))
	for _, z := range items {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			continue
		}
		out[id] = time.Unix(int64(z.Score), 0)
	}
	return out, nil
}
