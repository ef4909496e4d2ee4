// Package ratelimit enforces the platform rate policy at the session-creation
// boundary with Redis fixed-window counters.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter enforces the scan and completion rate policies. Defaults: 5 QR
// scans per minute per device+location, 15 completed sessions per hour per
// customer hash.
type Limiter struct {
	client              *redis.Client
	maxScansPerMinute   int
	maxCompletedPerHour int
}

func NewLimiter(client *redis.Client, maxScansPerMinute, maxCompletedPerHour int) *Limiter {
	return &Limiter{
		client:              client,
		maxScansPerMinute:   maxScansPerMinute,
		maxCompletedPerHour: maxCompletedPerHour,
	}
}

// AllowScan counts a QR scan for the device at a location and reports whether
// it is within policy. The counter increments even for denied scans, so a
// device hammering the endpoint stays locked out.
func (l *Limiter) AllowScan(ctx context.Context, deviceHash, locationID string) (bool, error) {
	key := fmt.Sprintf("ratelimit:scan:%s:%s", deviceHash, locationID)
	return l.allow(ctx, key, int64(l.maxScansPerMinute), time.Minute)
}

// AllowCompletion reports whether a customer hash may complete another
// session this hour. Read-only: evaluation attempts that end in rejection,
// failure or a retry do not consume the budget. Committed completions are
// recorded through CountCompletion.
func (l *Limiter) AllowCompletion(ctx context.Context, customerHash string) (bool, error) {
	count, err := l.client.Get(ctx, completionKey(customerHash)).Int64()
	if errors.Is(err, redis.Nil) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return count < int64(l.maxCompletedPerHour), nil
}

// CountCompletion records one committed completion against the hourly window.
func (l *Limiter) CountCompletion(ctx context.Context, customerHash string) error {
	key := completionKey(customerHash)
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return err
	}
	if count == 1 {
		return l.client.Expire(ctx, key, time.Hour).Err()
	}
	return nil
}

func completionKey(customerHash string) string {
	return fmt.Sprintf("ratelimit:complete:%s", customerHash)
}

func (l *Limiter) allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, error) {
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, window).Err(); err != nil {
			return false, err
		}
	}
	return count <= limit, nil
}
