package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis carries advisory slot holds. A hold keeps concurrent checkouts from
// racing on the same slot key ahead of the insert; the unique index on
// bookings stays authoritative, so an expired hold can never corrupt state.
type Redis struct {
	Client  *redis.Client
	HoldTTL time.Duration
}

func NewRedis(client *redis.Client, holdTTL time.Duration) *Redis {
	if holdTTL <= 0 {
		holdTTL = 15 * time.Minute
	}
	return &Redis{Client: client, HoldTTL: holdTTL}
}

func holdKey(slotKey string) string {
	return "slot_hold:" + slotKey
}

// CheckHold reports whether any booking currently holds the slot.
func (r *Redis) CheckHold(ctx context.Context, slotKey string) (bool, error) {
	_, err := r.Client.Get(ctx, holdKey(slotKey)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// AcquireHold takes the hold for bookingID. Returns false when another
// booking already holds the slot.
func (r *Redis) AcquireHold(ctx context.Context, slotKey, bookingID string) (bool, error) {
	return r.Client.SetNX(ctx, holdKey(slotKey), bookingID, r.HoldTTL).Result()
}

// ReleaseHold drops the hold if bookingID still owns it. Holds owned by
// someone else are left alone.
func (r *Redis) ReleaseHold(ctx context.Context, slotKey, bookingID string) error {
	key := holdKey(slotKey)
	val, err := r.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil // already released or expired
	}
	if err != nil {
		return err
	}
	if val == bookingID {
		_, err := r.Client.Del(ctx, key).Result()
		return err
	}
	return nil
}
