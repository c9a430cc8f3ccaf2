package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	bookingredis "ms-adbooking/internal/booking/redis"
)

func setupHolds(t *testing.T) *bookingredis.Redis {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return bookingredis.NewRedis(client, 15*time.Minute)
}

func TestAcquireHold(t *testing.T) {
	holds := setupHolds(t)
	ctx := context.Background()
	slotKey := "camp-1|route-1|ind-1"

	// Test case 1: the first booking takes the hold.
	held, err := holds.AcquireHold(ctx, slotKey, "booking-a")
	require.NoError(t, err)
	assert.True(t, held)

	occupied, err := holds.CheckHold(ctx, slotKey)
	require.NoError(t, err)
	assert.True(t, occupied)

	// Test case 2: a second booking is refused while the hold lives.
	held, err = holds.AcquireHold(ctx, slotKey, "booking-b")
	require.NoError(t, err)
	assert.False(t, held)

	// Test case 3: an unrelated slot is unaffected.
	held, err = holds.AcquireHold(ctx, "camp-1|route-2|ind-1", "booking-b")
	require.NoError(t, err)
	assert.True(t, held)
}

func TestReleaseHoldOwnerOnly(t *testing.T) {
	holds := setupHolds(t)
	ctx := context.Background()
	slotKey := "camp-1|route-1|ind-1"

	held, err := holds.AcquireHold(ctx, slotKey, "booking-a")
	require.NoError(t, err)
	require.True(t, held)

	// Test case 1: a non-owner release leaves the hold in place.
	require.NoError(t, holds.ReleaseHold(ctx, slotKey, "booking-b"))
	occupied, err := holds.CheckHold(ctx, slotKey)
	require.NoError(t, err)
	assert.True(t, occupied)

	// Test case 2: the owner's release frees the slot.
	require.NoError(t, holds.ReleaseHold(ctx, slotKey, "booking-a"))
	occupied, err = holds.CheckHold(ctx, slotKey)
	require.NoError(t, err)
	assert.False(t, occupied)

	// Test case 3: releasing an already-free slot is a no-op.
	require.NoError(t, holds.ReleaseHold(ctx, slotKey, "booking-a"))
}

func TestHoldExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	holds := bookingredis.NewRedis(client, time.Minute)
	ctx := context.Background()
	slotKey := "camp-1|route-1|ind-1"

	held, err := holds.AcquireHold(ctx, slotKey, "booking-a")
	require.NoError(t, err)
	require.True(t, held)

	// An abandoned checkout's hold lapses on its own.
	mr.FastForward(2 * time.Minute)

	occupied, err := holds.CheckHold(ctx, slotKey)
	require.NoError(t, err)
	assert.False(t, occupied)

	held, err = holds.AcquireHold(ctx, slotKey, "booking-b")
	require.NoError(t, err)
	assert.True(t, held)
}

// TestSlotHoldIntegration exercises the hold cycle against a real Redis
// container.
func TestSlotHoldIntegration(t *testing.T) {
	// Skip if short test mode
	if testing.Short() {
		t.Skip("Skipping Redis integration test in short mode")
	}

	ctx := context.Background()
	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:latest",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}
	defer redisContainer.Terminate(ctx)

	host, err := redisContainer.Host(ctx)
	require.NoError(t, err)
	port, err := redisContainer.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr:     host + ":" + port.Port(),
		Password: "",
		DB:       0,
	})
	holds := bookingredis.NewRedis(client, time.Minute)

	slotKey := "camp-1|route-1|ind-1"

	held, err := holds.AcquireHold(ctx, slotKey, "booking-a")
	require.NoError(t, err)
	assert.True(t, held, "Expected slot to be holdable")

	held, err = holds.AcquireHold(ctx, slotKey, "booking-b")
	require.NoError(t, err)
	assert.False(t, held, "Expected slot to be already held")

	err = holds.ReleaseHold(ctx, slotKey, "booking-a")
	require.NoError(t, err)

	held, err = holds.AcquireHold(ctx, slotKey, "booking-b")
	require.NoError(t, err)
	assert.True(t, held, "Expected slot to be holdable after release")
}
