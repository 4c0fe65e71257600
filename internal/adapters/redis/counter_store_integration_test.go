//go:build integration

package redis

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedisContainer(t *testing.T, ctx context.Context) *CounterStore {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	store, err := Dial(ctx, fmt.Sprintf("redis://%s:%s/0", host, port.Port()), WithKeyPrefix("test:"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestIntegration_CounterStore(t *testing.T) {
	ctx := context.Background()
	store := setupRedisContainer(t, ctx)

	t.Run("concurrent increments are exact", func(t *testing.T) {
		var wg sync.WaitGroup
		for range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.Increment(ctx, "rl:global:1.2.3.4:0", time.Minute)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
		n, err := store.Increment(ctx, "rl:global:1.2.3.4:0", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(51), n)
	})

	t.Run("ttl is set once", func(t *testing.T) {
		key := "rl:conversation:t1:0"
		_, err := store.Increment(ctx, key, time.Second)
		require.NoError(t, err)
		_, err = store.Increment(ctx, key, time.Hour)
		require.NoError(t, err)

		ttl, err := store.client.PTTL(ctx, "test:"+key).Result()
		require.NoError(t, err)
		assert.LessOrEqual(t, ttl, time.Second)

		require.Eventually(t, func() bool {
			n, err := store.Increment(ctx, key, time.Second)
			return err == nil && n == 1
		}, 5*time.Second, 200*time.Millisecond)
	})
}
