package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/pricewatch/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startRedis runs a throwaway Redis container and returns a cache connected to it.
func startRedis(t *testing.T, opts ...cache.Option) *cache.RedisCache {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	rc, err := cache.NewRedisCache("redis://"+host+":"+port.Port(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })
	require.NoError(t, rc.Ping(ctx))
	return rc
}

func TestRedisCache_SetGetAndExpiry(t *testing.T) {
	rc := startRedis(t)
	ctx := context.Background()

	require.NoError(t, rc.Set(ctx, "elasticity:a|b|c|d", []byte(`{"value":-1.2}`), time.Second))

	val, found, err := rc.Get(ctx, "elasticity:a|b|c|d")
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `{"value":-1.2}`, string(val))

	time.Sleep(1500 * time.Millisecond)

	_, found, err = rc.Get(ctx, "elasticity:a|b|c|d")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisCache_GetMiss(t *testing.T) {
	rc := startRedis(t)

	val, found, err := rc.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, val)
}

func TestRedisCache_JobStatusMirror(t *testing.T) {
	rc := startRedis(t)
	ctx := context.Background()
	jobID := uuid.New()

	_, found, err := rc.GetJobStatus(ctx, jobID)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, rc.SetJobStatus(ctx, jobID, "running", 10*time.Second))
	require.NoError(t, rc.SetJobStatus(ctx, jobID, "cancelled", 10*time.Second))

	status, found, err := rc.GetJobStatus(ctx, jobID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "cancelled", status)
}

func TestRedisCache_IncrWithExpiry(t *testing.T) {
	rc := startRedis(t)
	ctx := context.Background()
	key := cache.RateLimitKey("pw_" + uuid.NewString()[:5])

	for want := int64(1); want <= 3; want++ {
		got, err := rc.IncrWithExpiry(ctx, key, time.Second)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	time.Sleep(1500 * time.Millisecond)

	got, err := rc.IncrWithExpiry(ctx, key, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got, "counter restarts after the window expires")
}

func TestRedisCache_IncrWithExpiry_FixedWindow(t *testing.T) {
	rc := startRedis(t)
	ctx := context.Background()
	key := cache.RateLimitKey("pw_" + uuid.NewString()[:5])

	_, err := rc.IncrWithExpiry(ctx, key, time.Second)
	require.NoError(t, err)
	time.Sleep(600 * time.Millisecond)
	// A later hit must not push the window out.
	_, err = rc.IncrWithExpiry(ctx, key, time.Second)
	require.NoError(t, err)
	time.Sleep(600 * time.Millisecond)

	got, err := rc.IncrWithExpiry(ctx, key, time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestRedisCache_Namespace(t *testing.T) {
	rc := startRedis(t, cache.WithNamespace("pricewatch"))
	ctx := context.Background()

	require.NoError(t, rc.Set(ctx, "elasticity:x", []byte("1"), time.Minute))
	val, found, err := rc.Get(ctx, "elasticity:x")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "1", string(val))
}

func TestNewRedisCache_InvalidURL(t *testing.T) {
	_, err := cache.NewRedisCache("not a url")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse redis URL")
}

func TestKeys(t *testing.T) {
	jobID := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	assert.Equal(t, "job:22222222-2222-2222-2222-222222222222", cache.JobStatusKey(jobID))
	assert.Equal(t, "ratelimit:pw_abcd1", cache.RateLimitKey("pw_abcd1"))
	assert.Equal(t, "elasticity:calzado|mujer|acme|alta",
		cache.ElasticityKey("Calzado", " Mujer", "ACME", "alta "))
}

func TestKeys_NonColliding(t *testing.T) {
	keys := map[string]bool{
		cache.JobStatusKey(uuid.New()):          true,
		cache.RateLimitKey("pw_prefix"):         true,
		cache.ElasticityKey("a", "b", "c", "d"): true,
		cache.ElasticityKey("a", "b", "c", "e"): true,
	}
	assert.Len(t, keys, 4)
}
